package service

import "errors"

var (
	// ErrLeadNotFound 线索不存在或已删除
	ErrLeadNotFound = errors.New("线索不存在")
	// ErrLeaseHeld 线索被其他坐席持有且租约未过期
	ErrLeaseHeld = errors.New("线索已被其他坐席占用")
	// ErrLeaseLost 续约时发现占用已不属于当前坐席
	ErrLeaseLost = errors.New("线索占用已失效")
	// ErrNoLead 游标已越过队列两端或队列为空
	ErrNoLead = errors.New("当前没有可处理的线索")
	// ErrInvalidState 会话当前状态不允许该操作
	ErrInvalidState = errors.New("当前状态不允许该操作")
	// ErrInvalidInput 参数错误
	ErrInvalidInput = errors.New("参数错误")
	// ErrUpdateFailed 阶段或审计记录写入失败
	ErrUpdateFailed = errors.New("更新失败")
	// ErrSessionNotFound 会话不存在或不属于当前坐席
	ErrSessionNotFound = errors.New("会话不存在")
	// ErrEmailNotSent 邮件未发出
	ErrEmailNotSent = errors.New("邮件未发送")
)
