package controllers

import (
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/BerniceZTT/dialer_end/models"
	"github.com/BerniceZTT/dialer_end/service"
	"github.com/BerniceZTT/dialer_end/utils"

	"github.com/gin-gonic/gin"
)

// DialerController 外呼会话接口
type DialerController struct {
	sessions *service.SessionRegistry
}

// NewDialerController 创建外呼会话接口
func NewDialerController(sessions *service.SessionRegistry) *DialerController {
	return &DialerController{sessions: sessions}
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

type digitRequest struct {
	Digit string `json:"digit" binding:"required"`
}

type emailRequest struct {
	Description string `json:"description"`
}

// session 获取当前坐席的会话，失败时已写出响应
func (dc *DialerController) session(c *gin.Context) (*service.DialerSession, bool) {
	user, ok := currentUser(c)
	if !ok {
		return nil, false
	}
	session, err := dc.sessions.Get(c.Param("id"), user.ID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return session, true
}

// CreateSession 开始外呼会话，请求体为队列筛选条件
func (dc *DialerController) CreateSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var filter service.QueueFilter
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&filter); err != nil {
			utils.HandleError(c, utils.CreateBadRequestError("无效的筛选条件"))
			return
		}
	}

	session, err := dc.sessions.Create(c.Request.Context(), user.ID, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, session.View(), "外呼会话已开始", http.StatusCreated)
}

// GetSession 获取会话状态
func (dc *DialerController) GetSession(c *gin.Context) {
	session, ok := dc.session(c)
	if !ok {
		return
	}
	utils.SuccessResponse(c, session.View(), "")
}

// GetQueue 获取会话当前队列
func (dc *DialerController) GetQueue(c *gin.Context) {
	session, ok := dc.session(c)
	if !ok {
		return
	}
	view := session.View()
	utils.SuccessResponse(c, gin.H{"index": view.Index, "leads": session.Queue()}, "")
}

// SetFilter 更换会话筛选条件
func (dc *DialerController) SetFilter(c *gin.Context) {
	session, ok := dc.session(c)
	if !ok {
		return
	}
	var filter service.QueueFilter
	if err := c.ShouldBindJSON(&filter); err != nil {
		utils.HandleError(c, utils.CreateBadRequestError("无效的筛选条件"))
		return
	}
	if err := session.SetFilter(c.Request.Context(), filter); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, session.View(), "")
}

// Next 跳到下一条线索
func (dc *DialerController) Next(c *gin.Context) {
	session, ok := dc.session(c)
	if !ok {
		return
	}
	if _, err := session.Next(c.Request.Context()); err != nil && !errors.Is(err, service.ErrNoLead) {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, session.View(), "")
}

// Previous 回到上一条线索
func (dc *DialerController) Previous(c *gin.Context) {
	session, ok := dc.session(c)
	if !ok {
		return
	}
	if _, err := session.Previous(c.Request.Context()); err != nil && !errors.Is(err, service.ErrNoLead) {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, session.View(), "")
}

// Dial 拨打当前线索
func (dc *DialerController) Dial(c *gin.Context) {
	session, ok := dc.session(c)
	if !ok {
		return
	}
	if err := session.Dial(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, session.View(), "")
}

// HangUp 挂断
func (dc *DialerController) HangUp(c *gin.Context) {
	session, ok := dc.session(c)
	if !ok {
		return
	}
	if err := session.HangUp(); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, session.View(), "")
}

// Mute 静音切换
func (dc *DialerController) Mute(c *gin.Context) {
	session, ok := dc.session(c)
	if !ok {
		return
	}
	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.HandleError(c, utils.CreateBadRequestError("无效的请求数据"))
		return
	}
	if err := session.Mute(req.Muted); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, session.View(), "")
}

// SendDigit 发送按键
func (dc *DialerController) SendDigit(c *gin.Context) {
	session, ok := dc.session(c)
	if !ok {
		return
	}
	var req digitRequest
	if err := c.ShouldBindJSON(&req); err != nil || utf8.RuneCountInString(req.Digit) != 1 {
		utils.HandleError(c, utils.CreateBadRequestError("按键必须是单个字符"))
		return
	}
	digit, _ := utf8.DecodeRuneInString(req.Digit)
	if err := session.SendDigit(digit); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, nil, "")
}

// RecordOutcome 记录结果并前进到下一条线索
func (dc *DialerController) RecordOutcome(c *gin.Context) {
	session, ok := dc.session(c)
	if !ok {
		return
	}
	var input service.OutcomeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.HandleError(c, utils.CreateBadRequestError("无效的请求数据"))
		return
	}
	if input.Outcome != "" && !input.Outcome.IsValid() {
		utils.HandleError(c, utils.CreateBadRequestError("无效的结果标签"))
		return
	}

	record, _, err := session.RecordOutcome(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"interaction": record, "session": session.View()}, "结果已记录")
}

// LogEmail 为当前线索撰写邮件并记录
func (dc *DialerController) LogEmail(c *gin.Context) {
	session, ok := dc.session(c)
	if !ok {
		return
	}
	var req emailRequest
	_ = c.ShouldBindJSON(&req)

	record, err := session.LogEmail(c.Request.Context(), req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"interaction": record}, "邮件已记录")
}

// CloseSession 结束会话
func (dc *DialerController) CloseSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := dc.sessions.Close(c.Param("id"), user.ID); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, nil, "外呼会话已结束")
}

// Outcomes 结果标签词表
func (dc *DialerController) Outcomes(c *gin.Context) {
	utils.SuccessResponse(c, gin.H{"outcomes": models.Outcomes}, "")
}
