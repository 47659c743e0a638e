package repository

import (
	"context"
	"errors"
	"time"

	"github.com/BerniceZTT/dialer_end/models"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("记录不存在")
	// ErrClaimConflict 线索已被其他坐席占用且未过期
	ErrClaimConflict = errors.New("线索已被其他坐席占用")
	// ErrNotClaimOwner 当前坐席不是线索占用者
	ErrNotClaimOwner = errors.New("当前坐席未持有该线索")
	// ErrTransactionsUnsupported 部署不支持多文档事务
	ErrTransactionsUnsupported = errors.New("数据库不支持事务")
	// ErrInvalidID ID格式错误
	ErrInvalidID = errors.New("无效的ID格式")
)

// LeadQuery 线索查询条件，零值字段不参与筛选
type LeadQuery struct {
	Stage      models.Stage
	Categories []string
	Tier       string
	Keyword    string
	ActiveOnly bool
	ClaimedBy  string
}

// LeadUpdate 线索部分字段更新，nil字段保持不变
type LeadUpdate struct {
	Name            *string
	ContactName     *string
	Category        *string
	Tier            *string
	Stage           *models.Stage
	Phone           *string
	Email           *string
	Notes           *string
	IsActive        *bool
	NextFollowUpAt  *time.Time
	LastContactedAt *time.Time
	UpdatedAt       time.Time
}

// LeadStore 线索存储。所有写操作按字段组最后写入生效，不提供锁。
type LeadStore interface {
	Get(ctx context.Context, id string) (*models.Lead, error)
	List(ctx context.Context, query LeadQuery) ([]models.Lead, error)
	Create(ctx context.Context, lead *models.Lead) (*models.Lead, error)
	Update(ctx context.Context, id string, update LeadUpdate) (*models.Lead, error)
	Delete(ctx context.Context, id string) error
	// Watch 每次写入提交后发出一次信号，ctx取消时关闭通道
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// ClaimStore 线索占用的条件写入。只有占用字段走条件更新，其余字段最后写入生效。
type ClaimStore interface {
	// AcquireClaim 在线索未占用、已由callerID占用或占用时间不晚于staleBefore时写入占用
	AcquireClaim(ctx context.Context, leadID, callerID string, now, staleBefore time.Time) (*models.Lead, error)
	// RenewClaim 仅在占用者为callerID时刷新占用时间
	RenewClaim(ctx context.Context, leadID, callerID string, now time.Time) (*models.Lead, error)
	// ReleaseClaim 仅在占用者为callerID时清除占用，返回是否实际清除
	ReleaseClaim(ctx context.Context, leadID, callerID string) (bool, error)
	// ClearExpiredClaims 清除占用时间不晚于staleBefore的占用字段
	ClearExpiredClaims(ctx context.Context, staleBefore time.Time) (int64, error)
}

// InteractionStore 互动记录存储，只追加
type InteractionStore interface {
	Append(ctx context.Context, interaction *models.Interaction) (*models.Interaction, error)
	ListByLead(ctx context.Context, leadID string) ([]models.Interaction, error)
	// Confirm 确认pending记录
	Confirm(ctx context.Context, id string) error
	// Abandon 标记pending记录作废
	Abandon(ctx context.Context, id string) error
	CountOutcomes(ctx context.Context, actorID string, since time.Time) (map[models.Outcome]int64, error)
}

// Transactor 支持多文档事务的存储实现
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
