package service

import (
	"context"

	"github.com/BerniceZTT/dialer_end/models"
)

// Messenger 邮件能力，在外部客户端中打开撰写，返回是否已发出
type Messenger interface {
	ComposeEmail(ctx context.Context, lead *models.Lead) (bool, error)
}

// EventPublisher 互动与阶段变更事件的对外广播
type EventPublisher interface {
	PublishInteraction(ctx context.Context, interaction models.Interaction) error
	PublishStageChanged(ctx context.Context, event models.StageChangeEvent) error
}

// NopPublisher 不广播任何事件
type NopPublisher struct{}

// PublishInteraction 忽略事件
func (NopPublisher) PublishInteraction(context.Context, models.Interaction) error { return nil }

// PublishStageChanged 忽略事件
func (NopPublisher) PublishStageChanged(context.Context, models.StageChangeEvent) error { return nil }
