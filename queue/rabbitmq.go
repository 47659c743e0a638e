package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/BerniceZTT/dialer_end/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	ExchangeName          = "ex.dialer"
	InteractionRoutingKey = "interaction.logged"
	StageRoutingKey       = "stage.changed"
)

// Channel 发布所需的amqp通道能力
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher 将互动记录和阶段变更广播到RabbitMQ
type Publisher struct {
	conn   *amqp.Connection
	mu     sync.Mutex
	ch     Channel
	logger zerolog.Logger
}

// NewPublisher 连接RabbitMQ并声明交换机
func NewPublisher(url string, logger zerolog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("连接RabbitMQ失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("打开RabbitMQ通道失败: %w", err)
	}
	p, err := NewPublisherWithChannel(ch, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewPublisherWithChannel 基于已打开的通道创建发布器
func NewPublisherWithChannel(ch Channel, logger zerolog.Logger) (*Publisher, error) {
	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("声明交换机失败: %w", err)
	}
	return &Publisher{ch: ch, logger: logger}, nil
}

func (p *Publisher) publish(ctx context.Context, key string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx,
		ExchangeName,
		key,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("发布事件失败: %w", err)
	}
	p.logger.Debug().Str("routingKey", key).Msg("事件已发布")
	return nil
}

// PublishInteraction 广播新互动记录
func (p *Publisher) PublishInteraction(ctx context.Context, interaction models.Interaction) error {
	return p.publish(ctx, InteractionRoutingKey, interaction)
}

// PublishStageChanged 广播阶段变更
func (p *Publisher) PublishStageChanged(ctx context.Context, event models.StageChangeEvent) error {
	return p.publish(ctx, StageRoutingKey, event)
}

// Close 关闭通道和连接
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
