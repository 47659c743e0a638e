package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BerniceZTT/dialer_end/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return m.Called(name, kind, durable, autoDelete, internal, noWait, args).Error(0)
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.Called(ctx, exchange, key, mandatory, immediate, msg).Error(0)
}

func (m *mockChannel) Close() error {
	return m.Called().Error(0)
}

func newTestPublisher(t *testing.T) (*Publisher, *mockChannel) {
	t.Helper()
	ch := &mockChannel{}
	ch.On("ExchangeDeclare", ExchangeName, "topic", true, false, false, false, mock.Anything).Return(nil).Once()
	p, err := NewPublisherWithChannel(ch, zerolog.Nop())
	require.NoError(t, err)
	return p, ch
}

func TestNewPublisherWithChannel_DeclareFails(t *testing.T) {
	ch := &mockChannel{}
	ch.On("ExchangeDeclare", ExchangeName, "topic", true, false, false, false, mock.Anything).Return(errors.New("access refused"))

	_, err := NewPublisherWithChannel(ch, zerolog.Nop())
	assert.Error(t, err)
}

func TestPublishInteraction(t *testing.T) {
	p, ch := newTestPublisher(t)

	var published amqp.Publishing
	ch.On("PublishWithContext", mock.Anything, ExchangeName, InteractionRoutingKey, false, false, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(5).(amqp.Publishing) }).
		Return(nil).Once()

	err := p.PublishInteraction(context.Background(), models.Interaction{
		LeadID:  "65f0c0ffee",
		Type:    models.InteractionCall,
		Outcome: models.OutcomeInterested,
		ActorID: "alice",
	})
	require.NoError(t, err)
	ch.AssertExpectations(t)

	assert.Equal(t, "application/json", published.ContentType)
	assert.Equal(t, amqp.Persistent, published.DeliveryMode)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(published.Body, &body))
	assert.Equal(t, "65f0c0ffee", body["leadId"])
	assert.Equal(t, "interested", body["outcome"])
}

func TestPublishStageChanged(t *testing.T) {
	p, ch := newTestPublisher(t)
	ch.On("PublishWithContext", mock.Anything, ExchangeName, StageRoutingKey, false, false, mock.Anything).
		Return(nil).Once()

	err := p.PublishStageChanged(context.Background(), models.StageChangeEvent{
		LeadID:    "65f0c0ffee",
		FromStage: models.StageNew,
		ToStage:   models.StageWon,
		ActorID:   "alice",
		ChangedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	ch.AssertExpectations(t)
}

func TestPublish_ChannelError(t *testing.T) {
	p, ch := newTestPublisher(t)
	ch.On("PublishWithContext", mock.Anything, ExchangeName, StageRoutingKey, false, false, mock.Anything).
		Return(amqp.ErrClosed).Once()

	err := p.PublishStageChanged(context.Background(), models.StageChangeEvent{LeadID: "x"})
	assert.ErrorIs(t, err, amqp.ErrClosed)
}

func TestPublisher_Close(t *testing.T) {
	p, ch := newTestPublisher(t)
	ch.On("Close").Return(nil).Once()

	require.NoError(t, p.Close())
	ch.AssertExpectations(t)
}
