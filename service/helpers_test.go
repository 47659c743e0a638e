package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BerniceZTT/dialer_end/models"
	"github.com/BerniceZTT/dialer_end/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishInteraction(ctx context.Context, interaction models.Interaction) error {
	args := m.Called(ctx, interaction)
	return args.Error(0)
}

func (m *mockPublisher) PublishStageChanged(ctx context.Context, event models.StageChangeEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type mockMessenger struct {
	mock.Mock
}

func (m *mockMessenger) ComposeEmail(ctx context.Context, lead *models.Lead) (bool, error) {
	args := m.Called(ctx, lead)
	return args.Bool(0), args.Error(1)
}

// seedLead 写入一条默认可拨打的线索，opts可覆盖字段
func seedLead(t *testing.T, store repository.LeadStore, name string, opts ...func(*models.Lead)) models.Lead {
	t.Helper()
	lead := &models.Lead{
		Name:      name,
		Category:  models.CategoryDetailing,
		Tier:      models.Tier1,
		Stage:     models.StageNew,
		Phone:     "+15550100",
		Email:     name + "@example.com",
		IsActive:  true,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	for _, opt := range opts {
		opt(lead)
	}
	created, err := store.Create(context.Background(), lead)
	require.NoError(t, err)
	return *created
}

func createdAt(ts time.Time) func(*models.Lead) {
	return func(l *models.Lead) { l.CreatedAt = ts }
}

func tier(name string) func(*models.Lead) {
	return func(l *models.Lead) { l.Tier = name }
}

func category(name string) func(*models.Lead) {
	return func(l *models.Lead) { l.Category = name }
}

func leadIDs(leads []models.Lead) []string {
	ids := make([]string, len(leads))
	for i := range leads {
		ids[i] = leads[i].ID.Hex()
	}
	return ids
}

func getLead(t *testing.T, store repository.LeadStore, id string) *models.Lead {
	t.Helper()
	lead, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	return lead
}

// harness 一套基于内存存储和假时钟的服务组合
type harness struct {
	store     *repository.MemoryStore
	clock     *fakeClock
	claims    *ClaimManager
	projector *QueueProjector
	ledger    *Ledger
	messenger *mockMessenger
	deps      SessionDeps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := repository.NewMemoryStore()
	clock := newFakeClock(t0)
	logger := zerolog.Nop()

	claims := NewClaimManager(store, LeaseConfig{
		Timeout:       5 * time.Minute,
		RenewInterval: 10 * time.Millisecond,
	}, clock, logger)
	projector := NewQueueProjector(store, claims, models.DefaultCatalog(), 20*time.Millisecond, logger)
	ledger := NewLedger(store, store, claims, NopPublisher{}, clock, logger)
	messenger := &mockMessenger{}

	h := &harness{
		store:     store,
		clock:     clock,
		claims:    claims,
		projector: projector,
		ledger:    ledger,
		messenger: messenger,
		deps: SessionDeps{
			Claims:    claims,
			Projector: projector,
			Ledger:    ledger,
			Telephony: NewLoopbackTelephony(clock, logger),
			Messenger: messenger,
			Clock:     clock,
			Logger:    logger,
		},
	}
	t.Cleanup(claims.Wait)
	return h
}

func (h *harness) newSession(t *testing.T, callerID string, filter QueueFilter) *DialerSession {
	t.Helper()
	session := NewDialerSession("s-"+callerID, callerID, filter, h.deps)
	require.NoError(t, session.Start(context.Background()))
	t.Cleanup(session.Close)
	return session
}
