package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BerniceZTT/dialer_end/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, h *harness) *SessionRegistry {
	t.Helper()
	registry := NewSessionRegistry(h.deps, 15*time.Minute)
	t.Cleanup(registry.CloseAll)
	return registry
}

func TestRegistry_OneSessionPerCaller(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l1 := seedLead(t, h.store, "l1")
	registry := newTestRegistry(t, h)

	first, err := registry.Create(ctx, "alice", QueueFilter{})
	require.NoError(t, err)
	second, err := registry.Create(ctx, "alice", QueueFilter{})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, 1, registry.Len())

	_, err = registry.Get(first.ID(), "alice")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// 新会话重新占用同一条线索
	assert.Equal(t, l1.ID.Hex(), currentID(t, second))

	_, err = registry.Create(ctx, "", QueueFilter{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegistry_OwnerCheck(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	registry := newTestRegistry(t, h)

	session, err := registry.Create(ctx, "alice", QueueFilter{})
	require.NoError(t, err)

	got, err := registry.Get(session.ID(), "alice")
	require.NoError(t, err)
	assert.Same(t, session, got)

	_, err = registry.Get(session.ID(), "bob")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, registry.Close(session.ID(), "bob"), ErrSessionNotFound)

	require.NoError(t, registry.Close(session.ID(), "alice"))
	assert.Equal(t, 0, registry.Len())
	assert.ErrorIs(t, registry.Close(session.ID(), "alice"), ErrSessionNotFound)
}

func TestRegistry_SweepIdle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l1 := seedLead(t, h.store, "l1")
	registry := newTestRegistry(t, h)

	_, err := registry.Create(ctx, "alice", QueueFilter{})
	require.NoError(t, err)

	assert.Equal(t, 0, registry.SweepIdle(h.clock.Now().Add(10*time.Minute)))
	assert.Equal(t, 1, registry.SweepIdle(h.clock.Now().Add(15*time.Minute)))
	assert.Equal(t, 0, registry.Len())

	h.claims.Wait()
	assert.Empty(t, getLead(t, h.store, l1.ID.Hex()).ClaimedBy)
}

func TestRegistry_AdvancePast(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l1 := seedLead(t, h.store, "l1")
	l2 := seedLead(t, h.store, "l2", createdAt(t0.Add(time.Minute)))
	registry := newTestRegistry(t, h)

	session, err := registry.Create(ctx, "alice", QueueFilter{})
	require.NoError(t, err)

	assert.False(t, registry.AdvancePast(ctx, "alice", l2.ID.Hex()), "不是当前线索")
	assert.False(t, registry.AdvancePast(ctx, "bob", l1.ID.Hex()), "没有会话")

	assert.True(t, registry.AdvancePast(ctx, "alice", l1.ID.Hex()))
	assert.Equal(t, l2.ID.Hex(), currentID(t, session))
}

func TestRegistry_CloseAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedLead(t, h.store, "l1")
	seedLead(t, h.store, "l2", createdAt(t0.Add(time.Minute)))
	registry := newTestRegistry(t, h)

	_, err := registry.Create(ctx, "alice", QueueFilter{})
	require.NoError(t, err)
	_, err = registry.Create(ctx, "bob", QueueFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, registry.Len())

	registry.CloseAll()
	assert.Equal(t, 0, registry.Len())
	h.claims.Wait()

	leads, err := h.store.List(ctx, repository.LeadQuery{})
	require.NoError(t, err)
	for _, lead := range leads {
		assert.Empty(t, lead.ClaimedBy)
	}
}

func TestRegistry_ConcurrentCreateKeepsOneSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l1 := seedLead(t, h.store, "l1")
	registry := newTestRegistry(t, h)

	const n = 8
	created := make([]*DialerSession, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session, err := registry.Create(ctx, "alice", QueueFilter{})
			if err == nil {
				created[i] = session
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, registry.Len())
	winner, ok := registry.ForCaller("alice")
	require.True(t, ok)

	for _, session := range created {
		if session == nil || session == winner {
			continue
		}
		_, err := session.Next(ctx)
		assert.ErrorIs(t, err, ErrInvalidState, "被替换的会话已关闭")
	}

	h.claims.Wait()
	assert.Equal(t, l1.ID.Hex(), currentID(t, winner))
	assert.Equal(t, "alice", getLead(t, h.store, l1.ID.Hex()).ClaimedBy)
}
