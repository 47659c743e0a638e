package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BerniceZTT/dialer_end/models"
	"github.com/BerniceZTT/dialer_end/repository"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const waitFor = time.Second
const tick = 5 * time.Millisecond

func currentID(t *testing.T, s *DialerSession) string {
	t.Helper()
	lead, err := s.Current()
	require.NoError(t, err)
	return lead.ID.Hex()
}

func TestSession_StartClaimsFirstLead(t *testing.T) {
	h := newHarness(t)
	l1 := seedLead(t, h.store, "l1")
	seedLead(t, h.store, "l2", createdAt(t0.Add(time.Minute)))

	s := h.newSession(t, "alice", QueueFilter{})
	assert.Equal(t, l1.ID.Hex(), currentID(t, s))
	assert.Equal(t, StateClaimed, s.State())
	assert.Equal(t, "alice", getLead(t, h.store, l1.ID.Hex()).ClaimedBy)

	view := s.View()
	assert.Equal(t, 0, view.Index)
	assert.Equal(t, 2, view.QueueLength)
}

func TestSession_EmptyQueue(t *testing.T) {
	h := newHarness(t)
	s := h.newSession(t, "alice", QueueFilter{})

	_, err := s.Current()
	assert.ErrorIs(t, err, ErrNoLead)
	assert.Equal(t, StateIdle, s.State())

	// 新线索到达后自动占用
	l1 := seedLead(t, h.store, "l1")
	require.Eventually(t, func() bool {
		lead, err := s.Current()
		return err == nil && lead.ID == l1.ID
	}, waitFor, tick)
}

func TestSession_TwoCallersNeverShareLead(t *testing.T) {
	h := newHarness(t)
	l1 := seedLead(t, h.store, "l1")
	l2 := seedLead(t, h.store, "l2", createdAt(t0.Add(time.Minute)))

	alice := h.newSession(t, "alice", QueueFilter{})
	bob := h.newSession(t, "bob", QueueFilter{})

	assert.Equal(t, l1.ID.Hex(), currentID(t, alice))
	assert.Equal(t, l2.ID.Hex(), currentID(t, bob))
}

func TestSession_NextAndPrevious(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l1 := seedLead(t, h.store, "l1")
	l2 := seedLead(t, h.store, "l2", createdAt(t0.Add(time.Minute)))
	l3 := seedLead(t, h.store, "l3", createdAt(t0.Add(2*time.Minute)))

	s := h.newSession(t, "alice", QueueFilter{})

	next, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, l2.ID, next.ID)
	h.claims.Wait()
	assert.Empty(t, getLead(t, h.store, l1.ID.Hex()).ClaimedBy, "跳过的线索被释放")
	assert.Equal(t, "alice", getLead(t, h.store, l2.ID.Hex()).ClaimedBy)

	prev, err := s.Previous(ctx)
	require.NoError(t, err)
	assert.Equal(t, l1.ID, prev.ID)

	_, err = s.Next(ctx)
	require.NoError(t, err)
	last, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, l3.ID, last.ID)

	t.Run("越过末尾", func(t *testing.T) {
		_, err := s.Next(ctx)
		assert.ErrorIs(t, err, ErrNoLead)
		assert.True(t, s.View().Exhausted)

		// 刷新不会自动重新占用
		time.Sleep(60 * time.Millisecond)
		_, err = s.Current()
		assert.ErrorIs(t, err, ErrNoLead)

		back, err := s.Previous(ctx)
		require.NoError(t, err)
		assert.Equal(t, l3.ID, back.ID)
	})
}

func TestSession_PreviousAtStart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l1 := seedLead(t, h.store, "l1")

	s := h.newSession(t, "alice", QueueFilter{})
	_, err := s.Previous(ctx)
	assert.ErrorIs(t, err, ErrNoLead)
	assert.Equal(t, -1, s.View().Index)

	lead, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, l1.ID, lead.ID)
}

func TestSession_SkipsLeadClaimedByOthers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedLead(t, h.store, "l1")
	l2 := seedLead(t, h.store, "l2", createdAt(t0.Add(time.Minute)))
	l3 := seedLead(t, h.store, "l3", createdAt(t0.Add(2*time.Minute)))

	s := h.newSession(t, "alice", QueueFilter{})
	_, err := h.claims.Claim(ctx, l2.ID.Hex(), "bob")
	require.NoError(t, err)

	next, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, l3.ID, next.ID)
	assert.Equal(t, "bob", getLead(t, h.store, l2.ID.Hex()).ClaimedBy)
}

func TestSession_RenewsWhileHolding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l1 := seedLead(t, h.store, "l1")
	h.newSession(t, "alice", QueueFilter{})

	h.clock.Set(t0.Add(4 * time.Minute))
	require.Eventually(t, func() bool {
		lead := getLead(t, h.store, l1.ID.Hex())
		return lead.ClaimedAt != nil && lead.ClaimedAt.Equal(t0.Add(4*time.Minute))
	}, waitFor, tick)

	h.clock.Set(t0.Add(6 * time.Minute))
	_, err := h.claims.Claim(ctx, l1.ID.Hex(), "bob")
	assert.ErrorIs(t, err, ErrLeaseHeld)
}

func TestSession_RenewalStopsWhenLeadChanges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l1 := seedLead(t, h.store, "l1")
	seedLead(t, h.store, "l2", createdAt(t0.Add(time.Minute)))

	s := h.newSession(t, "alice", QueueFilter{})
	_, err := s.Next(ctx)
	require.NoError(t, err)
	h.claims.Wait()

	_, err = h.claims.Claim(ctx, l1.ID.Hex(), "bob")
	require.NoError(t, err)

	lost := testutil.ToFloat64(renewalsTotal.WithLabelValues("lost"))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, lost, testutil.ToFloat64(renewalsTotal.WithLabelValues("lost")), "旧线索的续约已停止")
	assert.Equal(t, "bob", getLead(t, h.store, l1.ID.Hex()).ClaimedBy)
}

func TestSession_CallAndOutcome(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l1 := seedLead(t, h.store, "l1")
	l2 := seedLead(t, h.store, "l2", createdAt(t0.Add(time.Minute)))

	s := h.newSession(t, "alice", QueueFilter{})

	require.NoError(t, s.Dial(ctx))
	require.Eventually(t, func() bool { return s.State() == StateInCall }, waitFor, tick)

	require.NoError(t, s.Mute(true))
	assert.True(t, s.View().Muted)
	require.NoError(t, s.SendDigit('5'))
	assert.ErrorIs(t, s.SendDigit('x'), ErrInvalidInput)

	_, _, err := s.RecordOutcome(ctx, OutcomeInput{Outcome: models.OutcomeInterested})
	assert.ErrorIs(t, err, ErrInvalidState, "通话中不能记录结果")

	h.clock.Advance(90 * time.Second)
	require.NoError(t, s.HangUp())
	assert.Equal(t, StateAwaitingOutcome, s.State())
	assert.Equal(t, 90, s.View().LastCallDuration)
	assert.ErrorIs(t, s.HangUp(), ErrInvalidState)

	record, next, err := s.RecordOutcome(ctx, OutcomeInput{Outcome: models.OutcomeInterested, Description: "想了解车队套餐"})
	require.NoError(t, err)
	assert.Equal(t, models.InteractionCall, record.Type)
	assert.Equal(t, models.OutcomeInterested, record.Outcome)
	assert.Equal(t, 90, record.DurationSeconds)
	require.NotNil(t, next)
	assert.Equal(t, l2.ID, next.ID)
	assert.Equal(t, StateClaimed, s.State())

	h.claims.Wait()
	done := getLead(t, h.store, l1.ID.Hex())
	assert.Empty(t, done.ClaimedBy)
	assert.NotNil(t, done.LastContactedAt)
	assert.Equal(t, models.StageNew, done.Stage)
}

// pendingTelephony 记录每次拨号，接通事件由测试控制
type pendingTelephony struct {
	mu    sync.Mutex
	calls []*pendingCall
}

type pendingCall struct {
	events chan CallEvent
	hungUp bool
}

func (p *pendingTelephony) PlaceCall(context.Context, string) (CallHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	call := &pendingCall{events: make(chan CallEvent, 2)}
	p.calls = append(p.calls, call)
	return call, nil
}

func (p *pendingTelephony) placed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (c *pendingCall) HangUp() error {
	if !c.hungUp {
		c.hungUp = true
		c.events <- CallEvent{Type: CallDisconnected}
		close(c.events)
	}
	return nil
}

func (c *pendingCall) Mute(bool) error { return nil }

func (c *pendingCall) SendDigit(rune) error { return nil }

func (c *pendingCall) Events() <-chan CallEvent { return c.events }

func TestSession_DialTwiceBeforeConnect(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedLead(t, h.store, "l1")
	telephony := &pendingTelephony{}
	h.deps.Telephony = telephony

	s := h.newSession(t, "alice", QueueFilter{})
	require.NoError(t, s.Dial(ctx))
	assert.Equal(t, StateClaimed, s.State(), "尚未接通")

	assert.ErrorIs(t, s.Dial(ctx), ErrInvalidState)
	assert.Equal(t, 1, telephony.placed())

	require.NoError(t, s.HangUp())
	assert.True(t, telephony.calls[0].hungUp)
	assert.Equal(t, StateAwaitingOutcome, s.State())

	// 挂断后可以重拨
	require.NoError(t, s.Dial(ctx))
	assert.Equal(t, 2, telephony.placed())
}

func TestSession_DialRequiresPhone(t *testing.T) {
	h := newHarness(t)
	seedLead(t, h.store, "l1", func(l *models.Lead) { l.Phone = "" })

	s := h.newSession(t, "alice", QueueFilter{})
	assert.ErrorIs(t, s.Dial(context.Background()), ErrInvalidInput)
	assert.Equal(t, StateClaimed, s.State())
}

func TestSession_LogEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l1 := seedLead(t, h.store, "l1")
	s := h.newSession(t, "alice", QueueFilter{})

	isL1 := mock.MatchedBy(func(lead *models.Lead) bool { return lead.ID == l1.ID })

	h.messenger.On("ComposeEmail", mock.Anything, isL1).Return(true, nil).Once()
	record, err := s.LogEmail(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, models.InteractionEmail, record.Type)
	assert.Contains(t, record.Description, l1.Email)

	h.claims.Wait()
	assert.Equal(t, "alice", getLead(t, h.store, l1.ID.Hex()).ClaimedBy, "邮件不释放占用")
	assert.Equal(t, l1.ID.Hex(), currentID(t, s), "邮件不前进")

	h.messenger.On("ComposeEmail", mock.Anything, isL1).Return(false, nil).Once()
	_, err = s.LogEmail(ctx, "")
	assert.ErrorIs(t, err, ErrEmailNotSent)
	assert.Len(t, h.store.Interactions(), 1)

	h.messenger.AssertExpectations(t)
}

func TestSession_SetFilter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l1 := seedLead(t, h.store, "l1")
	fleet := seedLead(t, h.store, "fleet", category(models.CategoryFleet), createdAt(t0.Add(time.Minute)))

	s := h.newSession(t, "alice", QueueFilter{})
	assert.Equal(t, l1.ID.Hex(), currentID(t, s))

	require.NoError(t, s.SetFilter(ctx, QueueFilter{Categories: []string{models.CategoryFleet}}))
	assert.Equal(t, fleet.ID.Hex(), currentID(t, s))
	assert.Equal(t, 1, s.View().QueueLength)

	h.claims.Wait()
	assert.Empty(t, getLead(t, h.store, l1.ID.Hex()).ClaimedBy)
}

func TestSession_TracksCurrentLeadAcrossReorder(t *testing.T) {
	h := newHarness(t)
	l1 := seedLead(t, h.store, "l1", tier(models.Tier2))
	s := h.newSession(t, "alice", QueueFilter{})

	urgent := seedLead(t, h.store, "urgent", tier(models.Tier1))
	require.Eventually(t, func() bool {
		view := s.View()
		return view.QueueLength == 2 && view.Index == 1 && view.Current != nil && view.Current.ID == l1.ID
	}, waitFor, tick)

	queue := s.Queue()
	assert.Equal(t, urgent.ID, queue[0].ID)
}

func TestSession_CurrentLeadLeavesQueue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l1 := seedLead(t, h.store, "l1")
	l2 := seedLead(t, h.store, "l2", createdAt(t0.Add(time.Minute)))
	s := h.newSession(t, "alice", QueueFilter{})

	contacted := models.StageContacted
	_, err := h.store.Update(ctx, l1.ID.Hex(), repository.LeadUpdate{Stage: &contacted, UpdatedAt: t0})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		lead, err := s.Current()
		return err == nil && lead.ID == l2.ID
	}, waitFor, tick)
	h.claims.Wait()
	assert.Empty(t, getLead(t, h.store, l1.ID.Hex()).ClaimedBy)
}

func TestSession_Close(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l1 := seedLead(t, h.store, "l1")
	s := h.newSession(t, "alice", QueueFilter{})

	s.Close()
	h.claims.Wait()
	assert.Empty(t, getLead(t, h.store, l1.ID.Hex()).ClaimedBy)

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)
	s.Close()
}
