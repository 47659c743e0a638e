package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BerniceZTT/dialer_end/models"

	"github.com/rs/zerolog"
)

// SessionState 外呼会话状态
type SessionState string

const (
	StateIdle            SessionState = "idle"
	StateClaimed         SessionState = "claimed"
	StateInCall          SessionState = "in_call"
	StateAwaitingOutcome SessionState = "awaiting_outcome"
)

// SessionDeps 会话依赖的协作方
type SessionDeps struct {
	Claims    *ClaimManager
	Projector *QueueProjector
	Ledger    *Ledger
	Telephony Telephony
	Messenger Messenger
	Clock     Clock
	Logger    zerolog.Logger
}

// OutcomeInput 会话内记录的结果
type OutcomeInput struct {
	Type        models.InteractionType `json:"type"`
	Outcome     models.Outcome         `json:"outcome"`
	Description string                 `json:"description"`
}

// SessionView 会话状态快照
type SessionView struct {
	ID               string       `json:"id"`
	CallerID         string       `json:"callerId"`
	State            SessionState `json:"state"`
	Filter           QueueFilter  `json:"filter"`
	Index            int          `json:"index"`
	QueueLength      int          `json:"queueLength"`
	Current          *models.Lead `json:"current,omitempty"`
	Muted            bool         `json:"muted"`
	LastCallDuration int          `json:"lastCallDuration"`
	Exhausted        bool         `json:"exhausted"`
	LastActivityAt   time.Time    `json:"lastActivityAt"`
}

// DialerSession 单个坐席在队列上的游标。同一会话内的操作串行执行。
type DialerSession struct {
	id       string
	callerID string
	deps     SessionDeps
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	filter    QueueFilter
	queue     []models.Lead
	index     int
	state     SessionState
	current   *models.Lead
	detached  bool // 当前线索已不在最新队列中
	exhausted bool // 游标越过队列两端，需重新设置筛选条件
	closed    bool

	renewCancel context.CancelFunc
	subCancel   context.CancelFunc

	call          CallHandle
	callGen       int
	callStartedAt time.Time
	lastDuration  int
	muted         bool

	lastActivity time.Time
}

// NewDialerSession 创建会话，调用Start后开始工作
func NewDialerSession(id, callerID string, filter QueueFilter, deps SessionDeps) *DialerSession {
	if deps.Clock == nil {
		deps.Clock = SystemClock
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DialerSession{
		id:           id,
		callerID:     callerID,
		deps:         deps,
		logger:       deps.Logger.With().Str("sessionId", id).Str("callerId", callerID).Logger(),
		ctx:          ctx,
		cancel:       cancel,
		filter:       filter.Normalize(),
		state:        StateIdle,
		lastActivity: deps.Clock.Now(),
	}
}

// ID 会话ID
func (s *DialerSession) ID() string { return s.id }

// CallerID 会话所属坐席
func (s *DialerSession) CallerID() string { return s.callerID }

// Start 订阅队列并占用第一条线索。队列为空不视为错误。
func (s *DialerSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrInvalidState
	}
	s.touch()
	return s.subscribe(ctx)
}

// subscribe 调用方必须持有锁
func (s *DialerSession) subscribe(ctx context.Context) error {
	if s.subCancel != nil {
		s.subCancel()
		s.subCancel = nil
	}

	leads, err := s.deps.Projector.Snapshot(ctx, s.filter, s.callerID)
	if err != nil {
		return err
	}

	subCtx, subCancel := context.WithCancel(s.ctx)
	updates, err := s.deps.Projector.Subscribe(subCtx, s.filter, s.callerID)
	if err != nil {
		subCancel()
		return err
	}
	s.subCancel = subCancel

	s.queue = leads
	s.index = 0
	s.exhausted = false
	if len(leads) > 0 {
		if err := s.selectAt(ctx, 0, false); err != nil && !errors.Is(err, ErrNoLead) {
			s.logger.Warn().Err(err).Msg("选择首条线索失败")
		}
	}

	filter := s.filter
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for leads := range updates {
			s.applySnapshot(filter, leads)
		}
	}()
	return nil
}

// applySnapshot 用最新视图刷新队列，并按ID跟踪当前线索
func (s *DialerSession) applySnapshot(filter QueueFilter, leads []models.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !sameFilter(filter, s.filter) {
		return
	}
	s.queue = leads

	if s.current != nil {
		if i := indexOf(leads, s.current.ID.Hex()); i >= 0 {
			s.index = i
			s.detached = false
			lead := leads[i]
			s.current = &lead
			return
		}
		s.detached = true
		// 通话中或待记录结果时保留当前线索
		if s.state != StateClaimed {
			return
		}
		s.logger.Info().Str("leadId", s.current.ID.Hex()).Msg("当前线索已离开队列")
		s.dropCurrent(true)
		s.autoSelect()
		return
	}

	if !s.exhausted {
		s.autoSelect()
	}
}

// autoSelect 调用方必须持有锁
func (s *DialerSession) autoSelect() {
	if s.index < 0 || s.index >= len(s.queue) {
		return
	}
	if err := s.selectAt(s.ctx, s.index, false); err != nil && !errors.Is(err, ErrNoLead) {
		s.logger.Warn().Err(err).Msg("自动选择线索失败")
	}
}

// selectAt 占用第i条线索并开始续约。线索被他人占用时从本地队列移除，
// 向后移动时尝试同一位置，向前移动时尝试上一条。调用方必须持有锁，且已放弃之前的线索。
func (s *DialerSession) selectAt(ctx context.Context, i int, backward bool) error {
	for {
		if i < 0 {
			s.index = -1
			return ErrNoLead
		}
		if i >= len(s.queue) {
			s.index = len(s.queue)
			return ErrNoLead
		}

		lead := s.queue[i]
		leadID := lead.ID.Hex()
		claimed, err := s.deps.Claims.Claim(ctx, leadID, s.callerID)
		switch {
		case err == nil:
			lead = *claimed
		case errors.Is(err, ErrLeaseHeld), errors.Is(err, ErrLeadNotFound):
			s.queue = append(append([]models.Lead{}, s.queue[:i]...), s.queue[i+1:]...)
			if backward {
				i--
			}
			continue
		default:
			// 占用失败不阻塞坐席，续约会自行恢复
			s.logger.Warn().Err(err).Str("leadId", leadID).Msg("占用线索失败，继续处理")
		}

		s.index = i
		s.current = &lead
		s.detached = false
		s.exhausted = false
		s.state = StateClaimed
		s.startRenewal(leadID)
		return nil
	}
}

// startRenewal 为当前线索启动续约，线索变化时取消。调用方必须持有锁。
func (s *DialerSession) startRenewal(leadID string) {
	if s.renewCancel != nil {
		s.renewCancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.renewCancel = cancel

	interval := s.deps.Claims.RenewInterval()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.deps.Claims.Renew(ctx, leadID, s.callerID); err != nil && ctx.Err() == nil {
					s.logger.Warn().Err(err).Str("leadId", leadID).Msg("续约失败")
				}
			}
		}
	}()
}

// dropCurrent 放弃当前线索：停止续约，挂断通话，可选后台释放占用。调用方必须持有锁。
func (s *DialerSession) dropCurrent(release bool) {
	if s.renewCancel != nil {
		s.renewCancel()
		s.renewCancel = nil
	}
	s.callGen++
	if s.call != nil {
		if err := s.call.HangUp(); err != nil {
			s.logger.Warn().Err(err).Msg("挂断通话失败")
		}
		s.call = nil
	}
	if s.current != nil && release {
		s.deps.Claims.ReleaseAsync(s.current.ID.Hex(), s.callerID)
	}
	s.current = nil
	s.state = StateIdle
	s.muted = false
	s.lastDuration = 0
}

// move 放弃当前线索并移动游标，越过两端时标记为已耗尽
func (s *DialerSession) move(ctx context.Context, target int, release bool) (*models.Lead, error) {
	backward := target < s.index
	s.dropCurrent(release)
	if err := s.selectAt(ctx, target, backward); err != nil {
		if errors.Is(err, ErrNoLead) {
			s.exhausted = true
		}
		return nil, err
	}
	lead := *s.current
	return &lead, nil
}

func (s *DialerSession) nextIndex() int {
	if s.current != nil && s.detached {
		return s.index
	}
	return s.index + 1
}

func (s *DialerSession) touch() {
	s.lastActivity = s.deps.Clock.Now()
}

func (s *DialerSession) checkOpen() error {
	if s.closed {
		return fmt.Errorf("%w: 会话已关闭", ErrInvalidState)
	}
	return nil
}

// Current 当前线索
func (s *DialerSession) Current() (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ErrNoLead
	}
	lead := *s.current
	return &lead, nil
}

// Next 跳过当前线索，释放后移动到下一条
func (s *DialerSession) Next(ctx context.Context) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.touch()
	return s.move(ctx, s.nextIndex(), true)
}

// Previous 释放当前线索并回到上一条
func (s *DialerSession) Previous(ctx context.Context) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.touch()
	return s.move(ctx, s.index-1, true)
}

// Dial 拨打当前线索的电话
func (s *DialerSession) Dial(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.touch()
	if s.current == nil {
		return ErrNoLead
	}
	if s.state != StateClaimed && s.state != StateAwaitingOutcome {
		return fmt.Errorf("%w: 当前状态 %s 不能拨号", ErrInvalidState, s.state)
	}
	if s.call != nil {
		return fmt.Errorf("%w: 已有进行中的通话", ErrInvalidState)
	}
	if strings.TrimSpace(s.current.Phone) == "" {
		return fmt.Errorf("%w: 线索没有电话号码", ErrInvalidInput)
	}
	if s.deps.Telephony == nil {
		return fmt.Errorf("%w: 未配置外呼能力", ErrInvalidState)
	}

	call, err := s.deps.Telephony.PlaceCall(ctx, s.current.Phone)
	if err != nil {
		return err
	}
	s.callGen++
	s.call = call
	s.callStartedAt = s.deps.Clock.Now()
	s.lastDuration = 0
	s.muted = false
	s.state = StateClaimed

	gen := s.callGen
	s.wg.Add(1)
	go s.watchCall(gen, call.Events())
	return nil
}

// watchCall 根据通话事件推进状态，过期的通话事件被忽略
func (s *DialerSession) watchCall(gen int, events <-chan CallEvent) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.mu.Lock()
			if gen != s.callGen {
				s.mu.Unlock()
				continue
			}
			switch ev.Type {
			case CallConnected:
				if s.state == StateClaimed {
					s.state = StateInCall
				}
			case CallDisconnected:
				s.lastDuration = ev.DurationSeconds
				s.call = nil
				s.muted = false
				if s.state == StateInCall || s.state == StateClaimed {
					s.state = StateAwaitingOutcome
				}
			}
			s.mu.Unlock()
		}
	}
}

// HangUp 挂断当前通话，进入待记录结果状态
func (s *DialerSession) HangUp() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.touch()
	if s.call == nil {
		return fmt.Errorf("%w: 没有进行中的通话", ErrInvalidState)
	}
	if err := s.call.HangUp(); err != nil {
		return err
	}
	s.call = nil
	s.muted = false
	s.lastDuration = int(s.deps.Clock.Now().Sub(s.callStartedAt).Seconds())
	s.state = StateAwaitingOutcome
	return nil
}

// Mute 静音或取消静音
func (s *DialerSession) Mute(muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.touch()
	if s.call == nil {
		return fmt.Errorf("%w: 没有进行中的通话", ErrInvalidState)
	}
	if err := s.call.Mute(muted); err != nil {
		return err
	}
	s.muted = muted
	return nil
}

// SendDigit 发送按键
func (s *DialerSession) SendDigit(digit rune) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.touch()
	if s.call == nil {
		return fmt.Errorf("%w: 没有进行中的通话", ErrInvalidState)
	}
	return s.call.SendDigit(digit)
}

// RecordOutcome 记录当前线索的结果并前进到下一条。
// 记录写入失败时不前进；占用由记录簿释放。
func (s *DialerSession) RecordOutcome(ctx context.Context, input OutcomeInput) (*models.Interaction, *models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, nil, err
	}
	s.touch()
	if s.current == nil {
		return nil, nil, ErrNoLead
	}
	if s.state == StateInCall {
		return nil, nil, fmt.Errorf("%w: 请先挂断通话", ErrInvalidState)
	}
	if input.Type == "" {
		input.Type = models.InteractionCall
	}

	entry := LogEntry{
		LeadID:          s.current.ID.Hex(),
		Type:            input.Type,
		Description:     input.Description,
		Outcome:         input.Outcome,
		ActorID:         s.callerID,
		DurationSeconds: s.lastDuration,
		ManualOutcome:   true,
	}
	record, err := s.deps.Ledger.Log(ctx, entry)
	if err != nil {
		return nil, nil, err
	}

	// 记录簿已释放的占用不再重复释放
	next, err := s.move(ctx, s.nextIndex(), !entry.releasesClaim())
	if err != nil && !errors.Is(err, ErrNoLead) {
		return record, nil, err
	}
	return record, next, nil
}

// LogEmail 撰写邮件并记录email类型互动，不释放占用
func (s *DialerSession) LogEmail(ctx context.Context, description string) (*models.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.touch()
	if s.current == nil {
		return nil, ErrNoLead
	}
	if strings.TrimSpace(s.current.Email) == "" {
		return nil, fmt.Errorf("%w: 线索没有邮箱", ErrInvalidInput)
	}
	if s.deps.Messenger == nil {
		return nil, ErrEmailNotSent
	}

	lead := *s.current
	sent, err := s.deps.Messenger.ComposeEmail(ctx, &lead)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmailNotSent, err)
	}
	if !sent {
		return nil, ErrEmailNotSent
	}
	if description == "" {
		description = "发送邮件至 " + lead.Email
	}
	return s.deps.Ledger.Log(ctx, LogEntry{
		LeadID:      lead.ID.Hex(),
		Type:        models.InteractionEmail,
		Description: description,
		ActorID:     s.callerID,
	})
}

// SetFilter 更换筛选条件，释放当前线索并从新队列开头开始
func (s *DialerSession) SetFilter(ctx context.Context, filter QueueFilter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.touch()
	s.dropCurrent(true)
	s.filter = filter.Normalize()
	return s.subscribe(ctx)
}

// AdvancePast 线索在会话外被记录了结果时，若它是当前线索则前进到下一条
func (s *DialerSession) AdvancePast(ctx context.Context, leadID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.current == nil || s.current.ID.Hex() != leadID {
		return false
	}
	s.touch()
	if _, err := s.move(ctx, s.nextIndex(), false); err != nil && !errors.Is(err, ErrNoLead) {
		s.logger.Warn().Err(err).Msg("前进到下一条线索失败")
	}
	return true
}

// Close 关闭会话：停止续约和订阅，挂断通话，后台释放占用
func (s *DialerSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.dropCurrent(true)
	s.closed = true
	if s.subCancel != nil {
		s.subCancel()
		s.subCancel = nil
	}
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("外呼会话已关闭")
}

// View 当前状态快照
func (s *DialerSession) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := SessionView{
		ID:               s.id,
		CallerID:         s.callerID,
		State:            s.state,
		Filter:           s.filter,
		Index:            s.index,
		QueueLength:      len(s.queue),
		Muted:            s.muted,
		LastCallDuration: s.lastDuration,
		Exhausted:        s.exhausted,
		LastActivityAt:   s.lastActivity,
	}
	if s.current != nil {
		lead := *s.current
		view.Current = &lead
	}
	return view
}

// Queue 当前队列副本
func (s *DialerSession) Queue() []models.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Lead{}, s.queue...)
}

// State 当前状态
func (s *DialerSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IdleSince 最近一次操作时间
func (s *DialerSession) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func indexOf(leads []models.Lead, id string) int {
	for i := range leads {
		if leads[i].ID.Hex() == id {
			return i
		}
	}
	return -1
}

func sameFilter(a, b QueueFilter) bool {
	if a.Stage != b.Stage || len(a.Categories) != len(b.Categories) {
		return false
	}
	for i := range a.Categories {
		if a.Categories[i] != b.Categories[i] {
			return false
		}
	}
	return true
}
