package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionRegistry 服务端外呼会话表，每个坐席最多一个会话
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*DialerSession
	byCaller map[string]string
	// 同一坐席的创建串行执行，旧会话的释放先于新会话的占用
	creating map[string]*sync.Mutex

	deps        SessionDeps
	idleTimeout time.Duration
	logger      zerolog.Logger
}

// NewSessionRegistry 创建会话表。idleTimeout内无操作的会话会被回收。
func NewSessionRegistry(deps SessionDeps, idleTimeout time.Duration) *SessionRegistry {
	if deps.Clock == nil {
		deps.Clock = SystemClock
	}
	if idleTimeout <= 0 {
		idleTimeout = 15 * time.Minute
	}
	return &SessionRegistry{
		sessions:    make(map[string]*DialerSession),
		byCaller:    make(map[string]string),
		creating:    make(map[string]*sync.Mutex),
		deps:        deps,
		idleTimeout: idleTimeout,
		logger:      deps.Logger,
	}
}

// Create 为坐席创建新会话，已有会话会先关闭
func (r *SessionRegistry) Create(ctx context.Context, callerID string, filter QueueFilter) (*DialerSession, error) {
	if callerID == "" {
		return nil, ErrInvalidInput
	}
	lock := r.creationLock(callerID)
	lock.Lock()
	defer lock.Unlock()

	if old := r.detachCaller(callerID); old != nil {
		old.Close()
	}

	session := NewDialerSession(uuid.NewString(), callerID, filter, r.deps)
	if err := session.Start(ctx); err != nil {
		session.Close()
		return nil, err
	}

	r.mu.Lock()
	r.sessions[session.ID()] = session
	r.byCaller[callerID] = session.ID()
	r.mu.Unlock()

	activeSessions.Inc()
	r.logger.Info().Str("sessionId", session.ID()).Str("callerId", callerID).Msg("创建外呼会话")
	return session, nil
}

func (r *SessionRegistry) creationLock(callerID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.creating[callerID]
	if !ok {
		lock = &sync.Mutex{}
		r.creating[callerID] = lock
	}
	return lock
}

func (r *SessionRegistry) detachCaller(callerID string) *DialerSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byCaller[callerID]
	if !ok {
		return nil
	}
	return r.removeLocked(id)
}

// removeLocked 调用方必须持有锁
func (r *SessionRegistry) removeLocked(id string) *DialerSession {
	session, ok := r.sessions[id]
	if !ok {
		return nil
	}
	delete(r.sessions, id)
	if r.byCaller[session.CallerID()] == id {
		delete(r.byCaller, session.CallerID())
	}
	activeSessions.Dec()
	return session
}

// Get 获取会话，会话不属于callerID时视为不存在
func (r *SessionRegistry) Get(id, callerID string) (*DialerSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok || session.CallerID() != callerID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ForCaller 获取坐席当前会话
func (r *SessionRegistry) ForCaller(callerID string) (*DialerSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byCaller[callerID]
	if !ok {
		return nil, false
	}
	return r.sessions[id], true
}

// Close 关闭会话
func (r *SessionRegistry) Close(id, callerID string) error {
	r.mu.Lock()
	session, ok := r.sessions[id]
	if !ok || session.CallerID() != callerID {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	r.removeLocked(id)
	r.mu.Unlock()

	session.Close()
	return nil
}

// AdvancePast 会话外记录了结果的线索若是坐席的当前线索，则会话前进到下一条
func (r *SessionRegistry) AdvancePast(ctx context.Context, callerID, leadID string) bool {
	session, ok := r.ForCaller(callerID)
	if !ok {
		return false
	}
	return session.AdvancePast(ctx, leadID)
}

// SweepIdle 关闭长时间无操作的会话，停止续约后租约自行过期
func (r *SessionRegistry) SweepIdle(now time.Time) int {
	r.mu.Lock()
	var stale []*DialerSession
	for id, session := range r.sessions {
		if now.Sub(session.IdleSince()) >= r.idleTimeout {
			stale = append(stale, r.removeLocked(id))
		}
	}
	r.mu.Unlock()

	for _, session := range stale {
		r.logger.Info().Str("sessionId", session.ID()).Str("callerId", session.CallerID()).Msg("回收空闲外呼会话")
		session.Close()
	}
	return len(stale)
}

// RunSweeper 定期回收空闲会话
func (r *SessionRegistry) RunSweeper(ctx context.Context, interval time.Duration) error {
	return RunEvery(ctx, interval, "session-sweeper", func(context.Context) error {
		r.SweepIdle(r.deps.Clock.Now())
		return nil
	})
}

// Len 会话数量
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll 关闭全部会话
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	var all []*DialerSession
	for id := range r.sessions {
		all = append(all, r.removeLocked(id))
	}
	r.mu.Unlock()

	for _, session := range all {
		session.Close()
	}
}
