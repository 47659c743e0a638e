package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BerniceZTT/dialer_end/models"
	"github.com/BerniceZTT/dialer_end/repository"

	"github.com/rs/zerolog"
)

// LeaseConfig 占用租约参数
type LeaseConfig struct {
	// Timeout 未续约的占用在此时长后自动失效
	Timeout time.Duration
	// RenewInterval 会话持有线索期间的续约间隔，应明显小于Timeout
	RenewInterval time.Duration
}

// DefaultLeaseConfig 5分钟租约，2分钟续约
func DefaultLeaseConfig() LeaseConfig {
	return LeaseConfig{
		Timeout:       5 * time.Minute,
		RenewInterval: 2 * time.Minute,
	}
}

// IsExpired 占用是否已过期。占用时间缺失视为过期。
func IsExpired(lead *models.Lead, now time.Time, timeout time.Duration) bool {
	if lead.ClaimedAt == nil {
		return true
	}
	return now.Sub(*lead.ClaimedAt) >= timeout
}

// IsAvailable 线索对callerID是否可用：未占用、本人占用或占用已过期
func IsAvailable(lead *models.Lead, callerID string, now time.Time, timeout time.Duration) bool {
	if lead.ClaimedBy == "" || lead.ClaimedBy == callerID {
		return true
	}
	return IsExpired(lead, now, timeout)
}

// ClaimManager 管理线索占用租约：条件占用、续约、释放
type ClaimManager struct {
	store  repository.ClaimStore
	cfg    LeaseConfig
	clock  Clock
	logger zerolog.Logger

	releaseTimeout time.Duration
	wg             sync.WaitGroup

	// 进行中的后台释放，按线索ID。同一线索的占用需等待释放完成。
	mu      sync.Mutex
	pending map[string]chan struct{}
}

// NewClaimManager 创建占用管理器
func NewClaimManager(store repository.ClaimStore, cfg LeaseConfig, clock Clock, logger zerolog.Logger) *ClaimManager {
	defaults := DefaultLeaseConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RenewInterval <= 0 {
		cfg.RenewInterval = defaults.RenewInterval
	}
	if clock == nil {
		clock = SystemClock
	}
	return &ClaimManager{
		store:          store,
		cfg:            cfg,
		clock:          clock,
		logger:         logger,
		releaseTimeout: 10 * time.Second,
		pending:        make(map[string]chan struct{}),
	}
}

// Now 当前时间
func (m *ClaimManager) Now() time.Time {
	return m.clock.Now()
}

// Timeout 租约时长
func (m *ClaimManager) Timeout() time.Duration {
	return m.cfg.Timeout
}

// RenewInterval 续约间隔
func (m *ClaimManager) RenewInterval() time.Duration {
	return m.cfg.RenewInterval
}

// IsExpired 按当前时间判断占用是否过期
func (m *ClaimManager) IsExpired(lead *models.Lead) bool {
	return IsExpired(lead, m.clock.Now(), m.cfg.Timeout)
}

// IsAvailable 按当前时间判断线索对callerID是否可用
func (m *ClaimManager) IsAvailable(lead *models.Lead, callerID string) bool {
	return IsAvailable(lead, callerID, m.clock.Now(), m.cfg.Timeout)
}

// Claim 占用线索。线索被他人持有且未过期时返回ErrLeaseHeld。
func (m *ClaimManager) Claim(ctx context.Context, leadID, callerID string) (*models.Lead, error) {
	if err := m.awaitRelease(ctx, leadID); err != nil {
		return nil, err
	}
	now := m.clock.Now()
	lead, err := m.store.AcquireClaim(ctx, leadID, callerID, now, now.Add(-m.cfg.Timeout))
	switch {
	case err == nil:
		claimsTotal.WithLabelValues("acquired").Inc()
		m.logger.Debug().Str("leadId", leadID).Str("callerId", callerID).Msg("占用线索")
		return lead, nil
	case errors.Is(err, repository.ErrClaimConflict):
		claimsTotal.WithLabelValues("conflict").Inc()
		m.logger.Info().Str("leadId", leadID).Str("callerId", callerID).Msg("线索已被其他坐席占用")
		return nil, ErrLeaseHeld
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrInvalidID):
		claimsTotal.WithLabelValues("not_found").Inc()
		return nil, ErrLeadNotFound
	default:
		claimsTotal.WithLabelValues("error").Inc()
		m.logger.Error().Err(err).Str("leadId", leadID).Str("callerId", callerID).Msg("占用线索失败")
		return nil, err
	}
}

// Renew 续约。占用已被他人接管时返回ErrLeaseLost。
func (m *ClaimManager) Renew(ctx context.Context, leadID, callerID string) (*models.Lead, error) {
	lead, err := m.store.RenewClaim(ctx, leadID, callerID, m.clock.Now())
	switch {
	case err == nil:
		renewalsTotal.WithLabelValues("renewed").Inc()
		m.logger.Debug().Str("leadId", leadID).Str("callerId", callerID).Msg("续约成功")
		return lead, nil
	case errors.Is(err, repository.ErrNotClaimOwner):
		renewalsTotal.WithLabelValues("lost").Inc()
		m.logger.Warn().Str("leadId", leadID).Str("callerId", callerID).Msg("续约失败，占用已被接管")
		return nil, ErrLeaseLost
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrInvalidID):
		renewalsTotal.WithLabelValues("lost").Inc()
		return nil, ErrLeadNotFound
	default:
		renewalsTotal.WithLabelValues("error").Inc()
		m.logger.Warn().Err(err).Str("leadId", leadID).Str("callerId", callerID).Msg("续约失败，租约可能过期")
		return nil, err
	}
}

// Release 释放本人持有的占用。线索未占用、由他人占用或已删除时不报错也不做修改。
func (m *ClaimManager) Release(ctx context.Context, leadID, callerID string) error {
	released, err := m.store.ReleaseClaim(ctx, leadID, callerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidID) {
			releasesTotal.WithLabelValues("noop").Inc()
			return nil
		}
		releasesTotal.WithLabelValues("error").Inc()
		return err
	}
	if released {
		releasesTotal.WithLabelValues("released").Inc()
		m.logger.Debug().Str("leadId", leadID).Str("callerId", callerID).Msg("释放占用")
	} else {
		releasesTotal.WithLabelValues("noop").Inc()
	}
	return nil
}

// ReleaseAsync 后台释放占用，不阻塞调用方。失败只记录日志，租约会自行过期。
// 之后对同一线索的Claim会等待本次释放完成，避免迟到的释放清掉新占用。
func (m *ClaimManager) ReleaseAsync(leadID, callerID string) {
	done := make(chan struct{})
	m.mu.Lock()
	prev := m.pending[leadID]
	m.pending[leadID] = done
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			close(done)
			m.mu.Lock()
			if m.pending[leadID] == done {
				delete(m.pending, leadID)
			}
			m.mu.Unlock()
		}()
		if prev != nil {
			<-prev
		}
		ctx, cancel := context.WithTimeout(context.Background(), m.releaseTimeout)
		defer cancel()
		if err := m.Release(ctx, leadID, callerID); err != nil {
			m.logger.Warn().Err(err).Str("leadId", leadID).Str("callerId", callerID).Msg("释放占用失败，等待租约自动过期")
		}
	}()
}

// awaitRelease 等待同一线索进行中的后台释放
func (m *ClaimManager) awaitRelease(ctx context.Context, leadID string) error {
	m.mu.Lock()
	done := m.pending[leadID]
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait 等待所有后台释放完成
func (m *ClaimManager) Wait() {
	m.wg.Wait()
}

// SweepExpired 清理过期占用字段。可用性判断不依赖此清理。
func (m *ClaimManager) SweepExpired(ctx context.Context) (int64, error) {
	cleared, err := m.store.ClearExpiredClaims(ctx, m.clock.Now().Add(-m.cfg.Timeout))
	if err != nil {
		m.logger.Error().Err(err).Msg("清理过期占用失败")
		return 0, err
	}
	if cleared > 0 {
		expiredClaimsCleared.Add(float64(cleared))
		m.logger.Info().Int64("cleared", cleared).Msg("已清理过期占用")
	}
	return cleared, nil
}
