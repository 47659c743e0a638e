package service

import (
	"context"
	"sort"
	"time"

	"github.com/BerniceZTT/dialer_end/models"
	"github.com/BerniceZTT/dialer_end/repository"

	"github.com/rs/zerolog"
)

// QueueFilter 单个会话的队列筛选条件
type QueueFilter struct {
	Stage      models.Stage `json:"stage"`
	Categories []string     `json:"categories"`
}

// Normalize 补齐默认值：阶段默认new，类别为空或包含all时不筛选
func (f QueueFilter) Normalize() QueueFilter {
	out := QueueFilter{Stage: f.Stage}
	if out.Stage == "" {
		out.Stage = models.StageNew
	}
	for _, c := range f.Categories {
		if c == "" {
			continue
		}
		if c == models.CategoryAll {
			out.Categories = nil
			return out
		}
		out.Categories = append(out.Categories, c)
	}
	return out
}

func (f QueueFilter) matchesCategory(category string) bool {
	if len(f.Categories) == 0 {
		return true
	}
	for _, c := range f.Categories {
		if c == models.CategoryAll || c == category {
			return true
		}
	}
	return false
}

// QueueProjector 为每个坐席计算可处理线索的有序视图
type QueueProjector struct {
	store   repository.LeadStore
	claims  *ClaimManager
	catalog *models.Catalog
	refresh time.Duration
	logger  zerolog.Logger
}

// NewQueueProjector 创建队列投影。refresh为无写入时的刷新间隔，租约过期不会产生写入。
func NewQueueProjector(store repository.LeadStore, claims *ClaimManager, catalog *models.Catalog, refresh time.Duration, logger zerolog.Logger) *QueueProjector {
	if catalog == nil {
		catalog = models.DefaultCatalog()
	}
	if refresh <= 0 {
		refresh = 5 * time.Second
	}
	return &QueueProjector{
		store:   store,
		claims:  claims,
		catalog: catalog,
		refresh: refresh,
		logger:  logger,
	}
}

// Project 筛选并排序线索，相同输入得到相同顺序。
// 排序：优先级排名，同排名按优先级名称，再按创建时间正序，最后按ID。
func (p *QueueProjector) Project(leads []models.Lead, filter QueueFilter, callerID string) []models.Lead {
	filter = filter.Normalize()
	now := p.claims.Now()
	timeout := p.claims.Timeout()

	result := make([]models.Lead, 0, len(leads))
	for i := range leads {
		lead := &leads[i]
		if !lead.IsActive || lead.Stage != filter.Stage || !filter.matchesCategory(lead.Category) {
			continue
		}
		if !IsAvailable(lead, callerID, now, timeout) {
			continue
		}
		result = append(result, *lead)
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := &result[i], &result[j]
		ra, rb := p.catalog.TierRank(a.Tier), p.catalog.TierRank(b.Tier)
		if ra != rb {
			return ra < rb
		}
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.Hex() < b.ID.Hex()
	})
	return result
}

// Snapshot 读取存储并计算当前视图
func (p *QueueProjector) Snapshot(ctx context.Context, filter QueueFilter, callerID string) ([]models.Lead, error) {
	filter = filter.Normalize()
	leads, err := p.store.List(ctx, repository.LeadQuery{
		Stage:      filter.Stage,
		Categories: filter.Categories,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, err
	}
	return p.Project(leads, filter, callerID), nil
}

// Subscribe 持续推送最新视图，存储写入或定时刷新时重新计算。
// 消费方来不及读取时只保留最新一份。ctx取消后关闭通道。
func (p *QueueProjector) Subscribe(ctx context.Context, filter QueueFilter, callerID string) (<-chan []models.Lead, error) {
	signals, err := p.store.Watch(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan []models.Lead, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(p.refresh)
		defer ticker.Stop()

		push := func() {
			leads, err := p.Snapshot(ctx, filter, callerID)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Warn().Err(err).Str("callerId", callerID).Msg("刷新队列失败")
				}
				return
			}
			// 丢弃未读的旧视图
			select {
			case <-out:
			default:
			}
			select {
			case out <- leads:
			case <-ctx.Done():
			}
		}

		push()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					// 变更通知中断，仅靠定时刷新
					signals = nil
					continue
				}
				push()
			case <-ticker.C:
				push()
			}
		}
	}()
	return out, nil
}
