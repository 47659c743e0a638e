package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BerniceZTT/dialer_end/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore 进程内存储，实现LeadStore、ClaimStore与InteractionStore。
// 用于测试和本地演示，写入立即对所有Watch订阅可见。
type MemoryStore struct {
	mu           sync.Mutex
	leads        map[string]models.Lead
	interactions []models.Interaction
	watchers     map[chan struct{}]struct{}
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leads:    make(map[string]models.Lead),
		watchers: make(map[chan struct{}]struct{}),
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneLead(l models.Lead) *models.Lead {
	c := l
	c.ClaimedAt = cloneTime(l.ClaimedAt)
	c.LastContactedAt = cloneTime(l.LastContactedAt)
	c.NextFollowUpAt = cloneTime(l.NextFollowUpAt)
	return &c
}

// broadcast 调用方必须持有锁
func (s *MemoryStore) broadcast() {
	for ch := range s.watchers {
		notify(ch)
	}
}

// Get 根据ID获取线索
func (s *MemoryStore) Get(_ context.Context, id string) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneLead(lead), nil
}

func matchesQuery(lead models.Lead, query LeadQuery) bool {
	if query.ActiveOnly && !lead.IsActive {
		return false
	}
	if query.Stage != "" && lead.Stage != query.Stage {
		return false
	}
	if cats := categoryFilter(query.Categories); len(cats) > 0 {
		found := false
		for _, c := range cats {
			if c == lead.Category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if query.Tier != "" && lead.Tier != query.Tier {
		return false
	}
	if query.ClaimedBy != "" && lead.ClaimedBy != query.ClaimedBy {
		return false
	}
	if query.Keyword != "" {
		kw := strings.ToLower(query.Keyword)
		if !strings.Contains(strings.ToLower(lead.Name), kw) && !strings.Contains(strings.ToLower(lead.ContactName), kw) {
			return false
		}
	}
	return true
}

// List 查询线索，按创建时间正序
func (s *MemoryStore) List(_ context.Context, query LeadQuery) ([]models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	leads := []models.Lead{}
	for _, lead := range s.leads {
		if matchesQuery(lead, query) {
			leads = append(leads, *cloneLead(lead))
		}
	}
	sort.Slice(leads, func(i, j int) bool {
		if !leads[i].CreatedAt.Equal(leads[j].CreatedAt) {
			return leads[i].CreatedAt.Before(leads[j].CreatedAt)
		}
		return leads[i].ID.Hex() < leads[j].ID.Hex()
	})
	return leads, nil
}

// Create 创建线索
func (s *MemoryStore) Create(_ context.Context, lead *models.Lead) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := *cloneLead(*lead)
	if created.ID.IsZero() {
		created.ID = primitive.NewObjectID()
	}
	s.leads[created.ID.Hex()] = created
	s.broadcast()
	return cloneLead(created), nil
}

// Update 部分更新线索
func (s *MemoryStore) Update(_ context.Context, id string, update LeadUpdate) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[id]
	if !ok {
		return nil, ErrNotFound
	}
	lead.UpdatedAt = update.UpdatedAt
	if update.Name != nil {
		lead.Name = *update.Name
	}
	if update.ContactName != nil {
		lead.ContactName = *update.ContactName
	}
	if update.Category != nil {
		lead.Category = *update.Category
	}
	if update.Tier != nil {
		lead.Tier = *update.Tier
	}
	if update.Stage != nil {
		lead.Stage = *update.Stage
	}
	if update.Phone != nil {
		lead.Phone = *update.Phone
	}
	if update.Email != nil {
		lead.Email = *update.Email
	}
	if update.Notes != nil {
		lead.Notes = *update.Notes
	}
	if update.IsActive != nil {
		lead.IsActive = *update.IsActive
	}
	if update.NextFollowUpAt != nil {
		lead.NextFollowUpAt = cloneTime(update.NextFollowUpAt)
	}
	if update.LastContactedAt != nil {
		lead.LastContactedAt = cloneTime(update.LastContactedAt)
	}
	s.leads[id] = lead
	s.broadcast()
	return cloneLead(lead), nil
}

// Delete 删除线索
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.leads[id]; !ok {
		return ErrNotFound
	}
	delete(s.leads, id)
	s.broadcast()
	return nil
}

// Watch 订阅写入信号
func (s *MemoryStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}

// AcquireClaim 条件占用
func (s *MemoryStore) AcquireClaim(_ context.Context, leadID, callerID string, now, staleBefore time.Time) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[leadID]
	if !ok {
		return nil, ErrNotFound
	}
	free := lead.ClaimedBy == "" || lead.ClaimedBy == callerID ||
		lead.ClaimedAt == nil || !lead.ClaimedAt.After(staleBefore)
	if !free {
		return nil, ErrClaimConflict
	}
	lead.ClaimedBy = callerID
	lead.ClaimedAt = cloneTime(&now)
	s.leads[leadID] = lead
	s.broadcast()
	return cloneLead(lead), nil
}

// RenewClaim 刷新本人占用
func (s *MemoryStore) RenewClaim(_ context.Context, leadID, callerID string, now time.Time) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[leadID]
	if !ok {
		return nil, ErrNotFound
	}
	if lead.ClaimedBy != callerID {
		return nil, ErrNotClaimOwner
	}
	lead.ClaimedAt = cloneTime(&now)
	s.leads[leadID] = lead
	s.broadcast()
	return cloneLead(lead), nil
}

// ReleaseClaim 释放本人占用
func (s *MemoryStore) ReleaseClaim(_ context.Context, leadID, callerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[leadID]
	if !ok || lead.ClaimedBy != callerID {
		return false, nil
	}
	lead.ClaimedBy = ""
	lead.ClaimedAt = nil
	s.leads[leadID] = lead
	s.broadcast()
	return true, nil
}

// ClearExpiredClaims 清理过期占用
func (s *MemoryStore) ClearExpiredClaims(_ context.Context, staleBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cleared int64
	for id, lead := range s.leads {
		if lead.ClaimedBy != "" && (lead.ClaimedAt == nil || !lead.ClaimedAt.After(staleBefore)) {
			lead.ClaimedBy = ""
			lead.ClaimedAt = nil
			s.leads[id] = lead
			cleared++
		}
	}
	if cleared > 0 {
		s.broadcast()
	}
	return cleared, nil
}

// Append 追加互动记录
func (s *MemoryStore) Append(_ context.Context, interaction *models.Interaction) (*models.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := *interaction
	if record.ID.IsZero() {
		record.ID = primitive.NewObjectID()
	}
	s.interactions = append(s.interactions, record)
	return &record, nil
}

// ListByLead 获取线索互动记录，按创建时间倒序
func (s *MemoryStore) ListByLead(_ context.Context, leadID string) ([]models.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := []models.Interaction{}
	for i := len(s.interactions) - 1; i >= 0; i-- {
		rec := s.interactions[i]
		if rec.LeadID == leadID && !rec.Abandoned {
			records = append(records, rec)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (s *MemoryStore) updatePending(id string, abandon bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.interactions {
		if s.interactions[i].ID.Hex() == id && s.interactions[i].Pending {
			s.interactions[i].Pending = false
			s.interactions[i].Abandoned = abandon
			return nil
		}
	}
	return ErrNotFound
}

// Confirm 确认pending记录
func (s *MemoryStore) Confirm(_ context.Context, id string) error {
	return s.updatePending(id, false)
}

// Abandon 作废pending记录
func (s *MemoryStore) Abandon(_ context.Context, id string) error {
	return s.updatePending(id, true)
}

// CountOutcomes 统计结果标签
func (s *MemoryStore) CountOutcomes(_ context.Context, actorID string, since time.Time) (map[models.Outcome]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[models.Outcome]int64)
	for _, rec := range s.interactions {
		if rec.Outcome == "" || rec.CreatedAt.Before(since) {
			continue
		}
		if actorID != "" && rec.ActorID != actorID {
			continue
		}
		counts[rec.Outcome]++
	}
	return counts, nil
}

// Interactions 返回全部互动记录副本，按追加顺序
func (s *MemoryStore) Interactions() []models.Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Interaction{}, s.interactions...)
}
