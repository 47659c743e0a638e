package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BerniceZTT/dialer_end/models"
	"github.com/BerniceZTT/dialer_end/repository"

	"github.com/rs/zerolog"
)

// LeadService 线索的增删改查。除占用字段外均为后写覆盖。
type LeadService struct {
	store   repository.LeadStore
	catalog *models.Catalog
	clock   Clock
	logger  zerolog.Logger
}

// NewLeadService 创建线索服务
func NewLeadService(store repository.LeadStore, catalog *models.Catalog, clock Clock, logger zerolog.Logger) *LeadService {
	if catalog == nil {
		catalog = models.DefaultCatalog()
	}
	if clock == nil {
		clock = SystemClock
	}
	return &LeadService{store: store, catalog: catalog, clock: clock, logger: logger}
}

func mapLeadErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidID) {
		return ErrLeadNotFound
	}
	return err
}

// Get 获取线索
func (s *LeadService) Get(ctx context.Context, id string) (*models.Lead, error) {
	lead, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, mapLeadErr(err)
	}
	return lead, nil
}

// List 查询线索
func (s *LeadService) List(ctx context.Context, query repository.LeadQuery) ([]models.Lead, error) {
	return s.store.List(ctx, query)
}

// Create 创建线索，电话和邮箱至少填写一项
func (s *LeadService) Create(ctx context.Context, req models.LeadCreateRequest) (*models.Lead, error) {
	name := strings.TrimSpace(req.Name)
	category := strings.TrimSpace(req.Category)
	phone := strings.TrimSpace(req.Phone)
	email := strings.TrimSpace(req.Email)

	if name == "" {
		return nil, fmt.Errorf("%w: 线索名称不能为空", ErrInvalidInput)
	}
	if category == "" || category == models.CategoryAll {
		return nil, fmt.Errorf("%w: 无效的类别", ErrInvalidInput)
	}
	if phone == "" && email == "" {
		return nil, fmt.Errorf("%w: 电话和邮箱至少填写一项", ErrInvalidInput)
	}

	tier := strings.TrimSpace(req.Tier)
	if tier == "" {
		tier = s.catalog.DefaultTier()
	}
	stage := req.Stage
	if stage == "" {
		stage = models.StageNew
	}

	now := s.clock.Now()
	lead, err := s.store.Create(ctx, &models.Lead{
		Name:           name,
		ContactName:    strings.TrimSpace(req.ContactName),
		Category:       category,
		Tier:           tier,
		Stage:          stage,
		Phone:          phone,
		Email:          email,
		Notes:          req.Notes,
		IsActive:       true,
		NextFollowUpAt: req.NextFollowUpAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("name", name).Msg("创建线索失败")
		return nil, err
	}
	s.logger.Info().Str("leadId", lead.ID.Hex()).Str("name", name).Msg("创建线索")
	return lead, nil
}

// Update 更新线索资料。阶段通过Pipeline变更，占用字段不可通过此处修改。
func (s *LeadService) Update(ctx context.Context, id string, req models.LeadUpdateRequest) (*models.Lead, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, mapLeadErr(err)
	}

	req.Name = trimmed(req.Name)
	req.ContactName = trimmed(req.ContactName)
	req.Phone = trimmed(req.Phone)
	req.Email = trimmed(req.Email)

	phone, email := current.Phone, current.Email
	if req.Phone != nil {
		phone = *req.Phone
	}
	if req.Email != nil {
		email = *req.Email
	}
	if phone == "" && email == "" {
		return nil, fmt.Errorf("%w: 电话和邮箱至少保留一项", ErrInvalidInput)
	}
	if req.Name != nil && *req.Name == "" {
		return nil, fmt.Errorf("%w: 线索名称不能为空", ErrInvalidInput)
	}
	if req.Category != nil && (strings.TrimSpace(*req.Category) == "" || *req.Category == models.CategoryAll) {
		return nil, fmt.Errorf("%w: 无效的类别", ErrInvalidInput)
	}

	lead, err := s.store.Update(ctx, id, repository.LeadUpdate{
		Name:           req.Name,
		ContactName:    req.ContactName,
		Category:       req.Category,
		Tier:           req.Tier,
		Phone:          req.Phone,
		Email:          req.Email,
		Notes:          req.Notes,
		IsActive:       req.IsActive,
		NextFollowUpAt: req.NextFollowUpAt,
		UpdatedAt:      s.clock.Now(),
	})
	if err != nil {
		return nil, mapLeadErr(err)
	}
	return lead, nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}

// Delete 硬删除线索
func (s *LeadService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return mapLeadErr(err)
	}
	s.logger.Info().Str("leadId", id).Msg("删除线索")
	return nil
}

// Catalog 当前目录
func (s *LeadService) Catalog() *models.Catalog {
	return s.catalog
}
