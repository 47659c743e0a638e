package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BerniceZTT/dialer_end/models"
	"github.com/BerniceZTT/dialer_end/repository"
	"github.com/BerniceZTT/dialer_end/utils"

	"github.com/rs/zerolog"
)

// Pipeline 管道阶段变更。任何阶段都可以转到任何阶段，包括自定义阶段。
type Pipeline struct {
	leads        repository.LeadStore
	interactions repository.InteractionStore
	tx           repository.Transactor
	events       EventPublisher
	clock        Clock
	logger       zerolog.Logger
	retries      int
}

// NewPipeline 创建阶段状态机。leads实现了repository.Transactor时优先使用事务写入。
func NewPipeline(leads repository.LeadStore, interactions repository.InteractionStore, events EventPublisher, clock Clock, logger zerolog.Logger) *Pipeline {
	if events == nil {
		events = NopPublisher{}
	}
	if clock == nil {
		clock = SystemClock
	}
	p := &Pipeline{
		leads:        leads,
		interactions: interactions,
		events:       events,
		clock:        clock,
		logger:       logger,
		retries:      3,
	}
	if tx, ok := leads.(repository.Transactor); ok {
		p.tx = tx
	}
	return p
}

// describeStageChange 审计记录的可读描述
func describeStageChange(from, to models.Stage) string {
	if from == "" {
		from = "(none)"
	}
	return fmt.Sprintf("阶段变更: %s -> %s", from, to)
}

// Transition 变更线索阶段并追加一条note类型审计记录
func (p *Pipeline) Transition(ctx context.Context, leadID string, target models.Stage, actorID string) (*models.Lead, error) {
	target = models.Stage(strings.TrimSpace(string(target)))
	if target == "" {
		return nil, fmt.Errorf("%w: 目标阶段不能为空", ErrInvalidInput)
	}

	lead, err := p.leads.Get(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidID) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUpdateFailed, err)
	}

	now := p.clock.Now()
	note := models.Interaction{
		LeadID:      leadID,
		Type:        models.InteractionNote,
		Description: describeStageChange(lead.Stage, target),
		ActorID:     actorID,
		FromStage:   lead.Stage,
		ToStage:     target,
		CreatedAt:   now,
	}
	update := repository.LeadUpdate{Stage: &target, UpdatedAt: now}

	var updated *models.Lead
	if p.tx != nil {
		updated, err = p.transitionInTransaction(ctx, leadID, update, note)
		if errors.Is(err, repository.ErrTransactionsUnsupported) {
			updated, err = p.transitionCompensating(ctx, leadID, update, note)
		}
	} else {
		updated, err = p.transitionCompensating(ctx, leadID, update, note)
	}
	if err != nil {
		stageTransitionsTotal.WithLabelValues(stageLabel(target), "failed").Inc()
		return nil, err
	}

	stageTransitionsTotal.WithLabelValues(stageLabel(target), "applied").Inc()
	p.logger.Info().
		Str("leadId", leadID).
		Str("from", string(lead.Stage)).
		Str("to", string(target)).
		Str("actorId", actorID).
		Msg("线索阶段变更")

	event := models.StageChangeEvent{
		LeadID:    leadID,
		FromStage: lead.Stage,
		ToStage:   target,
		ActorID:   actorID,
		ChangedAt: now,
	}
	if err := p.events.PublishStageChanged(ctx, event); err != nil {
		p.logger.Warn().Err(err).Str("leadId", leadID).Msg("广播阶段变更事件失败")
	}
	return updated, nil
}

// transitionInTransaction 阶段与审计记录在同一事务中写入
func (p *Pipeline) transitionInTransaction(ctx context.Context, leadID string, update repository.LeadUpdate, note models.Interaction) (*models.Lead, error) {
	var updated *models.Lead
	err := p.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		lead, err := p.leads.Update(txCtx, leadID, update)
		if err != nil {
			return err
		}
		if _, err := p.interactions.Append(txCtx, &note); err != nil {
			return err
		}
		updated = lead
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrTransactionsUnsupported) {
			return nil, err
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrLeadNotFound
		}
		p.logger.Error().Err(err).Str("leadId", leadID).Msg("阶段变更事务失败")
		return nil, fmt.Errorf("%w: %v", ErrUpdateFailed, err)
	}
	return updated, nil
}

// transitionCompensating 不支持事务时：先写pending审计记录，再写阶段，最后确认。
// 阶段写入失败时作废审计记录；确认失败时报错，不静默接受部分写入。
func (p *Pipeline) transitionCompensating(ctx context.Context, leadID string, update repository.LeadUpdate, note models.Interaction) (*models.Lead, error) {
	note.Pending = true
	record, err := p.interactions.Append(ctx, &note)
	if err != nil {
		p.logger.Error().Err(err).Str("leadId", leadID).Msg("写入阶段审计记录失败")
		return nil, fmt.Errorf("%w: %v", ErrUpdateFailed, err)
	}
	recordID := record.ID.Hex()

	updated, err := p.leads.Update(ctx, leadID, update)
	if err != nil {
		if abandonErr := p.interactions.Abandon(ctx, recordID); abandonErr != nil {
			utils.LogInconsistency(p.logger, "作废审计记录", leadID, "abandoned", abandonErr.Error())
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrLeadNotFound
		}
		p.logger.Error().Err(err).Str("leadId", leadID).Msg("写入线索阶段失败")
		return nil, fmt.Errorf("%w: %v", ErrUpdateFailed, err)
	}

	_, err = repository.ExecuteDbOperation(func() (interface{}, error) {
		return nil, p.interactions.Confirm(ctx, recordID)
	}, p.retries)
	if err != nil {
		utils.LogInconsistency(p.logger, "确认审计记录", leadID, "confirmed", err.Error())
		return nil, fmt.Errorf("%w: 阶段已写入但审计记录未确认: %v", ErrUpdateFailed, err)
	}
	return updated, nil
}

// StageHistoryWindow 统计窗口的默认起点
func StageHistoryWindow(now time.Time, days int) time.Time {
	if days <= 0 {
		days = 1
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(days - 1))
}
