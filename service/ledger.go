package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BerniceZTT/dialer_end/models"
	"github.com/BerniceZTT/dialer_end/repository"

	"github.com/rs/zerolog"
)

// LogEntry 一次互动记录请求
type LogEntry struct {
	LeadID          string
	Type            models.InteractionType
	Description     string
	Outcome         models.Outcome
	ActorID         string
	DurationSeconds int
	// ManualOutcome 坐席手动记录结果，带结果时同样释放占用
	ManualOutcome bool
}

// releasesClaim 通话记录或带结果的手动记录需要释放占用
func (e LogEntry) releasesClaim() bool {
	return e.Type == models.InteractionCall || (e.ManualOutcome && e.Outcome != "")
}

// OutcomeSummary 结果标签统计
type OutcomeSummary struct {
	ActorID   string                   `json:"actorId,omitempty"`
	Since     time.Time                `json:"since"`
	Counts    map[models.Outcome]int64 `json:"counts"`
	Contacted int64                    `json:"contacted"`
	Booked    int64                    `json:"booked"`
}

// 有人接听的结果
var contactedOutcomes = map[models.Outcome]bool{
	models.OutcomeCallbackRequested: true,
	models.OutcomeInterested:        true,
	models.OutcomeNotInterested:     true,
	models.OutcomeMeetingBooked:     true,
	models.OutcomeProposalSent:      true,
	models.OutcomeSaleMade:          true,
	models.OutcomeGatekeeper:        true,
}

// 已约定后续的结果
var bookedOutcomes = map[models.Outcome]bool{
	models.OutcomeMeetingBooked: true,
	models.OutcomeSaleMade:      true,
}

// Ledger 互动记录簿，只追加。结果标签不会改变线索阶段。
type Ledger struct {
	leads        repository.LeadStore
	interactions repository.InteractionStore
	claims       *ClaimManager
	events       EventPublisher
	clock        Clock
	logger       zerolog.Logger
}

// NewLedger 创建互动记录簿
func NewLedger(leads repository.LeadStore, interactions repository.InteractionStore, claims *ClaimManager, events EventPublisher, clock Clock, logger zerolog.Logger) *Ledger {
	if events == nil {
		events = NopPublisher{}
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Ledger{
		leads:        leads,
		interactions: interactions,
		claims:       claims,
		events:       events,
		clock:        clock,
		logger:       logger,
	}
}

func (l *Ledger) validate(entry LogEntry) error {
	if strings.TrimSpace(entry.LeadID) == "" {
		return fmt.Errorf("%w: 线索ID不能为空", ErrInvalidInput)
	}
	if strings.TrimSpace(entry.ActorID) == "" {
		return fmt.Errorf("%w: 缺少操作人", ErrInvalidInput)
	}
	if !entry.Type.IsValid() {
		return fmt.Errorf("%w: 无效的互动类型 %q", ErrInvalidInput, entry.Type)
	}
	if entry.Outcome != "" && !entry.Outcome.IsValid() {
		return fmt.Errorf("%w: 无效的结果标签 %q", ErrInvalidInput, entry.Outcome)
	}
	if entry.DurationSeconds < 0 {
		return fmt.Errorf("%w: 通话时长不能为负", ErrInvalidInput)
	}
	return nil
}

// Log 追加互动记录，更新最近联系时间，通话或手动结果会释放操作人的占用
func (l *Ledger) Log(ctx context.Context, entry LogEntry) (*models.Interaction, error) {
	if err := l.validate(entry); err != nil {
		return nil, err
	}

	if _, err := l.leads.Get(ctx, entry.LeadID); err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidID) {
			return nil, ErrLeadNotFound
		}
		return nil, err
	}

	now := l.clock.Now()
	record, err := l.interactions.Append(ctx, &models.Interaction{
		LeadID:          entry.LeadID,
		Type:            entry.Type,
		Description:     entry.Description,
		Outcome:         entry.Outcome,
		ActorID:         entry.ActorID,
		DurationSeconds: entry.DurationSeconds,
		CreatedAt:       now,
	})
	if err != nil {
		l.logger.Error().Err(err).Str("leadId", entry.LeadID).Msg("追加互动记录失败")
		return nil, err
	}
	interactionsTotal.WithLabelValues(string(entry.Type), outcomeLabel(entry.Outcome)).Inc()

	if _, err := l.leads.Update(ctx, entry.LeadID, repository.LeadUpdate{
		LastContactedAt: &now,
		UpdatedAt:       now,
	}); err != nil {
		l.logger.Warn().Err(err).Str("leadId", entry.LeadID).Msg("更新最近联系时间失败")
	}

	if entry.releasesClaim() && l.claims != nil {
		l.claims.ReleaseAsync(entry.LeadID, entry.ActorID)
	}

	if err := l.events.PublishInteraction(ctx, *record); err != nil {
		l.logger.Warn().Err(err).Str("leadId", entry.LeadID).Msg("广播互动事件失败")
	}

	l.logger.Info().
		Str("leadId", entry.LeadID).
		Str("type", string(entry.Type)).
		Str("outcome", string(entry.Outcome)).
		Str("actorId", entry.ActorID).
		Msg("记录互动")
	return record, nil
}

// History 线索互动历史，最新在前
func (l *Ledger) History(ctx context.Context, leadID string) ([]models.Interaction, error) {
	if _, err := l.leads.Get(ctx, leadID); err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidID) {
			return nil, ErrLeadNotFound
		}
		return nil, err
	}
	return l.interactions.ListByLead(ctx, leadID)
}

// OutcomeSummary 统计since以来各结果标签数量，actorID为空时统计全部坐席
func (l *Ledger) OutcomeSummary(ctx context.Context, actorID string, since time.Time) (*OutcomeSummary, error) {
	counts, err := l.interactions.CountOutcomes(ctx, actorID, since)
	if err != nil {
		return nil, err
	}
	summary := &OutcomeSummary{ActorID: actorID, Since: since, Counts: counts}
	for outcome, n := range counts {
		if contactedOutcomes[outcome] {
			summary.Contacted += n
		}
		if bookedOutcomes[outcome] {
			summary.Booked += n
		}
	}
	return summary, nil
}

func outcomeLabel(o models.Outcome) string {
	if o == "" {
		return "none"
	}
	return string(o)
}
