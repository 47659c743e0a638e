package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InteractionType 互动类型
type InteractionType string

const (
	InteractionCall    InteractionType = "call"
	InteractionEmail   InteractionType = "email"
	InteractionMeeting InteractionType = "meeting"
	InteractionNote    InteractionType = "note"
	InteractionOther   InteractionType = "other"
)

// IsValid 验证互动类型
func (t InteractionType) IsValid() bool {
	switch t {
	case InteractionCall, InteractionEmail, InteractionMeeting, InteractionNote, InteractionOther:
		return true
	}
	return false
}

// Outcome 互动结果标签
type Outcome string

const (
	OutcomeNoAnswer          Outcome = "no_answer"
	OutcomeVoicemail         Outcome = "voicemail"
	OutcomeBusy              Outcome = "busy"
	OutcomeCallbackRequested Outcome = "callback_requested"
	OutcomeInterested        Outcome = "interested"
	OutcomeNotInterested     Outcome = "not_interested"
	OutcomeMeetingBooked     Outcome = "meeting_booked"
	OutcomeProposalSent      Outcome = "proposal_sent"
	OutcomeSaleMade          Outcome = "sale_made"
	OutcomeWrongNumber       Outcome = "wrong_number"
	OutcomeGatekeeper        Outcome = "gatekeeper"
)

// Outcomes 结果标签词表
var Outcomes = []Outcome{
	OutcomeNoAnswer, OutcomeVoicemail, OutcomeBusy, OutcomeCallbackRequested,
	OutcomeInterested, OutcomeNotInterested, OutcomeMeetingBooked, OutcomeProposalSent,
	OutcomeSaleMade, OutcomeWrongNumber, OutcomeGatekeeper,
}

// IsValid 验证结果标签是否在词表中
func (o Outcome) IsValid() bool {
	for _, v := range Outcomes {
		if v == o {
			return true
		}
	}
	return false
}

// Interaction 互动记录，只追加不修改
type Interaction struct {
	ID              primitive.ObjectID `json:"_id,omitempty" bson:"_id,omitempty"`
	LeadID          string             `json:"leadId" bson:"leadId"`
	Type            InteractionType    `json:"type" bson:"type"`
	Description     string             `json:"description" bson:"description"`
	Outcome         Outcome            `json:"outcome,omitempty" bson:"outcome,omitempty"`
	ActorID         string             `json:"actorId" bson:"actorId"`
	DurationSeconds int                `json:"durationSeconds,omitempty" bson:"durationSeconds,omitempty"`
	FromStage       Stage              `json:"fromStage,omitempty" bson:"fromStage,omitempty"`
	ToStage         Stage              `json:"toStage,omitempty" bson:"toStage,omitempty"`
	CreatedAt       time.Time          `json:"createdAt" bson:"createdAt"`

	// 补偿写入标记：阶段变更审计记录先以pending写入，阶段写成功后确认
	Pending   bool `json:"pending,omitempty" bson:"pending,omitempty"`
	Abandoned bool `json:"abandoned,omitempty" bson:"abandoned,omitempty"`
}

// CreateInteractionInput 手动记录互动的输入数据
type CreateInteractionInput struct {
	Type        InteractionType `json:"type" binding:"required"`
	Description string          `json:"description"`
	Outcome     Outcome         `json:"outcome"`
}
