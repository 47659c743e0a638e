package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Stage 销售管道阶段
type Stage string

const (
	StageNew       Stage = "new"
	StageContacted Stage = "contacted"
	StageMeeting   Stage = "meeting"
	StageProposal  Stage = "proposal"
	StageWon       Stage = "won"
	StageLost      Stage = "lost"
)

// BuiltinStages 内置阶段，按管道顺序排列
var BuiltinStages = []Stage{StageNew, StageContacted, StageMeeting, StageProposal, StageWon, StageLost}

// IsBuiltin 是否为内置阶段
func (s Stage) IsBuiltin() bool {
	for _, b := range BuiltinStages {
		if b == s {
			return true
		}
	}
	return false
}

// 内置优先级
const (
	Tier1 = "tier-1"
	Tier2 = "tier-2"
	Tier3 = "tier-3"
)

// BuiltinTiers 内置优先级，按排序先后
var BuiltinTiers = []string{Tier1, Tier2, Tier3}

// 内置线索类别
const (
	CategoryDetailing  = "detailing"
	CategoryFleet      = "fleet"
	CategoryDealership = "dealership"
	CategoryRental     = "rental"
	CategoryOther      = "other"
)

// BuiltinCategories 内置类别
var BuiltinCategories = []string{CategoryDetailing, CategoryFleet, CategoryDealership, CategoryRental, CategoryOther}

// CategoryAll 类别筛选中的"全部"
const CategoryAll = "all"

// Lead 销售线索
type Lead struct {
	ID          primitive.ObjectID `json:"_id,omitempty" bson:"_id,omitempty"`
	Name        string             `json:"name" bson:"name"`
	ContactName string             `json:"contactName" bson:"contactName"`
	Category    string             `json:"category" bson:"category"`
	Tier        string             `json:"tier" bson:"tier"`
	Stage       Stage              `json:"stage" bson:"stage"`
	Phone       string             `json:"phone,omitempty" bson:"phone,omitempty"`
	Email       string             `json:"email,omitempty" bson:"email,omitempty"`
	Notes       string             `json:"notes,omitempty" bson:"notes,omitempty"`
	IsActive    bool               `json:"isActive" bson:"isActive"`

	CreatedAt       time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt" bson:"updatedAt"`
	LastContactedAt *time.Time `json:"lastContactedAt,omitempty" bson:"lastContactedAt,omitempty"`
	NextFollowUpAt  *time.Time `json:"nextFollowUpAt,omitempty" bson:"nextFollowUpAt,omitempty"`

	// 占用信息，claimedBy为空表示未被占用
	ClaimedBy string     `json:"claimedBy,omitempty" bson:"claimedBy"`
	ClaimedAt *time.Time `json:"claimedAt,omitempty" bson:"claimedAt,omitempty"`
}

// LeadCreateRequest 创建线索请求
type LeadCreateRequest struct {
	Name           string     `json:"name" binding:"required"`
	ContactName    string     `json:"contactName"`
	Category       string     `json:"category" binding:"required"`
	Tier           string     `json:"tier"`
	Stage          Stage      `json:"stage"`
	Phone          string     `json:"phone"`
	Email          string     `json:"email" binding:"omitempty,email"`
	Notes          string     `json:"notes"`
	NextFollowUpAt *time.Time `json:"nextFollowUpAt"`
}

// LeadUpdateRequest 更新线索请求，nil字段不修改
type LeadUpdateRequest struct {
	Name           *string    `json:"name"`
	ContactName    *string    `json:"contactName"`
	Category       *string    `json:"category"`
	Tier           *string    `json:"tier"`
	Phone          *string    `json:"phone"`
	Email          *string    `json:"email"`
	Notes          *string    `json:"notes"`
	IsActive       *bool      `json:"isActive"`
	NextFollowUpAt *time.Time `json:"nextFollowUpAt"`
}

// StageChangeRequest 阶段变更请求
type StageChangeRequest struct {
	Stage Stage `json:"stage" binding:"required"`
}

// StageChangeEvent 阶段变更事件
type StageChangeEvent struct {
	LeadID    string    `json:"leadId"`
	FromStage Stage     `json:"fromStage"`
	ToStage   Stage     `json:"toStage"`
	ActorID   string    `json:"actorId"`
	ChangedAt time.Time `json:"changedAt"`
}
