package model

import (
	"time"

	"gorm.io/datatypes"
)

// OperationalItem lifecycle statuses.
const (
	ItemStatusOpen       = "open"
	ItemStatusInProgress = "in_progress"
	ItemStatusDone       = "done"
)

// OperationalItem is a task/briefing/follow-up record with an optional
// idempotency key and a nullable reference to a synced task-tracker card.
type OperationalItem struct {
	ID             string         `json:"id" gorm:"column:id;primaryKey"`
	IdempotencyKey *string        `json:"idempotency_key,omitempty" gorm:"column:idempotency_key;uniqueIndex:idx_items_idempotency_key"`
	ItemType       string         `json:"item_type" gorm:"column:item_type;index"`
	Title          string         `json:"title" gorm:"column:title"`
	Description    string         `json:"description,omitempty" gorm:"column:description"`
	ClientID       string         `json:"cliente_id,omitempty" gorm:"column:client_id;index"`
	Assignee       string         `json:"assignee,omitempty" gorm:"column:assignee"`
	Priority       string         `json:"priority,omitempty" gorm:"column:priority"`
	Status         string         `json:"status" gorm:"column:status;index"`
	DueAt          *time.Time     `json:"due_at,omitempty" gorm:"column:due_at"`
	Details        datatypes.JSON `json:"details,omitempty" gorm:"type:jsonb;column:details"`
	TrelloCardID   string         `json:"trello_card_id,omitempty" gorm:"column:trello_card_id"`
	TrelloCardURL  string         `json:"trello_card_url,omitempty" gorm:"column:trello_card_url"`
	TrelloListID   string         `json:"trello_list_id,omitempty" gorm:"column:trello_list_id"`
	CreatedAt      time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (OperationalItem) TableName() string {
	return "operational_items"
}

// OperationalItemInput is the upsert payload. Nil fields leave existing
// values untouched on update.
type OperationalItemInput struct {
	ID             *string        `json:"id,omitempty" validate:"omitempty,uuid4"`
	IdempotencyKey *string        `json:"idempotency_key,omitempty"`
	ItemType       *string        `json:"item_type,omitempty"`
	Title          *string        `json:"title,omitempty"`
	Description    *string        `json:"description,omitempty"`
	ClientID       *string        `json:"cliente_id,omitempty"`
	Assignee       *string        `json:"assignee,omitempty"`
	Priority       *string        `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	Status         *string        `json:"status,omitempty" validate:"omitempty,oneof=open in_progress done"`
	DueAt          *time.Time     `json:"due_at,omitempty"`
	Details        datatypes.JSON `json:"details,omitempty"`
}

// OperationalItemFilter narrows item listings.
type OperationalItemFilter struct {
	ItemType string
	Status   string
	ClientID string
	Limit    int
	Offset   int
}
