package model

import (
	"time"
)

// StatusHistory is the append-only audit trail, one row per status change.
// Rows are written only when to_status differs from from_status.
type StatusHistory struct {
	ID                int64     `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	SessionID         string    `json:"session_id" gorm:"column:session_id;index"`
	FromStatus        Status    `json:"from_status" gorm:"column:from_status"`
	ToStatus          Status    `json:"to_status" gorm:"column:to_status"`
	Reason            string    `json:"reason,omitempty" gorm:"column:reason"`
	ProviderMessageID string    `json:"provider_message_id,omitempty" gorm:"column:provider_message_id"`
	ChangedAt         time.Time `json:"changed_at" gorm:"column:changed_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (StatusHistory) TableName() string {
	return "onboarding_status_history"
}
