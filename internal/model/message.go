package model

import (
	"time"

	"gorm.io/datatypes"
)

// SessionMessage is the append-only log of every accepted event applied to a
// session. The unique provider_message_id constraint is the dedup mechanism
// itself, not merely an index.
type SessionMessage struct {
	ID                int64          `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	SessionID         string         `json:"session_id" gorm:"column:session_id;index"`
	ProviderMessageID string         `json:"provider_message_id" gorm:"column:provider_message_id;uniqueIndex:idx_messages_provider_message_id"`
	Direction         string         `json:"direction" gorm:"column:direction"`
	Payload           datatypes.JSON `json:"payload,omitempty" gorm:"type:jsonb;column:payload"`
	EventTimestamp    time.Time      `json:"event_timestamp" gorm:"column:event_timestamp"`
	CreatedAt         time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (SessionMessage) TableName() string {
	return "onboarding_messages"
}
