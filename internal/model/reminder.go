package model

import (
	"time"

	"gorm.io/datatypes"
)

// ReminderLog statuses. The partial uniqueness constraint covers sent and
// dry_run rows only, so a failed attempt does not block a later run.
const (
	ReminderStatusDryRun = "dry_run"
	ReminderStatusSent   = "sent"
	ReminderStatusFailed = "failed"
)

// ReminderSchedule is one planned reminder for a phone on a date.
type ReminderSchedule struct {
	ID           string    `json:"id" gorm:"column:id;primaryKey"`
	ClientID     string    `json:"cliente_id,omitempty" gorm:"column:client_id;index"`
	Phone        string    `json:"phone_e164" gorm:"column:phone_e164;index"`
	RemindDate   time.Time `json:"remind_date" gorm:"column:remind_date;type:date;index"`
	ReminderType string    `json:"reminder_type" gorm:"column:reminder_type"`
	Timezone     string    `json:"timezone,omitempty" gorm:"column:timezone"`
	Active       bool      `json:"active" gorm:"column:active;default:true"`
	CreatedAt    time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (ReminderSchedule) TableName() string {
	return "reminder_schedules"
}

// ReminderLog is one send attempt per (phone, date, type). Inserting it is
// the reservation that claims exclusive send rights.
type ReminderLog struct {
	ID                string         `json:"id" gorm:"column:id;primaryKey"`
	ClientID          string         `json:"cliente_id,omitempty" gorm:"column:client_id"`
	Phone             string         `json:"phone_e164" gorm:"column:phone_e164"`
	RemindDate        time.Time      `json:"remind_date" gorm:"column:remind_date;type:date"`
	ReminderType      string         `json:"reminder_type" gorm:"column:reminder_type"`
	Status            string         `json:"status" gorm:"column:status"`
	ProviderMessageID string         `json:"provider_message_id,omitempty" gorm:"column:provider_message_id"`
	ErrorSummary      string         `json:"error_summary,omitempty" gorm:"column:error_summary"`
	Payload           datatypes.JSON `json:"payload,omitempty" gorm:"type:jsonb;column:payload"`
	SentAt            *time.Time     `json:"sent_at,omitempty" gorm:"column:sent_at"`
	CreatedAt         time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (ReminderLog) TableName() string {
	return "reminder_logs"
}
