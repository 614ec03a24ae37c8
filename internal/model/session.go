package model

import (
	"time"
)

// OnboardingSession is the single active conversation thread for one phone.
// The phone is the natural key; the tracking token is the externally
// shareable identifier.
type OnboardingSession struct {
	ID                    string    `json:"id" gorm:"column:id;primaryKey"`
	Phone                 string    `json:"phone_e164" gorm:"column:phone_e164;uniqueIndex:idx_sessions_phone"`
	TrackingToken         string    `json:"tracking_token" gorm:"column:tracking_token;uniqueIndex:idx_sessions_tracking_token"`
	ClientID              string    `json:"cliente_id,omitempty" gorm:"column:client_id;index"`
	CurrentStatus         Status    `json:"current_status" gorm:"column:current_status"`
	StatusUpdatedAt       time.Time `json:"status_updated_at" gorm:"column:status_updated_at"`
	LastMessageAt         time.Time `json:"last_message_at,omitempty" gorm:"column:last_message_at"`
	LastProviderMessageID string    `json:"last_provider_message_id,omitempty" gorm:"column:last_provider_message_id"`
	CreatedAt             time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (OnboardingSession) TableName() string {
	return "onboarding_sessions"
}

// Snapshot converts the session into an ApplyResult view.
func (s *OnboardingSession) Snapshot(duplicate bool) *ApplyResult {
	return &ApplyResult{
		SessionID:       s.ID,
		ClientID:        s.ClientID,
		TrackingToken:   s.TrackingToken,
		Status:          s.CurrentStatus,
		StatusUpdatedAt: s.StatusUpdatedAt,
		Duplicate:       duplicate,
	}
}
