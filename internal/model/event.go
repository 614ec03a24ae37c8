package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
	DirectionSystem   = "system"
)

// IsValidDirection reports whether d is one of the accepted event directions.
func IsValidDirection(d string) bool {
	return d == DirectionInbound || d == DirectionOutbound || d == DirectionSystem
}

// ClientHints carries optional profile data extracted alongside an event.
// Empty fields never overwrite existing client data.
type ClientHints struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// InboundEvent is one normalized provider event ready for application.
type InboundEvent struct {
	Phone             string         `json:"phone"`
	ProviderMessageID string         `json:"provider_message_id"`
	Direction         string         `json:"direction"`
	Status            Status         `json:"status,omitempty"` // empty when the event carries no status hint
	EventTimestamp    time.Time      `json:"event_timestamp"`
	Payload           datatypes.JSON `json:"payload,omitempty"`
	Hints             ClientHints    `json:"hints,omitempty"`
}

// SessionRef identifies a session by internal id, tracking token, or phone.
// Exactly one field should be set.
type SessionRef struct {
	SessionID     string
	TrackingToken string
	Phone         string
}

// IsZero reports whether no lookup key is set.
func (r SessionRef) IsZero() bool {
	return r.SessionID == "" && r.TrackingToken == "" && r.Phone == ""
}

// ApplyResult is the outcome of applying one event or manual transition.
type ApplyResult struct {
	SessionID       string    `json:"session_id"`
	ClientID        string    `json:"cliente_id"`
	TrackingToken   string    `json:"tracking_token"`
	Status          Status    `json:"status"`
	StatusUpdatedAt time.Time `json:"status_updated_at"`
	Duplicate       bool      `json:"duplicate"`
}
