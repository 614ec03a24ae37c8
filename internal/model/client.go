package model

import (
	"time"

	"gorm.io/datatypes"
)

// Client is a business entity keyed by its normalized phone number.
// Created on the first event referencing an unknown phone; never hard-deleted
// by the reconciliation engine.
type Client struct {
	ID                   string         `json:"id" gorm:"column:id;primaryKey"`
	Name                 string         `json:"name,omitempty" gorm:"column:name"`
	Phone                string         `json:"whatsapp_phone" gorm:"column:whatsapp_phone;uniqueIndex:idx_clients_whatsapp_phone"`
	Email                string         `json:"email,omitempty" gorm:"column:email"`
	OnboardingStatus     Status         `json:"onboarding_status,omitempty" gorm:"column:onboarding_status"`
	OnboardingStatusAt   time.Time      `json:"onboarding_status_at,omitempty" gorm:"column:onboarding_status_at"`
	DriveFolderID        string         `json:"drive_folder_id,omitempty" gorm:"column:drive_folder_id"`
	DriveFolderURL       string         `json:"drive_folder_url,omitempty" gorm:"column:drive_folder_url"`
	DriveFolderCreatedAt *time.Time     `json:"drive_folder_created_at,omitempty" gorm:"column:drive_folder_created_at"`
	Metadata             datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb;column:metadata"`
	CreatedAt            time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Client) TableName() string {
	return "clients"
}

// MergeHints fills empty profile fields from the given hints. Returns true
// when at least one field changed.
func (c *Client) MergeHints(hints ClientHints) bool {
	changed := false
	if c.Name == "" && hints.Name != "" {
		c.Name = hints.Name
		changed = true
	}
	if c.Email == "" && hints.Email != "" {
		c.Email = hints.Email
		changed = true
	}
	return changed
}
