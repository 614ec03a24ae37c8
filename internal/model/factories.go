package model

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Test data factories. Overrides are applied after defaults so callers can
// pin only the fields a test cares about.

// NewFakeClient creates a Client with random data.
func NewFakeClient(overrides ...func(*Client)) *Client {
	now := time.Now().UTC()
	c := &Client{
		ID:                 uuid.New().String(),
		Name:               gofakeit.Name(),
		Phone:              fmt.Sprintf("+5511%08d", gofakeit.Number(10000000, 99999999)),
		Email:              gofakeit.Email(),
		OnboardingStatus:   StatusStarted,
		OnboardingStatusAt: now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	for _, o := range overrides {
		o(c)
	}
	return c
}

// NewFakeSession creates an OnboardingSession with random data.
func NewFakeSession(overrides ...func(*OnboardingSession)) *OnboardingSession {
	now := time.Now().UTC()
	s := &OnboardingSession{
		ID:              uuid.New().String(),
		Phone:           fmt.Sprintf("+5511%08d", gofakeit.Number(10000000, 99999999)),
		TrackingToken:   uuid.New().String(),
		ClientID:        uuid.New().String(),
		CurrentStatus:   StatusInProgress,
		StatusUpdatedAt: now,
		LastMessageAt:   now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, o := range overrides {
		o(s)
	}
	return s
}

// NewFakeInboundEvent creates an InboundEvent with random data.
func NewFakeInboundEvent(overrides ...func(*InboundEvent)) *InboundEvent {
	ev := &InboundEvent{
		Phone:             fmt.Sprintf("+5511%08d", gofakeit.Number(10000000, 99999999)),
		ProviderMessageID: "wamid." + uuid.New().String(),
		Direction:         DirectionInbound,
		Status:            StatusInProgress,
		EventTimestamp:    time.Now().UTC(),
		Payload:           datatypes.JSON([]byte(`{"type":"text"}`)),
		Hints:             ClientHints{Name: gofakeit.Name()},
	}
	for _, o := range overrides {
		o(ev)
	}
	return ev
}

// NewFakeReminderSchedule creates a ReminderSchedule with random data.
func NewFakeReminderSchedule(overrides ...func(*ReminderSchedule)) *ReminderSchedule {
	s := &ReminderSchedule{
		ID:           uuid.New().String(),
		ClientID:     uuid.New().String(),
		Phone:        fmt.Sprintf("+5511%08d", gofakeit.Number(10000000, 99999999)),
		RemindDate:   time.Now().UTC().Truncate(24 * time.Hour),
		ReminderType: "relevo",
		Timezone:     "America/Sao_Paulo",
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	for _, o := range overrides {
		o(s)
	}
	return s
}

// NewFakeOperationalItem creates an OperationalItem with random data.
func NewFakeOperationalItem(overrides ...func(*OperationalItem)) *OperationalItem {
	now := time.Now().UTC()
	i := &OperationalItem{
		ID:        uuid.New().String(),
		ItemType:  "task",
		Title:     gofakeit.Sentence(4),
		Status:    ItemStatusOpen,
		Priority:  "medium",
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, o := range overrides {
		o(i)
	}
	return i
}
