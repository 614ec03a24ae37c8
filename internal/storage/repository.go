package storage

import (
	"context"
	"time"

	"gitlab.com/purpura/api/onboarding-events-engine/internal/model"
)

// ReconcileRepo persists inbound events and the onboarding state machine
// they drive. ApplyEvent is the exactly-once entry point.
type ReconcileRepo interface {
	// ApplyEvent applies one normalized event atomically. A replayed
	// provider message id yields the current snapshot with Duplicate set,
	// not an error.
	ApplyEvent(ctx context.Context, event model.InboundEvent) (*model.ApplyResult, error)
	// Transition moves a session to the given status on behalf of an
	// operator, recording a synthetic system message and history row.
	Transition(ctx context.Context, ref model.SessionRef, next model.Status, reason string) (*model.ApplyResult, error)
	FindSession(ctx context.Context, ref model.SessionRef) (*model.OnboardingSession, error)
	ListStatusHistory(ctx context.Context, sessionID string, limit int) ([]model.StatusHistory, error)
	Close(ctx context.Context) error
}

// ClientRepo reads and updates client records outside the event path.
type ClientRepo interface {
	FindClientByID(ctx context.Context, id string) (*model.Client, error)
	// SetDriveFolder persists the provisioned folder reference. If a
	// concurrent writer stored one first, theirs wins and is returned.
	SetDriveFolder(ctx context.Context, clientID, folderID, folderURL string) (*model.Client, error)
	Close(ctx context.Context) error
}

// OperationalItemRepo manages the operational work items mirrored to the
// external board.
type OperationalItemRepo interface {
	// UpsertItem creates or updates an item. The bool reports whether the
	// item already existed (matched by id or idempotency key).
	UpsertItem(ctx context.Context, input model.OperationalItemInput) (*model.OperationalItem, bool, error)
	FindItemByID(ctx context.Context, id string) (*model.OperationalItem, error)
	ListItems(ctx context.Context, filter model.OperationalItemFilter) ([]model.OperationalItem, error)
	DeleteItem(ctx context.Context, id string) error
	SetCardRef(ctx context.Context, itemID, cardID, cardURL, listID string) error
	Close(ctx context.Context) error
}

// ReminderRepo lists due reminder schedules and owns the reservation rows
// that make each (phone, date, type) reminder fire at most once.
type ReminderRepo interface {
	ListDueSchedules(ctx context.Context, date time.Time) ([]model.ReminderSchedule, error)
	// ReserveReminder claims the reminder slot. Returns false when an
	// effective reservation already exists.
	ReserveReminder(ctx context.Context, log *model.ReminderLog) (bool, error)
	MarkReminderSent(ctx context.Context, id, providerMessageID string) error
	MarkReminderFailed(ctx context.Context, id, summary string) error
	Close(ctx context.Context) error
}
