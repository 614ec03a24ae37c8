package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/model"
)

// --- ReconcileRepo Mock ---

// ReconcileRepoMock mocks the ReconcileRepo interface
type ReconcileRepoMock struct {
	mock.Mock
}

// ApplyEvent mocks the ApplyEvent method
func (m *ReconcileRepoMock) ApplyEvent(ctx context.Context, event model.InboundEvent) (*model.ApplyResult, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ApplyResult), args.Error(1)
}

// Transition mocks the Transition method
func (m *ReconcileRepoMock) Transition(ctx context.Context, ref model.SessionRef, next model.Status, reason string) (*model.ApplyResult, error) {
	args := m.Called(ctx, ref, next, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ApplyResult), args.Error(1)
}

// FindSession mocks the FindSession method
func (m *ReconcileRepoMock) FindSession(ctx context.Context, ref model.SessionRef) (*model.OnboardingSession, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OnboardingSession), args.Error(1)
}

// ListStatusHistory mocks the ListStatusHistory method
func (m *ReconcileRepoMock) ListStatusHistory(ctx context.Context, sessionID string, limit int) ([]model.StatusHistory, error) {
	args := m.Called(ctx, sessionID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StatusHistory), args.Error(1)
}

// Close mocks the Close method
func (m *ReconcileRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ClientRepo Mock ---

// ClientRepoMock mocks the ClientRepo interface
type ClientRepoMock struct {
	mock.Mock
}

// FindClientByID mocks the FindClientByID method
func (m *ClientRepoMock) FindClientByID(ctx context.Context, id string) (*model.Client, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Client), args.Error(1)
}

// SetDriveFolder mocks the SetDriveFolder method
func (m *ClientRepoMock) SetDriveFolder(ctx context.Context, clientID, folderID, folderURL string) (*model.Client, error) {
	args := m.Called(ctx, clientID, folderID, folderURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Client), args.Error(1)
}

// Close mocks the Close method
func (m *ClientRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- OperationalItemRepo Mock ---

// OperationalItemRepoMock mocks the OperationalItemRepo interface
type OperationalItemRepoMock struct {
	mock.Mock
}

// UpsertItem mocks the UpsertItem method
func (m *OperationalItemRepoMock) UpsertItem(ctx context.Context, input model.OperationalItemInput) (*model.OperationalItem, bool, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.OperationalItem), args.Bool(1), args.Error(2)
}

// FindItemByID mocks the FindItemByID method
func (m *OperationalItemRepoMock) FindItemByID(ctx context.Context, id string) (*model.OperationalItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OperationalItem), args.Error(1)
}

// ListItems mocks the ListItems method
func (m *OperationalItemRepoMock) ListItems(ctx context.Context, filter model.OperationalItemFilter) ([]model.OperationalItem, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.OperationalItem), args.Error(1)
}

// DeleteItem mocks the DeleteItem method
func (m *OperationalItemRepoMock) DeleteItem(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// SetCardRef mocks the SetCardRef method
func (m *OperationalItemRepoMock) SetCardRef(ctx context.Context, itemID, cardID, cardURL, listID string) error {
	args := m.Called(ctx, itemID, cardID, cardURL, listID)
	return args.Error(0)
}

// Close mocks the Close method
func (m *OperationalItemRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ReminderRepo Mock ---

// ReminderRepoMock mocks the ReminderRepo interface
type ReminderRepoMock struct {
	mock.Mock
}

// ListDueSchedules mocks the ListDueSchedules method
func (m *ReminderRepoMock) ListDueSchedules(ctx context.Context, date time.Time) ([]model.ReminderSchedule, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ReminderSchedule), args.Error(1)
}

// ReserveReminder mocks the ReserveReminder method
func (m *ReminderRepoMock) ReserveReminder(ctx context.Context, log *model.ReminderLog) (bool, error) {
	args := m.Called(ctx, log)
	return args.Bool(0), args.Error(1)
}

// MarkReminderSent mocks the MarkReminderSent method
func (m *ReminderRepoMock) MarkReminderSent(ctx context.Context, id, providerMessageID string) error {
	args := m.Called(ctx, id, providerMessageID)
	return args.Error(0)
}

// MarkReminderFailed mocks the MarkReminderFailed method
func (m *ReminderRepoMock) MarkReminderFailed(ctx context.Context, id, summary string) error {
	args := m.Called(ctx, id, summary)
	return args.Error(0)
}

// Close mocks the Close method
func (m *ReminderRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
