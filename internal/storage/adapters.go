package storage

import (
	"context"
	"time"

	"gitlab.com/purpura/api/onboarding-events-engine/internal/model"
)

// ReconcileRepoAdapter adapts the PostgresRepo to the ReconcileRepo interface
type ReconcileRepoAdapter struct {
	postgres *PostgresRepo
}

// NewReconcileRepoAdapter creates a new reconcile repository adapter
func NewReconcileRepoAdapter(postgres *PostgresRepo) ReconcileRepo {
	return &ReconcileRepoAdapter{postgres: postgres}
}

func (a *ReconcileRepoAdapter) ApplyEvent(ctx context.Context, event model.InboundEvent) (*model.ApplyResult, error) {
	return a.postgres.ApplyEvent(ctx, event)
}

func (a *ReconcileRepoAdapter) Transition(ctx context.Context, ref model.SessionRef, next model.Status, reason string) (*model.ApplyResult, error) {
	return a.postgres.Transition(ctx, ref, next, reason)
}

func (a *ReconcileRepoAdapter) FindSession(ctx context.Context, ref model.SessionRef) (*model.OnboardingSession, error) {
	return a.postgres.FindSession(ctx, ref)
}

func (a *ReconcileRepoAdapter) ListStatusHistory(ctx context.Context, sessionID string, limit int) ([]model.StatusHistory, error) {
	return a.postgres.ListStatusHistory(ctx, sessionID, limit)
}

func (a *ReconcileRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// ClientRepoAdapter adapts the PostgresRepo to the ClientRepo interface
type ClientRepoAdapter struct {
	postgres *PostgresRepo
}

// NewClientRepoAdapter creates a new client repository adapter
func NewClientRepoAdapter(postgres *PostgresRepo) ClientRepo {
	return &ClientRepoAdapter{postgres: postgres}
}

func (a *ClientRepoAdapter) FindClientByID(ctx context.Context, id string) (*model.Client, error) {
	return a.postgres.FindClientByID(ctx, id)
}

func (a *ClientRepoAdapter) SetDriveFolder(ctx context.Context, clientID, folderID, folderURL string) (*model.Client, error) {
	return a.postgres.SetDriveFolder(ctx, clientID, folderID, folderURL)
}

func (a *ClientRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// OperationalItemRepoAdapter adapts the PostgresRepo to the OperationalItemRepo interface
type OperationalItemRepoAdapter struct {
	postgres *PostgresRepo
}

// NewOperationalItemRepoAdapter creates a new operational item repository adapter
func NewOperationalItemRepoAdapter(postgres *PostgresRepo) OperationalItemRepo {
	return &OperationalItemRepoAdapter{postgres: postgres}
}

func (a *OperationalItemRepoAdapter) UpsertItem(ctx context.Context, input model.OperationalItemInput) (*model.OperationalItem, bool, error) {
	return a.postgres.UpsertItem(ctx, input)
}

func (a *OperationalItemRepoAdapter) FindItemByID(ctx context.Context, id string) (*model.OperationalItem, error) {
	return a.postgres.FindItemByID(ctx, id)
}

func (a *OperationalItemRepoAdapter) ListItems(ctx context.Context, filter model.OperationalItemFilter) ([]model.OperationalItem, error) {
	return a.postgres.ListItems(ctx, filter)
}

func (a *OperationalItemRepoAdapter) DeleteItem(ctx context.Context, id string) error {
	return a.postgres.DeleteItem(ctx, id)
}

func (a *OperationalItemRepoAdapter) SetCardRef(ctx context.Context, itemID, cardID, cardURL, listID string) error {
	return a.postgres.SetCardRef(ctx, itemID, cardID, cardURL, listID)
}

func (a *OperationalItemRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// ReminderRepoAdapter adapts the PostgresRepo to the ReminderRepo interface
type ReminderRepoAdapter struct {
	postgres *PostgresRepo
}

// NewReminderRepoAdapter creates a new reminder repository adapter
func NewReminderRepoAdapter(postgres *PostgresRepo) ReminderRepo {
	return &ReminderRepoAdapter{postgres: postgres}
}

func (a *ReminderRepoAdapter) ListDueSchedules(ctx context.Context, date time.Time) ([]model.ReminderSchedule, error) {
	return a.postgres.ListDueSchedules(ctx, date)
}

func (a *ReminderRepoAdapter) ReserveReminder(ctx context.Context, log *model.ReminderLog) (bool, error) {
	return a.postgres.ReserveReminder(ctx, log)
}

func (a *ReminderRepoAdapter) MarkReminderSent(ctx context.Context, id, providerMessageID string) error {
	return a.postgres.MarkReminderSent(ctx, id, providerMessageID)
}

func (a *ReminderRepoAdapter) MarkReminderFailed(ctx context.Context, id, summary string) error {
	return a.postgres.MarkReminderFailed(ctx, id, summary)
}

func (a *ReminderRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}
