package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"gitlab.com/purpura/api/onboarding-events-engine/internal/apperrors"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/model"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/logger"
)

func newTestRepo(t *testing.T) (*PostgresRepo, sqlmock.Sqlmock, func()) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	assert.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent),
		SkipDefaultTransaction: true,
	})
	assert.NoError(t, err)
	repo := &PostgresRepo{db: gormDB}
	teardown := func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	}
	return repo, mock, teardown
}

func sessionColumns() []string {
	return []string{
		"id", "phone_e164", "tracking_token", "client_id", "current_status",
		"status_updated_at", "last_message_at", "last_provider_message_id",
		"created_at", "updated_at",
	}
}

func sessionRow(id, phone, token, clientID string, status model.Status, at time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(sessionColumns()).
		AddRow(id, phone, token, clientID, status, at, at, "wamid.prev", at, at)
}

func TestPostgresRepo_ApplyEvent_DuplicateShortCircuits(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := context.Background()

	now := time.Now().UTC()
	event := model.InboundEvent{
		Phone:             "+5511999998888",
		ProviderMessageID: "wamid.DUP",
		Direction:         model.DirectionInbound,
		Status:            model.StatusInProgress,
		EventTimestamp:    now,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "onboarding_sessions" WHERE phone_e164 = \$1 .*FOR UPDATE`).
		WillReturnRows(sessionRow("sess-1", event.Phone, "tok-1", "cli-1", model.StatusInProgress, now))
	mock.ExpectQuery(`SELECT \* FROM "onboarding_messages" WHERE provider_message_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "provider_message_id"}).
			AddRow(7, "sess-1", "wamid.DUP"))
	mock.ExpectQuery(`SELECT \* FROM "onboarding_sessions" WHERE id = \$1`).
		WillReturnRows(sessionRow("sess-1", event.Phone, "tok-1", "cli-1", model.StatusInProgress, now))
	mock.ExpectCommit()

	result, err := repo.ApplyEvent(ctx, event)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Duplicate)
	assert.Equal(t, "sess-1", result.SessionID)
	assert.Equal(t, model.StatusInProgress, result.Status)
}

func TestPostgresRepo_ApplyEvent_NewSessionAndClient(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := context.Background()

	now := time.Now().UTC()
	event := model.InboundEvent{
		Phone:             "+5511999998888",
		ProviderMessageID: "wamid.NEW",
		Direction:         model.DirectionInbound,
		Status:            model.StatusInProgress,
		EventTimestamp:    now,
		Hints:             model.ClientHints{Name: "Maria Silva"},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "onboarding_sessions" WHERE phone_e164 = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(sessionColumns()))
	mock.ExpectQuery(`SELECT \* FROM "onboarding_messages" WHERE provider_message_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "clients" WHERE whatsapp_phone = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "whatsapp_phone"}))
	mock.ExpectExec(`INSERT INTO "clients"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "onboarding_sessions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "onboarding_messages"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO "onboarding_status_history"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(`UPDATE "onboarding_sessions" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "clients" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.ApplyEvent(ctx, event)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Duplicate)
	assert.NotEmpty(t, result.SessionID)
	assert.NotEmpty(t, result.TrackingToken)
	assert.Equal(t, model.StatusInProgress, result.Status)
}

func TestPostgresRepo_ApplyEvent_InsertRaceReturnsWinner(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := context.Background()

	now := time.Now().UTC()
	event := model.InboundEvent{
		Phone:             "+5511999998888",
		ProviderMessageID: "wamid.RACE",
		Direction:         model.DirectionInbound,
		Status:            model.StatusInProgress,
		EventTimestamp:    now,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "onboarding_sessions" WHERE phone_e164 = \$1 .*FOR UPDATE`).
		WillReturnRows(sessionRow("sess-1", event.Phone, "tok-1", "cli-1", model.StatusInProgress, now))
	mock.ExpectQuery(`SELECT \* FROM "onboarding_messages" WHERE provider_message_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "clients" WHERE whatsapp_phone = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "whatsapp_phone"}).AddRow("cli-1", event.Phone))
	mock.ExpectQuery(`INSERT INTO "onboarding_messages"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_messages_provider_message_id"})
	mock.ExpectRollback()
	mock.ExpectQuery(`SELECT \* FROM "onboarding_messages" WHERE provider_message_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "provider_message_id"}).
			AddRow(9, "sess-1", "wamid.RACE"))
	mock.ExpectQuery(`SELECT \* FROM "onboarding_sessions" WHERE id = \$1`).
		WillReturnRows(sessionRow("sess-1", event.Phone, "tok-1", "cli-1", model.StatusInProgress, now))

	result, err := repo.ApplyEvent(ctx, event)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Duplicate)
	assert.Equal(t, "sess-1", result.SessionID)
}

func TestPostgresRepo_ApplyEvent_RejectsIncompleteEvent(t *testing.T) {
	repo, _, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	_, err := repo.ApplyEvent(context.Background(), model.InboundEvent{
		Direction: model.DirectionInbound,
	})
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = repo.ApplyEvent(context.Background(), model.InboundEvent{
		Phone:             "+5511999998888",
		ProviderMessageID: "wamid.X",
		Direction:         "sideways",
	})
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestPostgresRepo_Transition_Success(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := context.Background()

	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "onboarding_sessions" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sessionRow("sess-1", "+5511999998888", "tok-1", "cli-1", model.StatusInProgress, now))
	mock.ExpectQuery(`INSERT INTO "onboarding_messages"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO "onboarding_status_history"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(`UPDATE "onboarding_sessions" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "clients" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.Transition(ctx, model.SessionRef{SessionID: "sess-1"}, model.StatusCompleted, "docs approved")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, model.StatusCompleted, result.Status)
	assert.False(t, result.Duplicate)
}

func TestPostgresRepo_Transition_SameStatusSkipsHistory(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)
	ctx := context.Background()

	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "onboarding_sessions" WHERE tracking_token = \$1 .*FOR UPDATE`).
		WillReturnRows(sessionRow("sess-1", "+5511999998888", "tok-1", "cli-1", model.StatusInProgress, now))
	mock.ExpectQuery(`INSERT INTO "onboarding_messages"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	result, err := repo.Transition(ctx, model.SessionRef{TrackingToken: "tok-1"}, model.StatusInProgress, "noop")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, result.Status)
}

func TestPostgresRepo_Transition_NotFound(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "onboarding_sessions" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(sessionColumns()))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), model.SessionRef{SessionID: "missing"}, model.StatusCompleted, "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPostgresRepo_Transition_InvalidStatus(t *testing.T) {
	repo, _, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	_, err := repo.Transition(context.Background(), model.SessionRef{SessionID: "sess-1"}, model.Status("parked"), "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidStatus)
}

func TestPostgresRepo_FindSession_ByPhone(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT \* FROM "onboarding_sessions" WHERE phone_e164 = \$1`).
		WillReturnRows(sessionRow("sess-1", "+5511999998888", "tok-1", "cli-1", model.StatusAwaitingClient, now))

	session, err := repo.FindSession(context.Background(), model.SessionRef{Phone: "+5511999998888"})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", session.ID)
	assert.Equal(t, model.StatusAwaitingClient, session.CurrentStatus)
}

func TestPostgresRepo_FindSession_NotFound(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	mock.ExpectQuery(`SELECT \* FROM "onboarding_sessions" WHERE tracking_token = \$1`).
		WillReturnRows(sqlmock.NewRows(sessionColumns()))

	_, err := repo.FindSession(context.Background(), model.SessionRef{TrackingToken: "nope"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPostgresRepo_ListStatusHistory(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "session_id", "from_status", "to_status", "reason", "changed_at"}).
		AddRow(2, "sess-1", model.StatusInProgress, model.StatusCompleted, "docs approved", now).
		AddRow(1, "sess-1", model.StatusStarted, model.StatusInProgress, "provider_event", now.Add(-time.Hour))
	mock.ExpectQuery(`SELECT \* FROM "onboarding_status_history" WHERE session_id = \$1`).
		WillReturnRows(rows)

	history, err := repo.ListStatusHistory(context.Background(), "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.StatusCompleted, history[0].ToStatus)
}
