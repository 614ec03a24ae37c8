package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/purpura/api/onboarding-events-engine/internal/apperrors"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/model"
)

func TestPostgresRepo_ListDueSchedules(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "client_id", "phone_e164", "remind_date", "reminder_type", "active"}).
		AddRow("sch-1", "cli-1", "+5511999998888", date, "document_followup", true).
		AddRow("sch-2", "cli-2", "+5511977776666", date, "document_followup", true)
	mock.ExpectQuery(`SELECT \* FROM "reminder_schedules" WHERE remind_date = \$1 AND active = \$2`).
		WithArgs("2024-03-15", true).
		WillReturnRows(rows)

	schedules, err := repo.ListDueSchedules(context.Background(), date)
	require.NoError(t, err)
	require.Len(t, schedules, 2)
	assert.Equal(t, "sch-1", schedules[0].ID)
}

func TestPostgresRepo_ReserveReminder_Claimed(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	mock.ExpectExec(`INSERT INTO "reminder_logs" .*ON CONFLICT \("phone_e164","remind_date","reminder_type"\) WHERE status IN \('sent','dry_run'\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	log := &model.ReminderLog{
		Phone:        "+5511999998888",
		RemindDate:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		ReminderType: "document_followup",
		Status:       model.ReminderStatusSent,
	}
	reserved, err := repo.ReserveReminder(context.Background(), log)
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.NotEmpty(t, log.ID)
}

func TestPostgresRepo_ReserveReminder_AlreadyHeld(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	mock.ExpectExec(`INSERT INTO "reminder_logs" .*DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	log := &model.ReminderLog{
		Phone:        "+5511999998888",
		RemindDate:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		ReminderType: "document_followup",
		Status:       model.ReminderStatusDryRun,
	}
	reserved, err := repo.ReserveReminder(context.Background(), log)
	require.NoError(t, err)
	assert.False(t, reserved)
}

func TestPostgresRepo_ReserveReminder_RejectsNonFinalStatus(t *testing.T) {
	repo, _, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	log := &model.ReminderLog{
		Phone:        "+5511999998888",
		ReminderType: "document_followup",
		Status:       model.ReminderStatusFailed,
	}
	_, err := repo.ReserveReminder(context.Background(), log)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestPostgresRepo_MarkReminderSent(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	mock.ExpectExec(`UPDATE "reminder_logs" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkReminderSent(context.Background(), "log-1", "wamid.SENT")
	assert.NoError(t, err)
}

func TestPostgresRepo_MarkReminderFailed_NotFound(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	mock.ExpectExec(`UPDATE "reminder_logs" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkReminderFailed(context.Background(), "missing", "provider 500")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
