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

func strPtr(s string) *string { return &s }

func itemColumns() []string {
	return []string{
		"id", "idempotency_key", "item_type", "title", "description", "client_id",
		"assignee", "priority", "status", "trello_card_id", "trello_card_url",
		"trello_list_id", "created_at", "updated_at",
	}
}

func TestPostgresRepo_UpsertItem_Create(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "operational_items" WHERE idempotency_key = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(itemColumns()))
	mock.ExpectExec(`INSERT INTO "operational_items"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	input := model.OperationalItemInput{
		IdempotencyKey: strPtr("briefing-2024-03-15-cli-1"),
		ItemType:       strPtr("briefing"),
		Title:          strPtr("Prepare onboarding briefing"),
		ClientID:       strPtr("cli-1"),
	}
	item, existed, err := repo.UpsertItem(context.Background(), input)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, model.ItemStatusOpen, item.Status)
	assert.Equal(t, "Prepare onboarding briefing", item.Title)
}

func TestPostgresRepo_UpsertItem_ReplayByIdempotencyKeyReturnsStoredRow(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	now := time.Now().UTC()
	existing := sqlmock.NewRows(itemColumns()).
		AddRow("item-1", "briefing-2024-03-15-cli-1", "briefing", "Old title", "", "cli-1",
			"", "", model.ItemStatusOpen, "", "", "", now, now)

	// A replayed creation request must not rewrite the stored row: the key
	// lookup is followed directly by commit, never an UPDATE.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "operational_items" WHERE idempotency_key = \$1 .*FOR UPDATE`).
		WillReturnRows(existing)
	mock.ExpectCommit()

	input := model.OperationalItemInput{
		IdempotencyKey: strPtr("briefing-2024-03-15-cli-1"),
		Title:          strPtr("Replayed title"),
		Status:         strPtr(model.ItemStatusInProgress),
	}
	item, existed, err := repo.UpsertItem(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, "item-1", item.ID)
	assert.Equal(t, "Old title", item.Title)
	assert.Equal(t, model.ItemStatusOpen, item.Status)
}

func TestPostgresRepo_UpsertItem_UpdateByID(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	now := time.Now().UTC()
	existing := sqlmock.NewRows(itemColumns()).
		AddRow("item-1", nil, "briefing", "Old title", "", "cli-1",
			"", "", model.ItemStatusOpen, "", "", "", now, now)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "operational_items" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(existing)
	mock.ExpectExec(`UPDATE "operational_items" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	input := model.OperationalItemInput{
		ID:     strPtr("item-1"),
		Title:  strPtr("New title"),
		Status: strPtr(model.ItemStatusInProgress),
	}
	item, existed, err := repo.UpsertItem(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, "item-1", item.ID)
	assert.Equal(t, "New title", item.Title)
	assert.Equal(t, model.ItemStatusInProgress, item.Status)
}

func TestPostgresRepo_UpsertItem_MissingTitleOnCreate(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, _, err := repo.UpsertItem(context.Background(), model.OperationalItemInput{
		ItemType: strPtr("task"),
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestPostgresRepo_FindItemByID_NotFound(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	mock.ExpectQuery(`SELECT \* FROM "operational_items" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(itemColumns()))

	_, err := repo.FindItemByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPostgresRepo_ListItems_Filtered(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(itemColumns()).
		AddRow("item-1", nil, "task", "Follow up docs", "", "cli-1",
			"ana", "high", model.ItemStatusOpen, "", "", "", now, now)
	mock.ExpectQuery(`SELECT \* FROM "operational_items" WHERE item_type = \$1 AND status = \$2`).
		WillReturnRows(rows)

	items, err := repo.ListItems(context.Background(), model.OperationalItemFilter{
		ItemType: "task",
		Status:   model.ItemStatusOpen,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "item-1", items[0].ID)
}

func TestPostgresRepo_DeleteItem(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	mock.ExpectExec(`DELETE FROM "operational_items" WHERE id = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.DeleteItem(context.Background(), "item-1"))
}

func TestPostgresRepo_SetCardRef(t *testing.T) {
	repo, mock, teardown := newTestRepo(t)
	t.Cleanup(teardown)

	mock.ExpectExec(`UPDATE "operational_items" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetCardRef(context.Background(), "item-1", "card-1", "https://trello.example/c/card-1", "list-1")
	assert.NoError(t, err)
}
