package usecase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/purpura/api/onboarding-events-engine/internal/integration"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/model"
	storagemock "gitlab.com/purpura/api/onboarding-events-engine/internal/storage/mock"
)

func TestFolderNameFor(t *testing.T) {
	assert.Equal(t, "Maria Silva - 5511999998888", folderNameFor("Maria Silva", "+5511999998888"))
	assert.Equal(t, "5511999998888", folderNameFor("", "+5511999998888"))
}

func TestEnsureFolder_SkippedWhenDriveNotConfigured(t *testing.T) {
	worker := &OrchestrationWorker{
		drive:      integration.NewDriveClient(integration.DriveConfig{}),
		baseLogger: zaptest.NewLogger(t),
	}
	err := worker.ensureFolder(context.Background(), "cli-1")
	assert.ErrorIs(t, err, errSkippedNotConfigured)
}

func TestEnsureFolder_ShortCircuitsOnStoredRef(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("drive should not be called when a folder ref is stored")
	}))
	t.Cleanup(server.Close)

	clientRepo := new(storagemock.ClientRepoMock)
	client := model.NewFakeClient(func(c *model.Client) {
		c.ID = "cli-1"
		c.DriveFolderID = "folder-1"
	})
	clientRepo.On("FindClientByID", mock.Anything, "cli-1").Return(client, nil).Once()

	worker := &OrchestrationWorker{
		clientRepo: clientRepo,
		drive:      integration.NewDriveClient(integration.DriveConfig{BaseURL: server.URL, AccessToken: "t"}),
		baseLogger: zaptest.NewLogger(t),
	}

	require.NoError(t, worker.ensureFolder(context.Background(), "cli-1"))
	clientRepo.AssertNotCalled(t, "SetDriveFolder")
}

func TestEnsureFolder_ProvisionsAndPersists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"files":[]}`))
			return
		}
		w.Write([]byte(`{"id":"folder-new","name":"Maria - 5511999998888","webViewLink":"https://drive.example/folder-new"}`))
	}))
	t.Cleanup(server.Close)

	clientRepo := new(storagemock.ClientRepoMock)
	clientRepo.On("FindClientByID", mock.Anything, "cli-1").
		Return(&model.Client{ID: "cli-1", Name: "Maria", Phone: "+5511999998888"}, nil).Once()
	clientRepo.On("SetDriveFolder", mock.Anything, "cli-1", "folder-new", "https://drive.example/folder-new").
		Return(&model.Client{ID: "cli-1", DriveFolderID: "folder-new"}, nil).Once()

	worker := &OrchestrationWorker{
		clientRepo: clientRepo,
		drive:      integration.NewDriveClient(integration.DriveConfig{BaseURL: server.URL, AccessToken: "t"}),
		baseLogger: zaptest.NewLogger(t),
	}

	require.NoError(t, worker.ensureFolder(context.Background(), "cli-1"))
	clientRepo.AssertExpectations(t)
}

func TestSyncCard_SkippedWhenTrelloNotConfigured(t *testing.T) {
	worker := &OrchestrationWorker{
		trello:     integration.NewTrelloClient(integration.TrelloConfig{}),
		baseLogger: zaptest.NewLogger(t),
	}
	err := worker.syncCard(context.Background(), "item-1")
	assert.ErrorIs(t, err, errSkippedNotConfigured)
}

func TestSyncCard_CreatesCardAndStoresRef(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"id":"card-1","name":"Task","url":"https://trello.example/c/card-1","idList":"list-1"}`))
	}))
	t.Cleanup(server.Close)

	itemRepo := new(storagemock.OperationalItemRepoMock)
	itemRepo.On("FindItemByID", mock.Anything, "item-1").
		Return(&model.OperationalItem{ID: "item-1", Title: "Task", Status: model.ItemStatusOpen}, nil).Once()
	itemRepo.On("SetCardRef", mock.Anything, "item-1", "card-1", "https://trello.example/c/card-1", "list-1").
		Return(nil).Once()

	worker := &OrchestrationWorker{
		itemRepo: itemRepo,
		trello: integration.NewTrelloClient(integration.TrelloConfig{
			BaseURL: server.URL, Key: "k", Token: "t", ListID: "list-1",
		}),
		baseLogger: zaptest.NewLogger(t),
	}

	require.NoError(t, worker.syncCard(context.Background(), "item-1"))
	itemRepo.AssertExpectations(t)
}

func TestSyncCard_UpdatesExistingCard(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/cards/card-1", r.URL.Path)
		w.Write([]byte(`{"id":"card-1","name":"Task","idList":"list-1"}`))
	}))
	t.Cleanup(server.Close)

	itemRepo := new(storagemock.OperationalItemRepoMock)
	itemRepo.On("FindItemByID", mock.Anything, "item-1").
		Return(&model.OperationalItem{ID: "item-1", Title: "Task", TrelloCardID: "card-1"}, nil).Once()

	worker := &OrchestrationWorker{
		itemRepo: itemRepo,
		trello: integration.NewTrelloClient(integration.TrelloConfig{
			BaseURL: server.URL, Key: "k", Token: "t", ListID: "list-1",
		}),
		baseLogger: zaptest.NewLogger(t),
	}

	require.NoError(t, worker.syncCard(context.Background(), "item-1"))
	itemRepo.AssertNotCalled(t, "SetCardRef")
}
