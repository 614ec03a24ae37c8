package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/purpura/api/onboarding-events-engine/internal/apperrors"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/logger"
)

func newTrelloTestClient(t *testing.T, handler http.HandlerFunc) *TrelloClient {
	logger.Log = zaptest.NewLogger(t).Named("test")
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewTrelloClient(TrelloConfig{
		BaseURL: server.URL,
		Key:     "test-key",
		Token:   "test-token",
		ListID:  "list-1",
	})
}

func TestTrelloClient_CreateCard(t *testing.T) {
	client := newTrelloTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/cards", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "test-token", r.URL.Query().Get("token"))
		assert.Equal(t, "list-1", r.URL.Query().Get("idList"))
		assert.Equal(t, "Prepare briefing", r.URL.Query().Get("name"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"card-1","name":"Prepare briefing","url":"https://trello.example/c/card-1","idList":"list-1"}`))
	})

	card, err := client.CreateCard(context.Background(), "Prepare briefing", "details")
	require.NoError(t, err)
	assert.Equal(t, "card-1", card.ID)
	assert.Equal(t, "list-1", card.IDList)
}

func TestTrelloClient_UpdateCard(t *testing.T) {
	client := newTrelloTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/cards/card-1", r.URL.Path)
		w.Write([]byte(`{"id":"card-1","name":"Updated","idList":"list-1"}`))
	})

	card, err := client.UpdateCard(context.Background(), "card-1", "Updated", "")
	require.NoError(t, err)
	assert.Equal(t, "Updated", card.Name)
}

func TestTrelloClient_RateLimited(t *testing.T) {
	client := newTrelloTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	})

	_, err := client.CreateCard(context.Background(), "x", "")
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)
}

func TestTrelloClient_Unauthorized(t *testing.T) {
	client := newTrelloTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.UpdateCard(context.Background(), "card-1", "x", "")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestTrelloClient_NotConfigured(t *testing.T) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	client := NewTrelloClient(TrelloConfig{})
	assert.False(t, client.Configured())

	_, err := client.CreateCard(context.Background(), "x", "")
	assert.ErrorIs(t, err, apperrors.ErrExternalService)
}
