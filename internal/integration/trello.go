package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitlab.com/purpura/api/onboarding-events-engine/internal/apperrors"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/logger"
)

// TrelloConfig carries the board credentials. An unconfigured client is a
// valid state; callers check Configured before syncing.
type TrelloConfig struct {
	BaseURL string
	Key     string
	Token   string
	ListID  string
	Timeout time.Duration
}

// TrelloCard is the subset of the card resource the engine tracks.
type TrelloCard struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Desc   string `json:"desc"`
	URL    string `json:"url"`
	IDList string `json:"idList"`
}

// TrelloClient talks to the Trello REST API.
type TrelloClient struct {
	cfg  TrelloConfig
	http *http.Client
}

// NewTrelloClient creates a Trello client.
func NewTrelloClient(cfg TrelloConfig) *TrelloClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.trello.com/1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &TrelloClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Configured reports whether credentials and a target list are present.
func (c *TrelloClient) Configured() bool {
	return c.cfg.Key != "" && c.cfg.Token != "" && c.cfg.ListID != ""
}

// ListID returns the configured target list.
func (c *TrelloClient) ListID() string {
	return c.cfg.ListID
}

// CreateCard creates a card on the configured list.
func (c *TrelloClient) CreateCard(ctx context.Context, name, desc string) (*TrelloCard, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: trello client not configured", apperrors.ErrExternalService)
	}

	params := url.Values{}
	params.Set("idList", c.cfg.ListID)
	params.Set("name", name)
	params.Set("desc", desc)

	var card TrelloCard
	if err := c.do(ctx, http.MethodPost, "/cards", params, &card); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Created trello card",
		zap.String("card_id", card.ID),
		zap.String("list_id", card.IDList))
	return &card, nil
}

// UpdateCard updates the name and description of an existing card.
func (c *TrelloClient) UpdateCard(ctx context.Context, cardID, name, desc string) (*TrelloCard, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: trello client not configured", apperrors.ErrExternalService)
	}
	if cardID == "" {
		return nil, fmt.Errorf("%w: card id required", apperrors.ErrBadRequest)
	}

	params := url.Values{}
	params.Set("name", name)
	params.Set("desc", desc)

	var card TrelloCard
	if err := c.do(ctx, http.MethodPut, "/cards/"+cardID, params, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

func (c *TrelloClient) do(ctx context.Context, method, path string, params url.Values, out interface{}) error {
	params.Set("key", c.cfg.Key)
	params.Set("token", c.cfg.Token)

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to build trello request: %w", apperrors.ErrExternalService, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return mapTransportError("trello", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mapStatusError("trello", resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: failed to decode trello response: %w", apperrors.ErrExternalService, err)
		}
	}
	return nil
}

// mapTransportError wraps client-side transport failures.
func mapTransportError(service string, err error) error {
	if strings.Contains(err.Error(), "context deadline exceeded") ||
		strings.Contains(err.Error(), "Client.Timeout") {
		return fmt.Errorf("%w: %s request timed out: %w", apperrors.ErrTimeout, service, err)
	}
	return fmt.Errorf("%w: %s request failed: %w", apperrors.ErrExternalService, service, err)
}

// mapStatusError wraps non-2xx responses, keeping a short body excerpt for
// the error summary.
func mapStatusError(service string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	excerpt := strings.TrimSpace(string(body))

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s rate limited: %s", apperrors.ErrRateLimited, service, excerpt)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s rejected credentials (status %d): %s", apperrors.ErrUnauthorized, service, resp.StatusCode, excerpt)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s resource not found: %s", apperrors.ErrNotFound, service, excerpt)
	default:
		return fmt.Errorf("%w: %s returned status %d: %s", apperrors.ErrExternalService, service, resp.StatusCode, excerpt)
	}
}
