package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitlab.com/purpura/api/onboarding-events-engine/internal/apperrors"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/logger"
)

const driveFolderMimeType = "application/vnd.google-apps.folder"

// DriveConfig carries Drive credentials and provisioning defaults.
type DriveConfig struct {
	BaseURL        string
	AccessToken    string
	ParentFolderID string
	ShareWith      string
	Timeout        time.Duration
}

// DriveFolder is the subset of the file resource the engine tracks.
type DriveFolder struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	WebViewLink string `json:"webViewLink"`
}

// DriveClient talks to the Google Drive REST API.
type DriveClient struct {
	cfg  DriveConfig
	http *http.Client
}

// NewDriveClient creates a Drive client.
func NewDriveClient(cfg DriveConfig) *DriveClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.googleapis.com/drive/v3"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &DriveClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Configured reports whether the client has credentials.
func (c *DriveClient) Configured() bool {
	return c.cfg.AccessToken != ""
}

// ShareWith returns the configured collaborator address, if any.
func (c *DriveClient) ShareWith() string {
	return c.cfg.ShareWith
}

// EnsureFolder finds or creates a folder with the given name under the
// configured parent. Find-before-create keeps provisioning idempotent even
// though Drive itself allows same-name siblings.
func (c *DriveClient) EnsureFolder(ctx context.Context, name string) (*DriveFolder, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: drive client not configured", apperrors.ErrExternalService)
	}

	existing, err := c.FindFolder(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.FromContext(ctx).Debug("Found existing drive folder",
			zap.String("folder_id", existing.ID),
			zap.String("name", name))
		return existing, nil
	}

	folder, err := c.CreateFolder(ctx, name)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Created drive folder",
		zap.String("folder_id", folder.ID),
		zap.String("name", name))

	if c.cfg.ShareWith != "" {
		if shareErr := c.ShareFolder(ctx, folder.ID, c.cfg.ShareWith); shareErr != nil {
			// Sharing failure does not undo provisioning; the folder ref is
			// still persisted and sharing can be fixed by hand.
			logger.FromContext(ctx).Warn("Failed to share drive folder",
				zap.String("folder_id", folder.ID),
				zap.Error(shareErr))
		}
	}
	return folder, nil
}

// FindFolder searches for a non-trashed folder by exact name under the
// configured parent. Returns nil when nothing matches.
func (c *DriveClient) FindFolder(ctx context.Context, name string) (*DriveFolder, error) {
	query := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		escapeDriveQuery(name), driveFolderMimeType)
	if c.cfg.ParentFolderID != "" {
		query += fmt.Sprintf(" and '%s' in parents", c.cfg.ParentFolderID)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("fields", "files(id,name,webViewLink)")
	params.Set("pageSize", "5")

	var result struct {
		Files []DriveFolder `json:"files"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/files?"+params.Encode(), nil, &result); err != nil {
		return nil, err
	}
	if len(result.Files) == 0 {
		return nil, nil
	}
	if len(result.Files) > 1 {
		logger.FromContext(ctx).Warn("Multiple drive folders share a name, using the first",
			zap.String("name", name),
			zap.Int("count", len(result.Files)))
	}
	return &result.Files[0], nil
}

// CreateFolder creates a folder under the configured parent.
func (c *DriveClient) CreateFolder(ctx context.Context, name string) (*DriveFolder, error) {
	body := map[string]interface{}{
		"name":     name,
		"mimeType": driveFolderMimeType,
	}
	if c.cfg.ParentFolderID != "" {
		body["parents"] = []string{c.cfg.ParentFolderID}
	}

	var folder DriveFolder
	if err := c.doJSON(ctx, http.MethodPost, "/files?fields=id,name,webViewLink", body, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

// ShareFolder grants writer access to the given email.
func (c *DriveClient) ShareFolder(ctx context.Context, folderID, email string) error {
	body := map[string]interface{}{
		"role":         "writer",
		"type":         "user",
		"emailAddress": email,
	}
	return c.doJSON(ctx, http.MethodPost, "/files/"+folderID+"/permissions", body, nil)
}

func (c *DriveClient) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: failed to encode drive request: %w", apperrors.ErrExternalService, err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%w: failed to build drive request: %w", apperrors.ErrExternalService, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return mapTransportError("drive", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mapStatusError("drive", resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: failed to decode drive response: %w", apperrors.ErrExternalService, err)
		}
	}
	return nil
}

// escapeDriveQuery escapes single quotes in a Drive query literal.
func escapeDriveQuery(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}
