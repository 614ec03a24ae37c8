package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitlab.com/purpura/api/onboarding-events-engine/internal/apperrors"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/logger"
)

// WhatsAppConfig carries the Graph API credentials for outbound sends.
type WhatsAppConfig struct {
	BaseURL          string
	AccessToken      string
	PhoneNumberID    string
	TemplateName     string
	TemplateLanguage string
	SendEnabled      bool
	Timeout          time.Duration
}

// WhatsAppClient sends template messages through the provider's Graph API.
type WhatsAppClient struct {
	cfg  WhatsAppConfig
	http *http.Client
}

// NewWhatsAppClient creates a WhatsApp sender.
func NewWhatsAppClient(cfg WhatsAppConfig) *WhatsAppClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com/v19.0"
	}
	if cfg.TemplateLanguage == "" {
		cfg.TemplateLanguage = "pt_BR"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WhatsAppClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Configured reports whether credentials are present.
func (c *WhatsAppClient) Configured() bool {
	return c.cfg.AccessToken != "" && c.cfg.PhoneNumberID != "" && c.cfg.TemplateName != ""
}

// Enabled reports whether outbound sends are switched on. A configured but
// disabled client makes every run behave like a dry run.
func (c *WhatsAppClient) Enabled() bool {
	return c.cfg.SendEnabled && c.Configured()
}

// SendTemplate sends the configured template to the given phone and returns
// the provider message id.
func (c *WhatsAppClient) SendTemplate(ctx context.Context, toPhone string, params []string) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("%w: whatsapp client not configured", apperrors.ErrExternalService)
	}
	if toPhone == "" {
		return "", fmt.Errorf("%w: destination phone required", apperrors.ErrBadRequest)
	}

	components := []map[string]interface{}{}
	if len(params) > 0 {
		parameters := make([]map[string]string, 0, len(params))
		for _, p := range params {
			parameters = append(parameters, map[string]string{"type": "text", "text": p})
		}
		components = append(components, map[string]interface{}{
			"type":       "body",
			"parameters": parameters,
		})
	}

	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                strings.TrimPrefix(toPhone, "+"),
		"type":              "template",
		"template": map[string]interface{}{
			"name":       c.cfg.TemplateName,
			"language":   map[string]string{"code": c.cfg.TemplateLanguage},
			"components": components,
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: failed to encode whatsapp request: %w", apperrors.ErrExternalService, err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + c.cfg.PhoneNumberID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: failed to build whatsapp request: %w", apperrors.ErrExternalService, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", mapTransportError("whatsapp", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", mapStatusError("whatsapp", resp)
	}

	var result struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: failed to decode whatsapp response: %w", apperrors.ErrExternalService, err)
	}
	if len(result.Messages) == 0 || result.Messages[0].ID == "" {
		return "", fmt.Errorf("%w: whatsapp response carried no message id", apperrors.ErrExternalService)
	}

	providerMessageID := result.Messages[0].ID
	logger.FromContext(ctx).Info("Sent whatsapp template message",
		zap.String("provider_message_id", providerMessageID),
		zap.String("template", c.cfg.TemplateName))
	return providerMessageID, nil
}
