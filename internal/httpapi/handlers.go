package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"gitlab.com/purpura/api/onboarding-events-engine/internal/apperrors"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/model"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/observer"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/usecase"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/webhook"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/logger"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/utils"
)

// maxWebhookBodyBytes caps the raw webhook payload size before parsing.
const maxWebhookBodyBytes = 1 << 20

// Handlers bundles the domain endpoints with their collaborators.
type Handlers struct {
	reconcile   *usecase.ReconcileService
	operational *usecase.OperationalService
	reminders   *usecase.ReminderService
	extractor   *webhook.Extractor
	verifyToken string
	appSecret   string
}

// NewHandlers creates the handler set wired into RegisterHandlers.
func NewHandlers(
	reconcile *usecase.ReconcileService,
	operational *usecase.OperationalService,
	reminders *usecase.ReminderService,
	extractor *webhook.Extractor,
	verifyToken, appSecret string,
) *Handlers {
	return &Handlers{
		reconcile:   reconcile,
		operational: operational,
		reminders:   reminders,
		extractor:   extractor,
		verifyToken: verifyToken,
		appSecret:   appSecret,
	}
}

// errorResponse is the uniform error body for all endpoints.
type errorResponse struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// statusForError maps application errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrValidation),
		errors.Is(err, apperrors.ErrBadRequest),
		errors.Is(err, apperrors.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrDuplicate), errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	utils.WriteJSONResponse(w, status, errorResponse{
		Error:     err.Error(),
		RequestID: logger.RequestIDFromContext(r.Context()),
	})
}

// handleWebhookVerify answers the provider's subscription handshake: echo the
// challenge as plain text when the verify token matches, 403 otherwise.
func (h *Handlers) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode != "subscribe" || h.verifyToken == "" || token != h.verifyToken {
		observer.IncWebhookRequest("verify_rejected")
		logger.FromContext(r.Context()).Warn("Webhook verification rejected",
			zap.String("mode", mode))
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}

	observer.IncWebhookRequest("verified")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// handleWebhookReceive ingests one provider webhook delivery. The signature is
// checked against the raw body before any parsing; redelivered payloads are
// absorbed by event-level dedup, so this endpoint always returns 200 unless
// the batch could not be durably applied.
func (h *Handlers) handleWebhookReceive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		observer.IncWebhookRequest("read_error")
		h.writeError(w, r, fmt.Errorf("%w: reading request body", apperrors.ErrBadRequest))
		return
	}
	log.Debug("Received webhook payload", zap.String("size", utils.ByteCountSI(len(rawBody))))

	if !webhook.VerifySignature(rawBody, r.Header.Get("X-Hub-Signature-256"), h.appSecret) {
		observer.IncWebhookRequest("unauthorized")
		log.Warn("Webhook signature verification failed")
		h.writeError(w, r, fmt.Errorf("%w: invalid payload signature", apperrors.ErrUnauthorized))
		return
	}

	var payload webhook.Payload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		observer.IncWebhookRequest("malformed")
		h.writeError(w, r, fmt.Errorf("%w: malformed webhook payload: %w", apperrors.ErrBadRequest, err))
		return
	}

	events := h.extractor.Extract(&payload)
	summary, err := h.reconcile.ApplyBatch(ctx, events)
	if err != nil {
		// Non-2xx makes the provider redeliver; replayed events settle as
		// duplicates on the next attempt.
		observer.IncWebhookRequest("apply_error")
		h.writeError(w, r, err)
		return
	}

	observer.IncWebhookRequest("ok")
	utils.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"ok":         true,
		"processed":  summary.Processed,
		"duplicates": summary.Duplicates,
		"request_id": logger.RequestIDFromContext(ctx),
	})
}

// transitionRequest is the manual status change payload. Exactly one of the
// session reference fields must identify an existing session.
type transitionRequest struct {
	SessionID     string `json:"session_id,omitempty"`
	TrackingToken string `json:"tracking_token,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
}

func (h *Handlers) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: malformed request body: %w", apperrors.ErrBadRequest, err))
		return
	}

	ref := model.SessionRef{
		SessionID:     req.SessionID,
		TrackingToken: req.TrackingToken,
		Phone:         req.Phone,
	}
	if ref.IsZero() {
		h.writeError(w, r, fmt.Errorf("%w: one of session_id, tracking_token, or phone is required", apperrors.ErrBadRequest))
		return
	}

	result, err := h.reconcile.Transition(r.Context(), ref, model.Status(req.Status), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"ok":                true,
		"session_id":        result.SessionID,
		"tracking_token":    result.TrackingToken,
		"cliente_id":        result.ClientID,
		"status":            result.Status,
		"status_updated_at": result.StatusUpdatedAt,
	})
}

func (h *Handlers) handleIntake(w http.ResponseWriter, r *http.Request) {
	var req usecase.IntakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: malformed request body: %w", apperrors.ErrBadRequest, err))
		return
	}

	result, err := h.reconcile.Intake(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusCreated, map[string]interface{}{
		"ok":             true,
		"cliente_id":     result.ClientID,
		"session_id":     result.SessionID,
		"tracking_token": result.TrackingToken,
		"status":         result.Status,
	})
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	ref := model.SessionRef{
		SessionID:     query.Get("session_id"),
		TrackingToken: query.Get("tracking_token"),
		Phone:         query.Get("phone"),
	}
	if ref.IsZero() {
		h.writeError(w, r, fmt.Errorf("%w: one of session_id, tracking_token, or phone is required", apperrors.ErrBadRequest))
		return
	}

	historyLimit := 0
	if raw := query.Get("history_limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, r, fmt.Errorf("%w: invalid history_limit %q", apperrors.ErrBadRequest, raw))
			return
		}
		historyLimit = parsed
	}

	view, err := h.reconcile.Status(r.Context(), ref, historyLimit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, view)
}

func (h *Handlers) handleUpsertItem(w http.ResponseWriter, r *http.Request) {
	var input model.OperationalItemInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: malformed request body: %w", apperrors.ErrBadRequest, err))
		return
	}

	item, existed, err := h.operational.Upsert(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	utils.WriteJSONResponse(w, status, item)
}

func (h *Handlers) handleListItems(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := model.OperationalItemFilter{
		ItemType: query.Get("item_type"),
		Status:   query.Get("status"),
		ClientID: query.Get("cliente_id"),
	}
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, r, fmt.Errorf("%w: invalid limit %q", apperrors.ErrBadRequest, raw))
			return
		}
		filter.Limit = parsed
	}
	if raw := query.Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, r, fmt.Errorf("%w: invalid offset %q", apperrors.ErrBadRequest, raw))
			return
		}
		filter.Offset = parsed
	}

	items, err := h.operational.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

func (h *Handlers) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.operational.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, item)
}

func (h *Handlers) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.operational.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// reminderRunRequest triggers one reminder batch. Mode defaults to "today".
type reminderRunRequest struct {
	Mode   string `json:"mode,omitempty"`
	DryRun bool   `json:"dry_run,omitempty"`
}

func (h *Handlers) handleReminderRun(w http.ResponseWriter, r *http.Request) {
	req := reminderRunRequest{Mode: usecase.ReminderModeToday}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, r, fmt.Errorf("%w: malformed request body: %w", apperrors.ErrBadRequest, err))
			return
		}
		if req.Mode == "" {
			req.Mode = usecase.ReminderModeToday
		}
	}

	summary, err := h.reminders.Run(r.Context(), req.Mode, req.DryRun)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"ok":          true,
		"mode":        summary.Mode,
		"dry_run":     summary.DryRun,
		"target_date": summary.TargetDate,
		"processed":   summary.Processed,
		"sent":        summary.Sent,
		"skipped":     summary.Skipped,
		"failed":      summary.Failed,
	})
}
