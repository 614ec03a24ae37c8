package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/purpura/api/onboarding-events-engine/internal/apperrors"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/model"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/observer"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/storage"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/validator"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/logger"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/utils"
)

// WebhookSummary aggregates the outcome of applying one webhook batch.
type WebhookSummary struct {
	Processed  int `json:"processed"`
	Duplicates int `json:"duplicates"`
}

// IntakeRequest is a frontend-originated session creation request. The field
// names on the wire follow the dashboard's vocabulary.
type IntakeRequest struct {
	Name  string `json:"nome" validate:"required"`
	Phone string `json:"telefone" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

// StatusView is the session snapshot plus its audit trail.
type StatusView struct {
	Session *model.OnboardingSession `json:"session"`
	History []model.StatusHistory    `json:"history"`
}

// ReconcileService drives event application and the onboarding state machine.
type ReconcileService struct {
	repo          storage.ReconcileRepo
	orchestrator  Orchestrator
	countryPrefix string
}

// NewReconcileService creates the reconciliation service. The orchestrator
// may be nil in tests; downstream tasks are then skipped.
func NewReconcileService(repo storage.ReconcileRepo, orchestrator Orchestrator, countryPrefix string) *ReconcileService {
	if countryPrefix == "" {
		countryPrefix = utils.DefaultCountryPrefix
	}
	return &ReconcileService{
		repo:          repo,
		orchestrator:  orchestrator,
		countryPrefix: countryPrefix,
	}
}

// ApplyBatch applies each normalized event in order. Duplicates count toward
// the summary but change nothing. The first hard failure aborts the batch so
// the provider redelivers the whole payload; already-applied events will
// replay as duplicates.
func (s *ReconcileService) ApplyBatch(ctx context.Context, events []model.InboundEvent) (*WebhookSummary, error) {
	summary := &WebhookSummary{}

	for _, event := range events {
		start := utils.Now()
		result, err := s.repo.ApplyEvent(ctx, event)
		if err != nil {
			observer.IncEventApplied(event.Direction, "error")
			observer.ObserveEventApplyDuration(event.Direction, "error", time.Since(start))
			logger.FromContext(ctx).Error("Failed to apply event",
				zap.String("provider_message_id", event.ProviderMessageID),
				zap.Error(err))
			return summary, err
		}

		summary.Processed++
		outcome := "applied"
		if result.Duplicate {
			summary.Duplicates++
			outcome = "duplicate"
		}
		observer.IncEventApplied(event.Direction, outcome)
		observer.ObserveEventApplyDuration(event.Direction, outcome, time.Since(start))

		if !result.Duplicate {
			s.submitFolderTask(ctx, result.ClientID)
		}
	}

	return summary, nil
}

// Transition applies a manual status change.
func (s *ReconcileService) Transition(ctx context.Context, ref model.SessionRef, next model.Status, reason string) (*model.ApplyResult, error) {
	result, err := s.repo.Transition(ctx, ref, next, reason)
	if err != nil {
		return nil, err
	}
	if next == model.StatusStarted || next == model.StatusInProgress {
		s.submitFolderTask(ctx, result.ClientID)
	}
	return result, nil
}

// Intake creates a session on behalf of the dashboard before any provider
// message exists. It is expressed as a synthetic outbound event, so the
// regular application path handles creation, dedup, and the audit trail.
func (s *ReconcileService) Intake(ctx context.Context, req IntakeRequest) (*model.ApplyResult, error) {
	if err := validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}

	phone := utils.NormalizePhone(req.Phone, s.countryPrefix)
	if phone == "" {
		return nil, fmt.Errorf("%w: phone %q cannot be normalized", apperrors.ErrValidation, req.Phone)
	}

	event := model.InboundEvent{
		Phone:             phone,
		ProviderMessageID: "frontend-" + uuid.NewString(),
		Direction:         model.DirectionOutbound,
		Status:            model.StatusStarted,
		EventTimestamp:    utils.Now(),
		Payload: datatypes.JSON(utils.MustMarshalJSON(map[string]interface{}{
			"source": "frontend_intake",
			"name":   req.Name,
			"email":  req.Email,
		})),
		Hints: model.ClientHints{
			Name:  req.Name,
			Phone: phone,
			Email: req.Email,
		},
	}

	result, err := s.repo.ApplyEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	s.submitFolderTask(ctx, result.ClientID)
	return result, nil
}

// Status returns the session snapshot plus its recent history.
func (s *ReconcileService) Status(ctx context.Context, ref model.SessionRef, historyLimit int) (*StatusView, error) {
	session, err := s.repo.FindSession(ctx, ref)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.ListStatusHistory(ctx, session.ID, historyLimit)
	if err != nil {
		return nil, err
	}
	return &StatusView{Session: session, History: history}, nil
}

func (s *ReconcileService) submitFolderTask(ctx context.Context, clientID string) {
	if s.orchestrator == nil || clientID == "" {
		return
	}
	if err := s.orchestrator.SubmitEnsureFolder(ctx, clientID); err != nil {
		// Provisioning is retried on the next event for this client, so a
		// failed submission is logged and dropped.
		logger.FromContext(ctx).Warn("Failed to submit folder provisioning task",
			zap.String("client_id", clientID),
			zap.Error(err))
	}
}
