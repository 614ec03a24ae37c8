package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gitlab.com/purpura/api/onboarding-events-engine/internal/apperrors"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/model"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/storage"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/validator"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/logger"
)

// OperationalService manages operational items and keeps their board cards
// in sync.
type OperationalService struct {
	repo         storage.OperationalItemRepo
	orchestrator Orchestrator
}

// NewOperationalService creates the operational item service.
func NewOperationalService(repo storage.OperationalItemRepo, orchestrator Orchestrator) *OperationalService {
	return &OperationalService{repo: repo, orchestrator: orchestrator}
}

// Upsert creates or updates an item and queues a card sync after the write
// commits. The sync task re-reads the item, so it always pushes the latest
// persisted state regardless of submission order.
func (s *OperationalService) Upsert(ctx context.Context, input model.OperationalItemInput) (*model.OperationalItem, bool, error) {
	if err := validator.Validate(input); err != nil {
		return nil, false, fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}

	item, existed, err := s.repo.UpsertItem(ctx, input)
	if err != nil {
		return nil, false, err
	}

	if s.orchestrator != nil {
		if submitErr := s.orchestrator.SubmitCardSync(ctx, item.ID); submitErr != nil {
			logger.FromContext(ctx).Warn("Failed to submit card sync task",
				zap.String("item_id", item.ID),
				zap.Error(submitErr))
		}
	}
	return item, existed, nil
}

// Get fetches one item.
func (s *OperationalService) Get(ctx context.Context, id string) (*model.OperationalItem, error) {
	return s.repo.FindItemByID(ctx, id)
}

// List returns items matching the filter.
func (s *OperationalService) List(ctx context.Context, filter model.OperationalItemFilter) ([]model.OperationalItem, error) {
	return s.repo.ListItems(ctx, filter)
}

// Delete removes an item.
func (s *OperationalService) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteItem(ctx, id)
}
