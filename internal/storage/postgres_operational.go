package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/purpura/api/onboarding-events-engine/internal/apperrors"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/model"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/observer"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/logger"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/utils"
)

// UpsertItem creates or updates an operational item. An existing item is
// matched by id first, then by idempotency key. Only an id match applies the
// non-nil input fields; a key match returns the stored row unchanged, so
// replayed creation requests converge on one row without rewriting it.
func (r *PostgresRepo) UpsertItem(ctx context.Context, input model.OperationalItemInput) (*model.OperationalItem, bool, error) {
	var (
		out     *model.OperationalItem
		existed bool
	)

	operation := func() error {
		tx := r.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, tx.Error)
		}
		var txErr error
		defer func() {
			if rec := recover(); rec != nil {
				tx.Rollback()
				panic(rec)
			} else if txErr != nil {
				if rbErr := tx.Rollback().Error; rbErr != nil {
					logger.FromContext(ctx).Error("Failed to rollback transaction after error", zap.Error(rbErr), zap.NamedError("originalTxError", txErr))
				}
			}
		}()

		var item model.OperationalItem
		found := false

		if input.ID != nil && *input.ID != "" {
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ?", *input.ID).
				First(&item).Error
			if err == nil {
				found = true
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				txErr = fmt.Errorf("%w: failed to lock item row: %w", apperrors.ErrDatabase, err)
				return txErr
			} else {
				txErr = fmt.Errorf("%w: item not found (ID: %s): %w", apperrors.ErrNotFound, *input.ID, err)
				return backoff.Permanent(txErr)
			}
		}

		if !found && input.IdempotencyKey != nil && *input.IdempotencyKey != "" {
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("idempotency_key = ?", *input.IdempotencyKey).
				First(&item).Error
			if err == nil {
				// A key match means this creation request already succeeded.
				// Return the stored row untouched; only an explicit id drives
				// an update.
				if commitErr := tx.Commit().Error; commitErr != nil {
					txErr = fmt.Errorf("%w: failed to commit transaction: %w", apperrors.ErrDatabase, commitErr)
					return txErr
				}
				out = &item
				existed = true
				return nil
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				txErr = fmt.Errorf("%w: failed to lock item row by idempotency key: %w", apperrors.ErrDatabase, err)
				return txErr
			}
		}

		if found {
			applyItemInput(&item, input)
			item.UpdatedAt = utils.Now()
			if err := tx.Save(&item).Error; err != nil {
				txErr = checkConstraintViolation(err)
				return txErr
			}
		} else {
			if input.Title == nil || *input.Title == "" {
				txErr = fmt.Errorf("%w: title required to create item", apperrors.ErrValidation)
				return backoff.Permanent(txErr)
			}
			item = model.OperationalItem{
				ID:             uuid.NewString(),
				IdempotencyKey: input.IdempotencyKey,
				Status:         model.ItemStatusOpen,
			}
			applyItemInput(&item, input)
			if err := tx.Create(&item).Error; err != nil {
				mappedErr := checkConstraintViolation(err)
				if errors.Is(mappedErr, apperrors.ErrDuplicate) && input.IdempotencyKey != nil {
					// A concurrent request with the same key won. Adopt its row.
					if rbErr := tx.Rollback().Error; rbErr != nil {
						logger.FromContext(ctx).Error("Failed to rollback after duplicate insert race", zap.Error(rbErr))
					}
					var winner model.OperationalItem
					if findErr := r.db.WithContext(ctx).Where("idempotency_key = ?", *input.IdempotencyKey).First(&winner).Error; findErr != nil {
						return fmt.Errorf("%w: failed to load winning duplicate item: %w", apperrors.ErrDatabase, findErr)
					}
					out = &winner
					existed = true
					return nil
				}
				txErr = mappedErr
				return txErr
			}
		}

		if err := tx.Commit().Error; err != nil {
			txErr = fmt.Errorf("%w: failed to commit transaction: %w", apperrors.ErrDatabase, err)
			return txErr
		}

		out = &item
		existed = found
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpsertItem Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "operational_item", time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to upsert item after retries", zap.Error(commitErr))
		return nil, false, commitErr
	}
	return out, existed, nil
}

// applyItemInput copies the non-nil input fields onto the item.
func applyItemInput(item *model.OperationalItem, input model.OperationalItemInput) {
	if input.ItemType != nil {
		item.ItemType = *input.ItemType
	}
	if input.Title != nil {
		item.Title = *input.Title
	}
	if input.Description != nil {
		item.Description = *input.Description
	}
	if input.ClientID != nil {
		item.ClientID = *input.ClientID
	}
	if input.Assignee != nil {
		item.Assignee = *input.Assignee
	}
	if input.Priority != nil {
		item.Priority = *input.Priority
	}
	if input.Status != nil {
		item.Status = *input.Status
	}
	if input.DueAt != nil {
		item.DueAt = input.DueAt
	}
	if len(input.Details) > 0 {
		item.Details = input.Details
	}
}

// FindItemByID fetches one operational item.
func (r *PostgresRepo) FindItemByID(ctx context.Context, id string) (*model.OperationalItem, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: item id required", apperrors.ErrBadRequest)
	}

	var item model.OperationalItem

	operation := func() error {
		err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return backoff.Permanent(fmt.Errorf("%w: item not found (ID: %s): %w", apperrors.ErrNotFound, id, err))
			}
			return checkConstraintViolation(err)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindItemByID", operation)
	observer.ObserveDbOperationDuration("find", "operational_item", time.Since(startTime), findErr)

	if findErr != nil {
		return nil, findErr
	}
	return &item, nil
}

// ListItems returns items matching the filter, newest first.
func (r *PostgresRepo) ListItems(ctx context.Context, filter model.OperationalItemFilter) ([]model.OperationalItem, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var items []model.OperationalItem

	operation := func() error {
		query := r.db.WithContext(ctx).Model(&model.OperationalItem{})
		if filter.ItemType != "" {
			query = query.Where("item_type = ?", filter.ItemType)
		}
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		if filter.ClientID != "" {
			query = query.Where("client_id = ?", filter.ClientID)
		}
		err := query.Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&items).Error
		if err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "ListItems", operation)
	observer.ObserveDbOperationDuration("list", "operational_item", time.Since(startTime), findErr)

	if findErr != nil {
		return nil, findErr
	}
	return items, nil
}

// DeleteItem removes an operational item. The synced card, if any, is left
// for the board's own archival flow.
func (r *PostgresRepo) DeleteItem(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: item id required", apperrors.ErrBadRequest)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.OperationalItem{})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: item not found (ID: %s)", apperrors.ErrNotFound, id))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "DeleteItem Commit", operation)
	observer.ObserveDbOperationDuration("delete", "operational_item", time.Since(startTime), commitErr)

	return commitErr
}

// SetCardRef stores the synced card reference after a successful board call.
func (r *PostgresRepo) SetCardRef(ctx context.Context, itemID, cardID, cardURL, listID string) error {
	if itemID == "" {
		return fmt.Errorf("%w: item id required", apperrors.ErrBadRequest)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.OperationalItem{}).
			Where("id = ?", itemID).
			Updates(map[string]interface{}{
				"trello_card_id":  cardID,
				"trello_card_url": cardURL,
				"trello_list_id":  listID,
				"updated_at":      utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: item not found (ID: %s)", apperrors.ErrNotFound, itemID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SetCardRef Commit", operation)
	observer.ObserveDbOperationDuration("update", "operational_item", time.Since(startTime), commitErr)

	return commitErr
}
