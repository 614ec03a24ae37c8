package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"gitlab.com/purpura/api/onboarding-events-engine/internal/apperrors"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/model"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/observer"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/logger"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/utils"
)

// ListDueSchedules returns the active schedules for the given calendar date.
func (r *PostgresRepo) ListDueSchedules(ctx context.Context, date time.Time) ([]model.ReminderSchedule, error) {
	var schedules []model.ReminderSchedule

	operation := func() error {
		err := r.db.WithContext(ctx).
			Where("remind_date = ? AND active = ?", date.Format("2006-01-02"), true).
			Order("created_at ASC").
			Find(&schedules).Error
		if err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "ListDueSchedules", operation)
	observer.ObserveDbOperationDuration("list", "reminder_schedule", time.Since(startTime), findErr)

	if findErr != nil {
		return nil, findErr
	}
	return schedules, nil
}

// ReserveReminder claims the (phone, remind_date, reminder_type) slot by
// inserting the log row with its final intent status. The conditional unique
// index only covers effective rows, so the insert either wins the slot or
// hits DO NOTHING. Returns false when another run already holds the slot.
func (r *PostgresRepo) ReserveReminder(ctx context.Context, log *model.ReminderLog) (bool, error) {
	if log == nil || log.Phone == "" || log.ReminderType == "" {
		return false, fmt.Errorf("%w: reminder log requires phone and type", apperrors.ErrBadRequest)
	}
	if log.Status != model.ReminderStatusSent && log.Status != model.ReminderStatusDryRun {
		return false, fmt.Errorf("%w: reservation status must be sent or dry_run, got %q", apperrors.ErrBadRequest, log.Status)
	}
	if log.ID == "" {
		log.ID = uuid.NewString()
	}

	reserved := false

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "phone_e164"},
				{Name: "remind_date"},
				{Name: "reminder_type"},
			},
			TargetWhere: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "status IN ('sent','dry_run')"},
			}},
			DoNothing: true,
		}).Create(log)

		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		reserved = result.RowsAffected > 0
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "ReserveReminder Commit", operation)
	observer.ObserveDbOperationDuration("reserve", "reminder_log", time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to reserve reminder after retries",
			zap.String("phone", log.Phone),
			zap.String("reminder_type", log.ReminderType),
			zap.Error(commitErr))
		return false, commitErr
	}
	return reserved, nil
}

// MarkReminderSent records the provider message id and delivery time on a
// previously reserved log row.
func (r *PostgresRepo) MarkReminderSent(ctx context.Context, id, providerMessageID string) error {
	if id == "" {
		return fmt.Errorf("%w: reminder log id required", apperrors.ErrBadRequest)
	}

	operation := func() error {
		now := utils.Now()
		result := r.db.WithContext(ctx).Model(&model.ReminderLog{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":              model.ReminderStatusSent,
				"provider_message_id": providerMessageID,
				"sent_at":             now,
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: reminder log not found (ID: %s)", apperrors.ErrNotFound, id))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MarkReminderSent Commit", operation)
	observer.ObserveDbOperationDuration("update", "reminder_log", time.Since(startTime), commitErr)

	return commitErr
}

// MarkReminderFailed flips a reserved log row to failed with a short error
// summary. Failed rows fall outside the conditional unique index, so a later
// run may retry the slot.
func (r *PostgresRepo) MarkReminderFailed(ctx context.Context, id, summary string) error {
	if id == "" {
		return fmt.Errorf("%w: reminder log id required", apperrors.ErrBadRequest)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.ReminderLog{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":        model.ReminderStatusFailed,
				"error_summary": summary,
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return backoff.Permanent(fmt.Errorf("%w: reminder log not found (ID: %s)", apperrors.ErrNotFound, id))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MarkReminderFailed Commit", operation)
	observer.ObserveDbOperationDuration("update", "reminder_log", time.Since(startTime), commitErr)

	return commitErr
}
