package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/purpura/api/onboarding-events-engine/internal/apperrors"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/model"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/observer"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/logger"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/utils"
)

// ApplyEvent applies one normalized event inside a single transaction. The
// unique constraint on provider_message_id is the dedup authority: a replay
// observed at any point yields the current session snapshot with Duplicate
// set and no state change.
func (r *PostgresRepo) ApplyEvent(ctx context.Context, event model.InboundEvent) (*model.ApplyResult, error) {
	if event.Phone == "" || event.ProviderMessageID == "" {
		return nil, fmt.Errorf("%w: event requires phone and provider_message_id", apperrors.ErrBadRequest)
	}
	if !model.IsValidDirection(event.Direction) {
		return nil, fmt.Errorf("%w: unknown direction %q", apperrors.ErrBadRequest, event.Direction)
	}
	if event.EventTimestamp.IsZero() {
		event.EventTimestamp = utils.Now()
	}

	var out *model.ApplyResult

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

		// Serialize concurrent events for the same phone on the session row.
		var session model.OnboardingSession
		sessionExists := true
		findErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("phone_e164 = ?", event.Phone).
			First(&session).Error
		if findErr != nil {
			if !errors.Is(findErr, gorm.ErrRecordNotFound) {
				txErr = fmt.Errorf("%w: failed to lock session row: %w", apperrors.ErrDatabase, findErr)
				return txErr
			}
			sessionExists = false
		}

		// Fast replay check before any writes.
		var existingMsg model.SessionMessage
		dupErr := tx.Where("provider_message_id = ?", event.ProviderMessageID).First(&existingMsg).Error
		if dupErr == nil {
			var dupSession model.OnboardingSession
			if err := tx.Where("id = ?", existingMsg.SessionID).First(&dupSession).Error; err != nil {
				txErr = fmt.Errorf("%w: failed to load session for duplicate event: %w", apperrors.ErrDatabase, err)
				return txErr
			}
			if err := tx.Commit().Error; err != nil {
				txErr = fmt.Errorf("%w: failed to commit transaction: %w", apperrors.ErrDatabase, err)
				return txErr
			}
			out = dupSession.Snapshot(true)
			return nil
		}
		if !errors.Is(dupErr, gorm.ErrRecordNotFound) {
			txErr = fmt.Errorf("%w: failed to check for duplicate event: %w", apperrors.ErrDatabase, dupErr)
			return txErr
		}

		client, clientErr := r.upsertClientLocked(ctx, tx, event)
		if clientErr != nil {
			txErr = clientErr
			return txErr
		}

		fromStatus := session.CurrentStatus
		if !sessionExists {
			session = model.OnboardingSession{
				ID:              uuid.NewString(),
				Phone:           event.Phone,
				TrackingToken:   uuid.NewString(),
				ClientID:        client.ID,
				CurrentStatus:   model.StatusStarted,
				StatusUpdatedAt: event.EventTimestamp,
			}
			if err := tx.Create(&session).Error; err != nil {
				txErr = checkConstraintViolation(err)
				return txErr
			}
			// Creation itself is not a transition; the first history row
			// appears when the status first moves away from started.
			fromStatus = model.StatusStarted
		}

		toStatus := nextStatus(fromStatus, event)

		message := model.SessionMessage{
			SessionID:         session.ID,
			ProviderMessageID: event.ProviderMessageID,
			Direction:         event.Direction,
			Payload:           event.Payload,
			EventTimestamp:    event.EventTimestamp,
		}
		if err := tx.Create(&message).Error; err != nil {
			mappedErr := checkConstraintViolation(err)
			if errors.Is(mappedErr, apperrors.ErrDuplicate) {
				// Lost the insert race to a concurrent worker. Roll back our
				// writes and report the winner's state.
				if rbErr := tx.Rollback().Error; rbErr != nil {
					logger.FromContext(ctx).Error("Failed to rollback after duplicate insert race", zap.Error(rbErr))
				}
				snapshot, snapErr := r.duplicateSnapshot(ctx, event.ProviderMessageID)
				if snapErr != nil {
					return snapErr
				}
				out = snapshot
				return nil
			}
			txErr = mappedErr
			return txErr
		}

		if toStatus != fromStatus {
			history := model.StatusHistory{
				SessionID:         session.ID,
				FromStatus:        fromStatus,
				ToStatus:          toStatus,
				Reason:            "provider_event",
				ProviderMessageID: event.ProviderMessageID,
				ChangedAt:         event.EventTimestamp,
			}
			if err := tx.Create(&history).Error; err != nil {
				txErr = checkConstraintViolation(err)
				return txErr
			}
		}

		now := utils.Now()
		updates := map[string]interface{}{
			"updated_at": now,
		}
		if event.EventTimestamp.After(session.LastMessageAt) {
			updates["last_message_at"] = event.EventTimestamp
			updates["last_provider_message_id"] = event.ProviderMessageID
			session.LastMessageAt = event.EventTimestamp
			session.LastProviderMessageID = event.ProviderMessageID
		}
		if toStatus != fromStatus {
			updates["current_status"] = toStatus
			updates["status_updated_at"] = event.EventTimestamp
			session.CurrentStatus = toStatus
			session.StatusUpdatedAt = event.EventTimestamp
		}
		if err := tx.Model(&model.OnboardingSession{}).Where("id = ?", session.ID).Updates(updates).Error; err != nil {
			txErr = checkConstraintViolation(err)
			return txErr
		}

		if toStatus != fromStatus {
			if err := mirrorStatusToClient(tx, client.ID, toStatus, event.EventTimestamp); err != nil {
				txErr = err
				return txErr
			}
		}

		if err := tx.Commit().Error; err != nil {
			txErr = fmt.Errorf("%w: failed to commit transaction: %w", apperrors.ErrDatabase, err)
			return txErr
		}

		if toStatus != fromStatus {
			observer.IncStatusTransition(fromStatus.String(), toStatus.String(), "provider")
		}

		session.ClientID = client.ID
		out = session.Snapshot(false)
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "ApplyEvent Commit", operation)
	observer.ObserveDbOperationDuration("apply_event", "session", time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to apply event after retries",
			zap.String("provider_message_id", event.ProviderMessageID),
			zap.Error(commitErr))
		return nil, commitErr
	}

	return out, nil
}

// nextStatus decides where the session lands after this event. Terminal
// sessions never move automatically; the message is still recorded. Within
// the transaction status writes are last-write-wins, so a late event with a
// differing status still applies.
func nextStatus(current model.Status, event model.InboundEvent) model.Status {
	if current.IsTerminal() {
		return current
	}
	if event.Status == "" || !event.Status.IsValid() {
		return current
	}
	return event.Status
}

// upsertClientLocked finds or creates the client for the event's phone,
// merging profile hints without overwriting populated fields.
func (r *PostgresRepo) upsertClientLocked(ctx context.Context, tx *gorm.DB, event model.InboundEvent) (*model.Client, error) {
	var client model.Client
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("whatsapp_phone = ?", event.Phone).
		First(&client).Error
	if err == nil {
		if client.MergeHints(event.Hints) {
			if updErr := tx.Model(&model.Client{}).Where("id = ?", client.ID).Updates(map[string]interface{}{
				"name":       client.Name,
				"email":      client.Email,
				"updated_at": utils.Now(),
			}).Error; updErr != nil {
				return nil, checkConstraintViolation(updErr)
			}
		}
		return &client, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: failed to lock client row: %w", apperrors.ErrDatabase, err)
	}

	client = model.Client{
		ID:                 uuid.NewString(),
		Name:               event.Hints.Name,
		Phone:              event.Phone,
		Email:              event.Hints.Email,
		OnboardingStatus:   model.StatusStarted,
		OnboardingStatusAt: event.EventTimestamp,
	}
	if createErr := tx.Create(&client).Error; createErr != nil {
		return nil, checkConstraintViolation(createErr)
	}
	return &client, nil
}

// mirrorStatusToClient keeps the denormalized client status in step with the
// session.
func mirrorStatusToClient(tx *gorm.DB, clientID string, status model.Status, at time.Time) error {
	if clientID == "" {
		return nil
	}
	err := tx.Model(&model.Client{}).Where("id = ?", clientID).Updates(map[string]interface{}{
		"onboarding_status":    status,
		"onboarding_status_at": at,
		"updated_at":           utils.Now(),
	}).Error
	if err != nil {
		return checkConstraintViolation(err)
	}
	return nil
}

// duplicateSnapshot re-reads the session owning the given provider message id
// outside any transaction, for reporting a replay outcome.
func (r *PostgresRepo) duplicateSnapshot(ctx context.Context, providerMessageID string) (*model.ApplyResult, error) {
	var msg model.SessionMessage
	if err := r.db.WithContext(ctx).Where("provider_message_id = ?", providerMessageID).First(&msg).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to load winning duplicate message: %w", apperrors.ErrDatabase, err)
	}
	var session model.OnboardingSession
	if err := r.db.WithContext(ctx).Where("id = ?", msg.SessionID).First(&session).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to load session for duplicate message: %w", apperrors.ErrDatabase, err)
	}
	return session.Snapshot(true), nil
}

// Transition forces the session into the given status on behalf of an
// operator. The change is recorded as a synthetic system message plus a
// history row, so manual moves share the audit trail with provider events.
func (r *PostgresRepo) Transition(ctx context.Context, ref model.SessionRef, next model.Status, reason string) (*model.ApplyResult, error) {
	if ref.IsZero() {
		return nil, fmt.Errorf("%w: session reference required", apperrors.ErrBadRequest)
	}
	if !next.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", apperrors.ErrInvalidStatus, next)
	}

	var out *model.ApplyResult

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

		var session model.OnboardingSession
		findErr := sessionQuery(tx, ref).Clauses(clause.Locking{Strength: "UPDATE"}).First(&session).Error
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				txErr = fmt.Errorf("%w: session not found: %w", apperrors.ErrNotFound, findErr)
				return backoff.Permanent(txErr)
			}
			txErr = fmt.Errorf("%w: failed to lock session row: %w", apperrors.ErrDatabase, findErr)
			return txErr
		}

		fromStatus := session.CurrentStatus
		now := utils.Now()

		payload := utils.MustMarshalJSON(map[string]interface{}{
			"source":      "dashboard_transition",
			"reason":      reason,
			"from_status": fromStatus,
			"to_status":   next,
		})
		message := model.SessionMessage{
			SessionID:         session.ID,
			ProviderMessageID: "dashboard-" + uuid.NewString(),
			Direction:         model.DirectionSystem,
			Payload:           datatypes.JSON(payload),
			EventTimestamp:    now,
		}
		if err := tx.Create(&message).Error; err != nil {
			txErr = checkConstraintViolation(err)
			return txErr
		}

		if next != fromStatus {
			history := model.StatusHistory{
				SessionID:         session.ID,
				FromStatus:        fromStatus,
				ToStatus:          next,
				Reason:            reason,
				ProviderMessageID: message.ProviderMessageID,
				ChangedAt:         now,
			}
			if err := tx.Create(&history).Error; err != nil {
				txErr = checkConstraintViolation(err)
				return txErr
			}

			if err := tx.Model(&model.OnboardingSession{}).Where("id = ?", session.ID).Updates(map[string]interface{}{
				"current_status":    next,
				"status_updated_at": now,
				"updated_at":        now,
			}).Error; err != nil {
				txErr = checkConstraintViolation(err)
				return txErr
			}
			session.CurrentStatus = next
			session.StatusUpdatedAt = now

			if err := mirrorStatusToClient(tx, session.ClientID, next, now); err != nil {
				txErr = err
				return txErr
			}
		}

		if err := tx.Commit().Error; err != nil {
			txErr = fmt.Errorf("%w: failed to commit transaction: %w", apperrors.ErrDatabase, err)
			return txErr
		}

		if next != fromStatus {
			observer.IncStatusTransition(fromStatus.String(), next.String(), "dashboard")
		}

		out = session.Snapshot(false)
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "Transition Commit", operation)
	observer.ObserveDbOperationDuration("transition", "session", time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to transition session after retries",
			zap.String("next_status", next.String()),
			zap.Error(commitErr))
		return nil, commitErr
	}

	return out, nil
}

// FindSession fetches a session by id, tracking token, or phone.
func (r *PostgresRepo) FindSession(ctx context.Context, ref model.SessionRef) (*model.OnboardingSession, error) {
	if ref.IsZero() {
		return nil, fmt.Errorf("%w: session reference required", apperrors.ErrBadRequest)
	}

	var session model.OnboardingSession

	operation := func() error {
		err := sessionQuery(r.db.WithContext(ctx), ref).First(&session).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return backoff.Permanent(fmt.Errorf("%w: session not found: %w", apperrors.ErrNotFound, err))
			}
			return checkConstraintViolation(err)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindSession", operation)
	observer.ObserveDbOperationDuration("find", "session", time.Since(startTime), findErr)

	if findErr != nil {
		return nil, findErr
	}
	return &session, nil
}

// ListStatusHistory returns the audit trail for a session, newest first.
func (r *PostgresRepo) ListStatusHistory(ctx context.Context, sessionID string, limit int) ([]model.StatusHistory, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id required", apperrors.ErrBadRequest)
	}
	if limit <= 0 {
		limit = 50
	}

	var history []model.StatusHistory

	operation := func() error {
		err := r.db.WithContext(ctx).
			Where("session_id = ?", sessionID).
			Order("changed_at DESC").
			Limit(limit).
			Find(&history).Error
		if err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "ListStatusHistory", operation)
	observer.ObserveDbOperationDuration("list", "status_history", time.Since(startTime), findErr)

	if findErr != nil {
		return nil, findErr
	}
	return history, nil
}

func sessionQuery(tx *gorm.DB, ref model.SessionRef) *gorm.DB {
	switch {
	case ref.SessionID != "":
		return tx.Where("id = ?", ref.SessionID)
	case ref.TrackingToken != "":
		return tx.Where("tracking_token = ?", ref.TrackingToken)
	default:
		return tx.Where("phone_e164 = ?", ref.Phone)
	}
}
