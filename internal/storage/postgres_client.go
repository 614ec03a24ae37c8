package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/purpura/api/onboarding-events-engine/internal/apperrors"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/model"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/observer"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/logger"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/utils"
)

// FindClientByID fetches a client record.
func (r *PostgresRepo) FindClientByID(ctx context.Context, id string) (*model.Client, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: client id required", apperrors.ErrBadRequest)
	}

	var client model.Client

	operation := func() error {
		err := r.db.WithContext(ctx).Where("id = ?", id).First(&client).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return backoff.Permanent(fmt.Errorf("%w: client not found (ID: %s): %w", apperrors.ErrNotFound, id, err))
			}
			return checkConstraintViolation(err)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindClientByID", operation)
	observer.ObserveDbOperationDuration("find", "client", time.Since(startTime), findErr)

	if findErr != nil {
		return nil, findErr
	}
	return &client, nil
}

// SetDriveFolder stores the provisioned folder reference on the client. The
// row is locked and re-checked so two concurrent provisioners converge on one
// folder: whoever persists first wins and the loser adopts their reference.
func (r *PostgresRepo) SetDriveFolder(ctx context.Context, clientID, folderID, folderURL string) (*model.Client, error) {
	if clientID == "" || folderID == "" {
		return nil, fmt.Errorf("%w: client id and folder id required", apperrors.ErrBadRequest)
	}

	var out *model.Client

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

		var client model.Client
		findErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", clientID).
			First(&client).Error
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				txErr = fmt.Errorf("%w: client not found (ID: %s): %w", apperrors.ErrNotFound, clientID, findErr)
				return backoff.Permanent(txErr)
			}
			txErr = fmt.Errorf("%w: failed to lock client row: %w", apperrors.ErrDatabase, findErr)
			return txErr
		}

		if client.DriveFolderID != "" {
			if client.DriveFolderID != folderID {
				logger.FromContext(ctx).Warn("Client already has a folder, keeping the stored one",
					zap.String("client_id", clientID),
					zap.String("stored_folder_id", client.DriveFolderID),
					zap.String("discarded_folder_id", folderID))
			}
			if err := tx.Commit().Error; err != nil {
				txErr = fmt.Errorf("%w: failed to commit transaction: %w", apperrors.ErrDatabase, err)
				return txErr
			}
			out = &client
			return nil
		}

		now := utils.Now()
		if err := tx.Model(&model.Client{}).Where("id = ?", clientID).Updates(map[string]interface{}{
			"drive_folder_id":         folderID,
			"drive_folder_url":        folderURL,
			"drive_folder_created_at": now,
			"updated_at":              now,
		}).Error; err != nil {
			txErr = checkConstraintViolation(err)
			return txErr
		}

		if err := tx.Commit().Error; err != nil {
			txErr = fmt.Errorf("%w: failed to commit transaction: %w", apperrors.ErrDatabase, err)
			return txErr
		}

		client.DriveFolderID = folderID
		client.DriveFolderURL = folderURL
		client.DriveFolderCreatedAt = &now
		out = &client
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SetDriveFolder Commit", operation)
	observer.ObserveDbOperationDuration("update", "client", time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to set drive folder after retries",
			zap.String("client_id", clientID), zap.Error(commitErr))
		return nil, commitErr
	}
	return out, nil
}
