package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"gitlab.com/purpura/api/onboarding-events-engine/internal/apperrors"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/config"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/integration"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/observer"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/storage"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/logger"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/utils"
)

// Orchestration task kinds.
const (
	TaskEnsureFolder = "ensure_folder"
	TaskSyncCard     = "sync_card"
)

// OrchestrationTaskData holds the necessary data for a downstream task.
type OrchestrationTaskData struct {
	Ctx      context.Context // Context derived for the task, NOT the original request context
	Kind     string
	ClientID string
	ItemID   string
}

// Orchestrator is the submission surface for post-commit downstream work.
// Tasks run asynchronously so external latency never blocks a webhook
// response; every task is individually idempotent and safe to re-run.
type Orchestrator interface {
	SubmitEnsureFolder(ctx context.Context, clientID string) error
	SubmitCardSync(ctx context.Context, itemID string) error
	Stop()
}

// OrchestrationWorker manages the worker pool for downstream orchestration.
type OrchestrationWorker struct {
	pool       *ants.PoolWithFunc
	clientRepo storage.ClientRepo
	itemRepo   storage.OperationalItemRepo
	drive      *integration.DriveClient
	trello     *integration.TrelloClient
	cfg        config.OrchestrationWorkerPoolConfig
	baseLogger *zap.Logger
}

// Ensure OrchestrationWorker implements Orchestrator
var _ Orchestrator = (*OrchestrationWorker)(nil)

// NewOrchestrationWorker creates and initializes the orchestration pool.
func NewOrchestrationWorker(
	cfg config.OrchestrationWorkerPoolConfig,
	clientRepo storage.ClientRepo,
	itemRepo storage.OperationalItemRepo,
	drive *integration.DriveClient,
	trello *integration.TrelloClient,
	baseLogger *zap.Logger,
) (*OrchestrationWorker, error) {
	worker := &OrchestrationWorker{
		clientRepo: clientRepo,
		itemRepo:   itemRepo,
		drive:      drive,
		trello:     trello,
		cfg:        cfg,
		baseLogger: baseLogger.Named("orchestration_worker"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		taskData, ok := i.(OrchestrationTaskData)
		if !ok {
			worker.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		worker.processTask(taskData)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false), // Block on a full queue instead of dropping
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			worker.baseLogger.Error("Panic recovered in orchestration worker", zap.Any("panic_error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestration worker pool: %w", err)
	}
	worker.pool = pool
	worker.baseLogger.Info("Orchestration worker pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Duration("expiry_time", cfg.ExpiryTime),
	)
	return worker, nil
}

// SubmitEnsureFolder queues folder provisioning for a client.
func (w *OrchestrationWorker) SubmitEnsureFolder(ctx context.Context, clientID string) error {
	if clientID == "" {
		return fmt.Errorf("%w: client id required", apperrors.ErrBadRequest)
	}
	return w.submit(OrchestrationTaskData{
		Ctx:      w.detachContext(ctx),
		Kind:     TaskEnsureFolder,
		ClientID: clientID,
	})
}

// SubmitCardSync queues card synchronization for an operational item.
func (w *OrchestrationWorker) SubmitCardSync(ctx context.Context, itemID string) error {
	if itemID == "" {
		return fmt.Errorf("%w: item id required", apperrors.ErrBadRequest)
	}
	return w.submit(OrchestrationTaskData{
		Ctx:    w.detachContext(ctx),
		Kind:   TaskSyncCard,
		ItemID: itemID,
	})
}

// detachContext carries the request id forward but drops the request's
// deadline, the task outlives the HTTP response.
func (w *OrchestrationWorker) detachContext(ctx context.Context) context.Context {
	taskCtx := context.Background()
	if reqID := logger.RequestIDFromContext(ctx); reqID != "" {
		taskCtx = logger.WithRequestID(taskCtx, reqID)
	}
	return taskCtx
}

func (w *OrchestrationWorker) submit(taskData OrchestrationTaskData) error {
	start := time.Now()
	observer.IncOrchestrationTasksSubmitted(taskData.Kind)
	observer.SetOrchestrationQueueLength(w.pool.Waiting())

	err := w.pool.Invoke(taskData)
	duration := time.Since(start)

	if err != nil {
		w.baseLogger.Warn("Failed to submit orchestration task to pool",
			zap.String("kind", taskData.Kind),
			zap.Duration("submit_duration", duration),
			zap.Error(err),
		)
		observer.IncOrchestrationTasksProcessed(taskData.Kind, "submit_error")
		if errors.Is(err, ants.ErrPoolOverload) {
			return fmt.Errorf("orchestration pool overload: %w", err)
		}
		return fmt.Errorf("failed to invoke orchestration task: %w", err)
	}

	w.baseLogger.Debug("Submitted orchestration task",
		zap.String("kind", taskData.Kind),
		zap.Duration("submit_duration", duration),
	)
	return nil
}

// processTask contains the actual logic executed by a worker goroutine.
func (w *OrchestrationWorker) processTask(taskData OrchestrationTaskData) {
	log := logger.FromContextOr(taskData.Ctx, w.baseLogger).With(
		zap.String("task_kind", taskData.Kind),
	)
	start := utils.Now()

	var err error
	switch taskData.Kind {
	case TaskEnsureFolder:
		err = w.ensureFolder(taskData.Ctx, taskData.ClientID)
	case TaskSyncCard:
		err = w.syncCard(taskData.Ctx, taskData.ItemID)
	default:
		log.Error("Unknown orchestration task kind")
		observer.IncOrchestrationTasksProcessed(taskData.Kind, "unknown_kind")
		return
	}

	observer.ObserveOrchestrationProcessingDuration(taskData.Kind, time.Since(start))
	if err != nil {
		if errors.Is(err, errSkippedNotConfigured) {
			observer.IncOrchestrationTasksProcessed(taskData.Kind, "skipped_not_configured")
			log.Debug("Orchestration task skipped, integration not configured")
			return
		}
		observer.IncOrchestrationTasksProcessed(taskData.Kind, "error")
		log.Error("Orchestration task failed", zap.Error(err))
		return
	}
	observer.IncOrchestrationTasksProcessed(taskData.Kind, "success")
}

var errSkippedNotConfigured = errors.New("integration not configured")

// ensureFolder provisions the client's folder if it does not have one yet.
// The stored folder ref is the idempotency guard: replays short-circuit, and
// a concurrent provisioner's ref wins at persist time.
func (w *OrchestrationWorker) ensureFolder(ctx context.Context, clientID string) error {
	if w.drive == nil || !w.drive.Configured() {
		return errSkippedNotConfigured
	}

	client, err := w.clientRepo.FindClientByID(ctx, clientID)
	if err != nil {
		return fmt.Errorf("failed to load client for folder provisioning: %w", err)
	}
	if client.DriveFolderID != "" {
		logger.FromContextOr(ctx, w.baseLogger).Debug("Client already has a folder",
			zap.String("client_id", clientID),
			zap.String("folder_id", client.DriveFolderID))
		return nil
	}

	folderName := folderNameFor(client.Name, client.Phone)
	folder, err := w.drive.EnsureFolder(ctx, folderName)
	if err != nil {
		return fmt.Errorf("failed to ensure folder: %w", err)
	}

	if _, err := w.clientRepo.SetDriveFolder(ctx, clientID, folder.ID, folder.WebViewLink); err != nil {
		return fmt.Errorf("failed to persist folder ref: %w", err)
	}
	return nil
}

// folderNameFor builds the deterministic folder name used for find-or-create.
func folderNameFor(name, phone string) string {
	digits := utils.DigitsOnly(phone)
	if name == "" {
		return digits
	}
	return name + " - " + digits
}

// syncCard creates or updates the card mirroring an operational item.
func (w *OrchestrationWorker) syncCard(ctx context.Context, itemID string) error {
	if w.trello == nil || !w.trello.Configured() {
		return errSkippedNotConfigured
	}

	item, err := w.itemRepo.FindItemByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Deleted before the task ran; nothing to sync.
			return nil
		}
		return fmt.Errorf("failed to load item for card sync: %w", err)
	}

	desc := item.Description
	if item.Status != "" {
		desc = fmt.Sprintf("Status: %s\n\n%s", item.Status, desc)
	}

	if item.TrelloCardID == "" {
		card, createErr := w.trello.CreateCard(ctx, item.Title, desc)
		if createErr != nil {
			return fmt.Errorf("failed to create card: %w", createErr)
		}
		if refErr := w.itemRepo.SetCardRef(ctx, item.ID, card.ID, card.URL, card.IDList); refErr != nil {
			return fmt.Errorf("failed to persist card ref: %w", refErr)
		}
		return nil
	}

	if _, updateErr := w.trello.UpdateCard(ctx, item.TrelloCardID, item.Title, desc); updateErr != nil {
		return fmt.Errorf("failed to update card: %w", updateErr)
	}
	return nil
}

// Stop gracefully shuts down the worker pool, waiting for running tasks.
func (w *OrchestrationWorker) Stop() {
	w.baseLogger.Info("Stopping orchestration worker pool...")
	w.pool.Release()
	w.baseLogger.Info("Orchestration worker pool stopped")
}
