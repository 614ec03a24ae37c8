package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/config"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/httpapi"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/integration"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/observer"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/storage"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/usecase"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/webhook"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/logger"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Initialize Metrics conditionally
	metricsEnabled := cfg.Metrics.Enabled
	observer.InitMetrics(metricsEnabled)

	// Log startup information
	logger.Log.Info("Starting Onboarding Events Engine",
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port),
	)

	// Initialize repository
	postgresRepo, err := initPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	// Create repository adapters for the services
	reconcileRepo := storage.NewReconcileRepoAdapter(postgresRepo)
	clientRepo := storage.NewClientRepoAdapter(postgresRepo)
	itemRepo := storage.NewOperationalItemRepoAdapter(postgresRepo)
	reminderRepo := storage.NewReminderRepoAdapter(postgresRepo)

	// Downstream integration clients. Each stays inert until configured, so a
	// deployment without Trello or Drive credentials still ingests events.
	driveClient := integration.NewDriveClient(integration.DriveConfig{
		BaseURL:        cfg.Drive.BaseURL,
		AccessToken:    cfg.Drive.AccessToken,
		ParentFolderID: cfg.Drive.ParentFolderID,
		ShareWith:      cfg.Drive.ShareWith,
		Timeout:        cfg.Drive.RequestTimeout,
	})
	trelloClient := integration.NewTrelloClient(integration.TrelloConfig{
		BaseURL: cfg.Trello.BaseURL,
		Key:     cfg.Trello.Key,
		Token:   cfg.Trello.Token,
		ListID:  cfg.Trello.ListID,
		Timeout: cfg.Trello.RequestTimeout,
	})
	whatsappClient := integration.NewWhatsAppClient(integration.WhatsAppConfig{
		BaseURL:          cfg.WhatsApp.BaseURL,
		AccessToken:      cfg.WhatsApp.AccessToken,
		PhoneNumberID:    cfg.WhatsApp.PhoneNumberID,
		TemplateName:     cfg.WhatsApp.TemplateName,
		TemplateLanguage: cfg.WhatsApp.TemplateLanguage,
		SendEnabled:      cfg.WhatsApp.SendEnabled,
		Timeout:          cfg.WhatsApp.RequestTimeout,
	})

	// Create orchestration worker pool
	orchestrationWorker, err := usecase.NewOrchestrationWorker(
		cfg.WorkerPools.Orchestration,
		clientRepo,
		itemRepo,
		driveClient,
		trelloClient,
		logger.Log, // Pass the base logger
	)
	if err != nil {
		logger.Log.Fatal("Failed to initialize orchestration worker pool", zap.Error(err))
	}

	// Create services, injecting the worker pool
	reconcileService := usecase.NewReconcileService(reconcileRepo, orchestrationWorker, cfg.Webhook.CountryPrefix)
	operationalService := usecase.NewOperationalService(itemRepo, orchestrationWorker)
	reminderService := usecase.NewReminderService(reminderRepo, whatsappClient, cfg.Reminders.Timezone)

	// Extractor normalizes provider phone identifiers with the configured
	// country prefix.
	extractor := webhook.NewExtractor(func(raw string) string {
		return utils.NormalizePhone(raw, cfg.Webhook.CountryPrefix)
	}, cfg.Webhook.MaxBatchSize)

	if cfg.Webhook.AppSecret == "" {
		logger.Log.Warn("Webhook app secret is not configured, all webhook deliveries will be rejected")
	}

	// Create HTTP server; readiness follows the database connection
	httpServer := httpapi.NewServer(strconv.Itoa(cfg.Server.Port), postgresRepo.Ping, logger.Log)
	httpServer.RegisterHandlers(httpapi.NewHandlers(
		reconcileService,
		operationalService,
		reminderService,
		extractor,
		cfg.Webhook.VerifyToken,
		cfg.Webhook.AppSecret,
	))

	// Register metrics handler if enabled BEFORE starting the server
	if metricsEnabled {
		httpServer.RegisterMetricsHandler(promhttp.Handler())
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Server.Port))
	} else {
		logger.Log.Info("Metrics endpoint disabled for environment", zap.String("environment", cfg.Environment))
	}

	// Start HTTP server (webhook ingestion, dashboard operations, probes)
	httpServer.Start()

	logger.Log.Info("HTTP endpoints available",
		zap.String("webhook", fmt.Sprintf("http://localhost:%d/webhook/whatsapp", cfg.Server.Port)),
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("readiness", fmt.Sprintf("http://localhost:%d/ready", cfg.Server.Port)),
	)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	// Use WaitGroup to track shutdown of all components
	var wg sync.WaitGroup

	// Num components is 3 (http server, orchestration worker, database)
	numComponents := 3
	wg.Add(numComponents)

	// Shutdown HTTP server first so no new work arrives while the pool drains
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping HTTP server")
		start := time.Now()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping HTTP server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] HTTP server stopped",
				zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping HTTP server",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done() // Ensure WaitGroup is decremented even in case of panic
	})

	// Shutdown Orchestration Worker Pool
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping orchestration worker pool")
		start := time.Now()
		orchestrationWorker.Stop()
		logger.Log.Info("[shutdown] Orchestration worker pool stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping orchestration worker pool",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Close database connection
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		start := time.Now()
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] PostgreSQL connection closed",
				zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing database connection",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done() // Ensure WaitGroup is decremented even in case of panic
	})

	// Wait with a timeout for all components to shut down
	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("Onboarding Events Engine shutdown complete")
}

// Initialize PostgreSQL repository
func initPostgresRepo(dsn string, autoMigrate bool) (*storage.PostgresRepo, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	repo, err := storage.NewPostgresRepo(dsn, autoMigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}
