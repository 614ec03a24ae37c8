package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/purpura/api/onboarding-events-engine/pkg/logger"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/utils"
)

// ReadinessChecker reports whether a dependency is reachable.
type ReadinessChecker func(ctx context.Context) error

// Server is the HTTP surface of the engine: webhook ingestion, dashboard
// operations, reminders, and the health/metrics probes.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *zap.Logger
	readiness  ReadinessChecker
}

// HealthResponse is the response structure for health check endpoints
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// NewServer creates the HTTP server and registers the probe endpoints.
// Domain routes are attached by RegisterHandlers.
func NewServer(port string, readiness ReadinessChecker, baseLogger *zap.Logger) *Server {
	mux := http.NewServeMux()

	server := &Server{
		mux:       mux,
		logger:    baseLogger.Named("httpapi"),
		readiness: readiness,
	}
	server.httpServer = &http.Server{
		Addr:    ":" + port,
		Handler: server.withRequestID(mux),
	}

	mux.HandleFunc("/health", server.handleHealth)
	mux.HandleFunc("/ready", server.handleReady)

	return server
}

// RegisterHandlers attaches the domain routes.
func (s *Server) RegisterHandlers(h *Handlers) {
	s.mux.HandleFunc("GET /webhook/whatsapp", h.handleWebhookVerify)
	s.mux.HandleFunc("POST /webhook/whatsapp", h.handleWebhookReceive)
	s.mux.HandleFunc("POST /onboarding/transition", h.handleTransition)
	s.mux.HandleFunc("POST /onboarding/intake", h.handleIntake)
	s.mux.HandleFunc("GET /onboarding/status", h.handleStatus)
	s.mux.HandleFunc("POST /operational/items", h.handleUpsertItem)
	s.mux.HandleFunc("GET /operational/items", h.handleListItems)
	s.mux.HandleFunc("GET /operational/items/{id}", h.handleGetItem)
	s.mux.HandleFunc("DELETE /operational/items/{id}", h.handleDeleteItem)
	s.mux.HandleFunc("POST /reminders/run", h.handleReminderRun)
}

// RegisterMetricsHandler adds the /metrics endpoint handler.
// Should only be called if metrics are enabled.
func (s *Server) RegisterMetricsHandler(handler http.Handler) {
	s.logger.Info("Registering /metrics endpoint")
	s.mux.Handle("/metrics", handler)
}

// withRequestID tags every request with an id carried through logs and
// echoed back in the response headers.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := logger.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Start begins the HTTP server
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles the /health endpoint for liveness probes
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "UP",
		Version: "1.0.0",
	}

	utils.WriteJSONResponse(w, http.StatusOK, resp)
}

// handleReady handles the /ready endpoint for readiness probes
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.readiness != nil {
		if err := s.readiness(r.Context()); err != nil {
			utils.WriteJSONResponse(w, http.StatusServiceUnavailable, HealthResponse{
				Status: "NOT_READY",
				Details: map[string]string{
					"error":     err.Error(),
					"timestamp": utils.FormatISO8601(utils.Now()),
				},
			})
			return
		}
	}

	resp := HealthResponse{
		Status: "READY",
		Details: map[string]string{
			"timestamp": utils.FormatISO8601(utils.Now()),
		},
	}

	utils.WriteJSONResponse(w, http.StatusOK, resp)
}
