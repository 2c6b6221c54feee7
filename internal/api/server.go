// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/trade-analytics/internal/logging"
	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/service"
	"github.com/trade-analytics/internal/types"
)

// Service interfaces for dependency injection and testing

// ImportServiceInterface defines the interface for batch import operations
type ImportServiceInterface interface {
	ImportBatch(ctx context.Context, input *service.ImportBatchInput) (*models.BatchImportResult, error)
}

// AnalyticsServiceInterface defines the interface for reading analytics snapshots
type AnalyticsServiceInterface interface {
	GetSnapshots(ctx context.Context, userID string) ([]*models.AnalyticsSnapshot, error)
	GetSnapshot(ctx context.Context, userID string, scope types.MetricScope) (*models.AnalyticsSnapshot, error)
}

// RecomputeServiceInterface defines the interface for on-demand recomputation
type RecomputeServiceInterface interface {
	Recompute(ctx context.Context, userID string) (*service.RecomputeResult, error)
}

// AccountServiceInterface defines the interface for trading account operations
type AccountServiceInterface interface {
	CreateAccount(ctx context.Context, input *service.CreateAccountInput) (*models.TradingAccount, error)
	ListAccounts(ctx context.Context, userID string) ([]*models.TradingAccount, error)
}

// TradeServiceInterface defines the interface for trade management operations
type TradeServiceInterface interface {
	ListTrades(ctx context.Context, userID string, filter *models.TradeFilter) ([]*models.Trade, error)
	DeleteTrade(ctx context.Context, userID, tradeID string) (*service.RecomputeResult, error)
	CorrectTrade(ctx context.Context, input *service.CorrectTradeInput) (*models.Trade, error)
}

// HealthChecker is a dependency checked by /health
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Services groups the services the server routes to
type Services struct {
	Imports   ImportServiceInterface
	Analytics AnalyticsServiceInterface
	Recompute RecomputeServiceInterface
	Accounts  AccountServiceInterface
	Trades    TradeServiceInterface
}

// Server represents the HTTP API server.
type Server struct {
	router           *mux.Router
	httpServer       *http.Server
	importService    ImportServiceInterface
	analyticsService AnalyticsServiceInterface
	recomputeService RecomputeServiceInterface
	accountService   AccountServiceInterface
	tradeService     TradeServiceInterface
	healthChecks     map[string]HealthChecker
	config           *ServerConfig
	logger           *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerSecond int
	Burst             int
	MaxBodyBytes      int64
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, services Services, healthChecks map[string]HealthChecker, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	s := &Server{
		router:           mux.NewRouter(),
		importService:    services.Imports,
		analyticsService: services.Analytics,
		recomputeService: services.Recompute,
		accountService:   services.Accounts,
		tradeService:     services.Trades,
		healthChecks:     healthChecks,
		config:           config,
		logger:           logger.WithComponent("api"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	// Order matters: recovery must wrap everything below logging.
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Import endpoints
	api.HandleFunc("/imports", s.handleImportBatch).Methods("POST")
	api.HandleFunc("/imports/csv", s.handleImportCSV).Methods("POST")

	// Analytics endpoints
	api.HandleFunc("/analytics", s.handleGetAnalytics).Methods("GET")
	api.HandleFunc("/analytics/recompute", s.handleRecompute).Methods("POST")
	api.HandleFunc("/analytics/{scope}", s.handleGetAnalyticsScope).Methods("GET")

	// Account endpoints
	api.HandleFunc("/accounts", s.handleListAccounts).Methods("GET")
	api.HandleFunc("/accounts", s.handleCreateAccount).Methods("POST")

	// Trade endpoints
	api.HandleFunc("/trades", s.handleListTrades).Methods("GET")
	api.HandleFunc("/trades/{id}", s.handleCorrectTrade).Methods("PATCH")
	api.HandleFunc("/trades/{id}", s.handleDeleteTrade).Methods("DELETE")
}

// handleHealth pings every registered dependency
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.healthChecks))
	for name, checker := range s.healthChecks {
		if err := checker.Ping(ctx); err != nil {
			s.logger.WithError(err).WithField("dependency", name).Warn("health check failed")
			checks[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "healthy"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}

	respondJSON(w, status, map[string]interface{}{
		"status":  overall,
		"service": "trade-analytics",
		"checks":  checks,
	})
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting API server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
