// Package api exposes the portfolio service over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moment-tracker/internal/logging"
	"github.com/moment-tracker/internal/types"
)

// PortfolioServiceInterface defines the service operations the API serves
type PortfolioServiceInterface interface {
	GetComprehensiveMoments(ctx context.Context, wallet string) ([]types.Moment, error)
	GetPortfolioReport(ctx context.Context, wallet string) (*types.PortfolioReport, error)
	GetAccountTransactionHistory(ctx context.Context, wallet string) ([]*types.Transaction, error)
	GetTopShotEvents(ctx context.Context, wallet string, eventTypes []string) ([]*types.Transaction, error)
	GetMarketDataForMoments(ctx context.Context, ids []string) (map[string]*types.MarketSnapshot, error)
}

// Server represents the HTTP API server.
type Server struct {
	router           *mux.Router
	httpServer       *http.Server
	portfolioService PortfolioServiceInterface
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
	RequestTimeout    time.Duration
	RequestsPerSecond float64 // per client
	Burst             int
	MaxSnapshotIDs    int
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, portfolioService PortfolioServiceInterface, logger *logging.Logger) *Server {
	if config.MaxSnapshotIDs <= 0 {
		config.MaxSnapshotIDs = 500
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	s := &Server{
		router:           mux.NewRouter(),
		portfolioService: portfolioService,
		config:           config,
		logger:           logger.Named("api"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	// order matters: the request id scopes the logger used by everything after it
	s.router.Use(s.baseLoggerMiddleware)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(TimeoutMiddleware(s.config.RequestTimeout))

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(rateLimiter))

	api.HandleFunc("/wallets/{address}/moments", s.handleGetMoments).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{address}/analytics", s.handleGetAnalytics).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{address}/transactions", s.handleGetTransactions).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{address}/events", s.handleGetEvents).Methods(http.MethodGet)
	api.HandleFunc("/market/snapshots", s.handleGetSnapshots).Methods(http.MethodPost)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

func (s *Server) baseLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(logging.WithLogger(r.Context(), s.logger)))
	})
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "moment-tracker",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
