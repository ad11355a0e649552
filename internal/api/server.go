package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	apihandler "github.com/newthinker/trademate/internal/api/handler/api"
	"github.com/newthinker/trademate/internal/api/job"
	"github.com/newthinker/trademate/internal/api/middleware"
	log "github.com/newthinker/trademate/internal/logger"
	"github.com/newthinker/trademate/internal/metrics"
	"go.uber.org/zap"
)

// Server represents the HTTP server for TradeMate
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	backtests  *apihandler.BacktestHandler
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	APIKey         string
	AllowedOrigins []string
	MetricsPath    string        // empty disables the metrics endpoint
	JobTimeout     time.Duration // bound on a single backtest
}

// Dependencies are the collaborators the handlers need.
type Dependencies struct {
	Runner   apihandler.Runner
	Jobs     *job.Store
	Archive  apihandler.Archiver // optional
	Notifier apihandler.Notifier // optional
	Metrics  *metrics.Registry   // optional
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.Runner == nil {
		return nil, fmt.Errorf("api: a backtest runner is required")
	}
	if deps.Jobs == nil {
		deps.Jobs = job.NewStore(100, time.Hour)
	}
	logger = log.OrNop(logger)

	opts := []apihandler.Option{
		apihandler.WithTimeout(cfg.JobTimeout),
		apihandler.WithLogger(logger),
	}
	if deps.Archive != nil {
		opts = append(opts, apihandler.WithArchive(deps.Archive))
	}
	if deps.Notifier != nil {
		opts = append(opts, apihandler.WithNotifier(deps.Notifier))
	}
	if deps.Metrics != nil {
		opts = append(opts, apihandler.WithMetrics(deps.Metrics))
	}

	mux := http.NewServeMux()
	s := &Server{
		logger:    logger,
		mux:       mux,
		backtests: apihandler.NewBacktestHandler(deps.Jobs, deps.Runner, opts...),
	}
	s.setupRoutes(cfg, deps)

	// Synchronous backtests must finish inside the write deadline.
	writeTimeout := max(15*time.Second, cfg.JobTimeout+5*time.Second)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.wrap(cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, deps Dependencies) {
	auth := middleware.APIKeyAuth(cfg.APIKey)
	protect := func(h http.HandlerFunc) http.Handler { return auth(h) }

	s.mux.Handle("POST /api/test-strategy", protect(s.backtests.Test))
	s.mux.Handle("POST /api/v1/backtests", protect(s.backtests.Create))
	s.mux.Handle("GET /api/v1/backtests", protect(s.backtests.List))
	s.mux.Handle("GET /api/v1/backtests/{id}", protect(s.backtests.Get))

	s.mux.HandleFunc("GET /api/strategies", apihandler.Strategies)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /{$}", s.handleRoot)

	if deps.Metrics != nil && cfg.MetricsPath != "" {
		s.mux.Handle("GET "+cfg.MetricsPath, deps.Metrics.Handler())
	}
}

// wrap applies the middleware chain, outermost first: access log, metrics, CORS.
func (s *Server) wrap(cfg Config, deps Dependencies) http.Handler {
	var h http.Handler = s.mux
	h = middleware.CORS(cfg.AllowedOrigins)(h)
	if deps.Metrics != nil {
		h = metrics.HTTPMiddleware(deps.Metrics)(h)
	}
	return metrics.LoggingMiddleware(s.logger)(h)
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for running jobs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		s.backtests.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for backtest jobs: %w", ctx.Err())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message":"TradeMate API is running"}`))
}
