// Package server provides the HTTP + WebSocket API surface of the arbitrage
// node.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
	"github.com/bancorprotocol/bancor-arbitrage/internal/server/handler"
	"github.com/bancorprotocol/bancor-arbitrage/internal/server/middleware"
	"github.com/bancorprotocol/bancor-arbitrage/internal/server/ws"
)

// execRateLimit throttles the execution endpoints per client IP; reads are
// not limited.
const (
	execRateLimit  = 10
	execRateWindow = time.Minute
)

// Config holds the HTTP server configuration.
type Config struct {
	Port         int
	CORSOrigins  []string
	APIKey       string // if empty, authentication is disabled
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Arb         *handler.ArbHandler
	Admin       *handler.AdminHandler
	Settlements *handler.SettlementHandler
}

// Server is the headless HTTP + WebSocket API server for the arbitrage node.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub. limiter may be nil to disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Execution endpoints, rate limited per client.
	var exec func(http.HandlerFunc) http.Handler = func(h http.HandlerFunc) http.Handler { return h }
	if limiter != nil {
		rl := middleware.RateLimit(limiter, execRateLimit, execRateWindow)
		exec = func(h http.HandlerFunc) http.Handler { return rl(h) }
	}
	mux.Handle("POST /api/arb/flashloan", exec(handlers.Arb.ExecuteFlashloan))
	mux.Handle("POST /api/arb/fund", exec(handlers.Arb.ExecuteFunded))

	// Settlement history.
	mux.HandleFunc("GET /api/settlements", handlers.Settlements.ListRecent)
	mux.HandleFunc("GET /api/settlements/{id}", handlers.Settlements.GetByID)

	// Durable engine parameters.
	mux.HandleFunc("GET /api/admin/rewards", handlers.Admin.GetRewards)
	mux.HandleFunc("PUT /api/admin/rewards", handlers.Admin.UpdateRewards)
	mux.HandleFunc("GET /api/admin/minburn", handlers.Admin.GetMinBurn)
	mux.HandleFunc("PUT /api/admin/minburn", handlers.Admin.UpdateMinBurn)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
