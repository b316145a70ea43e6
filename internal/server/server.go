// Package server exposes the market service over HTTP and streams status
// changes over WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/server/handler"
	"github.com/alanyoungcy/predictledger/internal/server/middleware"
	"github.com/alanyoungcy/predictledger/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	Auth        middleware.AuthConfig

	// RateLimit is the per-client request budget per RateWindow. Zero
	// disables rate limiting.
	RateLimit      int
	WriteRateLimit int
	RateWindow     time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Markets *handler.MarketHandler
	// Status is optional.
	Status *handler.StatusHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      Routes(cfg, handlers, wsHub, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// Routes builds the routed handler wrapped in the middleware chain.
func Routes(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/ready", handlers.Health.Ready)
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	m := handlers.Markets
	mux.HandleFunc("GET /api/markets", m.ListMarkets)
	mux.HandleFunc("POST /api/markets", m.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", m.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/history", m.History)
	mux.HandleFunc("GET /api/markets/{id}/events", m.Events)
	mux.HandleFunc("GET /api/markets/{id}/entries", m.Entries)
	mux.HandleFunc("GET /api/markets/{id}/entries/{slot}/proof", m.EntryProof)
	mux.HandleFunc("GET /api/markets/{id}/ladder/proof", m.LadderProof)
	mux.HandleFunc("GET /api/markets/{id}/resolution", m.GetResolution)
	mux.HandleFunc("POST /api/markets/{id}/quote", m.Quote)
	mux.HandleFunc("POST /api/markets/{id}/prepare", m.Prepare)
	mux.HandleFunc("POST /api/markets/{id}/propose", m.Propose)
	mux.HandleFunc("POST /api/markets/{id}/redeem", m.Redeem)
	mux.HandleFunc("POST /api/markets/{id}/resolve", m.Resolve)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	auth := cfg.Auth
	auth.Public = append(auth.Public, "/api/health", "/api/ready", "/api/status")
	h = middleware.Auth(auth)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.WriteRateLimit, window, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
