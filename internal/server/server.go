// Package server exposes the aggregated reads and the transaction sequencer
// over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/forescene/forescene/internal/domain"
	"github.com/forescene/forescene/internal/server/handler"
	"github.com/forescene/forescene/internal/server/middleware"
	"github.com/forescene/forescene/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Write-endpoint rate limiting; applied only when a limiter is wired.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Records   *handler.RecordHandler
	Positions *handler.PositionHandler
	Sequences *handler.SequenceHandler
	Upload    *handler.UploadHandler // nil when no pinning credentials are configured
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. Logging and CORS
// wrap every route; API-key auth and rate limiting guard only the write
// surface. The limiter and wsHub are optional.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check and reads are public; only the write surface is keyed.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Aggregated reads.
	mux.HandleFunc("GET /api/records", handlers.Records.ListRecords)
	mux.HandleFunc("GET /api/records/{id}", handlers.Records.GetRecord)
	mux.HandleFunc("GET /api/creators/{address}/records", handlers.Records.ListByCreator)
	mux.HandleFunc("GET /api/positions/{account}", handlers.Positions.ListPositions)

	// Writes, each driving a full sequencer pipeline.
	writes := http.NewServeMux()
	writes.HandleFunc("POST /api/records", handlers.Sequences.Create)
	writes.HandleFunc("POST /api/records/refresh", handlers.Records.TriggerRefresh)
	writes.HandleFunc("POST /api/records/{id}/stake", handlers.Sequences.Stake)
	writes.HandleFunc("POST /api/records/{id}/copy", handlers.Sequences.Copy)
	writes.HandleFunc("POST /api/sequence/reset", handlers.Sequences.Reset)
	if handlers.Upload != nil {
		writes.HandleFunc("POST /api/upload", handlers.Upload.Upload)
	}

	var writeHandler http.Handler = writes
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		writeHandler = middleware.RateLimit(limiter, cfg.RateLimit, window)(writeHandler)
	}
	writeHandler = middleware.Auth(cfg.APIKey)(writeHandler)
	mux.Handle("POST /api/", writeHandler)

	// Sequencer observability.
	mux.HandleFunc("GET /api/sequence", handlers.Sequences.Status)
	mux.HandleFunc("GET /api/sequence/history", handlers.Sequences.History)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // writes block on transaction confirmation
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
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
