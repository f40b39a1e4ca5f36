package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forescene/forescene/internal/server"
	"github.com/forescene/forescene/internal/server/handler"
	"github.com/forescene/forescene/internal/server/ws"
)

// ServerMode runs the HTTP + WebSocket API together with the background
// cache refresh loop.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startRefreshLoop(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// WatchMode runs only the background loops: the cache refresh loop and,
// when S3 is enabled, the snapshot archiver. No API surface is exposed.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startRefreshLoop(ctx, g, deps)
	a.startArchiveLoop(ctx, g, deps)

	return g.Wait()
}

// FullMode runs everything: the API server, the refresh loop, and the
// archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startRefreshLoop(ctx, g, deps)
	a.startArchiveLoop(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// startRefreshLoop adds the periodic record refresh goroutine. The loop
// itself coordinates across replicas through the distributed lock, so it is
// safe to start unconditionally.
func (a *App) startRefreshLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	interval := a.cfg.Reads.RefreshInterval.Duration
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	g.Go(func() error {
		return deps.Records.RunRefreshLoop(ctx, interval)
	})
}

// startArchiveLoop adds the snapshot archiver goroutine when S3 is wired.
func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	arch, ok := deps.Archiver.(interface {
		RunArchiveLoop(ctx context.Context, interval, maxAge time.Duration) error
	})
	if !ok {
		return
	}
	g.Go(func() error {
		return arch.RunArchiveLoop(ctx,
			a.cfg.S3.ArchiveInterval.Duration,
			a.cfg.S3.ArchiveMaxAge.Duration,
		)
	})
}

// startHTTPServer adds the API server and WebSocket hub goroutines. The
// server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "HTTP server disabled by configuration")
		return
	}

	account := ""
	if deps.Writer != nil {
		account = deps.Writer.Account().Hex()
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:    a.cfg.Mode,
		ChainID: a.cfg.Chain.ChainID,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, a.cfg.Chain.ChainID, account),
		Records:   handler.NewRecordHandler(deps.Records, a.logger),
		Positions: handler.NewPositionHandler(deps.Positions, a.logger),
		Sequences: handler.NewSequenceHandler(deps.Sequences, a.logger),
	}
	if a.cfg.Pinning.Token != "" {
		handlers.Upload = handler.NewUploadHandler(deps.Pinner, deps.Mirror, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, deps.RateLimiter, hub, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.InfoContext(ctx, "HTTP server shutting down")
		return srv.Shutdown(shutCtx)
	})
}
