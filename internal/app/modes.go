package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kalshiconsensus/internal/server"
	"github.com/alanyoungcy/kalshiconsensus/internal/server/handler"
	"github.com/alanyoungcy/kalshiconsensus/internal/server/ws"
)

const shutdownTimeout = 10 * time.Second

// ServerMode serves the HTTP and WebSocket API and runs queued scans.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return deps.Analysis.Run(ctx) })
	a.startHTTPServer(ctx, g, deps)
	return ignoreCanceled(g.Wait())
}

// ScanMode runs one scan, logs the ranked results and returns.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting one-shot scan")

	summary, err := deps.Analysis.Scan(ctx, a.cfg.Scan.MaxMarkets)
	if err != nil {
		return fmt.Errorf("app: scan: %w", err)
	}
	for i, r := range summary.Results {
		a.logger.InfoContext(ctx, "scan result",
			slog.Int("rank", i+1),
			slog.String("ticker", r.Market.Ticker),
			slog.String("recommendation", string(r.Recommendation)),
			slog.Float64("consensus", r.ConsensusProbability),
			slog.Float64("implied", r.ImpliedProbability),
			slog.Float64("edge", r.EdgePercentage),
			slog.Float64("mispricing", r.MispricingScore),
		)
	}
	a.logger.InfoContext(ctx, "scan complete",
		slog.String("scan_id", summary.ScanID),
		slog.Int("markets", len(summary.Results)),
		slog.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return nil
}

// WatchMode scans on a fixed interval without serving HTTP.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode",
		slog.Duration("interval", a.cfg.Scan.WatchInterval.Duration),
	)
	return deps.Analysis.Watch(ctx, a.cfg.Scan.WatchInterval.Duration)
}

// FullMode combines ServerMode with periodic scans.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.Duration("interval", a.cfg.Scan.WatchInterval.Duration),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return deps.Analysis.Run(ctx) })
	g.Go(func() error { return deps.Analysis.Watch(ctx, a.cfg.Scan.WatchInterval.Duration) })
	a.startHTTPServer(ctx, g, deps)
	return ignoreCanceled(g.Wait())
}

// startHTTPServer adds the API server, its WebSocket hub and a shutdown
// watcher to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, deps.Analysis.Progress, ws.Config{
		Mode:      a.cfg.Mode,
		Providers: deps.Providers,
		StartedAt: time.Now().UTC(),
		Origins:   a.cfg.Server.CORSOrigins,
	}, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	var metricsHandler http.Handler
	if a.cfg.Server.Metrics {
		metricsHandler = deps.Metrics.Handler()
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(a.cfg.Mode, deps.Providers, deps.Checks, a.logger),
		Markets:  handler.NewMarketHandler(deps.Markets, a.logger),
		Analysis: handler.NewAnalysisHandler(deps.Analysis, a.logger),
		Archive:  handler.NewArchiveHandler(deps.Archive, deps.Audit, a.logger),
		Metrics:  metricsHandler,
	}, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
