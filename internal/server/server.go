package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
	"github.com/alanyoungcy/kalshiconsensus/internal/server/handler"
	"github.com/alanyoungcy/kalshiconsensus/internal/server/middleware"
	"github.com/alanyoungcy/kalshiconsensus/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables auth

	// RateLimit is requests per RateWindow per client IP. Zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Markets  *handler.MarketHandler
	Analysis *handler.AnalysisHandler
	Archive  *handler.ArchiveHandler
	Metrics  http.Handler // optional
}

// Server is the HTTP + WebSocket API for the consensus service.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in rate limiting, auth,
// logging and CORS, innermost first. hub and limiter may be nil.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/events", handlers.Markets.ListEvents)
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{ticker}", handlers.Markets.GetMarket)

	mux.HandleFunc("POST /api/analyze", handlers.Analysis.AnalyzeTicker)
	mux.HandleFunc("PUT /api/analyze", handlers.Analysis.AnalyzeMarket)
	mux.HandleFunc("POST /api/scan", handlers.Analysis.StartScan)
	mux.HandleFunc("GET /api/scan", handlers.Analysis.ScanStatus)
	mux.HandleFunc("GET /api/picks", handlers.Analysis.ListPicks)
	mux.HandleFunc("GET /api/consensus/recent", handlers.Analysis.ListRecent)
	mux.HandleFunc("GET /api/consensus/{ticker}", handlers.Analysis.ListByTicker)

	if handlers.Archive != nil {
		mux.HandleFunc("GET /api/archive/scans", handlers.Archive.ListScans)
		mux.HandleFunc("GET /api/archive/scans/{key...}", handlers.Archive.GetScan)
		mux.HandleFunc("GET /api/audit", handlers.Archive.ListAudit)
	}

	public := []string{"/api/health"}
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
		public = append(public, "/metrics")
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Auth(cfg.APIKey, public...)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Analysis waits on three providers in parallel.
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the fully wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
