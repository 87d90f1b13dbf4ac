package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/kalshiconsensus/internal/analysis"
	s3blob "github.com/alanyoungcy/kalshiconsensus/internal/blob/s3"
	"github.com/alanyoungcy/kalshiconsensus/internal/cache/local"
	"github.com/alanyoungcy/kalshiconsensus/internal/cache/redis"
	"github.com/alanyoungcy/kalshiconsensus/internal/config"
	"github.com/alanyoungcy/kalshiconsensus/internal/consensus"
	"github.com/alanyoungcy/kalshiconsensus/internal/crypto"
	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
	"github.com/alanyoungcy/kalshiconsensus/internal/metrics"
	"github.com/alanyoungcy/kalshiconsensus/internal/notify"
	"github.com/alanyoungcy/kalshiconsensus/internal/platform/anthropic"
	"github.com/alanyoungcy/kalshiconsensus/internal/platform/gemini"
	"github.com/alanyoungcy/kalshiconsensus/internal/platform/kalshi"
	"github.com/alanyoungcy/kalshiconsensus/internal/platform/openai"
	"github.com/alanyoungcy/kalshiconsensus/internal/server/handler"
	"github.com/alanyoungcy/kalshiconsensus/internal/service"
	"github.com/alanyoungcy/kalshiconsensus/internal/store/postgres"
)

// Dependencies bundles everything the modes need. It is built by Wire and
// torn down by the returned cleanup function.
type Dependencies struct {
	Markets  *service.MarketService
	Analysis *service.AnalysisService
	Metrics  *metrics.Metrics

	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	// Archive and Audit are nil unless S3 and Postgres are enabled.
	Archive handler.ScanArchive
	Audit   handler.AuditLog

	// Providers lists the configured providers in consensus order.
	Providers []string
	// Checks pings each optional backend for the health endpoint.
	Checks map[string]handler.Check
}

// Wire constructs every dependency from cfg. Redis, Postgres and S3 are
// optional; without Redis the caches, lock and bus run in process.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Checks:  make(map[string]handler.Check),
	}

	// --- Kalshi ---
	kc := kalshi.NewClient(cfg.Kalshi.BaseURL, cfg.Kalshi.APIKeyID)
	keyCfg := crypto.KeyConfig{
		PEM:           cfg.Kalshi.PrivateKeyPEM,
		Path:          cfg.Kalshi.PrivateKeyPath,
		EncryptedPath: cfg.Kalshi.EncryptedKeyPath,
		Password:      cfg.Kalshi.KeyPassword,
	}
	if keyCfg.Configured() {
		pemBytes, err := crypto.LoadKey(keyCfg)
		if err != nil {
			return fail(fmt.Errorf("wire: kalshi key: %w", err))
		}
		if err := kc.SetRSAPrivateKey(pemBytes); err != nil {
			return fail(fmt.Errorf("wire: kalshi key: %w", err))
		}
	}

	// --- Providers and consensus ---
	taxonomy, err := cfg.Analysis.ResolveTaxonomy()
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	weight, _ := consensus.WeightByName(cfg.Analysis.Weighting)
	adapterCfg := analysis.AdapterConfig{
		Temperature: cfg.Analysis.Temperature,
		MaxTokens:   cfg.Analysis.MaxTokens,
	}

	var estimators []consensus.Estimator
	addProvider := func(p domain.Provider, c domain.Completer) {
		estimators = append(estimators, analysis.NewAdapter(p, c, taxonomy, adapterCfg, deps.Metrics, logger))
		deps.Providers = append(deps.Providers, string(p))
	}
	if p := cfg.Providers.OpenAI; p.Enabled {
		addProvider(domain.ProviderOpenAI, openai.NewClient(p.APIKey, p.Model, p.BaseURL, p.Timeout.Duration))
	}
	if p := cfg.Providers.Anthropic; p.Enabled {
		addProvider(domain.ProviderAnthropic, anthropic.NewClient(p.APIKey, p.Model, p.BaseURL, p.Timeout.Duration))
	}
	if p := cfg.Providers.Gemini; p.Enabled {
		gc, err := gemini.NewClient(ctx, p.APIKey, gemini.Options{
			BaseURL:        p.BaseURL,
			Model:          p.Model,
			Timeout:        p.Timeout.Duration,
			RequestsPerSec: p.RequestsPerSec,
			MaxRetries:     p.MaxRetries,
			MaxElapsed:     p.MaxElapsed.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		addProvider(domain.ProviderGemini, gc)
	}
	engine := consensus.NewEngine(estimators, taxonomy, weight, logger)
	scanner := consensus.NewScanner(engine, cfg.Scan.BatchSize, cfg.Scan.BatchDelay.Duration, logger)

	// --- Caches, lock, bus ---
	var (
		marketCache domain.MarketCache
		picks       domain.PicksStore
		locks       domain.LockManager
	)
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			URL:        cfg.Redis.URL,
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })

		marketCache = redis.NewMarketCache(rc, cfg.Cache.MarketTTL.Duration, cfg.Cache.EventsTTL.Duration)
		picks = redis.NewPicksCache(rc, cfg.Scan.TopPicks)
		locks = redis.NewLockManager(rc)
		deps.RateLimiter = redis.NewRateLimiter(rc)
		deps.SignalBus = redis.NewSignalBus(rc)
		deps.Checks["redis"] = rc.Ping
	} else {
		logger.Info("redis disabled, using in-process caches")
		marketCache = local.NewMarketCache(cfg.Cache.MarketTTL.Duration, cfg.Cache.EventsTTL.Duration)
		picks = consensus.NewMemoryPicks(cfg.Scan.TopPicks)
		locks = local.NewLockManager()
		deps.RateLimiter = local.NewRateLimiter()
		deps.SignalBus = local.NewSignalBus()
	}

	// --- PostgreSQL ---
	var (
		marketStore domain.MarketStore
		results     domain.ConsensusStore
		audit       domain.AuditStore
	)
	if cfg.Supabase.Enabled {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		if cfg.Supabase.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		pool := pg.Pool()
		marketStore = postgres.NewMarketStore(pool)
		results = postgres.NewConsensusStore(pool)
		auditStore := postgres.NewAuditStore(pool)
		audit = auditStore
		deps.Audit = auditStore
		deps.Checks["postgres"] = pool.Ping
	}

	// --- S3 scan archive ---
	var archiver domain.ScanArchiver
	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		a := s3blob.NewArchiver(s3blob.NewWriter(sc), s3blob.NewReader(sc), audit, logger)
		archiver = a
		deps.Archive = a
		deps.Checks["s3"] = sc.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Services ---
	deps.Markets = service.NewMarketService(kc, marketCache, marketStore, logger)
	deps.Analysis = service.NewAnalysisService(service.AnalysisDeps{
		Markets:  deps.Markets,
		Engine:   engine,
		Scanner:  scanner,
		Picks:    picks,
		Policy:   consensus.PickPolicy{MinEdge: cfg.Scan.PickMinEdge},
		Bus:      deps.SignalBus,
		Locks:    locks,
		Results:  results,
		Audit:    audit,
		Archiver: archiver,
		Notifier: notifier,
		Metrics:  deps.Metrics,
	}, service.ScanConfig{
		MaxMarkets:  cfg.Scan.MaxMarkets,
		EventsLimit: cfg.Scan.EventsLimit,
		MinVolume:   cfg.Scan.MinVolume,
		LockTTL:     cfg.Scan.LockTTL.Duration,
		NotifyTop:   cfg.Scan.NotifyTop,
	}, logger)

	logger.Info("dependencies wired",
		slog.Any("providers", deps.Providers),
		slog.String("taxonomy", string(taxonomy.Kind)),
		slog.Float64("edge_threshold", taxonomy.EdgeThreshold),
		slog.Float64("strong_edge_threshold", taxonomy.StrongEdgeThreshold),
		slog.Float64("confidence_floor", taxonomy.ConfidenceFloor),
		slog.Bool("kalshi_signed", kc.Authenticated()),
		slog.Bool("redis", cfg.Redis.Enabled),
		slog.Bool("postgres", cfg.Supabase.Enabled),
		slog.Bool("s3", cfg.S3.Enabled),
		slog.Bool("notify", notifier.Enabled()),
	)
	return deps, cleanup, nil
}
