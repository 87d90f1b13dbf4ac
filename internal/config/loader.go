package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path over the defaults, loads .env if present,
// and applies environment overrides. A missing file is not an error when path
// is empty. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides reads KCONSENSUS_* variables, plus the conventional
// provider key variables when no key was configured, and overwrites the
// matching fields when set.
func applyEnvOverrides(cfg *Config) {
	// ── Kalshi ──
	setStr(&cfg.Kalshi.BaseURL, "KCONSENSUS_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.APIKeyID, "KCONSENSUS_KALSHI_API_KEY_ID")
	setStr(&cfg.Kalshi.PrivateKeyPEM, "KCONSENSUS_KALSHI_PRIVATE_KEY_PEM")
	setStr(&cfg.Kalshi.PrivateKeyPath, "KCONSENSUS_KALSHI_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.EncryptedKeyPath, "KCONSENSUS_KALSHI_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Kalshi.KeyPassword, "KCONSENSUS_KALSHI_KEY_PASSWORD")

	// ── Providers ──
	applyProvider(&cfg.Providers.OpenAI, "OPENAI", "OPENAI_API_KEY")
	applyProvider(&cfg.Providers.Anthropic, "ANTHROPIC", "ANTHROPIC_API_KEY")
	applyProvider(&cfg.Providers.Gemini.ProviderConfig, "GEMINI", "GOOGLE_AI_API_KEY")
	setFloat64(&cfg.Providers.Gemini.RequestsPerSec, "KCONSENSUS_PROVIDERS_GEMINI_REQUESTS_PER_SEC")
	setUint64(&cfg.Providers.Gemini.MaxRetries, "KCONSENSUS_PROVIDERS_GEMINI_MAX_RETRIES")

	// ── Analysis ──
	setStr(&cfg.Analysis.Taxonomy, "KCONSENSUS_ANALYSIS_TAXONOMY")
	setStr(&cfg.Analysis.Weighting, "KCONSENSUS_ANALYSIS_WEIGHTING")
	setFloat64Ptr(&cfg.Analysis.EdgeThreshold, "KCONSENSUS_ANALYSIS_EDGE_THRESHOLD")
	setFloat64Ptr(&cfg.Analysis.StrongEdgeThreshold, "KCONSENSUS_ANALYSIS_STRONG_EDGE_THRESHOLD")
	setFloat64Ptr(&cfg.Analysis.ConfidenceFloor, "KCONSENSUS_ANALYSIS_CONFIDENCE_FLOOR")
	setFloat64(&cfg.Analysis.Temperature, "KCONSENSUS_ANALYSIS_TEMPERATURE")
	setInt(&cfg.Analysis.MaxTokens, "KCONSENSUS_ANALYSIS_MAX_TOKENS")

	// ── Scan ──
	setInt(&cfg.Scan.BatchSize, "KCONSENSUS_SCAN_BATCH_SIZE")
	setDuration(&cfg.Scan.BatchDelay, "KCONSENSUS_SCAN_BATCH_DELAY")
	setInt(&cfg.Scan.MaxMarkets, "KCONSENSUS_SCAN_MAX_MARKETS")
	setInt(&cfg.Scan.EventsLimit, "KCONSENSUS_SCAN_EVENTS_LIMIT")
	setInt64(&cfg.Scan.MinVolume, "KCONSENSUS_SCAN_MIN_VOLUME")
	setInt(&cfg.Scan.TopPicks, "KCONSENSUS_SCAN_TOP_PICKS")
	setFloat64(&cfg.Scan.PickMinEdge, "KCONSENSUS_SCAN_PICK_MIN_EDGE")
	setDuration(&cfg.Scan.WatchInterval, "KCONSENSUS_SCAN_WATCH_INTERVAL")
	setDuration(&cfg.Scan.LockTTL, "KCONSENSUS_SCAN_LOCK_TTL")

	// ── Supabase ──
	setBool(&cfg.Supabase.Enabled, "KCONSENSUS_SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "KCONSENSUS_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "DATABASE_URL")
	setStr(&cfg.Supabase.Host, "KCONSENSUS_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "KCONSENSUS_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "KCONSENSUS_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "KCONSENSUS_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "KCONSENSUS_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "KCONSENSUS_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "KCONSENSUS_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "KCONSENSUS_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "KCONSENSUS_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "KCONSENSUS_REDIS_ENABLED")
	setStr(&cfg.Redis.URL, "KCONSENSUS_REDIS_URL")
	setStr(&cfg.Redis.Addr, "KCONSENSUS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "KCONSENSUS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "KCONSENSUS_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "KCONSENSUS_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "KCONSENSUS_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "KCONSENSUS_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "KCONSENSUS_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "KCONSENSUS_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "KCONSENSUS_S3_REGION")
	setStr(&cfg.S3.Bucket, "KCONSENSUS_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "KCONSENSUS_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "KCONSENSUS_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "KCONSENSUS_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "KCONSENSUS_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "KCONSENSUS_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "KCONSENSUS_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "KCONSENSUS_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "KCONSENSUS_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "KCONSENSUS_SERVER_RATE_WINDOW")
	setBool(&cfg.Server.Metrics, "KCONSENSUS_SERVER_METRICS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "KCONSENSUS_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "KCONSENSUS_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "KCONSENSUS_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "KCONSENSUS_NOTIFY_EVENTS")

	// ── Log ──
	setStr(&cfg.Log.File, "KCONSENSUS_LOG_FILE")

	// ── Top-level ──
	setStr(&cfg.Mode, "KCONSENSUS_MODE")
	setStr(&cfg.LogLevel, "KCONSENSUS_LOG_LEVEL")
}

// applyProvider applies KCONSENSUS_PROVIDERS_<NAME>_* overrides. The
// conventional fallback key variable only fills an empty key.
func applyProvider(p *ProviderConfig, name, fallbackKey string) {
	prefix := "KCONSENSUS_PROVIDERS_" + name + "_"
	setBool(&p.Enabled, prefix+"ENABLED")
	setStr(&p.APIKey, prefix+"API_KEY")
	if p.APIKey == "" {
		setStr(&p.APIKey, fallbackKey)
	}
	setStr(&p.Model, prefix+"MODEL")
	setStr(&p.BaseURL, prefix+"BASE_URL")
	setDuration(&p.Timeout, prefix+"TIMEOUT")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setFloat64Ptr(dst **float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = &f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
