// Package config defines the configuration of the consensus service and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshiconsensus/internal/analysis"
	"github.com/alanyoungcy/kalshiconsensus/internal/consensus"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by KCONSENSUS_* environment variables.
type Config struct {
	Kalshi    KalshiConfig    `toml:"kalshi"`
	Providers ProvidersConfig `toml:"providers"`
	Analysis  AnalysisConfig  `toml:"analysis"`
	Scan      ScanConfig      `toml:"scan"`
	Cache     CacheConfig     `toml:"cache"`
	Supabase  SupabaseConfig  `toml:"supabase"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Log       LogConfig       `toml:"log"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// KalshiConfig holds Kalshi API access. Market data is public; the key is
// only needed for signed requests.
type KalshiConfig struct {
	BaseURL          string `toml:"base_url"`
	APIKeyID         string `toml:"api_key_id"`
	PrivateKeyPEM    string `toml:"private_key_pem"`
	PrivateKeyPath   string `toml:"private_key_path"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ProvidersConfig holds one section per text-generation provider.
type ProvidersConfig struct {
	OpenAI    ProviderConfig `toml:"openai"`
	Anthropic ProviderConfig `toml:"anthropic"`
	Gemini    GeminiConfig   `toml:"gemini"`
}

// ProviderConfig is the common provider section. A provider with an empty
// API key is still part of every consensus; its calls fail and it
// contributes a sentinel estimate.
type ProviderConfig struct {
	Enabled bool     `toml:"enabled"`
	APIKey  string   `toml:"api_key"`
	Model   string   `toml:"model"`
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// GeminiConfig adds client-side throttling and retry to ProviderConfig.
type GeminiConfig struct {
	ProviderConfig
	RequestsPerSec float64  `toml:"requests_per_sec"`
	MaxRetries     uint64   `toml:"max_retries"`
	MaxElapsed     duration `toml:"max_elapsed"`
}

// AnalysisConfig selects the recommendation vocabulary and sampling. The
// threshold fields override the named taxonomy's values when set; edges are
// in percentage points.
type AnalysisConfig struct {
	Taxonomy            string   `toml:"taxonomy"`
	EdgeThreshold       *float64 `toml:"edge_threshold"`
	StrongEdgeThreshold *float64 `toml:"strong_edge_threshold"`
	ConfidenceFloor     *float64 `toml:"confidence_floor"`

	Weighting   string  `toml:"weighting"`
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
}

// ResolveTaxonomy returns the named taxonomy with the configured threshold
// overrides applied.
func (a AnalysisConfig) ResolveTaxonomy() (analysis.Taxonomy, error) {
	t, err := analysis.TaxonomyByName(a.Taxonomy)
	if err != nil {
		return analysis.Taxonomy{}, err
	}
	return t.WithThresholds(analysis.Thresholds{
		EdgeThreshold:       a.EdgeThreshold,
		StrongEdgeThreshold: a.StrongEdgeThreshold,
		ConfidenceFloor:     a.ConfidenceFloor,
	})
}

// ScanConfig holds batch scan and top-picks parameters.
type ScanConfig struct {
	BatchSize     int      `toml:"batch_size"`
	BatchDelay    duration `toml:"batch_delay"`
	MaxMarkets    int      `toml:"max_markets"`
	EventsLimit   int      `toml:"events_limit"`
	MinVolume     int64    `toml:"min_volume"`
	TopPicks      int      `toml:"top_picks"`
	PickMinEdge   float64  `toml:"pick_min_edge"`
	WatchInterval duration `toml:"watch_interval"`
	LockTTL       duration `toml:"lock_ttl"`
	NotifyTop     int      `toml:"notify_top"`
}

// CacheConfig holds market data cache lifetimes.
type CacheConfig struct {
	MarketTTL duration `toml:"market_ttl"`
	EventsTTL duration `toml:"events_ttl"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	URL        string `toml:"url"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters for the scan
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
	Metrics     bool     `toml:"metrics"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// LogConfig enables a rotating JSON log file next to stdout.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxAgeDays int    `toml:"max_age_days"`
	MaxBackups int    `toml:"max_backups"`
	Compress   bool   `toml:"compress"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the values in
// config.example.toml.
func Defaults() Config {
	return Config{
		Kalshi: KalshiConfig{
			BaseURL: "https://api.elections.kalshi.com/trade-api/v2",
		},
		Providers: ProvidersConfig{
			OpenAI:    ProviderConfig{Enabled: true, Model: "gpt-4o", Timeout: duration{60 * time.Second}},
			Anthropic: ProviderConfig{Enabled: true, Model: "claude-sonnet-4-20250514", Timeout: duration{60 * time.Second}},
			Gemini: GeminiConfig{
				ProviderConfig: ProviderConfig{Enabled: true, Model: "gemini-1.5-pro", Timeout: duration{60 * time.Second}},
				RequestsPerSec: 1,
				MaxRetries:     3,
				MaxElapsed:     duration{30 * time.Second},
			},
		},
		Analysis: AnalysisConfig{
			Taxonomy:    string(analysis.TaxonomyFiveWay),
			Weighting:   "confidence",
			Temperature: analysis.DefaultTemperature,
			MaxTokens:   analysis.DefaultMaxTokens,
		},
		Scan: ScanConfig{
			BatchSize:     consensus.DefaultBatchSize,
			BatchDelay:    duration{consensus.DefaultBatchDelay},
			MaxMarkets:    10,
			EventsLimit:   50,
			TopPicks:      consensus.DefaultPicksCapacity,
			PickMinEdge:   consensus.DefaultPickMinEdge,
			WatchInterval: duration{15 * time.Minute},
			LockTTL:       duration{10 * time.Minute},
			NotifyTop:     5,
		},
		Cache: CacheConfig{
			MarketTTL: duration{30 * time.Second},
			EventsTTL: duration{60 * time.Second},
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "kc:",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "kalshi-consensus",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   60,
			RateWindow:  duration{time.Minute},
			Metrics:     true,
		},
		Notify: NotifyConfig{
			Events: []string{"strong_pick", "scan_failed"},
		},
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxAgeDays: 14,
			MaxBackups: 5,
			Compress:   true,
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"server": true,
	"scan":   true,
	"watch":  true,
	"full":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid or missing values and returns a combined
// error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, scan, watch, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if c.Kalshi.EncryptedKeyPath != "" && c.Kalshi.KeyPassword == "" {
		errs = append(errs, "kalshi: key_password is required when encrypted_key_path is set")
	}
	if c.Kalshi.hasKey() && c.Kalshi.APIKeyID == "" {
		errs = append(errs, "kalshi: api_key_id is required when a private key is configured")
	}

	if len(c.EnabledProviders()) == 0 {
		errs = append(errs, "providers: at least one provider must be enabled")
	}
	if c.Providers.Gemini.Enabled && c.Providers.Gemini.RequestsPerSec < 0 {
		errs = append(errs, "providers.gemini: requests_per_sec must be >= 0")
	}

	if _, err := analysis.TaxonomyByName(c.Analysis.Taxonomy); err != nil {
		errs = append(errs, fmt.Sprintf("analysis: unknown taxonomy %q (valid: five_way, three_way)", c.Analysis.Taxonomy))
	} else if _, err := c.Analysis.ResolveTaxonomy(); err != nil {
		errs = append(errs, err.Error())
	}
	if _, ok := consensus.WeightByName(c.Analysis.Weighting); !ok {
		errs = append(errs, fmt.Sprintf("analysis: unknown weighting %q (valid: confidence, ok_only)", c.Analysis.Weighting))
	}
	if c.Analysis.Temperature < 0 || c.Analysis.Temperature > 2 {
		errs = append(errs, "analysis: temperature must be within [0, 2]")
	}
	if c.Analysis.MaxTokens < 1 {
		errs = append(errs, "analysis: max_tokens must be >= 1")
	}

	if c.Scan.BatchSize < 1 {
		errs = append(errs, "scan: batch_size must be >= 1")
	}
	if c.Scan.BatchDelay.Duration < 0 {
		errs = append(errs, "scan: batch_delay must not be negative")
	}
	if c.Scan.MaxMarkets < 1 {
		errs = append(errs, "scan: max_markets must be >= 1")
	}
	if c.Scan.TopPicks < 1 {
		errs = append(errs, "scan: top_picks must be >= 1")
	}
	if c.Scan.PickMinEdge < 0 {
		errs = append(errs, "scan: pick_min_edge must be >= 0")
	}
	if (mode == "watch" || mode == "full") && c.Scan.WatchInterval.Duration <= 0 {
		errs = append(errs, "scan: watch_interval must be positive in mode "+mode)
	}

	if c.Supabase.Enabled {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" && c.Redis.URL == "" {
		errs = append(errs, "redis: addr or url must be set when enabled")
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if mode == "server" || mode == "full" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be positive when rate_limit is set")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// EnabledProviders lists enabled provider names in consensus order.
func (c *Config) EnabledProviders() []string {
	var out []string
	if c.Providers.OpenAI.Enabled {
		out = append(out, "openai")
	}
	if c.Providers.Anthropic.Enabled {
		out = append(out, "anthropic")
	}
	if c.Providers.Gemini.Enabled {
		out = append(out, "gemini")
	}
	return out
}

func (k KalshiConfig) hasKey() bool {
	return k.PrivateKeyPEM != "" || k.PrivateKeyPath != "" || k.EncryptedKeyPath != ""
}
