package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if got := cfg.EnabledProviders(); strings.Join(got, ",") != "openai,anthropic,gemini" {
		t.Errorf("providers = %v", got)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Analysis.Taxonomy = "seven_way"
	cfg.Analysis.Weighting = "votes"
	cfg.Scan.BatchSize = 0
	cfg.Kalshi.EncryptedKeyPath = "/keys/kalshi.enc"
	cfg.Notify.TelegramToken = "t"
	cfg.Providers.OpenAI.Enabled = false
	cfg.Providers.Anthropic.Enabled = false
	cfg.Providers.Gemini.Enabled = false

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		`unknown mode "trade"`,
		`unknown taxonomy "seven_way"`,
		`unknown weighting "votes"`,
		"batch_size",
		"key_password is required",
		"api_key_id is required",
		"at least one provider",
		"telegram_token and telegram_chat_id",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateOptionalBackends(t *testing.T) {
	cfg := Defaults()
	cfg.Supabase.Host = ""
	cfg.S3.Bucket = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled backends should not be checked: %v", err)
	}

	cfg.Supabase.Enabled = true
	cfg.S3.Enabled = true
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "supabase: host") || !strings.Contains(err.Error(), "s3: bucket") {
		t.Errorf("err = %v", err)
	}
}

func TestWatchNeedsInterval(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "watch"
	cfg.Scan.WatchInterval = duration{}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "watch_interval") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "watch"

[analysis]
taxonomy = "three_way"

[scan]
batch_delay = "250ms"
watch_interval = "5m"

[providers.gemini]
requests_per_sec = 2.5
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	t.Setenv("KCONSENSUS_SCAN_MAX_MARKETS", "25")
	t.Setenv("KCONSENSUS_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("OPENAI_API_KEY", "sk-fallback")
	t.Setenv("KCONSENSUS_PROVIDERS_ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("ANTHROPIC_API_KEY", "ignored")
	t.Setenv("GOOGLE_AI_API_KEY", "g-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "watch" || cfg.Analysis.Taxonomy != "three_way" {
		t.Errorf("file values not applied: mode=%q taxonomy=%q", cfg.Mode, cfg.Analysis.Taxonomy)
	}
	if cfg.Scan.BatchDelay.Duration != 250*time.Millisecond || cfg.Scan.WatchInterval.Duration != 5*time.Minute {
		t.Errorf("durations = %v, %v", cfg.Scan.BatchDelay, cfg.Scan.WatchInterval)
	}
	if cfg.Providers.Gemini.RequestsPerSec != 2.5 {
		t.Errorf("gemini rps = %v", cfg.Providers.Gemini.RequestsPerSec)
	}
	if cfg.Scan.BatchSize != 3 {
		t.Errorf("unset field lost its default: batch_size = %d", cfg.Scan.BatchSize)
	}
	if cfg.Scan.MaxMarkets != 25 {
		t.Errorf("max_markets = %d", cfg.Scan.MaxMarkets)
	}
	if got := strings.Join(cfg.Server.CORSOrigins, "|"); got != "https://a.example|https://b.example" {
		t.Errorf("cors = %q", got)
	}
	if cfg.Providers.OpenAI.APIKey != "sk-fallback" {
		t.Errorf("openai key = %q", cfg.Providers.OpenAI.APIKey)
	}
	if cfg.Providers.Anthropic.APIKey != "sk-ant" {
		t.Errorf("anthropic key = %q, prefixed variable should win", cfg.Providers.Anthropic.APIKey)
	}
	if cfg.Providers.Gemini.APIKey != "g-key" {
		t.Errorf("gemini key = %q", cfg.Providers.Gemini.APIKey)
	}
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("mode = "), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected decode error")
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Providers.OpenAI.APIKey = "sk-live"
	cfg.Kalshi.KeyPassword = "hunter2"
	cfg.Server.APIKey = "api"
	cfg.Redis.URL = "redis://:pw@host:6379"

	out := RedactedConfig(&cfg)
	for name, got := range map[string]string{
		"openai":   out.Providers.OpenAI.APIKey,
		"password": out.Kalshi.KeyPassword,
		"server":   out.Server.APIKey,
		"redis":    out.Redis.URL,
	} {
		if got != redacted {
			t.Errorf("%s = %q, want redacted", name, got)
		}
	}
	if out.Providers.Gemini.APIKey != "" {
		t.Error("empty secrets should stay empty")
	}
	if cfg.Providers.OpenAI.APIKey != "sk-live" {
		t.Error("original was modified")
	}
	out.Server.CORSOrigins[0] = "changed"
	if cfg.Server.CORSOrigins[0] == "changed" {
		t.Error("slices alias the original")
	}
}

func TestLoadAnalysisThresholds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[analysis]
confidence_floor = 0.9
edge_threshold = 20
strong_edge_threshold = 30
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	tax, err := cfg.Analysis.ResolveTaxonomy()
	if err != nil {
		t.Fatalf("ResolveTaxonomy: %v", err)
	}
	if tax.ConfidenceFloor != 0.9 || tax.EdgeThreshold != 20 || tax.StrongEdgeThreshold != 30 {
		t.Fatalf("thresholds = %v / %v / %v", tax.EdgeThreshold, tax.StrongEdgeThreshold, tax.ConfidenceFloor)
	}
	tests := []struct {
		edge, conf float64
		want       string
	}{
		{10, 0.5, "hold"},
		{10, 0.95, "hold"},
		{25, 0.95, "buy_yes"},
		{35, 0.95, "strong_buy_yes"},
		{35, 0.5, "hold"},
	}
	for _, tt := range tests {
		if got := tax.Classify(tt.edge, tt.conf); string(got) != tt.want {
			t.Errorf("Classify(%v, %v) = %s, want %s", tt.edge, tt.conf, got, tt.want)
		}
	}
}

func TestThresholdEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("KCONSENSUS_ANALYSIS_CONFIDENCE_FLOOR", "0")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tax, err := cfg.Analysis.ResolveTaxonomy()
	if err != nil {
		t.Fatalf("ResolveTaxonomy: %v", err)
	}
	if tax.ConfidenceFloor != 0 || tax.EdgeThreshold != 5 {
		t.Errorf("floor = %v edge = %v, want 0 / 5", tax.ConfidenceFloor, tax.EdgeThreshold)
	}
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	cfg := Defaults()
	floor, edge := 1.5, 20.0
	cfg.Analysis.ConfidenceFloor = &floor
	cfg.Analysis.EdgeThreshold = &edge

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "confidence floor") {
		t.Errorf("err = %v, want confidence floor error", err)
	}

	cfg = Defaults()
	cfg.Analysis.EdgeThreshold = &edge
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "strong edge threshold") {
		t.Errorf("err = %v, want strong edge threshold error", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[analysis]
taxonomy = "five_way"
confidence_flor = 0.4
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "analysis.confidence_flor") {
		t.Errorf("err = %v, want unknown key error", err)
	}
}

func TestExampleConfigDecodes(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("example config invalid: %v", err)
	}
}
