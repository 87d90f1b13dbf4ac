package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

// Sampling defaults applied to every provider call.
const (
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 1000
)

// Observer receives one callback per provider call. It may be nil.
type Observer interface {
	ObserveProvider(provider domain.Provider, status domain.EstimateStatus, elapsed time.Duration)
}

// AdapterConfig tunes the sampling parameters sent to a provider. Temperature
// is sent as given, zero included; MaxTokens falls back to DefaultMaxTokens.
type AdapterConfig struct {
	Temperature float64
	MaxTokens   int
}

// Adapter asks one provider for an estimate on a market. Analyze always
// returns an estimate; failures become sentinel values.
type Adapter struct {
	provider  domain.Provider
	completer domain.Completer
	parser    Parser
	taxonomy  Taxonomy
	cfg       AdapterConfig
	observer  Observer
	logger    *slog.Logger
}

// NewAdapter wires a provider identity to the completer that reaches it.
func NewAdapter(provider domain.Provider, completer domain.Completer, taxonomy Taxonomy, cfg AdapterConfig, observer Observer, logger *slog.Logger) *Adapter {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Adapter{
		provider:  provider,
		completer: completer,
		parser:    NewParser(taxonomy),
		taxonomy:  taxonomy,
		cfg:       cfg,
		observer:  observer,
		logger:    logger.With(slog.String("component", "adapter"), slog.String("provider", string(provider))),
	}
}

// Provider returns the adapter's provider identity.
func (a *Adapter) Provider() domain.Provider { return a.provider }

// Analyze prompts the provider about m and parses its reply.
func (a *Adapter) Analyze(ctx context.Context, m domain.Market) (est domain.ProviderEstimate) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			a.logger.ErrorContext(ctx, "provider call panicked",
				slog.String("ticker", m.Ticker),
				slog.Any("panic", r),
			)
			est = a.parser.ProviderFailed(a.provider, fmt.Errorf("panic: %v", r))
		}
	}()

	raw, err := a.completer.Complete(ctx, domain.CompletionRequest{
		System:      SystemPrompt,
		Prompt:      BuildPrompt(m, a.taxonomy),
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	})

	if err != nil {
		a.logger.WarnContext(ctx, "provider call failed",
			slog.String("ticker", m.Ticker),
			slog.String("error", err.Error()),
		)
		est = a.parser.ProviderFailed(a.provider, err)
	} else {
		est = a.parser.Parse(a.provider, raw)
		if est.Status == domain.EstimateParseFailed {
			a.logger.WarnContext(ctx, "unparseable provider reply",
				slog.String("ticker", m.Ticker),
				slog.String("error", est.Err),
			)
		}
	}

	if a.observer != nil {
		a.observer.ObserveProvider(a.provider, est.Status, time.Since(start))
	}
	return est
}
