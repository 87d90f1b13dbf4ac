// Package consensus combines independent provider estimates into a single
// market view and ranks many markets by how mispriced they appear.
package consensus

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kalshiconsensus/internal/analysis"
	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

// Estimator produces one provider's estimate. Implementations must not fail;
// problems are reported through the estimate's Status.
type Estimator interface {
	Provider() domain.Provider
	Analyze(ctx context.Context, m domain.Market) domain.ProviderEstimate
}

// WeightFunc decides how much an estimate contributes to the consensus.
type WeightFunc func(domain.ProviderEstimate) float64

// ConfidenceWeight weights every estimate by its own confidence, whatever its
// status. Parse failures therefore contribute their 0.2 sentinel confidence.
func ConfidenceWeight(e domain.ProviderEstimate) float64 {
	return e.Confidence
}

// OKOnlyWeight ignores every estimate that is not a parsed provider reply.
func OKOnlyWeight(e domain.ProviderEstimate) float64 {
	if e.Status != domain.EstimateOK {
		return 0
	}
	return e.Confidence
}

// WeightByName resolves a configured weighting policy.
func WeightByName(name string) (WeightFunc, bool) {
	switch name {
	case "", "confidence":
		return ConfidenceWeight, true
	case "ok_only":
		return OKOnlyWeight, true
	}
	return nil, false
}

// Engine fans a market out to every estimator and aggregates the replies.
type Engine struct {
	estimators []Estimator
	taxonomy   analysis.Taxonomy
	weight     WeightFunc
	now        func() time.Time
	logger     *slog.Logger
}

// NewEngine creates an Engine over estimators, kept in the given order.
func NewEngine(estimators []Estimator, taxonomy analysis.Taxonomy, weight WeightFunc, logger *slog.Logger) *Engine {
	if weight == nil {
		weight = ConfidenceWeight
	}
	return &Engine{
		estimators: estimators,
		taxonomy:   taxonomy,
		weight:     weight,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "consensus")),
	}
}

// Providers returns the configured provider order.
func (e *Engine) Providers() []domain.Provider {
	out := make([]domain.Provider, len(e.estimators))
	for i, est := range e.estimators {
		out[i] = est.Provider()
	}
	return out
}

// Analyze queries every estimator concurrently and waits for all of them.
// The returned Analyses slice follows the configured provider order.
func (e *Engine) Analyze(ctx context.Context, m domain.Market) domain.ConsensusResult {
	analyses := make([]domain.ProviderEstimate, len(e.estimators))

	var g errgroup.Group
	for i, est := range e.estimators {
		g.Go(func() error {
			analyses[i] = est.Analyze(ctx, m)
			return nil
		})
	}
	_ = g.Wait()

	result := Aggregate(m, analyses, e.weight, e.taxonomy)
	result.ID = uuid.NewString()
	result.AnalyzedAt = e.now().UTC()

	e.logger.DebugContext(ctx, "consensus computed",
		slog.String("ticker", m.Ticker),
		slog.Float64("probability", result.ConsensusProbability),
		slog.Float64("confidence", result.ConsensusConfidence),
		slog.Float64("edge", result.EdgePercentage),
		slog.String("recommendation", string(result.Recommendation)),
	)
	return result
}

// Aggregate computes the consensus over a fixed set of estimates.
//
// With total weight W = Σw: if W is zero the probability is the unweighted
// mean and confidence is zero, otherwise probability is Σ(p·w)/W and
// confidence is W/N.
func Aggregate(m domain.Market, analyses []domain.ProviderEstimate, weight WeightFunc, taxonomy analysis.Taxonomy) domain.ConsensusResult {
	if weight == nil {
		weight = ConfidenceWeight
	}

	var totalWeight, weighted, sum float64
	for _, a := range analyses {
		w := weight(a)
		totalWeight += w
		weighted += a.EstimatedProbability * w
		sum += a.EstimatedProbability
	}

	n := float64(len(analyses))
	var prob, conf float64
	switch {
	case n == 0:
		prob = 0.5
	case totalWeight == 0:
		prob = sum / n
	default:
		prob = weighted / totalWeight
		conf = totalWeight / n
	}

	implied := m.ImpliedProbability()
	edge := (prob - implied) * 100

	return domain.ConsensusResult{
		Market:               m,
		Analyses:             analyses,
		ConsensusProbability: prob,
		ConsensusConfidence:  conf,
		ImpliedProbability:   implied,
		EdgePercentage:       edge,
		Recommendation:       taxonomy.Classify(edge, conf),
		MispricingScore:      math.Abs(edge) * conf,
	}
}
