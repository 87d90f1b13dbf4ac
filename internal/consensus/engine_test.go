package consensus

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/kalshiconsensus/internal/analysis"
	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func near(a, b, tol float64) bool { return math.Abs(a-b) < tol }

type fixedEstimator struct {
	provider domain.Provider
	est      domain.ProviderEstimate
	delay    time.Duration
	calls    atomic.Int32
}

func (f *fixedEstimator) Provider() domain.Provider { return f.provider }

func (f *fixedEstimator) Analyze(_ context.Context, _ domain.Market) domain.ProviderEstimate {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	e := f.est
	e.Provider = f.provider
	return e
}

func estimators(probs, confs []float64) []Estimator {
	out := make([]Estimator, len(probs))
	for i := range probs {
		out[i] = &fixedEstimator{
			provider: domain.Providers[i%len(domain.Providers)],
			est: domain.ProviderEstimate{
				EstimatedProbability: probs[i],
				Confidence:           confs[i],
				Status:               domain.EstimateOK,
			},
		}
	}
	return out
}

func market(yesBid, yesAsk float64) domain.Market {
	return domain.Market{Ticker: "KXTEST", YesBid: yesBid, YesAsk: yesAsk}
}

func TestWeightedConsensus(t *testing.T) {
	e := NewEngine(estimators([]float64{0.6, 0.4, 0.8}, []float64{0.5, 0.5, 0.0}), analysis.FiveWay(), nil, discard)
	r := e.Analyze(context.Background(), market(0.5, 0.5))

	if !near(r.ConsensusProbability, 0.5, 1e-9) {
		t.Errorf("probability = %v, want 0.5", r.ConsensusProbability)
	}
	if !near(r.ConsensusConfidence, 1.0/3, 1e-9) {
		t.Errorf("confidence = %v, want 1/3", r.ConsensusConfidence)
	}
	if r.ID == "" || r.AnalyzedAt.IsZero() {
		t.Error("result id or timestamp not set")
	}
}

func TestZeroConfidenceFallsBackToMean(t *testing.T) {
	e := NewEngine(estimators([]float64{0.2, 0.5, 0.8}, []float64{0, 0, 0}), analysis.FiveWay(), nil, discard)
	r := e.Analyze(context.Background(), market(0.1, 0.1))

	if !near(r.ConsensusProbability, 0.5, 1e-9) {
		t.Errorf("probability = %v, want unweighted mean 0.5", r.ConsensusProbability)
	}
	if r.ConsensusConfidence != 0 {
		t.Errorf("confidence = %v, want 0", r.ConsensusConfidence)
	}
	if r.MispricingScore != 0 {
		t.Errorf("mispricing = %v, want 0", r.MispricingScore)
	}
	if r.Recommendation != domain.RecommendationHold {
		t.Errorf("recommendation = %s, want hold", r.Recommendation)
	}
}

func TestEdgeSignDrivesDirection(t *testing.T) {
	for _, tax := range []analysis.Taxonomy{analysis.FiveWay(), analysis.ThreeWay()} {
		up := NewEngine(estimators([]float64{0.9, 0.9, 0.9}, []float64{0.8, 0.8, 0.8}), tax, nil, discard).
			Analyze(context.Background(), market(0.3, 0.4))
		if up.EdgePercentage <= 0 || up.Recommendation.Side() != 1 {
			t.Errorf("%s: edge %v rec %s, want positive yes-side", tax.Kind, up.EdgePercentage, up.Recommendation)
		}

		down := NewEngine(estimators([]float64{0.1, 0.1, 0.1}, []float64{0.8, 0.8, 0.8}), tax, nil, discard).
			Analyze(context.Background(), market(0.6, 0.7))
		if down.EdgePercentage >= 0 || down.Recommendation.Side() != -1 {
			t.Errorf("%s: edge %v rec %s, want negative no-side", tax.Kind, down.EdgePercentage, down.Recommendation)
		}
	}
}

func TestStrongBuyYesScenario(t *testing.T) {
	e := NewEngine(estimators([]float64{0.70, 0.65, 0.60}, []float64{0.9, 0.8, 0.1}), analysis.FiveWay(), nil, discard)
	r := e.Analyze(context.Background(), market(0.40, 0.50))

	if !near(r.ImpliedProbability, 0.45, 1e-9) {
		t.Errorf("implied = %v", r.ImpliedProbability)
	}
	if !near(r.ConsensusProbability, 1.21/1.8, 1e-9) {
		t.Errorf("probability = %v, want ~0.672", r.ConsensusProbability)
	}
	if !near(r.EdgePercentage, 22.2, 0.05) {
		t.Errorf("edge = %v, want ~22.2", r.EdgePercentage)
	}
	if !near(r.ConsensusConfidence, 0.6, 1e-9) {
		t.Errorf("confidence = %v, want 0.6", r.ConsensusConfidence)
	}
	if r.Recommendation != domain.RecommendationStrongBuyYes {
		t.Errorf("recommendation = %s, want strong_buy_yes", r.Recommendation)
	}
	if !near(r.MispricingScore, math.Abs(r.EdgePercentage)*0.6, 1e-9) {
		t.Errorf("mispricing = %v", r.MispricingScore)
	}
}

func TestLowConfidenceForcesNeutral(t *testing.T) {
	e := NewEngine(estimators([]float64{0.70, 0.65, 0.60}, []float64{0.05, 0.05, 0.05}), analysis.FiveWay(), nil, discard)
	r := e.Analyze(context.Background(), market(0.40, 0.50))

	if !near(r.ConsensusConfidence, 0.05, 1e-9) {
		t.Errorf("confidence = %v, want 0.05", r.ConsensusConfidence)
	}
	if r.EdgePercentage < 15 {
		t.Errorf("edge = %v, expected a large edge", r.EdgePercentage)
	}
	if r.Recommendation != domain.RecommendationHold {
		t.Errorf("recommendation = %s, want hold", r.Recommendation)
	}
}

func TestAnalysesFollowProviderOrder(t *testing.T) {
	ests := []Estimator{
		&fixedEstimator{provider: domain.ProviderOpenAI, delay: 30 * time.Millisecond},
		&fixedEstimator{provider: domain.ProviderAnthropic, delay: 10 * time.Millisecond},
		&fixedEstimator{provider: domain.ProviderGemini},
	}
	e := NewEngine(ests, analysis.FiveWay(), nil, discard)
	r := e.Analyze(context.Background(), market(0.4, 0.5))

	if len(r.Analyses) != 3 {
		t.Fatalf("got %d analyses, want 3", len(r.Analyses))
	}
	for i, p := range domain.Providers {
		if r.Analyses[i].Provider != p {
			t.Errorf("analyses[%d] = %s, want %s", i, r.Analyses[i].Provider, p)
		}
	}
	if got := e.Providers(); len(got) != 3 || got[0] != domain.ProviderOpenAI {
		t.Errorf("Providers() = %v", got)
	}
}

func TestAllProvidersFailedIsNeutral(t *testing.T) {
	parser := analysis.NewParser(analysis.FiveWay())
	ests := make([]Estimator, 0, 3)
	for _, p := range domain.Providers {
		ests = append(ests, &fixedEstimator{provider: p, est: parser.ProviderFailed(p, domain.ErrMissingCredentials)})
	}

	r := NewEngine(ests, analysis.FiveWay(), nil, discard).Analyze(context.Background(), market(0.05, 0.15))

	if len(r.Analyses) != 3 {
		t.Fatalf("got %d analyses, want 3", len(r.Analyses))
	}
	if r.ConsensusProbability != 0.5 || r.ConsensusConfidence != 0 {
		t.Errorf("got p=%v c=%v, want 0.5/0", r.ConsensusProbability, r.ConsensusConfidence)
	}
	if !near(r.EdgePercentage, 40, 1e-9) {
		t.Errorf("edge = %v, want 40", r.EdgePercentage)
	}
	if !r.Recommendation.IsNeutral() {
		t.Errorf("recommendation = %s, want neutral", r.Recommendation)
	}
}

func TestWeightPolicies(t *testing.T) {
	parser := analysis.NewParser(analysis.FiveWay())
	analyses := []domain.ProviderEstimate{
		{Provider: domain.ProviderOpenAI, EstimatedProbability: 0.8, Confidence: 0.6, Status: domain.EstimateOK},
		parser.ParseFailed(domain.ProviderAnthropic, "bad"),
		parser.ProviderFailed(domain.ProviderGemini, nil),
	}
	m := market(0.5, 0.5)

	conf := Aggregate(m, analyses, ConfidenceWeight, analysis.FiveWay())
	wantProb := (0.8*0.6 + 0.5*0.2) / 0.8
	if !near(conf.ConsensusProbability, wantProb, 1e-9) {
		t.Errorf("confidence weighting: probability = %v, want %v", conf.ConsensusProbability, wantProb)
	}

	okOnly := Aggregate(m, analyses, OKOnlyWeight, analysis.FiveWay())
	if !near(okOnly.ConsensusProbability, 0.8, 1e-9) {
		t.Errorf("ok-only weighting: probability = %v, want 0.8", okOnly.ConsensusProbability)
	}
	if !near(okOnly.ConsensusConfidence, 0.2, 1e-9) {
		t.Errorf("ok-only weighting: confidence = %v, want 0.2", okOnly.ConsensusConfidence)
	}

	if _, ok := WeightByName("ok_only"); !ok {
		t.Error("ok_only policy not resolved")
	}
	if _, ok := WeightByName("bogus"); ok {
		t.Error("bogus policy resolved")
	}
}
