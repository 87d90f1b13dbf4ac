package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

func TestHandlerExposesRecordedSeries(t *testing.T) {
	m := New()
	m.ObserveProvider(domain.ProviderOpenAI, domain.EstimateOK, 2*time.Second)
	m.ObserveProvider(domain.ProviderGemini, domain.EstimateProviderFailed, time.Second)
	m.ObserveConsensus(domain.ConsensusResult{Recommendation: domain.RecommendationBuyNo, EdgePercentage: -7})
	m.ObserveScan("ok", 30*time.Second)
	m.SetPicks(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`kconsensus_provider_calls_total{provider="openai",status="ok"} 1`,
		`kconsensus_provider_calls_total{provider="gemini",status="provider_failed"} 1`,
		`kconsensus_consensus_total{recommendation="buy_no"} 1`,
		`kconsensus_scans_total{outcome="ok"} 1`,
		`kconsensus_picks 4`,
		`go_goroutines`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNewIsIsolated(t *testing.T) {
	// Two instances must not panic on duplicate registration.
	New()
	New()
}
