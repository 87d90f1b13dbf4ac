package consensus

import (
	"context"
	"fmt"
	"testing"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

func pick(ticker string, edge, score float64, rec domain.Recommendation) domain.ConsensusResult {
	return domain.ConsensusResult{
		Market:              domain.Market{Ticker: ticker},
		EdgePercentage:      edge,
		MispricingScore:     score,
		ConsensusConfidence: 0.5,
		Recommendation:      rec,
	}
}

func TestPickPolicyAdmit(t *testing.T) {
	p := PickPolicy{MinEdge: DefaultPickMinEdge}
	if p.Admit(pick("A", 3, 0, domain.RecommendationHold)) {
		t.Error("edge of exactly 3 should not be admitted")
	}
	if !p.Admit(pick("A", -3.5, 0, domain.RecommendationHold)) {
		t.Error("edge of -3.5 should be admitted")
	}
}

func TestMemoryPicksDedupAndBound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPicks(3)

	for i := 0; i < 5; i++ {
		if err := store.Put(ctx, pick(fmt.Sprintf("T%d", i), 10, float64(i), domain.RecommendationBuyYes)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	// Re-inserting a ticker replaces it rather than duplicating.
	store.Put(ctx, pick("T4", 10, 0.5, domain.RecommendationBuyYes))

	got, _ := store.List(ctx, 0)
	var tickers []string
	for _, r := range got {
		tickers = append(tickers, r.Market.Ticker)
	}
	if fmt.Sprint(tickers) != "[T3 T2 T4]" {
		t.Errorf("picks = %v, want [T3 T2 T4]", tickers)
	}

	store.Remove(ctx, "T2")
	got, _ = store.List(ctx, 1)
	if len(got) != 1 || got[0].Market.Ticker != "T3" {
		t.Errorf("after remove = %+v", got)
	}
}

func TestActionable(t *testing.T) {
	degraded := pick("D", 20, 0, domain.RecommendationHold)
	degraded.ConsensusConfidence = 0

	in := []domain.ConsensusResult{
		pick("A", 20, 10, domain.RecommendationStrongBuyYes),
		pick("B", 4, 2, domain.RecommendationHold),
		pick("C", -8, 4, domain.RecommendationBuyNo),
		pick("S", 1, 1, domain.RecommendationSkip),
		degraded,
	}
	got := Actionable(in)
	if len(got) != 2 || got[0].Market.Ticker != "A" || got[1].Market.Ticker != "C" {
		t.Errorf("Actionable = %+v", got)
	}
}
