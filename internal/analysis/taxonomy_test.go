package analysis

import (
	"testing"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

func TestFiveWayClassify(t *testing.T) {
	tax := FiveWay()
	tests := []struct {
		edge, conf float64
		want       domain.Recommendation
	}{
		{22.2, 0.6, domain.RecommendationStrongBuyYes},
		{15.0, 0.6, domain.RecommendationBuyYes},
		{6, 0.6, domain.RecommendationBuyYes},
		{5, 0.6, domain.RecommendationHold},
		{-5, 0.6, domain.RecommendationHold},
		{-6, 0.6, domain.RecommendationBuyNo},
		{-15.01, 0.6, domain.RecommendationStrongBuyNo},
		{40, 0.29, domain.RecommendationHold},
		{-40, 0.05, domain.RecommendationHold},
		{40, 0, domain.RecommendationHold},
	}
	for _, tt := range tests {
		if got := tax.Classify(tt.edge, tt.conf); got != tt.want {
			t.Errorf("Classify(%v, %v) = %s, want %s", tt.edge, tt.conf, got, tt.want)
		}
	}
}

func TestThreeWayClassify(t *testing.T) {
	tax := ThreeWay()
	tests := []struct {
		edge, conf float64
		want       domain.Recommendation
	}{
		{10.5, 0.01, domain.RecommendationBuyYes},
		{10, 0.9, domain.RecommendationSkip},
		{-10.5, 0.5, domain.RecommendationBuyNo},
		{60, 0.9, domain.RecommendationBuyYes},
		{0, 0, domain.RecommendationSkip},
	}
	for _, tt := range tests {
		if got := tax.Classify(tt.edge, tt.conf); got != tt.want {
			t.Errorf("Classify(%v, %v) = %s, want %s", tt.edge, tt.conf, got, tt.want)
		}
	}
}

func TestClassifyNeverContradictsEdgeSign(t *testing.T) {
	for _, tax := range []Taxonomy{FiveWay(), ThreeWay()} {
		for edge := -100.0; edge <= 100; edge += 0.5 {
			for _, conf := range []float64{0, 0.2, 0.5, 1} {
				got := tax.Classify(edge, conf)
				if edge > 0 && got.Side() < 0 {
					t.Fatalf("%s: positive edge %v classified as %s", tax.Kind, edge, got)
				}
				if edge < 0 && got.Side() > 0 {
					t.Fatalf("%s: negative edge %v classified as %s", tax.Kind, edge, got)
				}
			}
		}
	}
}

func TestTaxonomyByName(t *testing.T) {
	if tax, err := TaxonomyByName(""); err != nil || tax.Kind != TaxonomyFiveWay {
		t.Errorf("default taxonomy = %v, %v", tax.Kind, err)
	}
	if tax, err := TaxonomyByName("three_way"); err != nil || tax.Neutral != domain.RecommendationSkip {
		t.Errorf("three_way = %+v, %v", tax, err)
	}
	if _, err := TaxonomyByName("seven_way"); err == nil {
		t.Error("expected error for unknown taxonomy")
	}
}

func TestTaxonomyValidate(t *testing.T) {
	bad := FiveWay()
	bad.StrongEdgeThreshold = 2
	if err := bad.Validate(); err == nil {
		t.Error("expected error when strong threshold is below edge threshold")
	}
	bad = ThreeWay()
	bad.ConfidenceFloor = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("expected error for confidence floor above 1")
	}
	if err := FiveWay().Validate(); err != nil {
		t.Errorf("FiveWay invalid: %v", err)
	}
}

func TestWithThresholds(t *testing.T) {
	floor, low := 0.9, 10.0
	tax, err := FiveWay().WithThresholds(Thresholds{ConfidenceFloor: &floor, EdgeThreshold: &low})
	if err != nil {
		t.Fatalf("WithThresholds: %v", err)
	}
	if tax.StrongEdgeThreshold != 15 || tax.EdgeThreshold != 10 || tax.ConfidenceFloor != 0.9 {
		t.Fatalf("unexpected thresholds %+v", tax)
	}
	if got := tax.Classify(12, 0.5); got != domain.RecommendationHold {
		t.Errorf("Classify(12, 0.5) = %s, want hold", got)
	}
	if got := tax.Classify(12, 0.95); got != domain.RecommendationBuyYes {
		t.Errorf("Classify(12, 0.95) = %s, want buy_yes", got)
	}

	edge, strong := 20.0, 30.0
	tax, err = FiveWay().WithThresholds(Thresholds{EdgeThreshold: &edge, StrongEdgeThreshold: &strong})
	if err != nil {
		t.Fatalf("WithThresholds: %v", err)
	}
	if got := tax.Classify(25, 0.5); got != domain.RecommendationBuyYes {
		t.Errorf("Classify(25, 0.5) = %s, want buy_yes", got)
	}

	if _, err := FiveWay().WithThresholds(Thresholds{EdgeThreshold: &edge}); err == nil {
		t.Error("expected error when edge threshold exceeds the strong threshold")
	}
	if got, err := ThreeWay().WithThresholds(Thresholds{}); err != nil || got != ThreeWay() {
		t.Errorf("empty overrides changed taxonomy: %+v, %v", got, err)
	}
}
