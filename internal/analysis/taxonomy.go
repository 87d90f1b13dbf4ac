package analysis

import (
	"fmt"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

// TaxonomyKind names a recommendation vocabulary.
type TaxonomyKind string

const (
	TaxonomyFiveWay  TaxonomyKind = "five_way"
	TaxonomyThreeWay TaxonomyKind = "three_way"
)

// Taxonomy is the recommendation vocabulary together with the thresholds used
// to classify a consensus. Edge thresholds are in percentage points.
type Taxonomy struct {
	Kind TaxonomyKind

	// Neutral is the no-action label.
	Neutral domain.Recommendation

	// EdgeThreshold is the smallest edge magnitude producing a buy call.
	EdgeThreshold float64

	// StrongEdgeThreshold produces strong calls when positive. Zero disables
	// the strong tier.
	StrongEdgeThreshold float64

	// ConfidenceFloor forces the neutral label below this consensus
	// confidence. Zero disables the gate.
	ConfidenceFloor float64

	// KeyFactors controls whether providers are asked for, and parsed for,
	// a list of key factors.
	KeyFactors bool
}

// FiveWay returns the strong/buy/hold taxonomy: ±5 and ±15 point edges with a
// 0.3 confidence floor.
func FiveWay() Taxonomy {
	return Taxonomy{
		Kind:                TaxonomyFiveWay,
		Neutral:             domain.RecommendationHold,
		EdgeThreshold:       5,
		StrongEdgeThreshold: 15,
		ConfidenceFloor:     0.3,
		KeyFactors:          true,
	}
}

// ThreeWay returns the buy/skip taxonomy with a single ±10 point edge.
func ThreeWay() Taxonomy {
	return Taxonomy{
		Kind:          TaxonomyThreeWay,
		Neutral:       domain.RecommendationSkip,
		EdgeThreshold: 10,
	}
}

// TaxonomyByName resolves a configured taxonomy name.
func TaxonomyByName(name string) (Taxonomy, error) {
	switch TaxonomyKind(name) {
	case TaxonomyFiveWay, "":
		return FiveWay(), nil
	case TaxonomyThreeWay:
		return ThreeWay(), nil
	default:
		return Taxonomy{}, fmt.Errorf("analysis: unknown taxonomy %q", name)
	}
}

// Thresholds overrides individual classification parameters. Nil fields keep
// the taxonomy's own value.
type Thresholds struct {
	EdgeThreshold       *float64
	StrongEdgeThreshold *float64
	ConfidenceFloor     *float64
}

// WithThresholds returns t with the non-nil overrides applied. The result is
// validated.
func (t Taxonomy) WithThresholds(o Thresholds) (Taxonomy, error) {
	if o.EdgeThreshold != nil {
		t.EdgeThreshold = *o.EdgeThreshold
	}
	if o.StrongEdgeThreshold != nil {
		t.StrongEdgeThreshold = *o.StrongEdgeThreshold
	}
	if o.ConfidenceFloor != nil {
		t.ConfidenceFloor = *o.ConfidenceFloor
	}
	if err := t.Validate(); err != nil {
		return Taxonomy{}, err
	}
	return t, nil
}

// Classify maps a signed edge and a consensus confidence to a recommendation.
func (t Taxonomy) Classify(edge, confidence float64) domain.Recommendation {
	if t.ConfidenceFloor > 0 && confidence < t.ConfidenceFloor {
		return t.Neutral
	}
	switch {
	case t.StrongEdgeThreshold > 0 && edge > t.StrongEdgeThreshold:
		return domain.RecommendationStrongBuyYes
	case edge > t.EdgeThreshold:
		return domain.RecommendationBuyYes
	case t.StrongEdgeThreshold > 0 && edge < -t.StrongEdgeThreshold:
		return domain.RecommendationStrongBuyNo
	case edge < -t.EdgeThreshold:
		return domain.RecommendationBuyNo
	}
	return t.Neutral
}

// Validate checks the threshold table for internal consistency.
func (t Taxonomy) Validate() error {
	if t.Neutral == "" {
		return fmt.Errorf("analysis: taxonomy %q has no neutral label", t.Kind)
	}
	if t.EdgeThreshold < 0 {
		return fmt.Errorf("analysis: edge threshold must be >= 0, got %v", t.EdgeThreshold)
	}
	if t.StrongEdgeThreshold < 0 {
		return fmt.Errorf("analysis: strong edge threshold must be >= 0, got %v", t.StrongEdgeThreshold)
	}
	if t.StrongEdgeThreshold > 0 && t.StrongEdgeThreshold < t.EdgeThreshold {
		return fmt.Errorf("analysis: strong edge threshold %v below edge threshold %v",
			t.StrongEdgeThreshold, t.EdgeThreshold)
	}
	if t.ConfidenceFloor < 0 || t.ConfidenceFloor > 1 {
		return fmt.Errorf("analysis: confidence floor must be in [0,1], got %v", t.ConfidenceFloor)
	}
	return nil
}
