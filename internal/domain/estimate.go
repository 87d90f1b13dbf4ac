package domain

// Provider identifies one text-generation backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// Providers lists every supported provider in the fixed order used for
// consensus output.
var Providers = []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGemini}

// EstimateStatus records how a ProviderEstimate was produced.
type EstimateStatus string

const (
	EstimateOK             EstimateStatus = "ok"
	EstimateParseFailed    EstimateStatus = "parse_failed"
	EstimateProviderFailed EstimateStatus = "provider_failed"
)

// Recommendation is a trade direction classification. Which subset is in use
// depends on the configured taxonomy.
type Recommendation string

const (
	RecommendationStrongBuyYes Recommendation = "strong_buy_yes"
	RecommendationBuyYes       Recommendation = "buy_yes"
	RecommendationHold         Recommendation = "hold"
	RecommendationSkip         Recommendation = "skip"
	RecommendationBuyNo        Recommendation = "buy_no"
	RecommendationStrongBuyNo  Recommendation = "strong_buy_no"
)

// Side returns +1 for yes-side calls, -1 for no-side calls and 0 for neutral.
func (r Recommendation) Side() int {
	switch r {
	case RecommendationStrongBuyYes, RecommendationBuyYes:
		return 1
	case RecommendationStrongBuyNo, RecommendationBuyNo:
		return -1
	}
	return 0
}

// IsNeutral reports whether r asks for no action.
func (r Recommendation) IsNeutral() bool { return r.Side() == 0 }

// IsStrong reports whether r is one of the strong calls.
func (r Recommendation) IsStrong() bool {
	return r == RecommendationStrongBuyYes || r == RecommendationStrongBuyNo
}

// ProviderEstimate is one provider's opinion on one market. Probability and
// confidence are always within [0,1].
type ProviderEstimate struct {
	Provider             Provider       `json:"provider"`
	EstimatedProbability float64        `json:"estimatedProbability"`
	Confidence           float64        `json:"confidence"`
	Reasoning            string         `json:"reasoning"`
	KeyFactors           []string       `json:"keyFactors,omitempty"`
	Recommendation       Recommendation `json:"recommendation"`
	Status               EstimateStatus `json:"status"`
	Err                  string         `json:"error,omitempty"`
}

// Failed reports whether the estimate is a sentinel rather than a parsed
// provider opinion.
func (e ProviderEstimate) Failed() bool { return e.Status != EstimateOK }

// CompletionRequest is a single prompt sent to a text-generation provider.
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}
