package analysis

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

const (
	parseFailedReasoning    = "Failed to parse AI response"
	providerFailedReasoning = "API error occurred"
	missingReasoning        = "No reasoning provided"

	parseFailedConfidence = 0.2
	neutralProbability    = 0.5
)

// jsonObject matches from the first '{' to the last '}' across newlines.
var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// Parser turns a provider's free-form reply into a ProviderEstimate. It never
// returns an error; unusable replies become parse-failed sentinels.
type Parser struct {
	taxonomy Taxonomy
}

// NewParser returns a Parser that normalizes recommendations into taxonomy.
func NewParser(taxonomy Taxonomy) Parser {
	return Parser{taxonomy: taxonomy}
}

type rawEstimate struct {
	EstimatedProbability json.RawMessage `json:"estimatedProbability"`
	Confidence           json.RawMessage `json:"confidence"`
	Reasoning            string          `json:"reasoning"`
	KeyFactors           []string        `json:"keyFactors"`
	Recommendation       string          `json:"recommendation"`
}

// Parse extracts the embedded JSON estimate from raw.
func (p Parser) Parse(provider domain.Provider, raw string) domain.ProviderEstimate {
	match := jsonObject.FindString(raw)
	if match == "" {
		return p.ParseFailed(provider, "no JSON object in reply")
	}

	var r rawEstimate
	if err := json.Unmarshal([]byte(match), &r); err != nil {
		return p.ParseFailed(provider, err.Error())
	}

	prob, ok := percent(r.EstimatedProbability)
	if !ok {
		return p.ParseFailed(provider, "estimatedProbability missing or not numeric")
	}
	conf, ok := percent(r.Confidence)
	if !ok {
		return p.ParseFailed(provider, "confidence missing or not numeric")
	}

	est := domain.ProviderEstimate{
		Provider:             provider,
		EstimatedProbability: prob,
		Confidence:           conf,
		Reasoning:            r.Reasoning,
		Recommendation:       p.NormalizeRecommendation(r.Recommendation),
		Status:               domain.EstimateOK,
	}
	if est.Reasoning == "" {
		est.Reasoning = missingReasoning
	}
	if p.taxonomy.KeyFactors {
		est.KeyFactors = r.KeyFactors
		if est.KeyFactors == nil {
			est.KeyFactors = []string{}
		}
	}
	return est
}

// ParseFailed is the sentinel for a reply that arrived but was unusable.
func (p Parser) ParseFailed(provider domain.Provider, detail string) domain.ProviderEstimate {
	est := domain.ProviderEstimate{
		Provider:             provider,
		EstimatedProbability: neutralProbability,
		Confidence:           parseFailedConfidence,
		Reasoning:            parseFailedReasoning,
		Recommendation:       p.taxonomy.Neutral,
		Status:               domain.EstimateParseFailed,
		Err:                  detail,
	}
	if p.taxonomy.KeyFactors {
		est.KeyFactors = []string{}
	}
	return est
}

// ProviderFailed is the sentinel for a provider that could not be reached or
// returned no usable envelope.
func (p Parser) ProviderFailed(provider domain.Provider, err error) domain.ProviderEstimate {
	est := domain.ProviderEstimate{
		Provider:             provider,
		EstimatedProbability: neutralProbability,
		Confidence:           0,
		Reasoning:            providerFailedReasoning,
		Recommendation:       p.taxonomy.Neutral,
		Status:               domain.EstimateProviderFailed,
	}
	if err != nil {
		est.Err = err.Error()
	}
	if p.taxonomy.KeyFactors {
		est.KeyFactors = []string{}
	}
	return est
}

// NormalizeRecommendation maps a provider's free-text action onto the
// buy-yes, buy-no or neutral label.
func (p Parser) NormalizeRecommendation(s string) domain.Recommendation {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(v, "buy_yes") || v == "yes":
		return domain.RecommendationBuyYes
	case strings.Contains(v, "buy_no") || v == "no":
		return domain.RecommendationBuyNo
	}
	return p.taxonomy.Neutral
}

// percent reads a 0-100 value, clamps it and scales it to [0,1]. Numeric
// strings with an optional trailing '%' are accepted. Literals beyond the
// float64 range clamp like any other out-of-range value.
func percent(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		lit := string(raw)
		var s string
		if json.Unmarshal(raw, &s) == nil {
			lit = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
		}
		f, ok := parseNumber(lit)
		if !ok {
			return 0, false
		}
		v = f
	}
	if math.IsNaN(v) {
		return 0, false
	}
	return math.Min(100, math.Max(0, v)) / 100, true
}

// parseNumber parses a decimal literal. Overflow yields ±Inf rather than an
// error.
func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		var numErr *strconv.NumError
		if !errors.As(err, &numErr) || !errors.Is(numErr.Err, strconv.ErrRange) {
			return 0, false
		}
	}
	return f, true
}
