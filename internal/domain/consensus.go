package domain

import (
	"context"
	"time"
)

// ConsensusResult aggregates every configured provider's estimate for one
// market. Analyses always holds one entry per configured provider.
type ConsensusResult struct {
	ID                   string             `json:"id"`
	Market               Market             `json:"market"`
	Analyses             []ProviderEstimate `json:"analyses"`
	ConsensusProbability float64            `json:"consensusProbability"`
	ConsensusConfidence  float64            `json:"consensusConfidence"`
	ImpliedProbability   float64            `json:"impliedProbability"`
	EdgePercentage       float64            `json:"edgePercentage"`
	Recommendation       Recommendation     `json:"recommendation"`
	MispricingScore      float64            `json:"mispricingScore"`
	AnalyzedAt           time.Time          `json:"analyzedAt"`
}

// HasSignal reports whether at least one provider contributed confidence.
func (r ConsensusResult) HasSignal() bool { return r.ConsensusConfidence > 0 }

// Completer turns a prompt into the provider's raw text reply.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ScanProgress is reported after each scan batch completes.
type ScanProgress struct {
	ScanID  string            `json:"scanId"`
	Done    int               `json:"done"`
	Total   int               `json:"total"`
	Results []ConsensusResult `json:"results"`
}

// ScanSummary describes a finished scan.
type ScanSummary struct {
	ScanID      string            `json:"scanId"`
	StartedAt   time.Time         `json:"startedAt"`
	FinishedAt  time.Time         `json:"finishedAt"`
	MarketCount int               `json:"marketCount"`
	Results     []ConsensusResult `json:"results"`
	Err         string            `json:"error,omitempty"`
}
