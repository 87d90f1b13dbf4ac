package consensus

import (
	"context"
	"math"
	"sync"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

// Defaults for the top-picks collection.
const (
	DefaultPicksCapacity = 10
	DefaultPickMinEdge   = 3.0
)

// PickPolicy decides which results enter the top-picks collection.
type PickPolicy struct {
	// MinEdge is the edge magnitude, in percentage points, a result must
	// exceed to be admitted.
	MinEdge float64
}

// Admit reports whether r belongs in the top picks.
func (p PickPolicy) Admit(r domain.ConsensusResult) bool {
	return math.Abs(r.EdgePercentage) > p.MinEdge
}

// Actionable filters out neutral calls and results with no usable signal,
// preserving order.
func Actionable(results []domain.ConsensusResult) []domain.ConsensusResult {
	out := make([]domain.ConsensusResult, 0, len(results))
	for _, r := range results {
		if r.Recommendation.IsNeutral() || !r.HasSignal() {
			continue
		}
		out = append(out, r)
	}
	return out
}

// MemoryPicks is an in-process PicksStore: deduplicated by ticker, ordered by
// mispricing score and bounded to a fixed capacity.
type MemoryPicks struct {
	mu       sync.RWMutex
	capacity int
	picks    []domain.ConsensusResult
}

var _ domain.PicksStore = (*MemoryPicks)(nil)

// NewMemoryPicks creates a MemoryPicks holding at most capacity entries.
func NewMemoryPicks(capacity int) *MemoryPicks {
	if capacity <= 0 {
		capacity = DefaultPicksCapacity
	}
	return &MemoryPicks{capacity: capacity}
}

// Put inserts or replaces the entry for result's ticker.
func (p *MemoryPicks) Put(_ context.Context, result domain.ConsensusResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.picks = removeTicker(p.picks, result.Market.Ticker)
	p.picks = append(p.picks, result)
	Rank(p.picks)
	if len(p.picks) > p.capacity {
		p.picks = p.picks[:p.capacity]
	}
	return nil
}

// Remove drops the entry for ticker, if any.
func (p *MemoryPicks) Remove(_ context.Context, ticker string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.picks = removeTicker(p.picks, ticker)
	return nil
}

// List returns up to limit picks, best first. A non-positive limit returns
// all of them.
func (p *MemoryPicks) List(_ context.Context, limit int) ([]domain.ConsensusResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := len(p.picks)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.ConsensusResult, n)
	copy(out, p.picks[:n])
	return out, nil
}

func removeTicker(picks []domain.ConsensusResult, ticker string) []domain.ConsensusResult {
	out := picks[:0]
	for _, r := range picks {
		if r.Market.Ticker != ticker {
			out = append(out, r)
		}
	}
	return out
}
