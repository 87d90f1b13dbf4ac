package consensus

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

// Defaults for batch scanning.
const (
	DefaultBatchSize  = 3
	DefaultBatchDelay = time.Second
)

// Analyzer produces a consensus for one market.
type Analyzer interface {
	Analyze(ctx context.Context, m domain.Market) domain.ConsensusResult
}

// ProgressFunc is called after each batch with the cumulative count and the
// results of that batch in input order.
type ProgressFunc func(done, total int, batch []domain.ConsensusResult)

// Scanner runs an Analyzer over many markets in sequential batches.
type Scanner struct {
	analyzer  Analyzer
	batchSize int
	delay     time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// NewScanner creates a Scanner. Non-positive batch sizes fall back to the
// default; a negative delay disables the pause between batches.
func NewScanner(analyzer Analyzer, batchSize int, delay time.Duration, logger *slog.Logger) *Scanner {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if delay < 0 {
		delay = 0
	}
	return &Scanner{
		analyzer:  analyzer,
		batchSize: batchSize,
		delay:     delay,
		sleep:     sleepContext,
		logger:    logger.With(slog.String("component", "scanner")),
	}
}

// Scan analyzes markets batch by batch and returns the results sorted by
// mispricing score, highest first. Cancellation is honoured between batches;
// the results gathered so far are returned with the context error.
func (s *Scanner) Scan(ctx context.Context, markets []domain.Market, progress ProgressFunc) ([]domain.ConsensusResult, error) {
	results := make([]domain.ConsensusResult, 0, len(markets))

	for start := 0; start < len(markets); start += s.batchSize {
		if start > 0 && s.delay > 0 {
			if err := s.sleep(ctx, s.delay); err != nil {
				return Rank(results), err
			}
		}
		if err := ctx.Err(); err != nil {
			return Rank(results), err
		}

		end := min(start+s.batchSize, len(markets))
		batch := s.runBatch(ctx, markets[start:end])
		results = append(results, batch...)

		s.logger.InfoContext(ctx, "scan batch complete",
			slog.Int("done", len(results)),
			slog.Int("total", len(markets)),
		)
		if progress != nil {
			progress(len(results), len(markets), batch)
		}
	}

	return Rank(results), nil
}

func (s *Scanner) runBatch(ctx context.Context, batch []domain.Market) []domain.ConsensusResult {
	out := make([]domain.ConsensusResult, len(batch))
	var g errgroup.Group
	for i, m := range batch {
		g.Go(func() error {
			out[i] = s.analyzer.Analyze(ctx, m)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Rank sorts results by mispricing score descending. Ties keep input order.
func Rank(results []domain.ConsensusResult) []domain.ConsensusResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].MispricingScore > results[j].MispricingScore
	})
	return results
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
