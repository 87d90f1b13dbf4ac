package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/kalshiconsensus/internal/consensus"
	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
	"github.com/alanyoungcy/kalshiconsensus/internal/notify"
)

const scanLockKey = "scan"

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Recorder receives consensus and scan metrics.
type Recorder interface {
	ObserveConsensus(r domain.ConsensusResult)
	ObserveScan(outcome string, elapsed time.Duration)
	SetPicks(n int)
}

// MarketLookup is the part of MarketService the analysis flow needs.
type MarketLookup interface {
	GetMarket(ctx context.Context, ticker string) (domain.Market, error)
	ListEvents(ctx context.Context, f EventsFilter) ([]domain.Event, error)
	SyncMarkets(ctx context.Context, markets []domain.Market) error
}

// ScanConfig tunes market selection and bookkeeping for scans.
type ScanConfig struct {
	MaxMarkets  int
	EventsLimit int
	MinVolume   int64
	LockTTL     time.Duration
	// NotifyTop is the number of results listed in scan notifications.
	NotifyTop int
}

// AnalysisDeps collects the collaborators of AnalysisService. Results,
// Audit, Archiver, Notifier and Metrics are optional.
type AnalysisDeps struct {
	Markets  MarketLookup
	Engine   consensus.Analyzer
	Scanner  *consensus.Scanner
	Picks    domain.PicksStore
	Policy   consensus.PickPolicy
	Bus      domain.SignalBus
	Locks    domain.LockManager
	Results  domain.ConsensusStore
	Audit    domain.AuditStore
	Archiver domain.ScanArchiver
	Notifier Notifier
	Metrics  Recorder
}

// AnalysisService runs consensus analyses on demand and in batch scans, and
// fans every result out to picks, storage, subscribers and alerts.
type AnalysisService struct {
	deps   AnalysisDeps
	cfg    ScanConfig
	queue  chan scanRequest
	now    func() time.Time
	logger *slog.Logger

	mu      sync.RWMutex
	current *domain.ScanProgress
}

type scanRequest struct {
	id     string
	limit  int
	unlock func()
}

// NewAnalysisService creates an AnalysisService.
func NewAnalysisService(deps AnalysisDeps, cfg ScanConfig, logger *slog.Logger) *AnalysisService {
	if cfg.MaxMarkets <= 0 {
		cfg.MaxMarkets = 10
	}
	if cfg.EventsLimit <= 0 {
		cfg.EventsLimit = DefaultEventsLimit
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if cfg.NotifyTop <= 0 {
		cfg.NotifyTop = 5
	}
	return &AnalysisService{
		deps:   deps,
		cfg:    cfg,
		queue:  make(chan scanRequest, 1),
		now:    time.Now,
		logger: logger.With(slog.String("component", "analysis_service")),
	}
}

// AnalyzeTicker fetches the market for ticker and analyzes it.
func (s *AnalysisService) AnalyzeTicker(ctx context.Context, ticker string) (domain.ConsensusResult, error) {
	if strings.TrimSpace(ticker) == "" {
		return domain.ConsensusResult{}, fmt.Errorf("analysis_service: %w: ticker is required", domain.ErrInvalidTicker)
	}
	m, err := s.deps.Markets.GetMarket(ctx, ticker)
	if err != nil {
		return domain.ConsensusResult{}, fmt.Errorf("analysis_service: %w", err)
	}
	return s.AnalyzeMarket(ctx, m)
}

// AnalyzeMarket analyzes a caller-supplied market snapshot.
func (s *AnalysisService) AnalyzeMarket(ctx context.Context, m domain.Market) (domain.ConsensusResult, error) {
	if strings.TrimSpace(m.Ticker) == "" {
		return domain.ConsensusResult{}, fmt.Errorf("analysis_service: %w: market ticker is required", domain.ErrInvalidTicker)
	}
	if m.Category == "" {
		m.Category = "Unknown"
	}

	result := s.deps.Engine.Analyze(ctx, m)
	s.record(ctx, []domain.ConsensusResult{result})
	s.audit(ctx, "analysis.manual", map[string]any{
		"ticker":         m.Ticker,
		"result_id":      result.ID,
		"recommendation": string(result.Recommendation),
	})
	return result, nil
}

// Scan runs one batch scan synchronously and returns its summary. It fails
// with domain.ErrScanInProgress while another scan holds the lock.
func (s *AnalysisService) Scan(ctx context.Context, limit int) (domain.ScanSummary, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return domain.ScanSummary{}, err
	}
	return s.runScan(ctx, scanRequest{id: uuid.NewString(), limit: limit, unlock: unlock})
}

// StartScan queues a scan for the worker started by Run and returns its ID.
func (s *AnalysisService) StartScan(ctx context.Context, limit int) (string, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return "", err
	}
	req := scanRequest{id: uuid.NewString(), limit: limit, unlock: unlock}
	select {
	case s.queue <- req:
		return req.id, nil
	default:
		unlock()
		return "", domain.ErrScanInProgress
	}
}

// Run executes queued scans until ctx is cancelled.
func (s *AnalysisService) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-s.queue:
			if _, err := s.runScan(ctx, req); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.ErrorContext(ctx, "queued scan failed",
					slog.String("scan_id", req.id),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Watch scans every interval until ctx is cancelled. A scan still running
// elsewhere skips that tick.
func (s *AnalysisService) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.Scan(ctx, 0); err != nil {
			switch {
			case errors.Is(err, domain.ErrScanInProgress):
				s.logger.InfoContext(ctx, "scan already running, skipping tick")
			case ctx.Err() != nil:
				return nil
			default:
				s.logger.ErrorContext(ctx, "scheduled scan failed", slog.String("error", err.Error()))
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Progress reports the running scan, if any.
func (s *AnalysisService) Progress() (domain.ScanProgress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return domain.ScanProgress{}, false
	}
	return *s.current, true
}

// Picks lists the top picks. Unless all is set, neutral and signal-free
// results are hidden.
func (s *AnalysisService) Picks(ctx context.Context, all bool) ([]domain.ConsensusResult, error) {
	picks, err := s.deps.Picks.List(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("analysis_service: list picks: %w", err)
	}
	if all {
		return picks, nil
	}
	return consensus.Actionable(picks), nil
}

// Recent lists stored results newest first.
func (s *AnalysisService) Recent(ctx context.Context, opts domain.ListOpts) ([]domain.ConsensusResult, error) {
	if s.deps.Results == nil {
		return nil, fmt.Errorf("analysis_service: history: %w", domain.ErrUnavailable)
	}
	return s.deps.Results.ListRecent(ctx, opts)
}

// History lists stored results for one market newest first.
func (s *AnalysisService) History(ctx context.Context, ticker string, opts domain.ListOpts) ([]domain.ConsensusResult, error) {
	if s.deps.Results == nil {
		return nil, fmt.Errorf("analysis_service: history: %w", domain.ErrUnavailable)
	}
	return s.deps.Results.ListByTicker(ctx, ticker, opts)
}

func (s *AnalysisService) lock(ctx context.Context) (func(), error) {
	unlock, err := s.deps.Locks.Acquire(ctx, scanLockKey, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return nil, domain.ErrScanInProgress
		}
		return nil, fmt.Errorf("analysis_service: acquire scan lock: %w", err)
	}
	return unlock, nil
}

func (s *AnalysisService) runScan(ctx context.Context, req scanRequest) (domain.ScanSummary, error) {
	defer req.unlock()

	summary := domain.ScanSummary{ScanID: req.id, StartedAt: s.now().UTC()}
	log := s.logger.With(slog.String("scan_id", req.id))

	markets, err := s.selectMarkets(ctx, req.limit)
	if err != nil {
		summary.FinishedAt = s.now().UTC()
		summary.Err = err.Error()
		s.finishScan(ctx, summary, "error")
		return summary, err
	}
	summary.MarketCount = len(markets)
	log.InfoContext(ctx, "scan started", slog.Int("markets", len(markets)))

	s.setProgress(&domain.ScanProgress{ScanID: req.id, Total: len(markets)})
	defer s.setProgress(nil)

	results, err := s.deps.Scanner.Scan(ctx, markets, func(done, total int, batch []domain.ConsensusResult) {
		// Scan's ctx may be cancelled mid-batch; finish bookkeeping regardless.
		bctx := context.WithoutCancel(ctx)
		s.record(bctx, batch)
		p := domain.ScanProgress{ScanID: req.id, Done: done, Total: total, Results: batch}
		s.setProgress(&p)
		s.publish(bctx, domain.ChannelScan, domain.SignalScanProgress, p)
	})
	summary.Results = results
	summary.FinishedAt = s.now().UTC()

	outcome := "ok"
	if err != nil {
		summary.Err = err.Error()
		outcome = "error"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			outcome = "cancelled"
		}
	}
	s.finishScan(context.WithoutCancel(ctx), summary, outcome)

	if err != nil {
		return summary, fmt.Errorf("analysis_service: scan %s: %w", req.id, err)
	}
	return summary, nil
}

func (s *AnalysisService) selectMarkets(ctx context.Context, limit int) ([]domain.Market, error) {
	if limit <= 0 {
		limit = s.cfg.MaxMarkets
	}
	events, err := s.deps.Markets.ListEvents(ctx, EventsFilter{Limit: s.cfg.EventsLimit})
	if err != nil {
		return nil, fmt.Errorf("analysis_service: select markets: %w", err)
	}
	markets := FilterHighVolume(TopByVolume(events, 0), s.cfg.MinVolume)
	if len(markets) > limit {
		markets = markets[:limit]
	}
	return markets, nil
}

func (s *AnalysisService) finishScan(ctx context.Context, summary domain.ScanSummary, outcome string) {
	log := s.logger.With(slog.String("scan_id", summary.ScanID))
	elapsed := summary.FinishedAt.Sub(summary.StartedAt)

	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveScan(outcome, elapsed)
	}
	s.publish(ctx, domain.ChannelScan, domain.SignalScanDone, summary)

	detail := map[string]any{
		"scan_id": summary.ScanID,
		"markets": summary.MarketCount,
		"results": len(summary.Results),
		"outcome": outcome,
	}
	if s.deps.Archiver != nil && len(summary.Results) > 0 {
		if key, err := s.deps.Archiver.ArchiveScan(ctx, summary); err != nil {
			log.WarnContext(ctx, "archive scan failed", slog.String("error", err.Error()))
		} else {
			detail["archive"] = key
		}
	}
	s.audit(ctx, "scan."+outcome, detail)

	event := notify.EventScanDone
	if summary.Err != "" {
		event = notify.EventScanFailed
	}
	title, body := notify.FormatScan(summary, s.cfg.NotifyTop)
	s.notify(ctx, event, title, body)

	log.InfoContext(ctx, "scan finished",
		slog.String("outcome", outcome),
		slog.Int("results", len(summary.Results)),
		slog.Duration("elapsed", elapsed),
	)
}

// record fans results out to picks, storage, subscribers and alerts. Every
// sink is best effort.
func (s *AnalysisService) record(ctx context.Context, results []domain.ConsensusResult) {
	if len(results) == 0 {
		return
	}

	markets := make([]domain.Market, 0, len(results))
	for _, r := range results {
		markets = append(markets, r.Market)
	}
	if err := s.deps.Markets.SyncMarkets(ctx, markets); err != nil {
		s.logger.WarnContext(ctx, "sync markets failed", slog.String("error", err.Error()))
	}

	for _, r := range results {
		log := s.logger.With(slog.String("ticker", r.Market.Ticker))

		if s.deps.Policy.Admit(r) {
			if err := s.deps.Picks.Put(ctx, r); err != nil {
				log.WarnContext(ctx, "store pick failed", slog.String("error", err.Error()))
			}
		} else if err := s.deps.Picks.Remove(ctx, r.Market.Ticker); err != nil {
			log.WarnContext(ctx, "remove stale pick failed", slog.String("error", err.Error()))
		}

		if s.deps.Results != nil {
			if err := s.deps.Results.Insert(ctx, r); err != nil {
				log.WarnContext(ctx, "persist consensus failed", slog.String("error", err.Error()))
			}
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveConsensus(r)
		}
		s.publish(ctx, domain.ChannelConsensus, domain.SignalConsensus, r)

		if r.Recommendation.IsStrong() && r.HasSignal() {
			title, body := notify.FormatPick(r)
			s.notify(ctx, notify.EventStrongPick, title, body)
		}
	}

	if s.deps.Metrics != nil {
		if picks, err := s.deps.Picks.List(ctx, 0); err == nil {
			s.deps.Metrics.SetPicks(len(picks))
		}
	}
}

func (s *AnalysisService) publish(ctx context.Context, channel string, kind domain.SignalKind, payload any) {
	if s.deps.Bus == nil {
		return
	}
	data, err := json.Marshal(domain.SignalEnvelope{Kind: kind, Payload: payload})
	if err != nil {
		s.logger.WarnContext(ctx, "marshal signal failed", slog.String("error", err.Error()))
		return
	}
	if err := s.deps.Bus.Publish(ctx, channel, data); err != nil {
		s.logger.WarnContext(ctx, "publish signal failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (s *AnalysisService) notify(ctx context.Context, event, title, body string) {
	if s.deps.Notifier == nil {
		return
	}
	if err := s.deps.Notifier.Notify(ctx, event, title, body); err != nil {
		s.audit(ctx, "notify.failed", map[string]any{"event": event, "error": err.Error()})
	}
}

func (s *AnalysisService) audit(ctx context.Context, event string, detail map[string]any) {
	if s.deps.Audit == nil {
		return
	}
	if err := s.deps.Audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *AnalysisService) setProgress(p *domain.ScanProgress) {
	s.mu.Lock()
	s.current = p
	s.mu.Unlock()
}
