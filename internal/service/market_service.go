package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
	"github.com/alanyoungcy/kalshiconsensus/internal/platform/kalshi"
)

// MarketSource is the read side of the Kalshi API.
type MarketSource interface {
	GetMarkets(ctx context.Context, q kalshi.MarketsQuery) (kalshi.MarketsPage, error)
	GetEvents(ctx context.Context, q kalshi.EventsQuery) (kalshi.EventsPage, error)
	GetMarket(ctx context.Context, ticker string) (domain.Market, error)
}

// Event listing sort orders.
const (
	SortVolume     = "volume"
	SortTrending   = "trending"
	SortEndingSoon = "ending_soon"
	SortNewest     = "newest"
)

// DefaultEventsLimit is the number of events fetched when none is requested.
const DefaultEventsLimit = 50

// EventsFilter narrows and orders an event listing.
type EventsFilter struct {
	Limit    int
	Category string
	Query    string
	Sort     string
}

// MarketService reads Kalshi market data through the market cache and keeps
// the optional market store up to date.
type MarketService struct {
	source MarketSource
	cache  domain.MarketCache
	store  domain.MarketStore
	group  singleflight.Group
	logger *slog.Logger
}

// NewMarketService creates a MarketService. store may be nil.
func NewMarketService(source MarketSource, cache domain.MarketCache, store domain.MarketStore, logger *slog.Logger) *MarketService {
	return &MarketService{
		source: source,
		cache:  cache,
		store:  store,
		logger: logger.With(slog.String("component", "market_service")),
	}
}

// ListEvents returns open events with nested markets, filtered and sorted per
// f. Fetched listings are cached; filtering happens on every call.
func (s *MarketService) ListEvents(ctx context.Context, f EventsFilter) ([]domain.Event, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultEventsLimit
	}
	switch f.Sort {
	case "", SortVolume, SortTrending, SortEndingSoon, SortNewest:
	default:
		return nil, fmt.Errorf("market_service: unknown sort %q", f.Sort)
	}

	events, err := s.fetchEvents(ctx, f.Limit)
	if err != nil {
		return nil, err
	}
	return SortEvents(FilterEvents(events, f.Category, f.Query), f.Sort), nil
}

func (s *MarketService) fetchEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	key := fmt.Sprintf("open:%d", limit)
	if events, err := s.cache.GetEvents(ctx, key); err == nil {
		return events, nil
	}

	v, err, _ := s.group.Do("events:"+key, func() (any, error) {
		page, err := s.source.GetEvents(ctx, kalshi.EventsQuery{Limit: limit})
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetEvents(ctx, key, page.Events); err != nil {
			s.logger.WarnContext(ctx, "cache events failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return page.Events, nil
	})
	if err != nil {
		return nil, fmt.Errorf("market_service: list events: %w", err)
	}
	return v.([]domain.Event), nil
}

// ListMarkets returns one page of the flat market listing.
func (s *MarketService) ListMarkets(ctx context.Context, q kalshi.MarketsQuery) (kalshi.MarketsPage, error) {
	page, err := s.source.GetMarkets(ctx, q)
	if err != nil {
		return kalshi.MarketsPage{}, fmt.Errorf("market_service: list markets: %w", err)
	}
	return page, nil
}

// GetMarket returns a single market, cache first. Unknown tickers yield an
// error wrapping domain.ErrNotFound.
func (s *MarketService) GetMarket(ctx context.Context, ticker string) (domain.Market, error) {
	if err := kalshi.ValidateTicker(ticker); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market: %w", err)
	}
	if m, err := s.cache.Get(ctx, ticker); err == nil {
		return m, nil
	}

	v, err, _ := s.group.Do("market:"+ticker, func() (any, error) {
		m, err := s.source.GetMarket(ctx, ticker)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, m); err != nil {
			s.logger.WarnContext(ctx, "cache market failed",
				slog.String("ticker", ticker),
				slog.String("error", err.Error()),
			)
		}
		return m, nil
	})
	if err != nil {
		if m, ok := s.lastSnapshot(ctx, ticker, err); ok {
			return m, nil
		}
		return domain.Market{}, fmt.Errorf("market_service: get market %q: %w", ticker, err)
	}
	return v.(domain.Market), nil
}

// lastSnapshot serves the stored snapshot of ticker when Kalshi itself is
// failing. A definitive not-found from Kalshi is never masked.
func (s *MarketService) lastSnapshot(ctx context.Context, ticker string, cause error) (domain.Market, bool) {
	if s.store == nil || errors.Is(cause, domain.ErrNotFound) || ctx.Err() != nil {
		return domain.Market{}, false
	}
	m, err := s.store.GetByTicker(ctx, ticker)
	if err != nil {
		return domain.Market{}, false
	}
	s.logger.WarnContext(ctx, "kalshi unavailable, serving stored snapshot",
		slog.String("ticker", ticker),
		slog.String("error", cause.Error()),
	)
	return m, true
}

// SyncMarkets persists snapshots of analyzed markets. It is a no-op without
// a market store.
func (s *MarketService) SyncMarkets(ctx context.Context, markets []domain.Market) error {
	if s.store == nil || len(markets) == 0 {
		return nil
	}
	if err := s.store.UpsertBatch(ctx, markets); err != nil {
		return fmt.Errorf("market_service: upsert batch: %w", err)
	}
	return nil
}

// TopByVolume flattens events into their markets and returns the n with the
// highest lifetime volume. Ties keep listing order.
func TopByVolume(events []domain.Event, n int) []domain.Market {
	var all []domain.Market
	for _, e := range events {
		all = append(all, e.Markets...)
	}
	slices.SortStableFunc(all, func(a, b domain.Market) int {
		return cmp.Compare(b.Volume, a.Volume)
	})
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

// FilterHighVolume keeps tradable markets whose volume is at least minVolume.
func FilterHighVolume(markets []domain.Market, minVolume int64) []domain.Market {
	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if m.Volume >= minVolume && m.Status.IsTradable() {
			out = append(out, m)
		}
	}
	return out
}

// FilterEvents applies the category filter and a case-insensitive search over
// event titles and market outcome labels. "" and "all" match every category.
func FilterEvents(events []domain.Event, category, query string) []domain.Event {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if category != "" && !strings.EqualFold(category, "all") && e.Category != category {
			continue
		}
		if query != "" && !matchesQuery(e, query) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func matchesQuery(e domain.Event, query string) bool {
	if strings.Contains(strings.ToLower(e.Title), query) {
		return true
	}
	for _, m := range e.Markets {
		if m.YesSubTitle != "" && strings.Contains(strings.ToLower(m.YesSubTitle), query) {
			return true
		}
	}
	return false
}

// SortEvents orders events in place by the named aggregate. Events with no
// known close time sort as closing last. Unknown orders leave input order.
func SortEvents(events []domain.Event, order string) []domain.Event {
	closeKey := func(e domain.Event) float64 {
		t := e.EarliestClose()
		if t.IsZero() {
			return math.Inf(1)
		}
		return float64(t.Unix())
	}

	var less func(a, b domain.Event) int
	switch order {
	case "", SortVolume:
		less = func(a, b domain.Event) int { return cmp.Compare(b.TotalVolume(), a.TotalVolume()) }
	case SortTrending:
		less = func(a, b domain.Event) int { return cmp.Compare(b.TotalVolume24h(), a.TotalVolume24h()) }
	case SortEndingSoon:
		less = func(a, b domain.Event) int { return cmp.Compare(closeKey(a), closeKey(b)) }
	case SortNewest:
		less = func(a, b domain.Event) int { return cmp.Compare(closeKey(b), closeKey(a)) }
	default:
		return events
	}
	slices.SortStableFunc(events, less)
	return events
}
