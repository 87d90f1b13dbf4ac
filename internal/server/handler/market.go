package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
	"github.com/alanyoungcy/kalshiconsensus/internal/platform/kalshi"
	"github.com/alanyoungcy/kalshiconsensus/internal/service"
)

// MarketService is the market data the handlers read.
type MarketService interface {
	ListEvents(ctx context.Context, f service.EventsFilter) ([]domain.Event, error)
	ListMarkets(ctx context.Context, q kalshi.MarketsQuery) (kalshi.MarketsPage, error)
	GetMarket(ctx context.Context, ticker string) (domain.Market, error)
}

// MarketHandler serves event and market endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler backed by markets.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

// ListEvents returns open events with nested markets.
// GET /api/events?limit=50&category=Sports&q=boston&sort=volume
func (h *MarketHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := service.EventsFilter{
		Limit:    parseLimit(r, service.DefaultEventsLimit, 200),
		Category: q.Get("category"),
		Query:    q.Get("q"),
		Sort:     q.Get("sort"),
	}
	switch f.Sort {
	case "", service.SortVolume, service.SortTrending, service.SortEndingSoon, service.SortNewest:
	default:
		writeError(w, http.StatusBadRequest, "unknown sort order")
		return
	}

	events, err := h.markets.ListEvents(r.Context(), f)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list events failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "failed to fetch events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// ListMarkets returns one page of the flat market listing.
// GET /api/markets?limit=50&cursor=...&status=open
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.markets.ListMarkets(r.Context(), kalshi.MarketsQuery{
		Limit:  parseLimit(r, 50, 1000),
		Cursor: q.Get("cursor"),
		Status: q.Get("status"),
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list markets failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "failed to fetch markets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"markets": page.Markets,
		"cursor":  page.Cursor,
	})
}

// GetMarket returns a single market.
// GET /api/markets/{ticker}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.GetMarket(r.Context(), r.PathValue("ticker"))
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "get market failed", slog.String("error", err.Error()))
		}
		writeError(w, status, http.StatusText(status))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market": m})
}
