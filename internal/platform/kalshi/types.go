package kalshi

import (
	"time"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

// KalshiMarket represents a market as returned by the Kalshi REST API.
// Prices are integer cents in the range 0-100.
type KalshiMarket struct {
	Ticker       string  `json:"ticker"`
	EventTicker  string  `json:"event_ticker"`
	MarketType   string  `json:"market_type"`
	Title        string  `json:"title"`
	Subtitle     string  `json:"subtitle"`
	YesSubTitle  string  `json:"yes_sub_title"`
	NoSubTitle   string  `json:"no_sub_title"`
	Status       string  `json:"status"` // "open", "active", "closed", "settled"
	YesBid       float64 `json:"yes_bid"`
	YesAsk       float64 `json:"yes_ask"`
	NoBid        float64 `json:"no_bid"`
	NoAsk        float64 `json:"no_ask"`
	LastPrice    float64 `json:"last_price"`
	Volume       int64   `json:"volume"`
	Volume24H    int64   `json:"volume_24h"`
	OpenInterest int64   `json:"open_interest"`
	Category     string  `json:"category"`
	Result       string  `json:"result"` // "yes", "no", "" (unsettled)
	RulesPrimary string  `json:"rules_primary"`
	OpenTime     string  `json:"open_time"`
	CloseTime    string  `json:"close_time"`
}

// KalshiEvent is an event with its nested markets.
type KalshiEvent struct {
	EventTicker  string         `json:"event_ticker"`
	SeriesTicker string         `json:"series_ticker"`
	Title        string         `json:"title"`
	SubTitle     string         `json:"sub_title"`
	Category     string         `json:"category"`
	Markets      []KalshiMarket `json:"markets"`
}

// KalshiErrorResponse represents a Kalshi API error response.
type KalshiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e KalshiErrorResponse) describe() (code, msg string) {
	if e.Error.Code != "" || e.Error.Message != "" {
		return e.Error.Code, e.Error.Message
	}
	return e.Code, e.Message
}

// --------------------------------------------------------------------------
// Conversion helpers
// --------------------------------------------------------------------------

const unknownCategory = "Unknown"

// ToDomainMarket converts the wire representation into a domain.Market,
// scaling every cent price to a [0,1] fraction.
func (m KalshiMarket) ToDomainMarket() domain.Market {
	category := m.Category
	if category == "" {
		category = unknownCategory
	}
	return domain.Market{
		Ticker:       m.Ticker,
		EventTicker:  m.EventTicker,
		Title:        m.Title,
		Subtitle:     m.Subtitle,
		YesSubTitle:  m.YesSubTitle,
		NoSubTitle:   m.NoSubTitle,
		Category:     category,
		Status:       domain.MarketStatus(m.Status),
		YesBid:       centsToFraction(m.YesBid),
		YesAsk:       centsToFraction(m.YesAsk),
		NoBid:        centsToFraction(m.NoBid),
		NoAsk:        centsToFraction(m.NoAsk),
		LastPrice:    centsToFraction(m.LastPrice),
		Volume:       m.Volume,
		Volume24h:    m.Volume24H,
		OpenInterest: m.OpenInterest,
		CloseTime:    parseTime(m.CloseTime),
		Result:       m.Result,
		RulesPrimary: m.RulesPrimary,
	}
}

// ToDomainEvent converts an event; nested markets take the event's category.
func (e KalshiEvent) ToDomainEvent() domain.Event {
	out := domain.Event{
		EventTicker:  e.EventTicker,
		SeriesTicker: e.SeriesTicker,
		Title:        e.Title,
		Subtitle:     e.SubTitle,
		Category:     e.Category,
		Markets:      make([]domain.Market, 0, len(e.Markets)),
	}
	for _, raw := range e.Markets {
		m := raw.ToDomainMarket()
		if e.Category != "" {
			m.Category = e.Category
		}
		if m.EventTicker == "" {
			m.EventTicker = e.EventTicker
		}
		out.Markets = append(out.Markets, m)
	}
	return out
}

func centsToFraction(cents float64) float64 {
	return cents / 100
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
