package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusActive   MarketStatus = "active"
	MarketStatusClosed   MarketStatus = "closed"
	MarketStatusSettled  MarketStatus = "settled"
	MarketStatusUnopened MarketStatus = "unopened"
)

// IsTradable reports whether the status describes a market still accepting
// orders. Kalshi reports live markets as either "open" or "active".
func (s MarketStatus) IsTradable() bool {
	return s == MarketStatusOpen || s == MarketStatusActive
}

// Market is an immutable snapshot of one binary-outcome Kalshi market taken
// at fetch time. All prices are fractions in [0,1].
type Market struct {
	Ticker       string       `json:"ticker"`
	EventTicker  string       `json:"event_ticker"`
	Title        string       `json:"title"`
	Subtitle     string       `json:"subtitle,omitempty"`
	YesSubTitle  string       `json:"yes_sub_title,omitempty"`
	NoSubTitle   string       `json:"no_sub_title,omitempty"`
	Category     string       `json:"category"`
	Status       MarketStatus `json:"status"`
	YesBid       float64      `json:"yes_bid"`
	YesAsk       float64      `json:"yes_ask"`
	NoBid        float64      `json:"no_bid"`
	NoAsk        float64      `json:"no_ask"`
	LastPrice    float64      `json:"last_price"`
	Volume       int64        `json:"volume"`
	Volume24h    int64        `json:"volume_24h"`
	OpenInterest int64        `json:"open_interest"`
	CloseTime    time.Time    `json:"close_time"`
	Result       string       `json:"result,omitempty"`
	RulesPrimary string       `json:"rules_primary,omitempty"`
}

// ImpliedProbability is the market's own estimate of the yes outcome, taken as
// the midpoint of the yes bid and ask. Crossed quotes are not rejected.
func (m Market) ImpliedProbability() float64 {
	return (m.YesBid + m.YesAsk) / 2
}

// OutcomeLabel returns the most specific outcome description available.
func (m Market) OutcomeLabel() string {
	if m.YesSubTitle != "" {
		return m.YesSubTitle
	}
	return m.Subtitle
}

// Event groups related markets under a shared title and category.
type Event struct {
	EventTicker  string   `json:"event_ticker"`
	SeriesTicker string   `json:"series_ticker"`
	Title        string   `json:"title"`
	Subtitle     string   `json:"sub_title,omitempty"`
	Category     string   `json:"category"`
	Markets      []Market `json:"markets"`
}

// TotalVolume sums lifetime volume over the event's markets.
func (e Event) TotalVolume() int64 {
	var total int64
	for _, m := range e.Markets {
		total += m.Volume
	}
	return total
}

// TotalVolume24h sums trailing 24h volume over the event's markets.
func (e Event) TotalVolume24h() int64 {
	var total int64
	for _, m := range e.Markets {
		total += m.Volume24h
	}
	return total
}

// EarliestClose returns the soonest close time among the event's markets, or
// the zero time when the event has no markets.
func (e Event) EarliestClose() time.Time {
	var earliest time.Time
	for _, m := range e.Markets {
		if m.CloseTime.IsZero() {
			continue
		}
		if earliest.IsZero() || m.CloseTime.Before(earliest) {
			earliest = m.CloseTime
		}
	}
	return earliest
}
