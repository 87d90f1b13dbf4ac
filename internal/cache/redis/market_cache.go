package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

// Default TTLs for market snapshots and event listings.
const (
	DefaultMarketTTL = 30 * time.Second
	DefaultEventsTTL = 60 * time.Second
)

// MarketCache implements domain.MarketCache with JSON string values.
//
// Key schema:
//
//	market:{ticker}  - JSON domain.Market
//	events:{key}     - JSON []domain.Event for one listing query
type MarketCache struct {
	c         *Client
	marketTTL time.Duration
	eventsTTL time.Duration
}

var _ domain.MarketCache = (*MarketCache)(nil)

// NewMarketCache creates a MarketCache. Zero TTLs fall back to the defaults.
func NewMarketCache(c *Client, marketTTL, eventsTTL time.Duration) *MarketCache {
	if marketTTL <= 0 {
		marketTTL = DefaultMarketTTL
	}
	if eventsTTL <= 0 {
		eventsTTL = DefaultEventsTTL
	}
	return &MarketCache{c: c, marketTTL: marketTTL, eventsTTL: eventsTTL}
}

// Set stores a market snapshot keyed by ticker.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", market.Ticker, err)
	}
	if err := mc.c.rdb.Set(ctx, mc.c.key("market:", market.Ticker), data, mc.marketTTL).Err(); err != nil {
		return fmt.Errorf("redis: set market %s: %w", market.Ticker, err)
	}
	return nil
}

// Get returns domain.ErrNotFound when the ticker is not cached.
func (mc *MarketCache) Get(ctx context.Context, ticker string) (domain.Market, error) {
	data, err := mc.c.rdb.Get(ctx, mc.c.key("market:", ticker)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", ticker, err)
	}

	var market domain.Market
	if err := json.Unmarshal(data, &market); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", ticker, err)
	}
	return market, nil
}

// SetEvents caches one event listing and back-fills each nested market.
func (mc *MarketCache) SetEvents(ctx context.Context, key string, events []domain.Event) error {
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("redis: marshal events %s: %w", key, err)
	}

	pipe := mc.c.rdb.TxPipeline()
	pipe.Set(ctx, mc.c.key("events:", key), data, mc.eventsTTL)
	for _, e := range events {
		for _, m := range e.Markets {
			md, err := json.Marshal(m)
			if err != nil {
				continue
			}
			pipe.Set(ctx, mc.c.key("market:", m.Ticker), md, mc.marketTTL)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set events %s: %w", key, err)
	}
	return nil
}

// GetEvents returns domain.ErrNotFound when the listing is not cached.
func (mc *MarketCache) GetEvents(ctx context.Context, key string) ([]domain.Event, error) {
	data, err := mc.c.rdb.Get(ctx, mc.c.key("events:", key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get events %s: %w", key, err)
	}

	var events []domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("redis: unmarshal events %s: %w", key, err)
	}
	return events, nil
}

// Invalidate removes a cached market snapshot.
func (mc *MarketCache) Invalidate(ctx context.Context, ticker string) error {
	if err := mc.c.rdb.Del(ctx, mc.c.key("market:", ticker)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", ticker, err)
	}
	return nil
}
