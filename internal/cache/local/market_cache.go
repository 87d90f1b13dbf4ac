// Package local provides single-process stand-ins for the Redis-backed cache,
// lock, rate limit and pub/sub types. They are used when no Redis URL is
// configured.
package local

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

// MarketCache implements domain.MarketCache over two in-memory TTL caches.
// Reads do not extend an entry's lifetime.
type MarketCache struct {
	markets *ttlcache.Cache[string, domain.Market]
	events  *ttlcache.Cache[string, []domain.Event]
}

var _ domain.MarketCache = (*MarketCache)(nil)

// NewMarketCache creates a cache with the given entry lifetimes.
func NewMarketCache(marketTTL, eventsTTL time.Duration) *MarketCache {
	return &MarketCache{
		markets: ttlcache.New(
			ttlcache.WithTTL[string, domain.Market](marketTTL),
			ttlcache.WithDisableTouchOnHit[string, domain.Market](),
		),
		events: ttlcache.New(
			ttlcache.WithTTL[string, []domain.Event](eventsTTL),
			ttlcache.WithDisableTouchOnHit[string, []domain.Event](),
		),
	}
}

// Set caches a single market snapshot.
func (c *MarketCache) Set(_ context.Context, m domain.Market) error {
	c.markets.DeleteExpired()
	c.markets.Set(m.Ticker, m, ttlcache.DefaultTTL)
	return nil
}

// Get returns a cached market or domain.ErrNotFound.
func (c *MarketCache) Get(_ context.Context, ticker string) (domain.Market, error) {
	item := c.markets.Get(ticker)
	if item == nil || item.IsExpired() {
		return domain.Market{}, domain.ErrNotFound
	}
	return item.Value(), nil
}

// SetEvents stores a listing and back-fills each nested market.
func (c *MarketCache) SetEvents(_ context.Context, key string, events []domain.Event) error {
	c.events.DeleteExpired()
	c.markets.DeleteExpired()
	c.events.Set(key, events, ttlcache.DefaultTTL)
	for _, e := range events {
		for _, m := range e.Markets {
			c.markets.Set(m.Ticker, m, ttlcache.DefaultTTL)
		}
	}
	return nil
}

// GetEvents returns a cached listing or domain.ErrNotFound.
func (c *MarketCache) GetEvents(_ context.Context, key string) ([]domain.Event, error) {
	item := c.events.Get(key)
	if item == nil || item.IsExpired() {
		return nil, domain.ErrNotFound
	}
	return item.Value(), nil
}

// Invalidate drops a cached market.
func (c *MarketCache) Invalidate(_ context.Context, ticker string) error {
	c.markets.Delete(ticker)
	return nil
}
