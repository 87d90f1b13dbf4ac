package domain

import (
	"context"
	"time"
)

// MarketCache provides fast market snapshot lookups keyed by ticker.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, ticker string) (Market, error)
	SetEvents(ctx context.Context, key string, events []Event) error
	GetEvents(ctx context.Context, key string) ([]Event, error)
	Invalidate(ctx context.Context, ticker string) error
}

// PicksStore keeps the ranked top-picks collection, deduplicated by ticker and
// bounded in size.
type PicksStore interface {
	Put(ctx context.Context, result ConsensusResult) error
	Remove(ctx context.Context, ticker string) error
	List(ctx context.Context, limit int) ([]ConsensusResult, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out of consensus updates.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
