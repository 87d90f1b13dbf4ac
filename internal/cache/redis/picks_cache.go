package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

// PicksCache implements domain.PicksStore with a sorted set scored by
// mispricing and a hash holding each result, both keyed by ticker so a
// market appears at most once.
//
// Key schema:
//
//	picks:rank - ZSET ticker -> mispricing score
//	picks:data - HASH ticker -> JSON domain.ConsensusResult
type PicksCache struct {
	c        *Client
	capacity int64
}

var _ domain.PicksStore = (*PicksCache)(nil)

// trimLua drops the lowest-ranked entries beyond capacity from both keys.
const trimLua = `
local n = redis.call('ZCARD', KEYS[1])
local excess = n - tonumber(ARGV[1])
if excess <= 0 then
    return 0
end
local dropped = redis.call('ZRANGE', KEYS[1], 0, excess - 1)
redis.call('ZREMRANGEBYRANK', KEYS[1], 0, excess - 1)
for _, t in ipairs(dropped) do
    redis.call('HDEL', KEYS[2], t)
end
return excess
`

var trimScript = redis.NewScript(trimLua)

// NewPicksCache creates a PicksCache bounded to capacity entries.
func NewPicksCache(c *Client, capacity int) *PicksCache {
	if capacity <= 0 {
		capacity = 10
	}
	return &PicksCache{c: c, capacity: int64(capacity)}
}

func (pc *PicksCache) rankKey() string { return pc.c.key("picks:rank") }
func (pc *PicksCache) dataKey() string { return pc.c.key("picks:data") }

// Put inserts or replaces the pick for result's ticker and trims the set.
func (pc *PicksCache) Put(ctx context.Context, result domain.ConsensusResult) error {
	ticker := result.Market.Ticker
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("redis: marshal pick %s: %w", ticker, err)
	}

	pipe := pc.c.rdb.TxPipeline()
	pipe.ZAdd(ctx, pc.rankKey(), redis.Z{Score: result.MispricingScore, Member: ticker})
	pipe.HSet(ctx, pc.dataKey(), ticker, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put pick %s: %w", ticker, err)
	}

	if err := trimScript.Run(ctx, pc.c.rdb, []string{pc.rankKey(), pc.dataKey()}, pc.capacity).Err(); err != nil {
		return fmt.Errorf("redis: trim picks: %w", err)
	}
	return nil
}

// Remove drops the pick for ticker.
func (pc *PicksCache) Remove(ctx context.Context, ticker string) error {
	pipe := pc.c.rdb.TxPipeline()
	pipe.ZRem(ctx, pc.rankKey(), ticker)
	pipe.HDel(ctx, pc.dataKey(), ticker)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: remove pick %s: %w", ticker, err)
	}
	return nil
}

// List returns up to limit picks ordered by mispricing score, highest first.
func (pc *PicksCache) List(ctx context.Context, limit int) ([]domain.ConsensusResult, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	tickers, err := pc.c.rdb.ZRevRange(ctx, pc.rankKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list picks: %w", err)
	}
	if len(tickers) == 0 {
		return nil, nil
	}

	raw, err := pc.c.rdb.HMGet(ctx, pc.dataKey(), tickers...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load picks: %w", err)
	}

	out := make([]domain.ConsensusResult, 0, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var r domain.ConsensusResult
		if err := json.Unmarshal([]byte(s), &r); err != nil {
			return nil, fmt.Errorf("redis: unmarshal pick %s: %w", tickers[i], err)
		}
		out = append(out, r)
	}
	return out, nil
}
