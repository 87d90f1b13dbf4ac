package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

// MarketStore implements domain.MarketStore. Typed columns support ad-hoc
// queries; the snapshot column round-trips the full domain.Market.
type MarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const upsertMarketSQL = `
	INSERT INTO markets (
		ticker, event_ticker, title, category, status,
		yes_bid, yes_ask, no_bid, no_ask, last_price,
		volume, volume_24h, open_interest, close_time, snapshot, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, NOW()
	)
	ON CONFLICT (ticker) DO UPDATE SET
		event_ticker  = EXCLUDED.event_ticker,
		title         = EXCLUDED.title,
		category      = EXCLUDED.category,
		status        = EXCLUDED.status,
		yes_bid       = EXCLUDED.yes_bid,
		yes_ask       = EXCLUDED.yes_ask,
		no_bid        = EXCLUDED.no_bid,
		no_ask        = EXCLUDED.no_ask,
		last_price    = EXCLUDED.last_price,
		volume        = EXCLUDED.volume,
		volume_24h    = EXCLUDED.volume_24h,
		open_interest = EXCLUDED.open_interest,
		close_time    = EXCLUDED.close_time,
		snapshot      = EXCLUDED.snapshot,
		updated_at    = NOW()`

// UpsertBatch writes every market in one round trip.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		snapshot, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("postgres: marshal market %s: %w", m.Ticker, err)
		}
		batch.Queue(upsertMarketSQL,
			m.Ticker, m.EventTicker, m.Title, m.Category, string(m.Status),
			m.YesBid, m.YesAsk, m.NoBid, m.NoAsk, m.LastPrice,
			m.Volume, m.Volume24h, m.OpenInterest, nullTime(m.CloseTime), snapshot,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, m := range markets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert market %s: %w", m.Ticker, err)
		}
	}
	return nil
}

// GetByTicker returns domain.ErrNotFound for unknown tickers.
func (s *MarketStore) GetByTicker(ctx context.Context, ticker string) (domain.Market, error) {
	var snapshot []byte
	err := s.pool.QueryRow(ctx, `SELECT snapshot FROM markets WHERE ticker = $1`, ticker).Scan(&snapshot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", ticker, err)
	}

	var m domain.Market
	if err := json.Unmarshal(snapshot, &m); err != nil {
		return domain.Market{}, fmt.Errorf("postgres: unmarshal market %s: %w", ticker, err)
	}
	return m, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
