package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ConsensusStore persists consensus results together with their per-provider
// estimates.
type ConsensusStore interface {
	Insert(ctx context.Context, result ConsensusResult) error
	ListRecent(ctx context.Context, opts ListOpts) ([]ConsensusResult, error)
	ListByTicker(ctx context.Context, ticker string, opts ListOpts) ([]ConsensusResult, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// MarketStore persists the latest snapshot of every analyzed market.
type MarketStore interface {
	UpsertBatch(ctx context.Context, markets []Market) error
	GetByTicker(ctx context.Context, ticker string) (Market, error)
}
