package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

// ConsensusStore implements domain.ConsensusStore. Each result row owns one
// provider_estimates row per provider, stored in provider order.
type ConsensusStore struct {
	pool *pgxpool.Pool
}

var _ domain.ConsensusStore = (*ConsensusStore)(nil)

// NewConsensusStore creates a new ConsensusStore backed by the given pool.
func NewConsensusStore(pool *pgxpool.Pool) *ConsensusStore {
	return &ConsensusStore{pool: pool}
}

// Insert writes a result and its estimates in one transaction.
func (s *ConsensusStore) Insert(ctx context.Context, r domain.ConsensusResult) error {
	marketJSON, err := json.Marshal(r.Market)
	if err != nil {
		return fmt.Errorf("postgres: marshal market %s: %w", r.Market.Ticker, err)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		const insertResult = `
			INSERT INTO consensus_results (
				id, ticker, market, consensus_probability, consensus_confidence,
				implied_probability, edge_percentage, recommendation, mispricing_score, analyzed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		if _, err := tx.Exec(ctx, insertResult,
			r.ID, r.Market.Ticker, marketJSON, r.ConsensusProbability, r.ConsensusConfidence,
			r.ImpliedProbability, r.EdgePercentage, string(r.Recommendation), r.MispricingScore, r.AnalyzedAt,
		); err != nil {
			return fmt.Errorf("postgres: insert consensus %s: %w", r.Market.Ticker, err)
		}

		const insertEstimate = `
			INSERT INTO provider_estimates (
				result_id, position, provider, estimated_probability, confidence,
				reasoning, key_factors, recommendation, status, error
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		batch := &pgx.Batch{}
		for i, e := range r.Analyses {
			var factors []byte
			if e.KeyFactors != nil {
				factors, _ = json.Marshal(e.KeyFactors)
			}
			batch.Queue(insertEstimate,
				r.ID, i, string(e.Provider), e.EstimatedProbability, e.Confidence,
				e.Reasoning, factors, string(e.Recommendation), string(e.Status), e.Err,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert estimates %s: %w", r.Market.Ticker, err)
		}
		return nil
	})
}

// ListRecent returns results newest first.
func (s *ConsensusStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.ConsensusResult, error) {
	query, args := listClause(selectResults+` WHERE 1=1`, nil, "analyzed_at", opts)
	return s.list(ctx, query, args)
}

// ListByTicker returns one market's result history newest first.
func (s *ConsensusStore) ListByTicker(ctx context.Context, ticker string, opts domain.ListOpts) ([]domain.ConsensusResult, error) {
	query, args := listClause(selectResults+` WHERE ticker = $1`, []any{ticker}, "analyzed_at", opts)
	return s.list(ctx, query, args)
}

const selectResults = `
	SELECT id::text, market, consensus_probability, consensus_confidence, implied_probability,
	       edge_percentage, recommendation, mispricing_score, analyzed_at
	FROM consensus_results`

func (s *ConsensusStore) list(ctx context.Context, query string, args []any) ([]domain.ConsensusResult, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list consensus: %w", err)
	}
	defer rows.Close()

	var results []domain.ConsensusResult
	index := make(map[string]int)
	for rows.Next() {
		var r domain.ConsensusResult
		var marketJSON []byte
		var rec string
		if err := rows.Scan(&r.ID, &marketJSON, &r.ConsensusProbability, &r.ConsensusConfidence,
			&r.ImpliedProbability, &r.EdgePercentage, &rec, &r.MispricingScore, &r.AnalyzedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan consensus: %w", err)
		}
		if err := json.Unmarshal(marketJSON, &r.Market); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal market: %w", err)
		}
		r.Recommendation = domain.Recommendation(rec)
		index[r.ID] = len(results)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list consensus rows: %w", err)
	}
	if len(results) == 0 {
		return results, nil
	}

	if err := s.attachEstimates(ctx, results, index); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *ConsensusStore) attachEstimates(ctx context.Context, results []domain.ConsensusResult, index map[string]int) error {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT result_id::text, provider, estimated_probability, confidence, reasoning,
		       key_factors, recommendation, status, error
		FROM provider_estimates
		WHERE result_id = ANY($1::uuid[])
		ORDER BY result_id, position`, ids)
	if err != nil {
		return fmt.Errorf("postgres: list estimates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, provider, rec, status string
			factors                   []byte
			e                         domain.ProviderEstimate
		)
		if err := rows.Scan(&id, &provider, &e.EstimatedProbability, &e.Confidence, &e.Reasoning,
			&factors, &rec, &status, &e.Err); err != nil {
			return fmt.Errorf("postgres: scan estimate: %w", err)
		}
		e.Provider = domain.Provider(provider)
		e.Recommendation = domain.Recommendation(rec)
		e.Status = domain.EstimateStatus(status)
		if factors != nil {
			if err := json.Unmarshal(factors, &e.KeyFactors); err != nil {
				return fmt.Errorf("postgres: unmarshal key factors: %w", err)
			}
		}
		if i, ok := index[id]; ok {
			results[i].Analyses = append(results[i].Analyses, e)
		}
	}
	return rows.Err()
}
