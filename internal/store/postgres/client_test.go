package postgres

import (
	"context"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

func TestDSN(t *testing.T) {
	got := DSN(ClientConfig{Host: "db.local", Database: "kc", User: "u", Password: "p"})
	want := "postgres://u:p@db.local:5432/kc?sslmode=require"
	if got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
	if got := DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}); got != "postgres://x" {
		t.Errorf("explicit DSN not preferred: %q", got)
	}
}

func TestListClause(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args := listClause("SELECT * FROM t WHERE ticker = $1", []any{"KX"}, "analyzed_at",
		listOpts{Limit: 5, Offset: 10, Since: &since})

	wantQuery := "SELECT * FROM t WHERE ticker = $1 AND analyzed_at >= $2 ORDER BY analyzed_at DESC LIMIT $3 OFFSET $4"
	if query != wantQuery {
		t.Errorf("query = %q\nwant   %q", query, wantQuery)
	}
	wantArgs := []any{"KX", since, 5, 10}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Errorf("args = %v, want %v", args, wantArgs)
	}
}

func TestMigrationNamesSorted(t *testing.T) {
	names, err := migrationNames()
	if err != nil {
		t.Fatalf("migrationNames: %v", err)
	}
	if len(names) == 0 || names[0] != "001_init.sql" {
		t.Errorf("names = %v", names)
	}
}

// Integration tests run only when KCONSENSUS_TEST_POSTGRES_DSN points at a
// disposable database.
func testClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("KCONSENSUS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("KCONSENSUS_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	if err := c.RunMigrations(ctx); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	return c
}

func TestConsensusStoreRoundTrip(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	store := NewConsensusStore(c.Pool())

	ticker := "KXTEST-" + uuid.NewString()[:8]
	result := domain.ConsensusResult{
		ID:                   uuid.NewString(),
		Market:               domain.Market{Ticker: ticker, Title: "Test", Category: "Unknown", YesBid: 0.4, YesAsk: 0.5},
		ConsensusProbability: 0.6,
		ConsensusConfidence:  0.7,
		ImpliedProbability:   0.45,
		EdgePercentage:       15,
		Recommendation:       domain.RecommendationStrongBuyYes,
		MispricingScore:      10.5,
		AnalyzedAt:           time.Now().UTC().Truncate(time.Microsecond),
		Analyses: []domain.ProviderEstimate{
			{Provider: domain.ProviderOpenAI, EstimatedProbability: 0.6, Confidence: 0.8, Reasoning: "a", KeyFactors: []string{"x"}, Recommendation: domain.RecommendationBuyYes, Status: domain.EstimateOK},
			{Provider: domain.ProviderAnthropic, EstimatedProbability: 0.5, Confidence: 0, Reasoning: "API error occurred", Recommendation: domain.RecommendationHold, Status: domain.EstimateProviderFailed, Err: "boom"},
		},
	}
	if err := store.Insert(ctx, result); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := store.ListByTicker(ctx, ticker, domain.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("ListByTicker: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	if got[0].ID != result.ID || got[0].Market.Ticker != ticker {
		t.Errorf("result = %+v", got[0])
	}
	if len(got[0].Analyses) != 2 || got[0].Analyses[0].Provider != domain.ProviderOpenAI {
		t.Fatalf("analyses = %+v", got[0].Analyses)
	}
	if got[0].Analyses[1].Err != "boom" || got[0].Analyses[1].Status != domain.EstimateProviderFailed {
		t.Errorf("failed estimate = %+v", got[0].Analyses[1])
	}
}

func TestMarketStoreUpsert(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	store := NewMarketStore(c.Pool())

	m := domain.Market{Ticker: "KXM-" + uuid.NewString()[:8], Title: "First", Category: "Politics", Volume: 5}
	if err := store.UpsertBatch(ctx, []domain.Market{m}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	m.Title = "Second"
	if err := store.UpsertBatch(ctx, []domain.Market{m}); err != nil {
		t.Fatalf("UpsertBatch again: %v", err)
	}
	got, err := store.GetByTicker(ctx, m.Ticker)
	if err != nil {
		t.Fatalf("GetByTicker: %v", err)
	}
	if got.Title != "Second" {
		t.Errorf("title = %q, want Second", got.Title)
	}

	if _, err := store.GetByTicker(ctx, "KXM-missing-"+uuid.NewString()); err != domain.ErrNotFound {
		t.Errorf("missing ticker err = %v, want ErrNotFound", err)
	}
}
