package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fundamentals-engine/fundamentals"
	"github.com/warp/fundamentals-engine/fundamentals/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustDate(t *testing.T, s string) fundamentals.Date {
	t.Helper()
	d, err := fundamentals.ParseDate(s)
	require.NoError(t, err)
	return d
}

func testPayload(t *testing.T) *fundamentals.Payload {
	t.Helper()
	p, err := fundamentals.DecodePayload([]byte(`{
		"Financials": {
			"Income_Statement": {
				"currency_symbol": "USD",
				"quarterly": {
					"2023-12-31": {"totalRevenue": "40"},
					"2023-09-30": {"totalRevenue": "30"},
					"2023-06-30": {"totalRevenue": "20"},
					"2023-03-31": {"totalRevenue": "10"}
				}
			}
		}
	}`))
	require.NoError(t, err)
	return p
}

// =============================================================================
// SYMBOL TESTS
// =============================================================================

func TestSymbols_SaveListDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSymbol(ctx, "msft.us"))
	require.NoError(t, s.SaveSymbol(ctx, "AAPL.US"))
	require.NoError(t, s.SaveSymbol(ctx, "AAPL.US")) // idempotent

	symbols, err := s.ListSymbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL.US", "MSFT.US"}, symbols)

	require.NoError(t, s.DeleteSymbol(ctx, "aapl.us"))
	symbols, err = s.ListSymbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"MSFT.US"}, symbols)
}

// =============================================================================
// EXPORT TESTS
// =============================================================================

func TestExport_WritesQuarterlyAndAnnualTables(t *testing.T) {
	// GIVEN: One statement with two quarters (one absent value) and a year
	s := newTestStore(t)
	ctx := context.Background()

	batch := fundamentals.ExportBatch{
		Symbol: "acme",
		Kind:   fundamentals.IncomeStatement,
		Quarterly: []fundamentals.QuarterRecord{
			{Date: mustDate(t, "2023-12-31"), Values: fundamentals.Values{
				"totalRevenue": fundamentals.Number(40.25),
				"otherItems":   fundamentals.Absent,
			}},
			{Date: mustDate(t, "2023-09-30"), Values: fundamentals.Values{
				"totalRevenue": fundamentals.Number(30),
			}},
		},
		Annual: map[int]fundamentals.AnnualRecord{
			2023: {Year: 2023, Values: fundamentals.Values{"totalRevenue": fundamentals.Number(100)}},
		},
	}

	// WHEN: Exporting
	id, err := s.Export(ctx, batch)
	require.NoError(t, err)

	// THEN: Both labeled tables round-trip, absent stays absent
	exports, err := s.ListExports(ctx, "ACME")
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, id, exports[0].ID)
	assert.Equal(t, fundamentals.IncomeStatement, exports[0].Statement)
	assert.Equal(t, 2, exports[0].QuarterCount)
	assert.Equal(t, 1, exports[0].YearCount)

	quarterly, err := s.ExportedValues(ctx, id, fundamentals.TableQuarterly)
	require.NoError(t, err)
	require.Len(t, quarterly, 3)
	assert.Equal(t, "2023-12-31", quarterly[0].Period)
	assert.Equal(t, "otherItems", quarterly[0].Metric)
	assert.False(t, quarterly[0].Value.Valid)
	assert.Equal(t, 40.25, quarterly[1].Value.Float)

	annual, err := s.ExportedValues(ctx, id, fundamentals.TableAnnual)
	require.NoError(t, err)
	require.Len(t, annual, 1)
	assert.Equal(t, "2023", annual[0].Period)
	assert.Equal(t, 100.0, annual[0].Value.Float)
}

func TestExport_FromFinancials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fetcher := store.NewMemoryFetcher()
	fetcher.Put("ACME", testPayload(t))
	f := fundamentals.NewFinancials("ACME", fetcher, nil, zerolog.Nop())

	ids, err := f.Export(ctx, s)

	require.NoError(t, err)
	require.Len(t, ids, 1)
	rec, err := s.GetExport(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, fundamentals.IncomeStatement, rec.Statement)
	annual, err := s.ExportedValues(ctx, ids[0], fundamentals.TableAnnual)
	require.NoError(t, err)
	require.Len(t, annual, 1)
	assert.Equal(t, 100.0, annual[0].Value.Float)
}

func TestExport_ListedNewestFirst(t *testing.T) {
	// GIVEN: Several exports of one symbol in quick succession
	s := newTestStore(t)
	ctx := context.Background()
	batch := fundamentals.ExportBatch{Symbol: "ACME", Kind: fundamentals.CashFlow}

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := s.Export(ctx, batch)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	// WHEN: Listing
	exports, err := s.ListExports(ctx, "ACME")
	require.NoError(t, err)

	// THEN: Reverse insertion order, timestamps stored at fixed width
	require.Len(t, exports, 5)
	for i, e := range exports {
		assert.Equal(t, ids[len(ids)-1-i], e.ID)
	}

	var raw string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT exported_at FROM exports LIMIT 1`).Scan(&raw))
	assert.Len(t, raw, len("2006-01-02T15:04:05.000000000Z"))
}

func TestGetExport_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetExport(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIsTracked(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveSymbol(ctx, "ACME"))

	tracked, err := s.IsTracked(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, tracked)

	tracked, err = s.IsTracked(ctx, "OTHER")
	require.NoError(t, err)
	assert.False(t, tracked)
}

// =============================================================================
// REFRESH RUN TESTS
// =============================================================================

func TestRefreshRuns_SaveAndUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := &RefreshRun{Symbol: "acme", Trigger: "manual", Status: RunRunning}
	require.NoError(t, s.SaveRefreshRun(ctx, run))
	require.NotEmpty(t, run.ID)

	done := time.Now().UTC()
	run.Status = RunFailed
	run.Error = "timeout"
	run.CompletedAt = &done
	require.NoError(t, s.SaveRefreshRun(ctx, run))

	runs, err := s.GetRefreshRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "ACME", runs[0].Symbol)
	assert.Equal(t, RunFailed, runs[0].Status)
	assert.Equal(t, "timeout", runs[0].Error)
	require.NotNil(t, runs[0].CompletedAt)

	failed, err := s.GetRefreshRuns(ctx, RunCompleted, 10)
	require.NoError(t, err)
	assert.Empty(t, failed)
}

// =============================================================================
// PAYLOAD CACHE TESTS
// =============================================================================

func TestPayloadCache_ServesFreshEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	upstream := store.NewMemoryFetcher()
	upstream.Put("ACME", testPayload(t))
	cache := NewPayloadCache(s, upstream, time.Hour, zerolog.Nop())

	_, err := cache.Fetch(ctx, "ACME")
	require.NoError(t, err)
	p, err := cache.Fetch(ctx, "acme")
	require.NoError(t, err)

	assert.Equal(t, 1, upstream.Calls())
	quarters := fundamentals.Ingest(p, zerolog.Nop()).Quarters[fundamentals.IncomeStatement]
	assert.Len(t, quarters, 4)
}

func TestPayloadCache_ExpiredEntryRefetched(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	upstream := store.NewMemoryFetcher()
	upstream.Put("ACME", testPayload(t))
	cache := NewPayloadCache(s, upstream, time.Hour, zerolog.Nop())

	now := time.Now()
	cache.now = func() time.Time { return now }
	_, err := cache.Fetch(ctx, "ACME")
	require.NoError(t, err)

	cache.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = cache.Fetch(ctx, "ACME")
	require.NoError(t, err)

	assert.Equal(t, 2, upstream.Calls())
}

func TestPayloadCache_StaleFallbackOnUpstreamFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	upstream := store.NewMemoryFetcher()
	upstream.Put("ACME", testPayload(t))
	cache := NewPayloadCache(s, upstream, 0, zerolog.Nop())

	_, err := cache.Fetch(ctx, "ACME")
	require.NoError(t, err)

	upstream.Fail("ACME", errors.New("503"))

	// Normal fetch: stale entry served
	p, err := cache.Fetch(ctx, "ACME")
	require.NoError(t, err)
	assert.NotNil(t, p)

	// Bypassed fetch: failure surfaces
	_, err = cache.Fetch(BypassCache(ctx), "ACME")
	assert.True(t, fundamentals.IsSourceError(err))
}

func TestPayloadCache_BypassSkipsFreshEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	upstream := store.NewMemoryFetcher()
	upstream.Put("ACME", testPayload(t))
	cache := NewPayloadCache(s, upstream, time.Hour, zerolog.Nop())

	_, err := cache.Fetch(ctx, "ACME")
	require.NoError(t, err)
	_, err = cache.Fetch(BypassCache(ctx), "ACME")
	require.NoError(t, err)

	assert.Equal(t, 2, upstream.Calls())
}

func TestGetPayload_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetPayload(context.Background(), "NONE")

	assert.ErrorIs(t, err, ErrNotFound)
}
