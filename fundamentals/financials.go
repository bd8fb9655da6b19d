/*
financials.go - Query surface for one symbol

PURPOSE:
  Financials is the read API over one symbol's fundamentals. The first
  accessor call fetches the payload, ingests it and computes the annual
  roll-ups; every later call reads the memoized dataset.

LAZY LOAD:
  - Fast path: atomic load of the published dataset, no lock.
  - Slow path: mutex, re-check, fetch + ingest + roll-up, publish.
  Concurrent first callers therefore trigger exactly one fetch and never see
  a partially built dataset.

SOURCE UNAVAILABLE:
  A failed first fetch publishes an empty dataset and logs once. Accessors
  then return ok=false. If the caller's context was cancelled, nothing is
  published so the next caller retries.

REFRESH:
  Refresh fetches again and swaps in a fully rebuilt dataset. A failed
  refresh keeps the previous dataset and returns the error.

VIEWS:
  Quarterly: "YYYY-MM-DD" -> value(s), optional year filter by date prefix.
  Annual:    year -> value(s), or one year's record / scalar.

SEE ALSO:
  - ingest.go, rollup.go, derived.go
*/
package fundamentals

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// dataset is one fetch worth of data. Never mutated after publication.
type dataset struct {
	fetchedAt time.Time
	available bool
	quarters  map[StatementKind][]QuarterRecord
	annual    map[StatementKind]map[int]AnnualRecord
	skipped   int
}

func emptyDataset() *dataset {
	return &dataset{
		quarters: map[StatementKind][]QuarterRecord{},
		annual:   map[StatementKind]map[int]AnnualRecord{},
	}
}

// Financials serves quarterly, annual and derived views for one symbol.
type Financials struct {
	symbol  string
	fetcher Fetcher
	rollup  *RollupEngine
	log     zerolog.Logger

	mu   sync.Mutex
	data atomic.Pointer[dataset]
}

// NewFinancials creates a lazily loading view. policies may be nil.
func NewFinancials(symbol string, fetcher Fetcher, policies *PolicyTable, log zerolog.Logger) *Financials {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	return &Financials{
		symbol:  symbol,
		fetcher: fetcher,
		rollup:  NewRollupEngine(policies),
		log:     log.With().Str("component", "financials").Str("symbol", symbol).Logger(),
	}
}

// Symbol returns the upper-cased ticker.
func (f *Financials) Symbol() string { return f.symbol }

// =============================================================================
// LOADING
// =============================================================================

func (f *Financials) load(ctx context.Context) *dataset {
	if d := f.data.Load(); d != nil {
		return d
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if d := f.data.Load(); d != nil {
		return d
	}

	d, err := f.build(ctx)
	if err != nil {
		f.log.Error().Err(err).Msg("fundamentals source unavailable")
		if ctx.Err() != nil {
			return emptyDataset()
		}
	}
	f.data.Store(d)
	return d
}

// Refresh re-fetches the payload and replaces the dataset.
func (f *Financials) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, err := f.build(ctx)
	if err != nil {
		f.log.Warn().Err(err).Msg("refresh failed, keeping previous data")
		if f.data.Load() == nil && ctx.Err() == nil {
			f.data.Store(d)
		}
		return err
	}
	f.data.Store(d)
	return nil
}

func (f *Financials) build(ctx context.Context) (*dataset, error) {
	if f.fetcher == nil {
		return emptyDataset(), fmt.Errorf("%w: no fetcher configured", ErrSourceUnavailable)
	}

	payload, err := f.fetcher.Fetch(ctx, f.symbol)
	if err != nil {
		return emptyDataset(), err
	}
	if payload == nil || len(payload.Financials) == 0 {
		return emptyDataset(), fmt.Errorf("%w: empty payload for %s", ErrSourceUnavailable, f.symbol)
	}

	ingested := Ingest(payload, f.log)
	d := &dataset{
		fetchedAt: time.Now().UTC(),
		available: true,
		quarters:  ingested.Quarters,
		annual:    make(map[StatementKind]map[int]AnnualRecord, len(ingested.Quarters)),
		skipped:   len(ingested.Skipped),
	}
	for kind, quarters := range ingested.Quarters {
		d.annual[kind] = f.rollup.Rollup(kind, quarters)
	}

	f.log.Info().
		Int("skipped", d.skipped).
		Int("balance_sheet_quarters", len(d.quarters[BalanceSheet])).
		Int("income_statement_quarters", len(d.quarters[IncomeStatement])).
		Int("cash_flow_quarters", len(d.quarters[CashFlow])).
		Msg("fundamentals loaded")
	return d, nil
}

// Status describes the loaded dataset.
type Status struct {
	Symbol    string
	Loaded    bool
	Available bool
	FetchedAt time.Time
	Quarters  map[StatementKind]int
	Years     map[StatementKind]int
	Skipped   int
}

// Status reports without triggering a fetch.
func (f *Financials) Status() Status {
	st := Status{Symbol: f.symbol, Quarters: map[StatementKind]int{}, Years: map[StatementKind]int{}}
	d := f.data.Load()
	if d == nil {
		return st
	}
	st.Loaded = true
	st.Available = d.available
	st.FetchedAt = d.fetchedAt
	st.Skipped = d.skipped
	for k, qs := range d.quarters {
		st.Quarters[k] = len(qs)
	}
	for k, a := range d.annual {
		st.Years[k] = len(a)
	}
	return st
}

// =============================================================================
// QUARTERLY VIEW
// =============================================================================

// Quarters returns a copy of the quarterly sequence of a kind, newest first.
func (f *Financials) Quarters(ctx context.Context, kind StatementKind) []QuarterRecord {
	qs := f.load(ctx).quarters[kind]
	out := make([]QuarterRecord, len(qs))
	for i, q := range qs {
		out[i] = q.Clone()
	}
	return out
}

// QuarterlyMetric returns date -> value for one metric. year 0 means all years.
func (f *Financials) QuarterlyMetric(ctx context.Context, kind StatementKind, metric string, year int) (map[string]Value, bool) {
	out := make(map[string]Value)
	for _, q := range f.load(ctx).quarters[kind] {
		if year != 0 && !q.Date.InYear(year) {
			continue
		}
		if v, ok := q.Values[metric]; ok {
			out[q.Date.String()] = v
		}
	}
	return out, len(out) > 0
}

// QuarterlyMetrics returns date -> all values. year 0 means all years.
func (f *Financials) QuarterlyMetrics(ctx context.Context, kind StatementKind, year int) (map[string]Values, bool) {
	out := make(map[string]Values)
	for _, q := range f.load(ctx).quarters[kind] {
		if year != 0 && !q.Date.InYear(year) {
			continue
		}
		out[q.Date.String()] = q.Values.Clone()
	}
	return out, len(out) > 0
}

// =============================================================================
// ANNUAL VIEW
// =============================================================================

// AnnualRecords returns the roll-ups of a kind keyed by year.
func (f *Financials) AnnualRecords(ctx context.Context, kind StatementKind) map[int]AnnualRecord {
	src := f.load(ctx).annual[kind]
	out := make(map[int]AnnualRecord, len(src))
	for y, r := range src {
		out[y] = r.Clone()
	}
	return out
}

// AnnualMetric returns year -> value for one metric across all years.
func (f *Financials) AnnualMetric(ctx context.Context, kind StatementKind, metric string) (map[int]Value, bool) {
	out := make(map[int]Value)
	for y, rec := range f.load(ctx).annual[kind] {
		if v, ok := rec.Values[metric]; ok {
			out[y] = v
		}
	}
	return out, len(out) > 0
}

// AnnualMetricForYear returns one metric of one year. The value itself may be
// Absent when every quarter left it unreported.
func (f *Financials) AnnualMetricForYear(ctx context.Context, kind StatementKind, metric string, year int) (Value, bool) {
	rec, ok := f.load(ctx).annual[kind][year]
	if !ok {
		return Absent, false
	}
	v, ok := rec.Values[metric]
	return v, ok
}

// AnnualMetrics returns year -> values for all complete years.
func (f *Financials) AnnualMetrics(ctx context.Context, kind StatementKind) (map[int]Values, bool) {
	out := make(map[int]Values)
	for y, rec := range f.load(ctx).annual[kind] {
		out[y] = rec.Values.Clone()
	}
	return out, len(out) > 0
}

// AnnualMetricsForYear returns one year's record.
func (f *Financials) AnnualMetricsForYear(ctx context.Context, kind StatementKind, year int) (Values, bool) {
	rec, ok := f.load(ctx).annual[kind][year]
	if !ok {
		return nil, false
	}
	return rec.Values.Clone(), true
}

// =============================================================================
// DISPATCH BY FREQUENCY
// =============================================================================

// Query selects a view. Year 0 means all years.
type Query struct {
	Year int
	Freq Frequency
}

// MetricResult carries exactly one of its fields, depending on the query.
type MetricResult struct {
	ByDate map[string]Value // quarterly
	ByYear map[int]Value    // annual, all years
	Scalar *Value           // annual, one year
}

// Metric is the single-metric accessor for either frequency.
func (f *Financials) Metric(ctx context.Context, kind StatementKind, metric string, q Query) (MetricResult, bool) {
	switch q.Freq {
	case Annual:
		if q.Year != 0 {
			v, ok := f.AnnualMetricForYear(ctx, kind, metric, q.Year)
			if !ok {
				return MetricResult{}, false
			}
			return MetricResult{Scalar: &v}, true
		}
		m, ok := f.AnnualMetric(ctx, kind, metric)
		return MetricResult{ByYear: m}, ok
	default:
		m, ok := f.QuarterlyMetric(ctx, kind, metric, q.Year)
		return MetricResult{ByDate: m}, ok
	}
}

// MetricsResult carries exactly one of its fields, depending on the query.
type MetricsResult struct {
	ByDate map[string]Values // quarterly
	ByYear map[int]Values    // annual, all years
	Year   Values            // annual, one year
}

// AllMetrics is the all-metrics accessor for either frequency.
func (f *Financials) AllMetrics(ctx context.Context, kind StatementKind, q Query) (MetricsResult, bool) {
	switch q.Freq {
	case Annual:
		if q.Year != 0 {
			v, ok := f.AnnualMetricsForYear(ctx, kind, q.Year)
			return MetricsResult{Year: v}, ok
		}
		m, ok := f.AnnualMetrics(ctx, kind)
		return MetricsResult{ByYear: m}, ok
	default:
		m, ok := f.QuarterlyMetrics(ctx, kind, q.Year)
		return MetricsResult{ByDate: m}, ok
	}
}

// =============================================================================
// DERIVED + EXPORT
// =============================================================================

// Derived returns a calculator over the loaded quarterly view.
func (f *Financials) Derived(ctx context.Context) *Calculator {
	return NewCalculator(f.load(ctx).quarters)
}

// Export sends every statement with data to the sink and returns the IDs
// the sink assigned, in StatementKinds order.
func (f *Financials) Export(ctx context.Context, sink Sink) ([]string, error) {
	d := f.load(ctx)
	var ids []string
	for _, kind := range StatementKinds {
		if len(d.quarters[kind]) == 0 {
			continue
		}
		batch := ExportBatch{
			Symbol:    f.symbol,
			Kind:      kind,
			Quarterly: d.quarters[kind],
			Annual:    d.annual[kind],
		}
		id, err := sink.Export(ctx, batch)
		if err != nil {
			return ids, fmt.Errorf("export %s %s: %w", f.symbol, kind, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
