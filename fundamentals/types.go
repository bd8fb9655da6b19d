/*
Package fundamentals provides the corporate-fundamentals engine.

PURPOSE:
  Turns a raw quarterly fundamentals payload (balance sheet, income statement,
  cash flow) into cleaned quarterly series, annual roll-ups and derived
  cross-statement indicators. Everything in this package works on in-memory
  structures; fetching, persistence and rendering belong to callers.

KEY CONCEPTS IN THIS FILE (types.go):
  - StatementKind: which financial statement a record belongs to
  - AggregationPolicy: how four quarters collapse into one annual value
  - Value: a numeric-or-absent metric value
  - QuarterRecord / AnnualRecord: the two views served to callers
  - Series: a derived year -> value indicator

DATA FLOW:
  Payload -> Ingest -> []QuarterRecord -> RollupEngine -> AnnualRecord
                                       \-> Calculator -> Series

SEE ALSO:
  - policy.go: Policy table and combinators
  - ingest.go: Payload parsing
  - rollup.go: Annual roll-up
  - derived.go: ROIC, EPS, shares outstanding, strict-sum series
  - financials.go: Query surface with lazy fetch
*/
package fundamentals

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// STATEMENT KIND
// =============================================================================

// StatementKind identifies a financial statement.
type StatementKind string

const (
	BalanceSheet    StatementKind = "Balance_Sheet"
	IncomeStatement StatementKind = "Income_Statement"
	CashFlow        StatementKind = "Cash_Flow"
)

// StatementKinds lists every kind in a stable order.
var StatementKinds = []StatementKind{BalanceSheet, IncomeStatement, CashFlow}

// ParseStatementKind accepts the wire names ("Balance_Sheet") as well as the
// lower-case URL forms ("balance_sheet").
func ParseStatementKind(s string) (StatementKind, error) {
	for _, k := range StatementKinds {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatementKind, s)
}

func (k StatementKind) String() string { return string(k) }

// =============================================================================
// AGGREGATION POLICY
// =============================================================================

// AggregationPolicy selects how quarterly values become one annual value.
type AggregationPolicy string

const (
	PolicySum     AggregationPolicy = "sum"     // add all quarters (flows: revenue, net income)
	PolicyLatest  AggregationPolicy = "latest"  // most recent quarter (point-in-time balances)
	PolicyAverage AggregationPolicy = "average" // mean of quarters (share counts)
)

// ParseAggregationPolicy converts a config string into a policy.
func ParseAggregationPolicy(s string) (AggregationPolicy, error) {
	switch AggregationPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicySum:
		return PolicySum, nil
	case PolicyLatest:
		return PolicyLatest, nil
	case PolicyAverage:
		return PolicyAverage, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// =============================================================================
// VALUE - numeric or absent
// =============================================================================

// Value is a metric value that may be absent (null, empty, "N/A", unparseable).
type Value struct {
	Float float64
	Valid bool
}

// Absent is the zero Value.
var Absent = Value{}

// Number wraps a float as a present Value.
func Number(f float64) Value { return Value{Float: f, Valid: true} }

// OrZero returns the value, or 0 when absent.
func (v Value) OrZero() float64 {
	if !v.Valid {
		return 0
	}
	return v.Float
}

func (v Value) String() string {
	if !v.Valid {
		return "null"
	}
	return fmt.Sprintf("%g", v.Float)
}

// MarshalJSON renders absent and non-finite values as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid || !IsFinite(v.Float) {
		return []byte("null"), nil
	}
	return json.Marshal(v.Float)
}

// UnmarshalJSON accepts anything ParseValue accepts.
func (v *Value) UnmarshalJSON(data []byte) error {
	*v = ParseValue(data)
	return nil
}

// Values maps metric names to values.
type Values map[string]Value

// Keys returns metric names in sorted order.
func (vs Values) Keys() []string {
	keys := make([]string, 0, len(vs))
	for k := range vs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy callers may modify.
func (vs Values) Clone() Values {
	if vs == nil {
		return nil
	}
	out := make(Values, len(vs))
	for k, v := range vs {
		out[k] = v
	}
	return out
}

// =============================================================================
// RECORDS
// =============================================================================

// QuarterRecord is one reported quarter of one statement. It is never
// modified after ingestion.
type QuarterRecord struct {
	Date       Date
	FilingDate string
	Currency   string
	Values     Values
}

// Year is the calendar year of the report date.
func (q QuarterRecord) Year() int { return q.Date.Year() }

// Get returns the value for metric, Absent if the metric was not reported.
func (q QuarterRecord) Get(metric string) Value { return q.Values[metric] }

// Has reports whether the metric key appeared in the quarter at all.
func (q QuarterRecord) Has(metric string) bool {
	_, ok := q.Values[metric]
	return ok
}

// Clone returns a copy whose Values are not shared.
func (q QuarterRecord) Clone() QuarterRecord {
	q.Values = q.Values.Clone()
	return q
}

// AnnualRecord is the roll-up of a year with exactly four quarters.
type AnnualRecord struct {
	Year   int
	Values Values
}

// Clone returns a copy whose Values are not shared.
func (a AnnualRecord) Clone() AnnualRecord {
	a.Values = a.Values.Clone()
	return a
}

// Frequency selects the quarterly or annual view.
type Frequency string

const (
	Quarterly Frequency = "quarterly"
	Annual    Frequency = "annual"
)

// ParseFrequency defaults to Quarterly for an empty string.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(strings.ToLower(s)) {
	case "", Quarterly:
		return Quarterly, nil
	case Annual:
		return Annual, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFrequency, s)
}

// Series is a derived indicator keyed by calendar year. Years without a
// value are simply missing.
type Series map[int]float64

// Years returns the series years in ascending order.
func (s Series) Years() []int {
	years := make([]int, 0, len(s))
	for y := range s {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
