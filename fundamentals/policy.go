/*
policy.go - Aggregation policy table and combinators

PURPOSE:
  Decides how four quarterly values of a metric become one annual value.
  Flows (revenue, cash from operations) are summed, point-in-time balances
  take the latest quarter, share counts are averaged.

RESOLUTION ORDER:
  1. Explicit (kind, metric) override
  2. Default policy of the statement kind

DEFAULTS:
  Balance_Sheet     LATEST   overrides: commonStock, commonStockSharesOutstanding -> AVERAGE
  Income_Statement  SUM      overrides: margin, ratio -> AVERAGE
  Cash_Flow         SUM      overrides: beginPeriodCashFlow, endPeriodCashFlow -> LATEST

IMMUTABILITY:
  A PolicyTable is built once at process start and never mutated. With and
  WithDefault return modified copies, so a table can be shared freely across
  goroutines.

SEE ALSO:
  - rollup.go: Applies Resolve + Combine per metric
  - factory/policy.go: Loads overrides from YAML/JSON
*/
package fundamentals

import (
	"gonum.org/v1/gonum/floats"
)

// =============================================================================
// POLICY TABLE
// =============================================================================

// PolicyTable maps (kind, metric) to an AggregationPolicy.
type PolicyTable struct {
	defaults  map[StatementKind]AggregationPolicy
	overrides map[StatementKind]map[string]AggregationPolicy
}

// DefaultPolicyTable returns the built-in table.
func DefaultPolicyTable() *PolicyTable {
	return &PolicyTable{
		defaults: map[StatementKind]AggregationPolicy{
			BalanceSheet:    PolicyLatest,
			IncomeStatement: PolicySum,
			CashFlow:        PolicySum,
		},
		overrides: map[StatementKind]map[string]AggregationPolicy{
			BalanceSheet: {
				"commonStock":                  PolicyAverage,
				"commonStockSharesOutstanding": PolicyAverage,
			},
			IncomeStatement: {
				"margin": PolicyAverage,
				"ratio":  PolicyAverage,
			},
			CashFlow: {
				"endPeriodCashFlow":   PolicyLatest,
				"beginPeriodCashFlow": PolicyLatest,
			},
		},
	}
}

// Resolve returns the policy for a metric. It never fails: unknown metrics
// use the kind default, unknown kinds use SUM.
func (t *PolicyTable) Resolve(kind StatementKind, metric string) AggregationPolicy {
	if p, ok := t.overrides[kind][metric]; ok {
		return p
	}
	if p, ok := t.defaults[kind]; ok {
		return p
	}
	return PolicySum
}

// Default returns the default policy of a kind.
func (t *PolicyTable) Default(kind StatementKind) AggregationPolicy {
	if p, ok := t.defaults[kind]; ok {
		return p
	}
	return PolicySum
}

// Overrides returns a copy of the per-metric entries of a kind.
func (t *PolicyTable) Overrides(kind StatementKind) map[string]AggregationPolicy {
	out := make(map[string]AggregationPolicy, len(t.overrides[kind]))
	for m, p := range t.overrides[kind] {
		out[m] = p
	}
	return out
}

// With returns a copy of the table with one metric override added.
func (t *PolicyTable) With(kind StatementKind, metric string, p AggregationPolicy) *PolicyTable {
	c := t.clone()
	if c.overrides[kind] == nil {
		c.overrides[kind] = make(map[string]AggregationPolicy)
	}
	c.overrides[kind][metric] = p
	return c
}

// WithDefault returns a copy of the table with a new kind default.
func (t *PolicyTable) WithDefault(kind StatementKind, p AggregationPolicy) *PolicyTable {
	c := t.clone()
	c.defaults[kind] = p
	return c
}

func (t *PolicyTable) clone() *PolicyTable {
	c := &PolicyTable{
		defaults:  make(map[StatementKind]AggregationPolicy, len(t.defaults)),
		overrides: make(map[StatementKind]map[string]AggregationPolicy, len(t.overrides)),
	}
	for k, p := range t.defaults {
		c.defaults[k] = p
	}
	for k, m := range t.overrides {
		c.overrides[k] = make(map[string]AggregationPolicy, len(m))
		for metric, p := range m {
			c.overrides[k][metric] = p
		}
	}
	return c
}

// =============================================================================
// COMBINATORS - one pure function per policy
// =============================================================================

// Combinator folds quarterly values (most recent first) into one value.
type Combinator func(values []float64) float64

var policyCombinators = map[AggregationPolicy]Combinator{
	PolicySum: func(values []float64) float64 {
		return floats.Sum(values)
	},
	PolicyAverage: func(values []float64) float64 {
		if len(values) == 0 {
			return 0
		}
		return floats.Sum(values) / float64(len(values))
	},
	PolicyLatest: func(values []float64) float64 {
		if len(values) == 0 {
			return 0
		}
		return values[0]
	},
}

// Combine applies the policy's combinator. Unknown policies sum.
func Combine(p AggregationPolicy, values []float64) float64 {
	fn, ok := policyCombinators[p]
	if !ok {
		fn = policyCombinators[PolicySum]
	}
	return fn(values)
}
