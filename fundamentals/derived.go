/*
derived.go - Derived cross-statement indicators

PURPOSE:
  Computes yearly indicators straight from the quarterly view. None of them
  read AnnualRecords; each applies its own completeness rule.

SERIES:
  Strict-sum (ExcludeMissing, exactly 4 present quarters, else year omitted):
    revenue              Income_Statement.totalRevenue
    operating_cash_flow  Cash_Flow.totalCashFromOperatingActivities
    net_income           Cash_Flow.netIncome
    capex                Cash_Flow.capitalExpenditures

  shares_outstanding:
    Mean of usable Balance_Sheet.commonStockSharesOutstanding quarters per
    year. Years in the balance-sheet range without a usable quarter take the
    earliest usable year's mean.

  roic:
    NOPAT / invested capital where
      NOPAT            = sum(operatingIncome) - sum(incomeTaxExpense)   (ZeroFill, no gate)
      invested capital = mean(totalAssets) - mean(totalCurrentLiabilities) (ExcludeMissing)
    Skipped when either mean has no input or invested capital == 0.

  eps:
    net_income / shares_outstanding for years present in both, skipped
    when shares == 0.

ABSENT vs EMPTY:
  Each method returns ok=false when its source statements have no quarters
  at all; an empty Series with ok=true means data exists but no year qualified.

SEE ALSO:
  - strategy.go: ZeroFill / ExcludeMissing
*/
package fundamentals

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metric names read by the calculator.
const (
	MetricTotalRevenue            = "totalRevenue"
	MetricOperatingCashFlow       = "totalCashFromOperatingActivities"
	MetricNetIncome               = "netIncome"
	MetricCapitalExpenditures     = "capitalExpenditures"
	MetricSharesOutstanding       = "commonStockSharesOutstanding"
	MetricOperatingIncome         = "operatingIncome"
	MetricIncomeTaxExpense        = "incomeTaxExpense"
	MetricTotalAssets             = "totalAssets"
	MetricTotalCurrentLiabilities = "totalCurrentLiabilities"
)

// Derived series names.
const (
	SeriesRevenue           = "revenue"
	SeriesOperatingCashFlow = "operating_cash_flow"
	SeriesNetIncome         = "net_income"
	SeriesCapex             = "capex"
	SeriesSharesOutstanding = "shares_outstanding"
	SeriesROIC              = "roic"
	SeriesEPS               = "eps"
)

// SeriesNames lists every derived series in display order.
var SeriesNames = []string{
	SeriesRevenue,
	SeriesOperatingCashFlow,
	SeriesNetIncome,
	SeriesCapex,
	SeriesSharesOutstanding,
	SeriesROIC,
	SeriesEPS,
}

// Calculator derives indicators from quarterly records. It holds no cache;
// every call recomputes.
type Calculator struct {
	quarters map[StatementKind][]QuarterRecord
}

// NewCalculator wraps a quarterly view. The map and its slices are read only.
func NewCalculator(quarters map[StatementKind][]QuarterRecord) *Calculator {
	if quarters == nil {
		quarters = map[StatementKind][]QuarterRecord{}
	}
	return &Calculator{quarters: quarters}
}

// =============================================================================
// STRICT-SUM SERIES
// =============================================================================

// YearlyRevenue sums totalRevenue over years with four reported quarters.
func (c *Calculator) YearlyRevenue() (Series, bool) {
	return c.strictSum(IncomeStatement, MetricTotalRevenue)
}

// YearlyOperatingCashFlow sums cash from operations over complete years.
func (c *Calculator) YearlyOperatingCashFlow() (Series, bool) {
	return c.strictSum(CashFlow, MetricOperatingCashFlow)
}

// YearlyNetIncome uses the cash-flow statement's netIncome, which has longer
// history than the income statement's.
func (c *Calculator) YearlyNetIncome() (Series, bool) {
	return c.strictSum(CashFlow, MetricNetIncome)
}

// YearlyCapex sums capitalExpenditures over complete years.
func (c *Calculator) YearlyCapex() (Series, bool) {
	return c.strictSum(CashFlow, MetricCapitalExpenditures)
}

func (c *Calculator) strictSum(kind StatementKind, metric string) (Series, bool) {
	quarters := c.quarters[kind]
	if len(quarters) == 0 {
		return nil, false
	}

	out := make(Series)
	for _, b := range BucketByYear(kind, quarters) {
		values, present := ExcludeMissing.Gather(b.Quarters, metric)
		if present != QuartersPerYear {
			continue
		}
		if sum := floats.Sum(values); IsFinite(sum) {
			out[b.Year] = sum
		}
	}
	return out, true
}

// =============================================================================
// SHARES OUTSTANDING
// =============================================================================

// SharesOutstanding returns the average share count per balance-sheet year,
// backfilling gaps with the earliest usable year's average.
func (c *Calculator) SharesOutstanding() (Series, bool) {
	quarters := c.quarters[BalanceSheet]
	if len(quarters) == 0 {
		return nil, false
	}

	buckets := BucketByYear(BalanceSheet, quarters)
	averages := make(map[int]float64)
	earliestYear, found := 0, false
	for _, b := range buckets {
		values, present := ExcludeMissing.Gather(b.Quarters, MetricSharesOutstanding)
		if present == 0 {
			continue
		}
		avg := stat.Mean(values, nil)
		if !IsFinite(avg) {
			continue
		}
		averages[b.Year] = avg
		if !found || b.Year < earliestYear {
			earliestYear, found = b.Year, true
		}
	}
	if !found {
		return nil, false
	}

	fallback := averages[earliestYear]
	out := make(Series, len(buckets))
	for _, b := range buckets {
		if avg, ok := averages[b.Year]; ok {
			out[b.Year] = avg
			continue
		}
		out[b.Year] = fallback
	}
	return out, true
}

// =============================================================================
// ROIC
// =============================================================================

// YearlyROIC returns NOPAT / invested capital per income-statement year.
func (c *Calculator) YearlyROIC() (Series, bool) {
	income := c.quarters[IncomeStatement]
	balance := c.quarters[BalanceSheet]
	if len(income) == 0 || len(balance) == 0 {
		return nil, false
	}

	balanceByYear := make(map[int][]QuarterRecord)
	for _, b := range BucketByYear(BalanceSheet, balance) {
		balanceByYear[b.Year] = b.Quarters
	}

	out := make(Series)
	for _, b := range BucketByYear(IncomeStatement, income) {
		opIncome, _ := ZeroFill.Gather(b.Quarters, MetricOperatingIncome)
		tax, _ := ZeroFill.Gather(b.Quarters, MetricIncomeTaxExpense)
		nopat := floats.Sum(opIncome) - floats.Sum(tax)

		ic, ok := investedCapital(balanceByYear[b.Year])
		if !ok || ic == 0 || !IsFinite(ic) {
			continue
		}
		if roic := nopat / ic; IsFinite(roic) {
			out[b.Year] = roic
		}
	}
	return out, true
}

// investedCapital is mean(totalAssets) - mean(totalCurrentLiabilities) over
// the quarters that reported each.
func investedCapital(quarters []QuarterRecord) (float64, bool) {
	assets, nAssets := ExcludeMissing.Gather(quarters, MetricTotalAssets)
	liabilities, nLiab := ExcludeMissing.Gather(quarters, MetricTotalCurrentLiabilities)
	if nAssets == 0 || nLiab == 0 {
		return 0, false
	}
	return stat.Mean(assets, nil) - stat.Mean(liabilities, nil), true
}

// =============================================================================
// EPS
// =============================================================================

// YearlyEPS divides net income by average shares outstanding.
func (c *Calculator) YearlyEPS() (Series, bool) {
	netIncome, ok := c.YearlyNetIncome()
	if !ok || len(netIncome) == 0 {
		return nil, false
	}
	shares, ok := c.SharesOutstanding()
	if !ok || len(shares) == 0 {
		return nil, false
	}

	out := make(Series)
	for _, year := range netIncome.Years() {
		ni := netIncome[year]
		sh, ok := shares[year]
		if !ok || sh == 0 {
			continue
		}
		if eps := ni / sh; IsFinite(eps) {
			out[year] = eps
		}
	}
	return out, true
}

// =============================================================================
// LOOKUP
// =============================================================================

// Series returns a derived series by name.
func (c *Calculator) Series(name string) (Series, bool, error) {
	var fn func() (Series, bool)
	switch name {
	case SeriesRevenue:
		fn = c.YearlyRevenue
	case SeriesOperatingCashFlow:
		fn = c.YearlyOperatingCashFlow
	case SeriesNetIncome:
		fn = c.YearlyNetIncome
	case SeriesCapex:
		fn = c.YearlyCapex
	case SeriesSharesOutstanding:
		fn = c.SharesOutstanding
	case SeriesROIC:
		fn = c.YearlyROIC
	case SeriesEPS:
		fn = c.YearlyEPS
	default:
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownSeries, name)
	}
	s, ok := fn()
	return s, ok, nil
}

// Summary returns every available series keyed by name. Absent series are
// left out.
func (c *Calculator) Summary() map[string]Series {
	out := make(map[string]Series, len(SeriesNames))
	for _, name := range SeriesNames {
		if s, ok, _ := c.Series(name); ok {
			out[name] = s
		}
	}
	return out
}

// SortedSeriesNames returns the keys of a summary in display order.
func SortedSeriesNames(summary map[string]Series) []string {
	names := make([]string, 0, len(summary))
	for n := range summary {
		names = append(names, n)
	}
	order := make(map[string]int, len(SeriesNames))
	for i, n := range SeriesNames {
		order[n] = i
	}
	sort.Slice(names, func(i, j int) bool { return order[names[i]] < order[names[j]] })
	return names
}
