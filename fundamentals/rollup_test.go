package fundamentals_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fundamentals-engine/fundamentals"
)

// =============================================================================
// POLICY TABLE TESTS
// =============================================================================

func TestPolicyTable_Defaults(t *testing.T) {
	tbl := fundamentals.DefaultPolicyTable()

	assert.Equal(t, fundamentals.PolicyLatest, tbl.Resolve(fundamentals.BalanceSheet, "totalAssets"))
	assert.Equal(t, fundamentals.PolicySum, tbl.Resolve(fundamentals.IncomeStatement, "totalRevenue"))
	assert.Equal(t, fundamentals.PolicySum, tbl.Resolve(fundamentals.CashFlow, "capitalExpenditures"))
}

func TestPolicyTable_OverrideWinsOverDefault(t *testing.T) {
	tbl := fundamentals.DefaultPolicyTable()

	assert.Equal(t, fundamentals.PolicyAverage, tbl.Resolve(fundamentals.BalanceSheet, "commonStockSharesOutstanding"))
	assert.Equal(t, fundamentals.PolicyLatest, tbl.Resolve(fundamentals.CashFlow, "endPeriodCashFlow"))
	assert.Equal(t, fundamentals.PolicyAverage, tbl.Resolve(fundamentals.IncomeStatement, "margin"))
}

func TestPolicyTable_WithIsCopyOnWrite(t *testing.T) {
	base := fundamentals.DefaultPolicyTable()
	custom := base.With(fundamentals.IncomeStatement, "totalRevenue", fundamentals.PolicyLatest).
		WithDefault(fundamentals.BalanceSheet, fundamentals.PolicyAverage)

	assert.Equal(t, fundamentals.PolicyLatest, custom.Resolve(fundamentals.IncomeStatement, "totalRevenue"))
	assert.Equal(t, fundamentals.PolicyAverage, custom.Resolve(fundamentals.BalanceSheet, "totalAssets"))

	// Original untouched
	assert.Equal(t, fundamentals.PolicySum, base.Resolve(fundamentals.IncomeStatement, "totalRevenue"))
	assert.Equal(t, fundamentals.PolicyLatest, base.Resolve(fundamentals.BalanceSheet, "totalAssets"))
}

func TestCombine(t *testing.T) {
	values := []float64{40, 30, 20, 10}
	assert.Equal(t, 100.0, fundamentals.Combine(fundamentals.PolicySum, values))
	assert.Equal(t, 25.0, fundamentals.Combine(fundamentals.PolicyAverage, values))
	assert.Equal(t, 40.0, fundamentals.Combine(fundamentals.PolicyLatest, values))
}

// =============================================================================
// ROLLUP TESTS
// =============================================================================

func rollup(t *testing.T, kind fundamentals.StatementKind, qs quarters) map[int]fundamentals.AnnualRecord {
	t.Helper()
	ingested := ingest(t, map[fundamentals.StatementKind]quarters{kind: qs})
	return fundamentals.NewRollupEngine(nil).Rollup(kind, ingested[kind])
}

func TestRollup_IncomeStatement_SumsFourQuarters(t *testing.T) {
	// GIVEN: totalRevenue 10,20,30,40 across 2023
	// WHEN: Rolling up
	// THEN: Annual SUM is 100

	annual := rollup(t, fundamentals.IncomeStatement, metric("totalRevenue", 2023, "40", "30", "20", "10"))

	require.Contains(t, annual, 2023)
	v := annual[2023].Values["totalRevenue"]
	require.True(t, v.Valid)
	assert.Equal(t, 100.0, v.Float)
}

func TestRollup_SharesOutstanding_AverageOverride(t *testing.T) {
	annual := rollup(t, fundamentals.BalanceSheet,
		metric("commonStockSharesOutstanding", 2023, "102", "102", "100", "100"))

	v := annual[2023].Values["commonStockSharesOutstanding"]
	require.True(t, v.Valid)
	assert.Equal(t, 101.0, v.Float)
}

func TestRollup_BalanceSheet_LatestIsMostRecentQuarter(t *testing.T) {
	annual := rollup(t, fundamentals.BalanceSheet, metric("totalAssets", 2023, "500", "400", "300", "200"))

	assert.Equal(t, 500.0, annual[2023].Values["totalAssets"].Float)
}

func TestRollup_IncompleteYearExcluded(t *testing.T) {
	// GIVEN: 2022 with only three quarters, 2023 complete
	// THEN: Only 2023 has an annual record
	qs := merge(
		metric("totalRevenue", 2023, "1", "1", "1", "1"),
		metric("totalRevenue", 2022, "5", "5", "5"),
	)

	annual := rollup(t, fundamentals.IncomeStatement, qs)

	assert.Contains(t, annual, 2023)
	assert.NotContains(t, annual, 2022)
}

func TestRollup_ZeroFillsMissingValues(t *testing.T) {
	// GIVEN: A complete year where one quarter reports "" for revenue
	// THEN: The empty quarter counts as 0 (SUM) and AVERAGE divides by 4
	qs := merge(
		metric("totalRevenue", 2023, "10", "", "10", "10"),
		metric("margin", 2023, "0.4", nil, "0.4", "0.4"),
	)

	annual := rollup(t, fundamentals.IncomeStatement, qs)

	assert.Equal(t, 30.0, annual[2023].Values["totalRevenue"].Float)
	assert.InDelta(t, 0.3, annual[2023].Values["margin"].Float, 1e-9)
}

func TestRollup_LatestZeroFilled(t *testing.T) {
	// Most recent quarter unreported: LATEST yields its zero-filled value.
	annual := rollup(t, fundamentals.BalanceSheet, metric("cash", 2023, "N/A", "7", "7", "7"))

	v := annual[2023].Values["cash"]
	require.True(t, v.Valid)
	assert.Equal(t, 0.0, v.Float)
}

func TestRollup_AllAbsentMetricIsExplicitAbsent(t *testing.T) {
	qs := merge(
		metric("totalRevenue", 2023, "1", "1", "1", "1"),
		metric("otherItems", 2023, nil, "", "N/A", nil),
	)

	annual := rollup(t, fundamentals.IncomeStatement, qs)

	v, ok := annual[2023].Values["otherItems"]
	require.True(t, ok, "metric key should be present")
	assert.False(t, v.Valid)
}

func TestRollup_OverflowingSumIsAbsent(t *testing.T) {
	// GIVEN: Four finite quarters whose sum exceeds float64
	// THEN: The annual value is present as a key but Absent
	qs := merge(
		metric("totalRevenue", 2023, "1", "1", "1", "1"),
		metric("hugeItem", 2023, "1e308", "1e308", "1e308", "1e308"),
	)

	annual := rollup(t, fundamentals.IncomeStatement, qs)

	v, ok := annual[2023].Values["hugeItem"]
	require.True(t, ok)
	assert.False(t, v.Valid)
	assert.Equal(t, 4.0, annual[2023].Values["totalRevenue"].Float)
}

func TestRollup_VocabularyIsUnionOfQuarters(t *testing.T) {
	// A metric only reported in the oldest quarter still appears.
	qs := merge(
		metric("totalRevenue", 2023, "1", "1", "1", "1"),
		quarters{"2023-03-31": {"oneOff": "9"}},
	)

	annual := rollup(t, fundamentals.IncomeStatement, qs)

	assert.Equal(t, 9.0, annual[2023].Values["oneOff"].Float)
}

func TestRollup_CustomPolicyTable(t *testing.T) {
	tbl := fundamentals.DefaultPolicyTable().With(fundamentals.IncomeStatement, "totalRevenue", fundamentals.PolicyAverage)
	ingested := ingest(t, map[fundamentals.StatementKind]quarters{
		fundamentals.IncomeStatement: metric("totalRevenue", 2023, "40", "30", "20", "10"),
	})

	annual := fundamentals.NewRollupEngine(tbl).Rollup(fundamentals.IncomeStatement, ingested[fundamentals.IncomeStatement])

	assert.Equal(t, 25.0, annual[2023].Values["totalRevenue"].Float)
}

func TestBucketByYear_NewestFirst(t *testing.T) {
	ingested := ingest(t, map[fundamentals.StatementKind]quarters{
		fundamentals.IncomeStatement: merge(
			metric("x", 2021, "1", "1"),
			metric("x", 2023, "1"),
			metric("x", 2022, "1", "1", "1", "1"),
		),
	})

	buckets := fundamentals.BucketByYear(fundamentals.IncomeStatement, ingested[fundamentals.IncomeStatement])

	require.Len(t, buckets, 3)
	assert.Equal(t, []int{2023, 2022, 2021}, []int{buckets[0].Year, buckets[1].Year, buckets[2].Year})
	assert.True(t, buckets[1].Complete())
	assert.False(t, buckets[0].Complete())
}
