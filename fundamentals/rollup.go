/*
rollup.go - Annual roll-up engine

PURPOSE:
  Collapses each complete year (exactly four quarters) of a statement into
  one AnnualRecord, metric by metric, using the PolicyTable.

ALGORITHM (per kind, years newest first):
  1. Group quarters into YearBuckets; skip any bucket without exactly 4.
  2. Vocabulary = union of the bucket's metric keys.
  3. For each metric gather the 4 values newest first, zero-filling absent
     ones (ZeroFill), then apply the resolved policy:
       SUM     -> sum of the 4
       AVERAGE -> sum / 4
       LATEST  -> newest quarter's zero-filled value
  4. A metric with no present value in any of the 4 quarters is recorded
     as Absent rather than 0.

NULL STRATEGY:
  The roll-up deliberately zero-fills, while derived.go excludes missing
  values. Both strategies are named in strategy.go and must stay distinct.

SEE ALSO:
  - policy.go: Resolve and Combine
  - derived.go: The exclude-missing counterpart
*/
package fundamentals

import (
	"sort"
)

// QuartersPerYear is the completeness gate for annual figures.
const QuartersPerYear = 4

// YearBucket groups one kind's quarters of one calendar year. It only lives
// for the duration of a roll-up.
type YearBucket struct {
	Kind     StatementKind
	Year     int
	Quarters []QuarterRecord // newest first
}

// Complete reports whether the bucket holds exactly four quarters.
func (b YearBucket) Complete() bool { return len(b.Quarters) == QuartersPerYear }

// vocabulary returns the union of metric keys in the bucket, sorted.
func (b YearBucket) vocabulary() []string {
	seen := make(map[string]bool)
	for _, q := range b.Quarters {
		for m := range q.Values {
			seen[m] = true
		}
	}
	metrics := make([]string, 0, len(seen))
	for m := range seen {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)
	return metrics
}

// BucketByYear groups a descending quarter sequence into year buckets,
// returned newest year first.
func BucketByYear(kind StatementKind, quarters []QuarterRecord) []YearBucket {
	byYear := make(map[int][]QuarterRecord)
	for _, q := range quarters {
		byYear[q.Year()] = append(byYear[q.Year()], q)
	}

	buckets := make([]YearBucket, 0, len(byYear))
	for y, qs := range byYear {
		sorted := make([]QuarterRecord, len(qs))
		copy(sorted, qs)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.After(sorted[j].Date) })
		buckets = append(buckets, YearBucket{Kind: kind, Year: y, Quarters: sorted})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Year > buckets[j].Year })
	return buckets
}

// =============================================================================
// ROLLUP ENGINE
// =============================================================================

// RollupEngine computes AnnualRecords with a policy table.
type RollupEngine struct {
	Policies *PolicyTable
}

// NewRollupEngine falls back to the default table when policies is nil.
func NewRollupEngine(policies *PolicyTable) *RollupEngine {
	if policies == nil {
		policies = DefaultPolicyTable()
	}
	return &RollupEngine{Policies: policies}
}

// Rollup returns one AnnualRecord per complete year.
func (e *RollupEngine) Rollup(kind StatementKind, quarters []QuarterRecord) map[int]AnnualRecord {
	annual := make(map[int]AnnualRecord)
	for _, bucket := range BucketByYear(kind, quarters) {
		if !bucket.Complete() {
			continue
		}
		annual[bucket.Year] = e.rollupYear(bucket)
	}
	return annual
}

func (e *RollupEngine) rollupYear(b YearBucket) AnnualRecord {
	rec := AnnualRecord{Year: b.Year, Values: make(Values)}
	for _, metric := range b.vocabulary() {
		values, present := ZeroFill.Gather(b.Quarters, metric)
		if present == 0 {
			rec.Values[metric] = Absent
			continue
		}
		policy := e.Policies.Resolve(b.Kind, metric)
		rec.Values[metric] = finiteValue(Combine(policy, values))
	}
	return rec
}
