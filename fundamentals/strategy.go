package fundamentals

// NullStrategy decides what an absent quarterly value contributes.
//
// The two strategies are kept separate on purpose: annual roll-ups and the
// ROIC numerator zero-fill, while strict-sum series, share counts and the
// ROIC denominator exclude missing quarters.
type NullStrategy int

const (
	// ZeroFill counts an absent value as 0.
	ZeroFill NullStrategy = iota
	// ExcludeMissing drops absent values.
	ExcludeMissing
)

func (s NullStrategy) String() string {
	switch s {
	case ZeroFill:
		return "zero_fill"
	case ExcludeMissing:
		return "exclude_missing"
	}
	return "unknown"
}

// Gather collects metric values from quarters in order. present is the
// number of quarters that actually reported a value.
func (s NullStrategy) Gather(quarters []QuarterRecord, metric string) (values []float64, present int) {
	values = make([]float64, 0, len(quarters))
	for _, q := range quarters {
		v := q.Get(metric)
		if v.Valid {
			present++
		}
		if v.Valid || s == ZeroFill {
			values = append(values, v.OrZero())
		}
	}
	return values, present
}
