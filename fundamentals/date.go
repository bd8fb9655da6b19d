package fundamentals

import (
	"strconv"
	"time"
)

// =============================================================================
// DATE - Report date of a quarter (day granularity, UTC)
// =============================================================================

const dateLayout = "2006-01-02"

type Date struct {
	Time time.Time
}

// NewDate builds a UTC date.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD report date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// Comparison
func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool  { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool  { return d.Time.Equal(other.Time) }

// Properties
func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) IsZero() bool      { return d.Time.IsZero() }

func (d Date) String() string { return d.Time.Format(dateLayout) }

// InYear reports whether the date string starts with the given year. This is
// the prefix match used by quarterly year filters.
func (d Date) InYear(year int) bool {
	s := d.String()
	prefix := strconv.Itoa(year)
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
