package fundamentals

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// unreported lists the string markers the data source uses for a missing value.
var unreported = map[string]bool{
	"":     true,
	"N/A":  true,
	"NA":   true,
	"None": true,
	"null": true,
	"-":    true,
}

// ParseValue converts one raw payload value (string, number or null) into a
// Value. Anything that is not a finite number is Absent. This is the only
// place untyped payload data becomes numeric.
func ParseValue(raw json.RawMessage) Value {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Absent
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Absent
		}
		return ParseString(s)
	}

	// Bare JSON number; booleans, objects and arrays fail to parse.
	return ParseString(string(raw))
}

// ParseString parses a decimal string such as "1234.56" or "-1.2e9".
func ParseString(s string) Value {
	s = strings.TrimSpace(s)
	if unreported[s] {
		return Absent
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Absent
	}
	f, _ := d.Float64()
	if !IsFinite(f) {
		return Absent
	}
	return Number(f)
}

// IsFinite reports whether f is neither NaN nor infinite.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// finiteValue is Number(f), or Absent when f overflowed.
func finiteValue(f float64) Value {
	if !IsFinite(f) {
		return Absent
	}
	return Number(f)
}

// FormatValue renders a value as exact decimal text, empty when absent.
// Used by stores that persist values as TEXT.
func FormatValue(v Value) string {
	if !v.Valid || !IsFinite(v.Float) {
		return ""
	}
	return decimal.NewFromFloat(v.Float).String()
}
