package fundamentals_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/warp/fundamentals-engine/fundamentals"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// quarters maps report date -> metric -> raw wire value.
type quarters map[string]map[string]any

// quarterDates returns the four quarter-end dates of a year, newest first.
func quarterDates(year int) []string {
	return []string{
		fmt.Sprintf("%d-12-31", year),
		fmt.Sprintf("%d-09-30", year),
		fmt.Sprintf("%d-06-30", year),
		fmt.Sprintf("%d-03-31", year),
	}
}

// metric places values (newest first) on a year's quarter-end dates. Fewer
// than four values leave the oldest quarters out entirely.
func metric(name string, year int, values ...any) quarters {
	out := make(quarters)
	for i, v := range values {
		out[quarterDates(year)[i]] = map[string]any{name: v}
	}
	return out
}

// merge combines quarter maps, joining metrics that share a date.
func merge(parts ...quarters) quarters {
	out := make(quarters)
	for _, p := range parts {
		for date, vals := range p {
			if out[date] == nil {
				out[date] = make(map[string]any)
			}
			for k, v := range vals {
				out[date][k] = v
			}
		}
	}
	return out
}

// payload builds a Payload through the JSON decoder, the same path a fetched
// document takes.
func payload(t *testing.T, stmts map[fundamentals.StatementKind]quarters) *fundamentals.Payload {
	t.Helper()
	fin := make(map[string]any, len(stmts))
	for kind, qs := range stmts {
		fin[string(kind)] = map[string]any{
			"currency_symbol": "USD",
			"quarterly":       qs,
		}
	}
	data, err := json.Marshal(map[string]any{
		"General":    map[string]any{"Code": "TEST"},
		"Financials": fin,
	})
	require.NoError(t, err)

	p, err := fundamentals.DecodePayload(data)
	require.NoError(t, err)
	return p
}

func ingest(t *testing.T, stmts map[fundamentals.StatementKind]quarters) map[fundamentals.StatementKind][]fundamentals.QuarterRecord {
	t.Helper()
	return fundamentals.Ingest(payload(t, stmts), zerolog.Nop()).Quarters
}

func calculator(t *testing.T, stmts map[fundamentals.StatementKind]quarters) *fundamentals.Calculator {
	t.Helper()
	return fundamentals.NewCalculator(ingest(t, stmts))
}
