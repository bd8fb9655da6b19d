package fundamentals_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fundamentals-engine/fundamentals"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want fundamentals.Value
	}{
		{"numeric string", `"123.45"`, fundamentals.Number(123.45)},
		{"negative string", `"-7"`, fundamentals.Number(-7)},
		{"bare number", `42`, fundamentals.Number(42)},
		{"scientific", `"1.5e3"`, fundamentals.Number(1500)},
		{"null", `null`, fundamentals.Absent},
		{"empty string", `""`, fundamentals.Absent},
		{"N/A", `"N/A"`, fundamentals.Absent},
		{"None", `"None"`, fundamentals.Absent},
		{"garbage", `"abc"`, fundamentals.Absent},
		{"object", `{"a":1}`, fundamentals.Absent},
		{"empty", ``, fundamentals.Absent},
		{"overflowing string", `"1e400"`, fundamentals.Absent},
		{"overflowing negative", `"-1e400"`, fundamentals.Absent},
		{"overflowing number", `1e400`, fundamentals.Absent},
		{"largest finite", `"1e308"`, fundamentals.Number(1e308)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fundamentals.ParseValue(json.RawMessage(tt.raw))
			assert.Equal(t, tt.want.Valid, got.Valid)
			if tt.want.Valid {
				assert.InEpsilon(t, tt.want.Float, got.Float, 1e-9)
			}
		})
	}
}

func TestValue_JSON_AbsentIsNull(t *testing.T) {
	data, err := json.Marshal(fundamentals.Values{
		"a": fundamentals.Number(1.5),
		"b": fundamentals.Absent,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1.5,"b":null}`, string(data))
}

func TestValue_JSON_NonFiniteIsNull(t *testing.T) {
	data, err := json.Marshal(fundamentals.Values{
		"inf": fundamentals.Number(math.Inf(1)),
		"nan": fundamentals.Number(math.NaN()),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"inf":null,"nan":null}`, string(data))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", fundamentals.FormatValue(fundamentals.Absent))
	assert.Equal(t, "", fundamentals.FormatValue(fundamentals.Number(math.Inf(-1))))
	assert.Equal(t, "", fundamentals.FormatValue(fundamentals.Number(math.NaN())))
	assert.Equal(t, "101", fundamentals.FormatValue(fundamentals.Number(101)))
	assert.Equal(t, "0.4", fundamentals.FormatValue(fundamentals.Number(0.4)))
}

func TestDate_InYear_PrefixMatch(t *testing.T) {
	d, err := fundamentals.ParseDate("2023-03-31")
	require.NoError(t, err)

	assert.True(t, d.InYear(2023))
	assert.False(t, d.InYear(2022))
	assert.Equal(t, "2023-03-31", d.String())
	assert.True(t, d.Equal(fundamentals.NewDate(2023, time.March, 31)))
}

func TestParseStatementKind(t *testing.T) {
	k, err := fundamentals.ParseStatementKind("balance_sheet")
	require.NoError(t, err)
	assert.Equal(t, fundamentals.BalanceSheet, k)

	_, err = fundamentals.ParseStatementKind("Equity_Statement")
	assert.ErrorIs(t, err, fundamentals.ErrUnknownStatementKind)
	assert.True(t, fundamentals.IsClientError(err))
}

func TestParseFrequency_DefaultsToQuarterly(t *testing.T) {
	f, err := fundamentals.ParseFrequency("")
	require.NoError(t, err)
	assert.Equal(t, fundamentals.Quarterly, f)

	f, err = fundamentals.ParseFrequency("ANNUAL")
	require.NoError(t, err)
	assert.Equal(t, fundamentals.Annual, f)

	_, err = fundamentals.ParseFrequency("monthly")
	assert.ErrorIs(t, err, fundamentals.ErrUnknownFrequency)
}
