/*
ingest.go - Quarterly ingestor

PURPOSE:
  Parses the raw fundamentals payload into, per statement kind, a
  chronologically descending sequence of QuarterRecords.

PAYLOAD SHAPE (EODHD fundamentals):
  {
    "General":    {...},
    "Financials": {
      "Balance_Sheet": {
        "currency_symbol": "USD",
        "quarterly": { "2023-03-31": { "totalAssets": "123.0", ... }, ... },
        "yearly":    { "2022-12-31": { ... }, ... }
      },
      "Income_Statement": {...},
      "Cash_Flow": {...}
    }
  }

RULES:
  - Report dates are the union of the quarterly and yearly keys.
  - A date whose quarterly detail is missing or not an object is skipped
    with a warning. So is a date that does not parse as YYYY-MM-DD.
  - Values are parsed once here (ParseValue). Nothing downstream sees raw JSON.
  - A nil payload yields an empty result.

SEE ALSO:
  - value.go: ParseValue
  - rollup.go: Consumes the quarterly sequences
*/
package fundamentals

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/rs/zerolog"
)

// =============================================================================
// PAYLOAD
// =============================================================================

// Payload is the raw fundamentals document for one symbol.
type Payload struct {
	General    json.RawMessage                  `json:"General,omitempty"`
	Financials map[StatementKind]*RawStatement `json:"Financials"`
}

// DecodePayload decodes a fundamentals document.
func DecodePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// RawStatement holds one statement's date-keyed details, still undecoded.
type RawStatement struct {
	CurrencySymbol string
	Quarterly      map[string]json.RawMessage
	Yearly         map[string]json.RawMessage
}

// UnmarshalJSON tolerates the source's habit of sending [] or null in place
// of an empty object.
func (r *RawStatement) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	_ = json.Unmarshal(fields["currency_symbol"], &r.CurrencySymbol)
	r.Quarterly = decodeDateMap(fields["quarterly"])
	r.Yearly = decodeDateMap(fields["yearly"])
	return nil
}

// MarshalJSON writes the statement back in wire shape.
func (r RawStatement) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"currency_symbol": r.CurrencySymbol,
		"quarterly":       r.Quarterly,
		"yearly":          r.Yearly,
	})
}

func decodeDateMap(raw json.RawMessage) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// reportDates returns the union of quarterly and yearly keys, ascending.
func (r *RawStatement) reportDates() []string {
	seen := make(map[string]bool, len(r.Quarterly)+len(r.Yearly))
	for d := range r.Quarterly {
		seen[d] = true
	}
	for d := range r.Yearly {
		seen[d] = true
	}
	dates := make([]string, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// =============================================================================
// INGEST
// =============================================================================

// metadataKeys are quarter attributes, not metrics.
var metadataKeys = map[string]bool{
	"date":            true,
	"filing_date":     true,
	"currency_symbol": true,
}

// IngestResult is the quarterly view of a payload.
type IngestResult struct {
	// Quarters holds every ingested quarter per kind, most recent first.
	Quarters map[StatementKind][]QuarterRecord

	// Skipped lists date entries that were dropped.
	Skipped []*MalformedRecordError
}

// Ingest parses a payload. It never fails; malformed entries are logged and
// recorded in Skipped.
func Ingest(p *Payload, log zerolog.Logger) *IngestResult {
	result := &IngestResult{Quarters: make(map[StatementKind][]QuarterRecord)}
	if p == nil {
		return result
	}

	for _, kind := range StatementKinds {
		stmt := p.Financials[kind]
		if stmt == nil {
			log.Warn().Str("kind", string(kind)).Msg("statement missing from payload")
			continue
		}

		buckets := make(map[int][]QuarterRecord)
		for _, date := range stmt.reportDates() {
			q, err := parseQuarter(kind, date, stmt)
			if err != nil {
				log.Warn().Str("kind", string(kind)).Str("date", date).Msg(err.Reason)
				result.Skipped = append(result.Skipped, err)
				continue
			}
			buckets[q.Year()] = append(buckets[q.Year()], q)
		}

		result.Quarters[kind] = flattenDescending(buckets)
		log.Debug().
			Str("kind", string(kind)).
			Int("quarters", len(result.Quarters[kind])).
			Int("years", len(buckets)).
			Msg("statement ingested")
	}

	return result
}

func parseQuarter(kind StatementKind, date string, stmt *RawStatement) (QuarterRecord, *MalformedRecordError) {
	raw, ok := stmt.Quarterly[date]
	if !ok || len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return QuarterRecord{}, &MalformedRecordError{Kind: kind, Date: date, Reason: "no quarterly detail"}
	}

	var detail map[string]json.RawMessage
	if err := json.Unmarshal(raw, &detail); err != nil {
		return QuarterRecord{}, &MalformedRecordError{Kind: kind, Date: date, Reason: "quarterly detail is not an object"}
	}

	d, err := ParseDate(date)
	if err != nil {
		return QuarterRecord{}, &MalformedRecordError{Kind: kind, Date: date, Reason: "unparseable report date"}
	}

	q := QuarterRecord{
		Date:     d,
		Currency: stmt.CurrencySymbol,
		Values:   make(Values, len(detail)),
	}
	for key, v := range detail {
		if metadataKeys[key] {
			var s string
			_ = json.Unmarshal(v, &s)
			switch key {
			case "filing_date":
				q.FilingDate = s
			case "currency_symbol":
				if s != "" {
					q.Currency = s
				}
			}
			continue
		}
		q.Values[key] = ParseValue(v)
	}
	return q, nil
}

// flattenDescending emits years newest first and quarters within a year
// newest first.
func flattenDescending(buckets map[int][]QuarterRecord) []QuarterRecord {
	years := make([]int, 0, len(buckets))
	total := 0
	for y, qs := range buckets {
		years = append(years, y)
		total += len(qs)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))

	out := make([]QuarterRecord, 0, total)
	for _, y := range years {
		qs := buckets[y]
		sort.Slice(qs, func(i, j int) bool { return qs[i].Date.After(qs[j].Date) })
		out = append(out, qs...)
	}
	return out
}
