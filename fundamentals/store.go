/*
store.go - Boundaries to the outside world

PURPOSE:
  The engine depends on two collaborators it does not implement itself:

  Fetcher: returns the raw payload for a symbol (HTTP, cache, fixture).
  Sink:    accepts the quarterly sequence and annual mapping of one
           statement and persists them as two labeled tables.

IMPLEMENTATIONS:
  - eodhd/client.go:          Fetcher over the EODHD HTTP API
  - store/sqlite/sqlite.go:   PayloadCache (Fetcher decorator) and Sink
  - fundamentals/store/memory.go: In-memory Fetcher and Sink for tests
*/
package fundamentals

import "context"

// =============================================================================
// FETCHER
// =============================================================================

// Fetcher retrieves the raw payload for a symbol. Implementations return an
// error wrapping ErrSourceUnavailable when the source is unreachable or the
// document cannot be decoded.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string) (*Payload, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, symbol string) (*Payload, error)

func (f FetcherFunc) Fetch(ctx context.Context, symbol string) (*Payload, error) {
	return f(ctx, symbol)
}

// =============================================================================
// SINK
// =============================================================================

// Table labels used by sinks.
const (
	TableQuarterly = "Quarterly"
	TableAnnual    = "Annual"
)

// ExportBatch is one statement's data ready for a tabular sink.
type ExportBatch struct {
	Symbol    string
	Kind      StatementKind
	Quarterly []QuarterRecord // newest first
	Annual    map[int]AnnualRecord
}

// Sink persists export batches and returns an identifier for each one.
// Batches share the loaded records and must not be modified.
type Sink interface {
	Export(ctx context.Context, batch ExportBatch) (string, error)
}
