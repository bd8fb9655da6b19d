/*
errors.go - Centralized error types for the fundamentals engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Query methods never return these to their callers; they surface through
  the Fetcher boundary, the ingestion warnings and the HTTP layer.

ERROR CATEGORIES:
  1. Source errors - the payload could not be fetched or decoded
  2. Record errors - a single date entry is malformed (skipped, logged)
  3. Input errors - unknown statement kind, frequency or policy names

SEE ALSO:
  - ingest.go: Emits MalformedRecordError warnings
  - financials.go: Swallows source errors into an empty dataset
  - eodhd/client.go: Produces FetchError
*/
package fundamentals

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSourceUnavailable is returned by fetchers when the payload could not
	// be retrieved or was empty.
	ErrSourceUnavailable = errors.New("fundamentals source unavailable")

	// ErrMalformedRecord marks a date entry without a usable quarterly detail.
	ErrMalformedRecord = errors.New("malformed quarterly record")

	// ErrUnknownStatementKind is returned when a statement name is not one of
	// Balance_Sheet, Income_Statement or Cash_Flow.
	ErrUnknownStatementKind = errors.New("unknown statement kind")

	// ErrUnknownFrequency is returned for anything other than quarterly/annual.
	ErrUnknownFrequency = errors.New("unknown frequency")

	// ErrUnknownPolicy is returned for anything other than sum/latest/average.
	ErrUnknownPolicy = errors.New("unknown aggregation policy")

	// ErrUnknownSeries is returned when a derived series name is not known.
	ErrUnknownSeries = errors.New("unknown derived series")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MalformedRecordError describes a skipped date entry.
type MalformedRecordError struct {
	Kind   StatementKind
	Date   string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("skipping %s %s: %s", e.Kind, e.Date, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error {
	return ErrMalformedRecord
}

// FetchError wraps a transport or decode failure for one symbol.
type FetchError struct {
	Symbol string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrSourceUnavailable, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnknownStatementKind) ||
		errors.Is(err, ErrUnknownFrequency) ||
		errors.Is(err, ErrUnknownPolicy) ||
		errors.Is(err, ErrUnknownSeries)
}

// IsSourceError returns true if the payload could not be obtained.
func IsSourceError(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}
