/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Absent metric values
  are serialized as null; years are object keys ("2023").

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Symbols:    SymbolDTO, TrackSymbolRequest
  Statements: StatementResponse, MetricResponse
  Derived:    DerivedResponse, SeriesResponse
  Jobs:       RefreshRunDTO, ExportDTO, ExportValuesResponse
  Policies:   factory.PolicyDocument

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/fundamentals-engine/fundamentals"
	"github.com/warp/fundamentals-engine/store/sqlite"
)

// =============================================================================
// SYMBOLS
// =============================================================================

// SymbolDTO describes a tracked symbol and what is loaded for it.
type SymbolDTO struct {
	Symbol    string         `json:"symbol"`
	Loaded    bool           `json:"loaded"`
	Available bool           `json:"available"`
	FetchedAt *time.Time     `json:"fetched_at,omitempty"`
	Quarters  map[string]int `json:"quarters,omitempty"`
	Years     map[string]int `json:"years,omitempty"`
	Skipped   int            `json:"skipped,omitempty"`
}

// TrackSymbolRequest adds a symbol to the refresh list.
type TrackSymbolRequest struct {
	Symbol string `json:"symbol"`
}

func toSymbolDTO(st fundamentals.Status) SymbolDTO {
	dto := SymbolDTO{
		Symbol:    st.Symbol,
		Loaded:    st.Loaded,
		Available: st.Available,
		Skipped:   st.Skipped,
	}
	if !st.FetchedAt.IsZero() {
		t := st.FetchedAt
		dto.FetchedAt = &t
	}
	if st.Loaded {
		dto.Quarters = make(map[string]int, len(st.Quarters))
		for k, n := range st.Quarters {
			dto.Quarters[string(k)] = n
		}
		dto.Years = make(map[string]int, len(st.Years))
		for k, n := range st.Years {
			dto.Years[string(k)] = n
		}
	}
	return dto
}

// =============================================================================
// STATEMENTS
// =============================================================================

// StatementResponse holds all metrics of one statement. Exactly one of
// Quarters, Years, Values is set.
type StatementResponse struct {
	Symbol    string                         `json:"symbol"`
	Statement fundamentals.StatementKind     `json:"statement"`
	Frequency fundamentals.Frequency         `json:"frequency"`
	Year      int                            `json:"year,omitempty"`
	Quarters  map[string]fundamentals.Values `json:"quarters,omitempty"`
	Years     map[int]fundamentals.Values    `json:"years,omitempty"`
	Values    fundamentals.Values            `json:"values,omitempty"`
}

// MetricResponse holds one metric. Exactly one of Quarters, Years, Value is set.
type MetricResponse struct {
	Symbol    string                        `json:"symbol"`
	Statement fundamentals.StatementKind    `json:"statement"`
	Metric    string                        `json:"metric"`
	Frequency fundamentals.Frequency        `json:"frequency"`
	Year      int                           `json:"year,omitempty"`
	Quarters  map[string]fundamentals.Value `json:"quarters,omitempty"`
	Years     map[int]fundamentals.Value    `json:"years,omitempty"`
	Value     *fundamentals.Value           `json:"value,omitempty"`
}

// =============================================================================
// DERIVED
// =============================================================================

// SeriesResponse is one derived indicator.
type SeriesResponse struct {
	Symbol string              `json:"symbol"`
	Name   string              `json:"name"`
	Values fundamentals.Series `json:"values"`
}

// DerivedResponse holds every available derived indicator.
type DerivedResponse struct {
	Symbol string                         `json:"symbol"`
	Names  []string                       `json:"names"`
	Series map[string]fundamentals.Series `json:"series"`
}

// =============================================================================
// JOBS
// =============================================================================

// RefreshRunDTO is a refresh history entry.
type RefreshRunDTO struct {
	ID          string `json:"id"`
	Symbol      string `json:"symbol"`
	Trigger     string `json:"trigger"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

func toRefreshRunDTO(r sqlite.RefreshRun) RefreshRunDTO {
	dto := RefreshRunDTO{
		ID:        r.ID,
		Symbol:    r.Symbol,
		Trigger:   r.Trigger,
		Status:    r.Status,
		Error:     r.Error,
		StartedAt: r.StartedAt.Format(time.RFC3339),
	}
	if r.CompletedAt != nil {
		dto.CompletedAt = r.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

// ExportDTO is a stored export batch.
type ExportDTO struct {
	ID           string `json:"id"`
	Symbol       string `json:"symbol"`
	Statement    string `json:"statement"`
	QuarterCount int    `json:"quarter_count"`
	YearCount    int    `json:"year_count"`
	ExportedAt   string `json:"exported_at"`
}

func toExportDTO(e sqlite.ExportRecord) ExportDTO {
	return ExportDTO{
		ID:           e.ID,
		Symbol:       e.Symbol,
		Statement:    string(e.Statement),
		QuarterCount: e.QuarterCount,
		YearCount:    e.YearCount,
		ExportedAt:   e.ExportedAt.Format(time.RFC3339),
	}
}

// ExportValueDTO is one exported cell.
type ExportValueDTO struct {
	Period string             `json:"period"`
	Metric string             `json:"metric"`
	Value  fundamentals.Value `json:"value"`
}

// ExportValuesResponse is one table of an export.
type ExportValuesResponse struct {
	ExportID string           `json:"export_id"`
	Table    string           `json:"table"`
	Values   []ExportValueDTO `json:"values"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}
