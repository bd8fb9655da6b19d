/*
handlers.go - HTTP API handlers for the fundamentals engine

PURPOSE:
  Exposes the per-symbol query surface via REST. Handles HTTP
  request/response, JSON serialization, and delegates to fundamentals.

ENDPOINTS:
  Symbols:
    GET    /api/symbols                                  Tracked symbols + load status
    POST   /api/symbols                                  Track a symbol
    DELETE /api/symbols/{symbol}                         Stop tracking

  Statements:
    GET    /api/symbols/{symbol}/statements/{kind}?freq=&year=
    GET    /api/symbols/{symbol}/statements/{kind}/metrics/{metric}?freq=&year=

  Derived:
    GET    /api/symbols/{symbol}/derived                 All available series
    GET    /api/symbols/{symbol}/derived/{name}          One series

  Jobs:
    POST   /api/symbols/{symbol}/refresh                 Re-fetch, bypassing the cache
    POST   /api/symbols/{symbol}/export                  Export to SQLite
    GET    /api/symbols/{symbol}/exports                 Export history
    GET    /api/exports/{id}?table=Quarterly|Annual      Exported cells
    GET    /api/refresh/runs?status=&limit=              Refresh history

  Policies:
    GET    /api/policies                                 Active aggregation policies

  Admin:
    POST   /api/reset                                    Clear the database (dev only)

ARCHITECTURE:
  Handler keeps one *fundamentals.Financials per symbol, created on first
  request. Each loads lazily through the shared Fetcher (normally the
  SQLite payload cache in front of the EODHD client). An untracked symbol
  whose fetch failed is dropped after the request.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Unknown statement kind, frequency, series; bad year
  - 404: No data for the requested combination
  - 502: Upstream source unavailable on refresh
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scheduler.go: Scheduled refreshes
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/fundamentals-engine/factory"
	"github.com/warp/fundamentals-engine/fundamentals"
	"github.com/warp/fundamentals-engine/store/sqlite"
)

// Refresh triggers.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store         *sqlite.Store
	Fetcher       fundamentals.Fetcher
	Policies      *fundamentals.PolicyTable
	PolicyFactory *factory.PolicyFactory

	log zerolog.Logger

	mu         sync.Mutex
	financials map[string]*fundamentals.Financials
}

// NewHandler creates a handler. policies may be nil for the built-in table.
func NewHandler(store *sqlite.Store, fetcher fundamentals.Fetcher, policies *fundamentals.PolicyTable, log zerolog.Logger) *Handler {
	if policies == nil {
		policies = fundamentals.DefaultPolicyTable()
	}
	return &Handler{
		Store:         store,
		Fetcher:       fetcher,
		Policies:      policies,
		PolicyFactory: factory.NewPolicyFactory(),
		log:           log.With().Str("component", "api").Logger(),
		financials:    make(map[string]*fundamentals.Financials),
	}
}

// Financials returns the view of a symbol, creating it on first use.
func (h *Handler) Financials(symbol string) *fundamentals.Financials {
	key := normalizeSymbol(symbol)

	h.mu.Lock()
	defer h.mu.Unlock()

	f, ok := h.financials[key]
	if !ok {
		f = fundamentals.NewFinancials(key, h.Fetcher, h.Policies, h.log)
		h.financials[key] = f
	}
	return f
}

// release forgets an untracked symbol whose fetch failed, so the next request
// fetches again instead of serving the memoized empty dataset.
func (h *Handler) release(ctx context.Context, f *fundamentals.Financials) {
	st := f.Status()
	if !st.Loaded || st.Available {
		return
	}
	tracked, err := h.Store.IsTracked(ctx, st.Symbol)
	if err != nil || tracked {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.financials[st.Symbol] == f {
		delete(h.financials, st.Symbol)
	}
}

// Refresh re-fetches a symbol and records the run.
func (h *Handler) Refresh(ctx context.Context, symbol, trigger string) (*sqlite.RefreshRun, error) {
	run := &sqlite.RefreshRun{
		Symbol:  normalizeSymbol(symbol),
		Trigger: trigger,
		Status:  sqlite.RunRunning,
	}
	if err := h.Store.SaveRefreshRun(ctx, run); err != nil {
		return nil, err
	}

	refreshErr := h.Financials(symbol).Refresh(sqlite.BypassCache(ctx))

	completed := time.Now().UTC()
	run.CompletedAt = &completed
	run.Status = sqlite.RunCompleted
	if refreshErr != nil {
		run.Status = sqlite.RunFailed
		run.Error = refreshErr.Error()
	}
	if err := h.Store.SaveRefreshRun(ctx, run); err != nil {
		h.log.Error().Err(err).Str("run", run.ID).Msg("failed to record refresh run")
	}
	return run, refreshErr
}

// =============================================================================
// SYMBOL HANDLERS
// =============================================================================

// ListSymbols returns tracked symbols with their load status.
// GET /api/symbols
func (h *Handler) ListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.Store.ListSymbols(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list symbols", err)
		return
	}

	dtos := make([]SymbolDTO, 0, len(symbols))
	for _, s := range symbols {
		dtos = append(dtos, toSymbolDTO(h.Financials(s).Status()))
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbols": dtos})
}

// TrackSymbol adds a symbol to the scheduled refresh list.
// POST /api/symbols
func (h *Handler) TrackSymbol(w http.ResponseWriter, r *http.Request) {
	var req TrackSymbolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	symbol := normalizeSymbol(req.Symbol)
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required", nil)
		return
	}

	if err := h.Store.SaveSymbol(r.Context(), symbol); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to track symbol", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSymbolDTO(h.Financials(symbol).Status()))
}

// UntrackSymbol removes a symbol and its cached payload.
// DELETE /api/symbols/{symbol}
func (h *Handler) UntrackSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := normalizeSymbol(chi.URLParam(r, "symbol"))
	if err := h.Store.DeleteSymbol(r.Context(), symbol); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete symbol", err)
		return
	}

	h.mu.Lock()
	delete(h.financials, symbol)
	h.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// STATEMENT HANDLERS
// =============================================================================

// GetStatement returns every metric of a statement. freq defaults to annual.
// GET /api/symbols/{symbol}/statements/{kind}?freq=quarterly|annual&year=2023
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	kind, q, ok := parseStatementQuery(w, r, fundamentals.Annual)
	if !ok {
		return
	}
	f := h.Financials(chi.URLParam(r, "symbol"))
	defer h.release(r.Context(), f)

	res, found := f.AllMetrics(r.Context(), kind, q)
	if !found {
		writeError(w, http.StatusNotFound, "No data for statement", nil)
		return
	}

	writeJSON(w, http.StatusOK, StatementResponse{
		Symbol:    f.Symbol(),
		Statement: kind,
		Frequency: q.Freq,
		Year:      q.Year,
		Quarters:  res.ByDate,
		Years:     res.ByYear,
		Values:    res.Year,
	})
}

// GetMetric returns one metric of a statement. freq defaults to quarterly.
// GET /api/symbols/{symbol}/statements/{kind}/metrics/{metric}?freq=&year=
func (h *Handler) GetMetric(w http.ResponseWriter, r *http.Request) {
	kind, q, ok := parseStatementQuery(w, r, fundamentals.Quarterly)
	if !ok {
		return
	}
	metric := chi.URLParam(r, "metric")
	f := h.Financials(chi.URLParam(r, "symbol"))
	defer h.release(r.Context(), f)

	res, found := f.Metric(r.Context(), kind, metric, q)
	if !found {
		writeError(w, http.StatusNotFound, "No data for metric", nil)
		return
	}

	writeJSON(w, http.StatusOK, MetricResponse{
		Symbol:    f.Symbol(),
		Statement: kind,
		Metric:    metric,
		Frequency: q.Freq,
		Year:      q.Year,
		Quarters:  res.ByDate,
		Years:     res.ByYear,
		Value:     res.Scalar,
	})
}

// =============================================================================
// DERIVED HANDLERS
// =============================================================================

// GetDerived returns every available derived series.
// GET /api/symbols/{symbol}/derived
func (h *Handler) GetDerived(w http.ResponseWriter, r *http.Request) {
	f := h.Financials(chi.URLParam(r, "symbol"))
	defer h.release(r.Context(), f)
	summary := f.Derived(r.Context()).Summary()

	writeJSON(w, http.StatusOK, DerivedResponse{
		Symbol: f.Symbol(),
		Names:  fundamentals.SortedSeriesNames(summary),
		Series: summary,
	})
}

// GetDerivedSeries returns one derived series.
// GET /api/symbols/{symbol}/derived/{name}
func (h *Handler) GetDerivedSeries(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	f := h.Financials(chi.URLParam(r, "symbol"))
	defer h.release(r.Context(), f)

	series, ok, err := f.Derived(r.Context()).Series(name)
	if err != nil {
		status := http.StatusInternalServerError
		if fundamentals.IsClientError(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, "Unknown series", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "No data for series", nil)
		return
	}

	writeJSON(w, http.StatusOK, SeriesResponse{Symbol: f.Symbol(), Name: name, Values: series})
}

// =============================================================================
// JOB HANDLERS
// =============================================================================

// RefreshSymbol re-fetches a symbol now.
// POST /api/symbols/{symbol}/refresh
func (h *Handler) RefreshSymbol(w http.ResponseWriter, r *http.Request) {
	run, err := h.Refresh(r.Context(), chi.URLParam(r, "symbol"), TriggerManual)
	if run == nil {
		writeError(w, http.StatusInternalServerError, "Failed to record refresh", err)
		return
	}
	if err != nil {
		status := http.StatusInternalServerError
		if fundamentals.IsSourceError(err) {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, map[string]any{
			"error": "Refresh failed",
			"run":   toRefreshRunDTO(*run),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRefreshRunDTO(*run)})
}

// ExportSymbol writes every statement of a symbol to the export tables.
// POST /api/symbols/{symbol}/export
func (h *Handler) ExportSymbol(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f := h.Financials(chi.URLParam(r, "symbol"))
	defer h.release(ctx, f)

	ids, err := f.Export(ctx, h.Store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Export failed", err)
		return
	}
	if len(ids) == 0 {
		writeError(w, http.StatusNotFound, "No data to export", nil)
		return
	}

	dtos := make([]ExportDTO, 0, len(ids))
	for _, id := range ids {
		rec, err := h.Store.GetExport(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load export", err)
			return
		}
		dtos = append(dtos, toExportDTO(rec))
	}
	writeJSON(w, http.StatusCreated, map[string]any{"exported": len(ids), "exports": dtos})
}

// ListExports returns export history of a symbol.
// GET /api/symbols/{symbol}/exports
func (h *Handler) ListExports(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListExports(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list exports", err)
		return
	}
	dtos := make([]ExportDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, toExportDTO(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": dtos})
}

// GetExportValues returns one table of an export.
// GET /api/exports/{id}?table=Quarterly|Annual
func (h *Handler) GetExportValues(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	table := r.URL.Query().Get("table")
	switch strings.ToLower(table) {
	case "", "quarterly":
		table = fundamentals.TableQuarterly
	case "annual":
		table = fundamentals.TableAnnual
	default:
		writeError(w, http.StatusBadRequest, "table must be Quarterly or Annual", nil)
		return
	}

	values, err := h.Store.ExportedValues(r.Context(), id, table)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load export", err)
		return
	}
	if len(values) == 0 {
		writeError(w, http.StatusNotFound, "Export not found", nil)
		return
	}

	dtos := make([]ExportValueDTO, 0, len(values))
	for _, v := range values {
		dtos = append(dtos, ExportValueDTO{Period: v.Period, Metric: v.Metric, Value: v.Value})
	}
	writeJSON(w, http.StatusOK, ExportValuesResponse{ExportID: id, Table: table, Values: dtos})
}

// ListRefreshRuns returns refresh history.
// GET /api/refresh/runs?status=&limit=
func (h *Handler) ListRefreshRuns(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.GetRefreshRuns(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get refresh runs", err)
		return
	}

	dtos := make([]RefreshRunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRefreshRunDTO(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// ListPolicies returns the active policy table.
// GET /api/policies
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.PolicyFactory.ToDocument(h.Policies))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ResetDatabase clears every table and drops loaded datasets.
// POST /api/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	h.mu.Lock()
	h.financials = make(map[string]*fundamentals.Financials)
	h.mu.Unlock()

	h.log.Warn().Msg("database reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

func parseStatementQuery(w http.ResponseWriter, r *http.Request, defaultFreq fundamentals.Frequency) (fundamentals.StatementKind, fundamentals.Query, bool) {
	kind, err := fundamentals.ParseStatementKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown statement", err)
		return "", fundamentals.Query{}, false
	}

	freq := defaultFreq
	if s := r.URL.Query().Get("freq"); s != "" {
		freq, err = fundamentals.ParseFrequency(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Unknown frequency", err)
			return "", fundamentals.Query{}, false
		}
	}

	q := fundamentals.Query{Freq: freq}
	if s := r.URL.Query().Get("year"); s != "" {
		year, err := strconv.Atoi(s)
		if err != nil || year <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return "", fundamentals.Query{}, false
		}
		q.Year = year
	}
	return kind, q, true
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(ErrorResponse{Error: "Failed to encode response", Details: err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
