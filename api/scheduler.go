/*
scheduler.go - Scheduled refresh of tracked symbols

PURPOSE:
  Periodically re-fetches every tracked symbol so the payload cache and
  the in-memory datasets stay current without a caller paying for the
  upstream round trip.

DESIGN:
  - Cron expression (robfig/cron, standard 5-field or @every/@daily)
  - One refresh run recorded per symbol per tick (trigger "schedule")
  - A failing symbol is logged and does not stop the others
  - Overlapping ticks are skipped while a pass is still running

USAGE:
  scheduler, err := NewRefreshScheduler(store, handler, "@daily", log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Handler.Refresh (shared with POST /refresh)
  - config/config.go: REFRESH_SCHEDULE
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/warp/fundamentals-engine/store/sqlite"
)

// RefreshScheduler refreshes tracked symbols on a cron schedule.
type RefreshScheduler struct {
	Store    *sqlite.Store
	Handler  *Handler
	Schedule string

	log     zerolog.Logger
	cron    *cron.Cron
	entryID cron.EntryID

	mu      sync.Mutex
	running bool
}

// PassResult summarizes one scheduler pass.
type PassResult struct {
	Refreshed int
	Failed    int
}

// NewRefreshScheduler validates the schedule and creates a scheduler.
func NewRefreshScheduler(store *sqlite.Store, handler *Handler, schedule string, log zerolog.Logger) (*RefreshScheduler, error) {
	rs := &RefreshScheduler{
		Store:    store,
		Handler:  handler,
		Schedule: schedule,
		log:      log.With().Str("component", "scheduler").Logger(),
		cron:     cron.New(),
	}

	id, err := rs.cron.AddFunc(schedule, func() { rs.RunNow(context.Background()) })
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	rs.entryID = id
	return rs, nil
}

// Start begins the scheduler.
func (rs *RefreshScheduler) Start() {
	rs.cron.Start()
	rs.log.Info().Str("schedule", rs.Schedule).Time("next", rs.NextRun()).Msg("started")
}

// Stop stops the scheduler and waits for a running pass to finish.
func (rs *RefreshScheduler) Stop() {
	<-rs.cron.Stop().Done()
	rs.log.Info().Msg("stopped")
}

// NextRun returns when the next scheduled pass will occur.
func (rs *RefreshScheduler) NextRun() time.Time {
	return rs.cron.Entry(rs.entryID).Next
}

// RunNow refreshes every tracked symbol. A call made while another pass is
// in progress returns immediately with a zero result.
func (rs *RefreshScheduler) RunNow(ctx context.Context) PassResult {
	rs.mu.Lock()
	if rs.running {
		rs.mu.Unlock()
		rs.log.Warn().Msg("previous pass still running, skipping")
		return PassResult{}
	}
	rs.running = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.running = false
		rs.mu.Unlock()
	}()

	symbols, err := rs.Store.ListSymbols(ctx)
	if err != nil {
		rs.log.Error().Err(err).Msg("failed to list symbols")
		return PassResult{}
	}

	var res PassResult
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		if _, err := rs.Handler.Refresh(ctx, symbol, TriggerSchedule); err != nil {
			rs.log.Error().Err(err).Str("symbol", symbol).Msg("refresh failed")
			res.Failed++
			continue
		}
		res.Refreshed++
	}

	rs.log.Info().Int("refreshed", res.Refreshed).Int("failed", res.Failed).Msg("pass completed")
	return res
}
