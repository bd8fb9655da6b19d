package api

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fundamentals-engine/store/sqlite"
)

func TestRefreshScheduler_RunNow(t *testing.T) {
	// GIVEN: Two tracked symbols, one of which fails upstream
	env := setupTestHandler(t)
	ctx := context.Background()
	require.NoError(t, env.store.SaveSymbol(ctx, "ACME.US"))
	require.NoError(t, env.store.SaveSymbol(ctx, "BROKEN.US"))
	env.fetcher.Fail("BROKEN.US", errors.New("timeout"))

	rs, err := NewRefreshScheduler(env.store, env.handler, "@daily", zerolog.Nop())
	require.NoError(t, err)

	// WHEN: Running a pass
	res := rs.RunNow(ctx)

	// THEN: The failure does not stop the other symbol
	assert.Equal(t, PassResult{Refreshed: 1, Failed: 1}, res)

	runs, err := env.store.GetRefreshRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.Equal(t, TriggerSchedule, run.Trigger)
	}

	failed, err := env.store.GetRefreshRuns(ctx, sqlite.RunFailed, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "BROKEN.US", failed[0].Symbol)

	assert.True(t, env.handler.Financials("ACME.US").Status().Available)
}

func TestRefreshScheduler_InvalidSchedule(t *testing.T) {
	env := setupTestHandler(t)

	_, err := NewRefreshScheduler(env.store, env.handler, "every tuesday", zerolog.Nop())

	assert.Error(t, err)
}

func TestRefreshScheduler_StartStop(t *testing.T) {
	env := setupTestHandler(t)
	rs, err := NewRefreshScheduler(env.store, env.handler, "@every 1h", zerolog.Nop())
	require.NoError(t, err)

	rs.Start()
	assert.False(t, rs.NextRun().IsZero())
	rs.Stop()
}
