// Package store provides in-memory Fetcher and Sink implementations.
package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/warp/fundamentals-engine/fundamentals"
)

// =============================================================================
// MEMORY FETCHER - Serves fixed payloads (for testing/dev)
// =============================================================================

type MemoryFetcher struct {
	mu       sync.RWMutex
	payloads map[string]*fundamentals.Payload
	failures map[string]error
	calls    atomic.Int64
}

func NewMemoryFetcher() *MemoryFetcher {
	return &MemoryFetcher{
		payloads: make(map[string]*fundamentals.Payload),
		failures: make(map[string]error),
	}
}

// Put registers the payload returned for symbol.
func (m *MemoryFetcher) Put(symbol string, p *fundamentals.Payload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads[strings.ToUpper(symbol)] = p
	delete(m.failures, strings.ToUpper(symbol))
}

// Fail makes every fetch of symbol return err.
func (m *MemoryFetcher) Fail(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[strings.ToUpper(symbol)] = err
}

func (m *MemoryFetcher) Fetch(ctx context.Context, symbol string) (*fundamentals.Payload, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, &fundamentals.FetchError{Symbol: symbol, Err: err}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	key := strings.ToUpper(symbol)
	if err, ok := m.failures[key]; ok {
		return nil, &fundamentals.FetchError{Symbol: symbol, Err: err}
	}
	p, ok := m.payloads[key]
	if !ok {
		return nil, &fundamentals.FetchError{Symbol: symbol, Err: fmt.Errorf("no payload for %s", key)}
	}
	return p, nil
}

// Calls returns how many fetches were made.
func (m *MemoryFetcher) Calls() int {
	return int(m.calls.Load())
}

// =============================================================================
// MEMORY SINK - Collects export batches
// =============================================================================

type MemorySink struct {
	mu      sync.RWMutex
	batches []fundamentals.ExportBatch
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Export records the batch. IDs are "<SYMBOL>/<kind>/<n>".
func (m *MemorySink) Export(_ context.Context, batch fundamentals.ExportBatch) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, batch)
	return fmt.Sprintf("%s/%s/%d", batch.Symbol, batch.Kind, len(m.batches)), nil
}

// Batches returns a copy of everything exported so far.
func (m *MemorySink) Batches() []fundamentals.ExportBatch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]fundamentals.ExportBatch, len(m.batches))
	copy(result, m.batches)
	return result
}
