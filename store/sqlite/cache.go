/*
cache.go - Payload cache in front of a Fetcher

PURPOSE:
  PayloadCache is a fundamentals.Fetcher decorator. A payload fetched less
  than TTL ago is served from the payloads table; otherwise the wrapped
  fetcher is called and the result stored.

STALE FALLBACK:
  When the wrapped fetcher fails and an expired entry exists, the expired
  entry is served with a warning rather than failing the caller.

BYPASS:
  BypassCache(ctx) forces a fetch from the wrapped fetcher and disables the
  stale fallback. Manual and scheduled refreshes use it.
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/fundamentals-engine/fundamentals"
)

// =============================================================================
// PAYLOAD STORE
// =============================================================================

// PayloadRecord is a cached document.
type PayloadRecord struct {
	Symbol    string
	Body      []byte
	FetchedAt time.Time
}

// SavePayload upserts the cached document of a symbol.
func (s *Store) SavePayload(ctx context.Context, symbol string, body []byte, fetchedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payloads (symbol, body, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			body = excluded.body,
			fetched_at = excluded.fetched_at
	`, normalizeSymbol(symbol), string(body), fetchedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to save payload: %w", err)
	}
	return nil
}

// GetPayload returns the cached document, or ErrNotFound.
func (s *Store) GetPayload(ctx context.Context, symbol string) (*PayloadRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		r         PayloadRecord
		body      string
		fetchedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT symbol, body, fetched_at FROM payloads WHERE symbol = ?`,
		normalizeSymbol(symbol),
	).Scan(&r.Symbol, &body, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payload: %w", err)
	}
	r.Body = []byte(body)
	r.FetchedAt, _ = time.Parse(timeLayout, fetchedAt)
	return &r, nil
}

// =============================================================================
// PAYLOAD CACHE (fundamentals.Fetcher decorator)
// =============================================================================

type bypassKey struct{}

// BypassCache marks ctx so PayloadCache skips fresh entries.
func BypassCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassKey{}, true)
}

func bypassed(ctx context.Context) bool {
	v, _ := ctx.Value(bypassKey{}).(bool)
	return v
}

// PayloadCache caches fetched payloads in SQLite.
type PayloadCache struct {
	store *Store
	next  fundamentals.Fetcher
	ttl   time.Duration
	now   func() time.Time
	log   zerolog.Logger
}

// NewPayloadCache wraps next. A ttl of zero or less disables freshness, so
// every call goes to next and the table only serves as stale fallback.
func NewPayloadCache(store *Store, next fundamentals.Fetcher, ttl time.Duration, log zerolog.Logger) *PayloadCache {
	return &PayloadCache{
		store: store,
		next:  next,
		ttl:   ttl,
		now:   time.Now,
		log:   log.With().Str("component", "payload_cache").Logger(),
	}
}

func (c *PayloadCache) Fetch(ctx context.Context, symbol string) (*fundamentals.Payload, error) {
	cached, err := c.store.GetPayload(ctx, symbol)
	if err != nil && !errors.Is(err, ErrNotFound) {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("cache read failed")
		cached = nil
	}

	if cached != nil && !bypassed(ctx) && c.ttl > 0 && c.now().Sub(cached.FetchedAt) < c.ttl {
		if p, err := fundamentals.DecodePayload(cached.Body); err == nil {
			c.log.Debug().Str("symbol", symbol).Time("fetched_at", cached.FetchedAt).Msg("cache hit")
			return p, nil
		}
	}

	p, fetchErr := c.next.Fetch(ctx, symbol)
	if fetchErr != nil {
		if cached != nil && !bypassed(ctx) {
			if stale, err := fundamentals.DecodePayload(cached.Body); err == nil {
				c.log.Warn().Err(fetchErr).Str("symbol", symbol).
					Time("fetched_at", cached.FetchedAt).
					Msg("serving stale payload")
				return stale, nil
			}
		}
		return nil, fetchErr
	}

	body, err := json.Marshal(p)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("payload not cacheable")
		return p, nil
	}
	if err := c.store.SavePayload(ctx, symbol, body, c.now()); err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("cache write failed")
	}
	return p, nil
}
