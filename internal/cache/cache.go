// Package cache is a read-through cache that serves the last stored value
// when a refresh fails.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/facebookgo/clock"
	"github.com/rs/zerolog"
)

// Stats are the process-wide cache counters.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Errors  int64 `json:"errors"`
	Entries int   `json:"entries"`
}

type Cache struct {
	store  Store
	clock  clock.Clock
	logger zerolog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the wall clock used for insertion times and expiry.
func WithClock(c clock.Clock) Option {
	return func(cc *Cache) { cc.clock = c }
}

func New(store Store, logger zerolog.Logger, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		clock:  clock.New(),
		logger: logger.With().Str("component", "cache").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type fetchOptions struct {
	allowStale bool
}

// FetchOption adjusts a single GetOrFetch call.
type FetchOption func(*fetchOptions)

// WithoutStale makes GetOrFetch return the fetch error instead of a stale value.
func WithoutStale() FetchOption {
	return func(o *fetchOptions) { o.allowStale = false }
}

// GetOrFetch returns the cached value for key if it has not expired. Otherwise
// it calls fetch and caches the result for ttl (ttl <= 0 caches without
// expiry). When fetch fails and any value is still stored for key, expired or
// not, that value is returned instead of the error.
func GetOrFetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error), opts ...FetchOption) (T, error) {
	o := fetchOptions{allowStale: true}
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	entry, found := c.lookup(ctx, key)
	if found && !entry.Expired(c.clock.Now()) {
		var v T
		if err := json.Unmarshal(entry.Value, &v); err == nil {
			c.hits.Add(1)
			cacheRequests.WithLabelValues(resultHit).Inc()
			return v, nil
		}
		c.recordError(key, "decode cached value")
		found = false
	}

	c.misses.Add(1)
	cacheRequests.WithLabelValues(resultMiss).Inc()

	v, err := fetch(ctx)
	if err != nil {
		c.errors.Add(1)
		cacheRequests.WithLabelValues(resultError).Inc()
		if o.allowStale && found {
			var stale T
			if jerr := json.Unmarshal(entry.Value, &stale); jerr == nil {
				cacheRequests.WithLabelValues(resultStale).Inc()
				c.logger.Warn().Err(err).Str("key", key).
					Time("inserted_at", entry.InsertedAt).Msg("fetch failed, serving stale value")
				return stale, nil
			}
		}
		return zero, err
	}

	if err := c.Set(ctx, key, v, ttl); err != nil {
		c.recordError(key, err.Error())
	}
	return v, nil
}

func (c *Cache) lookup(ctx context.Context, key string) (Entry, bool) {
	entry, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.recordError(key, err.Error())
		return Entry{}, false
	}
	return entry, found
}

func (c *Cache) recordError(key, msg string) {
	c.errors.Add(1)
	cacheRequests.WithLabelValues(resultError).Inc()
	c.logger.Warn().Str("key", key).Msg("cache store error: " + msg)
}

// Set stores value under key, replacing any existing entry.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.store.Set(ctx, Entry{
		Key:        key,
		Value:      data,
		InsertedAt: c.clock.Now(),
		TTL:        ttl,
	})
}

// Invalidate deletes every key matching the glob pattern and returns how many
// were removed.
func (c *Cache) Invalidate(ctx context.Context, pattern string) (int, error) {
	keys, err := c.store.Keys(ctx, pattern)
	if err != nil {
		return 0, fmt.Errorf("invalidate %q: %w", pattern, err)
	}
	n, err := c.store.Delete(ctx, keys...)
	if err != nil {
		return n, fmt.Errorf("invalidate %q: %w", pattern, err)
	}
	if n > 0 {
		c.logger.Debug().Str("pattern", pattern).Int("removed", n).Msg("cache invalidated")
	}
	return n, nil
}

// ClearAll deletes every entry.
func (c *Cache) ClearAll(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	c.logger.Info().Msg("cache cleared")
	return nil
}

func (c *Cache) Stats(ctx context.Context) Stats {
	st := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Errors: c.errors.Load(),
	}
	if n, err := c.store.Len(ctx); err == nil {
		st.Entries = n
	}
	return st
}

func (c *Cache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.errors.Store(0)
}

// PurgeStale drops entries that expired more than retention ago, for stores
// that do not expire keys themselves.
func (c *Cache) PurgeStale(retention time.Duration) int {
	p, ok := c.store.(stalePurger)
	if !ok {
		return 0
	}
	return p.PurgeStale(c.clock.Now(), retention)
}

// RunJanitor calls PurgeStale every interval until ctx is done.
func (c *Cache) RunJanitor(ctx context.Context, interval, retention time.Duration) {
	ticker := c.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.PurgeStale(retention); n > 0 {
				c.logger.Debug().Int("purged", n).Msg("purged stale cache entries")
			}
		}
	}
}
