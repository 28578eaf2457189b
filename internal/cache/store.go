package cache

import (
	"context"
	"time"
)

// Entry is one cached value. Value holds the JSON encoding of the cached object.
type Entry struct {
	Key        string        `json:"key"`
	Value      []byte        `json:"value"`
	InsertedAt time.Time     `json:"inserted_at"`
	TTL        time.Duration `json:"ttl"`
}

// Expired reports whether the entry's TTL has run out at now. Entries with a
// non-positive TTL never expire.
func (e Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && !now.Before(e.InsertedAt.Add(e.TTL))
}

// Store is a cache backend. Stores must keep expired entries readable for a
// while; the cache relies on them for stale-on-error reads.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, keys ...string) (int, error)
	// Keys lists keys matching a glob pattern (*, ?, [...]) with Redis
	// SCAN MATCH semantics: * and ? also match '/'.
	Keys(ctx context.Context, pattern string) ([]string, error)
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}

// stalePurger is implemented by stores that need help dropping entries past
// their stale retention.
type stalePurger interface {
	PurgeStale(now time.Time, retention time.Duration) int
}
