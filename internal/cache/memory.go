package cache

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryStore is an in-process store bounded by entry count. The least
// recently used entry is evicted when full; expiry alone never evicts.
type MemoryStore struct {
	entries *lru.Cache[string, Entry]
}

func NewMemoryStore(maxEntries int) (*MemoryStore, error) {
	entries, err := lru.New[string, Entry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	return &MemoryStore{entries: entries}, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	e, ok := s.entries.Get(key)
	return e, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, e Entry) error {
	s.entries.Add(e.Key, e)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) (int, error) {
	n := 0
	for _, k := range keys {
		if s.entries.Remove(k) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	if _, err := globMatch(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	var keys []string
	for _, k := range s.entries.Keys() {
		if ok, _ := globMatch(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// globMatch matches like Redis SCAN MATCH. path.Match stops * and ? at '/',
// so slashes are swapped for a byte that carries no meaning in either glob.
func globMatch(pattern, key string) (bool, error) {
	const sep = "\x00"
	return path.Match(strings.ReplaceAll(pattern, "/", sep), strings.ReplaceAll(key, "/", sep))
}

func (s *MemoryStore) Clear(context.Context) error {
	s.entries.Purge()
	return nil
}

func (s *MemoryStore) Len(context.Context) (int, error) {
	return s.entries.Len(), nil
}

// PurgeStale drops entries that expired more than retention ago.
func (s *MemoryStore) PurgeStale(now time.Time, retention time.Duration) int {
	n := 0
	for _, k := range s.entries.Keys() {
		e, ok := s.entries.Peek(k)
		if !ok || e.TTL <= 0 {
			continue
		}
		if now.Sub(e.InsertedAt.Add(e.TTL)) > retention {
			s.entries.Remove(k)
			n++
		}
	}
	return n
}
