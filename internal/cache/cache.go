package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ecowatch/ecowatch-service/internal/models"
)

// Key builds a cache key from a request URL and its header set. Headers are
// serialized in sorted order so that two requests differing only in header
// iteration order hash identically.
func Key(url string, headers map[string]string) string {
	if len(headers) == 0 {
		return url
	}
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+headers[name])
	}
	return url + "|" + strings.Join(pairs, "&")
}

// Store defines the interface for response cache backends. Get returns the
// cached response if present and not expired; Set stores a response with TTL.
type Store interface {
	Get(ctx context.Context, key string) (models.UpstreamResponse, bool, error)
	Set(ctx context.Context, key string, resp models.UpstreamResponse, ttl time.Duration) error
}

// InMemoryStore implements Store using a mutex-guarded map with TTL-based
// expiration. Expired entries are removed on access; Sweep removes the rest
// and is intended to run on a schedule to bound growth.
type InMemoryStore struct {
	mu   sync.Mutex
	data map[string]entry
	now  func() time.Time
}

type entry struct {
	resp      models.UpstreamResponse
	expiresAt time.Time
}

// NewInMemoryStore creates a new in-memory response cache.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: make(map[string]entry),
		now:  time.Now,
	}
}

// Get retrieves the cached response for the key if present and not expired.
// Returns (resp, true, nil) on hit, (zero, false, nil) on miss or expiration.
// Expired entries are removed on access.
func (s *InMemoryStore) Get(ctx context.Context, key string) (models.UpstreamResponse, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return models.UpstreamResponse{}, false, nil
	}
	if s.now().After(e.expiresAt) {
		delete(s.data, key)
		return models.UpstreamResponse{}, false, nil
	}
	return e.resp, true, nil
}

// Set stores a response under the key with the specified TTL, overwriting any
// prior entry. Last writer wins on concurrent refresh of the same key.
func (s *InMemoryStore) Set(ctx context.Context, key string, resp models.UpstreamResponse, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = entry{
		resp:      resp,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Sweep removes every expired entry and returns the number removed.
func (s *InMemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.data {
		if now.After(e.expiresAt) {
			delete(s.data, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries currently held, expired or not.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
