package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/ecowatch/ecowatch-service/internal/models"
)

const keyPrefix = "upstream:"

// MemcachedStore implements Store using memcached. Expiry is delegated to the
// server, so Sweep has no equivalent here.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns configure the client; both use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// key hashes the request signature: cache keys contain full URLs with query
// strings, which exceed memcached's 250-byte key limit and may contain spaces.
func (s *MemcachedStore) key(k string) string {
	sum := sha256.Sum256([]byte(k))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get implements Store.Get. Returns false, nil on cache miss; false, err on error.
func (s *MemcachedStore) Get(ctx context.Context, key string) (models.UpstreamResponse, bool, error) {
	if ctx.Err() != nil {
		return models.UpstreamResponse{}, false, ctx.Err()
	}
	item, err := s.client.Get(s.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return models.UpstreamResponse{}, false, nil
		}
		return models.UpstreamResponse{}, false, err
	}
	var resp models.UpstreamResponse
	if err := json.Unmarshal(item.Value, &resp); err != nil {
		return models.UpstreamResponse{}, false, err
	}
	return resp, true, nil
}

// Set implements Store.Set.
func (s *MemcachedStore) Set(ctx context.Context, key string, resp models.UpstreamResponse, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	expSec := int32(ttl.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 3600 // fallback 1h if invalid
	}
	return s.client.Set(&memcache.Item{
		Key:        s.key(key),
		Value:      raw,
		Expiration: expSec,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (s *MemcachedStore) Ping() error {
	return s.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
