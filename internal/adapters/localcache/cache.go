// Package localcache is an in-process domain.Cache for single-instance
// deployments and tests.
package localcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/patrickmn/go-cache"

	"cityinfo/internal/adapters/observability"
	"cityinfo/internal/domain"
)

var _ domain.Cache = (*Cache)(nil)

// Cache keeps JSON bytes rather than live values so callers never share
// mutable state with the cache.
type Cache struct{ c *cache.Cache }

func New(defaultTTL, cleanup time.Duration) *Cache {
	return &Cache{c: cache.New(defaultTTL, cleanup)}
}

func (l *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	v, ok := l.c.Get(key)
	if !ok {
		observability.ObserveCache("local", "miss")
		return false, nil
	}
	b, ok := v.([]byte)
	if !ok || json.Unmarshal(b, dst) != nil {
		l.c.Delete(key)
		observability.ObserveCache("local", "miss")
		return false, nil
	}
	observability.ObserveCache("local", "hit")
	return true, nil
}

// Set with ttlSec <= 0 uses the default expiration.
func (l *Cache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ttl := cache.DefaultExpiration
	if ttlSec > 0 {
		ttl = time.Duration(ttlSec) * time.Second
	}
	observability.ObserveCache("local", "set")
	l.c.Set(key, b, ttl)
	return nil
}

func (l *Cache) Del(ctx context.Context, key string) error {
	observability.ObserveCache("local", "del")
	l.c.Delete(key)
	return nil
}

func (l *Cache) Len() int { return l.c.ItemCount() }
