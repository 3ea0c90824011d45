package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	cacheSize = 100
	cacheTTL  = 60 * time.Second
)

// CachedLog fronts a Log with a small time-bounded query cache. Concurrent
// identical queries within the expiry window share one result without hitting
// the underlying store. Appends pass straight through; readers tolerate up to
// the TTL of staleness.
type CachedLog struct {
	inner Log
	cache *expirable.LRU[string, []Entry]
}

func NewCachedLog(inner Log) *CachedLog {
	return &CachedLog{
		inner: inner,
		cache: expirable.NewLRU[string, []Entry](cacheSize, nil, cacheTTL),
	}
}

func (c *CachedLog) Append(ctx context.Context, e Entry) error {
	return c.inner.Append(ctx, e)
}

func (c *CachedLog) Query(ctx context.Context, f Filter, limit int) ([]Entry, error) {
	key := fmt.Sprintf("user=%s|product=%s|limit=%d", f.User, f.Product, limit)
	if entries, ok := c.cache.Get(key); ok {
		return entries, nil
	}

	entries, err := c.inner.Query(ctx, f, limit)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, entries)
	return entries, nil
}
