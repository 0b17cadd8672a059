package facecache

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pscheid92/faceswap/internal/adapter/metrics"
	"github.com/pscheid92/faceswap/internal/domain"
	"golang.org/x/sync/singleflight"
)

// Loader produces the face for a key on a cache miss.
type Loader func(ctx context.Context) (domain.Face, error)

// Cache maps a stable image key to its source face. Identical keys must
// imply identical image bytes. Failed loads are never stored, so a key that
// produced ErrNoFaceDetected is retried on the next call.
//
// With capacity 0 the table grows for the process lifetime; a positive
// capacity bounds it with least-recently-used eviction.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]domain.Face
	bounded *lru.Cache[string, domain.Face]

	loads   singleflight.Group
	metrics *metrics.FaceCacheMetrics
}

// New creates a cache. m may be nil.
func New(capacity int, m *metrics.FaceCacheMetrics) (*Cache, error) {
	c := &Cache{metrics: m}
	if capacity <= 0 {
		c.entries = make(map[string]domain.Face)
		return c, nil
	}

	bounded, err := lru.NewWithEvict(capacity, func(string, domain.Face) {
		if m != nil {
			m.Evictions.Inc()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}
	c.bounded = bounded
	return c, nil
}

// Get returns the cached face for key, calling load on a miss. Concurrent
// misses on one key share a single load.
func (c *Cache) Get(ctx context.Context, key string, load Loader) (domain.Face, error) {
	if face, ok := c.lookup(key); ok {
		c.recordHit()
		return face, nil
	}

	// The shared load outlives any single caller; each caller stops waiting
	// on its own ctx.
	ch := c.loads.DoChan(key, func() (any, error) {
		if face, ok := c.lookup(key); ok {
			c.recordHit()
			return face, nil
		}

		if c.metrics != nil {
			c.metrics.Loads.Inc()
		}
		face, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.store(key, face)
		return face, nil
	})

	select {
	case <-ctx.Done():
		return domain.Face{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Face{}, res.Err
		}
		return res.Val.(domain.Face), nil
	}
}

// Len returns the number of cached faces.
func (c *Cache) Len() int {
	if c.bounded != nil {
		return c.bounded.Len()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	if c.bounded != nil {
		c.bounded.Purge()
	} else {
		c.mu.Lock()
		c.entries = make(map[string]domain.Face)
		c.mu.Unlock()
	}
	c.updateSize()
}

func (c *Cache) lookup(key string) (domain.Face, bool) {
	if c.bounded != nil {
		return c.bounded.Get(key)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	face, ok := c.entries[key]
	return face, ok
}

func (c *Cache) store(key string, face domain.Face) {
	if c.bounded != nil {
		c.bounded.Add(key, face)
	} else {
		c.mu.Lock()
		c.entries[key] = face
		c.mu.Unlock()
	}
	c.updateSize()
}

func (c *Cache) recordHit() {
	if c.metrics != nil {
		c.metrics.Hits.Inc()
	}
}

func (c *Cache) updateSize() {
	if c.metrics != nil {
		c.metrics.Entries.Set(float64(c.Len()))
	}
}
