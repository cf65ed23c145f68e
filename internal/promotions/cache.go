package promotions

import (
	"context"
	"sync"
	"time"

	"github.com/angelmondragon/packfinderz-pos/internal/pricing"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// Source returns the currently active promotion rules.
type Source interface {
	ActivePromotions(ctx context.Context) ([]pricing.Promotion, error)
}

// Snapshot is an immutable copy of the rules used for one pricing pass.
type Snapshot struct {
	Promotions []pricing.Promotion
	FetchedAt  time.Time
	Stale      bool
}

// Cache serves promotion snapshots from memory and refreshes them from the
// source once the TTL has elapsed. Concurrent refreshes collapse into one
// fetch. When the source fails, the last good snapshot is served marked
// stale; with no prior snapshot the pass runs without promotions. A
// non-positive TTL refetches on every pass.
type Cache struct {
	source Source
	ttl    time.Duration
	now    func() time.Time
	logg   *logger.Logger

	group singleflight.Group

	mu      sync.RWMutex
	current *Snapshot
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(logg *logger.Logger) Option {
	return func(c *Cache) {
		c.logg = logg
	}
}

func NewCache(source Source, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		source: source,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Snapshot returns a fresh snapshot, refreshing through the source if needed.
func (c *Cache) Snapshot(ctx context.Context) Snapshot {
	if snap, ok := c.fresh(); ok {
		return snap
	}

	v, err, _ := c.group.Do("active", func() (any, error) {
		if snap, ok := c.fresh(); ok {
			return snap, nil
		}
		promos, err := c.source.ActivePromotions(ctx)
		if err != nil {
			return nil, err
		}
		snap := Snapshot{Promotions: clonePromotions(promos), FetchedAt: c.now()}
		c.mu.Lock()
		c.current = &snap
		c.mu.Unlock()
		return snap, nil
	})
	if err == nil {
		return copySnapshot(v.(Snapshot))
	}

	if c.logg != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "promotions.refresh_failed")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return Snapshot{Promotions: []pricing.Promotion{}, Stale: true}
	}
	stale := copySnapshot(*c.current)
	stale.Stale = true
	return stale
}

// Invalidate drops the cached snapshot so the next call refetches.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.FetchedAt = time.Time{}
	}
}

func (c *Cache) fresh() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil || c.current.FetchedAt.IsZero() {
		return Snapshot{}, false
	}
	if c.ttl <= 0 || c.now().Sub(c.current.FetchedAt) >= c.ttl {
		return Snapshot{}, false
	}
	return copySnapshot(*c.current), true
}

func copySnapshot(s Snapshot) Snapshot {
	s.Promotions = clonePromotions(s.Promotions)
	return s
}

func clonePromotions(in []pricing.Promotion) []pricing.Promotion {
	out := make([]pricing.Promotion, len(in))
	copy(out, in)
	return out
}
