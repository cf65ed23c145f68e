package promotions

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/packfinderz-pos/internal/pricing"
	"github.com/shopspring/decimal"
)

type fakeSource struct {
	calls atomic.Int32
	delay time.Duration

	mu     sync.Mutex
	promos []pricing.Promotion
	err    error
}

func (f *fakeSource) ActivePromotions(context.Context) ([]pricing.Promotion, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.promos, nil
}

func (f *fakeSource) set(promos []pricing.Promotion, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promos = promos
	f.err = err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func tier(id string) pricing.Promotion {
	return pricing.QuantityTier(id, 5, decimal.NewFromInt(10))
}

func TestSnapshotCachesWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	src := &fakeSource{promos: []pricing.Promotion{tier("p1")}}
	cache := NewCache(src, time.Minute, WithClock(clock.Now))

	first := cache.Snapshot(context.Background())
	second := cache.Snapshot(context.Background())
	if src.calls.Load() != 1 {
		t.Fatalf("expected one fetch, got %d", src.calls.Load())
	}
	if len(first.Promotions) != 1 || len(second.Promotions) != 1 || first.Stale {
		t.Fatalf("unexpected snapshots %+v %+v", first, second)
	}

	src.set([]pricing.Promotion{tier("p1"), tier("p2")}, nil)
	clock.Advance(time.Minute)
	third := cache.Snapshot(context.Background())
	if src.calls.Load() != 2 || len(third.Promotions) != 2 {
		t.Fatalf("expected refresh after ttl, calls=%d promos=%d", src.calls.Load(), len(third.Promotions))
	}
}

func TestSnapshotFallsBackToStale(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	src := &fakeSource{promos: []pricing.Promotion{tier("p1")}}
	cache := NewCache(src, time.Minute, WithClock(clock.Now))

	_ = cache.Snapshot(context.Background())
	src.set(nil, errors.New("offline"))
	clock.Advance(2 * time.Minute)

	snap := cache.Snapshot(context.Background())
	if !snap.Stale {
		t.Fatalf("expected stale snapshot")
	}
	if len(snap.Promotions) != 1 || snap.Promotions[0].ID != "p1" {
		t.Fatalf("expected last good promotions, got %+v", snap.Promotions)
	}
}

func TestSnapshotWithoutHistoryIsEmpty(t *testing.T) {
	src := &fakeSource{err: errors.New("offline")}
	cache := NewCache(src, time.Minute)

	snap := cache.Snapshot(context.Background())
	if !snap.Stale || snap.Promotions == nil || len(snap.Promotions) != 0 {
		t.Fatalf("expected empty stale snapshot, got %+v", snap)
	}
}

func TestSnapshotCollapsesConcurrentRefreshes(t *testing.T) {
	src := &fakeSource{promos: []pricing.Promotion{tier("p1")}, delay: 50 * time.Millisecond}
	cache := NewCache(src, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cache.Snapshot(context.Background())
		}()
	}
	wg.Wait()

	if src.calls.Load() != 1 {
		t.Fatalf("expected a single fetch, got %d", src.calls.Load())
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	src := &fakeSource{promos: []pricing.Promotion{tier("p1")}}
	cache := NewCache(src, time.Minute)

	snap := cache.Snapshot(context.Background())
	snap.Promotions[0].ID = "mutated"

	again := cache.Snapshot(context.Background())
	if again.Promotions[0].ID != "p1" {
		t.Fatalf("cached snapshot was mutated through a returned copy")
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	src := &fakeSource{promos: []pricing.Promotion{tier("p1")}}
	cache := NewCache(src, time.Hour)

	_ = cache.Snapshot(context.Background())
	cache.Invalidate()
	_ = cache.Snapshot(context.Background())
	if src.calls.Load() != 2 {
		t.Fatalf("expected refetch after invalidate, got %d calls", src.calls.Load())
	}
}

func TestZeroTTLRefetchesEveryPass(t *testing.T) {
	src := &fakeSource{promos: []pricing.Promotion{tier("p1")}}
	cache := NewCache(src, 0)

	for i := 0; i < 3; i++ {
		_ = cache.Snapshot(context.Background())
	}
	if src.calls.Load() != 3 {
		t.Fatalf("expected a fetch per pass, got %d", src.calls.Load())
	}
}
