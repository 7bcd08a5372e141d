package floor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemStore_AcquireAndContention(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	lock, err := s.Acquire(ctx, "room-1", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lock.Holder != "alice" {
		t.Errorf("expected holder alice, got %q", lock.Holder)
	}

	cur, err := s.Acquire(ctx, "room-1", "bob")
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	var held *LockHeldError
	if !errors.As(err, &held) || held.Holder != "alice" {
		t.Errorf("expected LockHeldError naming alice, got %v", err)
	}
	if cur.Holder != "alice" {
		t.Errorf("expected returned state to name alice, got %q", cur.Holder)
	}
}

func TestMemStore_IdempotentReacquire(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	first, err := s.Acquire(ctx, "room-1", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := s.Acquire(ctx, "room-1", "alice")
	if err != nil {
		t.Fatalf("re-acquire by holder must succeed, got %v", err)
	}
	if !second.AcquiredAt.Equal(first.AcquiredAt) {
		t.Error("re-acquire must keep the original acquisition time")
	}
}

func TestMemStore_ConcurrentAcquireSingleWinner(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	const racers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners, losers int

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := s.Acquire(ctx, "room-1", identity(id))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrLockHeld):
				losers++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("expected exactly one winner, got %d", winners)
	}
	if losers != racers-1 {
		t.Errorf("expected %d losers, got %d", racers-1, losers)
	}
}

func identity(i int) string {
	return string(rune('a'+i%26)) + "-racer"
}

func TestMemStore_StalenessReclamation(t *testing.T) {
	now := time.Now()
	clock := &fakeClock{t: now}
	s := NewMemStore(WithStaleThreshold(2*time.Minute), WithClock(clock.Now))
	ctx := context.Background()

	if _, err := s.Acquire(ctx, "room-1", "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Just inside the threshold the lock is still held.
	clock.Advance(2 * time.Minute)
	if _, err := s.Acquire(ctx, "room-1", "bob"); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected contention inside threshold, got %v", err)
	}

	// Beyond the threshold a new identity may reclaim without a release.
	clock.Advance(time.Second)
	lock, err := s.Acquire(ctx, "room-1", "bob")
	if err != nil {
		t.Fatalf("expected stale lock to be reclaimable, got %v", err)
	}
	if lock.Holder != "bob" {
		t.Errorf("expected holder bob, got %q", lock.Holder)
	}
}

func TestMemStore_HeartbeatExtendsLock(t *testing.T) {
	now := time.Now()
	clock := &fakeClock{t: now}
	s := NewMemStore(WithStaleThreshold(2*time.Minute), WithClock(clock.Now))
	ctx := context.Background()

	if _, err := s.Acquire(ctx, "room-1", "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Advance(90 * time.Second)
	if err := s.Heartbeat(ctx, "room-1", "alice"); err != nil {
		t.Fatalf("unexpected heartbeat error: %v", err)
	}

	// 90s + 90s since acquire, but only 90s since heartbeat.
	clock.Advance(90 * time.Second)
	if _, err := s.Acquire(ctx, "room-1", "bob"); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected heartbeat to keep lock fresh, got %v", err)
	}
}

func TestMemStore_HeartbeatFromNonHolderIsNoop(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if _, err := s.Acquire(ctx, "room-1", "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Heartbeat(ctx, "room-1", "ghost"); err != nil {
		t.Fatalf("non-holder heartbeat must be a silent no-op, got %v", err)
	}

	snap, err := s.Snapshot(ctx, "room-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Holder != "alice" {
		t.Errorf("expected alice to still hold, got %q", snap.Holder)
	}
}

func TestMemStore_ReleaseOnlyByHolder(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if _, err := s.Acquire(ctx, "room-1", "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Non-holder release is a no-op.
	if err := s.Release(ctx, "room-1", "bob"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap, _ := s.Snapshot(ctx, "room-1")
	if snap.Holder != "alice" {
		t.Fatalf("expected alice to still hold after foreign release, got %q", snap.Holder)
	}

	// Holder release clears the lock.
	if err := s.Release(ctx, "room-1", "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap, _ = s.Snapshot(ctx, "room-1")
	if snap.Held() {
		t.Errorf("expected room unlocked after release, got holder %q", snap.Holder)
	}

	// Room is acquirable again.
	if _, err := s.Acquire(ctx, "room-1", "bob"); err != nil {
		t.Fatalf("expected acquire after release to succeed, got %v", err)
	}
}

func TestMemStore_ForceAcquireDisplacesHolder(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if _, err := s.Acquire(ctx, "room-1", "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lock, err := s.ForceAcquire(ctx, "room-1", "host")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lock.Holder != "host" {
		t.Errorf("expected holder host, got %q", lock.Holder)
	}
}

func TestMemStore_SnapshotHidesStaleLock(t *testing.T) {
	now := time.Now()
	clock := &fakeClock{t: now}
	s := NewMemStore(WithStaleThreshold(time.Minute), WithClock(clock.Now))
	ctx := context.Background()

	if _, err := s.Acquire(ctx, "room-1", "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clock.Advance(2 * time.Minute)

	snap, err := s.Snapshot(ctx, "room-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Held() {
		t.Errorf("expected stale lock reported as unlocked, got holder %q", snap.Holder)
	}
}

// fakeClock is a manually-advanced clock for staleness tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
