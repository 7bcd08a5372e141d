package floor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eburon-meet/orbit/pkg/types"
)

// CoordinatorConfig holds construction parameters for a [Coordinator].
type CoordinatorConfig struct {
	// Store is the atomic lock table.
	Store Store

	// RoomID is the room this coordinator speaks for.
	RoomID string

	// Identity is the participant identity to acquire as.
	Identity string

	// HeartbeatInterval is the period between heartbeats while the floor is
	// held. Default: [DefaultHeartbeatInterval].
	HeartbeatInterval time.Duration
}

// Coordinator is the holder-side floor-control client: one per participant
// per room. It acquires the floor through the [Store], heartbeats while held,
// and releases best-effort on teardown. All methods are safe for concurrent
// use.
type Coordinator struct {
	store    Store
	roomID   string
	identity string
	interval time.Duration

	mu     sync.Mutex
	held   bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCoordinator creates a [Coordinator].
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Coordinator{
		store:    cfg.Store,
		roomID:   cfg.RoomID,
		identity: cfg.Identity,
		interval: interval,
	}
}

// Acquire attempts to take the floor. On success the coordinator starts its
// heartbeat loop. On contention the returned error matches [ErrLockHeld] and
// carries the current holder; the caller decides how to surface it — the
// coordinator never retries automatically.
//
// Acquire is idempotent while held: re-acquiring refreshes the heartbeat.
func (c *Coordinator) Acquire(ctx context.Context) (types.FloorLock, error) {
	lock, err := c.store.Acquire(ctx, c.roomID, c.identity)
	if err != nil {
		return lock, err
	}
	c.startHeartbeat()
	return lock, nil
}

// ForceAcquire takes the floor unconditionally (host override) and starts
// the heartbeat loop.
func (c *Coordinator) ForceAcquire(ctx context.Context) (types.FloorLock, error) {
	lock, err := c.store.ForceAcquire(ctx, c.roomID, c.identity)
	if err != nil {
		return lock, err
	}
	c.startHeartbeat()
	return lock, nil
}

// Release stops the heartbeat loop and clears the lock if this identity
// still holds it. Release is best-effort: if it never runs (page
// unload, crash), staleness reclamation frees the floor.
func (c *Coordinator) Release(ctx context.Context) error {
	c.stopHeartbeat()
	return c.store.Release(ctx, c.roomID, c.identity)
}

// Held reports whether this coordinator believes it holds the floor. The
// store remains authoritative; a partition can invalidate this locally-held
// view until the next heartbeat or snapshot.
func (c *Coordinator) Held() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held
}

func (c *Coordinator) startHeartbeat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.held = true
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.heartbeatLoop(ctx, c.done)
}

func (c *Coordinator) stopHeartbeat() {
	c.mu.Lock()
	if !c.held {
		c.mu.Unlock()
		return
	}
	c.held = false
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	cancel()
	<-done
}

// heartbeatLoop refreshes the lock timestamp every interval until cancelled.
// Heartbeat errors are logged and retried on the next tick; a run of misses
// shorter than the staleness threshold is harmless.
func (c *Coordinator) heartbeatLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hbCtx, cancel := context.WithTimeout(ctx, c.interval)
			err := c.store.Heartbeat(hbCtx, c.roomID, c.identity)
			cancel()
			if err != nil && ctx.Err() == nil {
				slog.Warn("floor heartbeat failed",
					"room", c.roomID, "identity", c.identity, "err", err)
			}
		}
	}
}
