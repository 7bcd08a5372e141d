package roomstate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eburon-meet/orbit/internal/floor"
	"github.com/eburon-meet/orbit/pkg/types"
)

// DefaultReconcileInterval is how often the reconciler re-reads the floor
// store for each watched room.
const DefaultReconcileInterval = 15 * time.Second

// Reconciler periodically reads the floor store for watched rooms and
// publishes a snapshot whenever the holding episode differs from what was
// last published. It covers the two gaps the change hook cannot see:
// mutations by other processes, and locks that expire by staleness without
// any mutation at all.
type Reconciler struct {
	store    floor.Store
	tracker  *Tracker
	interval time.Duration

	mu    sync.Mutex
	rooms map[string]types.FloorLock
}

// NewReconciler creates a [Reconciler] with the given poll interval;
// non-positive means [DefaultReconcileInterval].
func NewReconciler(store floor.Store, tracker *Tracker, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &Reconciler{
		store:    store,
		tracker:  tracker,
		interval: interval,
		rooms:    make(map[string]types.FloorLock),
	}
}

// Watch adds roomID to the poll set.
func (r *Reconciler) Watch(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[roomID]; !ok {
		r.rooms[roomID] = types.FloorLock{RoomID: roomID}
	}
}

// Unwatch removes roomID from the poll set.
func (r *Reconciler) Unwatch(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, roomID)
}

// Run polls until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep reconciles every watched room once.
func (r *Reconciler) sweep(ctx context.Context) {
	r.mu.Lock()
	roomIDs := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		roomIDs = append(roomIDs, id)
	}
	r.mu.Unlock()

	for _, roomID := range roomIDs {
		lock, err := r.store.Snapshot(ctx, roomID)
		if err != nil {
			slog.Warn("floor reconcile read failed", "room", roomID, "err", err)
			continue
		}

		r.mu.Lock()
		prev, watched := r.rooms[roomID]
		changed := watched && !sameEpisode(prev, lock)
		if changed {
			r.rooms[roomID] = lock
		}
		r.mu.Unlock()

		if changed {
			r.tracker.LockChanged(lock)
		}
	}
}

// sameEpisode reports whether two lock states describe the same holding
// episode. Heartbeat refreshes are intentionally ignored; they would
// otherwise cause a publish on every sweep.
func sameEpisode(a, b types.FloorLock) bool {
	return a.Holder == b.Holder && a.AcquiredAt.Equal(b.AcquiredAt)
}
