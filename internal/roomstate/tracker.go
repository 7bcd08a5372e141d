package roomstate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/eburon-meet/orbit/pkg/types"
)

// Tracker turns floor-lock mutations into versioned snapshots on a [Channel].
// It owns the per-room version counters; wire [Tracker.LockChanged] as the
// change hook of the floor store so that every successful mutation produces
// exactly one snapshot.
type Tracker struct {
	ch Channel

	mu       sync.Mutex
	versions map[string]int64
}

// NewTracker creates a [Tracker] publishing to ch.
func NewTracker(ch Channel) *Tracker {
	return &Tracker{ch: ch, versions: make(map[string]int64)}
}

// LockChanged publishes a snapshot reflecting lock under the room's next
// version. Publish failures are logged, not returned: the reconcile poll and
// the full-replacement contract make a lost snapshot self-healing.
func (t *Tracker) LockChanged(lock types.FloorLock) {
	t.mu.Lock()
	t.versions[lock.RoomID]++
	snap := types.RoomSnapshot{
		RoomID:  lock.RoomID,
		Lock:    lock,
		Version: t.versions[lock.RoomID],
	}
	t.mu.Unlock()

	if err := t.ch.Publish(context.Background(), snap); err != nil {
		slog.Warn("room snapshot publish failed",
			"room", lock.RoomID, "version", snap.Version, "err", err)
	}
}
