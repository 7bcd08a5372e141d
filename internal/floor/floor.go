// Package floor implements distributed floor control for meeting rooms: at
// most one participant identity may hold the speaking/broadcasting right for
// a room at any moment.
//
// The mutual-exclusion guarantee lives in the [Store]: every acquire is a
// single atomic conditional write against the backing store, so two clients
// racing for an unlocked room produce exactly one winner. Staleness is a pure
// function of "store now minus last heartbeat" — the store is the only
// timestamp authority, and a lock whose heartbeat is older than the staleness
// threshold is treated as unlocked by new acquire attempts. No background
// sweep is required.
//
// [Coordinator] is the holder-side layer: it acquires through a Store, emits
// periodic heartbeats while the floor is held, and releases best-effort on
// teardown (staleness reclamation is the backstop for crashed holders).
package floor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eburon-meet/orbit/pkg/types"
)

// DefaultStaleThreshold is how long a lock may go without a heartbeat before
// it is reclaimable, tolerating roughly four missed heartbeats.
const DefaultStaleThreshold = 2 * time.Minute

// DefaultHeartbeatInterval is the holder-side heartbeat period.
const DefaultHeartbeatInterval = 30 * time.Second

// ErrLockHeld is the sentinel matched by [errors.Is] when an acquire fails
// because another identity holds the floor. The concrete error is a
// [*LockHeldError] carrying the current holder.
var ErrLockHeld = errors.New("floor is held by another identity")

// LockHeldError reports a failed acquire, naming the current holder so the
// caller can surface "locked by X". It matches [ErrLockHeld] via errors.Is.
type LockHeldError struct {
	// RoomID is the contended room.
	RoomID string

	// Holder is the identity currently holding the floor.
	Holder string
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("floor: room %q is held by %q", e.RoomID, e.Holder)
}

// Is reports whether target is [ErrLockHeld].
func (e *LockHeldError) Is(target error) bool { return target == ErrLockHeld }

// Store is the atomic floor-lock table. Implementations must guarantee that
// Acquire is a single conditional write: concurrent acquires for an unlocked
// room yield exactly one winner, and the losers receive a [*LockHeldError].
//
// Rooms are created implicitly on first reference and never explicitly
// destroyed; stale locks are reclaimed lazily at acquire time.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Acquire grants the floor of roomID to identity iff the room is unlocked,
	// stale, or already held by identity (idempotent re-acquire refreshes the
	// heartbeat). On contention it returns a [*LockHeldError]; any other error
	// is a store failure.
	Acquire(ctx context.Context, roomID, identity string) (types.FloorLock, error)

	// ForceAcquire grants the floor to identity unconditionally, displacing
	// any current holder. Reserved for host override.
	ForceAcquire(ctx context.Context, roomID, identity string) (types.FloorLock, error)

	// Heartbeat refreshes the lock timestamp iff identity is the current
	// holder. A heartbeat from a non-holder is a no-op, not an error — a stale
	// heartbeat from a just-released holder must not resurrect the lock.
	Heartbeat(ctx context.Context, roomID, identity string) error

	// Release clears the lock iff identity is the current holder; otherwise a
	// no-op.
	Release(ctx context.Context, roomID, identity string) error

	// Snapshot returns the room's current lock state with staleness already
	// applied: an expired lock is reported as unlocked.
	Snapshot(ctx context.Context, roomID string) (types.FloorLock, error)
}
