// Package roomstate distributes room snapshots to session participants.
//
// Every delivery is a complete [types.RoomSnapshot], never a delta: consumers
// reconcile their entire view against each snapshot, so a missed delivery is
// healed by the next one. Rapid mutations may be coalesced — only the latest
// state matters. Snapshots carry a monotonically increasing per-room version
// assigned by the [Tracker]; subscribers drop versions they have already seen,
// which makes redelivery after a reconnect harmless.
package roomstate

import (
	"context"

	"github.com/eburon-meet/orbit/pkg/types"
)

// Handler receives room snapshots. It is called from the channel's delivery
// goroutine and must not block for long; slow handlers cause coalescing, not
// backpressure.
type Handler func(types.RoomSnapshot)

// Channel is the transport for room snapshots. [Hub] is the in-process
// implementation; [NATSChannel] spans processes.
type Channel interface {
	// Publish delivers snap to all subscribers of snap.RoomID. Publish never
	// blocks on slow subscribers.
	Publish(ctx context.Context, snap types.RoomSnapshot) error

	// Subscribe registers fn for snapshots of roomID and returns an
	// unsubscribe function. After unsubscribe returns, fn is not called again.
	Subscribe(ctx context.Context, roomID string, fn Handler) (func(), error)
}
