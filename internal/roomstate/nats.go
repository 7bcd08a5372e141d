package roomstate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/eburon-meet/orbit/pkg/types"
)

// NATSChannel is a [Channel] backed by core NATS pub/sub. Snapshots are
// fire-and-forget JSON on a per-room subject; durability is deliberately not
// used, because every snapshot is a full replacement and the reconcile poll
// heals any gap.
type NATSChannel struct {
	nc *nats.Conn
}

// subjectFor returns the per-room snapshot subject. Room IDs are short
// URL-safe codes, so no escaping is applied.
func subjectFor(roomID string) string {
	return "orbit.room." + roomID + ".state"
}

// ConnectNATS dials url with infinite reconnects and returns a [NATSChannel].
func ConnectNATS(url string) (*NATSChannel, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("roomstate: nats connect: %w", err)
	}
	return &NATSChannel{nc: nc}, nil
}

var _ Channel = (*NATSChannel)(nil)

// Publish implements [Channel].
func (c *NATSChannel) Publish(_ context.Context, snap types.RoomSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("roomstate: marshal snapshot: %w", err)
	}
	if err := c.nc.Publish(subjectFor(snap.RoomID), data); err != nil {
		return fmt.Errorf("roomstate: publish room %q: %w", snap.RoomID, err)
	}
	return nil
}

// Subscribe implements [Channel]. Each subscription tracks the highest
// version it has delivered and drops older snapshots, so redeliveries after
// a reconnect do not rewind the consumer's view.
func (c *NATSChannel) Subscribe(_ context.Context, roomID string, fn Handler) (func(), error) {
	var lastVersion int64
	sub, err := c.nc.Subscribe(subjectFor(roomID), func(msg *nats.Msg) {
		var snap types.RoomSnapshot
		if err := json.Unmarshal(msg.Data, &snap); err != nil {
			slog.Warn("malformed room snapshot, skipping", "room", roomID, "err", err)
			return
		}
		if snap.Version != 0 && snap.Version <= lastVersion {
			return
		}
		if snap.Version > lastVersion {
			lastVersion = snap.Version
		}
		fn(snap)
	})
	if err != nil {
		return nil, fmt.Errorf("roomstate: subscribe room %q: %w", roomID, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Close drains the connection, letting in-flight deliveries finish.
func (c *NATSChannel) Close() {
	if err := c.nc.Drain(); err != nil {
		slog.Warn("NATS drain failed", "err", err)
	}
}
