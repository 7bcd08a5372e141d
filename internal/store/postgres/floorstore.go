package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/eburon-meet/orbit/internal/floor"
	"github.com/eburon-meet/orbit/pkg/types"
)

// acquireQuery is the single conditional write that makes Acquire atomic.
// The row is inserted if the room has no lock; an existing row is overwritten
// only when the current holder is the caller or the lock has gone stale.
// When the WHERE clause rejects the update no row is returned, which the
// caller maps to contention. An absent row means the room is unlocked.
const acquireQuery = `
	INSERT INTO floor_locks (room_id, holder_identity)
	VALUES ($1, $2)
	ON CONFLICT (room_id) DO UPDATE SET
		holder_identity = EXCLUDED.holder_identity,
		acquired_at = CASE
			WHEN floor_locks.holder_identity = EXCLUDED.holder_identity
			     AND floor_locks.heartbeat_at >= now() - make_interval(secs => $3)
			THEN floor_locks.acquired_at
			ELSE now()
		END,
		heartbeat_at = now()
	WHERE floor_locks.holder_identity = EXCLUDED.holder_identity
	   OR floor_locks.heartbeat_at < now() - make_interval(secs => $3)
	RETURNING holder_identity, acquired_at, heartbeat_at`

// FloorStore is a [floor.Store] backed by the floor_locks table. All
// timestamps come from the database's now(), making the database the sole
// staleness authority.
type FloorStore struct {
	db       DB
	stale    time.Duration
	onChange func(types.FloorLock)
}

// FloorStoreOption configures a [FloorStore].
type FloorStoreOption func(*FloorStore)

// WithStaleThreshold overrides [floor.DefaultStaleThreshold].
func WithStaleThreshold(d time.Duration) FloorStoreOption {
	return func(s *FloorStore) { s.stale = d }
}

// WithChangeHook registers fn to be called after every successful mutation
// with the resulting lock state. The room state channel uses this to publish
// snapshots. Mutations made by other processes are not observed here; the
// channel's reconcile poll covers those.
func WithChangeHook(fn func(types.FloorLock)) FloorStoreOption {
	return func(s *FloorStore) { s.onChange = fn }
}

// NewFloorStore creates a [FloorStore] on the given database connection or
// pool. The caller is responsible for calling [Migrate] to ensure the schema
// exists before issuing queries.
func NewFloorStore(db DB, opts ...FloorStoreOption) *FloorStore {
	s := &FloorStore{db: db, stale: floor.DefaultStaleThreshold}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ floor.Store = (*FloorStore)(nil)

// Acquire implements [floor.Store] with exactly one conditional write. On
// contention it re-reads the row to name the current holder in the returned
// [*floor.LockHeldError].
func (s *FloorStore) Acquire(ctx context.Context, roomID, identity string) (types.FloorLock, error) {
	lock := types.FloorLock{RoomID: roomID}
	err := s.db.QueryRow(ctx, acquireQuery, roomID, identity, s.stale.Seconds()).
		Scan(&lock.Holder, &lock.AcquiredAt, &lock.HeartbeatAt)
	if err == nil {
		s.notify(lock)
		return lock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return lock, fmt.Errorf("postgres: acquire floor for room %q: %w", roomID, err)
	}

	// Contention. Read the holder so the caller can surface "locked by X".
	// The lock may have been released between the two statements, in which
	// case the holder stays empty and the caller simply retries.
	cur, err := s.Snapshot(ctx, roomID)
	if err != nil {
		return lock, err
	}
	return cur, &floor.LockHeldError{RoomID: roomID, Holder: cur.Holder}
}

// ForceAcquire implements [floor.Store].
func (s *FloorStore) ForceAcquire(ctx context.Context, roomID, identity string) (types.FloorLock, error) {
	const query = `
		INSERT INTO floor_locks (room_id, holder_identity)
		VALUES ($1, $2)
		ON CONFLICT (room_id) DO UPDATE SET
			holder_identity = EXCLUDED.holder_identity,
			acquired_at = now(),
			heartbeat_at = now()
		RETURNING holder_identity, acquired_at, heartbeat_at`

	lock := types.FloorLock{RoomID: roomID}
	err := s.db.QueryRow(ctx, query, roomID, identity).
		Scan(&lock.Holder, &lock.AcquiredAt, &lock.HeartbeatAt)
	if err != nil {
		return lock, fmt.Errorf("postgres: force acquire floor for room %q: %w", roomID, err)
	}
	s.notify(lock)
	return lock, nil
}

// Heartbeat implements [floor.Store]. Updating zero rows (caller is not the
// holder) is not an error.
func (s *FloorStore) Heartbeat(ctx context.Context, roomID, identity string) error {
	const query = `
		UPDATE floor_locks SET heartbeat_at = now()
		WHERE room_id = $1 AND holder_identity = $2`

	if _, err := s.db.Exec(ctx, query, roomID, identity); err != nil {
		return fmt.Errorf("postgres: heartbeat for room %q: %w", roomID, err)
	}
	return nil
}

// Release implements [floor.Store]. Deleting zero rows (caller is not the
// holder) is not an error.
func (s *FloorStore) Release(ctx context.Context, roomID, identity string) error {
	const query = `
		DELETE FROM floor_locks
		WHERE room_id = $1 AND holder_identity = $2`

	tag, err := s.db.Exec(ctx, query, roomID, identity)
	if err != nil {
		return fmt.Errorf("postgres: release floor for room %q: %w", roomID, err)
	}
	if tag.RowsAffected() > 0 {
		s.notify(types.FloorLock{RoomID: roomID})
	}
	return nil
}

// Snapshot implements [floor.Store]. The staleness filter lives in the query,
// so an expired lock is reported as unlocked without being mutated.
func (s *FloorStore) Snapshot(ctx context.Context, roomID string) (types.FloorLock, error) {
	const query = `
		SELECT holder_identity, acquired_at, heartbeat_at
		FROM floor_locks
		WHERE room_id = $1 AND heartbeat_at >= now() - make_interval(secs => $2)`

	lock := types.FloorLock{RoomID: roomID}
	err := s.db.QueryRow(ctx, query, roomID, s.stale.Seconds()).
		Scan(&lock.Holder, &lock.AcquiredAt, &lock.HeartbeatAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.FloorLock{RoomID: roomID}, nil
		}
		return lock, fmt.Errorf("postgres: snapshot floor for room %q: %w", roomID, err)
	}
	return lock, nil
}

func (s *FloorStore) notify(lock types.FloorLock) {
	if s.onChange != nil {
		s.onChange(lock)
	}
}
