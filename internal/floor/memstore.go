package floor

import (
	"context"
	"sync"
	"time"

	"github.com/eburon-meet/orbit/pkg/types"
)

// MemStore is an in-memory [Store] for single-node deployments and tests.
// The mutex makes every acquire a single atomic check-and-set, mirroring the
// conditional-write semantics of the Postgres store.
type MemStore struct {
	mu       sync.Mutex
	locks    map[string]types.FloorLock
	stale    time.Duration
	now      func() time.Time
	onChange func(types.FloorLock)
}

// MemStoreOption configures a [MemStore].
type MemStoreOption func(*MemStore)

// WithStaleThreshold overrides [DefaultStaleThreshold].
func WithStaleThreshold(d time.Duration) MemStoreOption {
	return func(s *MemStore) { s.stale = d }
}

// WithClock overrides the store's clock. Intended for tests.
func WithClock(now func() time.Time) MemStoreOption {
	return func(s *MemStore) { s.now = now }
}

// WithChangeHook registers fn to be called (outside the store lock) after
// every successful mutation with the resulting lock state. The room state
// channel uses this to publish snapshots.
func WithChangeHook(fn func(types.FloorLock)) MemStoreOption {
	return func(s *MemStore) { s.onChange = fn }
}

// NewMemStore creates an empty [MemStore].
func NewMemStore(opts ...MemStoreOption) *MemStore {
	s := &MemStore{
		locks: make(map[string]types.FloorLock),
		stale: DefaultStaleThreshold,
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ Store = (*MemStore)(nil)

// Acquire implements [Store].
func (s *MemStore) Acquire(_ context.Context, roomID, identity string) (types.FloorLock, error) {
	s.mu.Lock()
	now := s.now()
	cur, ok := s.locks[roomID]
	if ok && cur.Holder != identity && now.Sub(cur.HeartbeatAt) <= s.stale {
		s.mu.Unlock()
		return cur, &LockHeldError{RoomID: roomID, Holder: cur.Holder}
	}

	lock := types.FloorLock{RoomID: roomID, Holder: identity, AcquiredAt: now, HeartbeatAt: now}
	if ok && cur.Holder == identity {
		// Idempotent re-acquire keeps the original acquisition time.
		lock.AcquiredAt = cur.AcquiredAt
	}
	s.locks[roomID] = lock
	s.mu.Unlock()

	s.notify(lock)
	return lock, nil
}

// ForceAcquire implements [Store].
func (s *MemStore) ForceAcquire(_ context.Context, roomID, identity string) (types.FloorLock, error) {
	s.mu.Lock()
	now := s.now()
	lock := types.FloorLock{RoomID: roomID, Holder: identity, AcquiredAt: now, HeartbeatAt: now}
	s.locks[roomID] = lock
	s.mu.Unlock()

	s.notify(lock)
	return lock, nil
}

// Heartbeat implements [Store].
func (s *MemStore) Heartbeat(_ context.Context, roomID, identity string) error {
	s.mu.Lock()
	cur, ok := s.locks[roomID]
	if !ok || cur.Holder != identity {
		s.mu.Unlock()
		return nil
	}
	cur.HeartbeatAt = s.now()
	s.locks[roomID] = cur
	s.mu.Unlock()
	return nil
}

// Release implements [Store].
func (s *MemStore) Release(_ context.Context, roomID, identity string) error {
	s.mu.Lock()
	cur, ok := s.locks[roomID]
	if !ok || cur.Holder != identity {
		s.mu.Unlock()
		return nil
	}
	delete(s.locks, roomID)
	s.mu.Unlock()

	s.notify(types.FloorLock{RoomID: roomID})
	return nil
}

// Snapshot implements [Store].
func (s *MemStore) Snapshot(_ context.Context, roomID string) (types.FloorLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.locks[roomID]
	if !ok || s.now().Sub(cur.HeartbeatAt) > s.stale {
		return types.FloorLock{RoomID: roomID}, nil
	}
	return cur, nil
}

func (s *MemStore) notify(lock types.FloorLock) {
	if s.onChange != nil {
		s.onChange(lock)
	}
}
