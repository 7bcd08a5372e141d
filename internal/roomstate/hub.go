package roomstate

import (
	"context"
	"sync"

	"github.com/eburon-meet/orbit/pkg/types"
)

// Hub is the in-process [Channel] for single-node deployments and tests.
//
// Each subscriber owns one delivery goroutine fed by a single-slot mailbox:
// a publish overwrites the slot, so a subscriber that falls behind skips
// straight to the newest snapshot instead of draining a backlog. Publishers
// never block.
type Hub struct {
	mu     sync.Mutex
	nextID int64
	rooms  map[string]map[int64]*hubSub
}

type hubSub struct {
	fn   Handler
	wake chan struct{}
	done chan struct{}

	mu          sync.Mutex
	pending     *types.RoomSnapshot
	lastVersion int64
}

// NewHub creates an empty [Hub].
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[int64]*hubSub)}
}

var _ Channel = (*Hub)(nil)

// Publish implements [Channel].
func (h *Hub) Publish(_ context.Context, snap types.RoomSnapshot) error {
	h.mu.Lock()
	subs := make([]*hubSub, 0, len(h.rooms[snap.RoomID]))
	for _, s := range h.rooms[snap.RoomID] {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.offer(snap)
	}
	return nil
}

// Subscribe implements [Channel].
func (h *Hub) Subscribe(_ context.Context, roomID string, fn Handler) (func(), error) {
	s := &hubSub{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[int64]*hubSub)
	}
	h.rooms[roomID][id] = s
	h.mu.Unlock()

	go s.run()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.rooms[roomID], id)
			if len(h.rooms[roomID]) == 0 {
				delete(h.rooms, roomID)
			}
			h.mu.Unlock()
			close(s.done)
		})
	}
	return unsubscribe, nil
}

// offer places snap in the mailbox unless an already-seen or newer version
// occupies it.
func (s *hubSub) offer(snap types.RoomSnapshot) {
	s.mu.Lock()
	if snap.Version != 0 && snap.Version <= s.lastVersion {
		s.mu.Unlock()
		return
	}
	if s.pending == nil || snap.Version >= s.pending.Version {
		s.pending = &snap
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *hubSub) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		snap := s.pending
		s.pending = nil
		if snap != nil && snap.Version > s.lastVersion {
			s.lastVersion = snap.Version
		}
		s.mu.Unlock()

		if snap != nil {
			s.fn(*snap)
		}
	}
}
