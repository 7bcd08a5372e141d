package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/eburon-meet/orbit/internal/floor"
	sttmock "github.com/eburon-meet/orbit/pkg/provider/stt/mock"
	"github.com/eburon-meet/orbit/pkg/types"
)

// segmentRecorder collects finalized segments from a speaker.
type segmentRecorder struct {
	mu   sync.Mutex
	segs []types.TranscriptSegment
}

func (r *segmentRecorder) record(seg types.TranscriptSegment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segs = append(r.segs, seg)
}

func (r *segmentRecorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.segs))
	for i, s := range r.segs {
		out[i] = s.Text
	}
	return out
}

// fakeArchive records Save calls and serves canned catch-up reads.
type fakeArchive struct {
	mu     sync.Mutex
	saved  []types.TranscriptSegment
	recent []types.TranscriptSegment
	err    error
}

func (a *fakeArchive) Save(_ context.Context, _ string, seg types.TranscriptSegment) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.saved = append(a.saved, seg)
	return nil
}

func (a *fakeArchive) Latest(_ context.Context, _ string) (types.TranscriptSegment, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.recent) == 0 {
		return types.TranscriptSegment{}, false, a.err
	}
	return a.recent[len(a.recent)-1], true, a.err
}

func (a *fakeArchive) Recent(_ context.Context, _ string, limit int) ([]types.TranscriptSegment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	if len(a.recent) > limit {
		return a.recent[len(a.recent)-limit:], nil
	}
	return a.recent, nil
}

func (a *fakeArchive) savedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.saved)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestSpeaker(t *testing.T, store floor.Store, cfg SpeakerConfig) *Speaker {
	t.Helper()
	if cfg.RoomID == "" {
		cfg.RoomID = "r1"
	}
	if cfg.Identity == "" {
		cfg.Identity = "alice"
	}
	if cfg.Coordinator == nil {
		cfg.Coordinator = floor.NewCoordinator(floor.CoordinatorConfig{
			Store:    store,
			RoomID:   cfg.RoomID,
			Identity: cfg.Identity,
		})
	}
	if cfg.RestartBackoff == 0 {
		cfg.RestartBackoff = 5 * time.Millisecond
	}
	if cfg.QuietInterval == 0 {
		cfg.QuietInterval = time.Hour // tests flush explicitly
	}
	sp, err := NewSpeaker(cfg)
	if err != nil {
		t.Fatalf("NewSpeaker: %v", err)
	}
	return sp
}

func TestNewSpeaker_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewSpeaker(SpeakerConfig{})
	if err == nil {
		t.Fatal("NewSpeaker(SpeakerConfig{}) should fail")
	}
}

func TestSpeaker_StartStreamsAndStops(t *testing.T) {
	t.Parallel()

	store := floor.NewMemStore()
	sess := sttmock.NewSession()
	rec := &segmentRecorder{}
	sp := newTestSpeaker(t, store, SpeakerConfig{
		Recognizer: &sttmock.Provider{Session: sess},
		OnSegment:  rec.record,
	})

	ctx := context.Background()
	if err := sp.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !sp.Running() {
		t.Fatal("speaker not running after Start")
	}

	lock, _ := store.Snapshot(ctx, "r1")
	if lock.Holder != "alice" {
		t.Fatalf("floor holder = %q, want alice", lock.Holder)
	}

	sess.Emit("Hello", false)
	sess.Emit("Hello world.", true)
	waitFor(t, "finalized segment", func() bool { return len(rec.texts()) == 1 })
	if got := rec.texts()[0]; got != "Hello world." {
		t.Fatalf("segment = %q, want 'Hello world.'", got)
	}

	if err := sp.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if sp.Running() {
		t.Fatal("speaker still running after Stop")
	}

	lock, _ = store.Snapshot(ctx, "r1")
	if lock.Held() {
		t.Fatalf("floor still held by %q after Stop", lock.Holder)
	}
}

func TestSpeaker_ContentionDoesNotStart(t *testing.T) {
	t.Parallel()

	store := floor.NewMemStore()
	if _, err := store.Acquire(context.Background(), "r1", "bob"); err != nil {
		t.Fatalf("seed acquire: %v", err)
	}

	sp := newTestSpeaker(t, store, SpeakerConfig{
		Recognizer: &sttmock.Provider{},
	})

	err := sp.Start(context.Background())
	if !errors.Is(err, floor.ErrLockHeld) {
		t.Fatalf("Start err = %v, want ErrLockHeld", err)
	}
	var held *floor.LockHeldError
	if !errors.As(err, &held) || held.Holder != "bob" {
		t.Fatalf("error does not name the holder: %v", err)
	}
	if sp.Running() {
		t.Fatal("speaker running after contended Start")
	}
}

func TestSpeaker_RestartsAfterStreamEnds(t *testing.T) {
	t.Parallel()

	store := floor.NewMemStore()
	sess := sttmock.NewSession()
	provider := &sttmock.Provider{Session: sess}
	sp := newTestSpeaker(t, store, SpeakerConfig{
		Recognizer: provider,
	})

	ctx := context.Background()
	if err := sp.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sp.Stop(ctx)

	waitFor(t, "first stream", func() bool { return provider.StartStreamCallCount() >= 1 })
	// Ending the stream mid-turn must make the loop reopen it.
	_ = sess.Close()
	waitFor(t, "stream restart", func() bool { return provider.StartStreamCallCount() >= 2 })
}

func TestSpeaker_PermissionDeniedStopsRetrying(t *testing.T) {
	t.Parallel()

	store := floor.NewMemStore()
	provider := &sttmock.Provider{
		StartStreamErr: fmt.Errorf("open microphone: %w", ErrPermissionDenied),
	}
	sp := newTestSpeaker(t, store, SpeakerConfig{
		Recognizer: provider,
	})

	ctx := context.Background()
	if err := sp.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sp.Stop(ctx)

	waitFor(t, "start attempt", func() bool { return provider.StartStreamCallCount() == 1 })
	// The loop must not retry a permission failure.
	time.Sleep(50 * time.Millisecond)
	if got := provider.StartStreamCallCount(); got != 1 {
		t.Fatalf("StartStream called %d times, want 1", got)
	}
}

func TestSpeaker_TransientStartErrorRetries(t *testing.T) {
	t.Parallel()

	store := floor.NewMemStore()
	provider := &sttmock.Provider{
		StartStreamErr: errors.New("dial: connection refused"),
	}
	sp := newTestSpeaker(t, store, SpeakerConfig{
		Recognizer: provider,
	})

	ctx := context.Background()
	if err := sp.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sp.Stop(ctx)

	waitFor(t, "retries", func() bool { return provider.StartStreamCallCount() >= 2 })
}

func TestSpeaker_ArchivesSegments(t *testing.T) {
	t.Parallel()

	store := floor.NewMemStore()
	sess := sttmock.NewSession()
	archive := &fakeArchive{}
	sp := newTestSpeaker(t, store, SpeakerConfig{
		Recognizer: &sttmock.Provider{Session: sess},
		Archive:    archive,
	})

	ctx := context.Background()
	if err := sp.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sp.Stop(ctx)

	sess.Emit("Good morning.", true)
	waitFor(t, "archived segment", func() bool { return archive.savedCount() == 1 })
}
