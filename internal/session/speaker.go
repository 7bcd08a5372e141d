package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eburon-meet/orbit/internal/floor"
	"github.com/eburon-meet/orbit/internal/observe"
	"github.com/eburon-meet/orbit/internal/segment"
	"github.com/eburon-meet/orbit/pkg/provider/stt"
	"github.com/eburon-meet/orbit/pkg/types"
)

// DefaultRestartBackoff is the pause before reopening a dropped recognition
// stream.
const DefaultRestartBackoff = time.Second

// SpeakerConfig assembles a [Speaker].
type SpeakerConfig struct {
	// RoomID is the room to speak in.
	RoomID string

	// Identity is the participant identity acquiring the floor.
	Identity string

	// Coordinator is the holder-side floor client for this room/identity.
	// Required.
	Coordinator *floor.Coordinator

	// Recognizer opens streaming recognition sessions. Required.
	Recognizer stt.Provider

	// StreamConfig is passed to every StartStream call.
	StreamConfig stt.StreamConfig

	// Archive persists finalized segments. Optional; persistence failures
	// are logged, never fatal.
	Archive TranscriptArchive

	// OnSegment receives every finalized segment, after archiving. Optional.
	// This is the broadcast hook toward remote listeners.
	OnSegment func(types.TranscriptSegment)

	// OnPartial receives the live unshipped preview. Optional.
	OnPartial func(string)

	// QuietInterval overrides the segmenter's silence-flush window.
	QuietInterval time.Duration

	// RestartBackoff is the pause before reopening a dropped stream.
	// Default: [DefaultRestartBackoff].
	RestartBackoff time.Duration

	// Metrics records session gauges and segment counters. Optional.
	Metrics *observe.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Speaker drives one participant's speaking turn: floor lock, recognition,
// segmentation, persistence, broadcast.
type Speaker struct {
	roomID      string
	identity    string
	coordinator *floor.Coordinator
	recognizer  stt.Provider
	streamCfg   stt.StreamConfig
	archive     TranscriptArchive
	onSegment   func(types.TranscriptSegment)
	backoff     time.Duration
	metrics     *observe.Metrics
	log         *slog.Logger

	segmenter *segment.Segmenter

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSpeaker validates cfg and returns a stopped Speaker.
func NewSpeaker(cfg SpeakerConfig) (*Speaker, error) {
	var errs []error
	if cfg.RoomID == "" {
		errs = append(errs, errors.New("session: RoomID is required"))
	}
	if cfg.Identity == "" {
		errs = append(errs, errors.New("session: Identity is required"))
	}
	if cfg.Coordinator == nil {
		errs = append(errs, errors.New("session: Coordinator is required"))
	}
	if cfg.Recognizer == nil {
		errs = append(errs, errors.New("session: Recognizer is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	backoff := cfg.RestartBackoff
	if backoff <= 0 {
		backoff = DefaultRestartBackoff
	}

	s := &Speaker{
		roomID:      cfg.RoomID,
		identity:    cfg.Identity,
		coordinator: cfg.Coordinator,
		recognizer:  cfg.Recognizer,
		streamCfg:   cfg.StreamConfig,
		archive:     cfg.Archive,
		onSegment:   cfg.OnSegment,
		backoff:     backoff,
		metrics:     cfg.Metrics,
		log:         log.With("room", cfg.RoomID, "identity", cfg.Identity),
	}
	s.segmenter = segment.NewSegmenter(segment.SegmenterConfig{
		SpeakerID:     cfg.Identity,
		Language:      cfg.StreamConfig.Language,
		QuietInterval: cfg.QuietInterval,
		OnFinal:       s.handleFinal,
		OnPartial:     cfg.OnPartial,
	})
	return s, nil
}

// Start acquires the floor and begins recognition. On contention the error
// matches [floor.ErrLockHeld] and names the current holder; nothing is
// started. Start is not idempotent — a running speaker must be stopped first.
func (s *Speaker) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("session: speaker already started")
	}
	s.mu.Unlock()

	if _, err := s.coordinator.Acquire(ctx); err != nil {
		s.metrics.RecordFloorAcquire(ctx, acquireStatus(err))
		return fmt.Errorf("session: acquire floor: %w", err)
	}
	s.metrics.RecordFloorAcquire(ctx, "granted")
	s.startLoop()
	return nil
}

// ForceStart takes the floor unconditionally (host override) and begins
// recognition.
func (s *Speaker) ForceStart(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("session: speaker already started")
	}
	s.mu.Unlock()

	if _, err := s.coordinator.ForceAcquire(ctx); err != nil {
		return fmt.Errorf("session: force acquire floor: %w", err)
	}
	s.metrics.RecordFloorAcquire(ctx, "forced")
	s.startLoop()
	return nil
}

// Stop flushes trailing speech, stops recognition, resets the segmenter, and
// releases the floor. Safe to call on a stopped speaker.
func (s *Speaker) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()
	<-done

	s.segmenter.Flush()
	s.segmenter.Reset()

	if err := s.coordinator.Release(ctx); err != nil {
		// Best-effort by design: staleness reclamation frees the floor.
		s.log.Warn("floor release failed", "err", err)
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(ctx, -1)
	}
	return nil
}

// Running reports whether the recognition loop is active.
func (s *Speaker) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Speaker) startLoop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(ctx, 1)
	}
	go s.run(ctx, s.done)
}

// run opens recognition sessions until cancelled. A dropped stream is
// reopened after a backoff; a permission-denied start error ends the loop,
// since retrying cannot succeed until the user intervenes.
func (s *Speaker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for ctx.Err() == nil {
		handle, err := s.recognizer.StartStream(ctx, s.streamCfg)
		if err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				s.log.Error("recognition permission denied, not retrying", "err", err)
				return
			}
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("recognition start failed, retrying", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.backoff):
			}
			continue
		}

		s.consume(ctx, handle)
		_ = handle.Close()

		if ctx.Err() == nil {
			// Stream ended mid-turn: flush what we heard, then reopen.
			s.segmenter.Flush()
			s.log.Info("recognition stream ended, restarting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.backoff):
			}
		}
	}
}

// consume feeds one recognition session's results into the segmenter until
// the stream closes or the context ends.
func (s *Speaker) consume(ctx context.Context, handle stt.SessionHandle) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-handle.Results():
			if !ok {
				return
			}
			s.segmenter.Update(t.Text)
			if t.IsFinal {
				s.segmenter.Flush()
			}
		}
	}
}

// handleFinal archives and broadcasts one finalized segment.
func (s *Speaker) handleFinal(seg types.TranscriptSegment) {
	ctx := context.Background()
	s.metrics.RecordSegmentFinalized(ctx, seg.SpeakerID)

	if s.archive != nil {
		if err := s.archive.Save(ctx, s.roomID, seg); err != nil {
			s.log.Warn("segment archive failed", "segment_id", seg.ID, "err", err)
		}
	}
	if s.onSegment != nil {
		s.onSegment(seg)
	}
}

// acquireStatus maps an acquire error to a metrics status label.
func acquireStatus(err error) string {
	if errors.Is(err, floor.ErrLockHeld) {
		return "contended"
	}
	return "error"
}
