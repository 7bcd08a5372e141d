package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eburon-meet/orbit/internal/floor"
	"github.com/eburon-meet/orbit/internal/observe"
	"github.com/eburon-meet/orbit/internal/pipeline"
	"github.com/eburon-meet/orbit/internal/playback"
	"github.com/eburon-meet/orbit/internal/roomstate"
	"github.com/eburon-meet/orbit/internal/segment"
	"github.com/eburon-meet/orbit/pkg/provider/translate"
	"github.com/eburon-meet/orbit/pkg/provider/tts"
	"github.com/eburon-meet/orbit/pkg/types"
)

// DefaultCatchUpLimit is how many archived segments a listener replays when
// listening is switched on manually.
const DefaultCatchUpLimit = 1

// ListenerConfig assembles a [Listener].
type ListenerConfig struct {
	// RoomID is the room to follow.
	RoomID string

	// Identity is this participant's identity; segments it produced itself
	// are never played back to it.
	Identity string

	// Channel delivers room state snapshots. Required.
	Channel roomstate.Channel

	// Floor serves the initial lock snapshot on Start. Required.
	Floor floor.Store

	// Translator and Synthesizer feed the listener's pipeline. Required.
	Translator  translate.Provider
	Synthesizer tts.Provider

	// Player renders clips. Required.
	Player playback.Player

	// Archive serves catch-up reads on manual listen-on. Optional.
	Archive TranscriptArchive

	// TargetLanguage is the language clips are translated into.
	TargetLanguage string

	// SourceLanguage, TranslateEngine, TTSEngine, and Voice are session
	// defaults for dispatched items.
	SourceLanguage  string
	TranslateEngine string
	TTSEngine       string
	Voice           string

	// CatchUpLimit caps the archived segments replayed on manual listen-on.
	// Default: [DefaultCatchUpLimit].
	CatchUpLimit int

	// OnEvent, if non-nil, observes every pipeline stage event (UI tap).
	OnEvent func(pipeline.Event)

	// OnHolderChange, if non-nil, is notified whenever the remote floor
	// holder changes; an empty holder means the floor cleared.
	OnHolderChange func(holder string)

	// Metrics records listener gauges. Optional.
	Metrics *observe.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Listener follows a room: it mirrors the remote floor holder into its
// listening mode, turns incoming transcript text into translated speech, and
// plays the clips strictly in completion order.
type Listener struct {
	roomID       string
	identity     string
	channel      roomstate.Channel
	floorStore   floor.Store
	archive      TranscriptArchive
	catchUpLimit int
	onHolder     func(string)
	metrics      *observe.Metrics
	log          *slog.Logger

	pipeline *pipeline.Pipeline
	queue    *playback.Queue
	delta    *segment.DeltaTracker

	mu           sync.Mutex
	started      bool
	listening    bool
	remoteHolder string
	unsubscribe  func()
}

// NewListener validates cfg and returns a stopped Listener.
func NewListener(cfg ListenerConfig) (*Listener, error) {
	var errs []error
	if cfg.RoomID == "" {
		errs = append(errs, errors.New("session: RoomID is required"))
	}
	if cfg.Identity == "" {
		errs = append(errs, errors.New("session: Identity is required"))
	}
	if cfg.Channel == nil {
		errs = append(errs, errors.New("session: Channel is required"))
	}
	if cfg.Floor == nil {
		errs = append(errs, errors.New("session: Floor is required"))
	}
	if cfg.Player == nil {
		errs = append(errs, errors.New("session: Player is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	limit := cfg.CatchUpLimit
	if limit <= 0 {
		limit = DefaultCatchUpLimit
	}

	l := &Listener{
		roomID:       cfg.RoomID,
		identity:     cfg.Identity,
		channel:      cfg.Channel,
		floorStore:   cfg.Floor,
		archive:      cfg.Archive,
		catchUpLimit: limit,
		onHolder:     cfg.OnHolderChange,
		metrics:      cfg.Metrics,
		log:          log.With("room", cfg.RoomID, "identity", cfg.Identity),
		delta:        segment.NewDeltaTracker(),
	}
	l.queue = playback.New(cfg.Player,
		playback.WithLogger(l.log),
		playback.WithMetrics(cfg.Metrics),
	)

	onEvent := l.handlePipelineEvent
	if cfg.OnEvent != nil {
		tap := cfg.OnEvent
		inner := onEvent
		onEvent = func(ev pipeline.Event) {
			inner(ev)
			tap(ev)
		}
	}
	p, err := pipeline.New(pipeline.Config{
		Translator:  cfg.Translator,
		Synthesizer: cfg.Synthesizer,
		OnEvent:     onEvent,
		Defaults: pipeline.Defaults{
			SourceLanguage:  cfg.SourceLanguage,
			TargetLanguage:  cfg.TargetLanguage,
			TranslateEngine: cfg.TranslateEngine,
			TTSEngine:       cfg.TTSEngine,
			Voice:           cfg.Voice,
		},
		Metrics: cfg.Metrics,
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}
	l.pipeline = p
	return l, nil
}

// Start reads the room's current lock state, applies it, and subscribes to
// subsequent mutations.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return errors.New("session: listener already started")
	}
	l.started = true
	l.mu.Unlock()

	// Deliver current state first, then mutations; the version guard in the
	// channel drops anything older that races in between.
	lock, err := l.floorStore.Snapshot(ctx, l.roomID)
	if err != nil {
		return err
	}
	l.applyLock(lock)

	unsub, err := l.channel.Subscribe(ctx, l.roomID, func(snap types.RoomSnapshot) {
		l.applyLock(snap.Lock)
	})
	if err != nil {
		l.mu.Lock()
		l.started = false
		l.mu.Unlock()
		return err
	}

	l.mu.Lock()
	l.unsubscribe = unsub
	l.mu.Unlock()
	if l.metrics != nil {
		l.metrics.ActiveListeners.Add(ctx, 1)
	}
	return nil
}

// Stop unsubscribes, switches listening off, and drains the playback queue.
// Safe to call on a stopped listener.
func (l *Listener) Stop(ctx context.Context) {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return
	}
	l.started = false
	l.listening = false
	unsub := l.unsubscribe
	l.unsubscribe = nil
	l.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	l.queue.Reset()
	if l.metrics != nil {
		l.metrics.ActiveListeners.Add(ctx, -1)
	}
}

// Listening reports whether incoming speech is currently translated and
// played.
func (l *Listener) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listening
}

// RemoteHolder returns the identity currently holding the room's floor, or
// empty when unlocked or held by this listener itself.
func (l *Listener) RemoteHolder() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remoteHolder
}

// SetListening toggles listening manually. Switching off is a hard stop:
// the playback queue is drained and in-flight pipeline results are discarded
// when they arrive. Switching on replays the most recent archived segments
// so the listener does not join into silence.
func (l *Listener) SetListening(ctx context.Context, on bool) {
	l.mu.Lock()
	if l.listening == on {
		l.mu.Unlock()
		return
	}
	l.listening = on
	l.mu.Unlock()

	if !on {
		l.queue.Reset()
		return
	}
	l.catchUp(ctx)
}

// HandleSnapshot processes a remote speaker's cumulative transcript
// snapshot: the unseen suffix is extracted and dispatched. Snapshots update
// the delta state even while not listening, so toggling listening on does
// not replay text that was broadcast before.
func (l *Listener) HandleSnapshot(ctx context.Context, speakerID, fullText string) {
	if speakerID == l.identity {
		return
	}
	delta := l.delta.Delta(speakerID, fullText)
	if delta == "" || !l.Listening() {
		return
	}
	l.dispatch(ctx, types.TranscriptSegment{
		SpeakerID: speakerID,
		Text:      delta,
		Timestamp: time.Now(),
		IsFinal:   true,
	})
}

// HandleSegment processes an already-finalized segment broadcast by a remote
// speaker.
func (l *Listener) HandleSegment(ctx context.Context, seg types.TranscriptSegment) {
	if seg.SpeakerID == l.identity || !seg.IsFinal {
		return
	}
	if !l.Listening() {
		return
	}
	l.dispatch(ctx, seg)
}

// ForgetSpeaker drops delta state for a departed participant.
func (l *Listener) ForgetSpeaker(speakerID string) {
	l.delta.Forget(speakerID)
}

// PlaybackState exposes the queue state for status displays.
func (l *Listener) PlaybackState() playback.State {
	return l.queue.State()
}

// Wait blocks until in-flight pipeline items have finished. Intended for
// tests and graceful shutdown.
func (l *Listener) Wait() {
	l.pipeline.Wait()
}

func (l *Listener) dispatch(ctx context.Context, seg types.TranscriptSegment) {
	l.pipeline.Dispatch(ctx, pipeline.Item{
		ID:             seg.ID,
		SpeakerID:      seg.SpeakerID,
		Text:           seg.Text,
		Timestamp:      seg.Timestamp,
		SourceLanguage: seg.Language,
		PlayAudio:      true,
	})
}

// applyLock mirrors the room's lock state into listening mode: a remote
// holder forces listening on, a cleared floor forces it off. This is a
// consistency rule, not a display nicety — the pipeline and queue key off
// "is someone else currently broadcasting".
func (l *Listener) applyLock(lock types.FloorLock) {
	remote := lock.Holder
	if remote == l.identity {
		remote = ""
	}

	l.mu.Lock()
	prev := l.remoteHolder
	if remote == prev {
		l.mu.Unlock()
		return
	}
	l.remoteHolder = remote
	var (
		resetQueue bool
		notify     = l.onHolder
	)
	switch {
	case remote != "":
		l.listening = true
	default:
		l.listening = false
		resetQueue = true
	}
	l.mu.Unlock()

	if prev != "" {
		l.delta.Forget(prev)
	}
	if resetQueue {
		l.queue.Reset()
	}
	l.log.Info("remote floor holder changed", "holder", remote)
	if notify != nil {
		notify(remote)
	}
}

// catchUp replays the most recent archived segments through the pipeline.
func (l *Listener) catchUp(ctx context.Context) {
	if l.archive == nil {
		return
	}
	segs, err := l.archive.Recent(ctx, l.roomID, l.catchUpLimit)
	if err != nil {
		l.log.Warn("transcript catch-up failed", "err", err)
		return
	}
	for _, seg := range segs {
		if seg.SpeakerID == l.identity {
			continue
		}
		l.dispatch(ctx, seg)
	}
}

// handlePipelineEvent enqueues successful clips, re-checking listening mode
// on arrival so results from before a listen-off toggle are discarded.
func (l *Listener) handlePipelineEvent(ev pipeline.Event) {
	synth, ok := ev.(pipeline.SynthesizeEvent)
	if !ok || synth.Err != nil {
		return
	}
	if !l.Listening() {
		l.log.Debug("discarding clip finished after listening stopped",
			"item_id", synth.Item.ID)
		return
	}
	l.queue.Enqueue(playback.Clip{
		ItemID:    synth.Item.ID,
		SpeakerID: synth.Item.SpeakerID,
		Audio:     synth.Audio,
	})
}
