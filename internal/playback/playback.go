// Package playback serializes synthesized clips through a single output
// device.
//
// Clips play strictly in enqueue order and never overlap: one consumer
// goroutine owns the player while the queue is non-empty. A clip that fails
// to play is logged and skipped so the queue keeps advancing. Reset drops
// everything — the pending clips and the clip currently playing — which is
// how a listener going inactive cuts audio immediately.
package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eburon-meet/orbit/internal/observe"
)

// Clip is one playable unit of audio.
type Clip struct {
	// ItemID ties the clip back to the pipeline item that produced it.
	ItemID string

	// SpeakerID is the participant the clip speaks for.
	SpeakerID string

	// Audio is one complete encoded clip.
	Audio []byte
}

// Player renders a single clip to completion. Play must honor ctx
// cancellation so Reset can cut a clip mid-play.
type Player interface {
	Play(ctx context.Context, clip Clip) error
}

// State is the queue's lifecycle state.
type State int

const (
	// StateIdle means no clip is playing and nothing is queued.
	StateIdle State = iota

	// StatePlaying means a clip is playing or queued.
	StatePlaying
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Option is a functional option for configuring a Queue.
type Option func(*Queue)

// WithLogger replaces the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// WithMetrics enables playback latency and queue depth instrumentation.
func WithMetrics(m *observe.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithStateHook registers a callback invoked on every Idle/Playing
// transition. The callback runs with internal locks released but must still
// return promptly.
func WithStateHook(fn func(State)) Option {
	return func(q *Queue) { q.stateHook = fn }
}

// Queue is a FIFO clip queue with a single consumer.
type Queue struct {
	player    Player
	log       *slog.Logger
	metrics   *observe.Metrics
	stateHook func(State)

	mu         sync.Mutex
	clips      []Clip
	state      State
	generation int
	ctx        context.Context
	cancel     context.CancelFunc
}

// New creates an idle Queue playing through player.
func New(player Player, opts ...Option) *Queue {
	q := &Queue{
		player: player,
		log:    slog.Default(),
		state:  StateIdle,
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue appends a clip and starts the consumer if the queue was idle.
// It never blocks on playback.
func (q *Queue) Enqueue(clip Clip) {
	q.mu.Lock()
	q.clips = append(q.clips, clip)
	if q.metrics != nil {
		q.metrics.PlaybackQueueDepth.Add(q.ctx, 1)
	}
	started := false
	if q.state == StateIdle {
		q.state = StatePlaying
		started = true
		go q.drain(q.generation)
	}
	hook := q.stateHook
	q.mu.Unlock()

	if started && hook != nil {
		hook(StatePlaying)
	}
}

// Reset discards all pending clips, cancels the clip currently playing, and
// returns the queue to idle. Clips enqueued after Reset play normally.
func (q *Queue) Reset() {
	q.mu.Lock()
	dropped := len(q.clips)
	q.clips = nil
	q.generation++
	q.cancel()
	q.ctx, q.cancel = context.WithCancel(context.Background())
	if q.metrics != nil && dropped > 0 {
		q.metrics.PlaybackQueueDepth.Add(q.ctx, int64(-dropped))
	}
	wasPlaying := q.state == StatePlaying
	q.state = StateIdle
	hook := q.stateHook
	q.mu.Unlock()

	if wasPlaying && hook != nil {
		hook(StateIdle)
	}
}

// State returns the current lifecycle state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Len returns the number of clips waiting to play, excluding the clip
// currently in the player.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.clips)
}

// drain is the consumer loop for one queue generation. It exits when the
// queue empties or when Reset retires its generation.
func (q *Queue) drain(gen int) {
	for {
		q.mu.Lock()
		if gen != q.generation {
			// Reset took over; state already updated.
			q.mu.Unlock()
			return
		}
		if len(q.clips) == 0 {
			q.state = StateIdle
			hook := q.stateHook
			q.mu.Unlock()
			if hook != nil {
				hook(StateIdle)
			}
			return
		}
		clip := q.clips[0]
		q.clips = q.clips[1:]
		ctx := q.ctx
		q.mu.Unlock()

		if q.metrics != nil {
			q.metrics.PlaybackQueueDepth.Add(ctx, -1)
		}

		start := time.Now()
		err := q.player.Play(ctx, clip)
		status := "ok"
		if err != nil {
			status = "error"
		}
		q.metrics.ObservePlayback(ctx, time.Since(start).Seconds(), status)
		if err != nil {
			// Skip the clip and keep the queue moving.
			q.log.Warn("clip playback failed",
				"item_id", clip.ItemID,
				"speaker_id", clip.SpeakerID,
				"error", err)
		}
	}
}
