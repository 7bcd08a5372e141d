// Package segment turns streams of revised, cumulative transcript text into
// stable sentence-level segments.
//
// Two cooperating pieces live here:
//
//   - [Segmenter] consumes successive snapshots of one speaker's in-progress
//     utterance (each snapshot is the full text so far, possibly revising the
//     tail) and emits every complete sentence exactly once, tracking how many
//     characters have already been shipped. A quiet-interval timer flushes
//     trailing text that never receives terminal punctuation.
//
//   - [DeltaTracker] compares cumulative snapshots from remote speakers
//     against the last snapshot seen per speaker and yields only the unseen
//     suffix, so re-broadcast growing transcripts are not reprocessed.
//
// Both are local to one client/session and hold no network or storage state.
package segment

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eburon-meet/orbit/pkg/types"
)

// DefaultQuietInterval is the silence window after which unshipped text is
// flushed as final even without terminal punctuation. Local recognition keeps
// partials flowing, so a longer window is safe.
const DefaultQuietInterval = 1500 * time.Millisecond

// ProviderQuietInterval is a shorter flush window for sessions that rely on
// provider-side partial results, which arrive in coarser bursts.
const ProviderQuietInterval = 800 * time.Millisecond

// SegmenterConfig holds construction parameters for a [Segmenter].
type SegmenterConfig struct {
	// SpeakerID is stamped on every emitted segment.
	SpeakerID string

	// Language is stamped on every emitted segment. May be empty.
	Language string

	// QuietInterval is the silence window before a forced flush.
	// Default: [DefaultQuietInterval].
	QuietInterval time.Duration

	// OnFinal receives each finalized segment exactly once, in text order.
	// Called from Update, Flush, or the quiet-interval timer goroutine;
	// implementations must be safe for concurrent use.
	OnFinal func(types.TranscriptSegment)

	// OnPartial receives the current unshipped preview after every update.
	// May be nil. The preview is transient and must never be treated as final.
	OnPartial func(string)
}

// Segmenter converts cumulative utterance snapshots into finalized sentence
// segments, each emitted exactly once. All methods are safe for concurrent
// use.
type Segmenter struct {
	speakerID string
	language  string
	quiet     time.Duration
	onFinal   func(types.TranscriptSegment)
	onPartial func(string)

	mu      sync.Mutex
	buffer  string // latest full snapshot of the utterance
	shipped int    // byte offset into buffer already emitted as final
	timer   *time.Timer
	closed  bool

	now   func() time.Time
	newID func() string
}

// NewSegmenter creates a [Segmenter]. cfg.OnFinal must be non-nil.
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	if cfg.OnFinal == nil {
		panic("segment: SegmenterConfig.OnFinal must not be nil")
	}
	quiet := cfg.QuietInterval
	if quiet <= 0 {
		quiet = DefaultQuietInterval
	}
	return &Segmenter{
		speakerID: cfg.SpeakerID,
		language:  cfg.Language,
		quiet:     quiet,
		onFinal:   cfg.OnFinal,
		onPartial: cfg.OnPartial,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Update processes the latest full snapshot of the in-progress utterance.
// All complete sentences not yet shipped are emitted as final segments; the
// trailing fragment becomes the partial preview. A snapshot that no longer
// starts with the already-shipped prefix indicates the recognition engine
// restarted, and the cursor resets to zero so no text is lost.
func (s *Segmenter) Update(currentFull string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	// Engine restart: the shipped prefix is immutable ground truth, so a
	// snapshot that contradicts it is a new utterance, not a revision.
	if s.shipped > 0 && (len(currentFull) < s.shipped || currentFull[:s.shipped] != s.buffer[:s.shipped]) {
		s.shipped = 0
	}
	s.buffer = currentFull

	candidates := SplitSentences(currentFull)
	if len(candidates) > 1 {
		completeLen := len(currentFull) - len(candidates[len(candidates)-1])
		s.emitRangeLocked(completeLen)
	}

	if s.onPartial != nil {
		s.onPartial(strings.TrimSpace(s.buffer[s.shipped:]))
	}
	s.armTimerLocked()
}

// Flush emits the entire unshipped remainder as a final segment, terminated
// or not. Used at end of utterance and by the quiet-interval timer.
func (s *Segmenter) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

// Reset discards all buffered state, cancels the quiet timer, and clears the
// partial preview. Pending unshipped text is dropped, not emitted.
func (s *Segmenter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = ""
	s.shipped = 0
	s.stopTimerLocked()
	if s.onPartial != nil {
		s.onPartial("")
	}
}

// Partial returns the current unshipped preview text.
func (s *Segmenter) Partial() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.TrimSpace(s.buffer[s.shipped:])
}

// Close stops the quiet timer and makes all further updates no-ops. It does
// not flush; callers that want trailing text should Flush first.
func (s *Segmenter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopTimerLocked()
}

// emitRangeLocked ships buffer[shipped:completeLen] as one final segment per
// contained sentence and advances the cursor. Must be called with s.mu held.
func (s *Segmenter) emitRangeLocked(completeLen int) {
	if completeLen <= s.shipped {
		return
	}
	unshipped := s.buffer[s.shipped:completeLen]
	s.shipped = completeLen
	for _, sentence := range SplitSentences(unshipped) {
		text := strings.TrimSpace(sentence)
		if text == "" {
			continue
		}
		s.onFinal(types.TranscriptSegment{
			ID:        s.newID(),
			SpeakerID: s.speakerID,
			Text:      text,
			Timestamp: s.now(),
			IsFinal:   true,
			Language:  s.language,
		})
	}
}

// flushLocked ships everything beyond the cursor. Must be called with s.mu held.
func (s *Segmenter) flushLocked() {
	if s.closed {
		return
	}
	s.stopTimerLocked()
	if s.shipped >= len(s.buffer) {
		return
	}
	s.emitRangeLocked(len(s.buffer))
	if s.onPartial != nil {
		s.onPartial("")
	}
}

// armTimerLocked (re)starts the quiet-interval flush timer.
// Must be called with s.mu held.
func (s *Segmenter) armTimerLocked() {
	s.stopTimerLocked()
	s.timer = time.AfterFunc(s.quiet, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.flushLocked()
	})
}

// stopTimerLocked cancels any pending flush timer. Must be called with s.mu held.
func (s *Segmenter) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
