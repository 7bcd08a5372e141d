// Package types defines the shared types used across all Orbit packages.
//
// These types form the lingua franca between providers, the floor-lock
// coordinator, the segmentation layer, and the translate-synthesize pipeline.
// They are intentionally minimal — each package defines its own domain types,
// but cross-cutting data structures live here to avoid circular imports.
package types

import "time"

// Transcript represents a speech-to-text result from an STT provider.
// Both partial (interim) and final transcripts use this type.
//
// For cumulative providers, Text is the full text of the utterance so far,
// not an increment — later Transcripts may repeat and extend earlier ones.
// Consumers that need only the unseen suffix should run Text through a delta
// tracker.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial
	// (interim) transcript. Partial values may be revised or replaced by later
	// results.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64

	// Language is the BCP-47 language code of the recognized speech, when the
	// provider reports it.
	Language string
}

// TranscriptSegment is a sentence-level unit of transcript produced by the
// segmenter or received from a remote speaker. Once IsFinal is true the
// segment is immutable and ready for downstream processing.
type TranscriptSegment struct {
	// ID uniquely identifies this segment.
	ID string

	// SpeakerID is the opaque identity of the participant who produced the text.
	SpeakerID string

	// Text is the segment content.
	Text string

	// Timestamp records when the segment was finalized (or last revised, for
	// partials). It is the ordering key within one speaker's stream; ties are
	// broken by arrival order.
	Timestamp time.Time

	// IsFinal reports whether this segment is complete. Non-final segments are
	// transient display-only previews that may be superseded or retracted.
	IsFinal bool

	// Language is the BCP-47 language code of Text, when known.
	Language string
}

// FloorLock is the exclusive speaking/broadcasting right for one room.
// At most one non-expired FloorLock exists per room.
type FloorLock struct {
	// RoomID is the opaque room code the lock belongs to.
	RoomID string

	// Holder is the identity currently holding the floor. Empty when unlocked.
	Holder string

	// AcquiredAt is when the holder first obtained the lock, as assigned by
	// the store. Informational only — staleness is judged on HeartbeatAt.
	AcquiredAt time.Time

	// HeartbeatAt is the store-assigned time of the most recent acquire or
	// heartbeat. A lock whose HeartbeatAt is older than the staleness
	// threshold is treated as unlocked by new acquire attempts.
	HeartbeatAt time.Time
}

// Held reports whether the lock has a holder. It does not account for
// staleness; stores evaluate staleness against their own clock.
func (l FloorLock) Held() bool { return l.Holder != "" }

// RoomSnapshot is the full current state of a room as delivered by the room
// state channel. Every delivery is a complete replacement, never a delta;
// rapid mutations may be coalesced into a single snapshot.
type RoomSnapshot struct {
	// RoomID is the room this snapshot describes.
	RoomID string

	// Lock is the room's floor lock state at snapshot time.
	Lock FloorLock

	// Version increases with every mutation. Consumers may use it to discard
	// snapshots that arrive out of order after a reconnect.
	Version int64
}
