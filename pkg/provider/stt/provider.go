// Package stt defines the Provider interface for streaming speech
// recognition backends.
//
// An STT provider wraps a real-time recognition service (e.g., Deepgram) and
// exposes a uniform streaming interface. The central abstraction is
// SessionHandle: once opened, a session accepts raw PCM audio frames and
// emits a single stream of cumulative Transcript values — each value carries
// the full recognized text of the utterance so far, with IsFinal marking the
// points where the recognizer has committed. Consumers that need only the
// unseen suffix run the stream through a delta tracker.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/eburon-meet/orbit/pkg/types"
)

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Common values: 16000
	// (recognition-optimised mono), 48000 (browser capture output).
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by most
	// recognition providers). Implementors may downmix stereo internally.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US",
	// "nl-BE"). An empty string lets the provider auto-detect the language,
	// if supported.
	Language string
}

// SessionHandle represents an open recognition session. It is an interface
// so that test code can provide mock implementations without a live provider
// connection.
//
// Callers must call Close when the session is no longer needed. Failing to
// do so may leak goroutines and network connections inside the provider
// implementation. All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes to the provider for
	// recognition. The chunk should match the SampleRate, Channels, and
	// bit-depth agreed in StreamConfig. Calling SendAudio after Close
	// returns an error.
	SendAudio(chunk []byte) error

	// Results returns a read-only channel of cumulative recognition
	// results. Each Transcript repeats and extends the previous one;
	// IsFinal marks committed text. The channel is closed when the session
	// ends.
	Results() <-chan types.Transcript

	// Close terminates the session, flushes any pending audio, and releases
	// all associated resources. After Close returns, the Results channel
	// will be closed. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any streaming recognition backend.
//
// Implementations must be safe for concurrent use. Multiple sessions may be
// open simultaneously.
type Provider interface {
	// StartStream opens a new streaming recognition session with the given
	// audio format and configuration. The returned SessionHandle is ready
	// to accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session (e.g.,
	// authentication failure, unsupported configuration, or ctx already
	// cancelled). The caller owns the SessionHandle and must call Close
	// when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
