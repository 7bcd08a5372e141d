// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs, OpenAI,
// or a local Coqui server) behind a single-shot contract: one finalized
// sentence in, one opaque audio clip out. No streaming chunking is exposed,
// because the pipeline only ever synthesizes complete sentence segments and
// the playback queue treats each clip as a unit.
//
// Implementations must be safe for concurrent use; multiple segments may be
// synthesized in parallel.
package tts

import "context"

// Request is one synthesis call.
type Request struct {
	// Text is the (already translated) text to speak.
	Text string

	// Voice selects the provider's voice. Empty means the provider default.
	Voice string

	// Engine optionally overrides the provider's default model/engine for
	// this call only. Empty means the provider default.
	Engine string

	// Language optionally names the BCP-47 language of Text, for backends
	// that require it.
	Language string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize performs one single-shot synthesis and returns the encoded
	// audio clip. The encoding is provider-configured; callers treat the
	// bytes as opaque. An empty clip is reported as an error, never as a
	// silent success.
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}
