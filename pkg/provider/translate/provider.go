// Package translate defines the Provider interface for translation backends.
//
// A translation provider wraps an external service (an LLM prompted as a
// translation engine, or a dedicated MT API) behind a single-shot contract:
// text in, translated text out. Calls carry no ordering guarantee between
// each other; the caller owns retry policy.
//
// Implementations must be safe for concurrent use.
package translate

import (
	"context"
	"errors"
)

// ErrEmptyTranslation is returned when the backend answers successfully but
// with no usable text. Callers treat it like any other translation failure.
var ErrEmptyTranslation = errors.New("translate: backend returned empty translation")

// Request is one translation call.
type Request struct {
	// Text is the source text to translate.
	Text string

	// TargetLanguage is the BCP-47 code of the desired output language.
	TargetLanguage string

	// SourceLanguage optionally hints the input language. Empty means
	// auto-detect.
	SourceLanguage string

	// Engine optionally overrides the provider's default model/engine for
	// this call only. Empty means the provider default.
	Engine string
}

// Result is a successful translation.
type Result struct {
	// TranslatedText is the translation of Request.Text.
	TranslatedText string
}

// Provider is the abstraction over any translation backend.
type Provider interface {
	// Translate performs one single-shot translation. An empty result text is
	// reported as an error, never as a silent success.
	Translate(ctx context.Context, req Request) (Result, error)
}
