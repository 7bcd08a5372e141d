// Package anyllm provides a translation provider backed by
// github.com/mozilla-ai/any-llm-go, prompting a chat model as a strict
// translation engine. Any backend the library supports (OpenAI, Anthropic,
// Gemini, Ollama, DeepSeek, Mistral, Groq, …) can serve.
//
// Usage:
//
//	p, err := anyllm.New("gemini", "gemini-2.0-flash", anyllmlib.WithAPIKey("..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/eburon-meet/orbit/pkg/provider/translate"
)

// Provider implements translate.Provider by wrapping any-llm-go.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

// New creates a Provider backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq". model is the default model (e.g.
// "gemini-2.0-flash"); a Request.Engine override replaces it per call.
//
// opts are any-llm-go options (e.g. anyllmlib.WithAPIKey). Without an API key
// option, the backend falls back to its usual environment variable.
func New(providerName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}
	return &Provider{backend: backend, model: model}, nil
}

var _ translate.Provider = (*Provider)(nil)

// Translate implements translate.Provider.
func (p *Provider) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return translate.Result{}, fmt.Errorf("anyllm: text must not be empty")
	}
	if req.TargetLanguage == "" {
		return translate.Result{}, fmt.Errorf("anyllm: target language must not be empty")
	}

	temperature := 0.0
	params := anyllmlib.CompletionParams{
		Model: p.modelFor(req),
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: systemPrompt(req)},
			{Role: anyllmlib.RoleUser, Content: req.Text},
		},
		Temperature: &temperature,
	}

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return translate.Result{}, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return translate.Result{}, translate.ErrEmptyTranslation
	}

	text := strings.TrimSpace(resp.Choices[0].Message.ContentString())
	if text == "" {
		return translate.Result{}, translate.ErrEmptyTranslation
	}
	return translate.Result{TranslatedText: text}, nil
}

// modelFor returns the per-call engine override or the configured default.
func (p *Provider) modelFor(req translate.Request) string {
	if req.Engine != "" {
		return req.Engine
	}
	return p.model
}

// systemPrompt instructs the model to behave as a bare translation engine.
// The output constraint matters: any commentary would be synthesized and
// played to listeners verbatim.
func systemPrompt(req translate.Request) string {
	var b strings.Builder
	b.WriteString("You are a translation engine. Translate the user's message into ")
	b.WriteString(req.TargetLanguage)
	b.WriteString(".")
	if req.SourceLanguage != "" {
		b.WriteString(" The source language is ")
		b.WriteString(req.SourceLanguage)
		b.WriteString(".")
	}
	b.WriteString(" Reply with the translation only: no quotes, no notes, no explanations.")
	return b.String()
}

// createBackend creates the underlying any-llm-go provider.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq", providerName)
	}
}
