// Package coqui provides a local Coqui TTS-backed provider targeting the
// standard Coqui TTS server (ghcr.io/coqui-ai/tts-cpu) via GET /api/tts.
// It implements the tts.Provider interface and is the zero-cost offline
// option when no hosted synthesis backend is configured.
package coqui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/eburon-meet/orbit/pkg/provider/tts"
)

const (
	ttsEndpoint     = "/api/tts"
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language ID sent to the server when a request does
// not carry one. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithHTTPClient replaces the HTTP client. Intended for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements tts.Provider backed by a standard Coqui TTS server.
type Provider struct {
	baseURL    string
	language   string
	httpClient *http.Client
}

// New creates a Coqui Provider targeting the server at baseURL (e.g.
// "http://localhost:5002").
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("coqui: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:    baseURL,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider. The standard server answers one WAV
// per request; the clip is returned whole.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	if req.Text == "" {
		return nil, errors.New("coqui: text must not be empty")
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	q := url.Values{}
	q.Set("text", req.Text)
	if req.Voice != "" {
		q.Set("speaker_id", req.Voice)
	}
	q.Set("language_id", lang)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+ttsEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: build request: %w", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("coqui: synthesize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("coqui: synthesize: status %d: %s", resp.StatusCode, msg)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("coqui: empty audio response")
	}
	return audio, nil
}
