// Package mock provides a test double for the tts package interfaces.
//
// Without a SynthesizeFunc, every call returns the request text prefixed
// with "audio:", so tests can match clips back to the sentences that
// produced them.
package mock

import (
	"context"
	"sync"

	"github.com/eburon-meet/orbit/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// SynthesizeFunc, if non-nil, handles every call. Otherwise the call
	// returns "audio:" + req.Text, or SynthesizeErr if set.
	SynthesizeFunc func(ctx context.Context, req tts.Request) ([]byte, error)

	// SynthesizeErr, if non-nil, is returned by every call (when
	// SynthesizeFunc is nil).
	SynthesizeErr error

	// Calls records every request in order.
	Calls []tts.Request
}

// Synthesize records the call and answers per the configured behavior.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, req)
	fn := p.SynthesizeFunc
	err := p.SynthesizeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return []byte("audio:" + req.Text), nil
}

// CallCount returns the number of recorded calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// ResetCalls clears all recorded calls. Thread-safe.
func (p *Provider) ResetCalls() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

var _ tts.Provider = (*Provider)(nil)
