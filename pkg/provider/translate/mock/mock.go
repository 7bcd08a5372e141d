// Package mock provides a test double for the translate package interfaces.
//
// Use Provider to feed controlled translations into the pipeline and inspect
// the requests it received. Without a TranslateFunc, every call echoes the
// input tagged with its target language, which keeps assertions readable:
// "Hola" in → "[es] Hola" out.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/eburon-meet/orbit/pkg/provider/translate"
)

// Provider is a mock implementation of translate.Provider.
type Provider struct {
	mu sync.Mutex

	// TranslateFunc, if non-nil, handles every call. Otherwise the call
	// returns "[targetLanguage] text", or TranslateErr if set.
	TranslateFunc func(ctx context.Context, req translate.Request) (translate.Result, error)

	// TranslateErr, if non-nil, is returned by every call (when TranslateFunc
	// is nil).
	TranslateErr error

	// Calls records every request in order.
	Calls []translate.Request
}

// Translate records the call and answers per the configured behavior.
func (p *Provider) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, req)
	fn := p.TranslateFunc
	err := p.TranslateErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return translate.Result{}, err
	}
	return translate.Result{TranslatedText: fmt.Sprintf("[%s] %s", req.TargetLanguage, req.Text)}, nil
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

var _ translate.Provider = (*Provider)(nil)
