package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/eburon-meet/orbit/pkg/provider/translate"
	translatemock "github.com/eburon-meet/orbit/pkg/provider/translate/mock"
)

func TestTranslateFallback_PrimarySuccess(t *testing.T) {
	primary := &translatemock.Provider{}
	secondary := &translatemock.Provider{}

	fb := NewTranslateFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	res, err := fb.Translate(context.Background(), translate.Request{
		Text:           "Goedemorgen.",
		TargetLanguage: "en",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TranslatedText != "[en] Goedemorgen." {
		t.Fatalf("translated = %q, want primary's echo", res.TranslatedText)
	}
	if primary.CallCount() != 1 {
		t.Fatalf("primary called %d times, want 1", primary.CallCount())
	}
	if secondary.CallCount() != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.CallCount())
	}
}

func TestTranslateFallback_Failover(t *testing.T) {
	primary := &translatemock.Provider{TranslateErr: errors.New("primary down")}
	secondary := &translatemock.Provider{
		TranslateFunc: func(_ context.Context, req translate.Request) (translate.Result, error) {
			return translate.Result{TranslatedText: "fallback:" + req.Text}, nil
		},
	}

	fb := NewTranslateFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	res, err := fb.Translate(context.Background(), translate.Request{Text: "hallo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TranslatedText != "fallback:hallo" {
		t.Fatalf("translated = %q, want fallback result", res.TranslatedText)
	}
}

func TestTranslateFallback_AllFail(t *testing.T) {
	primary := &translatemock.Provider{TranslateErr: errors.New("primary down")}
	secondary := &translatemock.Provider{TranslateErr: errors.New("secondary down")}

	fb := NewTranslateFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Translate(context.Background(), translate.Request{Text: "hallo"})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
