package anyllm

import (
	"strings"
	"testing"

	"github.com/eburon-meet/orbit/pkg/provider/translate"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("New() with empty provider name should fail")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("New() with empty model should fail")
	}
	if _, err := New("smoke-signals", "m"); err == nil {
		t.Error("New() with unsupported provider should fail")
	}
}

func TestModelFor(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gemini-2.0-flash"}

	if got := p.modelFor(translate.Request{}); got != "gemini-2.0-flash" {
		t.Errorf("modelFor without override = %q, want default", got)
	}
	if got := p.modelFor(translate.Request{Engine: "gpt-4o-mini"}); got != "gpt-4o-mini" {
		t.Errorf("modelFor with override = %q, want 'gpt-4o-mini'", got)
	}
}

func TestSystemPrompt(t *testing.T) {
	t.Parallel()

	prompt := systemPrompt(translate.Request{TargetLanguage: "es"})
	if !strings.Contains(prompt, "into es.") {
		t.Errorf("prompt should name the target language, got: %s", prompt)
	}
	if strings.Contains(prompt, "source language") {
		t.Errorf("prompt should omit unknown source language, got: %s", prompt)
	}

	prompt = systemPrompt(translate.Request{TargetLanguage: "es", SourceLanguage: "en"})
	if !strings.Contains(prompt, "source language is en") {
		t.Errorf("prompt should carry the source hint, got: %s", prompt)
	}
	if !strings.Contains(prompt, "translation only") {
		t.Errorf("prompt must forbid commentary, got: %s", prompt)
	}
}
