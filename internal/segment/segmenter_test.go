package segment

import (
	"sync"
	"testing"
	"time"

	"github.com/eburon-meet/orbit/pkg/types"
)

// collector gathers emitted segments for assertions.
type collector struct {
	mu       sync.Mutex
	finals   []types.TranscriptSegment
	partials []string
}

func (c *collector) onFinal(seg types.TranscriptSegment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finals = append(c.finals, seg)
}

func (c *collector) onPartial(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partials = append(c.partials, p)
}

func (c *collector) finalTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.finals))
	for i, s := range c.finals {
		out[i] = s.Text
	}
	return out
}

func (c *collector) lastPartial() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.partials) == 0 {
		return ""
	}
	return c.partials[len(c.partials)-1]
}

func newTestSegmenter(t *testing.T, c *collector, quiet time.Duration) *Segmenter {
	t.Helper()
	s := NewSegmenter(SegmenterConfig{
		SpeakerID:     "speaker-1",
		Language:      "en",
		QuietInterval: quiet,
		OnFinal:       c.onFinal,
		OnPartial:     c.onPartial,
	})
	t.Cleanup(s.Close)
	return s
}

func TestSegmenter_GrowingSnapshot(t *testing.T) {
	c := &collector{}
	s := newTestSegmenter(t, c, time.Hour)

	s.Update("Hello")
	s.Update("Hello world.")
	s.Update("Hello world. How")

	got := c.finalTexts()
	if len(got) != 1 || got[0] != "Hello world." {
		t.Fatalf("expected exactly [%q], got %q", "Hello world.", got)
	}
	if p := c.lastPartial(); p != "How" {
		t.Errorf("expected partial %q, got %q", "How", p)
	}
}

func TestSegmenter_EmitsEachSentenceOnce(t *testing.T) {
	c := &collector{}
	s := newTestSegmenter(t, c, time.Hour)

	s.Update("One. Two. Three")
	s.Update("One. Two. Three. Four")

	want := []string{"One.", "Two.", "Three."}
	got := c.finalTexts()
	if len(got) != len(want) {
		t.Fatalf("expected %d segments, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("segment %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSegmenter_QuietFlush(t *testing.T) {
	c := &collector{}
	s := newTestSegmenter(t, c, 20*time.Millisecond)

	s.Update("This trails off")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(c.finalTexts()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := c.finalTexts()
	if len(got) != 1 || got[0] != "This trails off" {
		t.Fatalf("expected quiet flush to emit [%q], got %q", "This trails off", got)
	}
	if p := s.Partial(); p != "" {
		t.Errorf("expected empty partial after flush, got %q", p)
	}
}

func TestSegmenter_ExplicitFlush(t *testing.T) {
	c := &collector{}
	s := newTestSegmenter(t, c, time.Hour)

	s.Update("Hello world. How are you")
	s.Flush()

	want := []string{"Hello world.", "How are you"}
	got := c.finalTexts()
	if len(got) != len(want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("segment %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	// A second flush must not re-emit anything.
	s.Flush()
	if n := len(c.finalTexts()); n != len(want) {
		t.Errorf("expected no additional segments after second flush, got %d total", n)
	}
}

func TestSegmenter_EngineRestartResetsCursor(t *testing.T) {
	c := &collector{}
	s := newTestSegmenter(t, c, time.Hour)

	s.Update("First sentence. tail")
	// Engine restarted: snapshot no longer starts with the shipped prefix.
	s.Update("Second thing. more")

	want := []string{"First sentence.", "Second thing."}
	got := c.finalTexts()
	if len(got) != len(want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("segment %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSegmenter_EmptyInput(t *testing.T) {
	c := &collector{}
	s := newTestSegmenter(t, c, time.Hour)

	s.Update("")
	s.Flush()

	if got := c.finalTexts(); len(got) != 0 {
		t.Fatalf("expected no segments from empty input, got %q", got)
	}
}

func TestSegmenter_NoCharacterDropped(t *testing.T) {
	c := &collector{}
	s := newTestSegmenter(t, c, time.Hour)

	steps := []string{
		"The quick",
		"The quick brown fox. It jumped",
		"The quick brown fox. It jumped over. The lazy dog barked.",
	}
	for _, step := range steps {
		s.Update(step)
	}
	s.Flush()

	want := []string{"The quick brown fox.", "It jumped over.", "The lazy dog barked."}
	got := c.finalTexts()
	if len(got) != len(want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("segment %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSegmenter_ResetDropsPending(t *testing.T) {
	c := &collector{}
	s := newTestSegmenter(t, c, time.Hour)

	s.Update("Unfinished thought")
	s.Reset()
	s.Flush()

	if got := c.finalTexts(); len(got) != 0 {
		t.Fatalf("expected reset to drop pending text, got %q", got)
	}
	if p := s.Partial(); p != "" {
		t.Errorf("expected empty partial after reset, got %q", p)
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"whitespace only", "   ", nil},
		{"single fragment", "no terminator here", []string{"no terminator here"}},
		{"two sentences and tail", "One. Two! Three", []string{"One. ", "Two! ", "Three"}},
		{"question", "How are you? Fine", []string{"How are you? ", "Fine"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
			joined := ""
			for i, g := range got {
				if g != tt.want[i] {
					t.Errorf("candidate %d: expected %q, got %q", i, tt.want[i], g)
				}
				joined += g
			}
			if tt.input != "" && joined != tt.input {
				t.Errorf("candidates must concatenate to input: got %q, want %q", joined, tt.input)
			}
		})
	}
}

func TestTerminated(t *testing.T) {
	if !Terminated("Done.") || !Terminated("Really?! ") || Terminated("trailing") || Terminated("") {
		t.Error("Terminated misclassified a boundary case")
	}
}
