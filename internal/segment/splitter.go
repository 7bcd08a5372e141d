package segment

import (
	"regexp"
	"strings"
)

// sentencePattern matches one sentence candidate: a run of text up to and
// including terminal punctuation (plus any trailing closing quotes), or a
// trailing fragment with no terminator.
var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+["')\]]*\s*|[^.!?]+$`)

// SplitSentences splits text into sentence candidates. The candidates
// concatenate back to exactly the input, so cursor arithmetic on the joined
// prefix stays valid. The final candidate may be an unterminated fragment.
//
// An input that is empty or all whitespace yields no candidates.
func SplitSentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	parts := sentencePattern.FindAllString(text, -1)
	if len(parts) == 0 {
		return []string{text}
	}
	return parts
}

// Terminated reports whether s ends in terminal punctuation, ignoring
// trailing whitespace and closing quotes.
func Terminated(s string) bool {
	s = strings.TrimRight(s, " \t\n\"')]")
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
