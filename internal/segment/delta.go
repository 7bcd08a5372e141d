package segment

import (
	"strings"
	"sync"
	"unicode"
)

// minDeltaRunes is the minimum number of non-whitespace characters a delta
// must contain to be reported. Shorter deltas are single-character partial
// noise from upstream recognizers and are suppressed.
const minDeltaRunes = 2

// DeltaTracker computes the newly-added suffix of successive cumulative
// transcript snapshots, per named speaker. When a snapshot does not extend
// the previously seen text it is treated as an unrelated new utterance and
// returned in full — the tracker never attempts character-level diffing.
//
// All methods are safe for concurrent use.
type DeltaTracker struct {
	mu       sync.Mutex
	lastSeen map[string]string
}

// NewDeltaTracker creates an empty [DeltaTracker].
func NewDeltaTracker() *DeltaTracker {
	return &DeltaTracker{lastSeen: make(map[string]string)}
}

// Delta returns the unseen portion of fullText relative to the last snapshot
// recorded for speakerID, trimmed of surrounding whitespace. The last-seen
// state is updated unconditionally, so feeding the same snapshot twice yields
// an empty delta the second time. Deltas with fewer than two non-whitespace
// characters are reported as empty.
func (d *DeltaTracker) Delta(speakerID, fullText string) string {
	d.mu.Lock()
	prev := d.lastSeen[speakerID]
	d.lastSeen[speakerID] = fullText
	d.mu.Unlock()

	var delta string
	if prev != "" && strings.HasPrefix(fullText, prev) {
		delta = fullText[len(prev):]
	} else {
		// Restart or unrelated utterance: take the snapshot whole.
		delta = fullText
	}

	delta = strings.TrimSpace(delta)
	if countNonSpace(delta) < minDeltaRunes {
		return ""
	}
	return delta
}

// Forget drops the stored snapshot for speakerID, typically when the
// participant leaves the room. The next snapshot from that speaker is
// treated as a fresh utterance.
func (d *DeltaTracker) Forget(speakerID string) {
	d.mu.Lock()
	delete(d.lastSeen, speakerID)
	d.mu.Unlock()
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
