// Package session orchestrates the two participant roles of a live meeting.
//
// A [Speaker] holds the floor for a room: it acquires the floor lock, runs a
// streaming recognition session, segments the cumulative transcript into
// finalized sentences, and archives/broadcasts each sentence exactly once.
// Recognition is restarted automatically when the stream drops, unless the
// failure is permission-based.
//
// A [Listener] follows a room: it tracks the remote floor holder through the
// room state channel, forces its listening mode to match, runs incoming
// transcript text through a delta tracker and the translate-synthesize
// pipeline, and feeds the resulting clips to a playback queue. Toggling
// listening off hard-resets the queue; results still in flight are discarded
// when they arrive.
package session

import (
	"context"
	"errors"

	"github.com/eburon-meet/orbit/pkg/types"
)

// ErrPermissionDenied marks a recognition failure caused by a denied
// microphone/capture permission. The speaker's restart loop gives up instead
// of retrying when a start error matches it.
var ErrPermissionDenied = errors.New("session: capture permission denied")

// TranscriptArchive persists finalized segments per room and serves catch-up
// reads. *postgres.TranscriptStore satisfies it.
type TranscriptArchive interface {
	Save(ctx context.Context, roomID string, seg types.TranscriptSegment) error
	Latest(ctx context.Context, roomID string) (types.TranscriptSegment, bool, error)
	Recent(ctx context.Context, roomID string, limit int) ([]types.TranscriptSegment, error)
}
