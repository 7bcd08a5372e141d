package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/eburon-meet/orbit/pkg/types"
)

// TranscriptStore archives final transcript segments per room. Listeners
// that toggle translation on mid-meeting use it to catch up on the most
// recent speech instead of starting from silence.
type TranscriptStore struct {
	db DB
}

// NewTranscriptStore creates a [TranscriptStore] on the given database
// connection or pool.
func NewTranscriptStore(db DB) *TranscriptStore {
	return &TranscriptStore{db: db}
}

// Save persists a segment for the given room. Saving the same segment ID
// twice overwrites the text, which lets a revised final replace its earlier
// version.
func (s *TranscriptStore) Save(ctx context.Context, roomID string, seg types.TranscriptSegment) error {
	const query = `
		INSERT INTO transcript_segments (id, room_id, speaker_id, text, language, is_final, spoken_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			language = EXCLUDED.language,
			is_final = EXCLUDED.is_final,
			spoken_at = EXCLUDED.spoken_at`

	_, err := s.db.Exec(ctx, query,
		seg.ID, roomID, seg.SpeakerID, seg.Text, seg.Language, seg.IsFinal, seg.Timestamp)
	if err != nil {
		return fmt.Errorf("postgres: save segment %q: %w", seg.ID, err)
	}
	return nil
}

// Latest returns the most recent final segment for the room, or false when
// the room has no transcript yet.
func (s *TranscriptStore) Latest(ctx context.Context, roomID string) (types.TranscriptSegment, bool, error) {
	const query = `
		SELECT id, speaker_id, text, language, is_final, spoken_at
		FROM transcript_segments
		WHERE room_id = $1 AND is_final
		ORDER BY spoken_at DESC
		LIMIT 1`

	var seg types.TranscriptSegment
	err := s.db.QueryRow(ctx, query, roomID).
		Scan(&seg.ID, &seg.SpeakerID, &seg.Text, &seg.Language, &seg.IsFinal, &seg.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.TranscriptSegment{}, false, nil
		}
		return types.TranscriptSegment{}, false, fmt.Errorf("postgres: latest segment for room %q: %w", roomID, err)
	}
	return seg, true, nil
}

// Recent returns up to limit final segments for the room in spoken order,
// oldest first.
func (s *TranscriptStore) Recent(ctx context.Context, roomID string, limit int) ([]types.TranscriptSegment, error) {
	const query = `
		SELECT id, speaker_id, text, language, is_final, spoken_at
		FROM (
			SELECT id, speaker_id, text, language, is_final, spoken_at
			FROM transcript_segments
			WHERE room_id = $1 AND is_final
			ORDER BY spoken_at DESC
			LIMIT $2
		) latest
		ORDER BY spoken_at ASC`

	rows, err := s.db.Query(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent segments for room %q: %w", roomID, err)
	}
	defer rows.Close()

	var segs []types.TranscriptSegment
	for rows.Next() {
		var seg types.TranscriptSegment
		if err := rows.Scan(&seg.ID, &seg.SpeakerID, &seg.Text, &seg.Language, &seg.IsFinal, &seg.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: recent segments scan: %w", err)
		}
		segs = append(segs, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: recent segments for room %q: %w", roomID, err)
	}
	return segs, nil
}
