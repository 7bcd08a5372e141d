// Package postgres persists Orbit's durable state: the per-room floor-lock
// table and the transcript archive. The floor-lock table is the authority for
// mutual exclusion — every acquire is a single conditional write, and all
// timestamps are assigned by the database clock so that clients with skewed
// clocks cannot corrupt staleness judgments.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the Orbit tables. Execute it via [Migrate] or
// apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS floor_locks (
    room_id         TEXT PRIMARY KEY,
    holder_identity TEXT NOT NULL,
    acquired_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    heartbeat_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transcript_segments (
    id         TEXT PRIMARY KEY,
    room_id    TEXT NOT NULL,
    speaker_id TEXT NOT NULL,
    text       TEXT NOT NULL,
    language   TEXT NOT NULL DEFAULT '',
    is_final   BOOLEAN NOT NULL DEFAULT true,
    spoken_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcript_segments_room_time ON transcript_segments(room_id, spoken_at DESC);
`

// DB is the database interface used by the stores in this package. Both
// *pgxpool.Pool and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Connect opens a pgx connection pool against dsn and verifies connectivity
// with a ping. The caller owns the returned pool and must Close it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// Migrate executes the [Schema] DDL against the database, creating the Orbit
// tables and indexes if they do not already exist.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}
