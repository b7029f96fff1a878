package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteStore persists session metadata in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the store at path. Use ":memory:" for
// an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id            TEXT PRIMARY KEY,
			schedule_id   TEXT,
			working_dir   TEXT NOT NULL DEFAULT '',
			message_count INTEGER NOT NULL DEFAULT 0,
			input_tokens  INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens  INTEGER NOT NULL DEFAULT 0,
			updated_at    TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_schedule ON sessions(schedule_id, updated_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Get returns the metadata for a session.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Metadata, bool, error) {
	var meta Metadata
	var scheduleID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, schedule_id, working_dir, message_count, input_tokens, output_tokens, total_tokens, updated_at
		FROM sessions WHERE id = ?
	`, id).Scan(&meta.ID, &scheduleID, &meta.WorkingDir, &meta.MessageCount,
		&meta.InputTokens, &meta.OutputTokens, &meta.TotalTokens, &meta.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, fmt.Errorf("failed to load session: %w", err)
	}
	meta.ScheduleID = scheduleID.String
	return meta, true, nil
}

// Upsert inserts or replaces the metadata for a session.
func (s *SQLiteStore) Upsert(ctx context.Context, meta Metadata) error {
	if meta.UpdatedAt.IsZero() {
		meta.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, schedule_id, working_dir, message_count, input_tokens, output_tokens, total_tokens, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schedule_id   = excluded.schedule_id,
			working_dir   = excluded.working_dir,
			message_count = excluded.message_count,
			input_tokens  = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			total_tokens  = excluded.total_tokens,
			updated_at    = excluded.updated_at
	`, meta.ID, meta.ScheduleID, meta.WorkingDir, meta.MessageCount,
		meta.InputTokens, meta.OutputTokens, meta.TotalTokens, meta.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// ListBySchedule returns sessions created by a scheduled job, most recent
// first.
func (s *SQLiteStore) ListBySchedule(ctx context.Context, scheduleID string, limit int) ([]Metadata, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schedule_id, working_dir, message_count, input_tokens, output_tokens, total_tokens, updated_at
		FROM sessions WHERE schedule_id = ?
		ORDER BY updated_at DESC LIMIT ?
	`, scheduleID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		var meta Metadata
		var schedID sql.NullString
		if err := rows.Scan(&meta.ID, &schedID, &meta.WorkingDir, &meta.MessageCount,
			&meta.InputTokens, &meta.OutputTokens, &meta.TotalTokens, &meta.UpdatedAt); err != nil {
			return nil, err
		}
		meta.ScheduleID = schedID.String
		out = append(out, meta)
	}
	return out, rows.Err()
}
