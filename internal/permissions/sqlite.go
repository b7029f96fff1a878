package permissions

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteManager persists decisions in a SQLite database so AlwaysAllow and
// AlwaysDeny survive process restarts.
type SQLiteManager struct {
	db *sql.DB
}

// NewSQLiteManager opens (or creates) the decision store at path. Use
// ":memory:" for an ephemeral store.
func NewSQLiteManager(path string) (*SQLiteManager, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open permission store: %w", err)
	}

	m := &SQLiteManager{db: db}
	if err := m.init(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func (m *SQLiteManager) init() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS tool_permissions (
			tool_name  TEXT PRIMARY KEY,
			decision   TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize permission store: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (m *SQLiteManager) Close() error { return m.db.Close() }

// Get returns the recorded decision for a tool.
func (m *SQLiteManager) Get(toolName string) (Decision, bool) {
	var decision string
	err := m.db.QueryRow(
		`SELECT decision FROM tool_permissions WHERE tool_name = ?`, toolName,
	).Scan(&decision)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		return "", false
	}
	return Decision(decision), true
}

// Set records a decision for a tool.
func (m *SQLiteManager) Set(toolName string, decision Decision) error {
	_, err := m.db.Exec(`
		INSERT INTO tool_permissions (tool_name, decision, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(tool_name) DO UPDATE SET decision = excluded.decision, updated_at = excluded.updated_at
	`, toolName, string(decision), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

// Clear removes the recorded decision for a tool.
func (m *SQLiteManager) Clear(toolName string) error {
	_, err := m.db.Exec(`DELETE FROM tool_permissions WHERE tool_name = ?`, toolName)
	return err
}
