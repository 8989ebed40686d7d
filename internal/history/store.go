// Package history persists reconciliation pass outcomes for inspection.
// Journal failures never affect a pass's result.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Pass records one reconciliation pass.
type Pass struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	// Outcome is one of the reconciler's outcome labels
	// ("noop", "mounted", "switched", "consolidated", "unreachable", ...).
	Outcome string
	// Endpoint is the endpoint mounted through, when one was.
	Endpoint string
	// Detail carries the failure message for unsuccessful passes.
	Detail string
}

// Store is a SQLite-backed pass journal in the agent's state directory.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore opens (creating if needed) the journal database under dir.
func NewStore(dir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	dbPath := filepath.Join(dir, "history.db")
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &Store{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return store, nil
}

// migrate creates the necessary tables.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS passes (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			outcome TEXT NOT NULL,
			endpoint TEXT,
			detail TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_passes_started_at ON passes(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordPass stores one pass outcome.
func (s *Store) RecordPass(ctx context.Context, p *Pass) error {
	query := `
		INSERT INTO passes (id, started_at, finished_at, outcome, endpoint, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID.String(),
		p.StartedAt.Format(time.RFC3339),
		p.FinishedAt.Format(time.RFC3339),
		p.Outcome,
		nullString(p.Endpoint),
		nullString(p.Detail),
	)
	if err != nil {
		return fmt.Errorf("insert pass: %w", err)
	}
	return nil
}

// ListRecent returns the most recent passes, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*Pass, error) {
	query := `
		SELECT id, started_at, finished_at, outcome, endpoint, detail
		FROM passes
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}
	defer rows.Close()

	var passes []*Pass
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pass row: %w", err)
		}
		passes = append(passes, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passes: %w", err)
	}
	return passes, nil
}

// LastPass returns the most recent pass, or nil when the journal is empty.
func (s *Store) LastPass(ctx context.Context) (*Pass, error) {
	passes, err := s.ListRecent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(passes) == 0 {
		return nil, nil
	}
	return passes[0], nil
}

// Prune removes passes older than the given duration.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).Format(time.RFC3339)

	result, err := s.db.ExecContext(ctx, `DELETE FROM passes WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune passes: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(affected), nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanPass(rows *sql.Rows) (*Pass, error) {
	var (
		idStr, startedStr, finishedStr, outcome string
		endpoint, detail                        sql.NullString
	)

	if err := rows.Scan(&idStr, &startedStr, &finishedStr, &outcome, &endpoint, &detail); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse id: %w", err)
	}
	started, err := time.Parse(time.RFC3339, startedStr)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	finished, err := time.Parse(time.RFC3339, finishedStr)
	if err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}

	p := &Pass{
		ID:         id,
		StartedAt:  started,
		FinishedAt: finished,
		Outcome:    outcome,
	}
	if endpoint.Valid {
		p.Endpoint = endpoint.String
	}
	if detail.Valid {
		p.Detail = detail.String
	}
	return p, nil
}

// nullString converts a string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
