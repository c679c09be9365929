// Package history provides a persistent record of generated artifacts.
// Each artifact gets an opaque code_id minted at insert time, which is
// the join key between a generation and any feedback later submitted
// for it. Records are append-only.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mfatir-y/mutimodal-ai-agent/internal/codegen"
)

// Entry is one generated artifact with its generation context.
type Entry struct {
	CodeID      string    `json:"code_id"`
	Timestamp   time.Time `json:"timestamp"`
	Prompt      string    `json:"prompt"`
	ChatModel   string    `json:"chat_model"`
	CodeModel   string    `json:"code_model"`
	Filename    string    `json:"filename"`
	Description string    `json:"description"`
	Code        string    `json:"code"`
}

// Store is an append-only SQLite store of generated artifacts. All
// public methods are safe for concurrent use (SQLite serializes
// writes).
type Store struct {
	db *sql.DB
}

// NewStore creates a history store at the given database path. The
// schema is created automatically on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS artifacts (
		code_id     TEXT PRIMARY KEY,
		timestamp   TEXT NOT NULL,
		prompt      TEXT NOT NULL,
		chat_model  TEXT NOT NULL,
		code_model  TEXT NOT NULL,
		filename    TEXT NOT NULL,
		description TEXT NOT NULL,
		code        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_artifacts_timestamp ON artifacts(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Add persists an artifact and returns the Entry with its minted
// code_id (UUIDv7, so ids sort by creation time).
func (s *Store) Add(ctx context.Context, req codegen.Request, artifact *codegen.Artifact) (*Entry, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate code_id: %w", err)
	}

	e := &Entry{
		CodeID:      id.String(),
		Timestamp:   time.Now().UTC(),
		Prompt:      req.Prompt,
		ChatModel:   req.ChatModel,
		CodeModel:   req.CodeModel,
		Filename:    artifact.Filename,
		Description: artifact.Description,
		Code:        artifact.Code,
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO artifacts
			(code_id, timestamp, prompt, chat_model, code_model, filename, description, code)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CodeID,
		e.Timestamp.Format(time.RFC3339),
		e.Prompt,
		e.ChatModel,
		e.CodeModel,
		e.Filename,
		e.Description,
		e.Code,
	)
	if err != nil {
		return nil, fmt.Errorf("insert artifact: %w", err)
	}
	return e, nil
}

// Get returns the entry for a code_id, or nil if none exists.
func (s *Store) Get(ctx context.Context, codeID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT code_id, timestamp, prompt, chat_model, code_model, filename, description, code
		 FROM artifacts WHERE code_id = ?`,
		codeID,
	)

	e, err := scanEntry(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact %s: %w", codeID, err)
	}
	return e, nil
}

// List returns up to limit entries, newest first. A non-positive limit
// defaults to 50.
func (s *Store) List(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT code_id, timestamp, prompt, chat_model, code_model, filename, description, code
		 FROM artifacts
		 ORDER BY timestamp DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of stored artifacts.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count artifacts: %w", err)
	}
	return n, nil
}

func scanEntry(scan func(dest ...any) error) (*Entry, error) {
	var e Entry
	var ts string
	if err := scan(&e.CodeID, &ts, &e.Prompt, &e.ChatModel, &e.CodeModel, &e.Filename, &e.Description, &e.Code); err != nil {
		return nil, err
	}
	e.Timestamp, _ = time.Parse(time.RFC3339, ts)
	return &e, nil
}
