// Package history persists tool-call records in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"speakmcp/internal/lifecycle"
	"speakmcp/pkg/logging"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const subsystem = "History"

// CleanupTaskName is the name of the CleanupTask that closes the store.
const CleanupTaskName = "tool-history"

// cleanupPriority runs after the orchestrator has closed its clients.
const cleanupPriority = 90

const schema = `
CREATE TABLE IF NOT EXISTS tool_calls (
	id TEXT PRIMARY KEY,
	tool TEXT NOT NULL,
	owner TEXT NOT NULL,
	arguments TEXT,
	result TEXT,
	is_error INTEGER NOT NULL DEFAULT 0,
	started_at INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tool_calls_started_at ON tool_calls(started_at);
`

// ErrClosed is returned when the store has been closed.
var ErrClosed = errors.New("history store is closed")

// Entry is one recorded tool call.
type Entry struct {
	ID        string         `json:"id" yaml:"id"`
	Tool      string         `json:"tool" yaml:"tool"`
	Owner     string         `json:"owner" yaml:"owner"`
	Arguments map[string]any `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	Result    string         `json:"result" yaml:"result"`
	IsError   bool           `json:"isError" yaml:"isError"`
	StartedAt time.Time      `json:"startedAt" yaml:"startedAt"`
	Duration  time.Duration  `json:"duration" yaml:"duration"`
}

// Store provides access to the history database.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath returns ~/.config/speakmcp/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	return filepath.Join(home, ".config", "speakmcp", "history.db"), nil
}

// Open creates or opens the store at path and runs migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}

	logging.Debug(subsystem, "Opened history store at %s", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("close history db: %w", err)
	}
	return nil
}

// CleanupTask returns a task that closes the store during shutdown.
func (s *Store) CleanupTask() lifecycle.CleanupTask {
	return lifecycle.CleanupTask{
		Name:     CleanupTaskName,
		Priority: cleanupPriority,
		Cleanup: func(ctx context.Context) error {
			return s.Close()
		},
	}
}

// Record inserts e, assigning an ID and start time when unset.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	e.StartedAt = e.StartedAt.UTC()

	var args []byte
	if e.Arguments != nil {
		var err error
		args, err = json.Marshal(e.Arguments)
		if err != nil {
			return Entry{}, fmt.Errorf("marshal arguments: %w", err)
		}
	}

	isError := 0
	if e.IsError {
		isError = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_calls (id, tool, owner, arguments, result, is_error, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Tool, e.Owner, string(args), e.Result, isError, e.StartedAt.UnixNano(), e.Duration.Milliseconds(),
	)
	if err != nil {
		return Entry{}, s.wrap("insert tool call", err)
	}
	return e, nil
}

// List returns up to limit entries, newest first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, tool, owner, arguments, result, is_error, started_at, duration_ms
		FROM tool_calls ORDER BY started_at DESC, rowid DESC`
	var params []any
	if limit > 0 {
		query += " LIMIT ?"
		params = append(params, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, s.wrap("list tool calls", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			args       sql.NullString
			result     sql.NullString
			startedAt  int64
			durationMs int64
		)
		if err := rows.Scan(&e.ID, &e.Tool, &e.Owner, &args, &result, &e.IsError, &startedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		if args.Valid && args.String != "" {
			if err := json.Unmarshal([]byte(args.String), &e.Arguments); err != nil {
				return nil, fmt.Errorf("decode arguments of %s: %w", e.ID, err)
			}
		}
		e.Result = result.String
		e.StartedAt = time.Unix(0, startedAt).UTC()
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) wrap(op string, err error) error {
	if strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	return fmt.Errorf("%s: %w", op, err)
}
