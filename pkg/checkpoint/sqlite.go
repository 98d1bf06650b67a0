package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/council-runtime/council/pkg/observability"
)

// SQLiteStore is the embedded single-file checkpoint backend.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the checkpoint database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open sqlite: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Initialize creates the checkpoint table and its indexes.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		thread_id  TEXT    NOT NULL,
		step       INTEGER NOT NULL,
		state_json TEXT    NOT NULL,
		timestamp  DATETIME NOT NULL,
		PRIMARY KEY (thread_id, step)
	);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_thread ON checkpoints(thread_id);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_thread_step ON checkpoints(thread_id, step);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("checkpoint: initialize schema: %w", err)
	}
	return nil
}

// Save implements Store. Re-saving the same (thread, step) overwrites.
func (s *SQLiteStore) Save(ctx context.Context, cp Checkpoint) error {
	defer observe("sqlite", "save")()
	data, err := encodeState(cp)
	if err != nil {
		return err
	}
	ts := cp.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, step, state_json, timestamp)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(thread_id, step) DO UPDATE SET state_json=excluded.state_json, timestamp=excluded.timestamp`,
		cp.ThreadID, cp.Step, string(data), ts)
	if err != nil {
		return fmt.Errorf("checkpoint: save: %w", err)
	}
	return nil
}

// Load implements Store: the row with the maximum step for the thread.
func (s *SQLiteStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	defer observe("sqlite", "load")()
	row := s.db.QueryRowContext(ctx,
		`SELECT thread_id, step, state_json, timestamp FROM checkpoints
		 WHERE thread_id = ? ORDER BY step DESC LIMIT 1`, threadID)
	return scanCheckpoint(row)
}

// LoadAtStep implements Store.
func (s *SQLiteStore) LoadAtStep(ctx context.Context, threadID string, step int) (*Checkpoint, error) {
	defer observe("sqlite", "load_at_step")()
	row := s.db.QueryRowContext(ctx,
		`SELECT thread_id, step, state_json, timestamp FROM checkpoints
		 WHERE thread_id = ? AND step = ?`, threadID, step)
	return scanCheckpoint(row)
}

// ListCheckpoints implements Store.
func (s *SQLiteStore) ListCheckpoints(ctx context.Context, threadID string) ([]Checkpoint, error) {
	defer observe("sqlite", "list")()
	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id, step, state_json, timestamp FROM checkpoints
		 WHERE thread_id = ? ORDER BY step ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		var stateJSON string
		if err := rows.Scan(&cp.ThreadID, &cp.Step, &stateJSON, &cp.Timestamp); err != nil {
			return nil, fmt.Errorf("checkpoint: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
			return nil, fmt.Errorf("checkpoint: decode state: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// DeleteThread implements Store.
func (s *SQLiteStore) DeleteThread(ctx context.Context, threadID string) error {
	defer observe("sqlite", "delete_thread")()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("checkpoint: delete thread: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*Checkpoint, error) {
	var cp Checkpoint
	var stateJSON string
	err := row.Scan(&cp.ThreadID, &cp.Step, &stateJSON, &cp.Timestamp)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: scan: %w", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return nil, fmt.Errorf("checkpoint: decode state: %w", err)
	}
	return &cp, nil
}

// observe times one store operation for the latency histogram.
func observe(backend, op string) func() {
	start := time.Now()
	return func() {
		observability.CheckpointLatency.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
	}
}
