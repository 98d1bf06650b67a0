package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the server-backed checkpoint backend for deployments
// that already run Postgres. Same table shape as the SQLite backend.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres using a pgx connection string.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("checkpoint: postgres ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Initialize creates the checkpoint table.
func (s *PostgresStore) Initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		thread_id  TEXT        NOT NULL,
		step       INTEGER     NOT NULL,
		state_json JSONB       NOT NULL,
		timestamp  TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (thread_id, step)
	);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_thread ON checkpoints(thread_id);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("checkpoint: initialize schema: %w", err)
	}
	return nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, cp Checkpoint) error {
	defer observe("postgres", "save")()
	data, err := encodeState(cp)
	if err != nil {
		return err
	}
	ts := cp.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO checkpoints (thread_id, step, state_json, timestamp)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (thread_id, step) DO UPDATE SET state_json = EXCLUDED.state_json, timestamp = EXCLUDED.timestamp`,
		cp.ThreadID, cp.Step, string(data), ts)
	if err != nil {
		return fmt.Errorf("checkpoint: save: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	defer observe("postgres", "load")()
	row := s.pool.QueryRow(ctx,
		`SELECT thread_id, step, state_json, timestamp FROM checkpoints
		 WHERE thread_id = $1 ORDER BY step DESC LIMIT 1`, threadID)
	return scanPgCheckpoint(row)
}

// LoadAtStep implements Store.
func (s *PostgresStore) LoadAtStep(ctx context.Context, threadID string, step int) (*Checkpoint, error) {
	defer observe("postgres", "load_at_step")()
	row := s.pool.QueryRow(ctx,
		`SELECT thread_id, step, state_json, timestamp FROM checkpoints
		 WHERE thread_id = $1 AND step = $2`, threadID, step)
	return scanPgCheckpoint(row)
}

// ListCheckpoints implements Store.
func (s *PostgresStore) ListCheckpoints(ctx context.Context, threadID string) ([]Checkpoint, error) {
	defer observe("postgres", "list")()
	rows, err := s.pool.Query(ctx,
		`SELECT thread_id, step, state_json, timestamp FROM checkpoints
		 WHERE thread_id = $1 ORDER BY step ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list: %w", err)
	}
	defer rows.Close()

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
func (s *PostgresStore) DeleteThread(ctx context.Context, threadID string) error {
	defer observe("postgres", "delete_thread")()
	if _, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE thread_id = $1`, threadID); err != nil {
		return fmt.Errorf("checkpoint: delete thread: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgCheckpoint(row pgx.Row) (*Checkpoint, error) {
	var cp Checkpoint
	var stateJSON string
	err := row.Scan(&cp.ThreadID, &cp.Step, &stateJSON, &cp.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
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
