// Package checkpoint persists thread-scoped orchestrator state snapshots
// for recovery and time-travel debugging. Three backends implement the
// Store interface: an embedded SQLite file, a Redis key-value layout, and
// an optional Postgres table. The Redis backend also provides the
// distributed lock used for cross-process exclusion.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared by all backends.
var (
	// ErrNotFound is returned when a thread or step has no checkpoint.
	ErrNotFound = errors.New("checkpoint: not found")
	// ErrNotSerializable is returned at Save time for state that cannot
	// be JSON-encoded.
	ErrNotSerializable = errors.New("checkpoint: state not JSON-serializable")
)

// Checkpoint is one step-indexed snapshot of orchestrator state.
// Within a thread, Step is monotonically non-decreasing.
type Checkpoint struct {
	ThreadID  string         `json:"thread_id"`
	Step      int            `json:"step"`
	State     map[string]any `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
}

// Store is the abstract checkpoint store. All methods are safe for
// concurrent use.
type Store interface {
	// Initialize prepares the backing storage (schema, connectivity).
	Initialize(ctx context.Context) error

	// Save persists cp. State must be JSON-encodable; ErrNotSerializable
	// is returned otherwise and nothing is written.
	Save(ctx context.Context, cp Checkpoint) error

	// Load returns the checkpoint with the highest step for the thread.
	Load(ctx context.Context, threadID string) (*Checkpoint, error)

	// LoadAtStep returns the exact checkpoint for (threadID, step).
	LoadAtStep(ctx context.Context, threadID string, step int) (*Checkpoint, error)

	// ListCheckpoints returns all checkpoints for the thread, ordered by
	// step ascending.
	ListCheckpoints(ctx context.Context, threadID string) ([]Checkpoint, error)

	// DeleteThread removes every checkpoint for the thread.
	DeleteThread(ctx context.Context, threadID string) error

	// Close releases backend resources.
	Close() error
}

// encodeState validates and serializes checkpoint state in one pass.
func encodeState(cp Checkpoint) ([]byte, error) {
	if cp.Step < 0 {
		return nil, fmt.Errorf("checkpoint: negative step %d", cp.Step)
	}
	data, err := json.Marshal(cp.State)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	return data, nil
}
