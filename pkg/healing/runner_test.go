package healing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParser(t *testing.T) {
	tests := []struct {
		name       string
		output     string
		wantPassed int
		wantFailed int
	}{
		{"both counts", "== 12 passed, 3 failed in 1.2s ==", 12, 3},
		{"passed only", "5 passed", 5, 0},
		{"failed only", "2 failed", 0, 2},
		{"no counts", "compilation error", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passed, failed := DefaultParser{}.Parse(tt.output)
			assert.Equal(t, tt.wantPassed, passed)
			assert.Equal(t, tt.wantFailed, failed)
		})
	}
}

func TestRunnerCleanPass(t *testing.T) {
	r := NewRunner(`echo "3 passed"`, t.TempDir())
	outcome, err := r.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Passed)
	assert.Equal(t, 0, outcome.Failed)
	assert.Equal(t, 0, outcome.ExitCode)
	assert.True(t, outcome.AllPassed())
}

func TestRunnerFailingSuite(t *testing.T) {
	r := NewRunner(`echo "2 passed, 1 failed"; exit 1`, t.TempDir())
	outcome, err := r.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Passed)
	assert.Equal(t, 1, outcome.Failed)
	assert.Equal(t, 1, outcome.ExitCode)
	assert.False(t, outcome.AllPassed())
}

func TestRunnerUnparseableFailureCountsAsOne(t *testing.T) {
	r := NewRunner(`echo "panic: boom"; exit 2`, t.TempDir())
	outcome, err := r.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Failed)
	assert.Equal(t, 2, outcome.ExitCode)
}

func TestRunnerWorkDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker"), []byte("x"), 0o644))

	r := NewRunner(`test -f marker && echo "1 passed"`, dir)
	outcome, err := r.Run(context.Background())

	require.NoError(t, err)
	assert.True(t, outcome.AllPassed())
}

func TestRunnerContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner("sleep 5", t.TempDir())
	_, err := r.Run(ctx)
	assert.Error(t, err)
}
