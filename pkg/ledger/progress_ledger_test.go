package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressLedgerStagnationResetsOnProgress(t *testing.T) {
	l := NewProgressLedger(3)

	l.RecordIteration(false, "try", "no change")
	l.RecordIteration(false, "try", "no change")
	assert.Equal(t, 2, l.StagnationCount())

	l.RecordIteration(true, "try", "fixed")
	assert.Equal(t, 0, l.StagnationCount())
}

func TestProgressLedgerShouldReplan(t *testing.T) {
	l := NewProgressLedger(3)
	assert.False(t, l.ShouldReplan())

	l.RecordIteration(false, "a", "r1")
	l.RecordIteration(false, "a", "r2")
	assert.False(t, l.ShouldReplan())

	l.RecordIteration(false, "a", "r3")
	assert.True(t, l.ShouldReplan())
}

func TestProgressLedgerBlockedDoesNotTouchStagnation(t *testing.T) {
	l := NewProgressLedger(3)
	l.RecordIteration(false, "a", "r")
	l.RecordBlocked("save", "store unreachable")

	assert.Equal(t, 1, l.StagnationCount())
	iterations := l.Iterations()
	require.Len(t, iterations, 2)
	assert.Equal(t, StatusBlocked, iterations[1].Status)
}

func TestProgressLedgerLoopDetection(t *testing.T) {
	tests := []struct {
		name    string
		results []string
		inLoop  bool
	}{
		{"three identical stagnant", []string{"same", "same", "same"}, true},
		{"three differing stagnant", []string{"a", "b", "c"}, false},
		{"two identical only", []string{"same", "same"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewProgressLedger(10)
			for _, r := range tt.results {
				l.RecordIteration(false, "retry", r)
			}
			assert.Equal(t, tt.inLoop, l.Reflect().InLoop)
		})
	}
}

func TestProgressLedgerLoopBrokenByProgress(t *testing.T) {
	l := NewProgressLedger(10)
	l.RecordIteration(false, "retry", "same")
	l.RecordIteration(false, "retry", "same")
	l.RecordIteration(true, "retry", "same")

	assert.False(t, l.Reflect().InLoop)
}

func TestProgressLedgerReflect(t *testing.T) {
	l := NewProgressLedger(2)
	l.RecordIteration(false, "first", "r")
	l.RecordIteration(false, "second", "r")
	l.MarkCompleted("finish", "done")

	r := l.Reflect()
	assert.True(t, r.TaskCompleted)
	assert.True(t, r.ShouldReplan)
	assert.Equal(t, 2, r.StagnationCount)
	assert.Equal(t, 3, r.TotalIterations)
	assert.Equal(t, "finish", r.LastAction)
}

func TestProgressLedgerDefaultMaxStagnation(t *testing.T) {
	l := NewProgressLedger(0)
	for i := 0; i < DefaultMaxStagnation; i++ {
		l.RecordIteration(false, "a", "r")
	}
	assert.True(t, l.ShouldReplan())
}
