package ledger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskLedgerFactsLastWriteWins(t *testing.T) {
	l := NewTaskLedger("t1", "build the thing")
	l.AddFact("db", "postgres")
	l.AddFact("db", "sqlite")

	v, ok := l.Fact("db")
	require.True(t, ok)
	assert.Equal(t, "sqlite", v)
}

func TestTaskLedgerQueryLifecycle(t *testing.T) {
	l := NewTaskLedger("t1", "goal")

	l.AddQuery("which db?")
	l.AddQuery("which db?") // duplicate ignored
	assert.Equal(t, []string{"which db?"}, l.PendingQueries())

	l.ResolveQuery("which db?", "sqlite")
	assert.Empty(t, l.PendingQueries())

	// Resolved queries carry their result as a fact.
	v, ok := l.Fact("resolved:which db?")
	require.True(t, ok)
	assert.Equal(t, "sqlite", v)

	// A resolved query can never become pending again.
	l.AddQuery("which db?")
	assert.Empty(t, l.PendingQueries())
}

func TestTaskLedgerResolveUnknownQueryNoop(t *testing.T) {
	l := NewTaskLedger("t1", "goal")
	l.ResolveQuery("never asked", "x")
	_, ok := l.Fact("resolved:never asked")
	assert.False(t, ok)
}

func TestTaskLedgerResolveLongQueryTruncatesFactKey(t *testing.T) {
	l := NewTaskLedger("t1", "goal")
	long := strings.Repeat("q", 80)
	l.AddQuery(long)
	l.ResolveQuery(long, "answer")

	_, ok := l.Fact("resolved:" + strings.Repeat("q", 48))
	assert.True(t, ok)
}

func TestTaskLedgerDedup(t *testing.T) {
	l := NewTaskLedger("t1", "goal")
	l.AddConclusion("works")
	l.AddConclusion("works")
	l.AddHint("use table tests")
	l.AddHint("use table tests")

	ctx := l.ToContext()
	assert.Equal(t, 1, strings.Count(ctx, "works"))
	assert.Equal(t, 1, strings.Count(ctx, "use table tests"))
}

func TestTaskLedgerToContextDeterministic(t *testing.T) {
	build := func() *TaskLedger {
		l := NewTaskLedger("t1", "goal")
		l.AddFact("zeta", 1)
		l.AddFact("alpha", 2)
		l.AddFact("mid", 3)
		l.SetPlan([]string{"step one", "step two"})
		return l
	}
	a := build().ToContext()
	b := build().ToContext()

	assert.Equal(t, a, b)
	// Facts render sorted by key.
	assert.Less(t, strings.Index(a, "alpha"), strings.Index(a, "zeta"))
	assert.Contains(t, a, "1. step one")
}
