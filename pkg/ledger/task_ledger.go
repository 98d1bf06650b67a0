// Package ledger is the single source of truth for one task's evolving
// state: the facts, queries and plan on the task side, and the iteration
// history with stagnation tracking on the progress side.
//
// Ledger operations are total and never return errors. Callers translate
// semantic signals (ShouldReplan, Reflect) into control-flow changes.
package ledger

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// TaskLedger holds the evolving knowledge about one task.
type TaskLedger struct {
	mu sync.Mutex

	TaskID             string
	Goal               string
	knownFacts         map[string]any
	pendingQueries     []string
	resolvedQueries    map[string]bool
	pendingConclusions []string
	initialPlan        []string
	experienceHints    []string
	CreatedAt          time.Time
}

// NewTaskLedger creates a ledger for one task.
func NewTaskLedger(taskID, goal string) *TaskLedger {
	return &TaskLedger{
		TaskID:          taskID,
		Goal:            goal,
		knownFacts:      make(map[string]any),
		resolvedQueries: make(map[string]bool),
		CreatedAt:       time.Now().UTC(),
	}
}

// AddFact records a fact. Last write wins on duplicate keys.
func (l *TaskLedger) AddFact(key string, value any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.knownFacts[key] = value
}

// Fact returns the value for key and whether it is known.
func (l *TaskLedger) Fact(key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.knownFacts[key]
	return v, ok
}

// AddQuery appends a pending query. Duplicates and already-resolved
// queries are ignored: a query is either pending or resolved, never both.
func (l *TaskLedger) AddQuery(query string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.resolvedQueries[query] {
		return
	}
	for _, q := range l.pendingQueries {
		if q == query {
			return
		}
	}
	l.pendingQueries = append(l.pendingQueries, query)
}

// ResolveQuery removes query from the pending list and records a
// "resolved:<prefix>" fact carrying the result. Resolving an unknown query
// is a no-op.
func (l *TaskLedger) ResolveQuery(query string, result any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := -1
	for i, q := range l.pendingQueries {
		if q == query {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	l.pendingQueries = append(l.pendingQueries[:idx], l.pendingQueries[idx+1:]...)
	l.resolvedQueries[query] = true
	l.knownFacts["resolved:"+queryPrefix(query)] = result
}

// queryPrefix shortens long queries so fact keys stay readable.
func queryPrefix(query string) string {
	const maxLen = 48
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen]
}

// AddConclusion appends a conclusion, de-duplicating.
func (l *TaskLedger) AddConclusion(conclusion string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.pendingConclusions {
		if c == conclusion {
			return
		}
	}
	l.pendingConclusions = append(l.pendingConclusions, conclusion)
}

// SetPlan replaces the initial plan with steps.
func (l *TaskLedger) SetPlan(steps []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.initialPlan = append([]string(nil), steps...)
}

// Plan returns a copy of the current plan steps.
func (l *TaskLedger) Plan() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.initialPlan...)
}

// AddHint appends an experience hint, de-duplicating.
func (l *TaskLedger) AddHint(hint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, h := range l.experienceHints {
		if h == hint {
			return
		}
	}
	l.experienceHints = append(l.experienceHints, hint)
}

// PendingQueries returns a copy of the pending query list, in insertion order.
func (l *TaskLedger) PendingQueries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.pendingQueries...)
}

// ToContext renders the ledger as deterministic text for prompt injection.
// Facts are sorted by key so the output is stable across runs.
func (l *TaskLedger) ToContext() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "## Task: %s\nGoal: %s\n", l.TaskID, l.Goal)

	if len(l.knownFacts) > 0 {
		b.WriteString("\n### Known facts\n")
		keys := make([]string, 0, len(l.knownFacts))
		for k := range l.knownFacts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, l.knownFacts[k])
		}
	}
	if len(l.pendingQueries) > 0 {
		b.WriteString("\n### Pending queries\n")
		for _, q := range l.pendingQueries {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}
	if len(l.pendingConclusions) > 0 {
		b.WriteString("\n### Conclusions\n")
		for _, c := range l.pendingConclusions {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	if len(l.initialPlan) > 0 {
		b.WriteString("\n### Plan\n")
		for i, s := range l.initialPlan {
			fmt.Fprintf(&b, "%d. %s\n", i+1, s)
		}
	}
	if len(l.experienceHints) > 0 {
		b.WriteString("\n### Hints\n")
		for _, h := range l.experienceHints {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}
	return b.String()
}
