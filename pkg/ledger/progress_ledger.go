package ledger

import (
	"sync"
	"time"
)

// IterationStatus classifies one recorded iteration.
type IterationStatus string

const (
	StatusProgress  IterationStatus = "PROGRESS"
	StatusStagnant  IterationStatus = "STAGNANT"
	StatusBlocked   IterationStatus = "BLOCKED"
	StatusCompleted IterationStatus = "COMPLETED"
)

// IterationRecord is one entry in the progress log.
type IterationRecord struct {
	N         int             `json:"n"`
	Status    IterationStatus `json:"status"`
	Action    string          `json:"action"`
	Result    string          `json:"result"`
	Timestamp time.Time       `json:"timestamp"`
}

// DefaultMaxStagnation is how many consecutive stagnant iterations trigger
// a replan when no explicit limit is configured.
const DefaultMaxStagnation = 3

// ProgressLedger tracks iteration history and stagnation for one task.
type ProgressLedger struct {
	mu              sync.Mutex
	iterations      []IterationRecord
	stagnationCount int
	maxStagnation   int
	completed       bool
}

// NewProgressLedger creates a progress ledger. maxStagnation <= 0 selects
// DefaultMaxStagnation.
func NewProgressLedger(maxStagnation int) *ProgressLedger {
	if maxStagnation <= 0 {
		maxStagnation = DefaultMaxStagnation
	}
	return &ProgressLedger{maxStagnation: maxStagnation}
}

// RecordIteration appends an iteration record and returns its status.
// A progressing iteration resets the stagnation counter to zero; a
// non-progressing one increments it.
func (l *ProgressLedger) RecordIteration(progress bool, action, result string) IterationStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	status := StatusStagnant
	if progress {
		status = StatusProgress
		l.stagnationCount = 0
	} else {
		l.stagnationCount++
	}
	l.iterations = append(l.iterations, IterationRecord{
		N:         len(l.iterations) + 1,
		Status:    status,
		Action:    action,
		Result:    result,
		Timestamp: time.Now().UTC(),
	})
	return status
}

// RecordBlocked appends a BLOCKED record without touching the stagnation
// counter. Used when an external failure (timeout, persistence error)
// prevented the iteration from running at all.
func (l *ProgressLedger) RecordBlocked(action, result string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.iterations = append(l.iterations, IterationRecord{
		N:         len(l.iterations) + 1,
		Status:    StatusBlocked,
		Action:    action,
		Result:    result,
		Timestamp: time.Now().UTC(),
	})
}

// MarkCompleted records a terminal COMPLETED iteration.
func (l *ProgressLedger) MarkCompleted(action, result string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = true
	l.iterations = append(l.iterations, IterationRecord{
		N:         len(l.iterations) + 1,
		Status:    StatusCompleted,
		Action:    action,
		Result:    result,
		Timestamp: time.Now().UTC(),
	})
}

// ShouldReplan reports whether stagnation reached the configured limit.
func (l *ProgressLedger) ShouldReplan() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stagnationCount >= l.maxStagnation
}

// StagnationCount returns the current consecutive-stagnation counter.
func (l *ProgressLedger) StagnationCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stagnationCount
}

// Iterations returns a copy of the iteration log.
func (l *ProgressLedger) Iterations() []IterationRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]IterationRecord(nil), l.iterations...)
}

// Reflection summarises the progress ledger for replan decisions.
type Reflection struct {
	TaskCompleted   bool   `json:"task_completed"`
	InLoop          bool   `json:"in_loop"`
	Stagnant        bool   `json:"stagnant"`
	StagnationCount int    `json:"stagnation_count"`
	ShouldReplan    bool   `json:"should_replan"`
	TotalIterations int    `json:"total_iterations"`
	LastAction      string `json:"last_action"`
}

// Reflect returns a snapshot of the ledger's health. InLoop is true iff
// the last three records are all STAGNANT with identical result strings.
func (l *ProgressLedger) Reflect() Reflection {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := Reflection{
		TaskCompleted:   l.completed,
		Stagnant:        l.stagnationCount > 0,
		StagnationCount: l.stagnationCount,
		ShouldReplan:    l.stagnationCount >= l.maxStagnation,
		TotalIterations: len(l.iterations),
	}
	if n := len(l.iterations); n > 0 {
		r.LastAction = l.iterations[n-1].Action
	}
	if n := len(l.iterations); n >= 3 {
		last := l.iterations[n-3:]
		r.InLoop = last[0].Status == StatusStagnant &&
			last[1].Status == StatusStagnant &&
			last[2].Status == StatusStagnant &&
			last[0].Result == last[1].Result &&
			last[1].Result == last[2].Result
	}
	return r
}

// DualLedger pairs the task and progress ledgers for one task. A fresh
// DualLedger is created per task and never shared across tasks.
type DualLedger struct {
	Task     *TaskLedger
	Progress *ProgressLedger
}

// NewDualLedger creates both ledgers for one task.
func NewDualLedger(taskID, goal string, maxStagnation int) *DualLedger {
	return &DualLedger{
		Task:     NewTaskLedger(taskID, goal),
		Progress: NewProgressLedger(maxStagnation),
	}
}
