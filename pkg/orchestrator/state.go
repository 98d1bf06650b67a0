// Package orchestrator drives one task from intake to a terminal status
// through a fixed state machine. Each state consults the lower layers
// (agents, consensus, healing, governance) and records its transitions on
// the hub, the ledger, and the checkpoint store.
package orchestrator

import (
	"fmt"
	"sync"
	"time"
)

// Status is the orchestrator state machine's state.
type Status string

const (
	StatusAnalyzing     Status = "ANALYZING"
	StatusExploring     Status = "EXPLORING"
	StatusPlanning      Status = "PLANNING"
	StatusCoding        Status = "CODING"
	StatusTesting       Status = "TESTING"
	StatusHealing       Status = "HEALING"
	StatusReviewing     Status = "REVIEWING"
	StatusCompleted     Status = "COMPLETED"
	StatusFailed        Status = "FAILED"
	StatusHumanRequired Status = "HUMAN_REQUIRED"
)

// IsValid reports whether s is a member of the closed enum.
func (s Status) IsValid() bool {
	switch s {
	case StatusAnalyzing, StatusExploring, StatusPlanning, StatusCoding,
		StatusTesting, StatusHealing, StatusReviewing,
		StatusCompleted, StatusFailed, StatusHumanRequired:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state machine stops at s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusHumanRequired
}

// SubtaskStatus tracks one subtask through the CODING state.
type SubtaskStatus string

const (
	SubtaskPending SubtaskStatus = "pending"
	SubtaskDone    SubtaskStatus = "done"
	SubtaskFailed  SubtaskStatus = "failed"
)

// Subtask is one unit of work inside a plan.
type Subtask struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Status      SubtaskStatus `json:"status"`
	Result      string        `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Plan is the structured decomposition produced in PLANNING.
type Plan struct {
	Goal     string    `json:"goal"`
	Subtasks []Subtask `json:"subtasks"`
	Risks    []string  `json:"risks,omitempty"`
}

// CouncilState is the mutable state of one orchestrator run. It is owned
// exclusively by the run; subscribers read it only through snapshots.
// Subtask status writes go through the mutex because subtask execution
// may fan out.
type CouncilState struct {
	mu sync.Mutex

	Task           string         `json:"task"`
	Status         Status         `json:"status"`
	Plan           *Plan          `json:"plan,omitempty"`
	TestResults    []string       `json:"test_results,omitempty"`
	ReviewComments []string       `json:"review_comments,omitempty"`
	Metadata       map[string]any `json:"metadata"`
	Log            []string       `json:"log"`
}

// NewCouncilState creates the state for one task, starting in ANALYZING.
func NewCouncilState(task string) *CouncilState {
	return &CouncilState{
		Task:     task,
		Status:   StatusAnalyzing,
		Metadata: map[string]any{},
	}
}

// SetStatus transitions the state and appends a log line.
func (s *CouncilState) SetStatus(next Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Log = append(s.Log, fmt.Sprintf("[%s] %s -> %s",
		time.Now().UTC().Format(time.RFC3339), s.Status, next))
	s.Status = next
}

// CurrentStatus returns the status under the lock.
func (s *CouncilState) CurrentStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status
}

// AppendLog adds a free-form log line.
func (s *CouncilState) AppendLog(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Log = append(s.Log, fmt.Sprintf("[%s] ", time.Now().UTC().Format(time.RFC3339))+fmt.Sprintf(format, args...))
}

// SetMeta updates one metadata key. Metadata is updated, never rewritten.
func (s *CouncilState) SetMeta(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Metadata[key] = value
}

// AddTestResult appends one test run summary.
func (s *CouncilState) AddTestResult(result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TestResults = append(s.TestResults, result)
}

// AddReviewComment appends one review comment.
func (s *CouncilState) AddReviewComment(comment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReviewComments = append(s.ReviewComments, comment)
}

// SetSubtaskStatus serializes subtask status writes.
func (s *CouncilState) SetSubtaskStatus(id string, status SubtaskStatus, result, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Plan == nil {
		return
	}
	for i := range s.Plan.Subtasks {
		if s.Plan.Subtasks[i].ID == id {
			s.Plan.Subtasks[i].Status = status
			s.Plan.Subtasks[i].Result = result
			s.Plan.Subtasks[i].Error = errMsg
			return
		}
	}
}

// PendingSubtasks returns copies of the subtasks still pending.
func (s *CouncilState) PendingSubtasks() []Subtask {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Plan == nil {
		return nil
	}
	var out []Subtask
	for _, st := range s.Plan.Subtasks {
		if st.Status == SubtaskPending {
			out = append(out, st)
		}
	}
	return out
}

// Snapshot renders the state as a JSON-encodable map for checkpointing.
func (s *CouncilState) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := map[string]any{
		"task":            s.Task,
		"status":          string(s.Status),
		"test_results":    append([]string(nil), s.TestResults...),
		"review_comments": append([]string(nil), s.ReviewComments...),
		"log":             append([]string(nil), s.Log...),
	}
	meta := make(map[string]any, len(s.Metadata))
	for k, v := range s.Metadata {
		meta[k] = v
	}
	snap["metadata"] = meta

	if s.Plan != nil {
		subtasks := make([]map[string]any, 0, len(s.Plan.Subtasks))
		for _, st := range s.Plan.Subtasks {
			subtasks = append(subtasks, map[string]any{
				"id":          st.ID,
				"description": st.Description,
				"status":      string(st.Status),
				"result":      st.Result,
				"error":       st.Error,
			})
		}
		snap["plan"] = map[string]any{
			"goal":     s.Plan.Goal,
			"subtasks": subtasks,
			"risks":    append([]string(nil), s.Plan.Risks...),
		}
	}
	return snap
}
