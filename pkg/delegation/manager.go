// Package delegation provides depth- and cycle-safe task handoff between
// agents. The chain behaves like a call stack: a delegating agent is pushed
// before the target executes and popped regardless of outcome.
package delegation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/council-runtime/council/pkg/agent"
	"github.com/council-runtime/council/pkg/registry"
)

// DefaultMaxDepth is the global delegation depth limit. An agent's own
// MaxDelegationDepth can only lower the effective limit, never raise it.
const DefaultMaxDepth = 5

// Typed delegation errors. The orchestrator records these as blocked
// subtasks; they never crash a run.
var (
	ErrNotAllowed       = errors.New("delegation: not allowed")
	ErrMaxDepthExceeded = errors.New("delegation: max depth exceeded")
	ErrCycle            = errors.New("delegation: cycle")
)

// Status classifies a delegation outcome.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusRejected Status = "rejected"
)

// Result records one delegation attempt, successful or not.
type Result struct {
	Task      string    `json:"task"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Depth     int       `json:"depth"`
	Status    Status    `json:"status"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Manager executes delegations against a registry. A manager is owned by
// one orchestrator run; concurrent delegations on the same manager share
// one chain and must be serialized by the caller.
type Manager struct {
	registry *registry.Registry
	maxDepth int

	mu      sync.Mutex
	chain   []string // agent names, call-stack order
	history []Result
}

// NewManager creates a delegation manager. maxDepth <= 0 selects
// DefaultMaxDepth.
func NewManager(reg *registry.Registry, maxDepth int) *Manager {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Manager{registry: reg, maxDepth: maxDepth}
}

// Delegate hands task from one agent to the named target. The from agent's
// name is pushed on the chain for the duration of the target's Execute call
// and popped afterwards, including on failure.
func (m *Manager) Delegate(ctx context.Context, task string, from agent.Agent, toName string, planContext string) (*Result, error) {
	fromProfile := from.Profile()

	m.mu.Lock()
	depth := len(m.chain) + 1

	if ok, reason := m.registry.CanDelegateTo(fromProfile, toName); !ok {
		res := m.recordLocked(task, fromProfile.Name, toName, depth, StatusRejected, "", reason)
		m.mu.Unlock()
		return res, fmt.Errorf("%w: %s", ErrNotAllowed, reason)
	}

	effectiveMax := m.maxDepth
	if fromProfile.MaxDelegationDepth > 0 && fromProfile.MaxDelegationDepth < effectiveMax {
		effectiveMax = fromProfile.MaxDelegationDepth
	}
	if len(m.chain) >= effectiveMax {
		reason := fmt.Sprintf("chain depth %d reached limit %d", len(m.chain), effectiveMax)
		res := m.recordLocked(task, fromProfile.Name, toName, depth, StatusRejected, "", reason)
		m.mu.Unlock()
		return res, fmt.Errorf("%w: %s", ErrMaxDepthExceeded, reason)
	}

	for _, name := range m.chain {
		if name == toName {
			reason := fmt.Sprintf("agent %s is already on the delegation chain", toName)
			res := m.recordLocked(task, fromProfile.Name, toName, depth, StatusRejected, "", reason)
			m.mu.Unlock()
			return res, fmt.Errorf("%w: %s", ErrCycle, reason)
		}
	}

	target, err := m.registry.Get(toName)
	if err != nil {
		res := m.recordLocked(task, fromProfile.Name, toName, depth, StatusRejected, "", err.Error())
		m.mu.Unlock()
		return res, fmt.Errorf("%w: %v", ErrNotAllowed, err)
	}

	m.chain = append(m.chain, fromProfile.Name)
	m.mu.Unlock()

	execResult, execErr := target.Execute(ctx, task, planContext)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.chain = m.chain[:len(m.chain)-1]

	switch {
	case execErr != nil:
		return m.recordLocked(task, fromProfile.Name, toName, depth, StatusFailed, "", execErr.Error()), nil
	case execResult.Success:
		return m.recordLocked(task, fromProfile.Name, toName, depth, StatusSuccess, execResult.Output, ""), nil
	default:
		return m.recordLocked(task, fromProfile.Name, toName, depth, StatusFailed, execResult.Output, execResult.Error), nil
	}
}

// recordLocked appends a result to history. Caller holds m.mu.
func (m *Manager) recordLocked(task, from, to string, depth int, status Status, output, errMsg string) *Result {
	res := Result{
		Task:      task,
		From:      from,
		To:        to,
		Depth:     depth,
		Status:    status,
		Output:    output,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}
	m.history = append(m.history, res)
	return &res
}

// ChainLen returns the current chain depth.
func (m *Manager) ChainLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chain)
}

// Chain returns a copy of the current chain, outermost caller first.
func (m *Manager) Chain() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.chain...)
}

// History returns a copy of all recorded delegation results.
func (m *Manager) History() []Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Result(nil), m.history...)
}
