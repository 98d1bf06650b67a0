// Package agent provides the capability interface council agents expose and
// the LLM-backed base implementation the built-in roles share.
// Agents are owned by the registry; call sites resolve them by name.
package agent

import "context"

// Profile is the static identity of an agent.
type Profile struct {
	Name         string
	SystemPrompt string
	Model        string

	// Delegation policy, enforced by the registry and delegation manager.
	AllowDelegation    bool
	AllowedAgents      []string
	MaxDelegationDepth int
}

// ThinkResult is the structured output of a planning-style think call.
type ThinkResult struct {
	Analysis    string   `json:"analysis"`
	Suggestions []string `json:"suggestions"`
	Concerns    []string `json:"concerns"`
	Confidence  float64  `json:"confidence"`
}

// ExecuteResult is the outcome of an execution-style call.
type ExecuteResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// Agent is the capability set every council agent exposes. All methods may
// suspend on the LLM boundary and must honor ctx cancellation.
type Agent interface {
	// Profile returns the agent's static identity.
	Profile() Profile

	// Think produces a free-text analysis of the task.
	Think(ctx context.Context, task string, extraContext string) (string, error)

	// ThinkStructured produces a structured plan-shaped analysis.
	ThinkStructured(ctx context.Context, task string, extraContext string) (*ThinkResult, error)

	// Vote casts a legacy free-text vote on a proposal. The returned string
	// is converted through ParseDecision at the call site.
	Vote(ctx context.Context, proposal string) (string, error)

	// VoteStructured casts a structured vote on a proposal.
	VoteStructured(ctx context.Context, proposal string, extraContext string) (*MinimalVote, error)

	// Execute performs a subtask. plan carries the surrounding plan context
	// and may be empty. LLM failures surface as (nil, err); semantic
	// failures surface as a result with Success=false.
	Execute(ctx context.Context, task string, plan string) (*ExecuteResult, error)
}
