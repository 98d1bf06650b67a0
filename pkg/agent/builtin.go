package agent

import "github.com/council-runtime/council/pkg/llm"

// Built-in council roles. Capability tags are what the registry indexes;
// see pkg/registry.

// Capability tags used by the built-in roles.
const (
	CapabilityPlanning  = "planning"
	CapabilityCoding    = "coding"
	CapabilityReview    = "review"
	CapabilitySecurity  = "security"
	CapabilityResearch  = "research"
	CapabilityShadow    = "shadow_vote"
	CapabilityProReview = "pro_review"
)

// NewArchitect creates the planning agent. It decomposes tasks into
// subtasks and surfaces risks.
func NewArchitect(client llm.Client, model string) *BaseAgent {
	return New(Profile{
		Name: "architect",
		SystemPrompt: "You are the architect of a development council. Decompose tasks into " +
			"small, independently verifiable subtasks. Surface risks explicitly. Be terse.",
		Model:              model,
		AllowDelegation:    true,
		MaxDelegationDepth: 3,
	}, client)
}

// NewCoder creates the implementation agent.
func NewCoder(client llm.Client, model string) *BaseAgent {
	return New(Profile{
		Name: "coder",
		SystemPrompt: "You are the coder of a development council. Implement exactly the subtask " +
			"given, following the plan context. Report honestly whether you succeeded.",
		Model:              model,
		AllowDelegation:    true,
		AllowedAgents:      []string{"researcher"},
		MaxDelegationDepth: 2,
	}, client)
}

// NewReviewer creates the code-review agent.
func NewReviewer(client llm.Client, model string) *BaseAgent {
	return New(Profile{
		Name: "reviewer",
		SystemPrompt: "You are the reviewer of a development council. Judge correctness, " +
			"maintainability and test coverage. Vote honestly; do not rubber-stamp.",
		Model: model,
	}, client)
}

// NewSecurityAuditor creates the security-review agent.
func NewSecurityAuditor(client llm.Client, model string) *BaseAgent {
	return New(Profile{
		Name: "security",
		SystemPrompt: "You are the security auditor of a development council. Look for injection, " +
			"secrets handling, unsafe deserialization and destructive operations. Tag findings with " +
			"the sec risk category.",
		Model: model,
	}, client)
}

// NewResearcher creates the web-research agent. Browsing itself lives
// outside the core; this agent only reasons over supplied context.
func NewResearcher(client llm.Client, model string) *BaseAgent {
	return New(Profile{
		Name: "researcher",
		SystemPrompt: "You are the researcher of a development council. Answer queries from the " +
			"provided context and state clearly when information is missing.",
		Model: model,
	}, client)
}
