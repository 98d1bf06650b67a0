package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/council-runtime/council/pkg/llm"
)

// maxHistoryMessages bounds the rolling conversation history kept per agent.
// Older exchanges fall off; the system prompt is re-injected on every call.
const maxHistoryMessages = 40

// BaseAgent is the LLM-backed implementation shared by all built-in roles.
// It keeps a bounded rolling history so repeated calls stay in context
// without growing without limit.
type BaseAgent struct {
	profile Profile
	client  llm.Client

	mu      sync.Mutex
	history []llm.Message
}

// New creates an agent with the given profile bound to an LLM client.
func New(profile Profile, client llm.Client) *BaseAgent {
	return &BaseAgent{profile: profile, client: client}
}

// Profile implements Agent.
func (a *BaseAgent) Profile() Profile {
	return a.profile
}

// messagesFor builds the call message list: system prompt, rolling history,
// then the new user content. The returned slice is freshly allocated so the
// LLM client can never see shared state.
func (a *BaseAgent) messagesFor(userContent string) []llm.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	msgs := make([]llm.Message, 0, len(a.history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: a.profile.SystemPrompt})
	msgs = append(msgs, a.history...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: userContent})
	return msgs
}

// remember appends an exchange to the rolling history, trimming the oldest
// messages beyond the limit.
func (a *BaseAgent) remember(userContent, assistantContent string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history,
		llm.Message{Role: llm.RoleUser, Content: userContent},
		llm.Message{Role: llm.RoleAssistant, Content: assistantContent},
	)
	if len(a.history) > maxHistoryMessages {
		a.history = a.history[len(a.history)-maxHistoryMessages:]
	}
}

// Think implements Agent.
func (a *BaseAgent) Think(ctx context.Context, task string, extraContext string) (string, error) {
	prompt := task
	if extraContext != "" {
		prompt = task + "\n\nContext:\n" + extraContext
	}
	out, err := a.client.Completion(ctx, a.messagesFor(prompt), a.options(false))
	if err != nil {
		return "", fmt.Errorf("agent %s: think: %w", a.profile.Name, err)
	}
	a.remember(prompt, out)
	return out, nil
}

// ThinkStructured implements Agent.
func (a *BaseAgent) ThinkStructured(ctx context.Context, task string, extraContext string) (*ThinkResult, error) {
	prompt := structuredThinkPrompt(task, extraContext)
	var result ThinkResult
	if err := a.client.StructuredCompletion(ctx, a.messagesFor(prompt), &result, a.options(true)); err != nil {
		return nil, fmt.Errorf("agent %s: think structured: %w", a.profile.Name, err)
	}
	a.remember(prompt, result.Analysis)
	return &result, nil
}

// Vote implements Agent. The response's first line is expected to carry the
// decision word; conversion to the enum happens at the call site.
func (a *BaseAgent) Vote(ctx context.Context, proposal string) (string, error) {
	prompt := "Vote on this proposal. Answer with one of: approve, approve_with_changes, reject, hold. " +
		"Then a short justification on the next line.\n\nProposal:\n" + proposal
	out, err := a.client.Completion(ctx, a.messagesFor(prompt), a.options(false))
	if err != nil {
		return "", fmt.Errorf("agent %s: vote: %w", a.profile.Name, err)
	}
	first := out
	if idx := strings.IndexByte(out, '\n'); idx >= 0 {
		first = out[:idx]
	}
	return strings.TrimSpace(first), nil
}

// VoteStructured implements Agent.
func (a *BaseAgent) VoteStructured(ctx context.Context, proposal string, extraContext string) (*MinimalVote, error) {
	prompt := structuredVotePrompt(proposal, extraContext)
	var vote MinimalVote
	if err := a.client.StructuredCompletion(ctx, a.messagesFor(prompt), &vote, a.options(true)); err != nil {
		return nil, fmt.Errorf("agent %s: vote structured: %w", a.profile.Name, err)
	}
	vote.Normalize()
	return &vote, nil
}

// Execute implements Agent.
func (a *BaseAgent) Execute(ctx context.Context, task string, plan string) (*ExecuteResult, error) {
	prompt := structuredExecutePrompt(task, plan)
	var result ExecuteResult
	if err := a.client.StructuredCompletion(ctx, a.messagesFor(prompt), &result, a.options(true)); err != nil {
		return nil, fmt.Errorf("agent %s: execute: %w", a.profile.Name, err)
	}
	a.remember(prompt, result.Output)
	return &result, nil
}

func (a *BaseAgent) options(jsonMode bool) llm.Options {
	return llm.Options{Model: a.profile.Model, JSONMode: jsonMode}
}

// Explicit example builders per schema, registered next to the schema
// definitions, replace any reflection-based example generation.

func structuredThinkPrompt(task, extraContext string) string {
	var b strings.Builder
	b.WriteString("Analyze the task and respond with JSON only, shaped like:\n")
	b.WriteString(`{"analysis": "...", "suggestions": ["step 1", "step 2"], "concerns": ["..."], "confidence": 0.8}`)
	b.WriteString("\n\nTask:\n")
	b.WriteString(task)
	if extraContext != "" {
		b.WriteString("\n\nContext:\n")
		b.WriteString(extraContext)
	}
	return b.String()
}

func structuredVotePrompt(proposal, extraContext string) string {
	var b strings.Builder
	b.WriteString("Vote on the proposal. Respond with JSON only, shaped like:\n")
	b.WriteString(`{"vote": 1, "confidence": 0.85, "risks": ["sec"], "blocking_reason": ""}`)
	b.WriteString("\nvote codes: 0=reject, 1=approve, 2=approve_with_changes, 3=hold. ")
	b.WriteString("risks from: sec, perf, maint, arch, data, none.\n\nProposal:\n")
	b.WriteString(proposal)
	if extraContext != "" {
		b.WriteString("\n\nContext:\n")
		b.WriteString(extraContext)
	}
	return b.String()
}

func structuredExecutePrompt(task, plan string) string {
	var b strings.Builder
	b.WriteString("Execute the subtask and respond with JSON only, shaped like:\n")
	b.WriteString(`{"success": true, "output": "what was produced", "error": ""}`)
	b.WriteString("\n\nSubtask:\n")
	b.WriteString(task)
	if plan != "" {
		b.WriteString("\n\nPlan context:\n")
		b.WriteString(plan)
	}
	return b.String()
}
