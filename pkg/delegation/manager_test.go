package delegation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/council-runtime/council/pkg/agent"
	"github.com/council-runtime/council/pkg/llm"
	"github.com/council-runtime/council/pkg/registry"
)

func delegatingAgent(name string, allowed ...string) agent.Agent {
	return agent.New(agent.Profile{
		Name:            name,
		SystemPrompt:    "stub",
		AllowDelegation: true,
		AllowedAgents:   allowed,
	}, llm.NewStaticClient("ok"))
}

func targetAgent(name, response string) agent.Agent {
	return agent.New(agent.Profile{Name: name, SystemPrompt: "stub"}, llm.NewStaticClient(response))
}

func TestDelegateSuccess(t *testing.T) {
	reg := registry.New()
	from := delegatingAgent("architect")
	require.NoError(t, reg.Register(from))
	require.NoError(t, reg.Register(targetAgent("coder", `{"success": true, "output": "wrote the handler"}`)))

	m := NewManager(reg, 0)
	res, err := m.Delegate(context.Background(), "implement handler", from, "coder", "the plan")

	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "wrote the handler", res.Output)
	assert.Equal(t, "architect", res.From)
	assert.Equal(t, "coder", res.To)
	assert.Equal(t, 1, res.Depth)

	// Chain is popped after the call.
	assert.Equal(t, 0, m.ChainLen())
	assert.Len(t, m.History(), 1)
}

func TestDelegateSemanticFailure(t *testing.T) {
	reg := registry.New()
	from := delegatingAgent("architect")
	require.NoError(t, reg.Register(from))
	require.NoError(t, reg.Register(targetAgent("coder", `{"success": false, "output": "", "error": "cannot comply"}`)))

	m := NewManager(reg, 0)
	res, err := m.Delegate(context.Background(), "implement handler", from, "coder", "")

	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "cannot comply", res.Error)
	assert.Equal(t, 0, m.ChainLen())
}

func TestDelegateExecuteError(t *testing.T) {
	reg := registry.New()
	from := delegatingAgent("architect")
	require.NoError(t, reg.Register(from))

	client := llm.NewStaticClient()
	client.Err = errors.New("upstream down")
	require.NoError(t, reg.Register(agent.New(agent.Profile{Name: "coder", SystemPrompt: "stub"}, client)))

	m := NewManager(reg, 0)
	res, err := m.Delegate(context.Background(), "implement handler", from, "coder", "")

	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Error, "upstream down")
	assert.Equal(t, 0, m.ChainLen())
}

func TestDelegateNotAllowed(t *testing.T) {
	reg := registry.New()
	from := agent.New(agent.Profile{Name: "coder", SystemPrompt: "stub"}, llm.NewStaticClient("ok"))
	require.NoError(t, reg.Register(from))
	require.NoError(t, reg.Register(targetAgent("reviewer", "ok")))

	m := NewManager(reg, 0)
	res, err := m.Delegate(context.Background(), "review this", from, "reviewer", "")

	assert.ErrorIs(t, err, ErrNotAllowed)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, 0, m.ChainLen())
}

func TestDelegateAllowListEnforced(t *testing.T) {
	reg := registry.New()
	from := delegatingAgent("architect", "reviewer")
	require.NoError(t, reg.Register(from))
	require.NoError(t, reg.Register(targetAgent("coder", "ok")))

	m := NewManager(reg, 0)
	_, err := m.Delegate(context.Background(), "task", from, "coder", "")
	assert.ErrorIs(t, err, ErrNotAllowed)
}

func TestDelegateDepthLimit(t *testing.T) {
	reg := registry.New()
	from := delegatingAgent("architect")
	require.NoError(t, reg.Register(from))
	require.NoError(t, reg.Register(targetAgent("coder", `{"success": true, "output": "done"}`)))

	m := NewManager(reg, 1)
	m.chain = []string{"root"} // simulate an in-flight delegation

	res, err := m.Delegate(context.Background(), "task", from, "coder", "")

	assert.ErrorIs(t, err, ErrMaxDepthExceeded)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, []string{"root"}, m.Chain())
}

func TestDelegateProfileDepthLowersLimit(t *testing.T) {
	reg := registry.New()
	from := agent.New(agent.Profile{
		Name:               "architect",
		SystemPrompt:       "stub",
		AllowDelegation:    true,
		MaxDelegationDepth: 1,
	}, llm.NewStaticClient("ok"))
	require.NoError(t, reg.Register(from))
	require.NoError(t, reg.Register(targetAgent("coder", `{"success": true, "output": "done"}`)))

	m := NewManager(reg, 5)
	m.chain = []string{"root"}

	_, err := m.Delegate(context.Background(), "task", from, "coder", "")
	assert.ErrorIs(t, err, ErrMaxDepthExceeded)
}

func TestDelegateCycle(t *testing.T) {
	reg := registry.New()
	from := delegatingAgent("architect")
	require.NoError(t, reg.Register(from))
	require.NoError(t, reg.Register(targetAgent("coder", `{"success": true, "output": "done"}`)))

	m := NewManager(reg, 5)
	m.chain = []string{"orchestrator", "coder"}

	res, err := m.Delegate(context.Background(), "task", from, "coder", "")

	assert.ErrorIs(t, err, ErrCycle)
	assert.Equal(t, StatusRejected, res.Status)
	// Chain is unchanged after a refused delegation.
	assert.Equal(t, []string{"orchestrator", "coder"}, m.Chain())
}

func TestDelegateUnregisteredTarget(t *testing.T) {
	reg := registry.New()
	from := delegatingAgent("architect")
	require.NoError(t, reg.Register(from))

	m := NewManager(reg, 0)
	_, err := m.Delegate(context.Background(), "task", from, "ghost", "")
	assert.ErrorIs(t, err, ErrNotAllowed)
}
