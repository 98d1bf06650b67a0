package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/council-runtime/council/pkg/llm"
)

func testProfile() Profile {
	return Profile{Name: "tester", SystemPrompt: "you test things", Model: "test-model"}
}

func TestBaseAgentThink(t *testing.T) {
	client := llm.NewStaticClient("looks fine to me")
	a := New(testProfile(), client)

	out, err := a.Think(context.Background(), "review this", "extra context")
	require.NoError(t, err)
	assert.Equal(t, "looks fine to me", out)

	// System prompt leads every call.
	require.NotEmpty(t, client.Calls)
	assert.Equal(t, llm.RoleSystem, client.Calls[0][0].Role)
	assert.Equal(t, "you test things", client.Calls[0][0].Content)
}

func TestBaseAgentThinkKeepsHistory(t *testing.T) {
	client := llm.NewStaticClient("first", "second")
	a := New(testProfile(), client)

	_, err := a.Think(context.Background(), "task one", "")
	require.NoError(t, err)
	_, err = a.Think(context.Background(), "task two", "")
	require.NoError(t, err)

	// Second call carries the first exchange: system + user + assistant + user.
	require.Len(t, client.Calls, 2)
	assert.Len(t, client.Calls[1], 4)
	assert.Equal(t, "first", client.Calls[1][2].Content)
}

func TestBaseAgentThinkStructured(t *testing.T) {
	client := llm.NewStaticClient(`{"analysis": "simple task", "suggestions": ["do a", "do b"], "concerns": ["risky"], "confidence": 0.8}`)
	a := New(testProfile(), client)

	result, err := a.ThinkStructured(context.Background(), "plan it", "")
	require.NoError(t, err)
	assert.Equal(t, "simple task", result.Analysis)
	assert.Equal(t, []string{"do a", "do b"}, result.Suggestions)
	assert.Equal(t, []string{"risky"}, result.Concerns)
	assert.Equal(t, 0.8, result.Confidence)
}

func TestBaseAgentThinkStructuredFencedJSON(t *testing.T) {
	client := llm.NewStaticClient("```json\n{\"analysis\": \"ok\", \"confidence\": 0.5}\n```")
	a := New(testProfile(), client)

	result, err := a.ThinkStructured(context.Background(), "plan it", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Analysis)
}

func TestBaseAgentVote(t *testing.T) {
	client := llm.NewStaticClient("approve\nbecause it is good")
	a := New(testProfile(), client)

	out, err := a.Vote(context.Background(), "merge the change")
	require.NoError(t, err)
	assert.Equal(t, "approve", out)
}

func TestBaseAgentVoteStructuredNormalizes(t *testing.T) {
	client := llm.NewStaticClient(`{"vote": 1, "confidence": 1.9, "risks": ["sec", "bogus"]}`)
	a := New(testProfile(), client)

	vote, err := a.VoteStructured(context.Background(), "proposal", "")
	require.NoError(t, err)
	assert.Equal(t, DecisionApprove, vote.Vote)
	assert.Equal(t, 1.0, vote.Confidence)
	assert.Equal(t, []RiskCategory{RiskSecurity}, vote.Risks)
}

func TestBaseAgentExecute(t *testing.T) {
	tests := []struct {
		name     string
		response string
		success  bool
	}{
		{"success", `{"success": true, "output": "created file"}`, true},
		{"semantic failure", `{"success": false, "output": "", "error": "cannot comply"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(testProfile(), llm.NewStaticClient(tt.response))
			result, err := a.Execute(context.Background(), "do it", "the plan")
			require.NoError(t, err)
			assert.Equal(t, tt.success, result.Success)
		})
	}
}

func TestBaseAgentClientErrorSurfaces(t *testing.T) {
	client := llm.NewStaticClient()
	client.Err = errors.New("upstream down")
	a := New(testProfile(), client)

	_, err := a.Think(context.Background(), "task", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tester")

	_, err = a.VoteStructured(context.Background(), "proposal", "")
	require.Error(t, err)
}
