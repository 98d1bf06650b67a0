package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/council-runtime/council/pkg/agent"
)

func approve(conf float64) agent.MinimalVote {
	return agent.MinimalVote{Vote: agent.DecisionApprove, Confidence: conf}
}

func reject(conf float64) agent.MinimalVote {
	return agent.MinimalVote{Vote: agent.DecisionReject, Confidence: conf}
}

func TestWaldConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     WaldConfig
		wantErr bool
	}{
		{"defaults", DefaultWaldConfig(), false},
		{"lower above upper", WaldConfig{UpperLimit: 0.3, LowerLimit: 0.95, PriorApprove: 0.7}, true},
		{"upper at one", WaldConfig{UpperLimit: 1.0, LowerLimit: 0.3, PriorApprove: 0.7}, true},
		{"zero lower", WaldConfig{UpperLimit: 0.95, LowerLimit: 0, PriorApprove: 0.7}, true},
		{"prior at one", WaldConfig{UpperLimit: 0.95, LowerLimit: 0.3, PriorApprove: 1.0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNewWaldRejectsInvalidConfig(t *testing.T) {
	_, err := NewWald(WaldConfig{})
	require.Error(t, err)
}

func TestWaldEvaluateEmptyVotes(t *testing.T) {
	w, err := NewWald(DefaultWaldConfig())
	require.NoError(t, err)

	r := w.Evaluate(nil)
	assert.Equal(t, DecisionHoldForHuman, r.Decision)
	assert.Equal(t, 0.5, r.PiApprove)
	assert.Equal(t, 0.5, r.PiReject)
	assert.Equal(t, "no votes", r.Reason)
}

func TestWaldEvaluateUnanimousApprove(t *testing.T) {
	w, err := NewWald(DefaultWaldConfig())
	require.NoError(t, err)

	// Three 0.9-confidence approvals: ratio 9^3 = 729, posterior ~0.9994.
	r := w.Evaluate([]agent.MinimalVote{approve(0.9), approve(0.9), approve(0.9)})

	assert.Equal(t, DecisionAutoCommit, r.Decision)
	assert.InDelta(t, 0.9994, r.PiApprove, 0.001)
	assert.Equal(t, map[string]int{"approve": 3}, r.VotesSummary)
}

func TestWaldEvaluateUnanimousReject(t *testing.T) {
	w, err := NewWald(DefaultWaldConfig())
	require.NoError(t, err)

	r := w.Evaluate([]agent.MinimalVote{reject(0.9), reject(0.9), reject(0.9)})

	assert.Equal(t, DecisionReject, r.Decision)
	assert.InDelta(t, 0.0032, r.PiApprove, 0.001)
}

func TestWaldEvaluateSplitHolds(t *testing.T) {
	w, err := NewWald(DefaultWaldConfig())
	require.NoError(t, err)

	// Balanced evidence: ratio 1, posterior equals the prior.
	r := w.Evaluate([]agent.MinimalVote{approve(0.8), reject(0.8)})

	assert.Equal(t, DecisionHoldForHuman, r.Decision)
	assert.InDelta(t, 0.7, r.PiApprove, 1e-9)
}

func TestWaldEvaluateMixedLowConfidenceHolds(t *testing.T) {
	w, err := NewWald(DefaultWaldConfig())
	require.NoError(t, err)

	votes := []agent.MinimalVote{
		approve(0.60),
		{Vote: agent.DecisionHold, Confidence: 0.50},
		reject(0.55),
	}
	r := w.Evaluate(votes)

	assert.Equal(t, DecisionHoldForHuman, r.Decision)
	assert.Greater(t, r.PiApprove, 0.30)
	assert.Less(t, r.PiApprove, 0.95)
	assert.InDelta(t, 1.0, r.PiApprove+r.PiReject, 1e-9)
}

func TestWaldEvaluateApproveWithChangesCountsAsApproval(t *testing.T) {
	w, err := NewWald(DefaultWaldConfig())
	require.NoError(t, err)

	votes := []agent.MinimalVote{
		{Vote: agent.DecisionApproveWithChanges, Confidence: 0.9},
		approve(0.9),
		approve(0.9),
	}
	r := w.Evaluate(votes)
	assert.Equal(t, DecisionAutoCommit, r.Decision)
	assert.Equal(t, 1, r.VotesSummary["approve_with_changes"])
}

func TestWaldExtremeConfidenceStaysFinite(t *testing.T) {
	w, err := NewWald(DefaultWaldConfig())
	require.NoError(t, err)

	// Confidence 1.0 would divide by zero without the likelihood floor.
	r := w.Evaluate([]agent.MinimalVote{approve(1.0), approve(1.0)})
	assert.Equal(t, DecisionAutoCommit, r.Decision)
	assert.LessOrEqual(t, r.PiApprove, 1.0)
}

func TestShouldContinue(t *testing.T) {
	w, err := NewWald(DefaultWaldConfig())
	require.NoError(t, err)

	tests := []struct {
		name   string
		result Result
		max    int
		want   bool
	}{
		{"auto commit is terminal", Result{Decision: DecisionAutoCommit}, 5, false},
		{"reject is terminal", Result{Decision: DecisionReject}, 5, false},
		{"hold with budget", Result{Decision: DecisionHoldForHuman, Iteration: 1}, 5, true},
		{"hold budget spent", Result{Decision: DecisionHoldForHuman, Iteration: 5}, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.ShouldContinue(tt.result, tt.max))
		})
	}
}

func TestSemanticEntropy(t *testing.T) {
	tests := []struct {
		name  string
		votes []agent.MinimalVote
		want  float64
	}{
		{"empty is maximum uncertainty", nil, 1.0},
		{"unanimous is zero", []agent.MinimalVote{approve(0.9), approve(0.8)}, 0},
		{"even two-way split", []agent.MinimalVote{approve(0.9), reject(0.9)}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SemanticEntropy(tt.votes), 1e-9)
		})
	}
}
