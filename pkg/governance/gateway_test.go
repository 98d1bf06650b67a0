package governance

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/council-runtime/council/pkg/consensus"
)

func TestCheckSafety(t *testing.T) {
	g := NewGateway()

	tests := []struct {
		name       string
		actionType string
		content    string
		paths      []string
		wantLevel  RiskLevel
		wantHITL   bool
	}{
		{"benign edit", "file_modify", "add a test", []string{"pkg/a/a.go"}, RiskLow, false},
		{"critical content", "file_modify", "rm -rf /data", nil, RiskCritical, true},
		{"critical action type", "deploy", "roll it out", nil, RiskCritical, true},
		{"sensitive path", "file_modify", "rotate key", []string{"secrets/api.key"}, RiskHigh, true},
		{"medium stays safe", "config_change", "bump timeout", nil, RiskMedium, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := g.CheckSafety(tt.actionType, tt.content, tt.paths)
			assert.Equal(t, tt.wantLevel, check.RiskLevel)
			assert.Equal(t, tt.wantHITL, check.RequiresHITL)
			assert.Equal(t, !tt.wantHITL, check.Safe)
			assert.NotEmpty(t, check.Reason)
		})
	}
}

func TestCheckSafetyConfiguredSensitivePaths(t *testing.T) {
	g := NewGatewayWithConfig(GatewayConfig{
		SensitivePaths: []string{"infra/**", "*.tfstate"},
	})

	check := g.CheckSafety("file_modify", "tweak replica count", []string{"infra/prod/main.tf"})
	assert.Equal(t, RiskHigh, check.RiskLevel)
	assert.True(t, check.RequiresHITL)
	assert.Contains(t, check.Reason, "infra/prod/main.tf")

	check = g.CheckSafety("file_modify", "tweak replica count", []string{"pkg/a/a.go"})
	assert.Equal(t, RiskLow, check.RiskLevel)
}

func TestGatewayConfiguredFailureThreshold(t *testing.T) {
	g := NewGatewayWithConfig(GatewayConfig{FailureThreshold: 1})
	g.Breaker().RecordFailure("coder")
	assert.True(t, g.Breaker().IsOpen("coder"))
}

func TestRequiresApproval(t *testing.T) {
	g := NewGateway()
	assert.True(t, g.RequiresApproval("deploy", nil, ""))
	assert.False(t, g.RequiresApproval("file_modify", nil, "small refactor"))
}

func TestRequestIDFormat(t *testing.T) {
	g := NewGateway()
	req1 := g.CreateApprovalRequest("deploy", "ship v2", "", "orchestrator", nil, "")
	req2 := g.CreateDecisionRequest("deploy", "ship v2", "", "orchestrator", RiskCritical)

	pattern := regexp.MustCompile(`^REQ-\d{8}-\d{4}$`)
	assert.Regexp(t, pattern, req1.RequestID)
	assert.Regexp(t, pattern, req2.RequestID)
	assert.NotEqual(t, req1.RequestID, req2.RequestID)
}

func TestApproveMovesRequestToLog(t *testing.T) {
	g := NewGateway()
	req := g.CreateApprovalRequest("deploy", "ship v2", "tested", "orchestrator", []string{"deploy/app.yaml"}, "")
	require.Len(t, g.PendingRequests(), 1)

	require.NoError(t, g.Approve(req.RequestID, "alice"))

	assert.Empty(t, g.PendingRequests())
	log := g.ApprovalLog()
	require.Len(t, log, 1)
	require.NotNil(t, log[0].Approved)
	assert.True(t, *log[0].Approved)
	assert.Equal(t, "alice", log[0].Approver)
	assert.NotNil(t, log[0].ApprovedAt)
}

func TestRejectRecordsReason(t *testing.T) {
	g := NewGateway()
	req := g.CreateDecisionRequest("deploy", "ship v2", "", "orchestrator", RiskCritical)

	require.NoError(t, g.Reject(req.RequestID, "bob", "not during freeze"))

	log := g.ApprovalLog()
	require.Len(t, log, 1)
	require.NotNil(t, log[0].Approved)
	assert.False(t, *log[0].Approved)
	assert.Equal(t, "not during freeze", log[0].Reason)
}

func TestResolveUnknownRequest(t *testing.T) {
	g := NewGateway()
	assert.ErrorIs(t, g.Approve("REQ-20260101-9999", "alice"), ErrRequestNotFound)
}

func TestAutoApproveWithCouncil(t *testing.T) {
	tests := []struct {
		name     string
		decision consensus.Decision
		risk     RiskLevel
		want     bool
	}{
		{"auto commit below critical", consensus.DecisionAutoCommit, RiskHigh, true},
		{"auto commit at critical", consensus.DecisionAutoCommit, RiskCritical, false},
		{"hold never auto-approves", consensus.DecisionHoldForHuman, RiskLow, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGateway()
			req := g.CreateDecisionRequest("migrate", "run migration", "", "orchestrator", tt.risk)

			got := g.AutoApproveWithCouncil(req, tt.decision)
			assert.Equal(t, tt.want, got)
			if tt.want {
				assert.Empty(t, g.PendingRequests())
				assert.Equal(t, string(consensus.DecisionAutoCommit), req.CouncilDecision)
			} else {
				assert.Len(t, g.PendingRequests(), 1)
			}
		})
	}
}

func TestWaitForApprovalWithoutCallback(t *testing.T) {
	g := NewGateway()
	req := g.CreateDecisionRequest("deploy", "ship v2", "", "orchestrator", RiskCritical)

	approved, err := g.WaitForApproval(context.Background(), req, time.Second)
	require.NoError(t, err)
	assert.False(t, approved)
	// The request stays queued for out-of-band resolution.
	assert.Len(t, g.PendingRequests(), 1)
}

func TestWaitForApprovalDelegatesToCallback(t *testing.T) {
	g := NewGateway()
	g.SetApprovalCallback(func(ctx context.Context, request *ApprovalRequest) (bool, error) {
		return true, nil
	})
	req := g.CreateDecisionRequest("deploy", "ship v2", "", "orchestrator", RiskCritical)

	approved, err := g.WaitForApproval(context.Background(), req, time.Second)
	require.NoError(t, err)
	assert.True(t, approved)
}

func TestWaitForApprovalCallbackError(t *testing.T) {
	g := NewGateway()
	g.SetApprovalCallback(func(ctx context.Context, request *ApprovalRequest) (bool, error) {
		return false, context.DeadlineExceeded
	})
	req := g.CreateDecisionRequest("deploy", "ship v2", "", "orchestrator", RiskCritical)

	approved, err := g.WaitForApproval(context.Background(), req, time.Millisecond)
	assert.False(t, approved)
	assert.Error(t, err)
}

func TestInterruptAndResume(t *testing.T) {
	g := NewGateway()

	herr := g.Interrupt("deploy to production", map[string]any{"step": 3})
	require.NotNil(t, herr.Record)
	assert.Equal(t, InterruptPending, herr.Record.Status)
	assert.NotEmpty(t, herr.Record.RequestID)

	// The orchestrator matches the typed error out of a wrapped chain.
	wrapped := errors.Join(errors.New("state coding"), herr)
	var hi *HumanInterrupt
	require.True(t, errors.As(wrapped, &hi))
	assert.Equal(t, herr.Record.ID, hi.Record.ID)

	record, err := g.Resume(hi.Record.ID, true, "alice", "looks good", map[string]any{"note": "go"})
	require.NoError(t, err)
	assert.Equal(t, InterruptApproved, record.Status)
	assert.Equal(t, "alice", record.Approver)

	got, ok := g.GetInterrupt(hi.Record.ID)
	require.True(t, ok)
	assert.Equal(t, InterruptApproved, got.Status)

	// The backing approval request moved to the log.
	assert.Empty(t, g.PendingRequests())
	assert.Len(t, g.ApprovalLog(), 1)
}

func TestResumeRejected(t *testing.T) {
	g := NewGateway()
	herr := g.Interrupt("drop table", nil)

	record, err := g.Resume(herr.Record.ID, false, "bob", "too risky", nil)
	require.NoError(t, err)
	assert.Equal(t, InterruptRejected, record.Status)
}

func TestResumeUnknownInterrupt(t *testing.T) {
	g := NewGateway()
	_, err := g.Resume("missing", true, "alice", "", nil)
	assert.Error(t, err)
}

func TestCircuitBreaker(t *testing.T) {
	b := NewCircuitBreaker(2)

	assert.False(t, b.IsOpen("coder"))
	assert.Equal(t, 1, b.RecordFailure("coder"))
	assert.False(t, b.IsOpen("coder"))
	assert.Equal(t, 2, b.RecordFailure("coder"))
	assert.True(t, b.IsOpen("coder"))

	// Other agents are unaffected.
	assert.False(t, b.IsOpen("reviewer"))

	b.Reset("coder")
	assert.False(t, b.IsOpen("coder"))
	assert.Zero(t, b.Failures("coder"))
}

func TestCircuitBreakerDefaultThreshold(t *testing.T) {
	b := NewCircuitBreaker(0)
	for i := 0; i < DefaultFailureThreshold; i++ {
		b.RecordFailure("coder")
	}
	assert.True(t, b.IsOpen("coder"))
}
