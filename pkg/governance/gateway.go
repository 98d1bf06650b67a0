package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/council-runtime/council/pkg/consensus"
)

// RequestKind distinguishes action approvals from decision approvals.
type RequestKind string

const (
	KindAction   RequestKind = "ACTION"
	KindDecision RequestKind = "DECISION"
)

// ErrRequestNotFound is returned for unknown request IDs.
var ErrRequestNotFound = errors.New("governance: approval request not found")

// ApprovalRequest is one pending (or logged) human approval.
type ApprovalRequest struct {
	RequestID         string      `json:"request_id"`
	Kind              RequestKind `json:"kind"`
	ActionType        string      `json:"action_type,omitempty"`
	DecisionType      string      `json:"decision_type,omitempty"`
	RiskLevel         RiskLevel   `json:"risk_level"`
	Description       string      `json:"description"`
	AffectedResources []string    `json:"affected_resources,omitempty"`
	Rationale         string      `json:"rationale,omitempty"`
	CouncilDecision   string      `json:"council_decision,omitempty"`
	Requestor         string      `json:"requestor"`
	CreatedAt         time.Time   `json:"created_at"`

	Approved   *bool      `json:"approved,omitempty"`
	Approver   string     `json:"approver,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// SafetyCheck is the result of a combined risk classification.
type SafetyCheck struct {
	Safe         bool      `json:"safe"`
	RiskLevel    RiskLevel `json:"risk_level"`
	RequiresHITL bool      `json:"requires_hitl"`
	Reason       string    `json:"reason"`
}

// ApprovalCallback is invoked by WaitForApproval when registered. It should
// block until a decision is made or the context expires.
type ApprovalCallback func(ctx context.Context, request *ApprovalRequest) (bool, error)

// Gateway classifies risk, queues approval requests, and trips circuit
// breakers on repeatedly failing agents.
type Gateway struct {
	mu              sync.Mutex
	pendingRequests map[string]*ApprovalRequest
	approvalLog     []*ApprovalRequest
	sequence        int
	callback        ApprovalCallback
	interrupts      map[string]*InterruptRecord
	extraSensitive  []string

	breaker *CircuitBreaker
}

// GatewayConfig tunes a gateway beyond its defaults. Zero values keep the
// built-in failure threshold and path patterns.
type GatewayConfig struct {
	FailureThreshold int
	SensitivePaths   []string
}

// NewGateway creates a gateway with an empty approval queue and defaults.
func NewGateway() *Gateway {
	return NewGatewayWithConfig(GatewayConfig{})
}

// NewGatewayWithConfig creates a gateway with the given tuning applied.
func NewGatewayWithConfig(cfg GatewayConfig) *Gateway {
	return &Gateway{
		pendingRequests: make(map[string]*ApprovalRequest),
		interrupts:      make(map[string]*InterruptRecord),
		extraSensitive:  append([]string(nil), cfg.SensitivePaths...),
		breaker:         NewCircuitBreaker(cfg.FailureThreshold),
	}
}

// SetApprovalCallback registers the callback WaitForApproval delegates to.
func (g *Gateway) SetApprovalCallback(cb ApprovalCallback) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callback = cb
}

// Breaker exposes the gateway's circuit breaker.
func (g *Gateway) Breaker() *CircuitBreaker {
	return g.breaker
}

// CheckSafety classifies an action across the content, action-type and path
// channels. The effective risk is the max of the three; HIGH or CRITICAL
// requires a human in the loop.
func (g *Gateway) CheckSafety(actionType string, content string, paths []string) SafetyCheck {
	contentLevel, contentLabel := ClassifyContent(content)
	actionLevel := ClassifyAction(actionType)
	pathLevel, sensitivePath := ClassifyPaths(paths)
	if pathLevel < RiskHigh {
		for _, p := range paths {
			for _, pattern := range g.extraSensitive {
				if matchPath(pattern, p) {
					pathLevel, sensitivePath = RiskHigh, p
					break
				}
			}
		}
	}

	effective := maxRisk(contentLevel, actionLevel, pathLevel)
	check := SafetyCheck{
		RiskLevel:    effective,
		RequiresHITL: effective >= RiskHigh,
		Safe:         effective < RiskHigh,
	}
	switch {
	case contentLevel == effective && contentLabel != "":
		check.Reason = fmt.Sprintf("content matched: %s", contentLabel)
	case pathLevel == effective && sensitivePath != "":
		check.Reason = fmt.Sprintf("sensitive path: %s", sensitivePath)
	default:
		check.Reason = fmt.Sprintf("action type %q baseline", actionType)
	}
	return check
}

// RequiresApproval reports whether the combined risk is HIGH or CRITICAL.
func (g *Gateway) RequiresApproval(actionType string, paths []string, content string) bool {
	return g.CheckSafety(actionType, content, paths).RequiresHITL
}

// nextRequestID stamps IDs like REQ-YYYYMMDD-NNNN, monotonically increasing
// per gateway instance. Caller holds g.mu.
func (g *Gateway) nextRequestID() string {
	g.sequence++
	return fmt.Sprintf("REQ-%s-%04d", time.Now().UTC().Format("20060102"), g.sequence)
}

// CreateApprovalRequest queues an action approval and returns it.
func (g *Gateway) CreateApprovalRequest(actionType, description, rationale, requestor string, resources []string, content string) *ApprovalRequest {
	check := g.CheckSafety(actionType, content, resources)

	g.mu.Lock()
	defer g.mu.Unlock()
	req := &ApprovalRequest{
		RequestID:         g.nextRequestID(),
		Kind:              KindAction,
		ActionType:        actionType,
		RiskLevel:         check.RiskLevel,
		Description:       description,
		AffectedResources: append([]string(nil), resources...),
		Rationale:         rationale,
		Requestor:         requestor,
		CreatedAt:         time.Now().UTC(),
	}
	g.pendingRequests[req.RequestID] = req
	slog.Info("Approval request created",
		"request_id", req.RequestID, "action_type", actionType, "risk", check.RiskLevel.String())
	return req
}

// CreateDecisionRequest queues a decision approval and returns it.
func (g *Gateway) CreateDecisionRequest(decisionType, description, rationale, requestor string, risk RiskLevel) *ApprovalRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	req := &ApprovalRequest{
		RequestID:    g.nextRequestID(),
		Kind:         KindDecision,
		DecisionType: decisionType,
		RiskLevel:    risk,
		Description:  description,
		Rationale:    rationale,
		Requestor:    requestor,
		CreatedAt:    time.Now().UTC(),
	}
	g.pendingRequests[req.RequestID] = req
	slog.Info("Decision request created",
		"request_id", req.RequestID, "decision_type", decisionType, "risk", risk.String())
	return req
}

// Approve resolves a pending request positively and moves it to the log.
func (g *Gateway) Approve(requestID, approver string) error {
	return g.resolve(requestID, approver, true, "")
}

// Reject resolves a pending request negatively and moves it to the log.
func (g *Gateway) Reject(requestID, approver, reason string) error {
	return g.resolve(requestID, approver, false, reason)
}

func (g *Gateway) resolve(requestID, approver string, approved bool, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.pendingRequests[requestID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}
	delete(g.pendingRequests, requestID)

	now := time.Now().UTC()
	req.Approved = &approved
	req.Approver = approver
	req.ApprovedAt = &now
	req.Reason = reason
	g.approvalLog = append(g.approvalLog, req)
	slog.Info("Approval request resolved",
		"request_id", requestID, "approved", approved, "approver", approver)
	return nil
}

// AutoApproveWithCouncil short-circuits a request to approved when the
// council consensus is AUTO_COMMIT and the risk is below CRITICAL.
func (g *Gateway) AutoApproveWithCouncil(request *ApprovalRequest, decision consensus.Decision) bool {
	if decision != consensus.DecisionAutoCommit || request.RiskLevel >= RiskCritical {
		return false
	}
	g.mu.Lock()
	request.CouncilDecision = string(decision)
	g.mu.Unlock()
	if err := g.resolve(request.RequestID, "council", true, "auto-approved by council consensus"); err != nil {
		return false
	}
	return true
}

// WaitForApproval blocks for a decision on request. With a registered
// callback the wait is delegated to it; otherwise the request is printed
// and false is returned so the caller can poll the pending queue.
func (g *Gateway) WaitForApproval(ctx context.Context, request *ApprovalRequest, timeout time.Duration) (bool, error) {
	g.mu.Lock()
	cb := g.callback
	g.mu.Unlock()

	if cb == nil {
		slog.Warn("No approval callback registered, request stays pending",
			"request_id", request.RequestID, "description", request.Description)
		return false, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	approved, err := cb(waitCtx, request)
	if err != nil {
		// Timeout or failure leaves the request pending; callers treat
		// this like an explicit HOLD.
		return false, err
	}
	return approved, nil
}

// PendingRequests returns a copy of the pending queue.
func (g *Gateway) PendingRequests() []*ApprovalRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*ApprovalRequest, 0, len(g.pendingRequests))
	for _, req := range g.pendingRequests {
		out = append(out, req)
	}
	return out
}

// ApprovalLog returns a copy of the resolved request log, oldest first.
func (g *Gateway) ApprovalLog() []*ApprovalRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*ApprovalRequest(nil), g.approvalLog...)
}
