package agent

import (
	"fmt"
	"math"
	"strings"
)

// Decision is the integer-coded vote value used on the wire.
type Decision int

const (
	DecisionReject             Decision = 0
	DecisionApprove            Decision = 1
	DecisionApproveWithChanges Decision = 2
	DecisionHold               Decision = 3
)

// String returns the legacy string form of the decision.
func (d Decision) String() string {
	switch d {
	case DecisionReject:
		return "reject"
	case DecisionApprove:
		return "approve"
	case DecisionApproveWithChanges:
		return "approve_with_changes"
	case DecisionHold:
		return "hold"
	default:
		return fmt.Sprintf("unknown(%d)", int(d))
	}
}

// IsApproval reports whether the decision counts as approval for consensus.
func (d Decision) IsApproval() bool {
	return d == DecisionApprove || d == DecisionApproveWithChanges
}

// ParseDecision maps the legacy string form back to the enum. This is the
// single conversion point for callers that still pass string decisions.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reject", "rejected":
		return DecisionReject, nil
	case "approve", "approved":
		return DecisionApprove, nil
	case "approve_with_changes", "approve-with-changes":
		return DecisionApproveWithChanges, nil
	case "hold", "hold_for_human":
		return DecisionHold, nil
	default:
		return DecisionHold, fmt.Errorf("unknown decision %q", s)
	}
}

// RiskCategory is a closed tag describing why a vote is cautious.
type RiskCategory string

const (
	RiskSecurity        RiskCategory = "sec"
	RiskPerformance     RiskCategory = "perf"
	RiskMaintainability RiskCategory = "maint"
	RiskArchitecture    RiskCategory = "arch"
	RiskData            RiskCategory = "data"
	RiskNone            RiskCategory = "none"
)

var validRisks = map[RiskCategory]bool{
	RiskSecurity:        true,
	RiskPerformance:     true,
	RiskMaintainability: true,
	RiskArchitecture:    true,
	RiskData:            true,
	RiskNone:            true,
}

// IsValid reports whether r is a member of the closed tag set.
func (r RiskCategory) IsValid() bool {
	return validRisks[r]
}

// maxBlockingReasonLen bounds the free-text justification on the wire.
const maxBlockingReasonLen = 100

// MinimalVote is the structured vote an agent casts on a proposal.
type MinimalVote struct {
	Vote           Decision       `json:"vote"`
	Confidence     float64        `json:"confidence"`
	Risks          []RiskCategory `json:"risks,omitempty"`
	BlockingReason string         `json:"blocking_reason,omitempty"`
}

// Normalize clamps confidence to [0,1], rounds it to two decimals, drops
// unknown risk tags, and truncates the blocking reason to the wire limit.
func (v *MinimalVote) Normalize() {
	v.Confidence = math.Round(math.Min(math.Max(v.Confidence, 0), 1)*100) / 100
	filtered := v.Risks[:0]
	for _, r := range v.Risks {
		if r.IsValid() && r != RiskNone {
			filtered = append(filtered, r)
		}
	}
	v.Risks = filtered
	if len(v.BlockingReason) > maxBlockingReasonLen {
		v.BlockingReason = v.BlockingReason[:maxBlockingReasonLen]
	}
}

// HasRisk reports whether the vote carries the given risk tag.
func (v MinimalVote) HasRisk(risk RiskCategory) bool {
	for _, r := range v.Risks {
		if r == risk {
			return true
		}
	}
	return false
}

// HoldVote builds the fallback vote used when an agent fails to respond:
// a HOLD with low confidence and the failure as blocking reason.
func HoldVote(reason string) MinimalVote {
	v := MinimalVote{
		Vote:           DecisionHold,
		Confidence:     0.3,
		BlockingReason: reason,
	}
	v.Normalize()
	return v
}
