// Package consensus converts weighted agent votes into commit decisions.
// The Wald engine runs a sequential probability ratio test over structured
// votes; the shadow facilitator (shadow.go) adds two-tier speculative
// voting on top of it.
package consensus

import (
	"fmt"
	"math"

	"github.com/council-runtime/council/pkg/agent"
	"github.com/council-runtime/council/pkg/observability"
)

// Decision is the terminal outcome of a consensus evaluation.
type Decision string

const (
	DecisionAutoCommit   Decision = "AUTO_COMMIT"
	DecisionHoldForHuman Decision = "HOLD_FOR_HUMAN"
	DecisionReject       Decision = "REJECT"
)

// WaldConfig parameterises the sequential probability ratio test.
type WaldConfig struct {
	// UpperLimit is the posterior above which the proposal auto-commits.
	UpperLimit float64
	// LowerLimit is the posterior below which the proposal is rejected.
	LowerLimit float64
	// PriorApprove is the prior belief that the approve hypothesis holds.
	PriorApprove float64
}

// DefaultWaldConfig returns the standard thresholds.
func DefaultWaldConfig() WaldConfig {
	return WaldConfig{UpperLimit: 0.95, LowerLimit: 0.30, PriorApprove: 0.70}
}

// Validate checks 0 < lower < upper < 1 and 0 < prior < 1.
func (c WaldConfig) Validate() error {
	if !(c.LowerLimit > 0 && c.LowerLimit < c.UpperLimit && c.UpperLimit < 1) {
		return fmt.Errorf("consensus: limits must satisfy 0 < lower (%v) < upper (%v) < 1", c.LowerLimit, c.UpperLimit)
	}
	if !(c.PriorApprove > 0 && c.PriorApprove < 1) {
		return fmt.Errorf("consensus: prior %v must be in (0,1)", c.PriorApprove)
	}
	return nil
}

// Result is the outcome of one Wald evaluation.
type Result struct {
	Decision        Decision       `json:"decision"`
	PiApprove       float64        `json:"pi_approve"`
	PiReject        float64        `json:"pi_reject"`
	LikelihoodRatio float64        `json:"likelihood_ratio"`
	VotesSummary    map[string]int `json:"votes_summary"`
	Reason          string         `json:"reason"`
	Iteration       int            `json:"iteration"`
}

// Wald runs the sequential probability ratio test over structured votes.
type Wald struct {
	config WaldConfig
}

// NewWald creates an engine with cfg. Invalid configs are rejected.
func NewWald(cfg WaldConfig) (*Wald, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Wald{config: cfg}, nil
}

// likelihoodFloor bounds each conditional likelihood away from zero so the
// ratio never hits a singularity.
const likelihoodFloor = 0.01

// Evaluate accumulates the log-likelihood ratio over votes and maps the
// posterior onto a decision. Empty votes yield HOLD_FOR_HUMAN with an
// uninformative 0.5 posterior.
func (w *Wald) Evaluate(votes []agent.MinimalVote) Result {
	if len(votes) == 0 {
		return w.finish(Result{
			Decision:        DecisionHoldForHuman,
			PiApprove:       0.5,
			PiReject:        0.5,
			LikelihoodRatio: 1,
			VotesSummary:    map[string]int{},
			Reason:          "no votes",
		})
	}

	summary := make(map[string]int)
	logRatio := 0.0
	for _, v := range votes {
		v.Normalize()
		summary[v.Vote.String()]++

		c := v.Confidence
		var pApprove, pReject float64
		if v.Vote.IsApproval() {
			pApprove = math.Max(c, likelihoodFloor)
			pReject = math.Max(1-c, likelihoodFloor)
		} else {
			pApprove = math.Max(1-c, likelihoodFloor)
			pReject = math.Max(c, likelihoodFloor)
		}
		logRatio += math.Log(pApprove / pReject)
	}

	ratio := math.Exp(logRatio)
	piApprove := posterior(w.config.PriorApprove, ratio)

	result := Result{
		PiApprove:       piApprove,
		PiReject:        1 - piApprove,
		LikelihoodRatio: ratio,
		VotesSummary:    summary,
	}
	switch {
	case piApprove >= w.config.UpperLimit:
		result.Decision = DecisionAutoCommit
		result.Reason = fmt.Sprintf("posterior %.4f reached upper limit %.2f", piApprove, w.config.UpperLimit)
	case piApprove <= w.config.LowerLimit:
		result.Decision = DecisionReject
		result.Reason = fmt.Sprintf("posterior %.4f fell below lower limit %.2f", piApprove, w.config.LowerLimit)
	default:
		result.Decision = DecisionHoldForHuman
		result.Reason = fmt.Sprintf("posterior %.4f between limits, needs a human", piApprove)
	}
	return w.finish(result)
}

func (w *Wald) finish(r Result) Result {
	observability.ConsensusDecisions.WithLabelValues(string(r.Decision)).Inc()
	return r
}

// posterior computes prior·ratio / (prior·ratio + (1−prior)) with overflow
// guards: an infinite ratio saturates at 1, a zero ratio at 0.
func posterior(prior, ratio float64) float64 {
	if math.IsInf(ratio, 1) {
		return 1
	}
	num := prior * ratio
	den := num + (1 - prior)
	if math.IsInf(num, 1) || den == 0 {
		return 1
	}
	return num / den
}

// ShouldContinue reports whether another voting round is worthwhile:
// false once the decision is terminal or the iteration budget is spent.
func (w *Wald) ShouldContinue(result Result, maxIterations int) bool {
	if result.Decision == DecisionAutoCommit || result.Decision == DecisionReject {
		return false
	}
	return result.Iteration < maxIterations
}

// decisionCategories is the number of vote categories entropy normalises
// over (reject, approve, approve_with_changes, hold).
const decisionCategories = 4

// SemanticEntropy returns the Shannon entropy of the vote decision
// distribution, normalised to [0,1] by log2(4). Empty input returns 1.0
// (maximum uncertainty).
func SemanticEntropy(votes []agent.MinimalVote) float64 {
	if len(votes) == 0 {
		return 1.0
	}
	counts := make(map[agent.Decision]int)
	for _, v := range votes {
		counts[v.Vote]++
	}
	entropy := 0.0
	total := float64(len(votes))
	for _, n := range counts {
		p := float64(n) / total
		entropy -= p * math.Log2(p)
	}
	return entropy / math.Log2(decisionCategories)
}
