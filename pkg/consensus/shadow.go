package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/council-runtime/council/pkg/agent"
	"github.com/council-runtime/council/pkg/observability"
)

// EscalationReason explains why a shadow deliberation escalated to the
// pro tier.
type EscalationReason string

const (
	EscalationDisagreement  EscalationReason = "DISAGREEMENT"
	EscalationCriticalRisk  EscalationReason = "CRITICAL_RISK"
	EscalationLowConfidence EscalationReason = "LOW_CONFIDENCE"
	EscalationTimeout       EscalationReason = "TIMEOUT"
)

// resolvedCostSaved is the cosmetic savings figure reported when the cheap
// tier resolves a proposal. It does not reflect per-request cost and must
// not drive scheduling decisions.
const resolvedCostSaved = 90.0

// ShadowResult is the outcome of a two-tier deliberation.
type ShadowResult struct {
	Resolved         bool                         `json:"resolved"`
	Decision         Decision                     `json:"decision"`
	EscalationReason EscalationReason             `json:"escalation_reason,omitempty"`
	ShadowVotes      map[string]agent.MinimalVote `json:"shadow_votes"`
	ProVotes         map[string]agent.MinimalVote `json:"pro_votes,omitempty"`
	Wald             *Result                      `json:"wald,omitempty"`
	CostSavedPercent float64                      `json:"cost_saved_percent"`
	Entropy          float64                      `json:"entropy"`
}

// ShadowConfig tunes the facilitator.
type ShadowConfig struct {
	// MinConfidence is the average shadow confidence required to resolve
	// without escalation.
	MinConfidence float64
	// VoteTimeout bounds each individual agent vote call.
	VoteTimeout time.Duration
}

// DefaultShadowConfig returns the standard facilitator settings.
func DefaultShadowConfig() ShadowConfig {
	return ShadowConfig{MinConfidence: 0.75, VoteTimeout: 60 * time.Second}
}

// ShadowFacilitator runs a cheap-tier quorum first and escalates to the
// expensive tier only on disagreement, risk, or low confidence.
type ShadowFacilitator struct {
	shadowAgents []agent.Agent
	proAgents    []agent.Agent
	wald         *Wald
	config       ShadowConfig

	mu            sync.Mutex
	deliberations int
	resolutions   int
}

// NewShadowFacilitator creates a facilitator over the two agent tiers.
func NewShadowFacilitator(shadowAgents, proAgents []agent.Agent, wald *Wald, cfg ShadowConfig) *ShadowFacilitator {
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = DefaultShadowConfig().MinConfidence
	}
	if cfg.VoteTimeout == 0 {
		cfg.VoteTimeout = DefaultShadowConfig().VoteTimeout
	}
	return &ShadowFacilitator{
		shadowAgents: shadowAgents,
		proAgents:    proAgents,
		wald:         wald,
		config:       cfg,
	}
}

// Deliberate collects shadow votes concurrently, applies the escalation
// rules, and on escalation combines shadow and pro votes through the Wald
// engine. A failed or timed-out agent vote counts as a low-confidence HOLD.
func (f *ShadowFacilitator) Deliberate(ctx context.Context, proposal string, extraContext string) *ShadowResult {
	shadowVotes := f.collectVotes(ctx, f.shadowAgents, proposal, extraContext)

	result := &ShadowResult{
		ShadowVotes: shadowVotes,
		Entropy:     SemanticEntropy(votesOf(shadowVotes)),
	}

	if reason, ok := f.escalationReason(shadowVotes); ok {
		result.EscalationReason = reason
		f.escalate(ctx, proposal, extraContext, result)
		f.record(false, string(reason))
		return result
	}

	// Cheap tier resolved: decision comes straight from the shadow votes.
	result.Resolved = true
	result.CostSavedPercent = resolvedCostSaved
	result.Decision = unanimousDecision(votesOf(shadowVotes))
	f.record(true, "resolved")
	return result
}

// escalationReason checks the escalation triggers in priority order and
// returns the first that fires, or ok=false when the shadow tier may resolve.
func (f *ShadowFacilitator) escalationReason(votes map[string]agent.MinimalVote) (EscalationReason, bool) {
	if len(votes) == 0 {
		return EscalationTimeout, true
	}

	var sum float64
	unanimous := true
	hasSecurityRisk := false
	var first agent.Decision
	for i, name := range sortedNames(votes) {
		vote := votes[name]
		if vote.HasRisk(agent.RiskSecurity) {
			hasSecurityRisk = true
		}
		if i == 0 {
			first = vote.Vote
		} else if vote.Vote != first {
			unanimous = false
		}
		sum += vote.Confidence
	}
	if !unanimous {
		return EscalationDisagreement, true
	}
	if hasSecurityRisk {
		return EscalationCriticalRisk, true
	}
	if sum/float64(len(votes)) < f.config.MinConfidence {
		return EscalationLowConfidence, true
	}
	return "", false
}

// escalate collects pro votes with the shadow summary appended to context
// and runs Wald over the combined vote set.
func (f *ShadowFacilitator) escalate(ctx context.Context, proposal, extraContext string, result *ShadowResult) {
	enhanced := extraContext
	if summary := summarizeVotes(result.ShadowVotes); summary != "" {
		enhanced = strings.TrimSpace(extraContext + "\n\nShadow tier votes:\n" + summary)
	}
	result.ProVotes = f.collectVotes(ctx, f.proAgents, proposal, enhanced)

	combined := append(votesOf(result.ShadowVotes), votesOf(result.ProVotes)...)
	wald := f.wald.Evaluate(combined)
	result.Wald = &wald
	result.Decision = wald.Decision
	result.CostSavedPercent = 0
}

// collectVotes fans out VoteStructured across agents, bounding each call by
// the vote timeout. Failures become HOLD votes instead of propagating.
func (f *ShadowFacilitator) collectVotes(ctx context.Context, agents []agent.Agent, proposal, extraContext string) map[string]agent.MinimalVote {
	votes := make(map[string]agent.MinimalVote, len(agents))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range agents {
		g.Go(func() error {
			name := a.Profile().Name
			voteCtx, cancel := context.WithTimeout(gctx, f.config.VoteTimeout)
			defer cancel()

			vote, err := a.VoteStructured(voteCtx, proposal, extraContext)
			if err != nil {
				slog.Warn("Agent vote failed, recording HOLD", "agent", name, "error", err)
				held := agent.HoldVote(fmt.Sprintf("vote failed: %v", err))
				mu.Lock()
				votes[name] = held
				mu.Unlock()
				return nil
			}
			mu.Lock()
			votes[name] = *vote
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return votes
}

func (f *ShadowFacilitator) record(resolved bool, outcome string) {
	f.mu.Lock()
	f.deliberations++
	if resolved {
		f.resolutions++
	}
	f.mu.Unlock()
	observability.ShadowDeliberations.WithLabelValues(outcome).Inc()
}

// Stats reports the shadow tier's resolution rate.
type ShadowStats struct {
	Deliberations  int     `json:"deliberations"`
	Resolutions    int     `json:"resolutions"`
	ResolutionRate float64 `json:"resolution_rate"`
}

// Stats returns a snapshot of resolution accounting.
func (f *ShadowFacilitator) Stats() ShadowStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := ShadowStats{Deliberations: f.deliberations, Resolutions: f.resolutions}
	if f.deliberations > 0 {
		s.ResolutionRate = float64(f.resolutions) / float64(f.deliberations)
	}
	return s
}

// unanimousDecision maps a unanimous vote set onto a decision.
func unanimousDecision(votes []agent.MinimalVote) Decision {
	if len(votes) == 0 {
		return DecisionHoldForHuman
	}
	switch {
	case votes[0].Vote.IsApproval():
		return DecisionAutoCommit
	case votes[0].Vote == agent.DecisionReject:
		return DecisionReject
	default:
		return DecisionHoldForHuman
	}
}

func votesOf(m map[string]agent.MinimalVote) []agent.MinimalVote {
	out := make([]agent.MinimalVote, 0, len(m))
	for _, name := range sortedNames(m) {
		out = append(out, m[name])
	}
	return out
}

func sortedNames(m map[string]agent.MinimalVote) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// summarizeVotes renders one line per shadow vote for the pro tier's context.
func summarizeVotes(votes map[string]agent.MinimalVote) string {
	var b strings.Builder
	for _, name := range sortedNames(votes) {
		v := votes[name]
		fmt.Fprintf(&b, "- %s: %s (confidence %.2f", name, v.Vote, v.Confidence)
		if len(v.Risks) > 0 {
			fmt.Fprintf(&b, ", risks %v", v.Risks)
		}
		b.WriteString(")")
		if v.BlockingReason != "" {
			fmt.Fprintf(&b, ": %s", v.BlockingReason)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
