package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/council-runtime/council/pkg/agent"
	"github.com/council-runtime/council/pkg/checkpoint"
	"github.com/council-runtime/council/pkg/consensus"
	"github.com/council-runtime/council/pkg/delegation"
	"github.com/council-runtime/council/pkg/events"
	"github.com/council-runtime/council/pkg/governance"
	"github.com/council-runtime/council/pkg/healing"
	"github.com/council-runtime/council/pkg/ledger"
	"github.com/council-runtime/council/pkg/observability"
	"github.com/council-runtime/council/pkg/registry"
)

// Built-in agent roles the state machine resolves from the registry.
const (
	roleArchitect  = "architect"
	roleCoder      = "coder"
	roleReviewer   = "reviewer"
	roleResearcher = "researcher"
)

// ErrCircuitOpen is returned when the coder's circuit breaker is open.
var ErrCircuitOpen = errors.New("orchestrator: agent circuit breaker is open")

// Options tunes one orchestrator instance.
type Options struct {
	// ThreadID names the checkpoint thread. Empty disables checkpointing
	// even when a store is attached.
	ThreadID string

	// ContextDocs are read-only documents loaded during EXPLORING.
	ContextDocs map[string]string

	// KeywordFallback enables the heuristic planner when the structured
	// plan call fails.
	KeywordFallback bool

	// ApprovalTimeout bounds decision-level HITL waits.
	ApprovalTimeout time.Duration

	// MaxStagnation configures the progress ledger's replan trigger.
	MaxStagnation int
}

// Orchestrator drives one task through the state machine. An instance is
// not reusable across tasks; each Run creates fresh per-task state.
type Orchestrator struct {
	registry *registry.Registry
	gateway  *governance.Gateway
	wald     *consensus.Wald
	shadow   *consensus.ShadowFacilitator
	healer   *healing.Healer
	runner   *healing.Runner
	hub      *events.Hub
	store    checkpoint.Store
	opts     Options

	state *CouncilState
	dual  *ledger.DualLedger
	deleg *delegation.Manager
	step  int
}

// New wires an orchestrator. shadow and store may be nil; healer and
// runner must both be set for TESTING and HEALING to operate.
func New(reg *registry.Registry, gw *governance.Gateway, wald *consensus.Wald,
	shadow *consensus.ShadowFacilitator, healer *healing.Healer, runner *healing.Runner,
	hub *events.Hub, store checkpoint.Store, opts Options) *Orchestrator {
	if opts.ApprovalTimeout <= 0 {
		opts.ApprovalTimeout = 5 * time.Minute
	}
	return &Orchestrator{
		registry: reg,
		gateway:  gw,
		wald:     wald,
		shadow:   shadow,
		healer:   healer,
		runner:   runner,
		hub:      hub,
		store:    store,
		opts:     opts,
	}
}

// State returns the current run's state, nil before the first Run.
func (o *Orchestrator) State() *CouncilState {
	return o.state
}

// Ledger returns the current run's dual ledger, nil before the first Run.
func (o *Orchestrator) Ledger() *ledger.DualLedger {
	return o.dual
}

// Run drives task to a terminal status. The returned state always carries
// exactly one of COMPLETED, FAILED, or HUMAN_REQUIRED. The error reports
// the failure cause when the run did not complete; a HumanInterrupt is
// absorbed into HUMAN_REQUIRED and not returned.
func (o *Orchestrator) Run(ctx context.Context, task string) (*CouncilState, error) {
	o.state = NewCouncilState(task)
	o.dual = ledger.NewDualLedger(o.opts.ThreadID, task, o.opts.MaxStagnation)
	o.deleg = delegation.NewManager(o.registry, 0)
	o.step = 0
	if o.hub != nil {
		o.hub.AttachLedger(o.dual)
		o.hub.Publish(events.New(events.TypeTaskCreated, "orchestrator", map[string]any{"task": task}))
	}

	var runErr error
	for !o.state.CurrentStatus().IsTerminal() {
		next, err := o.advance(ctx)
		if err != nil {
			var interrupt *governance.HumanInterrupt
			if errors.As(err, &interrupt) {
				o.state.AppendLog("human interrupt raised: %s", interrupt.Record.ID)
				o.publishInterrupt(interrupt)
				next = StatusHumanRequired
			} else {
				o.state.AppendLog("unhandled error in %s: %v", o.state.CurrentStatus(), err)
				o.dual.Progress.RecordBlocked(string(o.state.CurrentStatus()), err.Error())
				runErr = err
				next = StatusFailed
			}
		}
		o.transition(ctx, next)
	}

	terminal := o.state.CurrentStatus()
	observability.OrchestratorRuns.WithLabelValues(string(terminal)).Inc()
	o.finishLedger(terminal)
	o.publishTerminal(terminal)
	slog.Info("Orchestrator run finished", "task", task, "status", terminal, "steps", o.step)
	return o.state, runErr
}

// advance executes one state handler and returns the next status.
func (o *Orchestrator) advance(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return StatusFailed, err
	}
	switch o.state.CurrentStatus() {
	case StatusAnalyzing:
		return o.stateAnalyzing(ctx)
	case StatusExploring:
		return o.stateExploring(ctx)
	case StatusPlanning:
		return o.statePlanning(ctx)
	case StatusCoding:
		return o.stateCoding(ctx)
	case StatusTesting:
		return o.stateTesting(ctx)
	case StatusHealing:
		return o.stateHealing(ctx)
	case StatusReviewing:
		return o.stateReviewing(ctx)
	default:
		return StatusFailed, fmt.Errorf("orchestrator: no handler for status %s", o.state.CurrentStatus())
	}
}

// transition moves the state machine, emits a status event, and persists
// a checkpoint. A checkpoint failure is logged and does not stop the run.
func (o *Orchestrator) transition(ctx context.Context, next Status) {
	from := o.state.CurrentStatus()
	o.state.SetStatus(next)
	o.step++

	if o.hub != nil {
		o.hub.Publish(events.New(events.TypeTaskUpdated, "orchestrator", map[string]any{
			"from":   string(from),
			"status": string(next),
		}))
	}
	o.saveCheckpoint(ctx)
}

func (o *Orchestrator) saveCheckpoint(ctx context.Context) {
	if o.store == nil || o.opts.ThreadID == "" {
		return
	}
	cp := checkpoint.Checkpoint{
		ThreadID:  o.opts.ThreadID,
		Step:      o.step,
		State:     o.state.Snapshot(),
		Timestamp: time.Now().UTC(),
	}
	if err := o.store.Save(ctx, cp); err != nil {
		if errors.Is(err, checkpoint.ErrNotSerializable) {
			slog.Error("Checkpoint state not serializable, skipping", "step", o.step, "error", err)
			return
		}
		o.dual.Progress.RecordBlocked("checkpoint", err.Error())
		slog.Error("Checkpoint save failed", "step", o.step, "error", err)
	}
}

// stateAnalyzing routes through EXPLORING once, then classifies the task.
func (o *Orchestrator) stateAnalyzing(_ context.Context) (Status, error) {
	if _, explored := o.state.Metadata["explored"]; !explored {
		return StatusExploring, nil
	}
	c := classifyTask(o.state.Task)
	o.state.SetMeta("task_type", c.TaskType)
	o.state.SetMeta("recommended_model", c.RecommendedModel)
	o.state.SetMeta("classification_confidence", c.Confidence)
	o.state.AppendLog("classified as %s (model %s, confidence %.2f)", c.TaskType, c.RecommendedModel, c.Confidence)
	return StatusPlanning, nil
}

// stateExploring loads read-only context documents into the task ledger.
func (o *Orchestrator) stateExploring(_ context.Context) (Status, error) {
	for name, doc := range o.opts.ContextDocs {
		o.dual.Task.AddHint(fmt.Sprintf("%s: %s", name, doc))
	}
	o.state.SetMeta("explored", true)
	o.state.AppendLog("loaded %d context documents", len(o.opts.ContextDocs))
	return StatusAnalyzing, nil
}

// statePlanning asks the architect for a structured plan; the keyword
// planner backs it up when enabled.
func (o *Orchestrator) statePlanning(ctx context.Context) (Status, error) {
	plan, err := o.buildPlan(ctx)
	if err != nil {
		if !o.opts.KeywordFallback {
			return StatusFailed, err
		}
		o.state.AppendLog("structured plan failed (%v), using keyword fallback", err)
		plan = fallbackPlan(o.state.Task)
	}

	o.state.mu.Lock()
	o.state.Plan = plan
	o.state.mu.Unlock()

	steps := make([]string, 0, len(plan.Subtasks))
	for _, st := range plan.Subtasks {
		steps = append(steps, st.Description)
	}
	o.dual.Task.SetPlan(steps)
	o.state.AppendLog("plan built: %d subtasks, %d risks", len(plan.Subtasks), len(plan.Risks))
	return StatusCoding, nil
}

func (o *Orchestrator) buildPlan(ctx context.Context) (*Plan, error) {
	architect, err := o.registry.Get(roleArchitect)
	if err != nil {
		return nil, err
	}
	history := ""
	if o.hub != nil {
		history = o.hub.Context()
	}
	think, err := architect.ThinkStructured(ctx, o.state.Task, history)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Goal: o.state.Task, Risks: think.Concerns}
	// Concerns double as open questions for the researcher.
	for _, concern := range think.Concerns {
		o.dual.Task.AddQuery(concern)
	}
	suggestions := think.Suggestions
	if len(suggestions) == 0 {
		suggestions = []string{o.state.Task}
	}
	for i, s := range suggestions {
		plan.Subtasks = append(plan.Subtasks, Subtask{
			ID:          fmt.Sprintf("subtask-%d", i+1),
			Description: s,
			Status:      SubtaskPending,
		})
	}
	return plan, nil
}

// stateCoding executes pending subtasks through the coder agent. A
// decision-level approval gate runs first when the task description
// carries approval keywords; the coder's circuit breaker is consulted
// before every dispatch.
func (o *Orchestrator) stateCoding(ctx context.Context) (Status, error) {
	if keyword, gated := needsDecisionApproval(o.state.Task); gated {
		approved, err := o.requestDecisionApproval(ctx, keyword)
		if err != nil {
			return StatusHumanRequired, err
		}
		if !approved {
			return StatusHumanRequired, o.gateway.Interrupt(
				fmt.Sprintf("decision approval not granted for %q", keyword), o.state.Snapshot())
		}
	}

	coder, err := o.registry.Get(roleCoder)
	if err != nil {
		return StatusFailed, err
	}
	o.resolvePendingQueries(ctx, coder)

	planContext := ""
	if o.state.Plan != nil {
		planContext = "Goal: " + o.state.Plan.Goal + "\nRisks: " + strings.Join(o.state.Plan.Risks, "; ")
	}

	for _, st := range o.state.PendingSubtasks() {
		if o.gateway.Breaker().IsOpen(roleCoder) {
			return StatusFailed, fmt.Errorf("%w: %s", ErrCircuitOpen, roleCoder)
		}

		result, err := coder.Execute(ctx, st.Description, planContext)
		if err != nil {
			o.gateway.Breaker().RecordFailure(roleCoder)
			o.state.SetSubtaskStatus(st.ID, SubtaskFailed, "", err.Error())
			o.dual.Progress.RecordBlocked(st.Description, err.Error())
			return StatusFailed, fmt.Errorf("subtask %s: %w", st.ID, err)
		}
		if !result.Success {
			o.gateway.Breaker().RecordFailure(roleCoder)
			o.state.SetSubtaskStatus(st.ID, SubtaskFailed, result.Output, result.Error)
			o.dual.Progress.RecordIteration(false, st.Description, result.Error)
			return StatusFailed, fmt.Errorf("subtask %s failed: %s", st.ID, result.Error)
		}

		o.gateway.Breaker().Reset(roleCoder)
		o.state.SetSubtaskStatus(st.ID, SubtaskDone, result.Output, "")
		if o.hub != nil {
			// Projection records the progress iteration.
			o.hub.Publish(events.New(events.TypeCodeWritten, roleCoder, map[string]any{
				"subtask": st.ID,
				"summary": truncate(result.Output, 200),
			}))
		} else {
			o.dual.Progress.RecordIteration(true, st.Description, result.Output)
		}
	}
	return StatusTesting, nil
}

// resolvePendingQueries hands open ledger queries to the researcher on the
// coder's behalf. Refused or failed delegations leave the query pending;
// answers land on the task ledger as resolved facts.
func (o *Orchestrator) resolvePendingQueries(ctx context.Context, coder agent.Agent) {
	for _, query := range o.dual.Task.PendingQueries() {
		if o.hub != nil {
			o.hub.Publish(events.New(events.TypeHandoffInitiated, roleCoder, map[string]any{
				"to":   roleResearcher,
				"task": truncate(query, 200),
			}))
		}
		res, err := o.deleg.Delegate(ctx, query, coder, roleResearcher, o.dual.Task.ToContext())
		if err != nil {
			o.state.AppendLog("delegation refused for query %q: %v", truncate(query, 80), err)
			continue
		}
		if res.Status != delegation.StatusSuccess {
			o.state.AppendLog("research delegation failed for query %q: %s", truncate(query, 80), res.Error)
			continue
		}
		if o.hub != nil {
			o.hub.Publish(events.New(events.TypeHandoffCompleted, roleResearcher, map[string]any{
				"to":     roleCoder,
				"status": string(res.Status),
			}))
			// Projection resolves the query on the ledger.
			o.hub.Publish(events.New(events.TypeQueryResolved, roleCoder, map[string]any{
				"query":  query,
				"result": res.Output,
			}))
		} else {
			o.dual.Task.ResolveQuery(query, res.Output)
		}
	}
}

func (o *Orchestrator) requestDecisionApproval(ctx context.Context, keyword string) (bool, error) {
	check := o.gateway.CheckSafety("decision", o.state.Task, nil)
	req := o.gateway.CreateDecisionRequest(
		"task_execution",
		fmt.Sprintf("task contains approval keyword %q: %s", keyword, truncate(o.state.Task, 200)),
		check.Reason,
		"orchestrator",
		check.RiskLevel,
	)
	approved, err := o.gateway.WaitForApproval(ctx, req, o.opts.ApprovalTimeout)
	if err != nil {
		// Timeout leaves the request pending; the run pauses for a human.
		return false, o.gateway.Interrupt("decision approval timed out", o.state.Snapshot())
	}
	return approved, nil
}

// stateTesting runs the test command once and branches on the outcome.
func (o *Orchestrator) stateTesting(ctx context.Context) (Status, error) {
	if o.runner == nil {
		o.state.AppendLog("no test runner configured, skipping TESTING")
		return StatusReviewing, nil
	}
	outcome, err := o.runner.Run(ctx)
	if err != nil {
		o.dual.Progress.RecordBlocked("test run", err.Error())
		return StatusFailed, err
	}

	summary := fmt.Sprintf("%d passed, %d failed (exit %d)", outcome.Passed, outcome.Failed, outcome.ExitCode)
	o.state.AddTestResult(summary)
	o.state.AppendLog("test run: %s", summary)
	if o.hub != nil {
		eventType := events.TypeTestFailed
		if outcome.AllPassed() {
			eventType = events.TypeTestPassed
		}
		o.hub.Publish(events.New(eventType, "orchestrator", map[string]any{"summary": summary}))
	}

	if outcome.AllPassed() {
		return StatusReviewing, nil
	}
	return StatusHealing, nil
}

// stateHealing invokes the bounded self-healing loop and always proceeds
// to review with the report attached.
func (o *Orchestrator) stateHealing(ctx context.Context) (Status, error) {
	if o.healer == nil {
		o.state.AppendLog("no healer configured, skipping HEALING")
		return StatusReviewing, nil
	}
	report, err := o.healer.Run(ctx)
	if err != nil {
		o.state.AppendLog("healing aborted: %v", err)
	}
	if report != nil {
		o.state.SetMeta("healing_report", report)
		o.state.AddTestResult(fmt.Sprintf("healing %s after %d iterations (%d -> %d failures)",
			report.Status, report.Iterations, report.InitialFailures, report.FinalFailures))
	}
	return StatusReviewing, nil
}

// stateReviewing collects votes on a proposal summary and maps the
// consensus decision onto a terminal status. With a shadow facilitator
// attached, the cheap tier votes first; otherwise the review roles vote
// directly through the Wald engine.
func (o *Orchestrator) stateReviewing(ctx context.Context) (Status, error) {
	proposal := o.proposalSummary()

	var decision consensus.Decision
	if o.shadow != nil {
		result := o.shadow.Deliberate(ctx, proposal, o.dual.Task.ToContext())
		decision = result.Decision
		o.state.SetMeta("shadow_resolved", result.Resolved)
		if result.EscalationReason != "" {
			o.state.SetMeta("escalation_reason", string(result.EscalationReason))
		}
		o.recordVoteComments(result.ShadowVotes)
		o.recordVoteComments(result.ProVotes)
	} else {
		votes := o.collectReviewVotes(ctx, proposal)
		result := o.wald.Evaluate(votes)
		decision = result.Decision
		o.state.SetMeta("consensus", result)
		o.state.AppendLog("wald: %s (pi_approve %.4f)", result.Decision, result.PiApprove)
	}

	switch decision {
	case consensus.DecisionAutoCommit:
		return StatusCompleted, nil
	case consensus.DecisionReject:
		return StatusFailed, nil
	default:
		return StatusHumanRequired, nil
	}
}

// collectReviewVotes gathers structured votes from the review roles.
// A missing or failing agent contributes a HOLD vote.
func (o *Orchestrator) collectReviewVotes(ctx context.Context, proposal string) []agent.MinimalVote {
	var votes []agent.MinimalVote
	for _, role := range []string{roleReviewer, roleArchitect, roleCoder} {
		a, err := o.registry.Get(role)
		if err != nil {
			votes = append(votes, agent.HoldVote(fmt.Sprintf("%s unavailable", role)))
			continue
		}
		vote, err := a.VoteStructured(ctx, proposal, o.dual.Task.ToContext())
		if err != nil {
			slog.Warn("Review vote failed, recording HOLD", "agent", role, "error", err)
			votes = append(votes, agent.HoldVote(fmt.Sprintf("vote failed: %v", err)))
			continue
		}
		votes = append(votes, *vote)
		if vote.BlockingReason != "" {
			o.state.AddReviewComment(fmt.Sprintf("%s: %s", role, vote.BlockingReason))
		}
	}
	return votes
}

func (o *Orchestrator) recordVoteComments(votes map[string]agent.MinimalVote) {
	for name, vote := range votes {
		if vote.BlockingReason != "" {
			o.state.AddReviewComment(fmt.Sprintf("%s: %s", name, vote.BlockingReason))
		}
	}
}

// proposalSummary renders the run for voting: goal, subtask outcomes,
// and test results.
func (o *Orchestrator) proposalSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", o.state.Task)
	if o.state.Plan != nil {
		b.WriteString("Subtasks:\n")
		for _, st := range o.state.Plan.Subtasks {
			fmt.Fprintf(&b, "- [%s] %s\n", st.Status, st.Description)
		}
	}
	if len(o.state.TestResults) > 0 {
		b.WriteString("Test results:\n")
		for _, r := range o.state.TestResults {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	return strings.TrimSpace(b.String())
}

func (o *Orchestrator) finishLedger(terminal Status) {
	switch terminal {
	case StatusCompleted:
		o.dual.Progress.MarkCompleted("run", "completed")
	case StatusFailed:
		o.dual.Progress.RecordBlocked("run", "failed")
	}
}

func (o *Orchestrator) publishTerminal(terminal Status) {
	if o.hub == nil {
		return
	}
	var eventType events.Type
	switch terminal {
	case StatusCompleted:
		eventType = events.TypeTaskCompleted
	case StatusFailed:
		eventType = events.TypeTaskFailed
	default:
		// HUMAN_REQUIRED already produced an interrupt.raised event and a
		// task.updated transition; no terminal lifecycle event applies.
		return
	}
	o.hub.Publish(events.New(eventType, "orchestrator", map[string]any{
		"task":   o.state.Task,
		"status": string(terminal),
	}))
}

func (o *Orchestrator) publishInterrupt(interrupt *governance.HumanInterrupt) {
	if o.hub == nil {
		return
	}
	o.hub.Publish(events.New(events.TypeInterruptRaised, "orchestrator", map[string]any{
		"interrupt_id": interrupt.Record.ID,
		"request_id":   interrupt.Record.RequestID,
		"action":       interrupt.Record.Action,
	}))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
