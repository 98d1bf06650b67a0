package healing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/council-runtime/council/pkg/agent"
	"github.com/council-runtime/council/pkg/events"
	"github.com/council-runtime/council/pkg/observability"
)

// Status classifies a completed healing run.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusPartial Status = "PARTIAL"
	StatusFailed  Status = "FAILED"
)

// Attempt records one fix-and-retest cycle.
type Attempt struct {
	Iteration int       `json:"iteration"`
	Failures  int       `json:"failures"`
	Analysis  string    `json:"analysis,omitempty"`
	FixError  string    `json:"fix_error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Report summarises a healing run.
type Report struct {
	Status          Status    `json:"status"`
	Iterations      int       `json:"iterations"`
	InitialFailures int       `json:"initial_failures"`
	FinalFailures   int       `json:"final_failures"`
	FinalError      string    `json:"final_error,omitempty"`
	Attempts        []Attempt `json:"attempts"`
}

// FixStrategy attempts to repair the codebase given the failing output.
// Implementations are pluggable; the default re-invokes the coder agent
// with the traceback appended to its context.
type FixStrategy interface {
	Fix(ctx context.Context, failureOutput string, attempt int) (string, error)
}

// CoderFixStrategy asks the coder agent to repair the failures.
type CoderFixStrategy struct {
	Coder agent.Agent
}

// Fix implements FixStrategy.
func (s *CoderFixStrategy) Fix(ctx context.Context, failureOutput string, attempt int) (string, error) {
	task := fmt.Sprintf("The test suite is failing (fix attempt %d). Repair the code so the tests pass.", attempt)
	result, err := s.Coder.Execute(ctx, task, "Failing test output:\n"+truncate(failureOutput, 4000))
	if err != nil {
		return "", err
	}
	if !result.Success {
		return result.Output, fmt.Errorf("coder reported failure: %s", result.Error)
	}
	return result.Output, nil
}

// Healer drives the bounded fix-and-retry loop.
type Healer struct {
	runner        *Runner
	strategy      FixStrategy
	hub           *events.Hub
	maxIterations int
}

// NewHealer creates a healer. maxIterations <= 0 selects 3.
func NewHealer(runner *Runner, strategy FixStrategy, hub *events.Hub, maxIterations int) *Healer {
	if maxIterations <= 0 {
		maxIterations = 3
	}
	return &Healer{
		runner:        runner,
		strategy:      strategy,
		hub:           hub,
		maxIterations: maxIterations,
	}
}

// Run executes up to maxIterations test-analyze-fix cycles. Each run's
// outcome is published on the hub (test_passed / test_failed) so the
// progress ledger tracks stagnation. The terminal status is SUCCESS with
// zero failures, PARTIAL when failures decreased, FAILED otherwise.
func (h *Healer) Run(ctx context.Context) (*Report, error) {
	report := &Report{Status: StatusFailed, InitialFailures: -1}
	defer func() { observability.HealingIterations.Observe(float64(report.Iterations)) }()

	for i := 1; i <= h.maxIterations; i++ {
		report.Iterations = i

		outcome, err := h.runner.Run(ctx)
		if err != nil {
			report.FinalError = err.Error()
			slog.Error("Test run failed to execute", "iteration", i, "error", err)
			return report, err
		}
		if report.InitialFailures < 0 {
			report.InitialFailures = outcome.Failed
		}
		report.FinalFailures = outcome.Failed

		h.publishOutcome(outcome, i)

		if outcome.AllPassed() {
			report.Status = StatusSuccess
			return report, nil
		}

		analysis := analyzeFailures(outcome.Output)
		attempt := Attempt{
			Iteration: i,
			Failures:  outcome.Failed,
			Analysis:  analysis,
			Timestamp: time.Now().UTC(),
		}

		if _, fixErr := h.strategy.Fix(ctx, outcome.Output, i); fixErr != nil {
			attempt.FixError = fixErr.Error()
			slog.Warn("Fix attempt failed", "iteration", i, "error", fixErr)
		}
		report.Attempts = append(report.Attempts, attempt)
	}

	// One final verification run after the last fix attempt.
	outcome, err := h.runner.Run(ctx)
	if err == nil {
		report.FinalFailures = outcome.Failed
		h.publishOutcome(outcome, report.Iterations)
		if outcome.AllPassed() {
			report.Status = StatusSuccess
			return report, nil
		}
	}

	if report.InitialFailures > 0 && report.FinalFailures < report.InitialFailures {
		report.Status = StatusPartial
	}
	return report, nil
}

// publishOutcome mirrors the test result onto the hub.
func (h *Healer) publishOutcome(outcome *TestOutcome, iteration int) {
	if h.hub == nil {
		return
	}
	summary := fmt.Sprintf("iteration %d: %d passed, %d failed", iteration, outcome.Passed, outcome.Failed)
	if outcome.AllPassed() {
		h.hub.Publish(events.New(events.TypeTestPassed, "healer", map[string]any{"summary": summary}))
	} else {
		h.hub.Publish(events.New(events.TypeTestFailed, "healer", map[string]any{"summary": summary}))
	}
}

// analyzeFailures extracts the most informative lines from the failing
// output: the last traceback-looking section, bounded in size.
func analyzeFailures(output string) string {
	lines := strings.Split(output, "\n")
	var picked []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.Contains(trimmed, "Error") || strings.Contains(trimmed, "FAIL") ||
			strings.Contains(trimmed, "assert") || strings.HasPrefix(trimmed, "File \"") {
			picked = append(picked, trimmed)
		}
	}
	if len(picked) == 0 {
		return truncate(output, 500)
	}
	if len(picked) > 20 {
		picked = picked[len(picked)-20:]
	}
	return strings.Join(picked, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
