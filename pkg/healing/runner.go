// Package healing runs the project's test command and drives bounded
// fix-and-retry attempts until the suite passes or the budget is spent.
// Progress and stagnation are recorded through the hub so the ledger's
// replan trigger can fire when failures stop improving.
package healing

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

// TestOutcome is the parsed result of one test command run.
type TestOutcome struct {
	Passed   int
	Failed   int
	ExitCode int
	Output   string
}

// AllPassed reports whether the run had no failures and a clean exit.
func (o TestOutcome) AllPassed() bool {
	return o.Failed == 0 && o.ExitCode == 0
}

// ResultParser extracts pass/fail counts from test command output.
type ResultParser interface {
	Parse(output string) (passed, failed int)
}

// DefaultParser recognises "N passed" and "M failed" in the output, the
// summary format of pytest and go test wrappers alike.
type DefaultParser struct{}

var (
	passedRe = regexp.MustCompile(`(\d+) passed`)
	failedRe = regexp.MustCompile(`(\d+) failed`)
)

// Parse implements ResultParser.
func (DefaultParser) Parse(output string) (int, int) {
	passed, failed := 0, 0
	if m := passedRe.FindStringSubmatch(output); m != nil {
		passed, _ = strconv.Atoi(m[1])
	}
	if m := failedRe.FindStringSubmatch(output); m != nil {
		failed, _ = strconv.Atoi(m[1])
	}
	return passed, failed
}

// Runner executes an opaque shell test command in a working directory.
type Runner struct {
	Command string
	WorkDir string
	Timeout time.Duration
	Parser  ResultParser
}

// NewRunner creates a runner with the default parser and timeout.
func NewRunner(command, workDir string) *Runner {
	return &Runner{
		Command: command,
		WorkDir: workDir,
		Timeout: 10 * time.Minute,
		Parser:  DefaultParser{},
	}
}

// Run executes the test command once. A non-zero exit is not an error;
// the outcome carries the exit code. Errors are reserved for failures to
// run the command at all (and for context expiry).
func (r *Runner) Run(ctx context.Context) (*TestOutcome, error) {
	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "sh", "-c", r.Command)
	cmd.Dir = r.WorkDir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	outcome := &TestOutcome{Output: buf.String()}
	outcome.Passed, outcome.Failed = r.Parser.Parse(outcome.Output)

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		outcome.ExitCode = 0
	case errors.As(err, &exitErr):
		outcome.ExitCode = exitErr.ExitCode()
		// A failing suite with parseable counts is a normal outcome. When
		// the parser saw nothing, treat the exit code as one failure so
		// the healer still iterates.
		if outcome.Failed == 0 {
			outcome.Failed = 1
		}
	case runCtx.Err() != nil:
		return nil, runCtx.Err()
	default:
		return nil, err
	}
	return outcome, nil
}
