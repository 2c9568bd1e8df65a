package validate

import (
	"context"
	"errors"
	"time"

	"github.com/me/cwl2nf/internal/container"
)

// LintResult is the outcome of checking a pipeline with the nextflow CLI.
type LintResult struct {
	Valid    bool   `json:"valid"`
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
	Error    string `json:"error,omitempty"`
}

// Linter asks the nextflow CLI to parse a pipeline file.
type Linter struct {
	binary  string
	timeout time.Duration
	runner  container.CommandRunner
}

// NewLinter creates a Linter for the given binary ("nextflow" when empty).
func NewLinter(binary string, timeout time.Duration) *Linter {
	return newLinterWithRunner(binary, timeout, container.SystemRunner())
}

func newLinterWithRunner(binary string, timeout time.Duration, runner container.CommandRunner) *Linter {
	if binary == "" {
		binary = "nextflow"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Linter{binary: binary, timeout: timeout, runner: runner}
}

// Lint runs "<binary> config <path>". A missing binary or a timeout is
// reported in the result, not as an error.
func (l *Linter) Lint(ctx context.Context, path string) LintResult {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	stdout, stderr, code, err := l.runner.Run(ctx, l.binary, "config", path)
	res := LintResult{ExitCode: code, Output: stdout, Error: stderr}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.ExitCode = -1
		res.Error = "validation timed out"
	case err != nil:
		res.ExitCode = -1
		res.Error = err.Error()
	default:
		res.Valid = code == 0
	}
	return res
}
