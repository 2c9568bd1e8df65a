package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/me/cwl2nf/pkg/model"
)

// CommandRunner abstracts command execution for testing.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, exitCode int, err error)
}

type osCommandRunner struct{}

// SystemRunner returns a CommandRunner that executes commands on the host.
func SystemRunner() CommandRunner { return osCommandRunner{} }

func (osCommandRunner) Run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		return stdoutBuf.String(), stderrBuf.String(), 0, nil
	case errors.As(runErr, &exitErr):
		return stdoutBuf.String(), stderrBuf.String(), exitErr.ExitCode(), nil
	default:
		return stdoutBuf.String(), stderrBuf.String(), -1, runErr
	}
}

// PullResult is the outcome of pulling one process's image.
type PullResult struct {
	Process string `json:"process"`
	Image   string `json:"image"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// Puller pulls resolved images with a container CLI. Failures are reported
// per image and never stop the remaining pulls.
type Puller struct {
	binary string
	runner CommandRunner
	logger *slog.Logger
}

// NewPuller creates a Puller using the given CLI ("docker" when empty).
func NewPuller(binary string, logger *slog.Logger) *Puller {
	return newPullerWithRunner(binary, logger, osCommandRunner{})
}

func newPullerWithRunner(binary string, logger *slog.Logger, runner CommandRunner) *Puller {
	if binary == "" {
		binary = "docker"
	}
	return &Puller{binary: binary, runner: runner, logger: logger.With("component", "container-puller")}
}

// Pull pulls each distinct image once, in process-id order.
func (p *Puller) Pull(ctx context.Context, specs model.ContainerMap) []PullResult {
	var results []PullResult
	done := map[string]PullResult{}

	for _, id := range sortedIDs(specs) {
		spec := specs[id]
		if spec.Image == "" || spec.Dockerfile {
			continue
		}
		if prev, ok := done[spec.Image]; ok {
			prev.Process = id
			results = append(results, prev)
			continue
		}

		res := PullResult{Process: id, Image: spec.Image, OK: true}
		_, stderr, code, err := p.runner.Run(ctx, p.binary, "pull", spec.Image)
		switch {
		case err != nil:
			res.OK, res.Error = false, err.Error()
		case code != 0:
			res.OK, res.Error = false, fmt.Sprintf("exit code %d: %s", code, strings.TrimSpace(stderr))
		}
		if res.OK {
			p.logger.Info("image pulled", "process", id, "image", spec.Image)
		} else {
			p.logger.Warn("image pull failed", "process", id, "image", spec.Image, "error", res.Error)
		}
		done[spec.Image] = res
		results = append(results, res)
	}
	return results
}
