// Package runner executes pipeline step commands as child processes. Each
// step runs in its own process group so that a timeout kill reaches every
// descendant, not just the direct child.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/tigerroll/merchpipe/pkg/pipeline/support/util/exception"
	logger "github.com/tigerroll/merchpipe/pkg/pipeline/support/util/logger"
)

const componentName = "step_runner"

// Result captures the observable outcome of a single step process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// StepRunner launches a command and waits for it to finish, enforcing a wall
// clock timeout.
type StepRunner interface {
	Run(ctx context.Context, command []string, timeout time.Duration) (*Result, error)
}

// Options configures a process runner.
type Options struct {
	// Dir is the working directory for launched steps. Empty means the
	// current directory.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
}

type processRunner struct {
	opts Options
}

// NewStepRunner creates a StepRunner that executes commands as local child
// processes.
func NewStepRunner(opts Options) StepRunner {
	return &processRunner{opts: opts}
}

var _ StepRunner = (*processRunner)(nil)

// Run starts the command in a fresh process group and waits until it exits or
// the timeout elapses. On timeout the entire process group receives SIGKILL
// and the returned Result has TimedOut set; the accompanying error carries
// the timeout cause. A zero timeout disables the deadline.
func (r *processRunner) Run(ctx context.Context, command []string, timeout time.Duration) (*Result, error) {
	if len(command) == 0 {
		return nil, exception.Errorf(componentName, "empty step command")
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = r.opts.Dir
	cmd.Env = append(os.Environ(), r.opts.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	configureProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, exception.NewPipelineError(componentName, "failed to start step command", err, false, false)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-deadline:
		timedOut = true
		logger.Warnf("Step command exceeded its %s timeout, killing process group (pid %d).", timeout, cmd.Process.Pid)
		if killErr := killProcessGroup(cmd); killErr != nil {
			logger.Errorf("Failed to kill process group for pid %d: %v", cmd.Process.Pid, killErr)
		}
		waitErr = <-done
	case <-ctx.Done():
		logger.Warnf("Run cancelled, killing process group (pid %d).", cmd.Process.Pid)
		if killErr := killProcessGroup(cmd); killErr != nil {
			logger.Errorf("Failed to kill process group for pid %d: %v", cmd.Process.Pid, killErr)
		}
		waitErr = <-done
		return r.result(cmd, &stdout, &stderr, start, false, waitErr),
			exception.NewPipelineError(componentName, "step run cancelled", ctx.Err(), false, false)
	}

	result := r.result(cmd, &stdout, &stderr, start, timedOut, waitErr)
	if timedOut {
		return result, exception.Errorf(componentName, "step command timed out after %s", timeout).WithRetryable()
	}
	if waitErr != nil && result.ExitCode < 0 {
		// The process died without a usable exit code (e.g. killed by an
		// external signal). Surface that as an error rather than an exit code.
		return result, exception.NewPipelineError(componentName, "step command terminated abnormally", waitErr, false, false)
	}
	return result, nil
}

func (r *processRunner) result(cmd *exec.Cmd, stdout, stderr *bytes.Buffer, start time.Time, timedOut bool, waitErr error) *Result {
	exitCode := 0
	if waitErr != nil {
		exitCode = -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
	}
	return &Result{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		TimedOut: timedOut,
	}
}
