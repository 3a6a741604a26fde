// Package runner executes compiler command lines through a shell.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/anthr76/relock/internal/execenv"
)

// ErrTemporary marks failures of the execution infrastructure rather than the tool.
// Callers abandon the whole request when they see it.
var ErrTemporary = errors.New("temporary execution failure")

// Status tags the result of a run.
type Status int

const (
	StatusSucceeded Status = iota
	StatusFailed
	StatusTransient
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusTransient:
		return "transient"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Outcome is the result of one run. Err is nil only when Status is StatusSucceeded.
type Outcome struct {
	Status Status
	Stdout string
	Stderr string
	Err    error
}

// ExecError is a tool failure: non-zero exit or timeout.
type ExecError struct {
	ExitCode int
	Stderr   string
	TimedOut bool
	Timeout  time.Duration
}

func (e *ExecError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("command timed out after %s", e.Timeout)
	}
	msg := fmt.Sprintf("command failed with exit status %d", e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Local runs commands on the host.
type Local struct {
	Logger *slog.Logger
}

// New creates a Local runner.
func New(logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{Logger: logger}
}

// Run executes commandLine with ec.Shell in ec.Dir and exactly ec.Env.
// The command runs in its own process group, which is killed on
// cancellation or timeout.
func (l *Local) Run(ctx context.Context, commandLine string, ec execenv.Context) Outcome {
	if err := ctx.Err(); err != nil {
		return transient(fmt.Errorf("%w: %w", ErrTemporary, err))
	}

	shell := ec.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.Command(shell, "-c", commandLine)
	cmd.Dir = ec.Dir
	cmd.Env = ec.Env
	if cmd.Env == nil {
		cmd.Env = []string{}
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	l.Logger.Debug("executing command", "command", commandLine, "dir", ec.Dir, "env", ec.EnvNames())

	if err := cmd.Start(); err != nil {
		return transient(fmt.Errorf("%w: starting %s: %w", ErrTemporary, shell, err))
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var timeout <-chan time.Time
	if ec.Timeout > 0 {
		timer := time.NewTimer(ec.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var err error
	select {
	case <-ctx.Done():
		killGroup(cmd)
		<-done
		return transient(fmt.Errorf("%w: execution cancelled: %w", ErrTemporary, ctx.Err()))
	case <-timeout:
		killGroup(cmd)
		<-done
		return Outcome{
			Status: StatusFailed,
			Stdout: stdout.String(),
			Stderr: stderr.String(),
			Err:    &ExecError{ExitCode: -1, Stderr: strings.TrimSpace(stderr.String()), TimedOut: true, Timeout: ec.Timeout},
		}
	case err = <-done:
	}

	outcome := Outcome{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		outcome.Status = StatusSucceeded
		return outcome
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		outcome.Status = StatusTransient
		outcome.Err = fmt.Errorf("%w: %w", ErrTemporary, err)
		return outcome
	}

	// SIGKILL and SIGTERM we did not send come from the environment (OOM killer, supervisor).
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() && isInfrastructureSignal(ws.Signal()) {
		outcome.Status = StatusTransient
		outcome.Err = fmt.Errorf("%w: command killed: %w", ErrTemporary, err)
		return outcome
	}

	outcome.Status = StatusFailed
	outcome.Err = &ExecError{ExitCode: exitErr.ExitCode(), Stderr: strings.TrimSpace(stderr.String())}
	return outcome
}

func isInfrastructureSignal(sig syscall.Signal) bool {
	return sig == syscall.SIGKILL || sig == syscall.SIGTERM
}

func killGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

func transient(err error) Outcome {
	return Outcome{Status: StatusTransient, Err: err}
}
