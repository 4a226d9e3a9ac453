// Package process runs the external media tools (ffmpeg, whisper-cli).
//
// A tool gets no stdin, writes its progress straight to the operator's
// streams, and signals success only through its exit status.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	apperrors "captionflow/internal/pkg/errors"
	"captionflow/internal/pkg/logger"
)

// ExitError is returned when the tool ran and exited non-zero.
type ExitError struct {
	Binary   string
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s finished with code %d", e.Binary, e.ExitCode)
}

// SpawnError is returned when the tool could not be started at all.
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Runner executes one binary. The zero value of Stdout and Stderr inherits
// the current process's streams.
type Runner struct {
	Binary  string
	Stdout  io.Writer
	Stderr  io.Writer
	Timeout time.Duration
	Log     *logger.Logger
}

// Run executes the binary with args and waits for it. Cancelling ctx, or
// exceeding Timeout, kills the child.
func (r Runner) Run(ctx context.Context, args []string) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Stdin = nil
	cmd.Stdout = r.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = r.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if r.Log != nil {
		r.Log.FromContext(ctx).Debug("running tool", "binary", r.Binary, "args", args)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return &SpawnError{Binary: r.Binary, Err: err}
	}
	err := cmd.Wait()

	if r.Log != nil {
		r.Log.FromContext(ctx).Debug("tool exited",
			"binary", r.Binary,
			"duration_ms", time.Since(start).Milliseconds(),
			"ok", err == nil,
		)
	}

	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Binary: r.Binary, ExitCode: exitErr.ExitCode()}
	}
	return &SpawnError{Binary: r.Binary, Err: err}
}

// Coded converts a Run error into the coded error the worker runtime acts
// on: exit failures and spawn failures are PROCESS_FAILURE, deadlines are
// TIMEOUT.
func Coded(op string, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		e := apperrors.ProcessFailure(exitErr.Binary, exitErr.ExitCode, err)
		e.Op = op
		return e
	}
	var spawnErr *SpawnError
	if errors.As(err, &spawnErr) {
		e := apperrors.ProcessFailure(spawnErr.Binary, -1, err).WithField("spawn", spawnErr.Err.Error())
		e.Op = op
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.WrapWithCode(err, apperrors.CodeTimeout, op, "tool deadline exceeded")
	}
	return apperrors.Wrap(err, op, "tool invocation failed")
}
