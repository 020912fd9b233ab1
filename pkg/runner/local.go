package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// LocalRunner spawns the interpreter directly on the host. This is the
// inherited execution mode; it applies no isolation beyond the deadline, so
// deployments that accept untrusted code should configure the docker runner
// instead.
type LocalRunner struct{}

func NewLocalRunner() *LocalRunner {
	return &LocalRunner{}
}

func (r *LocalRunner) Run(ctx context.Context, cmd Command, code string, timeout time.Duration) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, cmd.Args...), code)
	proc := exec.CommandContext(runCtx, cmd.Cmd, args...)
	// Without a wait delay, Run would block past the kill while orphaned
	// grandchildren hold the output pipes open.
	proc.WaitDelay = time.Second

	// Separate buffers fill incrementally as the process writes, so output
	// survives a deadline kill.
	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	start := time.Now()
	err := proc.Run()
	elapsed := time.Since(start)

	res := Result{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Elapsed: elapsed,
	}

	if runCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		// Spawn failure: interpreter missing, permission denied, and so on.
		return res, err
	}

	res.ExitCode = 0
	return res, nil
}
