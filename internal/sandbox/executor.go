package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Executor runs snippets in isolated worker processes. The zero value is
// usable and applies DefaultTimeout.
type Executor struct {
	// Timeout applies to requests that don't set their own.
	Timeout time.Duration
}

// New creates an Executor with the given default timeout.
func New(timeout time.Duration) *Executor {
	return &Executor{Timeout: timeout}
}

// Execute runs one snippet in a fresh worker process and waits for the
// result. The returned error is non-nil only for infrastructure failures
// (cannot spawn or talk to the worker); everything the snippet itself did
// wrong — including blowing the timeout — lands in Result.Error.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating executable: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(), workerEnv+"=1")
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Own process group, so a timeout kill reaps anything the worker
	// may have spawned, not just the worker itself.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawning sandbox worker: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case waitErr := <-done:
		if waitErr != nil {
			return nil, fmt.Errorf("sandbox worker failed: %w (stderr: %s)",
				waitErr, strings.TrimSpace(stderr.String()))
		}
	case <-time.After(timeout):
		killGroup(cmd)
		<-done
		return &Result{Error: fmt.Sprintf("Timeout: execution exceeded %s", timeout)}, nil
	case <-ctx.Done():
		killGroup(cmd)
		<-done
		return nil, fmt.Errorf("sandbox execution: %w", ctx.Err())
	}

	var res Result
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return nil, fmt.Errorf("decoding sandbox result: %w", err)
	}
	if res.Bindings == nil {
		res.Bindings = map[string]any{}
	}
	return &res, nil
}

// killGroup terminates the worker's whole process group. SIGKILL: the worker
// runs arbitrary code and cannot be trusted to honor anything gentler.
func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
		syscall.Kill(-pgid, syscall.SIGKILL)
		return
	}
	cmd.Process.Kill()
}
