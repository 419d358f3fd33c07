// Package process provides the OS-facing half of process supervision:
// building commands, starting them in their own process group, and
// finding or killing processes by name.
package process

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-livestream-viewer/internal/logging"
)

// DefaultWaitDelay bounds how long Wait keeps copying output after the
// process has exited.
const DefaultWaitDelay = 2 * time.Second

// ErrKilled is returned by Terminate when the process ignored the
// graceful signal and had to be killed.
var ErrKilled = errors.New("process did not exit gracefully")

// Handle is a started process. The zero value is not usable; use Start.
type Handle struct {
	cmd       *exec.Cmd
	program   string
	pid       int
	startedAt time.Time
	output    *logging.OutputHandler

	// Written once before done is closed.
	done     chan struct{}
	exitCode int
	waitErr  error
}

// Start starts cmd in a new process group and returns its handle.
// program is a label used in logs. When output is non-nil it receives the
// process's stdout and stderr.
func Start(cmd *exec.Cmd, program string, output *logging.OutputHandler) (*Handle, error) {
	setProcessGroup(cmd)
	if output != nil {
		cmd.Stdout = output
		cmd.Stderr = output
	}
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", program, err)
	}

	h := &Handle{
		cmd:       cmd,
		program:   program,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		output:    output,
		done:      make(chan struct{}),
		exitCode:  -1,
	}
	if output != nil {
		output.SetPID(h.pid)
	}
	go h.wait()
	return h, nil
}

func (h *Handle) wait() {
	err := h.cmd.Wait()
	if h.output != nil {
		h.output.Flush()
	}
	h.waitErr = err
	h.exitCode = extractExitCode(err)
	close(h.done)
}

// PID returns the OS process id.
func (h *Handle) PID() int { return h.pid }

// Program returns the label given to Start.
func (h *Handle) Program() string { return h.program }

// StartedAt returns when the process was started.
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// RecentOutput returns up to n of the most recent output lines, oldest
// first. It is empty when Start was given no output handler.
func (h *Handle) RecentOutput(n int) []string {
	if h.output == nil {
		return nil
	}
	return h.output.RecentLines(n)
}

// Done is closed when the process has exited and been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Alive reports whether the process is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the exit code, 128+signal for signalled processes,
// or -1 while the process is running.
func (h *Handle) ExitCode() int {
	select {
	case <-h.done:
		return h.exitCode
	default:
		return -1
	}
}

// Wait blocks until the process exits and returns the exec.Cmd Wait error.
func (h *Handle) Wait() error {
	<-h.done
	return h.waitErr
}

// Terminate stops the process group: a graceful signal first, then a kill
// once timeout has passed. It blocks until the process has been reaped or
// a second timeout expires. Terminating an exited process is a no-op.
func (h *Handle) Terminate(timeout time.Duration) error {
	if !h.Alive() {
		return nil
	}

	// Errors here usually mean the process just exited; the wait below
	// decides.
	_ = terminateGroup(h.cmd)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return nil
	case <-timer.C:
	}

	if err := killGroup(h.cmd); err != nil && h.Alive() {
		return fmt.Errorf("kill %s (pid %d): %w", h.program, h.pid, err)
	}

	timer.Reset(timeout)
	select {
	case <-h.done:
		return ErrKilled
	case <-timer.C:
		return fmt.Errorf("%s (pid %d) still running after kill", h.program, h.pid)
	}
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
