// Package processes spawns the client as a detached child that outlives the
// launcher.
package processes

import (
	"fmt"
	"os/exec"
	"sync"
)

// Handle tracks a spawned child without blocking on it.
type Handle struct {
	cmd *exec.Cmd

	once sync.Once
	done chan struct{}
	err  error
}

// StartDetached launches bin with args from dir, detached from the
// launcher's session so it survives launcher exit.
func StartDetached(bin, dir string, args []string) (*Handle, error) {
	cmd := exec.Command(bin, args...)
	cmd.Dir = dir
	configureDetached(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start client process: %w", err)
	}

	h := &Handle{cmd: cmd, done: make(chan struct{})}
	h.once.Do(func() {
		go func() {
			h.err = cmd.Wait()
			close(h.done)
		}()
	})
	return h, nil
}

// PID is the child's process id.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// TryWait polls the child without blocking. When exited is true, code is
// the exit code.
func (h *Handle) TryWait() (exited bool, code int) {
	select {
	case <-h.done:
		if h.err == nil {
			return true, 0
		}
		if exitErr, ok := h.err.(*exec.ExitError); ok {
			return true, exitErr.ExitCode()
		}
		return true, -1
	default:
		return false, 0
	}
}
