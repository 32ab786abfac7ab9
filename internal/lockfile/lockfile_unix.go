//go:build !windows

package lockfile

import (
	"errors"
	"os"
	"syscall"
)

// isProcessRunning reports whether a process with the given PID exists.
func isProcessRunning(pid int) (bool, string) {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, "process not found"
	}

	// Signal 0 probes for existence without delivering anything.
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true, ""
	}
	if errors.Is(err, os.ErrProcessDone) {
		return false, "process has finished"
	}
	if errors.Is(err, syscall.EPERM) {
		// The process exists but belongs to another user.
		return true, ""
	}
	return false, "cannot signal process"
}
