//go:build windows

package lockfile

import (
	"errors"

	"golang.org/x/sys/windows"
)

// isProcessRunning reports whether a process with the given PID exists.
func isProcessRunning(pid int) (bool, string) {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
			// The process exists but belongs to another user.
			return true, ""
		}
		return false, "process not found"
	}
	windows.CloseHandle(handle)
	return true, ""
}
