// Package lockfile enforces a single bridge process per lock path. The
// lock is an exclusively created file holding the owner's PID; a file left
// behind by a dead process is detected and replaced.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrLocked reports that another live process holds the lock.
var ErrLocked = errors.New("process is already running")

// Lockfile represents a file-based lock
type Lockfile struct {
	path   string
	file   *os.File
	pid    int
	locked bool
}

// New creates a lock handle for path. Nothing is taken until TryAcquire.
func New(path string) *Lockfile {
	return &Lockfile{
		path: path,
	}
}

// TryAcquire takes the lock or fails without blocking. A lockfile whose
// owner no longer runs is removed and the acquisition retried once.
// ErrLocked is returned while the owning process is alive.
func (l *Lockfile) TryAcquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lockfile directory: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if os.IsExist(err) {
		stale, reason := l.checkStale()
		if !stale {
			return fmt.Errorf("%w: %s", ErrLocked, reason)
		}
		if removeErr := os.Remove(l.path); removeErr != nil {
			return fmt.Errorf("failed to remove stale lockfile (%s): %w", reason, removeErr)
		}
		file, err = os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	}
	if err != nil {
		return fmt.Errorf("failed to create lockfile: %w", err)
	}

	return l.claim(file)
}

// claim records ownership in the freshly created lockfile.
func (l *Lockfile) claim(file *os.File) error {
	l.file = file
	l.pid = os.Getpid()
	l.locked = true

	content := fmt.Sprintf("%d\n%s\n", l.pid, time.Now().Format(time.RFC3339))
	if _, err := l.file.WriteString(content); err != nil {
		l.Release()
		return fmt.Errorf("failed to write to lockfile: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		l.Release()
		return fmt.Errorf("failed to sync lockfile: %w", err)
	}

	return nil
}

// checkStale reports whether the existing lockfile belongs to a dead
// process. The timestamp stored in the file is informational only; a
// running owner keeps the lock no matter how old the file is.
func (l *Lockfile) checkStale() (stale bool, reason string) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return true, "cannot read lockfile"
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return true, "invalid PID in lockfile"
	}

	if running, why := isProcessRunning(pid); !running {
		return true, why
	}
	return false, fmt.Sprintf("process with PID %d is running", pid)
}

// Release releases the lock and removes the lockfile.
func (l *Lockfile) Release() error {
	if !l.locked {
		return nil
	}

	var err error
	if l.file != nil {
		if closeErr := l.file.Close(); closeErr != nil {
			err = closeErr
		}
		l.file = nil
	}

	if removeErr := os.Remove(l.path); removeErr != nil && !os.IsNotExist(removeErr) {
		if err != nil {
			err = fmt.Errorf("%v; failed to remove lockfile: %w", err, removeErr)
		} else {
			err = fmt.Errorf("failed to remove lockfile: %w", removeErr)
		}
	}

	l.locked = false
	return err
}

// PID returns the PID that acquired the lock
func (l *Lockfile) PID() int {
	return l.pid
}

// Locked returns true if the lock is held
func (l *Lockfile) Locked() bool {
	return l.locked
}

// Path returns the lockfile path
func (l *Lockfile) Path() string {
	return l.path
}
