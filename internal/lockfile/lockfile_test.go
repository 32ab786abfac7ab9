package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLockfile_AcquireRelease(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "test.lock")
	lock := New(lockPath)

	if err := lock.TryAcquire(); err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}

	if !lock.Locked() {
		t.Error("Lock should be locked")
	}

	if lock.PID() != os.Getpid() {
		t.Errorf("Expected PID %d, got %d", os.Getpid(), lock.PID())
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Failed to release lock: %v", err)
	}

	if lock.Locked() {
		t.Error("Lock should not be locked after release")
	}

	// Should be able to acquire again
	if err := lock.TryAcquire(); err != nil {
		t.Fatalf("Failed to acquire lock after release: %v", err)
	}

	lock.Release()
}

func TestLockfile_AlreadyLocked(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "test.lock")

	lock1 := New(lockPath)
	if err := lock1.TryAcquire(); err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	lock2 := New(lockPath)
	if err := lock2.TryAcquire(); err == nil {
		t.Error("Expected error when acquiring already held lock")
		defer lock2.Release()
	} else if !errors.Is(err, ErrLocked) {
		t.Errorf("Expected ErrLocked, got: %v", err)
	}
}

func TestLockfile_StaleDeadProcess(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "test.lock")

	// A lockfile naming a PID that does not run counts as stale.
	content := fmt.Sprintf("%d\n%s\n", 99999, time.Now().Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to create fake lockfile: %v", err)
	}

	lock := New(lockPath)
	if err := lock.TryAcquire(); err != nil {
		t.Fatalf("Failed to acquire stale lock: %v", err)
	}
	defer lock.Release()

	if !lock.Locked() {
		t.Error("Lock should be locked")
	}
}

func TestLockfile_StaleGarbageContent(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "test.lock")

	if err := os.WriteFile(lockPath, []byte("not a pid\n"), 0600); err != nil {
		t.Fatalf("Failed to create garbage lockfile: %v", err)
	}

	lock := New(lockPath)
	if err := lock.TryAcquire(); err != nil {
		t.Fatalf("Failed to acquire lock over garbage lockfile: %v", err)
	}
	defer lock.Release()
}

func TestLockfile_RunningOwnerKeepsAgedLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "test.lock")

	// An old timestamp does not make a lock stale while its owner runs.
	content := fmt.Sprintf("%d\n%s\n", os.Getpid(), time.Now().Add(-2*time.Hour).Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to create old lockfile: %v", err)
	}

	lock := New(lockPath)
	if err := lock.TryAcquire(); !errors.Is(err, ErrLocked) {
		t.Fatalf("Expected ErrLocked for a running owner, got: %v", err)
	}
}

func TestLockfile_ReleaseNotLocked(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "test.lock")
	lock := New(lockPath)

	// Releasing an unlocked lock should be a no-op
	if err := lock.Release(); err != nil {
		t.Errorf("Expected no error when releasing unlocked lock, got: %v", err)
	}
}
