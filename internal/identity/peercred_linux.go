//go:build linux

package identity

import (
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// peerProcess returns the pid and executable name of the process on the
// other end of a Unix domain socket connection. The pid comes from the
// kernel via SO_PEERCRED; the name from /proc/<pid>/comm. A pid that has
// already exited yields an empty name rather than an error.
func peerProcess(conn net.Conn) (int, string, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, "", fmt.Errorf("peer credentials require a Unix socket connection, got %T", conn)
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, "", fmt.Errorf("failed to access raw connection: %w", err)
	}

	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return 0, "", fmt.Errorf("failed to control raw connection: %w", err)
	}
	if credErr != nil {
		return 0, "", fmt.Errorf("failed to read peer credentials: %w", credErr)
	}

	pid := int(cred.Pid)
	name, err := processName(pid)
	if err != nil {
		return pid, "", nil
	}
	return pid, name, nil
}

// processName reads the executable name for a pid.
func processName(pid int) (string, error) {
	comm, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return "", fmt.Errorf("failed to read process name for pid %d: %w", pid, err)
	}
	return strings.TrimSpace(string(comm)), nil
}
