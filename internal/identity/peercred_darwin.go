//go:build darwin

package identity

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// peerProcess returns the pid and executable name of the process on the
// other end of a Unix domain socket connection. The pid comes from the
// kernel via LOCAL_PEERPID; the name from the kern.proc.pid sysctl. A pid
// that has already exited yields an empty name rather than an error.
func peerProcess(conn net.Conn) (int, string, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, "", fmt.Errorf("peer credentials require a Unix socket connection, got %T", conn)
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, "", fmt.Errorf("failed to access raw connection: %w", err)
	}

	var pid int
	var pidErr error
	if err := raw.Control(func(fd uintptr) {
		pid, pidErr = unix.GetsockoptInt(int(fd), unix.SOL_LOCAL, unix.LOCAL_PEERPID)
	}); err != nil {
		return 0, "", fmt.Errorf("failed to control raw connection: %w", err)
	}
	if pidErr != nil {
		return 0, "", fmt.Errorf("failed to read peer pid: %w", pidErr)
	}

	name, err := processName(pid)
	if err != nil {
		return pid, "", nil
	}
	return pid, name, nil
}

// processName reads the executable name for a pid.
func processName(pid int) (string, error) {
	kinfo, err := unix.SysctlKinfoProc("kern.proc.pid", pid)
	if err != nil {
		return "", fmt.Errorf("failed to read process info for pid %d: %w", pid, err)
	}

	comm := make([]byte, 0, len(kinfo.Proc.P_comm))
	for _, c := range kinfo.Proc.P_comm {
		if c == 0 {
			break
		}
		comm = append(comm, byte(c))
	}
	return string(comm), nil
}
