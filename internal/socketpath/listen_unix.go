//go:build !windows

package socketpath

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/codefionn/extbridge/internal/logger"
)

// staleProbeTimeout bounds the connect attempt used to tell a live socket
// from a stale file left by a crashed process.
const staleProbeTimeout = 1 * time.Second

// Listen binds a Unix domain socket at the resolved address. A stale socket
// file left behind by a dead process is removed; a socket with a live
// listener fails with ErrSocketInUse. Returns the listener and the resolved
// path for later cleanup.
func Listen(path string, permissions string) (net.Listener, string, error) {
	absPath, err := Resolve(path)
	if err != nil {
		return nil, "", err
	}
	if err := Validate(absPath); err != nil {
		return nil, "", err
	}

	// Ensure parent directory exists
	parentDir := filepath.Dir(absPath)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create parent directory %s: %w", parentDir, err)
	}

	if err := removeStaleSocket(absPath); err != nil {
		return nil, "", err
	}

	listener, err := net.Listen("unix", absPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to listen on Unix socket %s: %w", absPath, err)
	}

	// Set socket file permissions if specified
	if permissions != "" {
		if err := os.Chmod(absPath, parseFileMode(permissions)); err != nil {
			logger.Warn("Failed to set socket permissions: %v", err)
		} else {
			logger.Info("Socket permissions set to %s", permissions)
		}
	}

	return listener, absPath, nil
}

// removeStaleSocket deletes a leftover socket file unless a listener still
// answers on it.
func removeStaleSocket(absPath string) error {
	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to check socket file: %w", err)
	}

	if stat.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("refusing to remove %s: file exists but is not a socket", absPath)
	}

	conn, err := net.DialTimeout("unix", absPath, staleProbeTimeout)
	if err == nil {
		conn.Close()
		return fmt.Errorf("%w: %s", ErrSocketInUse, absPath)
	}

	logger.Info("Removing stale socket file: %s", absPath)
	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket file: %w", err)
	}
	return nil
}

// Dial connects to the Unix domain socket at the resolved address.
func Dial(ctx context.Context, path string) (net.Conn, error) {
	absPath, err := Resolve(path)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket %s: %w", absPath, err)
	}
	return conn, nil
}

// Cleanup removes the socket file after the listener is closed.
func Cleanup(path string) error {
	absPath, err := Resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove socket file %s: %w", absPath, err)
	}
	return nil
}
