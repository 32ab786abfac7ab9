// Package socketpath resolves, validates, and binds the local socket
// addresses the bridge listens on: Unix domain socket paths on POSIX
// systems and named pipe paths on Windows.
package socketpath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codefionn/extbridge/internal/consts"
)

// PipePrefix marks a Windows named pipe address.
const PipePrefix = `\\.\pipe\`

var (
	// ErrNotConfigured indicates an empty socket address.
	ErrNotConfigured = errors.New("socketpath: socket path is not configured")

	// ErrAddressTooLong indicates the address exceeds the platform limit.
	ErrAddressTooLong = errors.New("socketpath: socket address exceeds platform limit")

	// ErrSocketInUse indicates another process is already listening on the address.
	ErrSocketInUse = errors.New("socketpath: socket is already in use")
)

// IsPipeName reports whether the address names a Windows pipe.
func IsPipeName(path string) bool {
	return strings.HasPrefix(path, PipePrefix)
}

// Resolve expands ~ and converts the address to an absolute path. Pipe
// names are returned unchanged.
func Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrNotConfigured
	}
	if IsPipeName(path) {
		return path, nil
	}

	// Expand ~ to home directory
	if path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand ~ for socket path: %w", err)
		}
		path = filepath.Join(homeDir, path[1:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return absPath, nil
}

// Validate checks the address against the platform length limit: 104 bytes
// for Unix socket paths, 256 for Windows pipe names.
func Validate(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrNotConfigured
	}
	if IsPipeName(path) {
		if len(path) > consts.MaxPipeNameLen {
			return fmt.Errorf("%w: pipe name is %d bytes, maximum is %d", ErrAddressTooLong, len(path), consts.MaxPipeNameLen)
		}
		return nil
	}
	if len(path) > consts.MaxUnixPathLen {
		return fmt.Errorf("%w: path is %d bytes, maximum is %d", ErrAddressTooLong, len(path), consts.MaxUnixPathLen)
	}
	return nil
}

// parseFileMode parses an octal file mode string
func parseFileMode(modeStr string) os.FileMode {
	var mode uint64
	_, err := fmt.Sscanf(modeStr, "%o", &mode)
	if err != nil {
		return 0600 // Default to rw-------
	}
	return os.FileMode(mode)
}
