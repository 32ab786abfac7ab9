//go:build windows

package socketpath

import (
	"context"
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"

	"github.com/codefionn/extbridge/internal/logger"
)

// Listen binds a named pipe at the given address. The permissions string is
// a Unix concept and is ignored here; pipe access control comes from the
// default security descriptor.
func Listen(path string, permissions string) (net.Listener, string, error) {
	resolved, err := Resolve(path)
	if err != nil {
		return nil, "", err
	}
	if err := Validate(resolved); err != nil {
		return nil, "", err
	}
	if permissions != "" {
		logger.Debug("Socket permissions %q ignored for named pipes", permissions)
	}

	listener, err := winio.ListenPipe(resolved, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to listen on named pipe %s: %w", resolved, err)
	}
	return listener, resolved, nil
}

// Dial connects to the named pipe at the given address.
func Dial(ctx context.Context, path string) (net.Conn, error) {
	resolved, err := Resolve(path)
	if err != nil {
		return nil, err
	}
	conn, err := winio.DialPipeContext(ctx, resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to named pipe %s: %w", resolved, err)
	}
	return conn, nil
}

// Cleanup is a no-op for named pipes; they disappear with the listener.
func Cleanup(path string) error {
	return nil
}
