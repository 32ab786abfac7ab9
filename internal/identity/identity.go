// Package identity derives who is on the other end of a local socket
// connection. Attestation is kernel-backed: the peer's pid comes from the
// socket itself (SO_PEERCRED on Linux, LOCAL_PEERPID on macOS) and cannot
// be forged by the peer process. The executable name looked up for that pid
// is matched against configured extension profiles.
package identity

import (
	"context"
	"errors"
	"net"
)

// ErrPeerCredentialsUnsupported indicates the platform offers no kernel
// peer credential lookup. PeerResolver treats such peers as anonymous;
// named pipe deployments wanting richer identities should use Static or
// a custom Resolver.
var ErrPeerCredentialsUnsupported = errors.New("identity: peer credentials are not supported on this platform")

// Identity describes an activated peer connection. The fields are fixed at
// activation time and never change for the lifetime of the connection.
type Identity struct {
	AppName               string `json:"appName"`
	ExtensionName         string `json:"extensionName"`
	PID                   int    `json:"pid"`
	SupportsNotifications bool   `json:"supportsNotifications"`
}

// Profile describes a known extension peer from configuration.
type Profile struct {
	// ExtensionName is the identity reported for matching peers.
	ExtensionName string

	// AppNames lists additional executable names this profile matches,
	// for applications shipping under several binary names.
	AppNames []string

	// SupportsNotifications marks peers that receive broadcast events.
	SupportsNotifications bool
}

// Resolver derives the identity of a connecting peer. Implementations must
// be safe for concurrent use; the bridge resolves every new connection on
// its own goroutine.
type Resolver interface {
	Resolve(ctx context.Context, conn net.Conn) (Identity, error)
}
