//go:build !linux && !darwin

package identity

import (
	"net"
)

func peerProcess(conn net.Conn) (int, string, error) {
	return 0, "", ErrPeerCredentialsUnsupported
}
