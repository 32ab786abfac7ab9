package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/codefionn/extbridge/internal/logger"
)

// PeerResolver resolves identities from kernel peer credentials. Profiles
// are indexed by executable name; a peer whose executable matches no profile
// still resolves, with only the observed name and pid filled in.
type PeerResolver struct {
	mu    sync.RWMutex
	index map[string]Profile
}

// NewPeerResolver creates a resolver for the given profiles, keyed by
// executable name.
func NewPeerResolver(profiles map[string]Profile) *PeerResolver {
	r := &PeerResolver{}
	r.SetProfiles(profiles)
	return r
}

// SetProfiles replaces the profile set. Used when the configuration file
// is reloaded.
func (r *PeerResolver) SetProfiles(profiles map[string]Profile) {
	index := make(map[string]Profile, len(profiles))
	for name, profile := range profiles {
		index[name] = profile
		for _, alias := range profile.AppNames {
			index[alias] = profile
		}
	}

	r.mu.Lock()
	r.index = index
	r.mu.Unlock()
}

// Resolve looks up the peer process behind conn and matches it against the
// configured profiles.
func (r *PeerResolver) Resolve(ctx context.Context, conn net.Conn) (Identity, error) {
	pid, name, err := peerProcess(conn)
	if err != nil {
		if errors.Is(err, ErrPeerCredentialsUnsupported) {
			logger.Debug("Peer credentials unavailable, treating peer as anonymous")
			return Identity{}, nil
		}
		return Identity{}, fmt.Errorf("failed to resolve peer process: %w", err)
	}

	ident := Identity{
		AppName: name,
		PID:     pid,
	}

	r.mu.RLock()
	profile, ok := r.index[name]
	r.mu.RUnlock()

	if ok {
		ident.ExtensionName = profile.ExtensionName
		ident.SupportsNotifications = profile.SupportsNotifications
	} else {
		logger.Debug("No extension profile for peer %q (pid %d)", name, pid)
	}

	return ident, nil
}

// Static resolves every connection to the same identity. Used where peers
// are launched by a single known application, and by tests.
type Static struct {
	Identity Identity
}

// Resolve returns the fixed identity.
func (s Static) Resolve(ctx context.Context, conn net.Conn) (Identity, error) {
	return s.Identity, nil
}
