package bridge

import (
	"github.com/codefionn/extbridge/internal/identity"
	"github.com/codefionn/extbridge/internal/protocol"
)

// Handler receives lifecycle and request callbacks from the bridge.
//
// RequestReceived is serialized per connection: the next request on the
// same connection is not delivered until the host calls SupplyResult for
// the current one. Callbacks for different connections run concurrently,
// so implementations must be safe for concurrent use. A handler that needs
// to do slow work should hand the request off to its own goroutine and
// call SupplyResult when done.
type Handler interface {
	// ConnectionActivated fires once when a connection's identity is
	// resolved and it becomes active.
	ConnectionActivated(connID uint64, ident identity.Identity)

	// RequestReceived hands the host one decoded request. The connection
	// delivers nothing further until SupplyResult is called for connID.
	RequestReceived(connID uint64, req protocol.Request)

	// ConnectionClosed fires exactly once for every connection that was
	// previously activated.
	ConnectionClosed(connID uint64)
}
