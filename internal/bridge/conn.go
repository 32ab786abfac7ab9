package bridge

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-metrics"

	"github.com/codefionn/extbridge/internal/consts"
	"github.com/codefionn/extbridge/internal/identity"
	"github.com/codefionn/extbridge/internal/logger"
	"github.com/codefionn/extbridge/internal/protocol"
)

// ConnState tracks a connection through its lifecycle.
type ConnState int32

const (
	// StateConnecting is the initial state; frames are buffered but not
	// delivered until the identity is resolved.
	StateConnecting ConnState = iota

	// StateActive means the identity is fixed and requests flow.
	StateActive

	// StateClosed is terminal.
	StateClosed
)

// String returns the state name.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn owns one peer connection. All protocol rules are enforced here:
// chunk and frame size limits, the client key binding, and the one
// request in flight gate.
type Conn struct {
	id   uint64
	sock net.Conn

	registry *Registry
	handler  Handler

	mu         sync.Mutex
	state      ConnState
	ident      identity.Identity
	clientKey  string
	pending    []byte
	processing bool
	wasActive  bool

	stopOnce sync.Once
}

// newConn wraps an accepted socket. The connection starts in the
// connecting state; call start to begin reading and activate once the
// peer identity is known.
func newConn(id uint64, sock net.Conn, registry *Registry, handler Handler) *Conn {
	return &Conn{
		id:       id,
		sock:     sock,
		registry: registry,
		handler:  handler,
		state:    StateConnecting,
	}
}

// ID returns the connection identifier.
func (c *Conn) ID() uint64 {
	return c.id
}

// State returns the current lifecycle state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns the peer identity fixed at activation. Zero until the
// connection activates.
func (c *Conn) Identity() identity.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ident
}

// ClientKey returns the session key the peer bound with its first keyed
// request, or empty if none arrived yet.
func (c *Conn) ClientKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientKey
}

// start launches the read pump.
func (c *Conn) start() {
	go c.readPump()
}

// readPump reads chunks from the socket until the connection dies.
func (c *Conn) readPump() {
	defer c.destroy()

	buf := make([]byte, consts.MaxChunkLen)
	for {
		n, err := c.sock.Read(buf)
		if n > 0 {
			metrics.IncrCounter(MetricBytesIn, float32(n))
			c.handleData(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info("Connection %d disconnected (EOF)", c.id)
			} else if errors.Is(err, net.ErrClosed) {
				logger.Debug("Connection %d read loop ended: socket closed", c.id)
			} else {
				logger.Warn("Error reading from connection %d: %v", c.id, err)
			}
			return
		}
	}
}

// handleData ingests one chunk of bytes from the socket. Chunks larger
// than a maximum frame are rejected outright; everything else is buffered
// until whole frames can be decoded.
func (c *Conn) handleData(chunk []byte) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	if len(chunk) > consts.MaxChunkLen {
		c.mu.Unlock()
		c.violation("oversized_chunk", "chunk of %d bytes exceeds limit", len(chunk))
		return
	}
	c.pending = append(c.pending, chunk...)

	if c.state == StateConnecting {
		// Frames wait for activation, but a frame that declares an
		// oversized payload is fatal as soon as its prefix arrives.
		_, _, err := protocol.TryDecode(c.pending)
		c.mu.Unlock()
		if err != nil {
			c.violation("oversized_frame", "%v", err)
		}
		return
	}
	c.mu.Unlock()

	c.deliverNext()
}

// deliverNext decodes and delivers the next buffered frame when the
// connection is active and no request is in flight. At most one request
// is handed to the handler; the gate reopens on SupplyResult.
func (c *Conn) deliverNext() {
	c.mu.Lock()
	if c.state != StateActive || c.processing || len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}

	payload, rest, err := protocol.TryDecode(c.pending)
	if err != nil {
		c.mu.Unlock()
		c.violation("oversized_frame", "%v", err)
		return
	}
	if payload == nil {
		// Frame incomplete, wait for more bytes.
		c.mu.Unlock()
		return
	}
	c.pending = rest

	req, err := protocol.ParseRequest(payload)
	if err != nil {
		c.mu.Unlock()
		c.violation("malformed_message", "%v", err)
		return
	}

	if req.ClientID != "" {
		if c.clientKey == "" {
			c.clientKey = req.ClientID
			logger.Debug("Connection %d bound to client key %s", c.id, c.clientKey)
		} else if req.ClientID != c.clientKey {
			c.mu.Unlock()
			c.violation("client_key_mismatch", "client key %q does not match bound key", req.ClientID)
			return
		}
	} else if !req.IsPing() {
		c.mu.Unlock()
		c.violation("missing_client_key", "request without client key, action %q", req.Action)
		return
	}

	c.processing = true
	c.mu.Unlock()

	metrics.IncrCounter(MetricFramesInCount, 1)
	c.handler.RequestReceived(c.id, req)
}

// activate fixes the peer identity and transitions to the active state.
// Frames that arrived during resolution are delivered in order afterwards.
func (c *Conn) activate(ident identity.Identity) {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateActive
	c.ident = ident
	c.wasActive = true
	c.mu.Unlock()

	logger.Info("Connection %d activated: app=%s extension=%s pid=%d notifications=%v",
		c.id, ident.AppName, ident.ExtensionName, ident.PID, ident.SupportsNotifications)
	metrics.IncrCounterWithLabels(MetricConnsActivated, 1,
		[]metrics.Label{LabelPeerApp.M(ident.AppName)})

	c.handler.ConnectionActivated(c.id, ident)
	c.deliverNext()
}

// SupplyResult completes the request currently in flight: the payload is
// framed and written to the peer, then delivery of buffered frames
// resumes. Results for connections that are not active, or that have no
// request in flight, are dropped with a warning. An oversized result is
// dropped the same way, but still reopens the gate.
func (c *Conn) SupplyResult(payload []byte) {
	c.mu.Lock()
	if c.state != StateActive {
		state := c.state
		c.mu.Unlock()
		logger.Warn("Result for connection %d dropped: connection is %s", c.id, state)
		metrics.IncrCounter(MetricResultsDropped, 1)
		return
	}
	if !c.processing {
		c.mu.Unlock()
		logger.Warn("Result for connection %d dropped: no request in flight", c.id)
		metrics.IncrCounter(MetricResultsDropped, 1)
		return
	}
	c.processing = false

	if len(payload) > consts.MaxFramePayload {
		c.mu.Unlock()
		logger.Warn("Result for connection %d dropped: %d bytes exceeds frame limit", c.id, len(payload))
		metrics.IncrCounter(MetricResultsDropped, 1)
		c.deliverNext()
		return
	}

	err := c.writeFrame(payload)
	c.mu.Unlock()
	if err != nil {
		logger.Warn("Failed to write result to connection %d: %v", c.id, err)
		c.destroy()
		return
	}

	metrics.IncrCounter(MetricFramesOutCount, 1)
	c.deliverNext()
}

// sendEvent writes a broadcast frame if the connection is active and the
// peer supports notifications. Events ignore the request gate.
func (c *Conn) sendEvent(payload []byte) {
	c.mu.Lock()
	if c.state != StateActive || !c.ident.SupportsNotifications {
		c.mu.Unlock()
		return
	}
	err := c.writeFrame(payload)
	c.mu.Unlock()
	if err != nil {
		logger.Warn("Failed to send event to connection %d: %v", c.id, err)
		c.destroy()
		return
	}
	metrics.IncrCounter(MetricBroadcastsCount, 1)
}

// writeFrame writes one framed payload to the socket. Caller holds c.mu.
func (c *Conn) writeFrame(payload []byte) error {
	if err := c.sock.SetWriteDeadline(time.Now().Add(consts.Timeout10Seconds)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := protocol.WriteFrame(c.sock, payload); err != nil {
		return err
	}
	metrics.IncrCounter(MetricBytesOut, float32(consts.FramePrefixLen+len(payload)))
	return nil
}

// violation handles a fatal protocol error: log it, count it, and destroy
// the connection. The peer gets no diagnostic; the socket just closes.
func (c *Conn) violation(reason, format string, args ...interface{}) {
	logger.Warn("Protocol violation on connection %d: %s", c.id, fmt.Sprintf(format, args...))
	metrics.IncrCounterWithLabels(MetricViolationsCount, 1,
		[]metrics.Label{LabelReason.M(reason)})
	c.destroy()
}

// Destroy tears the connection down. Safe to call multiple times and from
// any goroutine.
func (c *Conn) Destroy() {
	c.destroy()
}

func (c *Conn) destroy() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		wasActive := c.wasActive
		c.state = StateClosed
		c.pending = nil
		c.processing = false
		c.mu.Unlock()

		if c.sock != nil {
			c.sock.Close()
		}

		c.registry.Remove(c.id)
		metrics.SetGauge(MetricConnsActive, float32(c.registry.Count()))

		// The host first hears about a connection at activation, so only
		// activated connections report a close.
		if wasActive {
			c.handler.ConnectionClosed(c.id)
		}

		logger.Info("Connection %d closed", c.id)
	})
}
