// Package bridgeclient implements the peer side of the bridge protocol:
// it dials the host socket, frames requests, correlates replies by request
// id and surfaces broadcast events through a callback. A client carries a
// single connection; when it drops, the caller builds a new client, since
// a new connection is a new session as far as the host is concerned.
package bridgeclient

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/codefionn/extbridge/internal/consts"
	"github.com/codefionn/extbridge/internal/logger"
	"github.com/codefionn/extbridge/internal/protocol"
	"github.com/codefionn/extbridge/internal/socketpath"
)

// ConnectionState represents the current state of the bridge connection
type ConnectionState int

const (
	// StateDisconnected indicates the client is not connected
	StateDisconnected ConnectionState = iota
	// StateConnecting indicates the client is attempting to connect
	StateConnecting
	// StateConnected indicates the client is connected and the host answered
	StateConnected
	// StateClosed indicates the client has been closed
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds client configuration
type Config struct {
	// SocketPath is the host socket address, a filesystem path or pipe name
	SocketPath string
	// ClientKey is the session key sent as clientID with every request
	ClientKey string
	// ConnectTimeout is the timeout for initial connection
	ConnectTimeout time.Duration
	// RequestTimeout is the default timeout for requests
	RequestTimeout time.Duration
	// WriteTimeout is the timeout for writing frames
	WriteTimeout time.Duration
	// PingInterval is the interval for keepalive pings
	PingInterval time.Duration
}

// DefaultConfig returns a default configuration for the given socket path
// and client key.
func DefaultConfig(socketPath, clientKey string) *Config {
	return &Config{
		SocketPath:     socketPath,
		ClientKey:      clientKey,
		ConnectTimeout: consts.Timeout10Seconds,
		RequestTimeout: consts.Timeout30Seconds,
		WriteTimeout:   consts.Timeout10Seconds,
		PingInterval:   consts.KeepaliveInterval,
	}
}

// Client is one peer connection to the bridge host.
type Client struct {
	config *Config
	log    *logger.Logger

	conn   net.Conn
	connMu sync.RWMutex
	state  atomic.Int32 // ConnectionState

	outgoing chan []byte

	pendingRequests map[string]chan *Result
	requestMu       sync.RWMutex

	// Callbacks, set before Connect. The event callback runs on the read
	// goroutine, so it must not block.
	eventCallback          func(Event)
	stateChangedCallback   func(ConnectionState)
	connectionLostCallback func(error)

	// dialed latches once the pumps start; a client carries one
	// connection for its lifetime.
	dialed atomic.Bool

	wg        sync.WaitGroup
	stopCh    chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client for the given socket path and client key.
func NewClient(socketPath, clientKey string) (*Client, error) {
	return NewClientWithConfig(DefaultConfig(socketPath, clientKey))
}

// NewClientWithConfig creates a client with custom configuration.
func NewClientWithConfig(config *Config) (*Client, error) {
	if config.SocketPath == "" {
		return nil, errors.New("socket path is required")
	}
	if config.ClientKey == "" {
		return nil, errors.New("client key is required")
	}

	client := &Client{
		config:          config,
		log:             logger.Global().WithPrefix("client"),
		outgoing:        make(chan []byte, consts.SendQueueSize),
		pendingRequests: make(map[string]chan *Result),
		stopCh:          make(chan struct{}),
	}
	client.state.Store(int32(StateDisconnected))

	return client, nil
}

// SetEventCallback sets the callback invoked for every broadcast event.
func (c *Client) SetEventCallback(fn func(Event)) {
	c.eventCallback = fn
}

// SetStateChangedCallback sets the callback for connection state changes.
func (c *Client) SetStateChangedCallback(fn func(ConnectionState)) {
	c.stateChangedCallback = fn
}

// SetConnectionLostCallback sets the callback invoked when the connection
// drops without Close being called.
func (c *Client) SetConnectionLostCallback(fn func(error)) {
	c.connectionLostCallback = fn
}

// Connect dials the host and verifies it answers a ping. The ping carries
// the client key, binding the session before any other request. A client
// connects at most once; after the connection drops, create a new client.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		if c.getState() == StateClosed {
			return errors.New("client is closed")
		}
		return errors.New("already connected")
	}
	if c.dialed.Load() {
		c.state.Store(int32(StateDisconnected))
		return errors.New("connection was lost; create a new client")
	}
	c.notifyState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	conn, err := socketpath.Dial(dialCtx, c.config.SocketPath)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}
	c.dialed.Store(true)

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.wg.Add(2)
	go c.readPump(conn)
	go c.writePump(conn)

	if _, err := c.request(ctx, protocol.ActionPing, nil); err != nil {
		c.Close()
		return err
	}

	c.setState(StateConnected)

	c.wg.Add(1)
	go c.pingLoop()

	return nil
}

// Call sends one action request and waits for the host's reply. A failed
// reply is returned as a *BridgeError carrying the host's error code.
func (c *Client) Call(ctx context.Context, action string, data interface{}) (json.RawMessage, error) {
	if c.getState() != StateConnected {
		return nil, NewBridgeError(ErrorCodeNotConnected, "Not connected to bridge", "")
	}

	result, err := c.request(ctx, action, data)
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}

// Ping round-trips a keepalive request.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Call(ctx, protocol.ActionPing, nil)
	return err
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c.getState() == StateConnected
}

// GetState returns the current connection state
func (c *Client) GetState() ConnectionState {
	return c.getState()
}

// Close shuts the connection down and fails any calls still waiting.
// Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		close(c.stopCh)

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()

		c.wg.Wait()
		c.failPending()
	})
	return nil
}

// request writes one envelope and waits for the matching reply. Used by
// Connect before the state reaches Connected, so it does not gate on state.
func (c *Client) request(ctx context.Context, action string, data interface{}) (*Result, error) {
	requestID := uuid.New().String()
	payload, err := json.Marshal(request{
		Action:    action,
		ClientID:  c.config.ClientKey,
		RequestID: requestID,
		Data:      data,
	})
	if err != nil {
		return nil, err
	}

	respCh := make(chan *Result, 1)
	c.requestMu.Lock()
	c.pendingRequests[requestID] = respCh
	c.requestMu.Unlock()

	defer func() {
		c.requestMu.Lock()
		delete(c.pendingRequests, requestID)
		c.requestMu.Unlock()
	}()

	select {
	case c.outgoing <- payload:
	case <-c.stopCh:
		return nil, NewBridgeError(ErrorCodeConnectionClosed, "Client is closed", "")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case result := <-respCh:
		if result == nil {
			return nil, NewBridgeError(ErrorCodeConnectionClosed, "Connection lost", "")
		}
		if result.Error != nil {
			return nil, NewBridgeError(result.Error.Code, result.Error.Message, result.Error.Details)
		}
		return result, nil
	case <-c.stopCh:
		return nil, NewBridgeError(ErrorCodeConnectionClosed, "Client is closed", "")
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.config.RequestTimeout):
		return nil, NewBridgeError(ErrorCodeTimeout, "Request timeout", "")
	}
}

// readPump reads frames until the connection drops.
func (c *Client) readPump(conn net.Conn) {
	defer c.wg.Done()

	for {
		payload, err := protocol.ReadFrame(conn)
		if err != nil {
			c.handleConnectionError(err)
			return
		}
		c.routeFrame(payload)
	}
}

// writePump frames queued payloads onto the connection.
func (c *Client) writePump(conn net.Conn) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			return
		case payload := <-c.outgoing:
			conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := protocol.WriteFrame(conn, payload); err != nil {
				c.handleConnectionError(err)
				return
			}
		}
	}
}

// routeFrame delivers a reply to its waiting call or an event to the
// event callback. A top-level event field marks broadcasts; everything
// else is a result.
func (c *Client) routeFrame(payload []byte) {
	var probe struct {
		Event     string `json:"event"`
		RequestID string `json:"requestID"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		c.log.Warn("Dropping unparseable frame from host: %v", err)
		return
	}

	if probe.Event != "" {
		if c.eventCallback == nil {
			return
		}
		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			c.log.Warn("Dropping malformed event: %v", err)
			return
		}
		c.eventCallback(ev)
		return
	}

	c.requestMu.RLock()
	ch, ok := c.pendingRequests[probe.RequestID]
	c.requestMu.RUnlock()
	if !ok {
		c.log.Debug("Dropping result with no waiting request, id %q", probe.RequestID)
		return
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		c.log.Warn("Dropping malformed result: %v", err)
		return
	}

	select {
	case ch <- &result:
	default:
	}
}

// pingLoop keeps the connection warm so the host never sees it idle.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if c.getState() != StateConnected {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), c.config.RequestTimeout)
			if _, err := c.request(ctx, protocol.ActionPing, nil); err != nil {
				c.log.Debug("Keepalive ping failed: %v", err)
			}
			cancel()
		}
	}
}

// handleConnectionError tears the connection down after a pump failure.
// The first pump to fail wins; later calls and calls after Close no-op.
func (c *Client) handleConnectionError(err error) {
	if c.getState() == StateClosed {
		return
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		return
	}
	c.conn.Close()
	c.conn = nil
	c.connMu.Unlock()

	c.log.Info("Connection to host lost: %v", err)
	c.setState(StateDisconnected)
	c.failPending()

	if c.connectionLostCallback != nil {
		c.connectionLostCallback(err)
	}
}

// failPending wakes every waiting call with a nil result.
func (c *Client) failPending() {
	c.requestMu.Lock()
	for id, ch := range c.pendingRequests {
		select {
		case ch <- nil:
		default:
		}
		delete(c.pendingRequests, id)
	}
	c.requestMu.Unlock()
}

func (c *Client) getState() ConnectionState {
	return ConnectionState(c.state.Load())
}

func (c *Client) setState(state ConnectionState) {
	if ConnectionState(c.state.Swap(int32(state))) != state {
		c.notifyState(state)
	}
}

func (c *Client) notifyState(state ConnectionState) {
	if c.stateChangedCallback != nil {
		c.stateChangedCallback(state)
	}
}
