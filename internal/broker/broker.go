// Package broker routes decoded bridge requests to registered action
// handlers and publishes peer lifecycle events. It implements
// bridge.Handler; replies and broadcasts flow back through a ResultSink,
// normally the bridge server itself.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/codefionn/extbridge/internal/identity"
	"github.com/codefionn/extbridge/internal/logger"
	"github.com/codefionn/extbridge/internal/protocol"
)

// ResultSink is where the broker writes replies and events.
type ResultSink interface {
	SupplyResult(connID uint64, payload []byte)
	Broadcast(payload []byte)
}

// Request is one decoded action request with its correlation id and the
// identity of the peer that sent it.
type Request struct {
	ConnID    uint64
	Action    string
	ClientID  string
	RequestID string
	Data      json.RawMessage
	Peer      identity.Identity
}

// HandlerFunc handles one action and returns the data for the success
// envelope. Returning an error produces a failure envelope instead. The
// connection delivers no further requests until the handler returns, so
// long work belongs behind the returned data, not in a blocking call.
type HandlerFunc func(ctx context.Context, req Request) (interface{}, error)

// Broker dispatches requests by action name.
type Broker struct {
	mu       sync.RWMutex
	sink     ResultSink
	handlers map[string]HandlerFunc
	peers    map[uint64]identity.Identity

	startedAt time.Time
	wg        sync.WaitGroup
}

// New creates a broker with the built-in ping and status actions
// registered.
func New() *Broker {
	b := &Broker{
		handlers:  make(map[string]HandlerFunc),
		peers:     make(map[uint64]identity.Identity),
		startedAt: time.Now(),
	}
	b.Register(protocol.ActionPing, b.handlePing)
	b.Register(ActionStatus, b.handleStatus)
	return b
}

// SetSink connects the broker to the server it replies through. Must be
// called before the server starts accepting connections.
func (b *Broker) SetSink(sink ResultSink) {
	b.mu.Lock()
	b.sink = sink
	b.mu.Unlock()
}

// Register adds a handler for an action name. A later registration for the
// same action replaces the earlier one.
func (b *Broker) Register(action string, h HandlerFunc) {
	b.mu.Lock()
	b.handlers[action] = h
	b.mu.Unlock()
}

// ConnectionActivated records the peer and announces it to the others.
func (b *Broker) ConnectionActivated(connID uint64, ident identity.Identity) {
	b.mu.Lock()
	b.peers[connID] = ident
	b.mu.Unlock()

	logger.Info("Peer connected: conn=%d app=%s extension=%s", connID, ident.AppName, ident.ExtensionName)
	b.PublishEvent(EventPeerConnected, PeerInfo{
		ConnID:                connID,
		AppName:               ident.AppName,
		ExtensionName:         ident.ExtensionName,
		PID:                   ident.PID,
		SupportsNotifications: ident.SupportsNotifications,
	})
}

// ConnectionClosed forgets the peer and announces the departure.
func (b *Broker) ConnectionClosed(connID uint64) {
	b.mu.Lock()
	ident, ok := b.peers[connID]
	delete(b.peers, connID)
	b.mu.Unlock()

	if !ok {
		return
	}
	logger.Info("Peer disconnected: conn=%d app=%s", connID, ident.AppName)
	b.PublishEvent(EventPeerDisconnected, PeerInfo{
		ConnID:        connID,
		AppName:       ident.AppName,
		ExtensionName: ident.ExtensionName,
		PID:           ident.PID,
	})
}

// RequestReceived decodes the request envelope and dispatches it on its
// own goroutine, keeping the read path free.
func (b *Broker) RequestReceived(connID uint64, preq protocol.Request) {
	var body struct {
		RequestID string          `json:"requestID"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(preq.Body, &body); err != nil {
		// Correlation id and data stay empty; the action may not need them.
		body.RequestID = ""
		body.Data = nil
	}

	b.mu.RLock()
	h, ok := b.handlers[preq.Action]
	ident := b.peers[connID]
	b.mu.RUnlock()

	req := Request{
		ConnID:    connID,
		Action:    preq.Action,
		ClientID:  preq.ClientID,
		RequestID: body.RequestID,
		Data:      body.Data,
		Peer:      ident,
	}

	b.wg.Add(1)
	go b.dispatch(h, ok, req)
}

// dispatch runs one handler and writes the reply.
func (b *Broker) dispatch(h HandlerFunc, known bool, req Request) {
	defer b.wg.Done()

	if !known {
		logger.Warn("No handler for action %q on connection %d", req.Action, req.ConnID)
		b.reply(req, NewErrorResult(req.Action, req.RequestID, ErrorCodeUnknownAction,
			fmt.Sprintf("unknown action %q", req.Action), ""))
		return
	}

	data, err := h(context.Background(), req)
	if err != nil {
		logger.Warn("Handler for action %q failed on connection %d: %v", req.Action, req.ConnID, err)
		b.reply(req, NewErrorResult(req.Action, req.RequestID, ErrorCodeInternalError,
			"action failed", err.Error()))
		return
	}

	raw, err := marshalData(data)
	if err != nil {
		logger.Error("Failed to encode result for action %q: %v", req.Action, err)
		b.reply(req, NewErrorResult(req.Action, req.RequestID, ErrorCodeInternalError,
			"failed to encode result", err.Error()))
		return
	}

	b.reply(req, NewResult(req.Action, req.RequestID, raw))
}

// reply marshals and writes one result envelope.
func (b *Broker) reply(req Request, result *Result) {
	b.mu.RLock()
	sink := b.sink
	b.mu.RUnlock()
	if sink == nil {
		logger.Error("Result for connection %d dropped: no sink configured", req.ConnID)
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		logger.Error("Failed to marshal result for connection %d: %v", req.ConnID, err)
		payload = []byte(`{"success":false,"error":{"code":"INTERNAL_ERROR","message":"failed to marshal result"}}`)
	}
	sink.SupplyResult(req.ConnID, payload)
}

// PublishEvent broadcasts a named event to every notifying peer.
func (b *Broker) PublishEvent(name string, data interface{}) {
	b.mu.RLock()
	sink := b.sink
	b.mu.RUnlock()
	if sink == nil {
		return
	}

	raw, err := marshalData(data)
	if err != nil {
		logger.Warn("Failed to encode event %q: %v", name, err)
		return
	}
	payload, err := json.Marshal(NewEvent(name, raw))
	if err != nil {
		logger.Warn("Failed to marshal event %q: %v", name, err)
		return
	}
	sink.Broadcast(payload)
}

// Peers returns a snapshot of the connected peers sorted by connection id.
func (b *Broker) Peers() []PeerInfo {
	b.mu.RLock()
	peers := make([]PeerInfo, 0, len(b.peers))
	for id, ident := range b.peers {
		peers = append(peers, PeerInfo{
			ConnID:                id,
			AppName:               ident.AppName,
			ExtensionName:         ident.ExtensionName,
			PID:                   ident.PID,
			SupportsNotifications: ident.SupportsNotifications,
		})
	}
	b.mu.RUnlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i].ConnID < peers[j].ConnID })
	return peers
}

// Status snapshots the connected peers and broker uptime.
func (b *Broker) Status() StatusData {
	return StatusData{
		Peers:  b.Peers(),
		Uptime: time.Since(b.startedAt).Round(time.Second).String(),
	}
}

// Close waits for in-flight handlers to finish. Stop the server first so
// no new requests arrive.
func (b *Broker) Close() {
	b.wg.Wait()
}

// handlePing answers the connection keepalive.
func (b *Broker) handlePing(ctx context.Context, req Request) (interface{}, error) {
	return map[string]interface{}{"pong": true}, nil
}

// handleStatus reports the connected peers and broker uptime.
func (b *Broker) handleStatus(ctx context.Context, req Request) (interface{}, error) {
	return b.Status(), nil
}

// marshalData converts handler data to a raw JSON value.
func marshalData(data interface{}) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	if raw, ok := data.(json.RawMessage); ok {
		return raw, nil
	}
	out, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return out, nil
}
