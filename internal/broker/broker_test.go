package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/extbridge/internal/identity"
	"github.com/codefionn/extbridge/internal/protocol"
)

type sinkResult struct {
	connID  uint64
	payload []byte
}

type fakeSink struct {
	results    chan sinkResult
	broadcasts chan []byte
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		results:    make(chan sinkResult, 16),
		broadcasts: make(chan []byte, 16),
	}
}

func (s *fakeSink) SupplyResult(connID uint64, payload []byte) {
	s.results <- sinkResult{connID: connID, payload: payload}
}

func (s *fakeSink) Broadcast(payload []byte) {
	s.broadcasts <- payload
}

func (s *fakeSink) waitResult(t *testing.T) sinkResult {
	t.Helper()
	select {
	case r := <-s.results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
		return sinkResult{}
	}
}

func (s *fakeSink) waitBroadcast(t *testing.T) Event {
	t.Helper()
	select {
	case payload := <-s.broadcasts:
		var ev Event
		require.NoError(t, json.Unmarshal(payload, &ev))
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for broadcast")
		return Event{}
	}
}

func (s *fakeSink) expectNoBroadcast(t *testing.T) {
	t.Helper()
	select {
	case payload := <-s.broadcasts:
		t.Fatalf("unexpected broadcast: %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func makeRequest(t *testing.T, body string) protocol.Request {
	t.Helper()
	req, err := protocol.ParseRequest([]byte(body))
	require.NoError(t, err)
	return req
}

func decodeResult(t *testing.T, payload []byte) Result {
	t.Helper()
	var result Result
	require.NoError(t, json.Unmarshal(payload, &result))
	return result
}

func TestBrokerPingAction(t *testing.T) {
	sink := newFakeSink()
	b := New()
	b.SetSink(sink)

	b.RequestReceived(7, makeRequest(t, `{"action":"ping","clientID":"c1","requestID":"req-1"}`))

	got := sink.waitResult(t)
	assert.Equal(t, uint64(7), got.connID)

	result := decodeResult(t, got.payload)
	assert.True(t, result.Success)
	assert.Equal(t, protocol.ActionPing, result.Action)
	assert.Equal(t, "req-1", result.RequestID)
	assert.JSONEq(t, `{"pong":true}`, string(result.Data))
	assert.NotEmpty(t, result.Timestamp)
	assert.Nil(t, result.Error)
}

func TestBrokerUnknownAction(t *testing.T) {
	sink := newFakeSink()
	b := New()
	b.SetSink(sink)

	b.RequestReceived(3, makeRequest(t, `{"action":"launch_missiles","clientID":"c1","requestID":"req-9"}`))

	result := decodeResult(t, sink.waitResult(t).payload)
	assert.False(t, result.Success)
	assert.Equal(t, "launch_missiles", result.Action)
	assert.Equal(t, "req-9", result.RequestID)
	require.NotNil(t, result.Error)
	assert.Equal(t, ErrorCodeUnknownAction, result.Error.Code)
}

func TestBrokerHandlerError(t *testing.T) {
	sink := newFakeSink()
	b := New()
	b.SetSink(sink)
	b.Register("explode", func(ctx context.Context, req Request) (interface{}, error) {
		return nil, errors.New("fuse is wet")
	})

	b.RequestReceived(1, makeRequest(t, `{"action":"explode","clientID":"c1","requestID":"req-2"}`))

	result := decodeResult(t, sink.waitResult(t).payload)
	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, ErrorCodeInternalError, result.Error.Code)
	assert.Equal(t, "fuse is wet", result.Error.Details)
}

func TestBrokerCustomHandler(t *testing.T) {
	sink := newFakeSink()
	b := New()
	b.SetSink(sink)

	ident := identity.Identity{AppName: "firefox", ExtensionName: "notes", PID: 4242, SupportsNotifications: true}
	b.ConnectionActivated(5, ident)
	sink.waitBroadcast(t)

	var seen Request
	b.Register("echo", func(ctx context.Context, req Request) (interface{}, error) {
		seen = req
		return map[string]string{"echo": string(req.Data)}, nil
	})

	b.RequestReceived(5, makeRequest(t, `{"action":"echo","clientID":"c1","requestID":"req-3","data":{"text":"hi"}}`))

	result := decodeResult(t, sink.waitResult(t).payload)
	assert.True(t, result.Success)
	assert.Equal(t, "echo", result.Action)
	assert.Equal(t, "req-3", result.RequestID)
	assert.JSONEq(t, `{"echo":"{\"text\":\"hi\"}"}`, string(result.Data))

	assert.Equal(t, uint64(5), seen.ConnID)
	assert.Equal(t, "c1", seen.ClientID)
	assert.Equal(t, "req-3", seen.RequestID)
	assert.Equal(t, ident, seen.Peer)
}

func TestBrokerRequestWithoutEnvelopeFields(t *testing.T) {
	sink := newFakeSink()
	b := New()
	b.SetSink(sink)

	var seen Request
	b.Register("bare", func(ctx context.Context, req Request) (interface{}, error) {
		seen = req
		return nil, nil
	})

	b.RequestReceived(2, makeRequest(t, `{"action":"bare","clientID":"c1"}`))

	result := decodeResult(t, sink.waitResult(t).payload)
	assert.True(t, result.Success)
	assert.Empty(t, result.RequestID)
	assert.Empty(t, result.Data)
	assert.Empty(t, seen.RequestID)
	assert.Nil(t, seen.Data)
}

func TestBrokerStatusReportsPeers(t *testing.T) {
	sink := newFakeSink()
	b := New()
	b.SetSink(sink)

	b.ConnectionActivated(9, identity.Identity{AppName: "chrome", PID: 100})
	sink.waitBroadcast(t)
	b.ConnectionActivated(4, identity.Identity{AppName: "firefox", ExtensionName: "notes", PID: 200, SupportsNotifications: true})
	sink.waitBroadcast(t)

	b.RequestReceived(9, makeRequest(t, `{"action":"status","clientID":"c1","requestID":"req-4"}`))

	result := decodeResult(t, sink.waitResult(t).payload)
	require.True(t, result.Success)

	var status StatusData
	require.NoError(t, json.Unmarshal(result.Data, &status))
	require.Len(t, status.Peers, 2)
	assert.Equal(t, uint64(4), status.Peers[0].ConnID)
	assert.Equal(t, "firefox", status.Peers[0].AppName)
	assert.True(t, status.Peers[0].SupportsNotifications)
	assert.Equal(t, uint64(9), status.Peers[1].ConnID)
	assert.NotEmpty(t, status.Uptime)
}

func TestBrokerLifecycleEvents(t *testing.T) {
	sink := newFakeSink()
	b := New()
	b.SetSink(sink)

	b.ConnectionActivated(11, identity.Identity{AppName: "chrome", ExtensionName: "sync", PID: 321})

	ev := sink.waitBroadcast(t)
	assert.Equal(t, EventPeerConnected, ev.Event)
	assert.NotEmpty(t, ev.EventID)

	var info PeerInfo
	require.NoError(t, json.Unmarshal(ev.Data, &info))
	assert.Equal(t, uint64(11), info.ConnID)
	assert.Equal(t, "chrome", info.AppName)
	assert.Equal(t, "sync", info.ExtensionName)
	assert.Equal(t, 321, info.PID)

	b.ConnectionClosed(11)
	ev = sink.waitBroadcast(t)
	assert.Equal(t, EventPeerDisconnected, ev.Event)

	require.NoError(t, json.Unmarshal(ev.Data, &info))
	assert.Equal(t, uint64(11), info.ConnID)

	// A close for a connection that never activated announces nothing.
	b.ConnectionClosed(99)
	sink.expectNoBroadcast(t)
}

func TestBrokerPublishEvent(t *testing.T) {
	sink := newFakeSink()
	b := New()
	b.SetSink(sink)

	b.PublishEvent("clipboard_changed", map[string]string{"text": "hello"})

	ev := sink.waitBroadcast(t)
	assert.Equal(t, "clipboard_changed", ev.Event)
	assert.NotEmpty(t, ev.EventID)
	assert.NotEmpty(t, ev.Timestamp)
	assert.JSONEq(t, `{"text":"hello"}`, string(ev.Data))
}

func TestBrokerEventIDsAreUnique(t *testing.T) {
	sink := newFakeSink()
	b := New()
	b.SetSink(sink)

	b.PublishEvent("tick", nil)
	b.PublishEvent("tick", nil)

	first := sink.waitBroadcast(t)
	second := sink.waitBroadcast(t)
	assert.NotEqual(t, first.EventID, second.EventID)
}

func TestBrokerWithoutSinkDropsQuietly(t *testing.T) {
	b := New()

	b.RequestReceived(1, makeRequest(t, `{"action":"ping","clientID":"c1"}`))
	b.PublishEvent("tick", nil)
	b.Close()
}

func TestBrokerRegisterReplacesHandler(t *testing.T) {
	sink := newFakeSink()
	b := New()
	b.SetSink(sink)

	b.Register("greet", func(ctx context.Context, req Request) (interface{}, error) {
		return map[string]string{"greeting": "hello"}, nil
	})
	b.Register("greet", func(ctx context.Context, req Request) (interface{}, error) {
		return map[string]string{"greeting": "goodbye"}, nil
	})

	b.RequestReceived(1, makeRequest(t, `{"action":"greet","clientID":"c1"}`))

	result := decodeResult(t, sink.waitResult(t).payload)
	assert.JSONEq(t, `{"greeting":"goodbye"}`, string(result.Data))
}

func TestBrokerCloseWaitsForHandlers(t *testing.T) {
	sink := newFakeSink()
	b := New()
	b.SetSink(sink)

	release := make(chan struct{})
	b.Register("slow", func(ctx context.Context, req Request) (interface{}, error) {
		<-release
		return nil, nil
	})

	b.RequestReceived(1, makeRequest(t, `{"action":"slow","clientID":"c1"}`))

	done := make(chan struct{})
	go func() {
		b.Close()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Close returned while a handler was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return after handler finished")
	}
	sink.waitResult(t)
}
