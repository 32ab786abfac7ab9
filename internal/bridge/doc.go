// Package bridge implements the local socket server that carries framed
// JSON messages between extension peers and a host application.
//
// # Architecture
//
// The server follows the same shape on every platform:
//
//   - Server: binds the local socket (Unix domain socket or named pipe),
//     accepts peers, and assigns monotonically increasing connection ids
//     that are never reused for the lifetime of the process
//   - Registry: tracks live connections by id
//   - Conn: owns one peer connection; buffers incoming bytes, decodes
//     frames, enforces the protocol rules, and serializes request delivery
//
// # Connection lifecycle
//
// A connection moves through three states:
//
//	connecting -> active -> closed
//
// While connecting, incoming frames are buffered but not delivered. The
// identity of the peer (application, extension, pid, notification support)
// is resolved out of band and fixed at activation; it never changes
// afterwards. The host is told about a connection exactly once when it
// activates and exactly once when it closes; connections destroyed before
// activation disappear silently.
//
// # Request gating
//
// Each connection delivers at most one request at a time. The next buffered
// frame is decoded only after the host supplies the result for the current
// one, so a slow host never interleaves replies. Broadcast events bypass
// the gate and go to every active peer that supports notifications.
//
// # Protocol errors
//
// A malformed frame, an oversized frame or chunk, a missing client key, or
// a client key change destroys the offending connection. The peer is not
// sent a diagnostic; the socket just closes. Other connections are never
// affected.
package bridge
