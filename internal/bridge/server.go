package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-metrics"

	"github.com/codefionn/extbridge/internal/config"
	"github.com/codefionn/extbridge/internal/consts"
	"github.com/codefionn/extbridge/internal/identity"
	"github.com/codefionn/extbridge/internal/logger"
	"github.com/codefionn/extbridge/internal/socketpath"
)

// Server accepts peer connections on the local socket and routes their
// requests to the handler.
type Server struct {
	cfg      *config.Config
	handler  Handler
	resolver identity.Resolver

	registry *Registry

	listener   net.Listener
	socketPath string

	mu      sync.Mutex
	running bool

	// Connection ID counter; ids are never reused
	connIDCounter uint64
	connIDMu      sync.Mutex

	maxConns int

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewServer creates a bridge server. The handler receives lifecycle and
// request callbacks; the resolver derives peer identities at activation.
func NewServer(cfg *config.Config, handler Handler, resolver identity.Resolver) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("identity resolver is required")
	}

	server := &Server{
		cfg:      cfg,
		handler:  handler,
		resolver: resolver,
		registry: NewRegistry(),
		maxConns: consts.DefaultMaxConnections,
		stopChan: make(chan struct{}),
	}

	if cfg.Socket.MaxConnections > 0 {
		server.maxConns = cfg.Socket.MaxConnections
	}

	return server, nil
}

// Start binds the socket and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	listener, absPath, err := socketpath.Listen(s.cfg.Socket.GetSocketPath(), s.cfg.Socket.Permissions)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("failed to start socket listener: %w", err)
	}
	s.listener = listener
	s.socketPath = absPath

	go s.acceptLoop(ctx)

	logger.Info("Bridge listening on %s (max connections: %d)", absPath, s.maxConns)
	return nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("Accept loop stopped via context cancellation")
			return

		case <-s.stopChan:
			logger.Info("Accept loop stopped via stop signal")
			return

		default:
			// Set accept timeout to allow checking stopChan periodically.
			// Named pipe listeners have no deadline; they unblock on Close.
			if ul, ok := s.listener.(*net.UnixListener); ok {
				ul.SetDeadline(time.Now().Add(consts.Timeout1Second))
			}

			netConn, err := s.listener.Accept()
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if isClosedError(err) {
					logger.Info("Socket listener closed")
					return
				}
				logger.Error("Failed to accept connection: %v", err)
				continue
			}

			if !s.checkConnectionLimit() {
				logger.Warn("Connection limit reached (%d), rejecting connection", s.maxConns)
				metrics.IncrCounter(MetricConnsRejected, 1)
				netConn.Close()
				continue
			}

			s.handleConnection(ctx, netConn)
		}
	}
}

// checkConnectionLimit reports whether a new connection may be admitted.
func (s *Server) checkConnectionLimit() bool {
	return s.registry.Count() < s.maxConns
}

// handleConnection registers a new connection and starts identity
// resolution. Bytes the peer sends before activation are buffered.
func (s *Server) handleConnection(ctx context.Context, netConn net.Conn) {
	s.connIDMu.Lock()
	s.connIDCounter++
	connID := s.connIDCounter
	s.connIDMu.Unlock()

	conn := newConn(connID, netConn, s.registry, s.handler)
	s.registry.Add(conn)

	metrics.IncrCounter(MetricConnsAccepted, 1)
	metrics.SetGauge(MetricConnsActive, float32(s.registry.Count()))

	logger.Info("Connection %d accepted", connID)

	conn.start()
	go s.activateConn(ctx, conn, netConn)
}

// activateConn resolves the peer identity and activates the connection.
// Resolution failure or timeout destroys the connection before the host
// ever hears about it.
func (s *Server) activateConn(ctx context.Context, conn *Conn, netConn net.Conn) {
	if timeout := s.cfg.ActivationTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ident, err := s.resolver.Resolve(ctx, netConn)
	if err != nil {
		logger.Warn("Failed to resolve identity for connection %d: %v", conn.ID(), err)
		conn.Destroy()
		return
	}

	conn.activate(ident)
}

// SupplyResult completes the request in flight on a connection. Results
// for unknown connection ids are logged and dropped.
func (s *Server) SupplyResult(connID uint64, payload []byte) {
	conn, ok := s.registry.Get(connID)
	if !ok {
		logger.Warn("Result for unknown connection %d dropped", connID)
		metrics.IncrCounter(MetricResultsDropped, 1)
		return
	}
	conn.SupplyResult(payload)
}

// Broadcast sends an event frame to every active connection whose peer
// supports notifications. Requests in flight are not disturbed. An
// oversized payload is dropped with a warning.
func (s *Server) Broadcast(payload []byte) {
	if len(payload) > consts.MaxFramePayload {
		logger.Warn("Broadcast of %d bytes dropped: exceeds frame limit", len(payload))
		return
	}
	for _, conn := range s.registry.All() {
		conn.sendEvent(payload)
	}
}

// DestroyConnection force-closes one connection. Unknown ids are ignored.
func (s *Server) DestroyConnection(connID uint64) {
	if conn, ok := s.registry.Get(connID); ok {
		conn.Destroy()
	}
}

// Connection returns the connection with the given id.
func (s *Server) Connection(connID uint64) (*Conn, bool) {
	return s.registry.Get(connID)
}

// ConnectionCount returns the number of live connections.
func (s *Server) ConnectionCount() int {
	return s.registry.Count()
}

// SocketPath returns the resolved listen address, empty before Start.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Stop shuts the server down: stops accepting, destroys every connection,
// and removes the socket file. Safe to call more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		logger.Info("Stopping bridge server...")

		close(s.stopChan)

		for _, conn := range s.registry.All() {
			conn.Destroy()
		}

		if s.listener != nil {
			if err := s.listener.Close(); err != nil && !isClosedError(err) {
				logger.Error("Error closing socket listener: %v", err)
			}
		}

		if s.socketPath != "" {
			if err := socketpath.Cleanup(s.socketPath); err != nil {
				logger.Warn("Failed to remove socket file: %v", err)
			}
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()

		logger.Info("Bridge server stopped")
	})
	return nil
}

// isClosedError checks if an error indicates a closed listener
func isClosedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	return strings.Contains(err.Error(), "closed")
}
