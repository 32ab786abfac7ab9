// Package diag serves the daemon's debug surface over HTTP: the standard
// pprof profiles plus a live bridge status snapshot under /debug/bridge.
// The surface carries no authentication; bind it to loopback only.
package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	netpprof "net/http/pprof"
	"sync"

	"github.com/codefionn/extbridge/internal/consts"
	"github.com/codefionn/extbridge/internal/logger"
)

// StatusFunc returns the payload served at /debug/bridge.
type StatusFunc func() interface{}

// Server exposes profiling endpoints and the bridge status.
type Server struct {
	addr   string
	status StatusFunc

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	stopping bool
}

// NewServer creates a debug server for the given TCP address. status may
// be nil, which disables the /debug/bridge endpoint.
func NewServer(addr string, status StatusFunc) *Server {
	return &Server{
		addr:   addr,
		status: status,
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return fmt.Errorf("debug server is already running")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", netpprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", netpprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", netpprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", netpprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", netpprof.Trace)
	mux.Handle("/debug/pprof/goroutine", netpprof.Handler("goroutine"))
	mux.Handle("/debug/pprof/heap", netpprof.Handler("heap"))
	mux.Handle("/debug/pprof/block", netpprof.Handler("block"))
	mux.Handle("/debug/pprof/mutex", netpprof.Handler("mutex"))
	mux.Handle("/debug/pprof/threadcreate", netpprof.Handler("threadcreate"))
	if s.status != nil {
		mux.HandleFunc("/debug/bridge", s.handleStatus)
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind debug server: %w", err)
	}
	s.listener = ln
	s.server = &http.Server{Handler: mux}
	s.stopping = false

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("Debug server error: %v", err)
		}
	}(s.server)

	logger.Info("Debug server listening on http://%s/debug/pprof/", ln.Addr())
	return nil
}

// Addr returns the bound address, empty before Start. With a ":0" address
// this is where the listener actually landed.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.status()); err != nil {
		logger.Warn("Failed to encode bridge status: %v", err)
	}
}

// Stop shuts the server down, waiting briefly for in-flight requests.
// Safe to call more than once.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping || s.server == nil {
		return nil
	}
	s.stopping = true

	ctx, cancel := context.WithTimeout(context.Background(), consts.Timeout5Seconds)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown debug server: %w", err)
	}
	s.server = nil
	s.listener = nil
	return nil
}
