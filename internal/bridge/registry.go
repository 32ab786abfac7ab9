package bridge

import (
	"sync"

	"github.com/codefionn/extbridge/internal/logger"
)

// Registry maintains the set of live connections keyed by connection id.
type Registry struct {
	mu    sync.RWMutex
	conns map[uint64]*Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[uint64]*Conn),
	}
}

// Add registers a connection.
func (r *Registry) Add(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[conn.id] = conn
	logger.Info("Connection %d registered (total: %d)", conn.id, len(r.conns))
}

// Remove drops a connection by id. Reports whether it was present.
func (r *Registry) Remove(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[id]; !ok {
		return false
	}
	delete(r.conns, id)
	logger.Info("Connection %d unregistered (total: %d)", id, len(r.conns))
	return true
}

// Get returns the connection with the given id.
func (r *Registry) Get(id uint64) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[id]
	return conn, ok
}

// All returns a snapshot of the live connections.
func (r *Registry) All() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}
