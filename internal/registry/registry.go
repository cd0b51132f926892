// Package registry tracks every currently-connected client so the server can
// wait for them to drain, or half-close all of them at once, during
// shutdown.
package registry

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"
)

// halfCloser is satisfied by *net.TCPConn. Shutdown only needs the read
// half closed so a blocked service goroutine observes EOF on its next read.
type halfCloser interface {
	CloseRead() error
}

// Registry is a thread-safe set of live connections, each tagged with a
// correlation id for logging.
type Registry struct {
	mu    sync.Mutex
	conns map[uuid.UUID]net.Conn
	wg    sync.WaitGroup
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{conns: make(map[uuid.UUID]net.Conn)}
}

// Register adds conn to the registry and returns its correlation id.
func (r *Registry) Register(conn net.Conn) uuid.UUID {
	id := uuid.New()

	r.mu.Lock()
	r.conns[id] = conn
	r.mu.Unlock()

	r.wg.Add(1)
	return id
}

// Unregister removes the connection tagged id. It is safe to call at most
// once per id returned by Register.
func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	_, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()

	if ok {
		r.wg.Done()
	}
}

// Count returns the number of currently registered connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// WaitForEmpty blocks until every registered connection has been
// unregistered, or ctx is done.
func (r *Registry) WaitForEmpty(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShutdownAll half-closes every registered connection's read side, so any
// service goroutine blocked reading from it observes EOF and can unwind on
// its own.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	conns := make([]net.Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		if hc, ok := c.(halfCloser); ok {
			hc.CloseRead()
		} else {
			c.Close()
		}
	}
}
