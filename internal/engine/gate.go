// internal/engine/gate.go
package engine

import (
	"context"
	"sync"
)

// Gate is the cooperative pause primitive. Every suspension point in the
// per-conversation loop calls Wait before touching the page; while an
// operator holds manual control, Wait blocks until control is released.
type Gate struct {
	mu     sync.Mutex
	closed bool
	ready  chan struct{}
}

func NewGate() *Gate {
	g := &Gate{ready: make(chan struct{})}
	close(g.ready)
	return g
}

// Close pauses the automation. Idempotent.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.closed = true
		g.ready = make(chan struct{})
	}
}

// Open resumes the automation. Idempotent.
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		g.closed = false
		close(g.ready)
	}
}

// Closed reports whether an operator currently holds control.
func (g *Gate) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Wait blocks while the gate is closed. It returns the context error on
// cancellation so teardown is never delayed by a held gate.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ready := g.ready
	g.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
