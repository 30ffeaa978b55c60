// Package gate serializes access to the scoring backend. The backend is a
// single stateful resource (one accelerator, one loaded model), so exactly
// one call may be in flight across all jobs, granted in FIFO order.
package gate

import (
	"context"
	"sync"
)

// Gate is an explicit single-flight handle. Every job runner must acquire
// the same Gate instance before calling the backend; it is passed around,
// never a hidden singleton.
type Gate struct {
	mu    sync.Mutex
	busy  bool
	queue []chan struct{}
}

// New returns an idle gate.
func New() *Gate {
	return &Gate{}
}

// Acquire blocks until the caller holds the gate or ctx is done. Waiters
// are granted strictly in arrival order.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if !g.busy {
		g.busy = true
		g.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	g.queue = append(g.queue, ready)
	g.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, ch := range g.queue {
			if ch == ready {
				g.queue = append(g.queue[:i], g.queue[i+1:]...)
				g.mu.Unlock()
				return ctx.Err()
			}
		}
		g.mu.Unlock()
		// The slot was granted concurrently with cancellation; hand it on.
		g.Release()
		return ctx.Err()
	}
}

// Release hands the gate to the oldest waiter, or marks it idle.
func (g *Gate) Release() {
	g.mu.Lock()
	if len(g.queue) > 0 {
		next := g.queue[0]
		g.queue = g.queue[1:]
		g.mu.Unlock()
		close(next)
		return
	}
	g.busy = false
	g.mu.Unlock()
}
