package provider

import (
	"context"
	"sync"
	"sync/atomic"
)

// Gate is a one-shot readiness future. It settles exactly once, either
// resolved or rejected with a cause, and never changes afterwards.
type Gate struct {
	once  sync.Once
	done  chan struct{}
	ready atomic.Bool
	err   error
}

func NewGate() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Resolve settles the gate successfully. It reports whether this call settled it.
func (g *Gate) Resolve() bool {
	settled := false
	g.once.Do(func() {
		g.ready.Store(true)
		close(g.done)
		settled = true
	})
	return settled
}

// Reject settles the gate with cause. It reports whether this call settled it.
func (g *Gate) Reject(cause error) bool {
	settled := false
	g.once.Do(func() {
		g.err = cause
		close(g.done)
		settled = true
	})
	return settled
}

// Ready is a non-blocking snapshot.
func (g *Gate) Ready() bool {
	return g.ready.Load()
}

// Done is closed once the gate settles.
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// Err returns the rejection cause, or nil while pending or when resolved.
func (g *Gate) Err() error {
	select {
	case <-g.done:
		return g.err
	default:
		return nil
	}
}

// Wait blocks until the gate settles or ctx is done.
func (g *Gate) Wait(ctx context.Context) (bool, error) {
	select {
	case <-g.done:
		if g.err != nil {
			return false, g.err
		}
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
