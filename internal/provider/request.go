package provider

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// State is the lifecycle state of a TileRequest.
type State int

const (
	Unissued State = iota
	InFlight
	Received
	Failed
)

func (s State) String() string {
	switch s {
	case Unissued:
		return "unissued"
	case InFlight:
		return "in_flight"
	case Received:
		return "received"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// TileRequest tracks one tile from issue to delivery or failure. It is
// owned by the provider goroutine that drives it; callers only observe it.
type TileRequest struct {
	id          uuid.UUID
	level, x, y int

	mu       sync.Mutex
	state    State
	attempts int
	refs     int
	image    *Image
	err      error

	done     chan struct{}
	released chan struct{}
}

func newTileRequest(level, x, y int) *TileRequest {
	return &TileRequest{
		id:       uuid.New(),
		level:    level,
		x:        x,
		y:        y,
		state:    Unissued,
		refs:     1,
		done:     make(chan struct{}),
		released: make(chan struct{}),
	}
}

func (r *TileRequest) ID() string {
	return r.id.String()
}

func (r *TileRequest) Level() int { return r.level }
func (r *TileRequest) X() int     { return r.x }
func (r *TileRequest) Y() int     { return r.y }

func (r *TileRequest) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Attempts is the number of times the request has been issued.
func (r *TileRequest) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Done is closed when the request reaches Received or Failed.
func (r *TileRequest) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the request settles or ctx is done. Giving up on ctx
// does not cancel the request; use Release for that.
func (r *TileRequest) Wait(ctx context.Context) (*Image, error) {
	select {
	case <-r.done:
		return r.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome of a settled request, or ErrNotReady if it is still running.
func (r *TileRequest) Result() (*Image, error) {
	select {
	case <-r.done:
	default:
		return nil, ErrNotReady
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.image, r.err
}

// AddReference registers another owner of the request.
func (r *TileRequest) AddReference() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs > 0 {
		r.refs++
	}
}

// Release drops one reference. When the last one is gone no further retry
// is scheduled; an attempt already in flight still runs to completion.
func (r *TileRequest) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs == 0 {
		return
	}
	r.refs--
	if r.refs == 0 {
		close(r.released)
	}
}

func (r *TileRequest) isReleased() bool {
	select {
	case <-r.released:
		return true
	default:
		return false
	}
}

// beginAttempt moves the request to InFlight and returns the attempt number.
func (r *TileRequest) beginAttempt() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = InFlight
	r.attempts++
	return r.attempts
}

func (r *TileRequest) receive(img *Image) {
	r.mu.Lock()
	r.state = Received
	r.image = img
	r.mu.Unlock()
	close(r.done)
}

func (r *TileRequest) fail(err error) {
	r.mu.Lock()
	r.state = Failed
	r.err = err
	r.mu.Unlock()
	close(r.done)
}
