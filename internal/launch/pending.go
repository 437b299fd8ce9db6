package launch

import (
	"errors"
	"sync"
)

// ErrInFlight is returned by Pending.Result before the launch has finished.
var ErrInFlight = errors.New("launch still in progress")

// Pending is the handle of a launch running on a worker goroutine.
type Pending struct {
	id   string
	done chan struct{}

	mu  sync.Mutex
	res *Result
	err error
}

func newPending(id string) *Pending {
	return &Pending{id: id, done: make(chan struct{})}
}

// ID returns the launch ID assigned before the worker started.
func (p *Pending) ID() string { return p.id }

// Done is closed when the launch has finished, successfully or not.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the launch finishes and returns its outcome.
func (p *Pending) Wait() (*Result, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.res, p.err
}

// Result returns the outcome without blocking, or ErrInFlight while the
// launch is still running.
func (p *Pending) Result() (*Result, error) {
	if !p.Finished() {
		return nil, ErrInFlight
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.res, p.err
}

// Finished reports whether the launch has completed without blocking.
func (p *Pending) Finished() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Pending) complete(res *Result, err error) {
	p.mu.Lock()
	p.res, p.err = res, err
	p.mu.Unlock()
	close(p.done)
}
