package launch

import (
	"context"
	"errors"
	"time"
)

// defaultPollInterval bounds each native wait when the caller can cancel.
const defaultPollInterval = 250 * time.Millisecond

// GateOptions tune the readiness wait.
type GateOptions struct {
	// Timeout bounds each readiness wait. Zero waits forever.
	Timeout time.Duration
	// PollInterval is the slice length of each native wait when the context
	// is cancellable or a timeout is set.
	PollInterval time.Duration
}

// Gate is the readiness rendezvous for one launch. It wraps a single named
// auto-reset event that is waited on and reset once per injected module.
type Gate struct {
	name   string
	ev     Event
	opts   GateOptions
	closed bool
}

// OpenGate opens or creates the named event through p.
func OpenGate(p Platform, name string, opts GateOptions) (*Gate, error) {
	if name == "" {
		name = DefaultEventName
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	ev, err := p.OpenOrCreateNamedEvent(name)
	if err != nil {
		return nil, &GateError{Name: name, Err: err}
	}
	return &Gate{name: name, ev: ev, opts: opts}, nil
}

// Name returns the event name shared with the injected modules.
func (g *Gate) Name() string { return g.name }

// Wait blocks until the event is signalled for module.
//
// With a context that can never be cancelled and no timeout, this is a single
// unbounded native wait. Otherwise the wait is split into PollInterval slices
// and the context is checked between them.
func (g *Gate) Wait(ctx context.Context, module string) error {
	if g.closed {
		return &SignalWaitError{Module: module, Err: errors.New("gate is closed")}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if ctx.Done() == nil && g.opts.Timeout <= 0 {
		ok, err := g.ev.Wait(WaitForever)
		if err != nil {
			return &SignalWaitError{Module: module, Err: err}
		}
		if !ok {
			return &SignalWaitError{Module: module, Err: errors.New("unbounded wait returned without signal")}
		}
		return nil
	}

	start := time.Now()
	for {
		slice := g.opts.PollInterval
		if g.opts.Timeout > 0 {
			remaining := g.opts.Timeout - time.Since(start)
			if remaining <= 0 {
				return &InjectionTimeoutError{Module: module, After: g.opts.Timeout}
			}
			if remaining < slice {
				slice = remaining
			}
		}

		ok, err := g.ev.Wait(slice)
		if err != nil {
			return &SignalWaitError{Module: module, Err: err}
		}
		if ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Reset clears the signalled state so the next module can reuse the event.
func (g *Gate) Reset() error {
	if g.closed {
		return errors.New("gate is closed")
	}
	return g.ev.Reset()
}

// Close releases the event. Calling it again is a no-op.
func (g *Gate) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	return g.ev.Close()
}
