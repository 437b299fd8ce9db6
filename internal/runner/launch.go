package runner

import (
	"errors"
	"sync"
	"time"

	"github.com/mattjoyce/bxt-launcher/internal/launch"
)

// Launch is one launch started by a Runner.
type Launch struct {
	ID        string
	Profile   string
	StartedAt time.Time

	pending *launch.Pending
	settled chan struct{}

	mu     sync.Mutex
	state  launch.State
	module string
}

// Status is a point-in-time view of a launch.
type Status struct {
	LaunchID  string         `json:"launch_id"`
	Profile   string         `json:"profile"`
	State     string         `json:"state"`
	Module    string         `json:"module,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	Result    *launch.Result `json:"result,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Done is closed once the orchestrator finished.
func (l *Launch) Done() <-chan struct{} { return l.pending.Done() }

// Settled is closed after Done, once history is written and the lock released.
func (l *Launch) Settled() <-chan struct{} { return l.settled }

// Outcome returns the result or launch.ErrInFlight while still running.
func (l *Launch) Outcome() (*launch.Result, error) { return l.pending.Result() }

func (l *Launch) Status() Status {
	l.mu.Lock()
	s := Status{
		LaunchID:  l.ID,
		Profile:   l.Profile,
		State:     l.state.String(),
		Module:    l.module,
		StartedAt: l.StartedAt,
	}
	l.mu.Unlock()

	res, err := l.pending.Result()
	switch {
	case err == nil:
		s.Result = res
	case !errors.Is(err, launch.ErrInFlight):
		s.ErrorKind = launch.KindOf(err)
		s.Error = err.Error()
	}
	return s
}

func (l *Launch) setState(s launch.State, module string) {
	l.mu.Lock()
	l.state = s
	l.module = module
	l.mu.Unlock()
}
