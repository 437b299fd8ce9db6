package launch

import "time"

// State is a step of the launch state machine.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateSpawning
	StateInjecting
	StateAwaitingSignal
	StateResuming
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateSpawning:
		return "spawning"
	case StateInjecting:
		return "injecting"
	case StateAwaitingSignal:
		return "awaiting_signal"
	case StateResuming:
		return "resuming"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Transition describes one state change of a launch.
type Transition struct {
	LaunchID string
	From     State
	To       State
	// Index is the target position for Injecting and AwaitingSignal, -1 otherwise.
	Index int
	// Module is the target path for Injecting and AwaitingSignal.
	Module string
	PID    uint32
	At     time.Time
	// Elapsed is the time since the launch entered Validating.
	Elapsed time.Duration
	// Err is set on transitions into StateFailed.
	Err error
}

// Observer receives every transition of every launch. Implementations must not
// block; they run on the launching goroutine.
type Observer interface {
	OnTransition(t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(t Transition)

func (f ObserverFunc) OnTransition(t Transition) { f(t) }
