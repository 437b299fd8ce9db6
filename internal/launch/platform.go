package launch

import (
	"errors"
	"time"
)

//go:generate mockgen -destination=mocks/mock_platform.go -package=mocks github.com/mattjoyce/bxt-launcher/internal/launch Platform,Process,Event

// ErrUnsupported is returned by platforms without address-space injection.
var ErrUnsupported = errors.New("process injection is not supported on this platform")

// WaitForever asks Event.Wait to block without a timeout.
const WaitForever time.Duration = -1

// CreationFlags are the logical process creation properties.
type CreationFlags uint32

const (
	// FlagSuspended keeps the primary thread from running until Resume.
	FlagSuspended CreationFlags = 1 << iota
	// FlagDetached starts the process without an inherited console.
	FlagDetached
)

// Has reports whether all bits of f are set.
func (c CreationFlags) Has(f CreationFlags) bool { return c&f == f }

// SpawnSpec is the input to Platform.SpawnSuspended.
type SpawnSpec struct {
	Executable  string
	CommandLine string
	Flags       CreationFlags
}

// InjectedModule is the opaque handle of a module mapped into the target.
type InjectedModule struct {
	Path   string  `json:"path"`
	Handle uintptr `json:"handle"`
}

// Platform is the native capability set the orchestrator needs.
type Platform interface {
	// SpawnSuspended creates the target process with its primary thread suspended.
	SpawnSuspended(spec SpawnSpec) (Process, error)
	// InjectModule maps the module at path into process pid and runs its entry routine.
	InjectModule(pid uint32, path string) (InjectedModule, error)
	// OpenOrCreateNamedEvent opens the named auto-reset event, creating it if needed.
	OpenOrCreateNamedEvent(name string) (Event, error)
}

// Process owns the process and primary-thread handles of a spawned child.
type Process interface {
	PID() uint32
	// Resume starts the suspended primary thread.
	Resume() error
	// Terminate kills the child. Used only to roll back phase 1.
	Terminate(exitCode uint32) error
	// Close releases the handles. It does not affect the child.
	Close() error
}

// Event is a named auto-reset synchronization object.
type Event interface {
	// Wait blocks until the event is signalled or timeout elapses.
	// It returns false with a nil error on timeout. WaitForever disables the timeout.
	Wait(timeout time.Duration) (bool, error)
	Reset() error
	Close() error
}
