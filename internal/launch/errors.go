package launch

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"
)

// ErrMissingExecutable is returned when the request has no executable path.
var ErrMissingExecutable = errors.New("no executable path given")

// ModuleNotFoundError reports an enabled target whose file does not exist.
type ModuleNotFoundError struct {
	Path string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module file does not exist: %s", e.Path)
}

// ProcessCreationError reports a failed process creation call.
type ProcessCreationError struct {
	Executable string
	// Code is the platform error code, 0 when the platform gave none.
	Code uint32
	Err  error
}

func (e *ProcessCreationError) Error() string {
	return fmt.Sprintf("create process %s (code %d): %v", e.Executable, e.Code, e.Err)
}

func (e *ProcessCreationError) Unwrap() error { return e.Err }

// InjectionError reports a module that could not be mapped or started.
type InjectionError struct {
	Path string
	Err  error
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("inject %s: %v", e.Path, e.Err)
}

func (e *InjectionError) Unwrap() error { return e.Err }

// SignalWaitError reports an OS-level failure of the readiness wait or reset.
type SignalWaitError struct {
	Module string
	Err    error
}

func (e *SignalWaitError) Error() string {
	return fmt.Sprintf("wait for readiness of %s: %v", e.Module, e.Err)
}

func (e *SignalWaitError) Unwrap() error { return e.Err }

// InjectionTimeoutError is returned when a readiness timeout is configured and
// the module did not signal in time.
type InjectionTimeoutError struct {
	Module string
	After  time.Duration
}

func (e *InjectionTimeoutError) Error() string {
	return fmt.Sprintf("module %s did not signal readiness within %v", e.Module, e.After)
}

// GateError reports that the readiness event could not be opened.
type GateError struct {
	Name string
	Err  error
}

func (e *GateError) Error() string {
	return fmt.Sprintf("open readiness event %q: %v", e.Name, e.Err)
}

func (e *GateError) Unwrap() error { return e.Err }

// ResumeError reports a failure to resume the primary thread.
type ResumeError struct {
	PID uint32
	Err error
}

func (e *ResumeError) Error() string {
	return fmt.Sprintf("resume primary thread of pid %d: %v", e.PID, e.Err)
}

func (e *ResumeError) Unwrap() error { return e.Err }

// Error kinds as reported by KindOf.
const (
	KindMissingExecutable     = "missing_executable"
	KindModuleNotFound        = "module_not_found"
	KindProcessCreationFailed = "process_creation_failed"
	KindInjectionFailed       = "injection_failed"
	KindSignalWaitFailed      = "signal_wait_failed"
	KindInjectionTimedOut     = "injection_timed_out"
	KindGateUnavailable       = "gate_unavailable"
	KindResumeFailed          = "resume_failed"
	KindCanceled              = "canceled"
	KindUnknown               = "unknown"
)

// KindOf classifies a launch error for history records and metrics.
// It returns "" for a nil error.
func KindOf(err error) string {
	if err == nil {
		return ""
	}

	var (
		notFound *ModuleNotFoundError
		create   *ProcessCreationError
		inject   *InjectionError
		wait     *SignalWaitError
		timeout  *InjectionTimeoutError
		gate     *GateError
		resume   *ResumeError
	)
	switch {
	case errors.Is(err, ErrMissingExecutable):
		return KindMissingExecutable
	case errors.As(err, &notFound):
		return KindModuleNotFound
	case errors.As(err, &create):
		return KindProcessCreationFailed
	case errors.As(err, &inject):
		return KindInjectionFailed
	case errors.As(err, &timeout):
		return KindInjectionTimedOut
	case errors.As(err, &wait):
		return KindSignalWaitFailed
	case errors.As(err, &gate):
		return KindGateUnavailable
	case errors.As(err, &resume):
		return KindResumeFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}

// errorCode extracts a platform error number, if any.
func errorCode(err error) uint32 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return uint32(errno)
	}
	return 0
}

func canceled(state State, err error) error {
	return fmt.Errorf("launch canceled while %s: %w", state, err)
}
