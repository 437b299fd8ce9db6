// Package launch starts a target executable suspended, injects the enabled
// auxiliary modules in fixed priority order and resumes the primary thread
// once every module has announced readiness.
//
// Sequence for one launch:
//
//	Idle -> Validating -> Spawning -> Injecting(i) -> AwaitingSignal(i) -> ... -> Resuming -> Done
//
// with Failed reachable from every non-terminal state. Each step blocks until it
// completes. Targets are processed strictly one at a time: the runtime-support
// module is injected and signalled before the instrumentation module is touched.
//
// Readiness handshake:
//   - One named auto-reset event (DefaultEventName) is opened before the first
//     injection and shared by all modules of the run.
//   - Each injected module signals the event once its own initialization is done.
//   - The orchestrator waits, resets the event, and moves on to the next target.
//   - The event is closed once, after the last wait or on abort.
//
// Two-phase launch:
//   - Phase 1 creates the process suspended. It is undone by releasing the
//     process and thread handles, and by terminating the child when
//     Options.TerminateOnFailure is set.
//   - Phase 2 resumes the primary thread. It is irreversible; after it the
//     child runs unsupervised.
//
// All native calls go through the Platform interface so the state machine is
// the same on every OS. Only Windows has a real implementation; see
// internal/platform.
package launch
