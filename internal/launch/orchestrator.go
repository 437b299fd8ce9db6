package launch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mattjoyce/bxt-launcher/internal/log"
)

// terminateExitCode is the exit code given to a child killed during rollback.
const terminateExitCode = 1

// Options configure an Orchestrator.
type Options struct {
	// EventName is the readiness event shared with the modules.
	EventName string
	// ReadinessTimeout bounds each module's readiness wait. Zero waits forever.
	ReadinessTimeout time.Duration
	// PollInterval is the native wait slice used when the context is cancellable.
	PollInterval time.Duration
	// TerminateOnFailure kills the suspended child when a step after spawning
	// fails. When false only the handles are released and the child stays frozen.
	TerminateOnFailure bool
	Observers          []Observer
	Logger             *slog.Logger
}

// Orchestrator sequences validation, spawning, injection and resume.
// It holds no per-launch state, so one value can serve many launches; each
// launch exclusively owns its process handles and readiness event.
type Orchestrator struct {
	platform Platform
	opts     Options
	logger   *slog.Logger
}

// New creates an Orchestrator backed by p.
func New(p Platform, opts Options) *Orchestrator {
	if opts.EventName == "" {
		opts.EventName = DefaultEventName
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithComponent("orchestrator")
	}
	return &Orchestrator{
		platform: p,
		opts:     opts,
		logger:   logger,
	}
}

// Launch runs the whole sequence on the calling goroutine and blocks until the
// primary thread has been resumed or a step failed.
func (o *Orchestrator) Launch(ctx context.Context, req Request) (*Result, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	return o.run(ctx, req)
}

// Start runs the sequence on a new goroutine and returns immediately.
func (o *Orchestrator) Start(ctx context.Context, req Request) *Pending {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	p := newPending(req.ID)
	go func() {
		res, err := o.run(ctx, req)
		p.complete(res, err)
	}()
	return p
}

// run is one pass through the state machine. Every handle acquired here is
// released by a deferred call, so all return paths are leak-free.
func (o *Orchestrator) run(ctx context.Context, req Request) (_ *Result, err error) {
	r := &tracker{
		id:        req.ID,
		observers: o.opts.Observers,
		logger:    log.ForLaunch(o.logger, req.ID),
		started:   time.Now(),
		state:     StateIdle,
	}
	defer func() {
		if err != nil {
			r.fail(err)
		}
	}()

	r.enter(StateValidating)
	targets, err := Validate(req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, canceled(r.state, err)
	}

	r.enter(StateSpawning)
	cmdline := req.CommandLine()
	proc, err := o.platform.SpawnSuspended(SpawnSpec{
		Executable:  req.Executable,
		CommandLine: cmdline,
		Flags:       FlagSuspended | FlagDetached,
	})
	if err != nil {
		var pce *ProcessCreationError
		if errors.As(err, &pce) {
			return nil, err
		}
		return nil, &ProcessCreationError{Executable: req.Executable, Code: errorCode(err), Err: err}
	}

	resumed := false
	defer func() { o.release(proc, resumed, r.logger) }()

	r.pid = proc.PID()
	r.logger.Info("process created suspended", "pid", r.pid, "command_line", cmdline)

	res := &Result{
		LaunchID:    req.ID,
		PID:         r.pid,
		CommandLine: cmdline,
		StartedAt:   r.started,
		Injected:    make([]InjectedModule, 0, len(targets)),
	}

	if len(targets) > 0 {
		gate, err := OpenGate(o.platform, o.opts.EventName, GateOptions{
			Timeout:      o.opts.ReadinessTimeout,
			PollInterval: o.opts.PollInterval,
		})
		if err != nil {
			return nil, err
		}
		defer func() {
			if cerr := gate.Close(); cerr != nil {
				r.logger.Warn("failed to close readiness event", "event", gate.Name(), "error", cerr)
			}
		}()

		for i, t := range targets {
			if err := ctx.Err(); err != nil {
				return nil, canceled(r.state, err)
			}

			r.enterTarget(StateInjecting, i, t.Path)
			mod, err := o.platform.InjectModule(r.pid, t.Path)
			if err != nil {
				return nil, &InjectionError{Path: t.Path, Err: err}
			}
			res.Injected = append(res.Injected, mod)

			r.enterTarget(StateAwaitingSignal, i, t.Path)
			if err := gate.Wait(ctx, t.Path); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
					return nil, canceled(r.state, err)
				}
				return nil, err
			}
			if err := gate.Reset(); err != nil {
				return nil, &SignalWaitError{Module: t.Path, Err: fmt.Errorf("reset event: %w", err)}
			}
			r.logger.Info("module ready", "module", t.Path, "role", t.Role.String())
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, canceled(r.state, err)
	}

	r.enter(StateResuming)
	if err := proc.Resume(); err != nil {
		return nil, &ResumeError{PID: r.pid, Err: err}
	}
	resumed = true

	res.Duration = time.Since(r.started)
	r.enter(StateDone)
	return res, nil
}

// release rolls back phase 1 when the launch did not reach resume, then
// closes the process and thread handles.
func (o *Orchestrator) release(proc Process, resumed bool, logger *slog.Logger) {
	if !resumed {
		if o.opts.TerminateOnFailure {
			if err := proc.Terminate(terminateExitCode); err != nil {
				logger.Warn("failed to terminate suspended process", "pid", proc.PID(), "error", err)
			} else {
				logger.Info("terminated suspended process", "pid", proc.PID())
			}
		} else {
			logger.Warn("leaving suspended process behind", "pid", proc.PID())
		}
	}
	if err := proc.Close(); err != nil {
		logger.Warn("failed to close process handles", "pid", proc.PID(), "error", err)
	}
}

// tracker records the current state of one run and notifies observers.
type tracker struct {
	id        string
	observers []Observer
	logger    *slog.Logger
	started   time.Time
	state     State
	pid       uint32
}

func (r *tracker) enter(to State) {
	r.emit(Transition{To: to, Index: -1})
}

func (r *tracker) enterTarget(to State, index int, module string) {
	r.emit(Transition{To: to, Index: index, Module: module})
}

func (r *tracker) fail(err error) {
	r.logger.Error("launch failed", "state", r.state.String(), "kind", KindOf(err), "error", err)
	r.emit(Transition{To: StateFailed, Index: -1, Err: err})
}

func (r *tracker) emit(t Transition) {
	now := time.Now()
	t.LaunchID = r.id
	t.From = r.state
	t.PID = r.pid
	t.At = now
	t.Elapsed = now.Sub(r.started)
	r.state = t.To

	r.logger.Debug("state transition", "from", t.From.String(), "to", t.To.String(), "index", t.Index)
	for _, obs := range r.observers {
		obs.OnTransition(t)
	}
}
