// Package runner turns saved profiles into launches. It owns the
// single-instance lock, history records and the table of live launches.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattjoyce/bxt-launcher/internal/config"
	"github.com/mattjoyce/bxt-launcher/internal/events"
	"github.com/mattjoyce/bxt-launcher/internal/history"
	"github.com/mattjoyce/bxt-launcher/internal/launch"
	"github.com/mattjoyce/bxt-launcher/internal/lock"
	"github.com/mattjoyce/bxt-launcher/internal/log"
)

// ErrUnknownLaunch is returned by Get for ids this runner never started or
// has already forgotten.
var ErrUnknownLaunch = errors.New("unknown launch")

// keepSettled bounds how many finished launches Get still answers for.
// Older ones are served from history.
const keepSettled = 64

// Options wire optional collaborators into a Runner.
type Options struct {
	Platform launch.Platform
	// History is nil when history is disabled.
	History *history.Store
	// Hub receives launch.completed events. Transition events come from
	// an events.Observer listed in Observers.
	Hub       *events.Hub
	Observers []launch.Observer
	// UseLock takes the config's PID lock for the duration of each launch.
	UseLock bool
	Logger  *slog.Logger
}

type Runner struct {
	cfg   *config.Config
	opts  Options
	orch  *launch.Orchestrator
	log   *slog.Logger
	clock func() time.Time

	mu       sync.Mutex
	launches map[string]*Launch
	// settled lists finished launch ids, oldest first.
	settled []string
	keep    int
}

func New(cfg *config.Config, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithComponent("runner")
	}
	r := &Runner{
		cfg:      cfg,
		opts:     opts,
		log:      logger,
		clock:    time.Now,
		launches: make(map[string]*Launch),
		keep:     keepSettled,
	}

	observers := append([]launch.Observer{launch.ObserverFunc(r.track)}, opts.Observers...)
	r.orch = launch.New(opts.Platform, launch.Options{
		EventName:          cfg.Launcher.EventName,
		ReadinessTimeout:   cfg.Launcher.ReadinessTimeout,
		PollInterval:       cfg.Launcher.PollInterval,
		TerminateOnFailure: cfg.Launcher.TerminateOnFailure,
		Observers:          observers,
	})
	return r
}

// Plan resolves a profile into the request Start would run, without running it.
func (r *Runner) Plan(profileRef string) (string, launch.Request, []launch.Target, error) {
	_, p, err := r.cfg.Resolve(profileRef)
	if err != nil {
		return "", launch.Request{}, nil, err
	}
	req := p.Request()
	targets, err := launch.Validate(req)
	if err != nil {
		return p.Name, req, nil, err
	}
	return p.Name, req, targets, nil
}

// Run launches the profile and blocks until the game is resumed or the
// launch failed.
func (r *Runner) Run(ctx context.Context, profileRef string) (*launch.Result, error) {
	l, err := r.Start(ctx, profileRef)
	if err != nil {
		return nil, err
	}
	<-l.Settled()
	return l.Outcome()
}

// Start launches the profile on a worker goroutine. Errors returned here
// happen before any process is created and leave no history record:
// validation errors keep their launch kind, then pins are checked, then the
// lock is taken. Later failures are reported by the returned Launch.
func (r *Runner) Start(ctx context.Context, profileRef string) (*Launch, error) {
	_, p, err := r.cfg.Resolve(profileRef)
	if err != nil {
		return nil, err
	}
	req := p.Request()
	if _, err := launch.Validate(req); err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.Name, err)
	}
	if err := p.VerifyPins(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.Name, err)
	}

	var held *lock.PIDLock
	if r.opts.UseLock {
		held, err = lock.AcquirePIDLock(r.cfg.LockPath())
		if err != nil {
			return nil, err
		}
	}

	req.ID = uuid.NewString()
	l := &Launch{
		ID:        req.ID,
		Profile:   p.Name,
		StartedAt: r.clock().UTC(),
		state:     launch.StateIdle,
		settled:   make(chan struct{}),
	}

	entry := history.Entry{
		ID:          req.ID,
		Profile:     p.Name,
		Executable:  req.Executable,
		CommandLine: req.CommandLine(),
		Modules:     history.Fingerprint(req.Targets),
		Status:      history.StatusRunning,
		StartedAt:   l.StartedAt,
	}
	r.record(ctx, entry)

	logger := log.ForLaunch(r.log, l.ID).With("profile", p.Name)
	logger.Info("launch started", "executable", req.Executable)

	// Registered under the lock so Get never sees a launch without pending and
	// track never misses the first transitions.
	r.mu.Lock()
	r.launches[l.ID] = l
	l.pending = r.orch.Start(ctx, req)
	r.mu.Unlock()

	go r.finish(l, entry, held, logger)
	return l, nil
}

// Get returns a launch started by this runner.
func (r *Runner) Get(id string) (*Launch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.launches[id]
	if !ok {
		return nil, ErrUnknownLaunch
	}
	return l, nil
}

// finish waits for the orchestrator, records the outcome and drops the lock.
func (r *Runner) finish(l *Launch, entry history.Entry, held *lock.PIDLock, logger *slog.Logger) {
	defer close(l.settled)
	res, err := l.pending.Wait()

	done := r.clock().UTC()
	entry.CompletedAt = &done
	if err != nil {
		entry.Status = history.StatusFailed
		entry.ErrorKind = launch.KindOf(err)
		entry.Error = err.Error()
		logger.Error("launch failed", "kind", entry.ErrorKind, "error", err)
	} else {
		entry.Status = history.StatusSucceeded
		entry.PID = res.PID
		logger.Info("launch succeeded", "pid", res.PID, "duration", res.Duration)
	}
	// The launch context may already be gone; the record must still land.
	r.record(context.Background(), entry)

	if r.opts.Hub != nil {
		r.opts.Hub.PublishCompleted(events.CompletedData{
			LaunchID:  l.ID,
			Profile:   l.Profile,
			Status:    string(entry.Status),
			PID:       entry.PID,
			ErrorKind: entry.ErrorKind,
			Error:     entry.Error,
			Duration:  events.FormatDuration(done.Sub(l.StartedAt)),
		})
	}

	if err := held.Release(); err != nil {
		logger.Warn("failed to release lock", "error", err)
	}
	r.retire(l.ID)
}

// retire marks a launch finished and forgets the oldest finished ones beyond
// the keep limit. Running launches are never dropped.
func (r *Runner) retire(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settled = append(r.settled, id)
	for len(r.settled) > r.keep {
		delete(r.launches, r.settled[0])
		r.settled = r.settled[1:]
	}
}

func (r *Runner) record(ctx context.Context, e history.Entry) {
	if r.opts.History == nil {
		return
	}
	if err := r.opts.History.Record(ctx, e); err != nil {
		log.ForLaunch(r.log, e.ID).Warn("failed to record launch history", "error", err)
	}
}

// track mirrors orchestrator state into the launch table.
func (r *Runner) track(t launch.Transition) {
	r.mu.Lock()
	l, ok := r.launches[t.LaunchID]
	r.mu.Unlock()
	if ok {
		l.setState(t.To, t.Module)
	}
}
