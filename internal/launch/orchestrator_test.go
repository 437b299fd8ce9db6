package launch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/bxt-launcher/internal/launch"
	"github.com/mattjoyce/bxt-launcher/internal/launch/mocks"
	"github.com/mattjoyce/bxt-launcher/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json") // Suppress logs in tests
	os.Exit(m.Run())
}

func newOrchestrator(p launch.Platform, opts launch.Options) *launch.Orchestrator {
	return launch.New(p, opts)
}

func TestLaunch_MissingExecutable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No expectations: any platform call fails the test.
	platform := mocks.NewMockPlatform(ctrl)
	o := newOrchestrator(platform, launch.Options{})

	res, err := o.Launch(context.Background(), launch.Request{Executable: "", Targets: nil})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, launch.ErrMissingExecutable)
	assert.Equal(t, launch.KindMissingExecutable, launch.KindOf(err))
}

func TestLaunch_OnlyInstrumentationEnabled(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, instrumentation := writeModules(t)
	platform := mocks.NewMockPlatform(ctrl)
	proc := mocks.NewMockProcess(ctrl)
	ev := mocks.NewMockEvent(ctrl)

	proc.EXPECT().PID().Return(uint32(4242)).AnyTimes()
	gomock.InOrder(
		platform.EXPECT().SpawnSuspended(launch.SpawnSpec{
			Executable:  "hl.exe",
			CommandLine: "-game valve ",
			Flags:       launch.FlagSuspended | launch.FlagDetached,
		}).Return(proc, nil),
		platform.EXPECT().OpenOrCreateNamedEvent(launch.DefaultEventName).Return(ev, nil),
		platform.EXPECT().InjectModule(uint32(4242), instrumentation).Return(launch.InjectedModule{Path: instrumentation, Handle: 1}, nil),
		ev.EXPECT().Wait(launch.WaitForever).Return(true, nil),
		ev.EXPECT().Reset().Return(nil),
		proc.EXPECT().Resume().Return(nil),
		ev.EXPECT().Close().Return(nil),
		proc.EXPECT().Close().Return(nil),
	)

	o := newOrchestrator(platform, launch.Options{TerminateOnFailure: true})
	res, err := o.Launch(context.Background(), launch.Request{
		Executable: "hl.exe",
		Targets: []launch.Target{
			// Disabled and missing on disk: must not be validated.
			{Role: launch.RoleRuntimeSupport, Path: filepath.Join(t.TempDir(), "missing.dll"), Enabled: false},
			{Role: launch.RoleInstrumentation, Path: instrumentation, Enabled: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(4242), res.PID)
	require.Len(t, res.Injected, 1)
	assert.Equal(t, instrumentation, res.Injected[0].Path)
	assert.NotEmpty(t, res.LaunchID)
}

func TestLaunch_BothEnabledInjectsInPriorityOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runtimeSupport, instrumentation := writeModules(t)
	platform := mocks.NewMockPlatform(ctrl)
	proc := mocks.NewMockProcess(ctrl)
	ev := mocks.NewMockEvent(ctrl)

	proc.EXPECT().PID().Return(uint32(7)).AnyTimes()
	gomock.InOrder(
		platform.EXPECT().SpawnSuspended(gomock.Any()).Return(proc, nil),
		platform.EXPECT().OpenOrCreateNamedEvent("BunnymodXT-Injector").Return(ev, nil),
		platform.EXPECT().InjectModule(uint32(7), runtimeSupport).Return(launch.InjectedModule{Path: runtimeSupport}, nil),
		ev.EXPECT().Wait(launch.WaitForever).Return(true, nil),
		ev.EXPECT().Reset().Return(nil),
		platform.EXPECT().InjectModule(uint32(7), instrumentation).Return(launch.InjectedModule{Path: instrumentation}, nil),
		ev.EXPECT().Wait(launch.WaitForever).Return(true, nil),
		ev.EXPECT().Reset().Return(nil),
		proc.EXPECT().Resume().Return(nil),
		ev.EXPECT().Close().Return(nil),
		proc.EXPECT().Close().Return(nil),
	)

	o := newOrchestrator(platform, launch.Options{})
	res, err := o.Launch(context.Background(), launch.Request{
		Executable: "hl.exe",
		GameMod:    "cstrike",
		ExtraArgs:  "-dev",
		// Configuration order is the reverse of injection order.
		Targets: []launch.Target{
			{Role: launch.RoleInstrumentation, Path: instrumentation, Enabled: true},
			{Role: launch.RoleRuntimeSupport, Path: runtimeSupport, Enabled: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "-game cstrike -dev", res.CommandLine)
	require.Len(t, res.Injected, 2)
	assert.Equal(t, runtimeSupport, res.Injected[0].Path)
	assert.Equal(t, instrumentation, res.Injected[1].Path)
}

func TestLaunch_MissingModuleSpawnsNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runtimeSupport, _ := writeModules(t)
	platform := mocks.NewMockPlatform(ctrl)

	missing := filepath.Join(t.TempDir(), "BunnymodXT.dll")
	o := newOrchestrator(platform, launch.Options{})
	_, err := o.Launch(context.Background(), launch.Request{
		Executable: "hl.exe",
		Targets: []launch.Target{
			{Role: launch.RoleRuntimeSupport, Path: runtimeSupport, Enabled: true},
			{Role: launch.RoleInstrumentation, Path: missing, Enabled: true},
		},
	})

	var notFound *launch.ModuleNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, missing, notFound.Path)
	assert.Equal(t, launch.KindModuleNotFound, launch.KindOf(err))
}

func TestLaunch_SecondInjectionFailsAfterFirstCompleted(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runtimeSupport, instrumentation := writeModules(t)
	platform := mocks.NewMockPlatform(ctrl)
	proc := mocks.NewMockProcess(ctrl)
	ev := mocks.NewMockEvent(ctrl)

	injectErr := errors.New("LoadLibraryW returned NULL")
	proc.EXPECT().PID().Return(uint32(9)).AnyTimes()
	gomock.InOrder(
		platform.EXPECT().SpawnSuspended(gomock.Any()).Return(proc, nil),
		platform.EXPECT().OpenOrCreateNamedEvent(gomock.Any()).Return(ev, nil),
		platform.EXPECT().InjectModule(uint32(9), runtimeSupport).Return(launch.InjectedModule{Path: runtimeSupport}, nil),
		ev.EXPECT().Wait(gomock.Any()).Return(true, nil),
		ev.EXPECT().Reset().Return(nil),
		platform.EXPECT().InjectModule(uint32(9), instrumentation).Return(launch.InjectedModule{}, injectErr),
		ev.EXPECT().Close().Return(nil),
		proc.EXPECT().Terminate(uint32(1)).Return(nil),
		proc.EXPECT().Close().Return(nil),
	)
	// Resume is never expected.

	o := newOrchestrator(platform, launch.Options{TerminateOnFailure: true})
	_, err := o.Launch(context.Background(), launch.Request{
		Executable: "hl.exe",
		Targets: []launch.Target{
			{Role: launch.RoleRuntimeSupport, Path: runtimeSupport, Enabled: true},
			{Role: launch.RoleInstrumentation, Path: instrumentation, Enabled: true},
		},
	})

	var injErr *launch.InjectionError
	require.ErrorAs(t, err, &injErr)
	assert.Equal(t, instrumentation, injErr.Path)
	assert.ErrorIs(t, err, injectErr)
	assert.Equal(t, launch.KindInjectionFailed, launch.KindOf(err))
}

func TestLaunch_KeepsSuspendedProcessWhenTerminationDisabled(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runtimeSupport, _ := writeModules(t)
	platform := mocks.NewMockPlatform(ctrl)
	proc := mocks.NewMockProcess(ctrl)
	ev := mocks.NewMockEvent(ctrl)

	proc.EXPECT().PID().Return(uint32(9)).AnyTimes()
	gomock.InOrder(
		platform.EXPECT().SpawnSuspended(gomock.Any()).Return(proc, nil),
		platform.EXPECT().OpenOrCreateNamedEvent(gomock.Any()).Return(ev, nil),
		platform.EXPECT().InjectModule(uint32(9), runtimeSupport).Return(launch.InjectedModule{}, errors.New("boom")),
		ev.EXPECT().Close().Return(nil),
		proc.EXPECT().Close().Return(nil),
	)

	o := newOrchestrator(platform, launch.Options{TerminateOnFailure: false})
	_, err := o.Launch(context.Background(), launch.Request{
		Executable: "hl.exe",
		Targets:    []launch.Target{{Role: launch.RoleRuntimeSupport, Path: runtimeSupport, Enabled: true}},
	})
	assert.Equal(t, launch.KindInjectionFailed, launch.KindOf(err))
}

func TestLaunch_ProcessCreationFailureCarriesCode(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	platform := mocks.NewMockPlatform(ctrl)
	platform.EXPECT().SpawnSuspended(gomock.Any()).Return(nil, syscall.Errno(2))

	o := newOrchestrator(platform, launch.Options{})
	_, err := o.Launch(context.Background(), launch.Request{Executable: `C:\nope\hl.exe`})

	var pce *launch.ProcessCreationError
	require.ErrorAs(t, err, &pce)
	assert.Equal(t, uint32(2), pce.Code)
	assert.Equal(t, `C:\nope\hl.exe`, pce.Executable)
	assert.Equal(t, launch.KindProcessCreationFailed, launch.KindOf(err))
}

func TestLaunch_WaitFailureReleasesHandles(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runtimeSupport, _ := writeModules(t)
	platform := mocks.NewMockPlatform(ctrl)
	proc := mocks.NewMockProcess(ctrl)
	ev := mocks.NewMockEvent(ctrl)

	proc.EXPECT().PID().Return(uint32(11)).AnyTimes()
	gomock.InOrder(
		platform.EXPECT().SpawnSuspended(gomock.Any()).Return(proc, nil),
		platform.EXPECT().OpenOrCreateNamedEvent(gomock.Any()).Return(ev, nil),
		platform.EXPECT().InjectModule(gomock.Any(), runtimeSupport).Return(launch.InjectedModule{}, nil),
		ev.EXPECT().Wait(launch.WaitForever).Return(false, errors.New("WAIT_FAILED")),
		ev.EXPECT().Close().Return(nil),
		proc.EXPECT().Terminate(gomock.Any()).Return(nil),
		proc.EXPECT().Close().Return(nil),
	)

	o := newOrchestrator(platform, launch.Options{TerminateOnFailure: true})
	_, err := o.Launch(context.Background(), launch.Request{
		Executable: "hl.exe",
		Targets:    []launch.Target{{Role: launch.RoleRuntimeSupport, Path: runtimeSupport, Enabled: true}},
	})

	var waitErr *launch.SignalWaitError
	require.ErrorAs(t, err, &waitErr)
	assert.Equal(t, runtimeSupport, waitErr.Module)
	assert.Equal(t, launch.KindSignalWaitFailed, launch.KindOf(err))
}

func TestLaunch_GateFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runtimeSupport, _ := writeModules(t)
	platform := mocks.NewMockPlatform(ctrl)
	proc := mocks.NewMockProcess(ctrl)

	proc.EXPECT().PID().Return(uint32(3)).AnyTimes()
	gomock.InOrder(
		platform.EXPECT().SpawnSuspended(gomock.Any()).Return(proc, nil),
		platform.EXPECT().OpenOrCreateNamedEvent("custom-event").Return(nil, syscall.Errno(5)),
		proc.EXPECT().Terminate(gomock.Any()).Return(nil),
		proc.EXPECT().Close().Return(nil),
	)

	o := newOrchestrator(platform, launch.Options{EventName: "custom-event", TerminateOnFailure: true})
	_, err := o.Launch(context.Background(), launch.Request{
		Executable: "hl.exe",
		Targets:    []launch.Target{{Role: launch.RoleRuntimeSupport, Path: runtimeSupport, Enabled: true}},
	})

	var gateErr *launch.GateError
	require.ErrorAs(t, err, &gateErr)
	assert.Equal(t, "custom-event", gateErr.Name)
	assert.Equal(t, launch.KindGateUnavailable, launch.KindOf(err))
}

func TestLaunch_ResumeFailureRollsBack(t *testing.T) {
	fp := newFakePlatform()
	fp.resumeErr = syscall.Errno(6)

	o := newOrchestrator(fp, launch.Options{TerminateOnFailure: true})
	_, err := o.Launch(context.Background(), launch.Request{Executable: "hl.exe"})

	var resumeErr *launch.ResumeError
	require.ErrorAs(t, err, &resumeErr)
	assert.Equal(t, uint32(4242), resumeErr.PID)
	assert.Equal(t, 1, fp.killed)
	assert.Equal(t, 1, fp.closed)
}

func TestLaunch_NoTargetsSkipsGate(t *testing.T) {
	fp := newFakePlatform()
	o := newOrchestrator(fp, launch.Options{})

	res, err := o.Launch(context.Background(), launch.Request{Executable: "hl.exe", ExtraArgs: "-w 1280"})
	require.NoError(t, err)
	assert.Empty(t, res.Injected)
	assert.Equal(t, []string{
		"spawn hl.exe [-game valve -w 1280]",
		"resume",
		"close process",
	}, fp.Calls())
}

func TestLaunch_InjectionOrderForEveryCombination(t *testing.T) {
	runtimeSupport, instrumentation := writeModules(t)

	cases := []struct {
		name         string
		rtEnabled    bool
		instrEnabled bool
		reversed     bool
		want         []string
	}{
		{name: "none", want: nil},
		{name: "runtime only", rtEnabled: true, want: []string{"inject bxt_rs.dll"}},
		{name: "instrumentation only", instrEnabled: true, want: []string{"inject BunnymodXT.dll"}},
		{name: "both", rtEnabled: true, instrEnabled: true, want: []string{"inject bxt_rs.dll", "inject BunnymodXT.dll"}},
		{name: "both reversed config", rtEnabled: true, instrEnabled: true, reversed: true, want: []string{"inject bxt_rs.dll", "inject BunnymodXT.dll"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fp := newFakePlatform()
			targets := []launch.Target{
				{Role: launch.RoleRuntimeSupport, Path: runtimeSupport, Enabled: tc.rtEnabled},
				{Role: launch.RoleInstrumentation, Path: instrumentation, Enabled: tc.instrEnabled},
			}
			if tc.reversed {
				targets[0], targets[1] = targets[1], targets[0]
			}

			_, err := newOrchestrator(fp, launch.Options{}).Launch(context.Background(), launch.Request{
				Executable: "hl.exe",
				Targets:    targets,
			})
			require.NoError(t, err)

			var injected []string
			for _, c := range fp.Calls() {
				if len(c) > 7 && c[:7] == "inject " {
					injected = append(injected, c)
				}
			}
			assert.Equal(t, tc.want, injected)
			assert.Equal(t, 1, fp.resumed, "primary thread resumed exactly once")
		})
	}
}

func TestLaunch_ResumeOnlyAfterEveryReadinessWait(t *testing.T) {
	runtimeSupport, instrumentation := writeModules(t)
	fp := newFakePlatform()

	_, err := newOrchestrator(fp, launch.Options{}).Launch(context.Background(), launch.Request{
		Executable: "hl.exe",
		Targets: []launch.Target{
			{Role: launch.RoleRuntimeSupport, Path: runtimeSupport, Enabled: true},
			{Role: launch.RoleInstrumentation, Path: instrumentation, Enabled: true},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"spawn hl.exe [-game valve ]",
		"event BunnymodXT-Injector",
		"inject bxt_rs.dll",
		"wait",
		"reset",
		"inject BunnymodXT.dll",
		"wait",
		"reset",
		"resume",
		"close event",
		"close process",
	}, fp.Calls())
}

func TestLaunch_ReadinessTimeout(t *testing.T) {
	runtimeSupport, _ := writeModules(t)
	fp := newFakePlatform()
	fp.silent = true

	o := newOrchestrator(fp, launch.Options{
		ReadinessTimeout:   30 * time.Millisecond,
		PollInterval:       5 * time.Millisecond,
		TerminateOnFailure: true,
	})
	_, err := o.Launch(context.Background(), launch.Request{
		Executable: "hl.exe",
		Targets:    []launch.Target{{Role: launch.RoleRuntimeSupport, Path: runtimeSupport, Enabled: true}},
	})

	var timeoutErr *launch.InjectionTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 30*time.Millisecond, timeoutErr.After)
	assert.Equal(t, launch.KindInjectionTimedOut, launch.KindOf(err))
	assert.Equal(t, 0, fp.resumed)
	assert.Equal(t, 1, fp.killed)
	assert.Equal(t, 1, fp.evClosed)
	assert.Equal(t, 1, fp.closed)
}

func TestLaunch_CancelDuringReadinessWait(t *testing.T) {
	runtimeSupport, _ := writeModules(t)
	fp := newFakePlatform()
	fp.silent = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen sync.WaitGroup
	seen.Add(1)
	var once sync.Once
	o := newOrchestrator(fp, launch.Options{
		PollInterval:       5 * time.Millisecond,
		TerminateOnFailure: true,
		Observers: []launch.Observer{launch.ObserverFunc(func(tr launch.Transition) {
			if tr.To == launch.StateAwaitingSignal {
				once.Do(seen.Done)
			}
		})},
	})

	go func() {
		seen.Wait()
		cancel()
	}()

	_, err := o.Launch(ctx, launch.Request{
		Executable: "hl.exe",
		Targets:    []launch.Target{{Role: launch.RoleRuntimeSupport, Path: runtimeSupport, Enabled: true}},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, launch.KindCanceled, launch.KindOf(err))
	assert.Equal(t, 0, fp.resumed)
	assert.Equal(t, 1, fp.killed)
	assert.Equal(t, 1, fp.closed)
}

func TestLaunch_CanceledBeforeSpawn(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	platform := mocks.NewMockPlatform(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newOrchestrator(platform, launch.Options{}).Launch(ctx, launch.Request{Executable: "hl.exe"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLaunch_ObserverSeesEveryTransition(t *testing.T) {
	runtimeSupport, instrumentation := writeModules(t)
	fp := newFakePlatform()

	var got []launch.Transition
	o := newOrchestrator(fp, launch.Options{
		Observers: []launch.Observer{launch.ObserverFunc(func(tr launch.Transition) {
			got = append(got, tr)
		})},
	})
	res, err := o.Launch(context.Background(), launch.Request{
		ID:         "fixed-id",
		Executable: "hl.exe",
		Targets: []launch.Target{
			{Role: launch.RoleRuntimeSupport, Path: runtimeSupport, Enabled: true},
			{Role: launch.RoleInstrumentation, Path: instrumentation, Enabled: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", res.LaunchID)

	type step struct {
		from, to launch.State
		index    int
	}
	want := []step{
		{launch.StateIdle, launch.StateValidating, -1},
		{launch.StateValidating, launch.StateSpawning, -1},
		{launch.StateSpawning, launch.StateInjecting, 0},
		{launch.StateInjecting, launch.StateAwaitingSignal, 0},
		{launch.StateAwaitingSignal, launch.StateInjecting, 1},
		{launch.StateInjecting, launch.StateAwaitingSignal, 1},
		{launch.StateAwaitingSignal, launch.StateResuming, -1},
		{launch.StateResuming, launch.StateDone, -1},
	}
	require.Len(t, got, len(want))
	for i, w := range want {
		assert.Equal(t, w.from, got[i].From, "transition %d from", i)
		assert.Equal(t, w.to, got[i].To, "transition %d to", i)
		assert.Equal(t, w.index, got[i].Index, "transition %d index", i)
		assert.Equal(t, "fixed-id", got[i].LaunchID)
	}
	assert.Equal(t, runtimeSupport, got[2].Module)
	assert.Equal(t, instrumentation, got[4].Module)
}

func TestLaunch_ObserverSeesFailure(t *testing.T) {
	fp := newFakePlatform()
	fp.spawnErr = errors.New("access denied")

	var last launch.Transition
	o := newOrchestrator(fp, launch.Options{
		Observers: []launch.Observer{launch.ObserverFunc(func(tr launch.Transition) { last = tr })},
	})
	_, err := o.Launch(context.Background(), launch.Request{Executable: "hl.exe"})
	require.Error(t, err)

	assert.Equal(t, launch.StateSpawning, last.From)
	assert.Equal(t, launch.StateFailed, last.To)
	assert.Equal(t, err, last.Err)
	assert.Equal(t, 0, fp.closed, "nothing to release when creation failed")
}

func TestStart_ReturnsFutureResult(t *testing.T) {
	runtimeSupport, _ := writeModules(t)
	fp := newFakePlatform()
	o := newOrchestrator(fp, launch.Options{})

	p := o.Start(context.Background(), launch.Request{
		Executable: "hl.exe",
		Targets:    []launch.Target{{Role: launch.RoleRuntimeSupport, Path: runtimeSupport, Enabled: true}},
	})
	require.NotEmpty(t, p.ID())

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("launch did not finish")
	}
	assert.True(t, p.Finished())

	res, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, p.ID(), res.LaunchID)
	assert.Equal(t, 1, fp.resumed)

	again, err := p.Result()
	require.NoError(t, err)
	assert.Same(t, res, again)
}

func TestPending_ResultWhileInFlight(t *testing.T) {
	runtimeSupport, _ := writeModules(t)
	fp := newFakePlatform()
	fp.silent = true

	ctx, cancel := context.WithCancel(context.Background())
	p := newOrchestrator(fp, launch.Options{PollInterval: 5 * time.Millisecond}).Start(ctx, launch.Request{
		Executable: "hl.exe",
		Targets:    []launch.Target{{Role: launch.RoleRuntimeSupport, Path: runtimeSupport, Enabled: true}},
	})

	_, err := p.Result()
	assert.ErrorIs(t, err, launch.ErrInFlight)
	assert.False(t, p.Finished())

	cancel()
	_, err = p.Wait()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStart_ReportsFailure(t *testing.T) {
	o := newOrchestrator(newFakePlatform(), launch.Options{})
	p := o.Start(context.Background(), launch.Request{})
	res, err := p.Wait()
	assert.Nil(t, res)
	assert.ErrorIs(t, err, launch.ErrMissingExecutable)
}
