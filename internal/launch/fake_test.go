package launch_test

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mattjoyce/bxt-launcher/internal/launch"
)

// fakePlatform records every native call in order. Modules "signal" readiness
// as soon as they are injected unless silent is set.
type fakePlatform struct {
	mu    sync.Mutex
	calls []string

	spawnErr  error
	injectErr map[string]error
	waitErr   error
	silent    bool
	resumeErr error
	pid       uint32

	signalled int
	resumed   int
	closed    int
	killed    int
	evClosed  int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{injectErr: map[string]error{}, pid: 4242}
}

func (f *fakePlatform) record(format string, args ...any) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	f.mu.Unlock()
}

func (f *fakePlatform) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePlatform) SpawnSuspended(spec launch.SpawnSpec) (launch.Process, error) {
	f.record("spawn %s [%s]", spec.Executable, spec.CommandLine)
	if f.spawnErr != nil {
		return nil, f.spawnErr
	}
	return &fakeProcess{f: f}, nil
}

func (f *fakePlatform) InjectModule(pid uint32, path string) (launch.InjectedModule, error) {
	f.record("inject %s", filepath.Base(path))
	if err := f.injectErr[filepath.Base(path)]; err != nil {
		return launch.InjectedModule{}, err
	}
	f.mu.Lock()
	if !f.silent {
		f.signalled++
	}
	f.mu.Unlock()
	return launch.InjectedModule{Path: path, Handle: 0x10000000}, nil
}

func (f *fakePlatform) OpenOrCreateNamedEvent(name string) (launch.Event, error) {
	f.record("event %s", name)
	return &fakeEvent{f: f}, nil
}

type fakeProcess struct{ f *fakePlatform }

func (p *fakeProcess) PID() uint32 { return p.f.pid }

func (p *fakeProcess) Resume() error {
	p.f.record("resume")
	p.f.mu.Lock()
	p.f.resumed++
	p.f.mu.Unlock()
	return p.f.resumeErr
}

func (p *fakeProcess) Terminate(code uint32) error {
	p.f.record("terminate %d", code)
	p.f.mu.Lock()
	p.f.killed++
	p.f.mu.Unlock()
	return nil
}

func (p *fakeProcess) Close() error {
	p.f.record("close process")
	p.f.mu.Lock()
	p.f.closed++
	p.f.mu.Unlock()
	return nil
}

type fakeEvent struct{ f *fakePlatform }

func (e *fakeEvent) Wait(timeout time.Duration) (bool, error) {
	e.f.record("wait")
	if e.f.waitErr != nil {
		return false, e.f.waitErr
	}
	e.f.mu.Lock()
	ok := e.f.signalled > 0
	if ok {
		e.f.signalled--
	}
	e.f.mu.Unlock()
	if !ok && timeout > 0 {
		time.Sleep(timeout)
	}
	return ok, nil
}

func (e *fakeEvent) Reset() error {
	e.f.record("reset")
	return nil
}

func (e *fakeEvent) Close() error {
	e.f.record("close event")
	e.f.mu.Lock()
	e.f.evClosed++
	e.f.mu.Unlock()
	return nil
}

// writeModules creates empty module files and returns their paths.
func writeModules(t *testing.T) (runtimeSupport, instrumentation string) {
	t.Helper()
	dir := t.TempDir()
	runtimeSupport = filepath.Join(dir, "bxt_rs.dll")
	instrumentation = filepath.Join(dir, "BunnymodXT.dll")
	for _, p := range []string{runtimeSupport, instrumentation} {
		if err := os.WriteFile(p, []byte("MZ"), 0o644); err != nil {
			t.Fatalf("write module: %v", err)
		}
	}
	return runtimeSupport, instrumentation
}
