//go:build windows

package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/mattjoyce/bxt-launcher/internal/launch"
	"github.com/mattjoyce/bxt-launcher/internal/log"
)

var (
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procVirtualAllocEx     = modkernel32.NewProc("VirtualAllocEx")
	procVirtualFreeEx      = modkernel32.NewProc("VirtualFreeEx")
	procCreateRemoteThread = modkernel32.NewProc("CreateRemoteThread")
	procGetExitCodeThread  = modkernel32.NewProc("GetExitCodeThread")
	procLoadLibraryW       = modkernel32.NewProc("LoadLibraryW")
)

const injectAccess = windows.PROCESS_CREATE_THREAD |
	windows.PROCESS_QUERY_INFORMATION |
	windows.PROCESS_VM_OPERATION |
	windows.PROCESS_VM_READ |
	windows.PROCESS_VM_WRITE

type native struct {
	logger *slog.Logger
}

// Native returns the Windows platform.
func Native() launch.Platform {
	return &native{logger: log.WithComponent("platform")}
}

func (n *native) SpawnSuspended(spec launch.SpawnSpec) (launch.Process, error) {
	appName, err := windows.UTF16PtrFromString(spec.Executable)
	if err != nil {
		return nil, fmt.Errorf("encode executable path: %w", err)
	}
	// CreateProcessW may write into the command line buffer, so it gets its own copy.
	cmdLine, err := windows.UTF16PtrFromString(spec.CommandLine)
	if err != nil {
		return nil, fmt.Errorf("encode command line: %w", err)
	}

	var flags uint32
	if spec.Flags.Has(launch.FlagSuspended) {
		flags |= windows.CREATE_SUSPENDED
	}
	if spec.Flags.Has(launch.FlagDetached) {
		flags |= windows.DETACHED_PROCESS
	}

	si := &windows.StartupInfo{}
	si.Cb = uint32(unsafe.Sizeof(*si))
	pi := &windows.ProcessInformation{}

	if err := windows.CreateProcess(appName, cmdLine, nil, nil, false, flags, nil, nil, si, pi); err != nil {
		var code uint32
		var errno windows.Errno
		if errors.As(err, &errno) {
			code = uint32(errno)
		}
		return nil, &launch.ProcessCreationError{Executable: spec.Executable, Code: code, Err: err}
	}

	n.logger.Debug("process created", "pid", pi.ProcessId, "tid", pi.ThreadId, "flags", flags)
	return &process{proc: pi.Process, thread: pi.Thread, pid: pi.ProcessId}, nil
}

func (n *native) InjectModule(pid uint32, path string) (launch.InjectedModule, error) {
	if err := procLoadLibraryW.Find(); err != nil {
		return launch.InjectedModule{}, fmt.Errorf("locate LoadLibraryW: %w", err)
	}

	h, err := windows.OpenProcess(injectAccess, false, pid)
	if err != nil {
		return launch.InjectedModule{}, fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(h)

	wide, err := windows.UTF16FromString(path)
	if err != nil {
		return launch.InjectedModule{}, fmt.Errorf("encode module path: %w", err)
	}
	size := uintptr(len(wide)) * unsafe.Sizeof(wide[0])

	remote, _, callErr := procVirtualAllocEx.Call(
		uintptr(h), 0, size,
		windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE,
	)
	if remote == 0 {
		return launch.InjectedModule{}, fmt.Errorf("allocate remote memory: %w", callErr)
	}
	defer func() {
		if r, _, ferr := procVirtualFreeEx.Call(uintptr(h), remote, 0, windows.MEM_RELEASE); r == 0 {
			n.logger.Warn("failed to free remote memory", "pid", pid, "error", ferr)
		}
	}()

	var written uintptr
	if err := windows.WriteProcessMemory(h, remote, (*byte)(unsafe.Pointer(&wide[0])), size, &written); err != nil {
		return launch.InjectedModule{}, fmt.Errorf("write module path: %w", err)
	}
	if written != size {
		return launch.InjectedModule{}, fmt.Errorf("write module path: short write (%d of %d bytes)", written, size)
	}

	thread, _, callErr := procCreateRemoteThread.Call(
		uintptr(h), 0, 0, procLoadLibraryW.Addr(), remote, 0, 0,
	)
	if thread == 0 {
		return launch.InjectedModule{}, fmt.Errorf("create remote thread: %w", callErr)
	}
	defer windows.CloseHandle(windows.Handle(thread))

	if ev, err := windows.WaitForSingleObject(windows.Handle(thread), windows.INFINITE); err != nil || ev != windows.WAIT_OBJECT_0 {
		return launch.InjectedModule{}, fmt.Errorf("wait for loader thread (status %#x): %w", ev, err)
	}

	// The loader thread's exit code is the low half of the module handle.
	var code uint32
	if r, _, callErr := procGetExitCodeThread.Call(thread, uintptr(unsafe.Pointer(&code))); r == 0 {
		return launch.InjectedModule{}, fmt.Errorf("read loader exit code: %w", callErr)
	}
	if code == 0 {
		return launch.InjectedModule{}, errors.New("LoadLibraryW returned NULL in the target process")
	}

	n.logger.Debug("module mapped", "pid", pid, "module", path, "handle", fmt.Sprintf("%#x", code))
	return launch.InjectedModule{Path: path, Handle: uintptr(code)}, nil
}

func (n *native) OpenOrCreateNamedEvent(name string) (launch.Event, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("encode event name: %w", err)
	}
	// Auto-reset, initially non-signalled.
	h, err := windows.CreateEvent(nil, 0, 0, namePtr)
	if err != nil && !errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		return nil, err
	}
	if h == 0 {
		return nil, fmt.Errorf("create event %q: null handle", name)
	}
	if err != nil {
		n.logger.Debug("opened existing readiness event", "event", name)
	}
	return &event{h: h}, nil
}

type process struct {
	proc   windows.Handle
	thread windows.Handle
	pid    uint32
}

func (p *process) PID() uint32 { return p.pid }

func (p *process) Resume() error {
	if _, err := windows.ResumeThread(p.thread); err != nil {
		return err
	}
	return nil
}

func (p *process) Terminate(exitCode uint32) error {
	return windows.TerminateProcess(p.proc, exitCode)
}

func (p *process) Close() error {
	var errs []error
	if p.thread != 0 {
		errs = append(errs, windows.CloseHandle(p.thread))
		p.thread = 0
	}
	if p.proc != 0 {
		errs = append(errs, windows.CloseHandle(p.proc))
		p.proc = 0
	}
	return errors.Join(errs...)
}

type event struct {
	h windows.Handle
}

func (e *event) Wait(timeout time.Duration) (bool, error) {
	status, err := windows.WaitForSingleObject(e.h, waitMillis(timeout))
	switch status {
	case windows.WAIT_OBJECT_0:
		return true, nil
	case uint32(windows.WAIT_TIMEOUT):
		return false, nil
	default:
		if err == nil {
			err = fmt.Errorf("unexpected wait status %#x", status)
		}
		return false, err
	}
}

func (e *event) Reset() error { return windows.ResetEvent(e.h) }

func (e *event) Close() error {
	if e.h == 0 {
		return nil
	}
	err := windows.CloseHandle(e.h)
	e.h = 0
	return err
}
