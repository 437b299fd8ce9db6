// Package platform provides the native launch.Platform.
//
// On Windows it creates the game process suspended, maps modules into it with
// a remote LoadLibraryW thread, and shares a named auto-reset event with the
// injected modules. The launcher must be built for the same architecture as
// the target (GOARCH=386 for hl.exe), because the LoadLibraryW address is
// taken from the launcher's own kernel32 mapping.
//
// Other platforms get a stub whose every call returns launch.ErrUnsupported.
package platform
