//go:build !windows

package platform

import "github.com/mattjoyce/bxt-launcher/internal/launch"

type unsupported struct{}

// Native returns a platform that rejects every call with launch.ErrUnsupported.
func Native() launch.Platform { return unsupported{} }

func (unsupported) SpawnSuspended(launch.SpawnSpec) (launch.Process, error) {
	return nil, launch.ErrUnsupported
}

func (unsupported) InjectModule(uint32, string) (launch.InjectedModule, error) {
	return launch.InjectedModule{}, launch.ErrUnsupported
}

func (unsupported) OpenOrCreateNamedEvent(string) (launch.Event, error) {
	return nil, launch.ErrUnsupported
}
