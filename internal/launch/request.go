package launch

import (
	"time"
)

const (
	// DefaultGameMod is passed to -game when the request leaves GameMod empty.
	DefaultGameMod = "valve"

	// DefaultEventName is the readiness event both modules signal once loaded.
	DefaultEventName = "BunnymodXT-Injector"
)

// Role identifies one of the two fixed-priority injection targets.
type Role int

const (
	// RoleRuntimeSupport is always injected first (bxt-rs).
	RoleRuntimeSupport Role = iota
	// RoleInstrumentation is injected after the runtime-support module (BunnymodXT).
	RoleInstrumentation
)

// Rank returns the fixed injection priority. Lower ranks go first.
func (r Role) Rank() int { return int(r) }

func (r Role) String() string {
	switch r {
	case RoleRuntimeSupport:
		return "runtime-support"
	case RoleInstrumentation:
		return "instrumentation"
	default:
		return "unknown"
	}
}

// Target is one module slated for injection.
type Target struct {
	Role    Role   `json:"role"`
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
}

// Request describes what to run and what to inject into it.
type Request struct {
	// ID is optional; the orchestrator assigns a UUID when empty.
	ID         string   `json:"id,omitempty"`
	Executable string   `json:"executable"`
	GameMod    string   `json:"game_mod"`
	ExtraArgs  string   `json:"extra_args"`
	Targets    []Target `json:"targets"`
}

// CommandLine returns the argument string handed to the new process.
func (r Request) CommandLine() string {
	return CommandLine(r.GameMod, r.ExtraArgs)
}

// CommandLine builds "-game <mod> <extras>", substituting DefaultGameMod for
// an empty mod. The result is passed to the process verbatim.
func CommandLine(gameMod, extras string) string {
	if gameMod == "" {
		gameMod = DefaultGameMod
	}
	return "-game " + gameMod + " " + extras
}

// Result is returned when the primary thread has been resumed.
type Result struct {
	LaunchID    string           `json:"launch_id"`
	PID         uint32           `json:"pid"`
	CommandLine string           `json:"command_line"`
	Injected    []InjectedModule `json:"injected"`
	StartedAt   time.Time        `json:"started_at"`
	Duration    time.Duration    `json:"duration"`
}
