// Package log configures the process-wide slog logger. Output goes to stderr
// so stdout stays clean for command output.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LaunchKey is the attribute carrying a launch id on every line of a launch.
const LaunchKey = "launch_id"

var (
	mu     sync.Mutex
	global *slog.Logger
)

// Setup installs the global logger once; later calls are ignored. Unknown
// levels fall back to INFO and unknown formats to JSON.
func Setup(level, format string) {
	mu.Lock()
	defer mu.Unlock()
	if global != nil {
		return
	}
	global = New(os.Stderr, level, format)
	slog.SetDefault(global)
}

// New builds a logger writing to w without touching the global one.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel maps a launcher.log_level value to a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func current() *slog.Logger {
	Setup("INFO", "json")
	mu.Lock()
	defer mu.Unlock()
	return global
}

// WithComponent returns the global logger tagged with component=name.
func WithComponent(name string) *slog.Logger {
	return current().With(slog.String("component", name))
}

// ForLaunch tags base with the launch id.
func ForLaunch(base *slog.Logger, id string) *slog.Logger {
	return base.With(slog.String(LaunchKey, id))
}
