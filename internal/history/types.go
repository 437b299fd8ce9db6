package history

import (
	"errors"
	"time"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

var ErrNotFound = errors.New("launch not found")

// Module is an injection target as it was at launch time.
type Module struct {
	Role    string `json:"role"`
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
	// Blake3 is empty for disabled or unreadable modules.
	Blake3 string `json:"blake3,omitempty"`
}

// Entry is one row of the launch log.
type Entry struct {
	ID          string     `json:"id"`
	Profile     string     `json:"profile"`
	Executable  string     `json:"executable"`
	CommandLine string     `json:"command_line"`
	Modules     []Module   `json:"modules"`
	Status      Status     `json:"status"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	Error       string     `json:"error,omitempty"`
	PID         uint32     `json:"pid,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
