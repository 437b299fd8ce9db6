package events

import (
	"time"

	"github.com/mattjoyce/bxt-launcher/internal/launch"
)

// TransitionData is the payload of a launch.transition event.
type TransitionData struct {
	LaunchID  string `json:"launch_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Index     int    `json:"index"`
	Module    string `json:"module,omitempty"`
	PID       uint32 `json:"pid,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CompletedData is the payload of a launch.completed event.
type CompletedData struct {
	LaunchID  string `json:"launch_id"`
	Profile   string `json:"profile"`
	Status    string `json:"status"`
	PID       uint32 `json:"pid,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
	Duration  string `json:"duration"`
}

// NewTransitionData converts an orchestrator transition into its event payload.
func NewTransitionData(t launch.Transition) TransitionData {
	d := TransitionData{
		LaunchID:  t.LaunchID,
		From:      t.From.String(),
		To:        t.To.String(),
		Index:     t.Index,
		Module:    t.Module,
		PID:       t.PID,
		ElapsedMS: t.Elapsed.Milliseconds(),
	}
	if t.Err != nil {
		d.ErrorKind = launch.KindOf(t.Err)
		d.Error = t.Err.Error()
	}
	return d
}

// Observer publishes every transition it sees on the hub.
type Observer struct {
	hub *Hub
}

func NewObserver(h *Hub) *Observer {
	return &Observer{hub: h}
}

func (o *Observer) OnTransition(t launch.Transition) {
	o.hub.Publish(TypeTransition, NewTransitionData(t))
}

// PublishCompleted announces the final outcome of a launch.
func (h *Hub) PublishCompleted(d CompletedData) {
	h.Publish(TypeCompleted, d)
}

// FormatDuration renders d rounded to milliseconds for event payloads.
func FormatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
