// Package metrics exports launch outcomes and timings as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mattjoyce/bxt-launcher/internal/launch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bxt_launcher"

type pendingWait struct {
	index int
	since time.Time
}

// Collector implements launch.Observer and keeps its own registry so that
// several launchers in one process (tests, mostly) never collide.
type Collector struct {
	transitions       *prometheus.CounterVec
	launches          *prometheus.CounterVec
	launchDuration    prometheus.Histogram
	readinessDuration *prometheus.HistogramVec
	inFlight          prometheus.Gauge

	registry *prometheus.Registry

	mu sync.Mutex
	// waiting holds the module each launch is currently waiting on.
	waiting map[string]pendingWait
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		waiting:  make(map[string]pendingWait),
	}

	c.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Launch state machine transitions",
		},
		[]string{"from_state", "to_state"},
	)
	c.launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launches_total",
			Help:      "Finished launches by outcome and error kind",
		},
		[]string{"status", "error_kind"},
	)
	c.launchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "launch_duration_seconds",
			Help:      "Time from validation to resume of successful launches",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
	c.readinessDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "readiness_wait_seconds",
			Help:      "Time each module took to signal readiness",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"target_index"},
	)
	c.inFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "launches_in_flight",
			Help:      "Launches that have started but not finished",
		},
	)

	c.registry.MustRegister(
		c.transitions,
		c.launches,
		c.launchDuration,
		c.readinessDuration,
		c.inFlight,
	)
	return c
}

// OnTransition records one state change.
func (c *Collector) OnTransition(t launch.Transition) {
	c.transitions.WithLabelValues(t.From.String(), t.To.String()).Inc()

	switch t.To {
	case launch.StateValidating:
		c.inFlight.Inc()
	case launch.StateAwaitingSignal:
		c.mu.Lock()
		c.waiting[t.LaunchID] = pendingWait{index: t.Index, since: t.At}
		c.mu.Unlock()
	case launch.StateDone:
		c.inFlight.Dec()
		c.launches.WithLabelValues("succeeded", "").Inc()
		c.launchDuration.Observe(t.Elapsed.Seconds())
		c.forget(t.LaunchID)
	case launch.StateFailed:
		c.inFlight.Dec()
		c.launches.WithLabelValues("failed", launch.KindOf(t.Err)).Inc()
		c.forget(t.LaunchID)
	}

	// Leaving AwaitingSignal for anything but failure means the module signalled.
	if t.From == launch.StateAwaitingSignal && t.To != launch.StateFailed {
		c.mu.Lock()
		w, ok := c.waiting[t.LaunchID]
		delete(c.waiting, t.LaunchID)
		c.mu.Unlock()
		if ok {
			c.readinessDuration.WithLabelValues(strconv.Itoa(w.index)).Observe(t.At.Sub(w.since).Seconds())
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) forget(id string) {
	c.mu.Lock()
	delete(c.waiting, id)
	c.mu.Unlock()
}
