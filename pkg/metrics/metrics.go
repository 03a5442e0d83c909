// Package metrics exposes the watcher's prometheus collectors.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "clusterwatch"

// Metrics groups the collectors updated by the polling loops.
type Metrics struct {
	Frames          *prometheus.CounterVec
	CommandFailures *prometheus.CounterVec
	DrbdEvents      *prometheus.CounterVec
	Batches         *prometheus.CounterVec
	HostConnected   *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crm_frames_total",
			Help:      "Cluster status frames processed, by frame kind.",
		}, []string{"host", "kind"}),
		CommandFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_failures_total",
			Help:      "Remote commands that ended with an error, by loop and exit code.",
		}, []string{"host", "loop", "exit_code"}),
		DrbdEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drbd_events_total",
			Help:      "DRBD event lines that changed the snapshot.",
		}, []string{"host"}),
		Batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_batches_total",
			Help:      "Non-empty tree batches published, by category.",
		}, []string{"category"}),
		HostConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_connected",
			Help:      "1 when the last probe of the host succeeded.",
		}, []string{"host"}),
	}
	if reg != nil {
		reg.MustRegister(m.Frames, m.CommandFailures, m.DrbdEvents, m.Batches, m.HostConnected)
	}
	return m
}

// Frame counts one processed status frame. Safe on a nil receiver.
func (m *Metrics) Frame(host, kind string) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(host, kind).Inc()
}

// CommandFailed counts a failed remote command.
func (m *Metrics) CommandFailed(host, loop string, exitCode int) {
	if m == nil {
		return
	}
	m.CommandFailures.WithLabelValues(host, loop, strconv.Itoa(exitCode)).Inc()
}

func (m *Metrics) DrbdEvent(host string) {
	if m == nil {
		return
	}
	m.DrbdEvents.WithLabelValues(host).Inc()
}

func (m *Metrics) Batch(category string) {
	if m == nil {
		return
	}
	m.Batches.WithLabelValues(category).Inc()
}

// Connected records the probe outcome of host.
func (m *Metrics) Connected(host string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.HostConnected.WithLabelValues(host).Set(v)
}
