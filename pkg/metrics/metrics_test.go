package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Frame("alice", "status")
	m.Frame("alice", "status")
	m.CommandFailed("bob", "drbd", 255)
	m.Connected("alice", true)
	m.Connected("bob", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Frames.WithLabelValues("alice", "status")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandFailures.WithLabelValues("bob", "drbd", "255")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HostConnected.WithLabelValues("alice")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HostConnected.WithLabelValues("bob")))

	n, err := testutil.GatherAndCount(reg, "clusterwatch_crm_frames_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Frame("a", "status")
		m.CommandFailed("a", "crm", 1)
		m.DrbdEvent("a")
		m.Batch("vms")
		m.Connected("a", true)
	})
}
