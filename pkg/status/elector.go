package status

import (
	"strings"
	"sync"

	"clusterwatch/pkg/host"
)

// Elector picks the host cluster commands are sent to.
type Elector struct {
	hosts []*host.Host
	store *Store

	mu     sync.Mutex
	lastDC *host.Host
	realDC *host.Host
}

// NewElector elects among hosts, in configuration order.
func NewElector(hosts []*host.Host, store *Store) *Elector {
	return &Elector{hosts: hosts, store: store}
}

// DCHost returns the designated coordinator if it is usable, otherwise the
// next connected host with a running cluster stack after the previous pick,
// otherwise the previous pick, otherwise the first host. It returns nil only
// when no hosts are configured.
func (e *Elector) DCHost() *host.Host {
	if len(e.hosts) == 0 {
		return nil
	}
	cs := e.store.ClusterStatus()
	dc := cs.DC()

	e.mu.Lock()
	defer e.mu.Unlock()

	lastIndex := 0
	for i, h := range e.hosts {
		if h == e.lastDC {
			lastIndex = i
		}
		if dc != "" && strings.EqualFold(h.Name(), dc) && cs.IsOnline(h.Name()) && isUsableDC(h) {
			e.realDC = h
			e.lastDC = h
			return h
		}
	}

	n := len(e.hosts)
	for step := 1; step <= n; step++ {
		h := e.hosts[(lastIndex+step)%n]
		if h.IsConnected() && h.IsClusterStackRunning() {
			e.lastDC = h
			break
		}
	}
	e.realDC = nil
	if e.lastDC == nil {
		e.lastDC = e.hosts[0]
	}
	return e.lastDC
}

func isUsableDC(h *host.Host) bool {
	return h.ClStatus() &&
		!h.IsCommLayerStarting() &&
		!h.IsCommLayerStopping() &&
		h.IsClusterStackRunning()
}

// IsRealDC reports whether h was the CRM reported DC at the last election.
func (e *Elector) IsRealDC(h *host.Host) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return h != nil && h == e.realDC
}

// IsStandby reports whether the node is in standby.
func (e *Elector) IsStandby(h *host.Host) bool {
	v := e.store.ClusterStatus().NodeParam(h.Name(), "standby")
	return v == "on" || v == "true"
}

// AllHostsDown reports whether no host has a working cluster status.
func (e *Elector) AllHostsDown() bool {
	for _, h := range e.hosts {
		if h.ClStatus() {
			return false
		}
	}
	return true
}

// ClusterStatusFailed is AllHostsDown under the name the status loop uses.
func (e *Elector) ClusterStatusFailed() bool { return e.AllHostsDown() }

// Hosts returns the configured hosts.
func (e *Elector) Hosts() []*host.Host { return e.hosts }
