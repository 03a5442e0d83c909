// Package status holds the current cluster and DRBD snapshots and elects the
// host that cluster commands go to.
package status

import (
	"sync"
	"sync/atomic"

	"clusterwatch/pkg/crm"
	"clusterwatch/pkg/drbd"
)

// Store owns the current snapshots. Readers load them without locking; the
// processing locks serialize the loops that build new snapshots.
type Store struct {
	cluster  atomic.Pointer[crm.ClusterStatus]
	drbd     atomic.Pointer[drbd.Snapshot]
	drbdTest atomic.Pointer[drbd.Snapshot]

	clMu   sync.Mutex
	drbdMu sync.Mutex
}

// NewStore starts with empty snapshots.
func NewStore() *Store {
	s := &Store{}
	s.cluster.Store(crm.Empty())
	s.drbd.Store(drbd.EmptySnapshot())
	return s
}

// ClusterStatus returns the current cluster status. Never nil.
func (s *Store) ClusterStatus() *crm.ClusterStatus { return s.cluster.Load() }

// SetClusterStatus installs a new cluster status.
func (s *Store) SetClusterStatus(cs *crm.ClusterStatus) {
	if cs == nil {
		cs = crm.Empty()
	}
	s.cluster.Store(cs)
}

// Drbd returns the current DRBD snapshot. Never nil.
func (s *Store) Drbd() *drbd.Snapshot { return s.drbd.Load() }

// SetDrbd installs a new DRBD snapshot.
func (s *Store) SetDrbd(snap *drbd.Snapshot) {
	if snap == nil {
		snap = drbd.EmptySnapshot()
	}
	s.drbd.Store(snap)
}

// DrbdTest returns the snapshot of a dry run, nil when none is active.
func (s *Store) DrbdTest() *drbd.Snapshot { return s.drbdTest.Load() }

// SetDrbdTest installs or, with nil, clears the dry run snapshot.
func (s *Store) SetDrbdTest(snap *drbd.Snapshot) { s.drbdTest.Store(snap) }

// WithClusterStatusLock runs fn while holding the cluster status processing
// lock.
func (s *Store) WithClusterStatusLock(fn func()) {
	s.clMu.Lock()
	defer s.clMu.Unlock()
	fn()
}

// WithDrbdLock runs fn while holding the DRBD status processing lock.
func (s *Store) WithDrbdLock(fn func()) {
	s.drbdMu.Lock()
	defer s.drbdMu.Unlock()
	fn()
}

// TryDrbdLock runs fn only if the DRBD status lock is free. It reports
// whether fn ran.
func (s *Store) TryDrbdLock(fn func()) bool {
	if !s.drbdMu.TryLock() {
		return false
	}
	defer s.drbdMu.Unlock()
	fn()
	return true
}
