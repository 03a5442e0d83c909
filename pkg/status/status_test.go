package status

import (
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clusterwatch/pkg/crm"
	"clusterwatch/pkg/host"
	"clusterwatch/pkg/hwinfo"
	"clusterwatch/pkg/remote/remotetest"
)

func newHost(name string, connected, stack bool) *host.Host {
	h := host.New(name, remotetest.New(), log.NewEntry(log.New()))
	h.SetConnected(connected)
	h.SetClStatus(connected)
	h.SetStack(hwinfo.Stack{Corosync: stack})
	return h
}

func parse(t *testing.T, body string) *crm.ClusterStatus {
	cs, err := crm.TextParser{}.Parse("---start---\r\n" + body + "---done---\r\n")
	require.NoError(t, err)
	return cs
}

func TestDCHostReportedDC(t *testing.T) {
	a, b := newHost("A", true, true), newHost("B", true, true)
	store := NewStore()
	store.SetClusterStatus(parse(t, "dc:A\r\nnode:A online\r\nnode:B offline\r\n"))
	e := NewElector([]*host.Host{a, b}, store)

	assert.Same(t, a, e.DCHost())
	assert.True(t, e.IsRealDC(a))
	assert.False(t, e.IsRealDC(b))
}

func TestDCHostFallsBackRoundRobin(t *testing.T) {
	a, b, c := newHost("A", true, true), newHost("B", false, true), newHost("C", true, true)
	store := NewStore()
	store.SetClusterStatus(parse(t, "dc:A\r\nnode:A online\r\nnode:B online\r\nnode:C online\r\n"))
	e := NewElector([]*host.Host{a, b, c}, store)
	require.Same(t, a, e.DCHost())

	store.SetClusterStatus(store.ClusterStatus().WithNodeOffline("A"))
	assert.Same(t, c, e.DCHost())
	assert.False(t, e.IsRealDC(c))

	assert.Same(t, a, e.DCHost(), "round robin continues after the previous pick")
}

func TestDCHostRejectsTransitionalDC(t *testing.T) {
	a, b := newHost("A", true, true), newHost("B", true, true)
	a.SetStack(hwinfo.Stack{Corosync: true, Stopping: true})
	store := NewStore()
	store.SetClusterStatus(parse(t, "dc:A\r\nnode:A online\r\nnode:B online\r\n"))
	e := NewElector([]*host.Host{a, b}, store)

	assert.Same(t, b, e.DCHost())
}

func TestDCHostKeepsPreviousOrFirst(t *testing.T) {
	a, b := newHost("A", false, false), newHost("B", false, false)
	e := NewElector([]*host.Host{a, b}, NewStore())
	assert.Same(t, a, e.DCHost())

	b.SetConnected(true)
	b.SetStack(hwinfo.Stack{Heartbeat: true})
	assert.Same(t, b, e.DCHost())

	b.SetConnected(false)
	assert.Same(t, b, e.DCHost())
	assert.Nil(t, NewElector(nil, NewStore()).DCHost())
}

func TestStandbyAndAllHostsDown(t *testing.T) {
	a, b := newHost("A", true, true), newHost("B", true, true)
	store := NewStore()
	store.SetClusterStatus(parse(t, "node:A online standby=on\r\nnode:B online standby=off\r\n"))
	e := NewElector([]*host.Host{a, b}, store)

	assert.True(t, e.IsStandby(a))
	assert.False(t, e.IsStandby(b))
	assert.False(t, e.AllHostsDown())

	a.SetClStatus(false)
	b.SetClStatus(false)
	assert.True(t, e.ClusterStatusFailed())
}

func TestStoreSwapIsWhole(t *testing.T) {
	store := NewStore()
	first := parse(t, "dc:A\r\nnode:A online\r\nnode:B online\r\n")
	second := parse(t, "dc:B\r\nnode:A offline\r\nnode:B online\r\n")

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			cs := store.ClusterStatus()
			if cs.DC() == "A" {
				assert.True(t, cs.IsOnline("A"))
			}
			if cs.DC() == "B" {
				assert.False(t, cs.IsOnline("A"))
			}
		}
	}()
	for i := 0; i < 1000; i++ {
		if i%2 == 0 {
			store.SetClusterStatus(first)
		} else {
			store.SetClusterStatus(second)
		}
	}
	close(stop)
	wg.Wait()
}

func TestTryDrbdLock(t *testing.T) {
	store := NewStore()
	ran := false
	store.WithDrbdLock(func() {
		assert.False(t, store.TryDrbdLock(func() { ran = true }))
	})
	assert.False(t, ran)
	assert.True(t, store.TryDrbdLock(func() { ran = true }))
	assert.True(t, ran)
}
