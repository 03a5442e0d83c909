package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clusterwatch/pkg/crm"
	"clusterwatch/pkg/drbd"
	"clusterwatch/pkg/graph"
	"clusterwatch/pkg/hwinfo"
	"clusterwatch/pkg/index"
	"clusterwatch/pkg/model"
	"clusterwatch/pkg/vm"
)

const pairConfig = `<config>
  <resource name="r0" protocol="C">
    <host name="alice">
      <volume vnr="0"><device minor="0">/dev/drbd0</device><disk>/dev/sdb1</disk></volume>
      <volume vnr="1"><device minor="1">/dev/drbd1</device><disk>/dev/sdc1</disk></volume>
    </host>
    <host name="bob">
      <volume vnr="0"><device minor="0">/dev/drbd0</device><disk>/dev/sdb1</disk></volume>
    </host>
  </resource>
  <resource name="stacked" protocol="A">
    <host name="alice">
      <volume vnr="0"><device minor="10">/dev/drbd10</device><disk>/dev/drbd0</disk></volume>
    </host>
    <host name="bob">
      <volume vnr="0"><device minor="10">/dev/drbd10</device><disk>/dev/drbd0</disk></volume>
    </host>
  </resource>
</config>`

type fixture struct {
	r         *Reconciler
	services  *index.Services
	drbd      *index.Drbd
	svcGraph  *graph.Graph
	drbdGraph *graph.Graph
	batches   []Batch
}

func newFixture() *fixture {
	f := &fixture{
		services:  index.NewServices(),
		drbd:      index.NewDrbd(),
		svcGraph:  graph.New("services"),
		drbdGraph: graph.New("drbd"),
	}
	tree := NewTree()
	tree.Subscribe(func(b Batch) { f.batches = append(f.batches, b) })
	f.r = New(Config{
		Services:     f.services,
		Drbd:         f.drbd,
		Tree:         tree,
		ServiceGraph: f.svcGraph,
		DrbdGraph:    f.drbdGraph,
	})
	return f
}

func status(t *testing.T, body string) *crm.ClusterStatus {
	cs, err := crm.TextParser{}.Parse("---start---\r\n" + body + "---done---\r\n")
	require.NoError(t, err)
	return cs
}

func snapshot(t *testing.T, raw string) *drbd.Snapshot {
	cfg, err := drbd.ParseConfig(raw)
	require.NoError(t, err)
	return drbd.Build([]*drbd.Config{cfg}, nil)
}

func addedKeys(b Batch) []string {
	var keys []string
	for _, in := range b.Added {
		keys = append(keys, in.Key)
	}
	return keys
}

func TestTreeInsertPositions(t *testing.T) {
	tree := NewTree()
	b := tree.Apply(Batch{Category: CategoryVMs, Added: []Insert{{Key: "web"}, {Key: "DB"}}})
	assert.Equal(t, []Insert{{Key: "DB", Index: 0}, {Key: "web", Index: 1}}, b.Added)

	b = tree.Apply(Batch{Category: CategoryVMs, Removed: []string{"DB"}, Added: []Insert{{Key: "app"}, {Key: "zeta"}}})
	assert.Equal(t, []Insert{{Key: "app", Index: 0}, {Key: "zeta", Index: 2}}, b.Added)
	assert.Equal(t, []string{"app", "web", "zeta"}, tree.Children(CategoryVMs))
	assert.Empty(t, tree.Children(CategoryDrbd))
}

func TestTreeSkipsEmptyBatches(t *testing.T) {
	tree := NewTree()
	calls := 0
	tree.Subscribe(func(Batch) { calls++ })
	tree.Apply(Batch{Category: CategoryServices})
	assert.Zero(t, calls)
}

func TestServicesReconcileIsIdempotent(t *testing.T) {
	f := newFixture()
	cs := status(t, "dc:alice\r\nnode:alice online\r\n"+
		"resource:grp_1 group\r\n"+
		"resource:res_Filesystem_1 ocf:heartbeat:Filesystem container=grp_1 running=alice device=/dev/drbd0\r\n"+
		"resource:res_IPaddr2_1 ocf:heartbeat:IPaddr2 running=alice ip=10.0.0.10\r\n")

	b := f.r.Services(cs)
	assert.Equal(t, []string{"grp_1", "res_Filesystem_1", "res_IPaddr2_1"}, addedKeys(b))
	assert.Equal(t, 3, f.services.Len())
	fs, ok := f.services.ByCrmID("res_Filesystem_1")
	require.True(t, ok)
	assert.Equal(t, "1", fs.ID())
	assert.Equal(t, "/dev/drbd0", fs.Param("device"))
	assert.Equal(t, int64(1), f.svcGraph.Repaints())

	again := f.r.Services(cs)
	assert.True(t, again.Empty())
	assert.Equal(t, 3, f.services.Len())
	assert.Equal(t, int64(1), f.svcGraph.Repaints())
	assert.Len(t, f.batches, 1)
}

func TestServicesRemovalSparesNewNodes(t *testing.T) {
	f := newFixture()
	f.r.Services(status(t, "resource:res_IPaddr2_1 ocf:heartbeat:IPaddr2\r\n"))

	pending := model.NewServiceInfo("Filesystem", crm.KindPrimitive, crm.Agent{Class: crm.ClassOCF, Provider: "heartbeat", Type: "Filesystem"})
	pending.SetNew(true)
	require.True(t, f.services.Add(pending))

	b := f.r.Services(status(t, ""))
	assert.Equal(t, []string{"res_IPaddr2_1"}, b.Removed)
	_, ok := f.services.ByCrmID("res_IPaddr2_1")
	assert.False(t, ok)
	_, ok = f.services.ByCrmID(pending.HeartbeatID())
	assert.True(t, ok)

	b = f.r.Services(status(t, "resource:"+pending.HeartbeatID()+" ocf:heartbeat:Filesystem\r\n"))
	assert.Equal(t, []string{pending.HeartbeatID()}, b.Updated)
	assert.False(t, pending.IsNew())
}

func TestDrbdPairsTwoEndpoints(t *testing.T) {
	f := newFixture()
	devs := []hwinfo.BlockDevice{{Name: "/dev/sdb1"}, {Name: "/dev/sdc1"}}
	f.drbdGraph.AddHost("alice", devs)
	f.drbdGraph.AddHost("bob", devs[:1])
	snap := snapshot(t, pairConfig)

	b := f.r.Drbd(snap, []string{"alice", "bob"})
	assert.Equal(t, []string{"r0/0"}, addedKeys(b))
	res, ok := f.drbd.Resource("r0")
	require.True(t, ok)
	assert.Equal(t, "C", res.Protocol())
	assert.Equal(t, []string{"alice", "bob"}, res.Hosts())
	_, ok = res.Volume("1")
	assert.False(t, ok, "single endpoint volume is not created")
	_, ok = f.drbd.Resource("stacked")
	assert.False(t, ok)

	v, ok := f.drbd.Device("/dev/drbd0")
	require.True(t, ok)
	assert.Len(t, v.Endpoints(), 2)
	assert.Equal(t, "r0", f.drbdGraph.FindBlockDevice("bob", "/dev/sdb1").Resource())
	assert.Equal(t, "r0", f.drbdGraph.FindBlockDevice("alice", "/dev/sdc1").Resource())

	assert.True(t, f.r.Drbd(snap, []string{"alice", "bob"}).Empty())
}

func TestDrbdIgnoresHostsOutsideCluster(t *testing.T) {
	f := newFixture()
	f.drbdGraph.AddHost("alice", []hwinfo.BlockDevice{{Name: "/dev/sdb1"}})
	f.drbdGraph.AddHost("bob", []hwinfo.BlockDevice{{Name: "/dev/sdb1"}})

	b := f.r.Drbd(snapshot(t, pairConfig), []string{"alice"})
	assert.True(t, b.Empty())
	assert.Empty(t, f.drbd.Resources())
}

func TestDrbdStateChangesAndRemoval(t *testing.T) {
	f := newFixture()
	devs := []hwinfo.BlockDevice{{Name: "/dev/sdb1"}}
	f.drbdGraph.AddHost("alice", devs)
	f.drbdGraph.AddHost("bob", devs)
	hosts := []string{"alice", "bob"}
	snap := snapshot(t, pairConfig)
	f.r.Drbd(snap, hosts)

	ev, ok := drbd.ParseEvent("change device name:r0 volume:0 minor:0 disk:UpToDate").(*drbd.Event)
	require.True(t, ok)
	next, changed := snap.ApplyEvent("alice", ev)
	require.True(t, changed)

	b := f.r.Drbd(next, hosts)
	assert.Equal(t, []string{"r0/0"}, b.Updated)
	v, _ := f.drbd.Device("/dev/drbd0")
	assert.Equal(t, "UpToDate", v.State("alice").Disk)

	b = f.r.Drbd(drbd.EmptySnapshot(), hosts)
	assert.Equal(t, []string{"r0/0"}, b.Removed)
	_, ok = f.drbd.Resource("r0")
	assert.False(t, ok)
	_, ok = f.drbd.Device("/dev/drbd0")
	assert.False(t, ok)
	assert.Equal(t, int64(3), f.drbdGraph.Repaints())
}

func TestVMsInsertSortedAndFlagCRMUse(t *testing.T) {
	f := newFixture()
	inv := func(raw string) *vm.Inventory {
		i, err := vm.Parse(raw)
		require.NoError(t, err)
		return i
	}

	b := f.r.VMs(map[string]*vm.Inventory{
		"alice": inv(`<vms><vm name="web" running="yes"/><vm name="db"/></vms>`),
	})
	assert.Equal(t, []Insert{{Key: "db", Index: 0}, {Key: "web", Index: 1}}, b.Added)
	web, ok := f.r.VM("web")
	require.True(t, ok)
	assert.Equal(t, []string{"alice"}, web.RunningOn())

	b = f.r.VMs(map[string]*vm.Inventory{
		"alice": inv(`<vms><vm name="web"/><vm name="app"/></vms>`),
		"bob":   inv(`<vms><vm name="web" running="yes"/></vms>`),
	})
	assert.Equal(t, []Insert{{Key: "app", Index: 0}}, b.Added)
	assert.Equal(t, []string{"db"}, b.Removed)
	assert.Equal(t, []string{"web"}, b.Updated)
	assert.Equal(t, []string{"bob"}, web.RunningOn())

	f.r.Services(status(t, "resource:res_VirtualDomain_1 ocf:heartbeat:VirtualDomain running=bob config=/etc/libvirt/qemu/web.xml\r\n"))
	assert.True(t, web.UsedByCRM())
	app, _ := f.r.VM("app")
	assert.False(t, app.UsedByCRM())

	names := []string{}
	for _, v := range f.r.VMList() {
		names = append(names, v.Name())
	}
	assert.Equal(t, []string{"app", "web"}, names)
}

func TestCommonBlockDevices(t *testing.T) {
	f := newFixture()
	b := f.r.BlockDevices([][]hwinfo.BlockDevice{
		{{Name: "/dev/sdb1"}, {Name: "/dev/sdc1"}},
		{{Name: "/dev/sdb1"}},
	})
	assert.Equal(t, []string{"/dev/sdb1"}, addedKeys(b))
	assert.Equal(t, []string{"/dev/sdb1"}, f.r.CommonBlockDevices())

	b = f.r.BlockDevices([][]hwinfo.BlockDevice{{{Name: "/dev/sdc1"}}, {{Name: "/dev/sdc1"}}})
	assert.Equal(t, []string{"/dev/sdb1"}, b.Removed)
	assert.Equal(t, []string{"/dev/sdc1"}, addedKeys(b))
}
