package index

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clusterwatch/pkg/crm"
	"clusterwatch/pkg/drbd"
	"clusterwatch/pkg/model"
	"clusterwatch/pkg/vm"
)

var fsAgent = crm.Agent{Class: crm.ClassOCF, Provider: "heartbeat", Type: "Filesystem"}

func newFilesystem() *model.ServiceInfo {
	return model.NewServiceInfo("Filesystem", crm.KindPrimitive, fsAgent)
}

func TestConcurrentAddAssignsDistinctIDs(t *testing.T) {
	idx := NewServices()
	a, b := newFilesystem(), newFilesystem()

	var wg sync.WaitGroup
	for _, si := range []*model.ServiceInfo{a, b} {
		wg.Add(1)
		go func(si *model.ServiceInfo) {
			defer wg.Done()
			assert.True(t, idx.Add(si))
		}(si)
	}
	wg.Wait()

	assert.ElementsMatch(t, []string{"1", "2"}, []string{a.ID(), b.ID()})
	assert.Equal(t, 2, idx.Len())
	got, ok := idx.Lookup("filesystem", a.ID())
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestAddSkipsTakenNumbers(t *testing.T) {
	idx := NewServices()
	existing := newFilesystem()
	existing.SetHeartbeatID("res_Filesystem_7")
	require.True(t, idx.Add(existing))

	foreign := newFilesystem()
	foreign.SetHeartbeatID("mydata")
	require.True(t, idx.Add(foreign))

	next := newFilesystem()
	require.True(t, idx.Add(next))
	assert.Equal(t, "8", next.ID())
}

func TestAddRejectsTakenCrmID(t *testing.T) {
	idx := NewServices()
	a := newFilesystem()
	a.SetHeartbeatID("res_Filesystem_1")
	b := newFilesystem()
	b.SetHeartbeatID("res_Filesystem_1")

	assert.True(t, idx.Add(a))
	assert.False(t, idx.Add(b))
	got, _ := idx.ByCrmID("res_Filesystem_1")
	assert.Same(t, a, got)
}

func TestContainerScopedIDs(t *testing.T) {
	idx := NewServices()
	grp := model.NewServiceInfo(crm.GroupName, crm.KindGroup, crm.Agent{})
	require.True(t, idx.Add(grp))
	assert.Equal(t, "grp_1", grp.HeartbeatID())

	first := newFilesystem()
	first.SetContainer("grp_1")
	require.True(t, idx.Add(first))
	assert.Equal(t, "Group_1", first.ID())

	second := newFilesystem()
	second.SetContainer("grp_1")
	require.True(t, idx.Add(second))
	assert.Equal(t, "Group_1_2", second.ID())

	top := newFilesystem()
	require.True(t, idx.Add(top))
	assert.Equal(t, "1", top.ID())
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	idx := NewServices()
	calls := 0
	create := func() *model.ServiceInfo {
		calls++
		si := newFilesystem()
		si.SetHeartbeatID("res_Filesystem_1")
		return si
	}

	var wg sync.WaitGroup
	results := make([]*model.ServiceInfo, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = idx.GetOrCreate("res_Filesystem_1", create)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestRemoveUpdatesBothMaps(t *testing.T) {
	idx := NewServices()
	si := newFilesystem()
	require.True(t, idx.Add(si))
	idx.Remove(si)

	_, ok := idx.ByCrmID(si.HeartbeatID())
	assert.False(t, ok)
	_, ok = idx.Lookup(si.Name(), si.ID())
	assert.False(t, ok)
	assert.Zero(t, idx.Len())
}

func TestServiceQueries(t *testing.T) {
	idx := NewServices()
	linbit := model.NewServiceInfo("drbd", crm.KindPrimitive, crm.Agent{Class: crm.ClassOCF, Provider: "linbit", Type: "drbd"})
	fs := newFilesystem()
	orphan := newFilesystem()
	orphan.Update(crm.Resource{Orphaned: true})
	for _, si := range []*model.ServiceInfo{linbit, fs, orphan} {
		require.True(t, idx.Add(si))
	}

	assert.True(t, idx.IsOneLinbitDrbd())
	assert.False(t, idx.AtLeastOneDrbddisk())
	assert.Equal(t, []*model.ServiceInfo{linbit}, idx.ExistingServices(fs))
	assert.Equal(t, 2, idx.ResetFilesystems())
}

func TestDrbdIndex(t *testing.T) {
	d := NewDrbd()
	r, created := d.GetOrCreateResource("r0", func() *model.DrbdResourceInfo {
		return model.NewDrbdResourceInfo("r0", []string{"a", "b"})
	})
	require.True(t, created)
	again, created := d.GetOrCreateResource("r0", func() *model.DrbdResourceInfo {
		t.Fatal("created twice")
		return nil
	})
	assert.False(t, created)
	assert.Same(t, r, again)

	d.GetOrCreateResource("Alpha", func() *model.DrbdResourceInfo { return model.NewDrbdResourceInfo("Alpha", nil) })
	names := []string{}
	for _, res := range d.Resources() {
		names = append(names, res.Name())
	}
	assert.Equal(t, []string{"Alpha", "r0"}, names)

	v := model.NewDrbdVolumeInfo(drbd.VolumeKey{Resource: "r0", Volume: "0"}, "/dev/drbd0", nil)
	d.PutDevice(v.Device(), v)
	got, ok := d.Device("/dev/drbd0")
	require.True(t, ok)
	assert.Same(t, v, got)

	d.RemoveDevice("/dev/drbd0", model.NewDrbdVolumeInfo(v.Key(), v.Device(), nil))
	_, ok = d.Device("/dev/drbd0")
	assert.True(t, ok)
	d.RemoveDevice("/dev/drbd0", v)
	_, ok = d.Device("/dev/drbd0")
	assert.False(t, ok)

	d.RemoveResource("r0")
	_, ok = d.Resource("r0")
	assert.False(t, ok)
}

func TestVMs(t *testing.T) {
	a, err := vm.Parse(`<vms><vm name="web" running="yes"/><vm name="db"/></vms>`)
	require.NoError(t, err)
	b, err := vm.Parse(`<vms><vm name="web"/><vm name="mail" running="yes"/></vms>`)
	require.NoError(t, err)

	v := NewVMs()
	v.Put("a", a)
	v.Put("b", b)
	assert.Equal(t, []string{"db", "mail", "web"}, v.DomainNames())
	assert.Equal(t, []string{"a"}, RunningOn(v.Inventories(), "web"))
	assert.Same(t, a, v.Get("a"))
	assert.Nil(t, v.Get("c"))
}
