package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clusterwatch/pkg/crm"
	"clusterwatch/pkg/drbd"
)

func TestSetIDOnlyOnce(t *testing.T) {
	s := NewService("Filesystem", crm.ClassOCF)
	require.True(t, s.SetID("1"))
	assert.Equal(t, "res_Filesystem_1", s.HeartbeatID())

	assert.False(t, s.SetID("2"))
	assert.False(t, s.SetHeartbeatID("res_Filesystem_7"))
	assert.Equal(t, "1", s.ID())
	assert.Equal(t, "res_Filesystem_1", s.HeartbeatID())
}

func TestHeartbeatIDPrefixes(t *testing.T) {
	cases := []struct {
		name, class, id, hbID string
	}{
		{crm.GroupName, "", "3", "grp_3"},
		{crm.CloneName, "", "1", "cl_1"},
		{crm.MasterSlaveName, "", "2", "ms_2"},
		{"external/ssh", crm.ClassStonith, "1", "stonith_external/ssh_1"},
		{"IPaddr2", crm.ClassOCF, "4", "res_IPaddr2_4"},
	}
	for _, c := range cases {
		t.Run(c.hbID, func(t *testing.T) {
			s := NewService(c.name, c.class)
			s.SetID(c.id)
			assert.Equal(t, c.hbID, s.HeartbeatID())

			r := NewService(c.name, c.class)
			r.SetHeartbeatID(c.hbID)
			assert.Equal(t, c.id, r.ID())
		})
	}
}

func TestSetIDWithPrefixUsedAsIs(t *testing.T) {
	s := NewService(crm.GroupName, "")
	s.SetID("grp_web")
	assert.Equal(t, "grp_web", s.HeartbeatID())
	assert.Equal(t, "web", s.ID())
}

func TestForeignHeartbeatID(t *testing.T) {
	s := NewService("IPaddr2", crm.ClassOCF)
	s.SetHeartbeatID("vip")
	assert.Equal(t, "vip", s.ID())
	assert.Equal(t, "vip", s.HeartbeatID())
}

func TestAvailability(t *testing.T) {
	s := NewService("IPaddr2", crm.ClassOCF)
	assert.True(t, s.IsAvailable())
	s.SetRemoved(true)
	assert.True(t, s.IsRemoved())
	s.SetRemoved(false)
	assert.True(t, s.IsRemoved())
	s.DoneRemoving()
	assert.False(t, s.IsRemoved())

	s.SetNew(true)
	assert.False(t, s.IsAvailable())
	s.SetAvailable()
	assert.True(t, s.IsAvailable())
}

func TestServiceInfoUpdate(t *testing.T) {
	r := crm.Resource{
		ID:        "res_VirtualDomain_1",
		Kind:      crm.KindPrimitive,
		Agent:     crm.Agent{Class: crm.ClassOCF, Provider: "heartbeat", Type: "VirtualDomain"},
		RunningOn: []string{"a"},
		Params:    map[string]string{"config": "/etc/libvirt/qemu/web.xml"},
	}
	si := ServiceInfoFor(r)
	assert.True(t, si.Update(r))
	assert.False(t, si.Update(r))
	assert.Equal(t, "web", si.VM())

	si.Reset()
	assert.Empty(t, si.Params())
	assert.True(t, si.Update(r))
}

func TestDrbdResourceVolumeOrCreate(t *testing.T) {
	r := NewDrbdResourceInfo("r0", []string{"a", "b"})
	calls := 0
	create := func() *DrbdVolumeInfo {
		calls++
		return NewDrbdVolumeInfo(drbd.VolumeKey{Resource: "r0", Volume: "0"}, "/dev/drbd0", nil)
	}
	v1, created := r.VolumeOrCreate("0", create)
	assert.True(t, created)
	v2, created := r.VolumeOrCreate("0", create)
	assert.False(t, created)
	assert.Same(t, v1, v2)
	assert.Equal(t, 1, calls)
}

func TestVMInfoUpdate(t *testing.T) {
	v := NewVMInfo("web")
	assert.True(t, v.Update([]string{"a"}))
	assert.False(t, v.Update([]string{"a"}))
	assert.Equal(t, []string{"a"}, v.RunningOn())
}
