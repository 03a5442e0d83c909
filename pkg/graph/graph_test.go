package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clusterwatch/pkg/hwinfo"
)

func TestAddHostKeepsNodes(t *testing.T) {
	g := New("drbd")
	g.AddHost("a", []hwinfo.BlockDevice{{Name: "/dev/sdb"}, {Name: "/dev/sdc"}})
	sdb := g.FindBlockDevice("a", "/dev/sdb")
	require.NotNil(t, sdb)

	g.AddHost("a", []hwinfo.BlockDevice{{Name: "/dev/sdb", MountPoint: "/mnt"}})
	assert.Same(t, sdb, g.FindBlockDevice("a", "/dev/sdb"))
	assert.Equal(t, "/mnt", sdb.MountPoint())
	assert.Nil(t, g.FindBlockDevice("a", "/dev/sdc"))
	assert.Nil(t, g.FindBlockDevice("b", "/dev/sdb"))
	assert.Equal(t, []string{"a"}, g.Hosts())
}

func TestPositionsAndRepaint(t *testing.T) {
	g := New("services")
	g.SetPosition("res_IPaddr2_1", Position{X: 1, Y: 2})
	g.SetPosition("grp_1", Position{X: 3})
	g.RemovePosition("grp_1")
	assert.Equal(t, map[string]Position{"res_IPaddr2_1": {X: 1, Y: 2}}, g.Positions())

	calls := 0
	g.OnRepaint(func() { calls++ })
	g.Repaint()
	g.Repaint()
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(2), g.Repaints())
}
