package hwinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullReport = `--disk-info--
/dev/sdc size:2048
/dev/sdb1 size:1048576 fs:ext4 mount:/data
bogus line
--cluster-info--
heartbeat:stopped
corosync:running
pacemaker:1.1.12
comm-layer:starting
--drbd-info--
loaded:yes
--installation-info--
whatever
`

func TestParseFull(t *testing.T) {
	info := Parse(fullReport)

	require.Len(t, info.BlockDevices, 2)
	assert.Equal(t, "/dev/sdb1", info.BlockDevices[0].Name)
	assert.Equal(t, uint64(1048576), info.BlockDevices[0].Size)
	assert.Equal(t, "/data", info.BlockDevices[0].MountPoint)
	assert.True(t, info.BlockDevices[0].Used())
	assert.False(t, info.BlockDevices[1].Used())

	assert.True(t, info.HasStack)
	assert.True(t, info.Stack.Running())
	assert.True(t, info.Stack.Corosync)
	assert.False(t, info.Stack.Heartbeat)
	assert.Equal(t, "1.1.12", info.Stack.Pacemaker)
	assert.True(t, info.Stack.Starting)

	assert.True(t, info.HasDrbd)
	assert.True(t, info.DrbdLoaded)
	assert.Equal(t, []string{"bogus line"}, info.Warnings)
}

func TestParseLazyKeepsDevicesNil(t *testing.T) {
	info := Parse("--cluster-info--\nopenais:running\n")
	assert.Nil(t, info.BlockDevices)
	assert.True(t, info.Stack.Openais)
	assert.False(t, info.HasDrbd)
}

func TestCommonBlockDevices(t *testing.T) {
	a := []BlockDevice{{Name: "/dev/sdb"}, {Name: "/dev/sdc"}}
	b := []BlockDevice{{Name: "/dev/sdc"}, {Name: "/dev/sdb"}, {Name: "/dev/sdd"}}
	assert.Equal(t, []string{"/dev/sdb", "/dev/sdc"}, CommonBlockDevices([][]BlockDevice{a, b}))
	assert.Nil(t, CommonBlockDevices(nil))
}
