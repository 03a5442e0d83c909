package drbd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aliceConfig = `<config file="/etc/drbd.conf">
  <resource name="r0" protocol="C">
    <host name="alice">
      <volume vnr="0">
        <device minor="0">/dev/drbd0</device>
        <disk>/dev/sdb1</disk>
      </volume>
      <volume vnr="1">
        <device minor="1"></device>
        <disk>/dev/sdc1</disk>
      </volume>
      <address family="ipv4" port="7788">10.0.0.1</address>
    </host>
    <host name="bob">
      <volume vnr="0">
        <device minor="0">/dev/drbd0</device>
        <disk>/dev/sdb1</disk>
      </volume>
      <address family="ipv4" port="7788">10.0.0.2</address>
    </host>
  </resource>
</config>`

const legacyConfig = `<config>
  <resource name="Legacy" protocol="B">
    <host name="alice">
      <device minor="5">/dev/drbd5</device>
      <disk>/dev/drbd0</disk>
    </host>
  </resource>
</config>`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(aliceConfig)
	require.NoError(t, err)
	require.Len(t, cfg.Resources, 1)

	r := cfg.Resources[0]
	assert.Equal(t, "C", r.Protocol)
	assert.Equal(t, "10.0.0.2:7788", r.Addresses["bob"])
	require.Len(t, r.Volumes, 2)
	assert.Equal(t, map[string]string{"alice": "/dev/sdb1", "bob": "/dev/sdb1"}, r.Volumes[0].Disks)
	assert.Equal(t, "/dev/drbd1", r.Volumes[1].Device)
}

func TestParseConfigWithoutVolumes(t *testing.T) {
	cfg, err := ParseConfig(legacyConfig)
	require.NoError(t, err)
	require.Len(t, cfg.Resources[0].Volumes, 1)
	v := cfg.Resources[0].Volumes[0]
	assert.Equal(t, "0", v.Number)
	assert.Equal(t, "/dev/drbd5", v.Device)
}

func TestParseConfigInvalid(t *testing.T) {
	_, err := ParseConfig("<config><resource")
	assert.Error(t, err)
}

func buildSnapshot(t *testing.T) *Snapshot {
	a, err := ParseConfig(aliceConfig)
	require.NoError(t, err)
	l, err := ParseConfig(legacyConfig)
	require.NoError(t, err)
	return Build([]*Config{a, l}, nil)
}

func TestBuildSnapshot(t *testing.T) {
	s := buildSnapshot(t)
	assert.Equal(t, []VolumeKey{{"Legacy", "0"}, {"r0", "0"}, {"r0", "1"}}, s.Keys())
	assert.Equal(t, []string{"Legacy", "r0"}, s.Resources())
	assert.True(t, s.IsDrbdDevice("/dev/drbd0"))
	assert.False(t, s.IsDrbdDevice("/dev/sdb1"))
	assert.Equal(t, "B", s.Protocol("Legacy"))
}

func TestParseEvent(t *testing.T) {
	ev, ok := ParseEvent("2024-01-01T10:00:00.5+00:00 change device name:r0 volume:1 disk:UpToDate").(*Event)
	require.True(t, ok)
	assert.Equal(t, "change", ev.Kind)
	assert.Equal(t, "device", ev.Object)
	assert.Equal(t, "r0", ev.Resource())
	assert.Equal(t, "1", ev.Volume())
	assert.False(t, ev.Timestamp.IsZero())

	ev, ok = ParseEvent("exists resource name:r0 role:Primary").(*Event)
	require.True(t, ok)
	assert.True(t, ev.Timestamp.IsZero())
	assert.Equal(t, "0", ev.Volume())

	ev, ok = ParseEvent("exists -").(*Event)
	require.True(t, ok)
	assert.Equal(t, "-", ev.Object)

	_, ok = ParseEvent("change device broken").(*UnparsedEvent)
	assert.True(t, ok)
	_, ok = ParseEvent("x").(*UnparsedEvent)
	assert.True(t, ok)
}

func TestApplyEventCopyOnWrite(t *testing.T) {
	s := buildSnapshot(t)
	ev := ParseEvent("change resource name:r0 role:Primary").(*Event)

	next, changed := s.ApplyEvent("alice", ev)
	require.True(t, changed)
	assert.Equal(t, "Primary", next.State("alice", VolumeKey{"r0", "0"}).Role)
	assert.Equal(t, "Primary", next.State("alice", VolumeKey{"r0", "1"}).Role)
	assert.Empty(t, s.State("alice", VolumeKey{"r0", "0"}).Role)

	again, changed := next.ApplyEvent("alice", ev)
	assert.False(t, changed)
	assert.Same(t, next, again)
}

func TestApplyEventUnknownResource(t *testing.T) {
	s := buildSnapshot(t)
	_, changed := s.ApplyEvent("alice", ParseEvent("change device name:nope volume:0 disk:Diskless").(*Event))
	assert.False(t, changed)
}

func TestBuildKeepsLiveState(t *testing.T) {
	s := buildSnapshot(t)
	s, _ = s.ApplyEvent("bob", ParseEvent("change peer-device name:r0 volume:0 replication:SyncSource peer-disk:Inconsistent").(*Event))

	a, err := ParseConfig(aliceConfig)
	require.NoError(t, err)
	rebuilt := Build([]*Config{a}, s)
	st := rebuilt.State("bob", VolumeKey{"r0", "0"})
	assert.Equal(t, "SyncSource", st.Replication)
	assert.Equal(t, "Inconsistent", st.PeerDisk)
	_, ok := rebuilt.Volume(VolumeKey{"Legacy", "0"})
	assert.False(t, ok)
}
