package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	inv, err := Parse(`<vms>
  <vm name="web2" running="no"/>
  <vm name="db" running="yes" vcpus="4" memory="2048" config="/etc/libvirt/qemu/db.xml"/>
</vms>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "web2"}, inv.Names())
	assert.Equal(t, 2, inv.Len())

	d, ok := inv.Domain("db")
	require.True(t, ok)
	assert.True(t, d.Running)
	assert.Equal(t, 4, d.VCPUs)
	assert.Equal(t, "db", DomainFromConfig(d.Config))
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("<vms><vm running='yes'/></vms>")
	assert.Error(t, err)
	_, err = Parse("not xml")
	assert.Error(t, err)
}

func TestNilInventory(t *testing.T) {
	var inv *Inventory
	assert.Nil(t, inv.Names())
	assert.Zero(t, inv.Len())
}
