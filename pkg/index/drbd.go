package index

import (
	"sort"
	"strings"

	"clusterwatch/pkg/model"
)

// Drbd indexes DRBD resources by name and volumes by device. The two maps
// have separate locks; neither is held while the other is taken.
type Drbd struct {
	resources *Guarded[map[string]*model.DrbdResourceInfo]
	devices   *Guarded[map[string]*model.DrbdVolumeInfo]
}

func NewDrbd() *Drbd {
	return &Drbd{
		resources: NewGuarded(map[string]*model.DrbdResourceInfo{}),
		devices:   NewGuarded(map[string]*model.DrbdVolumeInfo{}),
	}
}

// GetOrCreateResource returns the resource called name, creating it with
// create when missing. The second result reports whether it was created.
func (d *Drbd) GetOrCreateResource(name string, create func() *model.DrbdResourceInfo) (*model.DrbdResourceInfo, bool) {
	var (
		r       *model.DrbdResourceInfo
		created bool
	)
	d.resources.With(func(m *map[string]*model.DrbdResourceInfo) {
		if existing, ok := (*m)[name]; ok {
			r = existing
			return
		}
		r = create()
		(*m)[name] = r
		created = true
	})
	return r, created
}

// Resource looks a resource up by name.
func (d *Drbd) Resource(name string) (*model.DrbdResourceInfo, bool) {
	var (
		r  *model.DrbdResourceInfo
		ok bool
	)
	d.resources.With(func(m *map[string]*model.DrbdResourceInfo) { r, ok = (*m)[name] })
	return r, ok
}

// RemoveResource drops a resource.
func (d *Drbd) RemoveResource(name string) {
	d.resources.With(func(m *map[string]*model.DrbdResourceInfo) { delete(*m, name) })
}

// Resources returns all resources sorted case-insensitively by name.
func (d *Drbd) Resources() []*model.DrbdResourceInfo {
	out := Read(d.resources, func(m *map[string]*model.DrbdResourceInfo) []*model.DrbdResourceInfo {
		out := make([]*model.DrbdResourceInfo, 0, len(*m))
		for _, r := range *m {
			out = append(out, r)
		}
		return out
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name()), strings.ToLower(out[j].Name())
		if a != b {
			return a < b
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// PutDevice maps a DRBD device path to its volume.
func (d *Drbd) PutDevice(device string, v *model.DrbdVolumeInfo) {
	d.devices.With(func(m *map[string]*model.DrbdVolumeInfo) { (*m)[device] = v })
}

// RemoveDevice drops a device mapping if it still points at v.
func (d *Drbd) RemoveDevice(device string, v *model.DrbdVolumeInfo) {
	d.devices.With(func(m *map[string]*model.DrbdVolumeInfo) {
		if (*m)[device] == v {
			delete(*m, device)
		}
	})
}

// Device looks a volume up by device path.
func (d *Drbd) Device(device string) (*model.DrbdVolumeInfo, bool) {
	var (
		v  *model.DrbdVolumeInfo
		ok bool
	)
	d.devices.With(func(m *map[string]*model.DrbdVolumeInfo) { v, ok = (*m)[device] })
	return v, ok
}
