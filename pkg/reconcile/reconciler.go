// Package reconcile folds parsed status snapshots into the long-lived
// resource model and publishes the resulting tree mutations.
package reconcile

import (
	"slices"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"clusterwatch/pkg/crm"
	"clusterwatch/pkg/drbd"
	"clusterwatch/pkg/hwinfo"
	"clusterwatch/pkg/index"
	"clusterwatch/pkg/model"
	"clusterwatch/pkg/vm"
)

// Painter is a graph that can be told to redraw.
type Painter interface {
	Repaint()
}

// DrbdGraph is the graph DRBD endpoints are matched against.
type DrbdGraph interface {
	Painter
	FindBlockDevice(host, disk string) *model.BlockDevInfo
}

// Config wires a Reconciler to its indices, graphs and tree. A nil Tree or
// Log gets a default.
type Config struct {
	Services     *index.Services
	Drbd         *index.Drbd
	Tree         *Tree
	ServiceGraph Painter
	DrbdGraph    DrbdGraph
	Log          *log.Entry
}

// Reconciler applies snapshots to the model. Each category is reconciled
// by one goroutine at a time.
type Reconciler struct {
	services     *index.Services
	drbd         *index.Drbd
	tree         *Tree
	serviceGraph Painter
	drbdGraph    DrbdGraph
	log          *log.Entry

	svcMu  sync.Mutex
	drbdMu sync.Mutex

	vmMu sync.Mutex
	vms  map[string]*model.VMInfo

	bdMu   sync.Mutex
	common map[string]model.CommonBlockDevice
}

func New(cfg Config) *Reconciler {
	if cfg.Tree == nil {
		cfg.Tree = NewTree()
	}
	if cfg.Log == nil {
		cfg.Log = log.NewEntry(log.StandardLogger())
	}
	return &Reconciler{
		services:     cfg.Services,
		drbd:         cfg.Drbd,
		tree:         cfg.Tree,
		serviceGraph: cfg.ServiceGraph,
		drbdGraph:    cfg.DrbdGraph,
		log:          cfg.Log.WithField("component", "reconcile"),
		vms:          map[string]*model.VMInfo{},
		common:       map[string]model.CommonBlockDevice{},
	}
}

func (r *Reconciler) Tree() *Tree { return r.tree }

// Services reconciles the service nodes against a cluster status.
func (r *Reconciler) Services(cs *crm.ClusterStatus) Batch {
	r.svcMu.Lock()
	defer r.svcMu.Unlock()

	have := map[string]*model.ServiceInfo{}
	for _, si := range r.services.Snapshot() {
		have[si.HeartbeatID()] = si
	}
	resources := map[string]crm.Resource{}
	var want []string
	for _, res := range cs.Resources() {
		resources[res.ID] = res
		want = append(want, res.ID)
	}
	p := diff(want, have)

	b := Batch{Category: CategoryServices}
	for _, id := range p.keep {
		si := have[id]
		confirmed := si.IsNew()
		if confirmed {
			si.SetAvailable()
		}
		if si.Update(resources[id]) || confirmed {
			b.Updated = append(b.Updated, id)
		}
	}
	for _, id := range p.remove {
		si := have[id]
		si.SetRemoved(true)
		r.services.Remove(si)
		si.DoneRemoving()
		b.Removed = append(b.Removed, id)
	}
	for _, id := range p.create {
		res := resources[id]
		si, created := r.services.GetOrCreate(id, func() *model.ServiceInfo {
			si := model.ServiceInfoFor(res)
			si.SetHeartbeatID(res.ID)
			si.SetContainer(res.Container)
			return si
		})
		if !created {
			r.log.WithField("crm_id", id).Warn("service id already taken, skipping")
			continue
		}
		si.Update(res)
		b.Added = append(b.Added, Insert{Key: id})
	}

	b = r.tree.Apply(b)
	if !b.Empty() && r.serviceGraph != nil {
		r.serviceGraph.Repaint()
	}
	r.markVMsUsedByCRM()
	return b
}

// Drbd reconciles resources and volumes against a DRBD snapshot. Only disks
// of clusterHosts are considered.
func (r *Reconciler) Drbd(snap *drbd.Snapshot, clusterHosts []string) Batch {
	r.drbdMu.Lock()
	defer r.drbdMu.Unlock()

	inCluster := make(map[string]bool, len(clusterHosts))
	for _, h := range clusterHosts {
		inCluster[h] = true
	}

	type owned struct {
		res *model.DrbdResourceInfo
		vol *model.DrbdVolumeInfo
	}
	have := map[string]*model.DrbdVolumeInfo{}
	owners := map[string]owned{}
	for _, res := range r.drbd.Resources() {
		for _, v := range res.Volumes() {
			have[v.Key().String()] = v
			owners[v.Key().String()] = owned{res: res, vol: v}
		}
	}
	keys := snap.Keys()
	want := make([]string, 0, len(keys))
	for _, k := range keys {
		want = append(want, k.String())
	}
	p := diff(want, have)
	creating := make(map[string]bool, len(p.create))
	for _, k := range p.create {
		creating[k] = true
	}

	b := Batch{Category: CategoryDrbd}
	for _, key := range keys {
		vol, _ := snap.Volume(key)
		endpoints := r.endpoints(snap, vol, inCluster)
		if len(endpoints) < 2 {
			continue
		}
		res, _ := r.drbd.GetOrCreateResource(key.Resource, func() *model.DrbdResourceInfo {
			hosts := make([]string, 0, len(endpoints))
			for _, bd := range endpoints {
				hosts = append(hosts, bd.Host())
			}
			return model.NewDrbdResourceInfo(key.Resource, hosts)
		})
		res.SetParameters(snap.Protocol(key.Resource))
		v, created := res.VolumeOrCreate(key.Volume, func() *model.DrbdVolumeInfo {
			return model.NewDrbdVolumeInfo(key, vol.Device, endpoints)
		})
		changed := v.Update(endpoints, snap)
		if vol.Device != "" {
			r.drbd.PutDevice(vol.Device, v)
		}
		switch {
		case created && creating[key.String()]:
			b.Added = append(b.Added, Insert{Key: key.String()})
		case changed:
			b.Updated = append(b.Updated, key.String())
		}
	}
	for _, k := range p.remove {
		o := owners[k]
		o.res.RemoveVolume(o.vol.Key().Volume)
		r.drbd.RemoveDevice(o.vol.Device(), o.vol)
		b.Removed = append(b.Removed, k)
		if len(o.res.Volumes()) == 0 && !o.res.IsNew() {
			r.drbd.RemoveResource(o.res.Name())
		}
	}

	b = r.tree.Apply(b)
	if !b.Empty() && r.drbdGraph != nil {
		r.drbdGraph.Repaint()
	}
	return b
}

// endpoints matches the disks of a volume to block devices of the DRBD
// graph and tags the matches with the resource name.
func (r *Reconciler) endpoints(snap *drbd.Snapshot, vol drbd.Volume, inCluster map[string]bool) []*model.BlockDevInfo {
	hosts := make([]string, 0, len(vol.Disks))
	for h := range vol.Disks {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)

	var out []*model.BlockDevInfo
	for _, h := range hosts {
		if !inCluster[h] {
			continue
		}
		disk := vol.Disks[h]
		bd := r.drbdGraph.FindBlockDevice(h, disk)
		if bd == nil {
			entry := r.log.WithFields(log.Fields{"host": h, "disk": disk, "volume": vol.Key.String()})
			if snap.IsDrbdDevice(disk) {
				entry.Debug("stacked device, ignored")
			} else {
				entry.Warn("block device not found")
			}
			continue
		}
		bd.SetResource(vol.Key.Resource)
		out = append(out, bd)
	}
	return out
}

// VMs reconciles the VM nodes against the latest per-host inventories.
func (r *Reconciler) VMs(invs map[string]*vm.Inventory) Batch {
	r.vmMu.Lock()
	defer r.vmMu.Unlock()

	p := diff(index.DomainNames(invs), r.vms)
	b := Batch{Category: CategoryVMs}
	for _, name := range p.keep {
		if r.vms[name].Update(index.RunningOn(invs, name)) {
			b.Updated = append(b.Updated, name)
		}
	}
	for _, name := range p.remove {
		delete(r.vms, name)
		b.Removed = append(b.Removed, name)
	}
	for _, name := range p.create {
		v := model.NewVMInfo(name)
		v.Update(index.RunningOn(invs, name))
		r.vms[name] = v
		b.Added = append(b.Added, Insert{Key: name})
	}
	created := make(map[string]bool, len(p.create))
	for _, name := range p.create {
		created[name] = true
	}
	for _, name := range r.usedByCRMLocked() {
		if !created[name] && !slices.Contains(b.Updated, name) {
			b.Updated = append(b.Updated, name)
		}
	}
	return r.tree.Apply(b)
}

func (r *Reconciler) markVMsUsedByCRM() {
	r.vmMu.Lock()
	defer r.vmMu.Unlock()
	if changed := r.usedByCRMLocked(); len(changed) > 0 {
		r.tree.Apply(Batch{Category: CategoryVMs, Updated: changed})
	}
}

// usedByCRMLocked flags the VMs a VirtualDomain service manages and
// returns the names whose flag flipped.
func (r *Reconciler) usedByCRMLocked() []string {
	used := map[string]bool{}
	for _, si := range r.services.Snapshot() {
		if name := si.VM(); name != "" {
			used[name] = true
		}
	}
	var changed []string
	for name, v := range r.vms {
		if v.UsedByCRM() != used[name] {
			v.SetUsedByCRM(used[name])
			changed = append(changed, name)
		}
	}
	sort.Slice(changed, func(i, j int) bool { return lessFold(changed[i], changed[j]) })
	return changed
}

// VM returns the node of a domain.
func (r *Reconciler) VM(name string) (*model.VMInfo, bool) {
	r.vmMu.Lock()
	defer r.vmMu.Unlock()
	v, ok := r.vms[name]
	return v, ok
}

// VMList returns all VM nodes in tree order.
func (r *Reconciler) VMList() []*model.VMInfo {
	r.vmMu.Lock()
	defer r.vmMu.Unlock()
	out := make([]*model.VMInfo, 0, len(r.vms))
	for _, v := range r.vms {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return lessFold(out[i].Name(), out[j].Name()) })
	return out
}

// ServiceList returns the indexed services.
func (r *Reconciler) ServiceList() []*model.ServiceInfo { return r.services.Snapshot() }

// DrbdResources returns the indexed DRBD resources.
func (r *Reconciler) DrbdResources() []*model.DrbdResourceInfo { return r.drbd.Resources() }

// BlockDevices reconciles the devices present on every host.
func (r *Reconciler) BlockDevices(perHost [][]hwinfo.BlockDevice) Batch {
	r.bdMu.Lock()
	defer r.bdMu.Unlock()

	p := diff(hwinfo.CommonBlockDevices(perHost), r.common)
	b := Batch{Category: CategoryBlockDevices}
	for _, name := range p.remove {
		delete(r.common, name)
		b.Removed = append(b.Removed, name)
	}
	for _, name := range p.create {
		r.common[name] = model.CommonBlockDevice{Name: name}
		b.Added = append(b.Added, Insert{Key: name})
	}
	return r.tree.Apply(b)
}

// CommonBlockDevices returns the names of devices present on every host.
func (r *Reconciler) CommonBlockDevices() []string {
	r.bdMu.Lock()
	defer r.bdMu.Unlock()
	out := make([]string, 0, len(r.common))
	for name := range r.common {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return lessFold(out[i], out[j]) })
	return out
}
