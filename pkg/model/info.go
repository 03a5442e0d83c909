package model

import (
	"maps"
	"slices"
	"sort"
	"sync"

	"clusterwatch/pkg/crm"
	"clusterwatch/pkg/drbd"
	"clusterwatch/pkg/vm"
)

// ServiceInfo is the live node of one CRM service.
type ServiceInfo struct {
	*Service
	agent crm.Agent
	kind  string

	mu        sync.RWMutex
	container string
	params    map[string]string
	runningOn []string
	orphaned  bool
	vm        string
}

// NewServiceInfo creates a node for a resource of the given agent.
func NewServiceInfo(name string, kind string, agent crm.Agent) *ServiceInfo {
	return &ServiceInfo{
		Service: NewService(name, agent.Class),
		agent:   agent,
		kind:    kind,
		params:  map[string]string{},
	}
}

// ServiceInfoFor creates a node for a reported resource.
func ServiceInfoFor(r crm.Resource) *ServiceInfo {
	return NewServiceInfo(r.Name(), r.Kind, r.Agent)
}

func (si *ServiceInfo) Agent() crm.Agent { return si.agent }
func (si *ServiceInfo) Kind() string     { return si.kind }

// IsContainer reports whether the service is a group, clone or master/slave
// set.
func (si *ServiceInfo) IsContainer() bool { return si.kind != crm.KindPrimitive }

// Container returns the CRM id of the enclosing container, empty for
// top-level services.
func (si *ServiceInfo) Container() string {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return si.container
}

// SetContainer records the enclosing container before the service is indexed.
func (si *ServiceInfo) SetContainer(crmID string) {
	si.mu.Lock()
	si.container = crmID
	si.mu.Unlock()
}

// Param returns one cached parameter.
func (si *ServiceInfo) Param(key string) string {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return si.params[key]
}

// Params returns a copy of the cached parameters.
func (si *ServiceInfo) Params() map[string]string {
	si.mu.RLock()
	defer si.mu.RUnlock()
	out := make(map[string]string, len(si.params))
	for k, v := range si.params {
		out[k] = v
	}
	return out
}

// RunningOn returns the nodes the service runs on.
func (si *ServiceInfo) RunningOn() []string {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return append([]string(nil), si.runningOn...)
}

func (si *ServiceInfo) IsOrphaned() bool {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return si.orphaned
}

// Update pushes reported values into the node. It reports whether anything
// changed.
func (si *ServiceInfo) Update(r crm.Resource) bool {
	si.mu.Lock()
	defer si.mu.Unlock()
	changed := si.container != r.Container || si.orphaned != r.Orphaned ||
		!slices.Equal(si.runningOn, r.RunningOn) || !maps.Equal(si.params, r.Params)
	si.container = r.Container
	si.orphaned = r.Orphaned
	si.runningOn = append([]string(nil), r.RunningOn...)
	si.params = make(map[string]string, len(r.Params))
	for k, v := range r.Params {
		si.params[k] = v
	}
	if si.agent.Type == "VirtualDomain" {
		si.vm = vm.DomainFromConfig(r.Params["config"])
	}
	return changed
}

// VM returns the domain a VirtualDomain service manages.
func (si *ServiceInfo) VM() string {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return si.vm
}

// Reset drops cached parameters so the next Update repopulates them.
func (si *ServiceInfo) Reset() {
	si.mu.Lock()
	si.params = map[string]string{}
	si.runningOn = nil
	si.mu.Unlock()
}

// BlockDevInfo is a block device of one host in the DRBD graph.
type BlockDevInfo struct {
	host string
	name string

	mu       sync.RWMutex
	size     uint64
	mount    string
	resource string
}

func NewBlockDevInfo(host, name string) *BlockDevInfo {
	return &BlockDevInfo{host: host, name: name}
}

func (b *BlockDevInfo) Host() string { return b.host }
func (b *BlockDevInfo) Name() string { return b.name }

// SetInfo updates size and mount point.
func (b *BlockDevInfo) SetInfo(size uint64, mount string) {
	b.mu.Lock()
	b.size, b.mount = size, mount
	b.mu.Unlock()
}

func (b *BlockDevInfo) MountPoint() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mount
}

// SetResource records the DRBD resource the device backs.
func (b *BlockDevInfo) SetResource(name string) {
	b.mu.Lock()
	b.resource = name
	b.mu.Unlock()
}

// Resource returns the DRBD resource the device backs, if any.
func (b *BlockDevInfo) Resource() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.resource
}

// DrbdVolumeInfo is the live node of one DRBD volume.
type DrbdVolumeInfo struct {
	key    drbd.VolumeKey
	device string

	mu        sync.RWMutex
	endpoints []*BlockDevInfo
	states    map[string]drbd.State
	isNew     bool
}

func NewDrbdVolumeInfo(key drbd.VolumeKey, device string, endpoints []*BlockDevInfo) *DrbdVolumeInfo {
	return &DrbdVolumeInfo{
		key:       key,
		device:    device,
		endpoints: append([]*BlockDevInfo(nil), endpoints...),
		states:    map[string]drbd.State{},
	}
}

func (v *DrbdVolumeInfo) Key() drbd.VolumeKey { return v.key }
func (v *DrbdVolumeInfo) Device() string      { return v.device }

// Endpoints returns the matched block devices.
func (v *DrbdVolumeInfo) Endpoints() []*BlockDevInfo {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]*BlockDevInfo(nil), v.endpoints...)
}

// Update stores the endpoints and per-host state. It reports whether the
// state changed.
func (v *DrbdVolumeInfo) Update(endpoints []*BlockDevInfo, s *drbd.Snapshot) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.endpoints = append(v.endpoints[:0], endpoints...)
	changed := false
	for _, bd := range endpoints {
		st := s.State(bd.Host(), v.key)
		if v.states[bd.Host()] != st {
			v.states[bd.Host()] = st
			changed = true
		}
	}
	return changed
}

// State returns the last seen state on host.
func (v *DrbdVolumeInfo) State(host string) drbd.State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.states[host]
}

func (v *DrbdVolumeInfo) SetNew(b bool) {
	v.mu.Lock()
	v.isNew = b
	v.mu.Unlock()
}

func (v *DrbdVolumeInfo) IsNew() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.isNew
}

// DrbdResourceInfo is the live node of one DRBD resource.
type DrbdResourceInfo struct {
	name string

	mu       sync.RWMutex
	hosts    []string
	protocol string
	volumes  map[string]*DrbdVolumeInfo
	isNew    bool
}

func NewDrbdResourceInfo(name string, hosts []string) *DrbdResourceInfo {
	return &DrbdResourceInfo{
		name:    name,
		hosts:   append([]string(nil), hosts...),
		volumes: map[string]*DrbdVolumeInfo{},
	}
}

func (r *DrbdResourceInfo) Name() string { return r.name }

// Hosts returns the hosts the resource replicates between.
func (r *DrbdResourceInfo) Hosts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.hosts...)
}

// SetParameters stores resource wide values.
func (r *DrbdResourceInfo) SetParameters(protocol string) {
	r.mu.Lock()
	r.protocol = protocol
	r.mu.Unlock()
}

func (r *DrbdResourceInfo) Protocol() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.protocol
}

// Volume returns the volume with number nr.
func (r *DrbdResourceInfo) Volume(nr string) (*DrbdVolumeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.volumes[nr]
	return v, ok
}

// VolumeOrCreate returns the volume with number nr, creating it with create
// when missing. The second result reports whether it was created.
func (r *DrbdResourceInfo) VolumeOrCreate(nr string, create func() *DrbdVolumeInfo) (*DrbdVolumeInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.volumes[nr]; ok {
		return v, false
	}
	v := create()
	r.volumes[nr] = v
	return v, true
}

// RemoveVolume drops a volume.
func (r *DrbdResourceInfo) RemoveVolume(nr string) {
	r.mu.Lock()
	delete(r.volumes, nr)
	r.mu.Unlock()
}

// Volumes returns the volumes ordered by number.
func (r *DrbdResourceInfo) Volumes() []*DrbdVolumeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*DrbdVolumeInfo, 0, len(r.volumes))
	for _, v := range r.volumes {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key.Less(out[j].key) })
	return out
}

func (r *DrbdResourceInfo) SetNew(b bool) {
	r.mu.Lock()
	r.isNew = b
	r.mu.Unlock()
}

func (r *DrbdResourceInfo) IsNew() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isNew
}

// VMInfo is the live node of one virtual machine.
type VMInfo struct {
	name string

	mu        sync.RWMutex
	runningOn []string
	usedByCRM bool
	isNew     bool
}

func NewVMInfo(name string) *VMInfo { return &VMInfo{name: name} }

func (v *VMInfo) Name() string { return v.name }

// Update records on which hosts the domain runs and reports a change.
func (v *VMInfo) Update(runningOn []string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if slices.Equal(v.runningOn, runningOn) {
		return false
	}
	v.runningOn = append([]string(nil), runningOn...)
	return true
}

func (v *VMInfo) RunningOn() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]string(nil), v.runningOn...)
}

func (v *VMInfo) SetUsedByCRM(b bool) {
	v.mu.Lock()
	v.usedByCRM = b
	v.mu.Unlock()
}

func (v *VMInfo) UsedByCRM() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.usedByCRM
}

func (v *VMInfo) SetNew(b bool) {
	v.mu.Lock()
	v.isNew = b
	v.mu.Unlock()
}

func (v *VMInfo) IsNew() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.isNew
}

// CommonBlockDevice is a device name present on every host.
type CommonBlockDevice struct {
	Name string
}

func (CommonBlockDevice) IsNew() bool { return false }
