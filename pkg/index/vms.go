package index

import (
	"sort"
	"sync"

	"clusterwatch/pkg/vm"
)

// VMs holds the latest VM inventory of every host. Each host has a single
// periodic writer and many readers.
type VMs struct {
	mu     sync.RWMutex
	byHost map[string]*vm.Inventory
}

func NewVMs() *VMs { return &VMs{byHost: map[string]*vm.Inventory{}} }

// Put replaces the inventory of host.
func (v *VMs) Put(host string, inv *vm.Inventory) {
	v.mu.Lock()
	v.byHost[host] = inv
	v.mu.Unlock()
}

// Get returns the inventory of host, nil if none was seen.
func (v *VMs) Get(host string) *vm.Inventory {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.byHost[host]
}

// Inventories returns a copy of the per-host inventories.
func (v *VMs) Inventories() map[string]*vm.Inventory {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]*vm.Inventory, len(v.byHost))
	for h, inv := range v.byHost {
		out[h] = inv
	}
	return out
}

// DomainNames returns the union of domain names over all hosts, sorted.
func (v *VMs) DomainNames() []string {
	return DomainNames(v.Inventories())
}

// DomainNames returns the union of domain names of invs, sorted.
func DomainNames(invs map[string]*vm.Inventory) []string {
	seen := map[string]bool{}
	var names []string
	for _, inv := range invs {
		for _, n := range inv.Names() {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return names
}

// RunningOn returns the hosts where the domain runs, sorted.
func RunningOn(invs map[string]*vm.Inventory, name string) []string {
	var hosts []string
	for h, inv := range invs {
		if d, ok := inv.Domain(name); ok && d.Running {
			hosts = append(hosts, h)
		}
	}
	sort.Strings(hosts)
	return hosts
}
