// Package vm parses the virtual machine inventory of a host.
package vm

import (
	"encoding/xml"
	"fmt"
	"path"
	"sort"
	"strings"
)

// Domain is one virtual machine known to a host.
type Domain struct {
	Name    string
	Running bool
	VCPUs   int
	Memory  uint64
	Config  string
}

// Inventory is the immutable list of domains reported by one host.
type Inventory struct {
	domains map[string]Domain
}

type xmlInventory struct {
	XMLName xml.Name    `xml:"vms"`
	Domains []xmlDomain `xml:"vm"`
}

type xmlDomain struct {
	Name    string `xml:"name,attr"`
	Running string `xml:"running,attr"`
	VCPUs   int    `xml:"vcpus,attr"`
	Memory  uint64 `xml:"memory,attr"`
	Config  string `xml:"config,attr"`
}

// Parse reads the vm_info output:
//
//	<vms>
//	  <vm name="web1" running="yes" vcpus="2" memory="1048576" config="/etc/libvirt/qemu/web1.xml"/>
//	</vms>
func Parse(raw string) (*Inventory, error) {
	var doc xmlInventory
	if err := xml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("parsing vm inventory: %w", err)
	}
	inv := &Inventory{domains: make(map[string]Domain, len(doc.Domains))}
	for _, d := range doc.Domains {
		if d.Name == "" {
			return nil, fmt.Errorf("parsing vm inventory: domain without name")
		}
		inv.domains[d.Name] = Domain{
			Name:    d.Name,
			Running: d.Running == "yes" || d.Running == "true",
			VCPUs:   d.VCPUs,
			Memory:  d.Memory,
			Config:  d.Config,
		}
	}
	return inv, nil
}

// Names returns the domain names, sorted.
func (inv *Inventory) Names() []string {
	if inv == nil {
		return nil
	}
	names := make([]string, 0, len(inv.domains))
	for n := range inv.domains {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Domain looks a domain up by name.
func (inv *Inventory) Domain(name string) (Domain, bool) {
	if inv == nil {
		return Domain{}, false
	}
	d, ok := inv.domains[name]
	return d, ok
}

// Len is the number of domains.
func (inv *Inventory) Len() int {
	if inv == nil {
		return 0
	}
	return len(inv.domains)
}

// DomainFromConfig derives a domain name from a libvirt config path, the way
// a VirtualDomain resource references its VM.
func DomainFromConfig(config string) string {
	if config == "" {
		return ""
	}
	return strings.TrimSuffix(path.Base(config), ".xml")
}
