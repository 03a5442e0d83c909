package crm

import (
	"sort"
	"strings"
)

// Container kinds a resource can have.
const (
	KindPrimitive   = "primitive"
	KindGroup       = "group"
	KindClone       = "clone"
	KindMasterSlave = "master"
)

// Resource is one CRM resource as reported by the status command.
type Resource struct {
	ID        string
	Kind      string
	Agent     Agent
	Container string
	RunningOn []string
	Orphaned  bool
	Params    map[string]string
}

// Name is the logical service name used for id assignment.
func (r Resource) Name() string {
	switch r.Kind {
	case KindGroup:
		return GroupName
	case KindClone:
		return CloneName
	case KindMasterSlave:
		return MasterSlaveName
	default:
		return r.Agent.Type
	}
}

// ClusterStatus is an immutable parsed cluster status. Modifiers return a
// copy.
type ClusterStatus struct {
	dc          string
	names       map[string]string
	online      map[string]bool
	nodeParams  map[string]map[string]string
	resources   map[string]Resource
	rscDefaults map[string]string
}

// Empty returns a status with no nodes and no DC.
func Empty() *ClusterStatus {
	return &ClusterStatus{
		names:       map[string]string{},
		online:      map[string]bool{},
		nodeParams:  map[string]map[string]string{},
		resources:   map[string]Resource{},
		rscDefaults: map[string]string{},
	}
}

// DC returns the designated coordinator name, empty when unknown.
func (s *ClusterStatus) DC() string { return s.dc }

// IsOnline reports whether node is known and online.
func (s *ClusterStatus) IsOnline(node string) bool { return s.online[strings.ToLower(node)] }

// IsDC reports whether node is the reported DC and online.
func (s *ClusterStatus) IsDC(node string) bool {
	return s.dc != "" && strings.EqualFold(s.dc, node) && s.IsOnline(node)
}

// Nodes returns all known node names, sorted.
func (s *ClusterStatus) Nodes() []string {
	nodes := make([]string, 0, len(s.online))
	for k := range s.online {
		if n, ok := s.names[k]; ok {
			k = n
		}
		nodes = append(nodes, k)
	}
	sort.Slice(nodes, func(i, j int) bool { return lessFold(nodes[i], nodes[j]) })
	return nodes
}

// NodeParam returns a node attribute such as "standby".
func (s *ClusterStatus) NodeParam(node, key string) string {
	return s.nodeParams[strings.ToLower(node)][key]
}

// Resource looks a resource up by CRM id.
func (s *ClusterStatus) Resource(id string) (Resource, bool) {
	r, ok := s.resources[id]
	return r, ok
}

// Resources returns all resources ordered case-insensitively by id.
func (s *ClusterStatus) Resources() []Resource {
	res := make([]Resource, 0, len(s.resources))
	for _, r := range s.resources {
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool { return lessFold(res[i].ID, res[j].ID) })
	return res
}

// RscDefaults returns a copy of the rsc_defaults values.
func (s *ClusterStatus) RscDefaults() map[string]string {
	out := make(map[string]string, len(s.rscDefaults))
	for k, v := range s.rscDefaults {
		out[k] = v
	}
	return out
}

func (s *ClusterStatus) clone() *ClusterStatus {
	c := &ClusterStatus{
		dc:          s.dc,
		names:       s.names,
		online:      make(map[string]bool, len(s.online)),
		nodeParams:  s.nodeParams,
		resources:   s.resources,
		rscDefaults: s.rscDefaults,
	}
	for k, v := range s.online {
		c.online[k] = v
	}
	return c
}

// WithNodeOffline returns a copy with node marked offline.
func (s *ClusterStatus) WithNodeOffline(node string) *ClusterStatus {
	c := s.clone()
	c.online[strings.ToLower(node)] = false
	return c
}

// WithoutDC returns a copy with the DC cleared.
func (s *ClusterStatus) WithoutDC() *ClusterStatus {
	c := s.clone()
	c.dc = ""
	return c
}

func lessFold(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}
