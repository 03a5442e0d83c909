// Package drbd parses DRBD configuration and event streams into immutable
// snapshots.
package drbd

import (
	"sort"
	"strconv"
	"strings"
)

// VolumeKey identifies a volume of a resource.
type VolumeKey struct {
	Resource string
	Volume   string
}

func (k VolumeKey) String() string { return k.Resource + "/" + k.Volume }

// Less orders keys case-insensitively by resource, then numerically by volume.
func (k VolumeKey) Less(o VolumeKey) bool {
	a, b := strings.ToLower(k.Resource), strings.ToLower(o.Resource)
	if a != b {
		return a < b
	}
	if k.Resource != o.Resource {
		return k.Resource < o.Resource
	}
	na, errA := strconv.Atoi(k.Volume)
	nb, errB := strconv.Atoi(o.Volume)
	if errA == nil && errB == nil {
		return na < nb
	}
	return k.Volume < o.Volume
}

// Volume is the configured layout of one volume.
type Volume struct {
	Key    VolumeKey
	Device string
	// Disks maps host name to backing disk.
	Disks map[string]string
}

// State is the live state of one volume on one host.
type State struct {
	Role        string
	Connection  string
	Replication string
	Disk        string
	PeerDisk    string
}

type stateKey struct {
	host string
	key  VolumeKey
}

// Snapshot is the immutable DRBD view of the cluster. ApplyEvent returns a
// new snapshot and leaves the receiver untouched.
type Snapshot struct {
	volumes   map[VolumeKey]Volume
	protocols map[string]string
	devices   map[string]VolumeKey
	states    map[stateKey]State
}

// EmptySnapshot has no resources.
func EmptySnapshot() *Snapshot {
	return &Snapshot{
		volumes:   map[VolumeKey]Volume{},
		protocols: map[string]string{},
		devices:   map[string]VolumeKey{},
		states:    map[stateKey]State{},
	}
}

// Build merges the configs of all hosts into a snapshot. Live states of
// volumes that still exist are carried over from prev, which may be nil.
func Build(configs []*Config, prev *Snapshot) *Snapshot {
	s := EmptySnapshot()
	for _, cfg := range configs {
		if cfg == nil {
			continue
		}
		for _, rc := range cfg.Resources {
			if rc.Protocol != "" {
				s.protocols[rc.Name] = rc.Protocol
			}
			for _, vc := range rc.Volumes {
				key := VolumeKey{Resource: rc.Name, Volume: vc.Number}
				v, ok := s.volumes[key]
				if !ok {
					v = Volume{Key: key, Disks: map[string]string{}}
				}
				if vc.Device != "" {
					v.Device = vc.Device
				}
				for h, d := range vc.Disks {
					v.Disks[h] = d
				}
				s.volumes[key] = v
			}
		}
	}
	for key, v := range s.volumes {
		if v.Device != "" {
			s.devices[v.Device] = key
		}
	}
	if prev != nil {
		for sk, st := range prev.states {
			if _, ok := s.volumes[sk.key]; ok {
				s.states[sk] = st
			}
		}
	}
	return s
}

// Keys returns all volume keys in display order.
func (s *Snapshot) Keys() []VolumeKey {
	keys := make([]VolumeKey, 0, len(s.volumes))
	for k := range s.volumes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Volume looks a volume up.
func (s *Snapshot) Volume(key VolumeKey) (Volume, bool) {
	v, ok := s.volumes[key]
	return v, ok
}

// Resources returns the resource names, sorted case-insensitively.
func (s *Snapshot) Resources() []string {
	seen := map[string]bool{}
	var names []string
	for k := range s.volumes {
		if !seen[k.Resource] {
			seen[k.Resource] = true
			names = append(names, k.Resource)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return VolumeKey{Resource: names[i]}.Less(VolumeKey{Resource: names[j]})
	})
	return names
}

// Protocol returns the replication protocol of a resource.
func (s *Snapshot) Protocol(resource string) string { return s.protocols[resource] }

// IsDrbdDevice reports whether path is the device of a configured volume.
func (s *Snapshot) IsDrbdDevice(path string) bool {
	_, ok := s.devices[path]
	return ok
}

// State returns the live state of a volume on host.
func (s *Snapshot) State(host string, key VolumeKey) State {
	return s.states[stateKey{host: host, key: key}]
}

func (s *Snapshot) volumesOf(resource string) []VolumeKey {
	var keys []VolumeKey
	for k := range s.volumes {
		if k.Resource == resource {
			keys = append(keys, k)
		}
	}
	return keys
}

// ApplyEvent applies an event seen on host. It returns the receiver and false
// when nothing changed.
func (s *Snapshot) ApplyEvent(host string, ev *Event) (*Snapshot, bool) {
	res := ev.Resource()
	if res == "" {
		return s, false
	}

	var targets []VolumeKey
	var update func(*State)
	switch ev.Object {
	case "resource":
		role, ok := ev.State["role"]
		if !ok {
			return s, false
		}
		targets = s.volumesOf(res)
		update = func(st *State) { st.Role = role }
	case "connection":
		conn, ok := ev.State["connection"]
		if !ok {
			return s, false
		}
		targets = s.volumesOf(res)
		update = func(st *State) { st.Connection = conn }
	case "device":
		disk, ok := ev.State["disk"]
		if !ok {
			return s, false
		}
		targets = []VolumeKey{{Resource: res, Volume: ev.Volume()}}
		update = func(st *State) { st.Disk = disk }
	case "peer-device":
		repl, hasRepl := ev.State["replication"]
		peer, hasPeer := ev.State["peer-disk"]
		if !hasRepl && !hasPeer {
			return s, false
		}
		targets = []VolumeKey{{Resource: res, Volume: ev.Volume()}}
		update = func(st *State) {
			if hasRepl {
				st.Replication = repl
			}
			if hasPeer {
				st.PeerDisk = peer
			}
		}
	default:
		return s, false
	}

	var next *Snapshot
	for _, key := range targets {
		if _, ok := s.volumes[key]; !ok {
			continue
		}
		sk := stateKey{host: host, key: key}
		st := s.states[sk]
		old := st
		update(&st)
		if st == old {
			continue
		}
		if next == nil {
			next = s.copyStates()
		}
		next.states[sk] = st
	}
	if next == nil {
		return s, false
	}
	return next, true
}

func (s *Snapshot) copyStates() *Snapshot {
	c := &Snapshot{
		volumes:   s.volumes,
		protocols: s.protocols,
		devices:   s.devices,
		states:    make(map[stateKey]State, len(s.states)+1),
	}
	for k, v := range s.states {
		c.states[k] = v
	}
	return c
}
