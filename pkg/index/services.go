package index

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"clusterwatch/pkg/model"
)

var numericID = regexp.MustCompile(`^(\d+)$`)

type servicesState struct {
	// byName maps lower-cased service name to lower-cased id.
	byName  map[string]map[string]*model.ServiceInfo
	byCrmID map[string]*model.ServiceInfo
}

// Services indexes services by name and id and by CRM id. Both maps share
// one lock so additions and removals are atomic across them.
type Services struct {
	g *Guarded[servicesState]
}

func NewServices() *Services {
	return &Services{g: NewGuarded(servicesState{
		byName:  map[string]map[string]*model.ServiceInfo{},
		byCrmID: map[string]*model.ServiceInfo{},
	})}
}

// Add assigns an id to si if it has none and inserts it in both maps. It
// returns false and leaves the index untouched when the CRM id is already
// taken by another service.
func (s *Services) Add(si *model.ServiceInfo) bool {
	return Read(s.g, func(st *servicesState) bool {
		return st.add(si)
	})
}

// GetOrCreate returns the service with the given CRM id, creating it with
// create when missing. The second result reports whether it was created.
func (s *Services) GetOrCreate(crmID string, create func() *model.ServiceInfo) (*model.ServiceInfo, bool) {
	var (
		si      *model.ServiceInfo
		created bool
	)
	s.g.With(func(st *servicesState) {
		if existing, ok := st.byCrmID[crmID]; ok {
			si = existing
			return
		}
		si = create()
		created = st.add(si)
	})
	return si, created
}

func (st *servicesState) add(si *model.ServiceInfo) bool {
	if hb := si.HeartbeatID(); hb != "" {
		if existing, ok := st.byCrmID[hb]; ok && existing != si {
			return false
		}
	}
	name := strings.ToLower(si.Name())
	ids := st.byName[name]
	if ids == nil {
		ids = map[string]*model.ServiceInfo{}
		st.byName[name] = ids
	}
	if !si.HasID() {
		si.SetID(st.nextID(si, ids))
	}
	ids[strings.ToLower(si.ID())] = si
	st.byCrmID[si.HeartbeatID()] = si
	return true
}

// nextID picks an unused id among the services sharing si's name. Top-level
// services are numbered 1, 2, ...; services inside a container are named
// after it: <container>, <container>_2, ...
func (st *servicesState) nextID(si *model.ServiceInfo, ids map[string]*model.ServiceInfo) string {
	scope := st.containerScope(si)
	pattern := numericID
	if scope != "" {
		pattern = regexp.MustCompile(`^` + regexp.QuoteMeta(scope) + `_(\d+)$`)
	}
	index := 0
	for _, other := range ids {
		id := other.ID()
		if scope != "" && strings.EqualFold(id, scope) && index < 1 {
			index = 1
		}
		m := pattern.FindStringSubmatch(id)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > index {
			index = n
		}
	}
	switch {
	case scope == "":
		return strconv.Itoa(index + 1)
	case index == 0:
		return scope
	default:
		return scope + "_" + strconv.Itoa(index+1)
	}
}

// containerScope is "<name>_<id>" of the enclosing container, or empty for
// top-level services.
func (st *servicesState) containerScope(si *model.ServiceInfo) string {
	c := si.Container()
	if c == "" {
		return ""
	}
	if cs, ok := st.byCrmID[c]; ok && cs.ID() != "" {
		return cs.Name() + "_" + cs.ID()
	}
	return c
}

// Remove drops si from both maps.
func (s *Services) Remove(si *model.ServiceInfo) {
	s.g.With(func(st *servicesState) {
		name := strings.ToLower(si.Name())
		if ids, ok := st.byName[name]; ok {
			key := strings.ToLower(si.ID())
			if ids[key] == si {
				delete(ids, key)
			}
			if len(ids) == 0 {
				delete(st.byName, name)
			}
		}
		if hb := si.HeartbeatID(); st.byCrmID[hb] == si {
			delete(st.byCrmID, hb)
		}
	})
}

// ByCrmID looks a service up by CRM id.
func (s *Services) ByCrmID(crmID string) (*model.ServiceInfo, bool) {
	var (
		si *model.ServiceInfo
		ok bool
	)
	s.g.With(func(st *servicesState) { si, ok = st.byCrmID[crmID] })
	return si, ok
}

// Lookup finds a service by name and id, both case-insensitive.
func (s *Services) Lookup(name, id string) (*model.ServiceInfo, bool) {
	var (
		si *model.ServiceInfo
		ok bool
	)
	s.g.With(func(st *servicesState) {
		si, ok = st.byName[strings.ToLower(name)][strings.ToLower(id)]
	})
	return si, ok
}

// Snapshot returns all services ordered case-insensitively by CRM id.
func (s *Services) Snapshot() []*model.ServiceInfo {
	out := Read(s.g, func(st *servicesState) []*model.ServiceInfo {
		out := make([]*model.ServiceInfo, 0, len(st.byCrmID))
		for _, si := range st.byCrmID {
			out = append(out, si)
		}
		return out
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].HeartbeatID()), strings.ToLower(out[j].HeartbeatID())
		if a != b {
			return a < b
		}
		return out[i].HeartbeatID() < out[j].HeartbeatID()
	})
	return out
}

// Len is the number of indexed services.
func (s *Services) Len() int {
	return Read(s.g, func(st *servicesState) int { return len(st.byCrmID) })
}

// ExistingServices returns services that are neither removed nor orphaned,
// leaving out exclude.
func (s *Services) ExistingServices(exclude *model.ServiceInfo) []*model.ServiceInfo {
	var out []*model.ServiceInfo
	for _, si := range s.Snapshot() {
		if si == exclude || si.IsRemoved() || si.IsOrphaned() {
			continue
		}
		out = append(out, si)
	}
	return out
}

// AtLeastOneDrbddisk reports whether any service uses the heartbeat
// drbddisk agent.
func (s *Services) AtLeastOneDrbddisk() bool {
	return s.any(func(si *model.ServiceInfo) bool { return si.Agent().IsDrbddisk() })
}

// IsOneLinbitDrbd reports whether any service uses ocf:linbit:drbd.
func (s *Services) IsOneLinbitDrbd() bool {
	return s.any(func(si *model.ServiceInfo) bool { return si.Agent().IsLinbitDrbd() })
}

func (s *Services) any(pred func(*model.ServiceInfo) bool) bool {
	return Read(s.g, func(st *servicesState) bool {
		for _, si := range st.byCrmID {
			if pred(si) {
				return true
			}
		}
		return false
	})
}

// ResetFilesystems clears the cached state of every Filesystem service.
func (s *Services) ResetFilesystems() int {
	n := 0
	for _, si := range s.Snapshot() {
		if si.Agent().Type == "Filesystem" {
			si.Reset()
			n++
		}
	}
	return n
}
