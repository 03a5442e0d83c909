package crm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Resource agent classes known to the cluster manager.
const (
	ClassOCF       = "ocf"
	ClassHeartbeat = "heartbeat"
	ClassLSB       = "lsb"
	ClassStonith   = "stonith"
)

// Classes lists the agent classes in display order.
var Classes = []string{ClassOCF, ClassHeartbeat, ClassLSB, ClassStonith}

// Names of container services.
const (
	GroupName       = "Group"
	CloneName       = "Clone"
	MasterSlaveName = "Master/Slave Set"
)

// Agent identifies a resource agent, e.g. ocf:heartbeat:Filesystem.
type Agent struct {
	Class    string
	Provider string
	Type     string
}

// ParseAgent parses "class:provider:type" or "class:type".
func ParseAgent(s string) (Agent, error) {
	parts := strings.SplitN(s, ":", 3)
	switch len(parts) {
	case 2:
		if parts[0] == "" || parts[1] == "" {
			break
		}
		return Agent{Class: parts[0], Type: parts[1]}, nil
	case 3:
		if parts[0] == "" || parts[1] == "" || parts[2] == "" {
			break
		}
		return Agent{Class: parts[0], Provider: parts[1], Type: parts[2]}, nil
	}
	return Agent{}, fmt.Errorf("invalid resource agent %q", s)
}

func (a Agent) String() string {
	if a.Provider == "" {
		return a.Class + ":" + a.Type
	}
	return a.Class + ":" + a.Provider + ":" + a.Type
}

// IsStonith reports whether the agent is a fencing device.
func (a Agent) IsStonith() bool { return a.Class == ClassStonith }

// IsLinbitDrbd reports whether the agent is ocf:linbit:drbd.
func (a Agent) IsLinbitDrbd() bool {
	return a.Class == ClassOCF && a.Provider == "linbit" && a.Type == "drbd"
}

// IsDrbddisk reports whether the agent is the heartbeat drbddisk script.
func (a Agent) IsDrbddisk() bool { return a.Class == ClassHeartbeat && a.Type == "drbddisk" }

// Catalog is the set of resource agents available in the cluster, loaded
// once from the first connected host.
type Catalog struct {
	mu      sync.RWMutex
	byClass map[string][]Agent
}

func NewCatalog() *Catalog { return &Catalog{byClass: map[string][]Agent{}} }

// Load replaces the catalog with the agents listed one per line in out.
// Unparsable lines are returned for logging.
func (c *Catalog) Load(out string) (skipped []string) {
	byClass := map[string][]Agent{}
	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		a, err := ParseAgent(line)
		if err != nil {
			skipped = append(skipped, line)
			continue
		}
		byClass[a.Class] = append(byClass[a.Class], a)
	}
	for _, agents := range byClass {
		sort.Slice(agents, func(i, j int) bool { return lessFold(agents[i].Type, agents[j].Type) })
	}
	c.mu.Lock()
	c.byClass = byClass
	c.mu.Unlock()
	return skipped
}

// Agents returns the agents of one class.
func (c *Catalog) Agents(class string) []Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Agent(nil), c.byClass[class]...)
}

// Find looks an agent up by class and type.
func (c *Catalog) Find(class, typ string) (Agent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.byClass[class] {
		if a.Type == typ {
			return a, true
		}
	}
	return Agent{}, false
}

// Len is the number of agents in all classes.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, agents := range c.byClass {
		n += len(agents)
	}
	return n
}
