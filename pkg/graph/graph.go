// Package graph keeps the in-memory resource graphs: node positions and the
// block devices of every host.
package graph

import (
	"sort"
	"sync"
	"sync/atomic"

	"clusterwatch/pkg/hwinfo"
	"clusterwatch/pkg/model"
)

// Position is the layout position of a node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Graph is one resource graph. The service graph and the DRBD graph are
// separate instances.
type Graph struct {
	name string

	mu        sync.RWMutex
	devices   map[string]map[string]*model.BlockDevInfo
	positions map[string]Position
	listeners []func()

	repaints atomic.Int64
}

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{
		name:      name,
		devices:   map[string]map[string]*model.BlockDevInfo{},
		positions: map[string]Position{},
	}
}

func (g *Graph) Name() string { return g.name }

// AddHost adds a host or refreshes its block devices. Known devices keep
// their node, vanished ones are dropped.
func (g *Graph) AddHost(host string, devs []hwinfo.BlockDevice) {
	g.mu.Lock()
	defer g.mu.Unlock()
	old := g.devices[host]
	next := make(map[string]*model.BlockDevInfo, len(devs))
	for _, d := range devs {
		bd, ok := old[d.Name]
		if !ok {
			bd = model.NewBlockDevInfo(host, d.Name)
		}
		bd.SetInfo(d.Size, d.MountPoint)
		next[d.Name] = bd
	}
	g.devices[host] = next
}

// Hosts returns the hosts added to the graph, sorted.
func (g *Graph) Hosts() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	hosts := make([]string, 0, len(g.devices))
	for h := range g.devices {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// FindBlockDevice returns the device node of disk on host, or nil.
func (g *Graph) FindBlockDevice(host, disk string) *model.BlockDevInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.devices[host][disk]
}

// SetPosition stores the position of the node with the given id.
func (g *Graph) SetPosition(id string, p Position) {
	g.mu.Lock()
	g.positions[id] = p
	g.mu.Unlock()
}

// RemovePosition forgets a node position.
func (g *Graph) RemovePosition(id string) {
	g.mu.Lock()
	delete(g.positions, id)
	g.mu.Unlock()
}

// Positions returns a copy of all node positions.
func (g *Graph) Positions() map[string]Position {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]Position, len(g.positions))
	for k, v := range g.positions {
		out[k] = v
	}
	return out
}

// OnRepaint registers fn to be called on every Repaint.
func (g *Graph) OnRepaint(fn func()) {
	g.mu.Lock()
	g.listeners = append(g.listeners, fn)
	g.mu.Unlock()
}

// Repaint notifies listeners that the graph changed.
func (g *Graph) Repaint() {
	g.repaints.Add(1)
	g.mu.RLock()
	listeners := append([]func(){}, g.listeners...)
	g.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}

// Repaints counts Repaint calls.
func (g *Graph) Repaints() int64 { return g.repaints.Load() }
