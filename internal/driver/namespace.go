package driver

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"sync"
)

// NodeInfo is a read-only description of a registered node.
type NodeInfo struct {
	Path   string      `json:"path"`
	Kind   Kind        `json:"kind"`
	Mode   fs.FileMode `json:"mode"`
	UID    uint32      `json:"uid"`
	GID    uint32      `json:"gid"`
	Device string      `json:"device"`
}

// Namespace maps absolute paths to nodes. Several drivers may share one
// namespace as long as their paths do not collide.
//
// All methods are thread-safe.
type Namespace struct {
	mu      sync.RWMutex
	nodes   map[string]*Node
	classes map[string]struct{}
	devices map[string]struct{}
}

// NewNamespace creates an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{
		nodes:   make(map[string]*Node),
		classes: make(map[string]struct{}),
		devices: make(map[string]struct{}),
	}
}

// Lookup returns the node registered at p.
// Returns ErrNoDevice if nothing is registered there.
func (ns *Namespace) Lookup(p string) (*Node, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	n, ok := ns.nodes[path.Clean(p)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoDevice, p)
	}
	return n, nil
}

// List returns every registered node sorted by path.
func (ns *Namespace) List() []NodeInfo {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	infos := make([]NodeInfo, 0, len(ns.nodes))
	for _, n := range ns.nodes {
		infos = append(infos, n.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Path < infos[j].Path
	})
	return infos
}

// Len returns the number of registered nodes.
func (ns *Namespace) Len() int {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return len(ns.nodes)
}

func (ns *Namespace) register(n *Node) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if _, exists := ns.nodes[n.path]; exists {
		return fmt.Errorf("%w: %s", ErrNodeExists, n.path)
	}
	ns.nodes[n.path] = n
	return nil
}

func (ns *Namespace) unregister(p string) {
	ns.mu.Lock()
	delete(ns.nodes, p)
	ns.mu.Unlock()
}

// registerClass claims a device class directory.
func (ns *Namespace) registerClass(dir string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if _, exists := ns.classes[dir]; exists {
		return fmt.Errorf("%w: class %s", ErrNodeExists, dir)
	}
	ns.classes[dir] = struct{}{}
	return nil
}

func (ns *Namespace) unregisterClass(dir string) {
	ns.mu.Lock()
	delete(ns.classes, dir)
	ns.mu.Unlock()
}

// registerDevice claims a device entry inside a class directory.
func (ns *Namespace) registerDevice(dir string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if _, exists := ns.devices[dir]; exists {
		return fmt.Errorf("%w: device %s", ErrNodeExists, dir)
	}
	ns.devices[dir] = struct{}{}
	return nil
}

func (ns *Namespace) unregisterDevice(dir string) {
	ns.mu.Lock()
	delete(ns.devices, dir)
	ns.mu.Unlock()
}
