package abload

import (
	"sort"
	"sync"
)

// registry is the single source of truth for bundle nodes and the edges
// between them. Edges are keyed by bundle name:
// deps[a] contains b iff dependents[b] contains a.
type registry struct {
	mu         sync.Mutex
	nodes      map[string]*node
	deps       map[string][]string
	dependents map[string]map[string]struct{}

	metrics *Metrics
}

func newRegistry(metrics *Metrics) *registry {
	return &registry{
		nodes:      make(map[string]*node),
		deps:       make(map[string][]string),
		dependents: make(map[string]map[string]struct{}),
		metrics:    metrics,
	}
}

func (r *registry) getOrCreate(name string) *node {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nodes[name]; ok {
		return n
	}
	n := newNode(name)
	r.nodes[name] = n
	r.metrics.setNodes(len(r.nodes))
	return n
}

func (r *registry) get(name string) (*node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[name]
	return n, ok
}

// loadedHandle returns the handle of a loaded node.
func (r *registry) loadedHandle(name string) (Handle, bool) {
	n, ok := r.get(name)
	if !ok {
		return nil, false
	}
	state, h, _ := n.snapshot()
	if state != StateLoaded {
		return nil, false
	}
	return h, true
}

// attach records the dependency edges of name once per node lifetime.
// It is a no-op when n is no longer the registered node for name. When a
// dependency is no longer registered or has not settled, nothing is attached
// and the offending names are returned.
func (r *registry) attach(n *node, deps []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nodes[n.name] != n {
		return nil
	}
	if missing := r.unsettledLocked(deps); len(missing) > 0 {
		return missing
	}
	if _, ok := r.deps[n.name]; ok {
		return nil
	}
	r.deps[n.name] = append([]string(nil), deps...)
	for _, dep := range deps {
		set, ok := r.dependents[dep]
		if !ok {
			set = make(map[string]struct{})
			r.dependents[dep] = set
		}
		set[n.name] = struct{}{}
	}
	return nil
}

// unsettled returns the deps that are not registered in a terminal state.
func (r *registry) unsettled(deps []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unsettledLocked(deps)
}

func (r *registry) unsettledLocked(deps []string) []string {
	var missing []string
	for _, dep := range deps {
		dn, ok := r.nodes[dep]
		if !ok {
			missing = append(missing, dep)
			continue
		}
		dn.mu.Lock()
		settled := !dn.detached && dn.state.IsTerminal()
		dn.mu.Unlock()
		if !settled {
			missing = append(missing, dep)
		}
	}
	return missing
}

func (r *registry) removeLocked(name string) {
	delete(r.nodes, name)
	r.metrics.setNodes(len(r.nodes))
}

func (r *registry) dependentsLocked(name string) []string {
	set := r.dependents[name]
	out := make([]string, 0, len(set))
	for dep := range set {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// dependentsOf returns the bundles that currently keep name alive.
func (r *registry) dependentsOf(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dependentsLocked(name)
}

func (r *registry) dependenciesOf(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deps[name]...)
}

func (r *registry) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.nodes))
	for name := range r.nodes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
