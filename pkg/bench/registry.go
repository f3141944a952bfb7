package bench

import (
	"context"
	"fmt"
	"sync"
)

// Registry holds benchmark groups for a run. Runs that must stay independent
// should each build their own Registry; Default exists for package-level
// declarations and must be Reset between runs that share a process.
type Registry struct {
	mu     sync.Mutex
	groups []*Group
}

// Default is the process-wide registry.
var Default = &Registry{}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register adds g. Group names must be unique.
func (r *Registry) Register(g *Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.groups {
		if existing.name == g.name {
			return fmt.Errorf("benchmark group %q already registered", g.name)
		}
	}
	r.groups = append(r.groups, g)
	return nil
}

// Group creates and registers a new group.
func (r *Registry) Group(name string) (*Group, error) {
	g := NewGroup(name)
	if err := r.Register(g); err != nil {
		return nil, err
	}
	return g, nil
}

// Groups returns registered groups in registration order.
func (r *Registry) Groups() []*Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Group(nil), r.groups...)
}

// Reset drops every registered group.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.groups = nil
	r.mu.Unlock()
}

// RunAll runs every group sequentially with the same options. Baseline in
// opts is ignored; each group uses its first variant.
func (r *Registry) RunAll(ctx context.Context, opts Options) ([]GroupResult, error) {
	opts.Baseline = ""
	var out []GroupResult
	for _, g := range r.Groups() {
		res, err := g.Run(ctx, opts)
		if err != nil {
			return out, err
		}
		out = append(out, *res)
	}
	return out, nil
}
