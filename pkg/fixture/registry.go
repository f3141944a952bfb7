// Package fixture stores fixture definitions and resolves the order in which
// they must be acquired.
package fixture

import (
	"context"
	"sync"

	"github.com/dkoosis/testrig/internal/dag"
)

// Meta describes a registered fixture. It is immutable once registered;
// accessors return copies.
type Meta struct {
	Name         string   `json:"name"`
	Scope        Scope    `json:"scope"`
	Autouse      bool     `json:"autouse"`
	Dependencies []string `json:"dependencies,omitempty"`
	HasTeardown  bool     `json:"has_teardown"`
}

func (m Meta) clone() Meta {
	m.Dependencies = append([]string(nil), m.Dependencies...)
	return m
}

// Setup produces a fixture value. Values of the fixture's dependencies are
// available through the Request.
type Setup func(ctx context.Context, r *Request) (any, error)

// Teardown releases a value produced by Setup.
type Teardown func(ctx context.Context, value any) error

// Definition is a fixture as declared by a suite.
type Definition struct {
	Meta
	Setup    Setup
	Teardown Teardown
}

// Request gives a Setup function access to the values of its dependencies.
type Request struct {
	Fixture string
	Scope   Scope
	lookup  func(string) (any, bool)
}

// NewRequest builds a Request for fixture name resolving dependencies via lookup.
func NewRequest(meta Meta, lookup func(string) (any, bool)) *Request {
	return &Request{Fixture: meta.Name, Scope: meta.Scope, lookup: lookup}
}

// Value returns the value of an already-acquired dependency.
func (r *Request) Value(name string) (any, bool) {
	if r.lookup == nil {
		return nil, false
	}
	return r.lookup(name)
}

// Registry maps fixture names to definitions. The zero value is not usable;
// call NewRegistry.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]Definition
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a fixture. Registering a name twice returns *DuplicateFixtureError.
// A non-nil Teardown implies HasTeardown.
func (r *Registry) Register(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.defs[def.Name]; ok {
		return &DuplicateFixtureError{Name: def.Name}
	}
	def.Meta = def.Meta.clone()
	if def.Teardown != nil {
		def.HasTeardown = true
	}
	r.defs[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// MustRegister is like Register but panics on error. It is meant for
// package-level suite declarations.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Meta returns the metadata of a fixture.
func (r *Registry) Meta(name string) (Meta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	if !ok {
		return Meta{}, false
	}
	return def.Meta.clone(), true
}

// Definition returns the full definition of a fixture.
func (r *Registry) Definition(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	if ok {
		def.Meta = def.Meta.clone()
	}
	return def, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[name]
	return ok
}

// Len returns the number of registered fixtures.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Names returns fixture names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Reset removes every fixture.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = make(map[string]Definition)
	r.order = nil
}

func (r *Registry) edges(name string) ([]string, bool) {
	def, ok := r.defs[name]
	if !ok {
		return nil, false
	}
	return def.Dependencies, true
}

// ResolveOrder returns the requested fixtures and all of their transitive
// dependencies, deduplicated, with every fixture placed after its
// dependencies. Requested names are visited in the order given and
// dependencies in declaration order, so the result only depends on what was
// registered and requested. The runner relies on this to acquire autouse
// fixtures before explicitly requested ones.
//
// A cycle anywhere in the registry yields *CircularDependencyError, even
// one the request cannot reach; an unregistered name yields
// *UnknownFixtureError.
func (r *Registry) ResolveOrder(names ...string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.findCycle(); err != nil {
		return nil, err
	}
	order, err := dag.Sort(names, r.edges)
	if err != nil {
		return nil, translate(err)
	}
	return order, nil
}

// DetectCycles checks the whole dependency graph and returns
// *CircularDependencyError for the first cycle found, walking fixtures in
// registration order. Unknown dependencies are not its concern; see Validate.
func (r *Registry) DetectCycles() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findCycle()
}

// findCycle walks the whole graph, treating unknown dependencies as leaves.
// The caller holds r.mu.
func (r *Registry) findCycle() error {
	lenient := func(name string) ([]string, bool) {
		return r.defs[name].Dependencies, true
	}
	if err := dag.FindCycle(r.order, lenient); err != nil {
		return translate(err)
	}
	return nil
}

// Validate checks the registry before a run: no cycles, no unknown
// dependencies, and no fixture depending on a narrower-scoped one.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := dag.FindCycle(r.order, r.edges); err != nil {
		return translate(err)
	}
	for _, name := range r.order {
		def := r.defs[name]
		for _, dep := range def.Dependencies {
			d := r.defs[dep]
			if d.Scope < def.Scope {
				return &ScopeMismatchError{Name: name, Scope: def.Scope, Dependency: dep, DepScope: d.Scope}
			}
		}
	}
	return nil
}

// Autouse returns the autouse fixtures of the given scope in registration order.
func (r *Registry) Autouse(scope Scope) []Meta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Meta
	for _, name := range r.order {
		def := r.defs[name]
		if def.Autouse && def.Scope == scope {
			out = append(out, def.Meta.clone())
		}
	}
	return out
}
