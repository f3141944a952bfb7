package runner

import (
	"context"
	"errors"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/dkoosis/testrig/pkg/fixture"
)

type entry struct {
	def   fixture.Definition
	value any
	err   error
}

// scopeCache holds the fixtures acquired for one scope instance: a test
// instance, a suite, a module or the whole run.
type scopeCache struct {
	scope   fixture.Scope
	key     string
	entries map[string]*entry
	order   []string
}

func newScopeCache(scope fixture.Scope, key string) *scopeCache {
	return &scopeCache{scope: scope, key: key, entries: map[string]*entry{}}
}

func (c *scopeCache) value(name string) (any, bool) {
	if c == nil {
		return nil, false
	}
	e, ok := c.entries[name]
	if !ok || e.err != nil {
		return nil, false
	}
	return e.value, true
}

// release tears fixtures down in reverse acquisition order. Every teardown
// is attempted; all errors are returned.
func (c *scopeCache) release(ctx context.Context, log *zap.Logger) []error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.order) - 1; i >= 0; i-- {
		name := c.order[i]
		e := c.entries[name]
		if e.err != nil || e.def.Teardown == nil {
			continue
		}
		if err := safeTeardown(ctx, e.def.Teardown, e.value); err != nil {
			log.Warn("fixture teardown failed",
				zap.String("fixture", name), zap.Stringer("scope", c.scope), zap.Error(err))
			errs = append(errs, &FixtureError{Fixture: name, Scope: c.scope, Err: err})
			continue
		}
		log.Debug("fixture released", zap.String("fixture", name), zap.Stringer("scope", c.scope))
	}
	c.entries = map[string]*entry{}
	c.order = nil
	return errs
}

// caches is the stack of scope caches visible to one acquisition.
type caches struct {
	session, module, class, function *scopeCache
}

func (cs caches) forScope(s fixture.Scope) *scopeCache {
	switch s {
	case fixture.Session:
		return cs.session
	case fixture.Module:
		return cs.module
	case fixture.Class:
		return cs.class
	default:
		return cs.function
	}
}

// lookup resolves a fixture value from the narrowest scope outward.
func (cs caches) lookup(name string) (any, bool) {
	for _, c := range []*scopeCache{cs.function, cs.class, cs.module, cs.session} {
		if v, ok := c.value(name); ok {
			return v, true
		}
	}
	return nil, false
}

var errNoScope = errors.New("fixture requested outside of a test instance")

// acquire makes every fixture in roots, and their dependencies, available in
// the caches. Fixtures already held by their owning scope are reused; a
// cached setup failure is returned again without re-running the setup.
func (r *Runner) acquire(ctx context.Context, cs caches, roots []string) error {
	if len(roots) == 0 {
		return nil
	}
	order, err := r.reg.ResolveOrder(roots...)
	if err != nil {
		return err
	}
	for _, name := range order {
		def, _ := r.reg.Definition(name)
		cache := cs.forScope(def.Scope)
		if cache == nil {
			return &FixtureError{Fixture: name, Scope: def.Scope, Err: errNoScope}
		}
		if e, ok := cache.entries[name]; ok {
			if e.err != nil {
				return e.err
			}
			continue
		}

		req := fixture.NewRequest(def.Meta, cs.lookup)
		value, err := safeSetup(ctx, def.Setup, req)
		e := &entry{def: def, value: value}
		if err != nil {
			e.err = &FixtureError{Fixture: name, Scope: def.Scope, Err: err}
		}
		cache.entries[name] = e
		cache.order = append(cache.order, name)
		if e.err != nil {
			r.log.Warn("fixture setup failed", zap.String("fixture", name), zap.Error(err))
			return e.err
		}
		r.log.Debug("fixture acquired",
			zap.String("fixture", name), zap.Stringer("scope", def.Scope), zap.String("owner", cache.key))
	}
	return nil
}

func safeSetup(ctx context.Context, setup fixture.Setup, req *fixture.Request) (v any, err error) {
	if setup == nil {
		return nil, nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return setup(ctx, req)
}

func safeTeardown(ctx context.Context, teardown fixture.Teardown, value any) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return teardown(ctx, value)
}
