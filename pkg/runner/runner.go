// Package runner schedules suites: it expands tests into instances, acquires
// fixtures by scope, drives the class and method hooks around every instance,
// and records each outcome in a report.
//
// Execution is sequential. Within a suite the order is
//
//	setup_class, { setup_method, body, teardown_method }*, teardown_class
//
// Teardowns always run once their setup was attempted, and a failure in one
// instance never stops its siblings.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dkoosis/testrig/pkg/fixture"
	"github.com/dkoosis/testrig/pkg/param"
	"github.com/dkoosis/testrig/pkg/report"
	"github.com/dkoosis/testrig/pkg/suite"
)

// Runner executes suites against a fixture registry.
type Runner struct {
	reg      *fixture.Registry
	log      *zap.Logger
	observer MultiObserver
	filters  []Filter
	failFast bool
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithObserver adds a progress observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observer = append(r.observer, o)
		}
	}
}

// WithFilter adds a filter; an instance runs only if every filter accepts it.
func WithFilter(f Filter) Option {
	return func(r *Runner) {
		if f != nil {
			r.filters = append(r.filters, f)
		}
	}
}

// WithFailFast stops scheduling new instances after the first one that does
// not pass. Remaining instances are reported as skipped; teardowns still run.
func WithFailFast(on bool) Option {
	return func(r *Runner) { r.failFast = on }
}

// WithClock replaces time.Now for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a Runner. A nil registry is treated as empty.
func New(reg *fixture.Registry, opts ...Option) *Runner {
	if reg == nil {
		reg = fixture.NewRegistry()
	}
	r := &Runner{reg: reg, log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	if len(r.observer) == 0 {
		r.observer = MultiObserver{nopObserver{}}
	}
	return r
}

type planned struct {
	meta *suite.TestMeta
	inst param.Instance
}

type suitePlan struct {
	suite *suite.Suite
	items []planned
}

// plan validates the registry and the suites and expands every test into its
// instances. Any error matches ErrConfiguration and nothing has run.
func (r *Runner) plan(suites ...*suite.Suite) ([]suitePlan, error) {
	if err := r.reg.Validate(); err != nil {
		return nil, err
	}
	var errs []error
	plans := make([]suitePlan, 0, len(suites))
	names := map[string]bool{}
	for _, s := range suites {
		if err := s.Build(); err != nil {
			errs = append(errs, err)
			continue
		}
		if names[s.Name] {
			errs = append(errs, &suite.DefinitionError{Suite: s.Name, Item: "suite", Err: errors.New("duplicate suite name")})
			continue
		}
		names[s.Name] = true

		p := suitePlan{suite: s}
		for _, m := range s.Tests() {
			for _, f := range m.Fixtures {
				if !r.reg.Has(f) {
					errs = append(errs, &fixture.UnknownFixtureError{Name: f, RequiredBy: s.Name + "." + m.Name})
				}
			}
			instances, err := m.Expand()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			for _, inst := range instances {
				p.items = append(p.items, planned{meta: m, inst: inst})
			}
		}
		plans = append(plans, p)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return plans, nil
}

// Run executes suites in order and returns the report. The error is non-nil
// only for configuration errors, in which case nothing ran and the report is
// nil, or for cancellation, in which case the report covers what ran and the
// rest is reported as skipped.
func (r *Runner) Run(ctx context.Context, suites ...*suite.Suite) (*report.Report, error) {
	plans, err := r.plan(suites...)
	if err != nil {
		r.log.Warn("run aborted", zap.Error(err))
		return nil, err
	}

	rep := report.New(r.now())
	rn := &run{Runner: r, rep: rep, session: newScopeCache(fixture.Session, "session")}

	last := map[string]int{}
	for i, p := range plans {
		last[p.suite.ModuleKey()] = i
	}
	modules := map[string]*scopeCache{}

	for i, p := range plans {
		key := p.suite.ModuleKey()
		if modules[key] == nil {
			modules[key] = newScopeCache(fixture.Module, key)
		}
		rn.runSuite(ctx, p, modules[key])
		if last[key] == i {
			rn.releaseScope(ctx, modules[key], key, "teardown_module")
			delete(modules, key)
		}
	}
	rn.releaseScope(ctx, rn.session, "", "teardown_session")

	rep.Finish(r.now())
	s := rep.Summary
	r.log.Info("run finished",
		zap.String("run_id", rep.RunID),
		zap.Int("total", s.Total), zap.Int("passed", s.Passed), zap.Int("failed", s.Failed),
		zap.Int("errors", s.Errors), zap.Int("skipped", s.Skipped),
		zap.Duration("duration", s.Duration))
	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("run cancelled: %w", err)
	}
	return rep, nil
}

// autouseRoots lists autouse fixtures from the broadest scope down to
// narrowest, stopping at narrowest.
func (r *Runner) autouseRoots(narrowest fixture.Scope) []string {
	var names []string
	for _, s := range fixture.Scopes {
		if s < narrowest {
			break
		}
		for _, m := range r.reg.Autouse(s) {
			names = append(names, m.Name)
		}
	}
	return names
}
