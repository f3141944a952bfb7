package runner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dkoosis/testrig/pkg/fixture"
	"github.com/dkoosis/testrig/pkg/param"
	"github.com/dkoosis/testrig/pkg/report"
	"github.com/dkoosis/testrig/pkg/suite"
)

// Failure phases recorded in report.Failure.Phase.
const (
	PhaseFixtureSetup    = "fixture_setup"
	PhaseFixtureTeardown = "fixture_teardown"
	PhaseCall            = "call"
)

// run is the state of one Run call.
type run struct {
	*Runner
	rep      *report.Report
	session  *scopeCache
	stopped  bool
	stopNote string
}

// phaseErr is an error tagged with the phase that produced it.
type phaseErr struct {
	phase string
	err   error
}

type outcome []phaseErr

func (o *outcome) add(phase string, err error) {
	*o = append(*o, phaseErr{phase: phase, err: err})
}

func (o *outcome) addAll(phase string, errs []error) {
	for _, err := range errs {
		o.add(phase, err)
	}
}

// phase invokes fn with t and records what went wrong: assertion failures
// recorded on t during the call, the returned error, or an unexpected panic.
// It reports whether the phase completed cleanly and t was not skipped.
func (rn *run) phase(ctx context.Context, t *suite.T, fn suite.Func, name string, out *outcome) bool {
	if fn.IsZero() {
		return true
	}
	before := len(t.Failures())
	res := fn.Invoke(ctx, t)
	added := len(*out)
	for _, f := range t.Failures()[before:] {
		out.add(name, f)
	}
	switch {
	case res.Panicked && !suite.IsUnwind(res.Recovered):
		out.add(name, &PanicError{Value: res.Recovered, Stack: res.Stack})
	case res.Err != nil:
		out.add(name, res.Err)
	}
	if len(*out) > added {
		rn.log.Warn("phase failed", zap.String("test", t.Name()), zap.String("phase", name),
			zap.Error((*out)[added].err), zap.Duration("duration", res.Duration))
	}
	skipped, _ := t.Skipped()
	return len(*out) == added && !skipped
}

func (rn *run) allowed(id TestID) bool {
	for _, f := range rn.filters {
		if !f(id) {
			return false
		}
	}
	return true
}

func (rn *run) runSuite(ctx context.Context, p suitePlan, module *scopeCache) {
	s := p.suite
	rn.observer.SuiteStarted(s.Name, len(p.items))
	defer rn.observer.SuiteFinished(s.Name)
	rn.log.Info("suite started", zap.String("suite", s.Name), zap.String("module", s.ModuleKey()),
		zap.Int("instances", len(p.items)))

	selected := make([]bool, len(p.items))
	anySelected := false
	for i, it := range p.items {
		selected[i] = it.meta.SkipReason == "" &&
			rn.allowed(TestID{Suite: s.Name, Name: it.inst.Name, Tags: it.meta.Tags})
		anySelected = anySelected || selected[i]
	}
	if !anySelected || rn.stopped || ctx.Err() != nil {
		for _, it := range p.items {
			reason := rn.skipReason(it, rn.stopped)
			if ctx.Err() != nil && it.meta.SkipReason == "" {
				reason = "run cancelled"
			}
			rn.skip(s, it, reason)
		}
		return
	}

	class := newScopeCache(fixture.Class, s.Name)
	cs := caches{session: rn.session, module: module, class: class}
	ct := suite.NewT(ctx, s.Name, nil, cs.lookup)

	var classOut outcome
	classReady := true
	if err := rn.acquire(ctx, cs, rn.autouseRoots(fixture.Class)); err != nil {
		classOut.add(PhaseFixtureSetup, err)
		classReady = false
	}
	setupAttempted := classReady
	if classReady {
		classReady = rn.phase(ctx, ct, s.Hook(suite.SetupClass), suite.SetupClass.String(), &classOut)
	}
	classSkipped, classSkipReason := ct.Skipped()

	for i, it := range p.items {
		switch {
		case !selected[i]:
			rn.skip(s, it, rn.skipReason(it, false))
		case rn.stopped || ctx.Err() != nil:
			reason := rn.stopNote
			if ctx.Err() != nil {
				reason = "run cancelled"
			}
			rn.skip(s, it, reason)
		case classSkipped && len(classOut) == 0:
			rn.skip(s, it, classSkipReason)
		case !classReady:
			rn.classFailed(s, it, classOut)
		default:
			rn.runInstance(ctx, s, it, cs)
		}
	}

	teardownCtx := context.WithoutCancel(ctx)
	var tdOut outcome
	if setupAttempted {
		rn.phase(teardownCtx, ct, s.Hook(suite.TeardownClass), suite.TeardownClass.String(), &tdOut)
	}
	tdOut.addAll(PhaseFixtureTeardown, class.release(teardownCtx, rn.log))
	if len(tdOut) > 0 {
		rn.finish(classResult(s.Name, s.Name+"::teardown_class", tdOut))
	}
}

func (rn *run) skipReason(it planned, stopped bool) string {
	switch {
	case it.meta.SkipReason != "":
		return it.meta.SkipReason
	case stopped:
		return rn.stopNote
	default:
		return "deselected by filter"
	}
}

func (rn *run) newResult(s *suite.Suite, it planned) report.TestResult {
	return report.TestResult{
		Name:   it.inst.Name,
		Suite:  s.Name,
		Params: paramStrings(it.inst.Params),
		Tags:   it.meta.Tags,
	}
}

func (rn *run) skip(s *suite.Suite, it planned, reason string) {
	res := rn.newResult(s, it)
	res.Status = report.Skipped
	res.Failure = &report.Failure{Message: reason, Type: "skip"}
	rn.observer.TestStarted(TestID{Suite: s.Name, Name: it.inst.Name, Tags: it.meta.Tags})
	rn.finish(res)
}

// classFailed reports an instance that could not run because class setup
// failed.
func (rn *run) classFailed(s *suite.Suite, it planned, classOut outcome) {
	res := rn.newResult(s, it)
	classify(&res, classOut, false, "")
	if res.Status == report.Failed {
		// An assertion in setup_class is still an error for the instance.
		res.Status = report.Errored
	}
	rn.observer.TestStarted(TestID{Suite: s.Name, Name: it.inst.Name, Tags: it.meta.Tags})
	rn.finish(res)
}

func (rn *run) runInstance(ctx context.Context, s *suite.Suite, it planned, cs caches) {
	id := TestID{Suite: s.Name, Name: it.inst.Name, Tags: it.meta.Tags}
	rn.observer.TestStarted(id)
	start := rn.now()

	ictx := ctx
	if it.meta.Timeout > 0 {
		var cancel context.CancelFunc
		ictx, cancel = context.WithTimeout(ctx, it.meta.Timeout)
		defer cancel()
	}

	cs.function = newScopeCache(fixture.Function, it.inst.Name)
	t := suite.NewT(ictx, it.inst.Name, it.inst.Params, cs.lookup)
	var out outcome

	roots := append(rn.autouseRoots(fixture.Function), it.meta.Fixtures...)
	if err := rn.acquire(ictx, cs, roots); err != nil {
		out.add(PhaseFixtureSetup, err)
	} else {
		if rn.phase(ictx, t, s.Hook(suite.SetupMethod), suite.SetupMethod.String(), &out) {
			rn.phase(ictx, t, it.meta.Body, PhaseCall, &out)
		}
		rn.phase(context.WithoutCancel(ctx), t, s.Hook(suite.TeardownMethod), suite.TeardownMethod.String(), &out)
	}
	out.addAll(PhaseFixtureTeardown, cs.function.release(context.WithoutCancel(ctx), rn.log))

	res := rn.newResult(s, it)
	res.Duration = rn.now().Sub(start)
	res.Output = t.Output()
	skipped, reason := t.Skipped()
	classify(&res, out, skipped, reason)
	rn.finish(res)

	if rn.failFast && !res.Status.OK() && !rn.stopped {
		rn.stopped = true
		rn.stopNote = "fail fast: " + id.String() + " " + string(res.Status)
		rn.log.Info("fail fast triggered", zap.String("test", id.String()))
	}
}

func (rn *run) finish(res report.TestResult) {
	rn.rep.Add(res)
	rn.observer.TestFinished(res)
}

// releaseScope tears down a module or session cache and records failures as
// a synthetic errored result named after the scope.
func (rn *run) releaseScope(ctx context.Context, c *scopeCache, suiteName, name string) {
	errs := c.release(context.WithoutCancel(ctx), rn.log)
	if len(errs) == 0 {
		return
	}
	var out outcome
	out.addAll(PhaseFixtureTeardown, errs)
	label := name
	if c.key != "" {
		label = c.key + "::" + name
	}
	rn.finish(classResult(suiteName, label, out))
}

func classResult(suiteName, name string, out outcome) report.TestResult {
	res := report.TestResult{Name: name, Suite: suiteName}
	classify(&res, out, false, "")
	res.Status = report.Errored
	return res
}

// classify sets status and failure detail. The first recorded error decides
// between failed (assertion) and errored; later errors, teardown failures
// included, are kept in Errors and never replace it.
func classify(res *report.TestResult, out outcome, skipped bool, skipReason string) {
	if len(out) == 0 {
		if skipped {
			res.Status = report.Skipped
			res.Failure = &report.Failure{Message: skipReason, Type: "skip"}
			return
		}
		res.Status = report.Passed
		return
	}
	first := out[0]
	res.Status = report.Errored
	if suite.IsAssertion(first.err) {
		res.Status = report.Failed
	}
	f := toFailure(first)
	res.Failure = &f
	for _, pe := range out[1:] {
		res.Errors = append(res.Errors, toFailure(pe))
	}
}

func toFailure(pe phaseErr) report.Failure {
	return report.Failure{Message: pe.err.Error(), Type: errorType(pe.err), Phase: pe.phase}
}

// errorType names the most specific error type: the innermost error of a
// fixture failure, otherwise the error itself.
func errorType(err error) string {
	var fe *FixtureError
	if errors.As(err, &fe) && fe.Err != nil {
		return fmt.Sprintf("%T", fe.Err)
	}
	return fmt.Sprintf("%T", err)
}

func paramStrings(ps []param.Param) map[string]string {
	if len(ps) == 0 {
		return nil
	}
	out := make(map[string]string, len(ps))
	for _, p := range ps {
		out[p.Name] = param.FormatValue(p.Value)
	}
	return out
}
