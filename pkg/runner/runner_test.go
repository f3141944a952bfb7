package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dkoosis/testrig/pkg/fixture"
	"github.com/dkoosis/testrig/pkg/invoke"
	"github.com/dkoosis/testrig/pkg/report"
	"github.com/dkoosis/testrig/pkg/suite"
)

// trace records events in order; safe for async hooks.
type trace struct {
	mu     sync.Mutex
	events []string
}

func (tr *trace) add(format string, args ...any) {
	tr.mu.Lock()
	tr.events = append(tr.events, fmt.Sprintf(format, args...))
	tr.mu.Unlock()
}

func (tr *trace) hook(name string) func(*T) {
	return func(*T) { tr.add("%s", name) }
}

func (tr *trace) get() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.events...)
}

func statuses(rep *report.Report) map[string]report.Status {
	out := map[string]report.Status{}
	for _, r := range rep.Results {
		out[r.Name] = r.Status
	}
	return out
}

func TestRun_HookOrderWithMixedSyncAndAsync(t *testing.T) {
	tr := &trace{}
	s := suite.New("Lifecycle").
		SetupClass(tr.hook("setup_class")).
		TeardownClass(func(ctx context.Context, _ *T) <-chan error {
			return invoke.Go(func() error { tr.add("teardown_class"); return nil })
		}).
		SetupMethod(func(ctx context.Context, _ *T) <-chan error {
			return invoke.Go(func() error { tr.add("setup_method"); return nil })
		}).
		TeardownMethod(func(*T) error { tr.add("teardown_method"); return nil }).
		Test("test_first", tr.hook("test_first")).
		Test("test_second", func(ctx context.Context, _ *T) error { tr.add("test_second"); return nil })

	rep, err := New(nil).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"setup_class",
		"setup_method", "test_first", "teardown_method",
		"setup_method", "test_second", "teardown_method",
		"teardown_class",
	}, tr.get())
	assert.Equal(t, 2, rep.Summary.Passed)
	assert.True(t, rep.OK())
}

func TestRun_MethodHooksRunPerParametrizedVariant(t *testing.T) {
	tr := &trace{}
	s := suite.New("P").
		SetupMethod(tr.hook("setup")).
		TeardownMethod(tr.hook("teardown")).
		Test("test_add", func(t *T) {
			tr.add("%s x=%v y=%v", t.Name(), t.Param("x"), t.Param("y"))
		}, suite.Parametrize("x", 1, 2), suite.Parametrize("y", 10, 20))

	rep, err := New(nil).Run(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, 4, rep.Summary.Total)
	events := tr.get()
	require.Len(t, events, 12)
	assert.Equal(t, "test_add[x=1,y=10] x=1 y=10", events[1])
	assert.Equal(t, "test_add[x=2,y=20] x=2 y=20", events[10])
	assert.Equal(t, map[string]string{"x": "1", "y": "10"}, rep.Results[0].Params)
}

func TestRun_TeardownFailureIsIsolated(t *testing.T) {
	tr := &trace{}
	calls := 0
	s := suite.New("Iso").
		TeardownMethod(func(t *T) error {
			calls++
			if calls == 1 {
				return errors.New("teardown exploded")
			}
			return nil
		}).
		TeardownClass(tr.hook("teardown_class")).
		Test("test_one", func(*T) {}).
		Test("test_two", tr.hook("test_two"))

	rep, err := New(nil).Run(context.Background(), s)
	require.NoError(t, err)
	st := statuses(rep)
	assert.Equal(t, report.Errored, st["test_one"])
	assert.Equal(t, report.Passed, st["test_two"])
	assert.Equal(t, []string{"test_two", "teardown_class"}, tr.get())

	one, _ := rep.Find("test_one")
	assert.Equal(t, "teardown_method", one.Failure.Phase)
	assert.Equal(t, 1, rep.ExitCode())
}

func TestRun_TeardownNeverMasksBodyFailure(t *testing.T) {
	tr := &trace{}
	s := suite.New("Mask").
		TeardownMethod(func(*T) error { tr.add("teardown_method"); return errors.New("cleanup failed") }).
		Test("test_fails", func(t *T) {
			t.Errorf("want %d, got %d", 1, 2)
			tr.add("after errorf")
		})

	rep, err := New(nil).Run(context.Background(), s)
	require.NoError(t, err)
	r := rep.Results[0]
	assert.Equal(t, report.Failed, r.Status)
	assert.Equal(t, "want 1, got 2", r.Failure.Message)
	assert.Equal(t, "*suite.AssertionError", r.Failure.Type)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "cleanup failed", r.Errors[0].Message)
	assert.Equal(t, []string{"after errorf", "teardown_method"}, tr.get())
}

func TestRun_StatusClassification(t *testing.T) {
	s := suite.New("Status").
		Test("test_pass", func(*T) {}).
		Test("test_errorf", func(t *T) { t.Errorf("nope") }).
		Test("test_fatal", func(t *T) { t.Fatalf("stop"); panic("unreachable") }).
		Test("test_failf", func(*T) error { return suite.Failf("returned %s", "assertion") }).
		Test("test_error", func(*T) error { return errors.New("io failure") }).
		Test("test_panic", func(*T) { panic("boom") }).
		Test("test_skip", func(t *T) { t.Skip("not today") }).
		Test("test_declared_skip", func(*T) {}, suite.Skip("flaky"))

	rep, err := New(nil).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, map[string]report.Status{
		"test_pass":          report.Passed,
		"test_errorf":        report.Failed,
		"test_fatal":         report.Failed,
		"test_failf":         report.Failed,
		"test_error":         report.Errored,
		"test_panic":         report.Errored,
		"test_skip":          report.Skipped,
		"test_declared_skip": report.Skipped,
	}, statuses(rep))

	p, _ := rep.Find("test_panic")
	assert.Equal(t, "panic: boom", p.Failure.Message)
	assert.Equal(t, "*runner.PanicError", p.Failure.Type)
	sk, _ := rep.Find("test_skip")
	assert.Equal(t, "not today", sk.Failure.Message)
	ds, _ := rep.Find("test_declared_skip")
	assert.Equal(t, "flaky", ds.Failure.Message)
}

func TestRun_AsyncBodiesUnwindLikeSyncOnes(t *testing.T) {
	tr := &trace{}
	s := suite.New("Async").
		TeardownMethod(tr.hook("teardown_method")).
		SetupClass(func() { tr.add("setup_class") }).
		Test("test_async_skip", func(ctx context.Context, t *T) <-chan error {
			return invoke.Go(func() error { t.Skip("no replica"); return nil })
		}).
		Test("test_async_fatal", func(ctx context.Context, t *T) <-chan error {
			return invoke.Go(func() error { t.Fatalf("want %d rows", 3); return nil })
		}).
		Test("test_async_panic", func(ctx context.Context, t *T) <-chan error {
			return invoke.Go(func() error { panic("lost connection") })
		})

	rep, err := New(nil).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, map[string]report.Status{
		"test_async_skip":  report.Skipped,
		"test_async_fatal": report.Failed,
		"test_async_panic": report.Errored,
	}, statuses(rep))

	sk, _ := rep.Find("test_async_skip")
	assert.Equal(t, "no replica", sk.Failure.Message)
	fa, _ := rep.Find("test_async_fatal")
	assert.Equal(t, "want 3 rows", fa.Failure.Message)
	assert.Empty(t, fa.Errors, "the unwind itself is not recorded as an error")
	pa, _ := rep.Find("test_async_panic")
	assert.Equal(t, "panic: lost connection", pa.Failure.Message)
	assert.Equal(t, "*runner.PanicError", pa.Failure.Type)

	assert.Equal(t, []string{"setup_class", "teardown_method", "teardown_method", "teardown_method"}, tr.get())
}

func TestRun_SetupClassFailureErrorsEveryInstance(t *testing.T) {
	tr := &trace{}
	s := suite.New("Broken").
		SetupClass(func(*T) error { return errors.New("db down") }).
		SetupMethod(tr.hook("setup_method")).
		TeardownClass(tr.hook("teardown_class")).
		Test("test_a", tr.hook("test_a")).
		Test("test_b", tr.hook("test_b"))

	rep, err := New(nil).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Summary.Errors)
	for _, r := range rep.Results {
		assert.Equal(t, "setup_class", r.Failure.Phase)
		assert.Equal(t, "db down", r.Failure.Message)
	}
	assert.Equal(t, []string{"teardown_class"}, tr.get(), "teardown_class pairs with the attempted setup")
}

func TestRun_SetupMethodFailureStillRunsTeardownMethod(t *testing.T) {
	tr := &trace{}
	s := suite.New("SM").
		SetupMethod(func(*T) error { return errors.New("no") }).
		TeardownMethod(tr.hook("teardown_method")).
		Test("test_a", tr.hook("test_a"))

	rep, err := New(nil).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, report.Errored, rep.Results[0].Status)
	assert.Equal(t, []string{"teardown_method"}, tr.get())
}

func TestRun_TeardownClassFailureReportedSeparately(t *testing.T) {
	s := suite.New("TC").
		TeardownClass(func(*T) error { return errors.New("leak") }).
		Test("test_a", func(*T) {})

	rep, err := New(nil).Run(context.Background(), s)
	require.NoError(t, err)
	st := statuses(rep)
	assert.Equal(t, report.Passed, st["test_a"])
	assert.Equal(t, report.Errored, st["TC::teardown_class"])
	assert.False(t, rep.OK())
}

func counterFixture(tr *trace, name string, scope fixture.Scope, deps ...string) fixture.Definition {
	n := 0
	return fixture.Definition{
		Meta: fixture.Meta{Name: name, Scope: scope, Dependencies: deps},
		Setup: func(ctx context.Context, r *fixture.Request) (any, error) {
			n++
			tr.add("setup %s", name)
			return fmt.Sprintf("%s#%d", name, n), nil
		},
		Teardown: func(ctx context.Context, v any) error {
			tr.add("teardown %s", v)
			return nil
		},
	}
}

func TestRun_ScopeReuseAndRelease(t *testing.T) {
	tr := &trace{}
	reg := fixture.NewRegistry()
	reg.MustRegister(counterFixture(tr, "db", fixture.Session))
	reg.MustRegister(counterFixture(tr, "schema", fixture.Module, "db"))
	reg.MustRegister(counterFixture(tr, "client", fixture.Class, "schema"))
	reg.MustRegister(counterFixture(tr, "tx", fixture.Function, "client"))

	body := func(t *T) { tr.add("%s sees %v %v", t.Name(), t.Fixture("client"), t.Fixture("tx")) }
	a := suite.New("A").InModule("m1").Test("test_1", body, suite.Uses("tx")).Test("test_2", body, suite.Uses("tx"))
	b := suite.New("B").InModule("m1").Test("test_3", body, suite.Uses("tx"))
	c := suite.New("C").InModule("m2").Test("test_4", func(t *T) {
		tr.add("%s sees %v", t.Name(), t.Fixture("client"))
	}, suite.Uses("client"))

	rep, err := New(reg).Run(context.Background(), a, b, c)
	require.NoError(t, err)
	require.True(t, rep.OK())
	assert.Equal(t, []string{
		"setup db", "setup schema", "setup client", "setup tx",
		"test_1 sees client#1 tx#1",
		"teardown tx#1",
		"setup tx",
		"test_2 sees client#1 tx#2",
		"teardown tx#2",
		"teardown client#1",
		"setup client", "setup tx",
		"test_3 sees client#2 tx#3",
		"teardown tx#3",
		"teardown client#2",
		"teardown schema#1",
		"setup schema", "setup client",
		"test_4 sees client#3",
	}, tr.get()[:19])
	assert.Equal(t, []string{"teardown client#3", "teardown schema#2", "teardown db#1"}, tr.get()[19:])
}

func TestRun_TestFixtureLookupOfUndeclaredIsFatal(t *testing.T) {
	tr := &trace{}
	reg := fixture.NewRegistry()
	reg.MustRegister(counterFixture(tr, "db", fixture.Session))
	s := suite.New("U").Test("test_a", func(t *T) { t.Fixture("db") })

	rep, err := New(reg).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, report.Failed, rep.Results[0].Status)
	assert.Contains(t, rep.Results[0].Failure.Message, `fixture "db" not acquired`)
}

func TestRun_AutouseOrderedBeforeRequested(t *testing.T) {
	tr := &trace{}
	reg := fixture.NewRegistry()
	reg.MustRegister(counterFixture(tr, "requested", fixture.Function))
	auto2 := counterFixture(tr, "auto_fn", fixture.Function)
	auto2.Autouse = true
	reg.MustRegister(auto2)
	auto1 := counterFixture(tr, "auto_session", fixture.Session)
	auto1.Autouse = true
	reg.MustRegister(auto1)

	s := suite.New("Auto").
		SetupClass(tr.hook("setup_class")).
		Test("test_a", tr.hook("test_a"), suite.Uses("requested")).
		Test("test_b", tr.hook("test_b"))

	_, err := New(reg).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"setup auto_session", "setup_class",
		"setup auto_fn", "setup requested", "test_a", "teardown requested#1", "teardown auto_fn#1",
		"setup auto_fn", "test_b", "teardown auto_fn#2",
		"teardown auto_session#1",
	}, tr.get())
}

func TestRun_FixtureDependencyValues(t *testing.T) {
	reg := fixture.NewRegistry()
	reg.MustRegister(fixture.Definition{
		Meta:  fixture.Meta{Name: "base", Scope: fixture.Module},
		Setup: func(context.Context, *fixture.Request) (any, error) { return 40, nil },
	})
	reg.MustRegister(fixture.Definition{
		Meta: fixture.Meta{Name: "derived", Scope: fixture.Function, Dependencies: []string{"base"}},
		Setup: func(_ context.Context, r *fixture.Request) (any, error) {
			v, ok := r.Value("base")
			if !ok {
				return nil, errors.New("base missing")
			}
			return v.(int) + 2, nil
		},
	})
	var got any
	s := suite.New("D").Test("test_a", func(t *T) { got = t.Fixture("derived") }, suite.Uses("derived"))
	rep, err := New(reg).Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, rep.OK())
	assert.Equal(t, 42, got)
}

func TestRun_BroadFixtureFailureIsCached(t *testing.T) {
	setups := 0
	reg := fixture.NewRegistry()
	reg.MustRegister(fixture.Definition{
		Meta: fixture.Meta{Name: "server", Scope: fixture.Class},
		Setup: func(context.Context, *fixture.Request) (any, error) {
			setups++
			return nil, errors.New("port in use")
		},
	})
	s := suite.New("F").
		Test("test_a", func(*T) {}, suite.Uses("server")).
		Test("test_b", func(*T) {}, suite.Uses("server")).
		Test("test_c", func(*T) {})

	rep, err := New(reg).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 1, setups)
	st := statuses(rep)
	assert.Equal(t, report.Errored, st["test_a"])
	assert.Equal(t, report.Errored, st["test_b"])
	assert.Equal(t, report.Passed, st["test_c"])
	a, _ := rep.Find("test_a")
	assert.Equal(t, PhaseFixtureSetup, a.Failure.Phase)
	assert.Equal(t, "*errors.errorString", a.Failure.Type)
}

func TestRun_ConfigurationErrorsAbortBeforeAnyHook(t *testing.T) {
	tr := &trace{}
	cyclic := fixture.NewRegistry()
	cyclic.MustRegister(fixture.Definition{Meta: fixture.Meta{Name: "a", Dependencies: []string{"b"}}})
	cyclic.MustRegister(fixture.Definition{Meta: fixture.Meta{Name: "b", Dependencies: []string{"a"}}})

	ok := func() *suite.Suite {
		return suite.New("S").SetupClass(tr.hook("setup_class")).Test("test_a", tr.hook("test_a"))
	}

	cases := map[string]struct {
		reg    *fixture.Registry
		suites []*suite.Suite
	}{
		"cycle":           {cyclic, []*suite.Suite{ok()}},
		"unknown fixture": {nil, []*suite.Suite{ok(), suite.New("X").Test("test_x", func(*T) {}, suite.Uses("nope"))}},
		"duplicate axis": {nil, []*suite.Suite{ok(), suite.New("X").Test("test_x", func(*T) {},
			suite.Parametrize("a", 1), suite.Parametrize("a", 2))}},
		"bad signature":  {nil, []*suite.Suite{ok(), suite.New("X").Test("test_x", func(int) {})}},
		"duplicate test": {nil, []*suite.Suite{ok(), suite.New("X").Test("t", func(*T) {}).Test("t", func(*T) {})}},
		"duplicate suite": {nil, []*suite.Suite{ok(), ok()}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rep, err := New(tc.reg).Run(context.Background(), tc.suites...)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
			assert.Nil(t, rep)
			assert.Empty(t, tr.get())
		})
	}
}

func TestRun_EmptyAxisYieldsNoInstances(t *testing.T) {
	s := suite.New("E").Test("test_none", func(*T) {}, suite.Parametrize("x"))
	rep, err := New(nil).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Summary.Total)
}

func TestRun_FailFast(t *testing.T) {
	tr := &trace{}
	s := suite.New("FF").
		TeardownClass(tr.hook("teardown_class")).
		Test("test_a", func(*T) error { return errors.New("x") }).
		Test("test_b", tr.hook("test_b"))
	other := suite.New("Other").Test("test_c", tr.hook("test_c"))

	rep, err := New(nil, WithFailFast(true)).Run(context.Background(), s, other)
	require.NoError(t, err)
	st := statuses(rep)
	assert.Equal(t, report.Errored, st["test_a"])
	assert.Equal(t, report.Skipped, st["test_b"])
	assert.Equal(t, report.Skipped, st["test_c"])
	assert.Equal(t, []string{"teardown_class"}, tr.get())
	b, _ := rep.Find("test_b")
	assert.Contains(t, b.Failure.Message, "fail fast")
}

func TestRun_Filters(t *testing.T) {
	tr := &trace{}
	s := suite.New("F").
		SetupClass(tr.hook("setup_class")).
		Test("test_fast", tr.hook("test_fast"), suite.Tags("unit")).
		Test("test_slow", tr.hook("test_slow"), suite.Tags("slow")).
		Test("test_other", tr.hook("test_other"), suite.Tags("unit"))
	none := suite.New("None").SetupClass(tr.hook("none_setup_class")).Test("test_z", tr.hook("test_z"))

	var rx RegexFilters
	require.NoError(t, rx.MustNotMatch.Set("other$"))
	r := New(nil,
		WithFilter(TagFilter{Exclude: []string{"slow"}}.AsFilter),
		WithFilter(rx.AsFilter),
		WithFilter(func(id TestID) bool { return id.Suite != "None" }))

	rep, err := r.Run(context.Background(), s, none)
	require.NoError(t, err)
	assert.Equal(t, []string{"setup_class", "test_fast"}, tr.get(), "fully deselected suites run no hooks")
	assert.Equal(t, 1, rep.Summary.Passed)
	assert.Equal(t, 3, rep.Summary.Skipped)
}

func TestRun_TimeoutCancelsAsyncBody(t *testing.T) {
	s := suite.New("TO").Test("test_hangs", func(ctx context.Context, _ *T) <-chan error {
		return make(chan error)
	}, suite.Timeout(20*time.Millisecond))

	rep, err := New(nil).Run(context.Background(), s)
	require.NoError(t, err)
	r := rep.Results[0]
	assert.Equal(t, report.Errored, r.Status)
	assert.Contains(t, r.Failure.Message, "deadline exceeded")
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := suite.New("C").
		Test("test_a", func(*T) { cancel() }).
		Test("test_b", func(*T) {})

	rep, err := New(nil).Run(ctx, s)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Equal(t, report.Skipped, statuses(rep)["test_b"])
}

type recordingObserver struct{ events []string }

func (o *recordingObserver) SuiteStarted(s string, n int) {
	o.events = append(o.events, fmt.Sprintf("suite %s %d", s, n))
}
func (o *recordingObserver) TestStarted(id TestID) { o.events = append(o.events, "start "+id.String()) }
func (o *recordingObserver) TestFinished(r report.TestResult) {
	o.events = append(o.events, fmt.Sprintf("finish %s %s", r.Name, r.Status))
}
func (o *recordingObserver) SuiteFinished(s string) { o.events = append(o.events, "done "+s) }

func TestRun_ObserverAndLogging(t *testing.T) {
	obs := &recordingObserver{}
	core, logs := observer.New(zapcore.InfoLevel)
	s := suite.New("O").
		Test("test_a", func(*T) {}).
		Test("test_b", func(*T) error { return errors.New("bad") })

	_, err := New(nil, WithObserver(obs), WithLogger(zap.New(core))).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"suite O 2",
		"start O/test_a", "finish test_a passed",
		"start O/test_b", "finish test_b errored",
		"done O",
	}, obs.events)
	assert.Equal(t, 1, logs.FilterMessage("suite started").Len())
	assert.Equal(t, 1, logs.FilterMessage("phase failed").Len())
	finished := logs.FilterMessage("run finished").All()
	require.Len(t, finished, 1)
	assert.EqualValues(t, 1, finished[0].ContextMap()["errors"])
}

func TestRun_ConfigurationErrorLoggedAsWarning(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := suite.New("X").Test("test_x", func(*T) {}, suite.Uses("nope"))

	_, err := New(nil, WithLogger(zap.New(core))).Run(context.Background(), s)
	require.ErrorIs(t, err, ErrConfiguration)
	aborted := logs.FilterMessage("run aborted").All()
	require.Len(t, aborted, 1)
	assert.Equal(t, zapcore.WarnLevel, aborted[0].Level)
}

func TestRun_OutputCaptured(t *testing.T) {
	s := suite.New("Out").Test("test_log", func(t *T) { t.Logf("step %d", 1); t.Log("done") })
	rep, err := New(nil).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{"step 1", "done"}, rep.Results[0].Output)
}
