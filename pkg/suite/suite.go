// Package suite is the declaration surface for tests: a Suite groups test
// functions with class and method hooks, and options attach tags,
// parametrize axes and fixture requests to each test. Declarations are
// checked by Build before anything runs.
package suite

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dkoosis/testrig/pkg/fixture"
	"github.com/dkoosis/testrig/pkg/invoke"
	"github.com/dkoosis/testrig/pkg/param"
)

// Hook identifies a lifecycle hook.
type Hook int

const (
	SetupClass Hook = iota
	TeardownClass
	SetupMethod
	TeardownMethod
	numHooks
)

func (h Hook) String() string {
	switch h {
	case SetupClass:
		return "setup_class"
	case TeardownClass:
		return "teardown_class"
	case SetupMethod:
		return "setup_method"
	case TeardownMethod:
		return "teardown_method"
	}
	return fmt.Sprintf("hook(%d)", int(h))
}

// Func is the callable form hooks and bodies are stored in.
type Func = invoke.Callable[*T]

// DefinitionError reports an invalid test or hook declaration.
type DefinitionError struct {
	Suite string
	Item  string
	Err   error
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("suite %s: %s: %v", e.Suite, e.Item, e.Err)
}

func (e *DefinitionError) Unwrap() error { return e.Err }

func (e *DefinitionError) Is(target error) bool { return target == fixture.ErrConfiguration }

// TestMeta is one declared test before parametrize expansion.
type TestMeta struct {
	Name       string
	Tags       []string
	Axes       []param.Axis
	Fixtures   []string
	Timeout    time.Duration
	SkipReason string
	Body       Func
}

// Expand returns the concrete instances of m.
func (m *TestMeta) Expand() ([]param.Instance, error) {
	return param.Expand(m.Name, m.Axes)
}

// HasTag reports whether m carries tag.
func (m *TestMeta) HasTag(tag string) bool {
	return slices.Contains(m.Tags, tag)
}

// Option configures a test declaration.
type Option func(*TestMeta)

// Parametrize adds an axis. Axes are expanded in the order they are given:
// the first axis varies slowest and its segment comes first in instance names.
func Parametrize(name string, values ...any) Option {
	return func(m *TestMeta) {
		m.Axes = append(m.Axes, param.Axis{Name: name, Values: values})
	}
}

// Tags attaches tags used by tag filters.
func Tags(tags ...string) Option {
	return func(m *TestMeta) { m.Tags = append(m.Tags, tags...) }
}

// Uses requests fixtures by name.
func Uses(fixtures ...string) Option {
	return func(m *TestMeta) { m.Fixtures = append(m.Fixtures, fixtures...) }
}

// Timeout bounds each instance's body. The context passed to the body is
// cancelled when it expires.
func Timeout(d time.Duration) Option {
	return func(m *TestMeta) { m.Timeout = d }
}

// Skip declares the test skipped; no hooks run for it.
func Skip(reason string) Option {
	return func(m *TestMeta) { m.SkipReason = reason }
}

// Suite is a class-like group of tests sharing hooks and class-scoped
// fixtures. Suites with the same Module share module-scoped fixtures.
type Suite struct {
	Name   string
	Module string

	hooks [numHooks]Func
	tests []*TestMeta
	errs  []error
}

// New creates an empty suite.
func New(name string) *Suite {
	return &Suite{Name: name}
}

// InModule sets the module the suite belongs to.
func (s *Suite) InModule(module string) *Suite {
	s.Module = module
	return s
}

// ModuleKey is the key module-scoped fixtures are cached under. A suite
// without a module is a module of its own.
func (s *Suite) ModuleKey() string {
	if s.Module != "" {
		return s.Module
	}
	return s.Name
}

func (s *Suite) setHook(h Hook, fn any) *Suite {
	c, err := invoke.Of[*T](fn)
	if err != nil {
		s.errs = append(s.errs, &DefinitionError{Suite: s.Name, Item: h.String(), Err: err})
		return s
	}
	s.hooks[h] = c
	return s
}

// SetupClass runs once before the suite's first instance. fn is any form
// accepted by invoke.Of with argument *T.
func (s *Suite) SetupClass(fn any) *Suite { return s.setHook(SetupClass, fn) }

// TeardownClass runs once after the suite's last instance.
func (s *Suite) TeardownClass(fn any) *Suite { return s.setHook(TeardownClass, fn) }

// SetupMethod runs before every instance.
func (s *Suite) SetupMethod(fn any) *Suite { return s.setHook(SetupMethod, fn) }

// TeardownMethod runs after every instance, even when the body failed.
func (s *Suite) TeardownMethod(fn any) *Suite { return s.setHook(TeardownMethod, fn) }

// Hook returns the declared hook, which may be zero.
func (s *Suite) Hook(h Hook) Func { return s.hooks[h] }

// Test declares a test. Tests run in declaration order.
func (s *Suite) Test(name string, fn any, opts ...Option) *Suite {
	m := &TestMeta{Name: name}
	for _, opt := range opts {
		opt(m)
	}
	body, err := invoke.Of[*T](fn)
	switch {
	case err != nil:
		s.errs = append(s.errs, &DefinitionError{Suite: s.Name, Item: name, Err: err})
		return s
	case body.IsZero():
		s.errs = append(s.errs, &DefinitionError{Suite: s.Name, Item: name, Err: errors.New("nil test function")})
		return s
	}
	m.Body = body
	s.tests = append(s.tests, m)
	return s
}

// Tests returns the declared tests in order.
func (s *Suite) Tests() []*TestMeta {
	return append([]*TestMeta(nil), s.tests...)
}

// Build reports every declaration error: bad signatures, empty or duplicate
// test names, and invalid parametrize axes.
func (s *Suite) Build() error {
	errs := append([]error(nil), s.errs...)
	if s.Name == "" {
		errs = append(errs, &DefinitionError{Suite: "<unnamed>", Item: "suite", Err: errors.New("empty suite name")})
	}
	seen := map[string]bool{}
	for _, m := range s.tests {
		if m.Name == "" {
			errs = append(errs, &DefinitionError{Suite: s.Name, Item: "test", Err: errors.New("empty test name")})
			continue
		}
		if seen[m.Name] {
			errs = append(errs, &DefinitionError{Suite: s.Name, Item: m.Name, Err: errors.New("duplicate test name")})
		}
		seen[m.Name] = true
		if err := param.Validate(m.Name, m.Axes); err != nil {
			errs = append(errs, &DefinitionError{Suite: s.Name, Item: m.Name, Err: err})
		}
	}
	return errors.Join(errs...)
}
