package suite

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkoosis/testrig/pkg/param"
)

// AssertionError is an expectation that was not met. A test whose first
// failure is an AssertionError is reported as failed; any other error makes
// it errored.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string { return e.Message }

// Failf returns an *AssertionError, for bodies that report failure by
// returning an error.
func Failf(format string, args ...any) error {
	return &AssertionError{Message: fmt.Sprintf(format, args...)}
}

// IsAssertion reports whether err is, or wraps, an *AssertionError.
func IsAssertion(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}

// unwind is panicked by FailNow and SkipNow to stop the current hook or body.
type unwind struct{ t *T }

// IsUnwind reports whether a recovered panic value came from FailNow or
// SkipNow rather than from user code.
func IsUnwind(recovered any) bool {
	_, ok := recovered.(unwind)
	return ok
}

// T is handed to hooks and test bodies. FailNow, Fatal and Skip stop the
// calling goroutine, so like testing.T they must be called from the
// goroutine running the hook, or from the function an async hook passes to
// invoke.Go, which carries the unwind back.
type T struct {
	ctx      context.Context
	name     string
	params   []param.Param
	fixtures func(string) (any, bool)

	mu         sync.Mutex
	failures   []error
	output     []string
	skipped    bool
	skipReason string
}

// NewT creates a test context. fixtures looks up acquired fixture values and
// may be nil.
func NewT(ctx context.Context, name string, params []param.Param, fixtures func(string) (any, bool)) *T {
	if fixtures == nil {
		fixtures = func(string) (any, bool) { return nil, false }
	}
	return &T{ctx: ctx, name: name, params: params, fixtures: fixtures}
}

// Name is the instance name, e.g. "test_add[x=1,y=10]".
func (t *T) Name() string { return t.name }

// Context is cancelled when the run is cancelled or the test times out.
func (t *T) Context() context.Context { return t.ctx }

// Params returns the parameter tuple of a parametrized instance.
func (t *T) Params() []param.Param { return t.params }

// Param returns the value bound to the named axis. A missing axis is fatal.
func (t *T) Param(name string) any {
	for _, p := range t.params {
		if p.Name == name {
			return p.Value
		}
	}
	t.Fatalf("no parameter %q", name)
	return nil
}

// Fixture returns the value of an acquired fixture. Asking for a fixture the
// test did not declare is fatal.
func (t *T) Fixture(name string) any {
	v, ok := t.fixtures(name)
	if !ok {
		t.Fatalf("fixture %q not acquired for %s", name, t.name)
	}
	return v
}

// Errorf records an assertion failure and continues.
func (t *T) Errorf(format string, args ...any) {
	t.record(&AssertionError{Message: fmt.Sprintf(format, args...)})
}

// Error records an assertion failure built from args and continues.
func (t *T) Error(args ...any) {
	t.record(&AssertionError{Message: fmt.Sprint(args...)})
}

// Fail marks the test failed without a message.
func (t *T) Fail() {
	t.record(&AssertionError{Message: "test marked failed"})
}

// FailNow marks the test failed and stops the current hook or body.
func (t *T) FailNow() {
	t.mu.Lock()
	if len(t.failures) == 0 {
		t.failures = append(t.failures, &AssertionError{Message: "test failed with no failure message"})
	}
	t.mu.Unlock()
	panic(unwind{t})
}

// Fatalf is Errorf followed by FailNow.
func (t *T) Fatalf(format string, args ...any) {
	t.Errorf(format, args...)
	t.FailNow()
}

// Fatal is Error followed by FailNow.
func (t *T) Fatal(args ...any) {
	t.Error(args...)
	t.FailNow()
}

// Skip records a skip reason and stops the current hook or body.
func (t *T) Skip(args ...any) {
	t.mu.Lock()
	t.skipped = true
	t.skipReason = fmt.Sprint(args...)
	t.mu.Unlock()
	panic(unwind{t})
}

// Skipf is Skip with formatting.
func (t *T) Skipf(format string, args ...any) {
	t.Skip(fmt.Sprintf(format, args...))
}

// Logf appends a line to the instance output.
func (t *T) Logf(format string, args ...any) {
	t.mu.Lock()
	t.output = append(t.output, fmt.Sprintf(format, args...))
	t.mu.Unlock()
}

// Log appends args to the instance output.
func (t *T) Log(args ...any) {
	t.mu.Lock()
	t.output = append(t.output, fmt.Sprint(args...))
	t.mu.Unlock()
}

// Failed reports whether an assertion failure has been recorded.
func (t *T) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.failures) > 0
}

// Failures returns the recorded assertion failures in order.
func (t *T) Failures() []error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]error(nil), t.failures...)
}

// Skipped reports whether Skip was called, and why.
func (t *T) Skipped() (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.skipped, t.skipReason
}

// Output returns the lines written with Log and Logf.
func (t *T) Output() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.output...)
}

func (t *T) record(err error) {
	t.mu.Lock()
	t.failures = append(t.failures, err)
	t.mu.Unlock()
}
