package runner

import (
	"fmt"

	"github.com/dkoosis/testrig/pkg/fixture"
	"github.com/dkoosis/testrig/pkg/suite"
)

// ErrConfiguration matches every error that aborts a run before any hook
// executes: registry problems, bad declarations, unknown fixtures.
var ErrConfiguration = fixture.ErrConfiguration

// T is the test context handed to hooks and bodies.
type T = suite.T

// AssertionError marks a failed expectation.
type AssertionError = suite.AssertionError

// PanicError is an unexpected panic raised by a hook, body or fixture.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// FixtureError is a failed fixture setup. Once a broader-scoped fixture
// fails, every instance that needs it reports the same error without
// retrying the setup.
type FixtureError struct {
	Fixture string
	Scope   fixture.Scope
	Err     error
}

func (e *FixtureError) Error() string {
	return fmt.Sprintf("fixture %q (%s scope) setup failed: %v", e.Fixture, e.Scope, e.Err)
}

func (e *FixtureError) Unwrap() error { return e.Err }
