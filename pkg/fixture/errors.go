package fixture

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dkoosis/testrig/internal/dag"
)

// ErrConfiguration is matched (via errors.Is) by every error that describes a
// broken suite definition rather than a failing test.
var ErrConfiguration = errors.New("configuration error")

// DuplicateFixtureError is returned when a fixture name is registered twice.
type DuplicateFixtureError struct {
	Name string
}

func (e *DuplicateFixtureError) Error() string {
	return fmt.Sprintf("fixture %q is already registered", e.Name)
}

func (e *DuplicateFixtureError) Is(target error) bool { return target == ErrConfiguration }

// CircularDependencyError names a cycle in the fixture dependency graph.
type CircularDependencyError struct {
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	return "circular fixture dependency: " + strings.Join(e.Cycle, " -> ")
}

func (e *CircularDependencyError) Is(target error) bool { return target == ErrConfiguration }

// UnknownFixtureError is returned when a fixture name is requested or depended
// on but was never registered.
type UnknownFixtureError struct {
	Name       string
	RequiredBy string
}

func (e *UnknownFixtureError) Error() string {
	if e.RequiredBy == "" {
		return fmt.Sprintf("unknown fixture %q", e.Name)
	}
	return fmt.Sprintf("unknown fixture %q (required by %q)", e.Name, e.RequiredBy)
}

func (e *UnknownFixtureError) Is(target error) bool { return target == ErrConfiguration }

// ScopeMismatchError is returned when a fixture depends on a fixture with a
// narrower scope, which would be released while still in use.
type ScopeMismatchError struct {
	Name       string
	Scope      Scope
	Dependency string
	DepScope   Scope
}

func (e *ScopeMismatchError) Error() string {
	return fmt.Sprintf("%s-scoped fixture %q cannot depend on %s-scoped fixture %q",
		e.Scope, e.Name, e.DepScope, e.Dependency)
}

func (e *ScopeMismatchError) Is(target error) bool { return target == ErrConfiguration }

// translate maps graph errors onto fixture errors.
func translate(err error) error {
	var cycle *dag.CycleError
	if errors.As(err, &cycle) {
		return &CircularDependencyError{Cycle: cycle.Path}
	}
	var missing *dag.MissingNodeError
	if errors.As(err, &missing) {
		return &UnknownFixtureError{Name: missing.Node, RequiredBy: missing.From}
	}
	return err
}
