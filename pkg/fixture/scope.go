package fixture

import (
	"fmt"
	"strings"
)

// Scope is the lifetime bracket of a fixture. Broader scopes compare greater.
type Scope int

const (
	Function Scope = iota
	Class
	Module
	Session
)

// Scopes lists every scope from broadest to narrowest, the order in which
// autouse fixtures are acquired.
var Scopes = []Scope{Session, Module, Class, Function}

func (s Scope) String() string {
	switch s {
	case Function:
		return "function"
	case Class:
		return "class"
	case Module:
		return "module"
	case Session:
		return "session"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// ParseScope converts a scope name (case-insensitive) to a Scope.
func ParseScope(name string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "function":
		return Function, nil
	case "class":
		return Class, nil
	case "module":
		return Module, nil
	case "session":
		return Session, nil
	}
	return Function, fmt.Errorf("unknown fixture scope %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scope) UnmarshalText(b []byte) error {
	v, err := ParseScope(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
