package dag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func graph(m map[string][]string) Edges {
	return func(n string) ([]string, bool) {
		deps, ok := m[n]
		return deps, ok
	}
}

func TestSort_DependenciesFirst(t *testing.T) {
	g := graph(map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"a", "b"},
	})

	got, err := Sort([]string{"c"}, g)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestSort_StableAcrossRoots(t *testing.T) {
	g := graph(map[string][]string{
		"db":     nil,
		"cache":  nil,
		"client": {"db", "cache"},
		"app":    {"cache"},
	})

	got, err := Sort([]string{"app", "client", "app"}, g)
	require.NoError(t, err)
	assert.Equal(t, []string{"cache", "app", "db", "client"}, got)
}

func TestSort_Cycle(t *testing.T) {
	g := graph(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	})

	_, err := Sort([]string{"a"}, g)
	var cycle *CycleError
	require.True(t, errors.As(err, &cycle), "expected CycleError, got %v", err)
	assert.Equal(t, []string{"a", "b", "c", "a"}, cycle.Path)
	assert.Equal(t, "dependency cycle: a -> b -> c -> a", err.Error())
}

func TestSort_SelfLoop(t *testing.T) {
	_, err := Sort([]string{"x"}, graph(map[string][]string{"x": {"x"}}))
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"x", "x"}, cycle.Path)
}

func TestSort_MissingNode(t *testing.T) {
	_, err := Sort([]string{"a"}, graph(map[string][]string{"a": {"ghost"}}))
	var missing *MissingNodeError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "ghost", missing.Node)
	assert.Equal(t, "a", missing.From)
}

func TestFindCycle_CycleNotReachableFromFirstNode(t *testing.T) {
	g := graph(map[string][]string{
		"ok": nil,
		"p":  {"q"},
		"q":  {"p"},
	})
	err := FindCycle([]string{"ok", "p", "q"}, g)
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"p", "q", "p"}, cycle.Path)
}
