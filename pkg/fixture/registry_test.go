package fixture

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func register(t *testing.T, r *Registry, metas ...Meta) {
	t.Helper()
	for _, m := range metas {
		require.NoError(t, r.Register(Definition{Meta: m}))
	}
}

func TestRegister_Duplicate(t *testing.T) {
	r := NewRegistry()
	register(t, r, Meta{Name: "db"})

	err := r.Register(Definition{Meta: Meta{Name: "db", Scope: Session}})
	var dup *DuplicateFixtureError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "db", dup.Name)
	assert.ErrorIs(t, err, ErrConfiguration)

	meta, ok := r.Meta("db")
	require.True(t, ok)
	assert.Equal(t, Function, meta.Scope, "original registration must be kept")
}

func TestQueries(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Has("a"))

	register(t, r, Meta{Name: "a"}, Meta{Name: "b", Dependencies: []string{"a"}})
	require.NoError(t, r.Register(Definition{
		Meta:     Meta{Name: "c"},
		Teardown: func(_ context.Context, _ any) error { return nil },
	}))

	assert.Equal(t, 3, r.Len())
	assert.True(t, r.Has("b"))
	assert.Equal(t, []string{"a", "b", "c"}, r.Names())

	_, ok := r.Meta("missing")
	assert.False(t, ok)

	c, _ := r.Meta("c")
	assert.True(t, c.HasTeardown)

	r.Reset()
	assert.Equal(t, 0, r.Len())
}

func TestMeta_IsACopy(t *testing.T) {
	r := NewRegistry()
	deps := []string{"a"}
	register(t, r, Meta{Name: "a"}, Meta{Name: "b", Dependencies: deps})
	deps[0] = "mutated"

	m, _ := r.Meta("b")
	assert.Equal(t, []string{"a"}, m.Dependencies)
	m.Dependencies[0] = "again"

	m2, _ := r.Meta("b")
	assert.Equal(t, []string{"a"}, m2.Dependencies)
}

func TestResolveOrder_Chain(t *testing.T) {
	r := NewRegistry()
	register(t, r,
		Meta{Name: "a"},
		Meta{Name: "b", Dependencies: []string{"a"}},
		Meta{Name: "c", Dependencies: []string{"a", "b"}},
	)

	got, err := r.ResolveOrder("c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestResolveOrder_DependenciesPrecedeDependents(t *testing.T) {
	r := NewRegistry()
	register(t, r,
		Meta{Name: "config"},
		Meta{Name: "db", Dependencies: []string{"config"}},
		Meta{Name: "cache", Dependencies: []string{"config"}},
		Meta{Name: "repo", Dependencies: []string{"db", "cache"}},
		Meta{Name: "api", Dependencies: []string{"repo", "config"}},
		Meta{Name: "worker", Dependencies: []string{"cache"}},
	)

	order, err := r.ResolveOrder("api", "worker", "db")
	require.NoError(t, err)

	pos := make(map[string]int)
	for i, n := range order {
		_, seen := pos[n]
		require.False(t, seen, "duplicate %q in %v", n, order)
		pos[n] = i
	}
	for _, name := range order {
		m, _ := r.Meta(name)
		for _, d := range m.Dependencies {
			assert.Less(t, pos[d], pos[name], "%s must come after %s", name, d)
		}
	}
	assert.Len(t, order, 6)
}

func TestResolveOrder_Deterministic(t *testing.T) {
	build := func() *Registry {
		r := NewRegistry()
		register(t, r,
			Meta{Name: "z"},
			Meta{Name: "m"},
			Meta{Name: "a", Dependencies: []string{"z", "m"}},
		)
		return r
	}
	first, err := build().ResolveOrder("a")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := build().ResolveOrder("a")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, []string{"z", "m", "a"}, first, "declaration order, not name order")
}

func TestResolveOrder_Unknown(t *testing.T) {
	r := NewRegistry()
	register(t, r, Meta{Name: "a", Dependencies: []string{"ghost"}})

	_, err := r.ResolveOrder("a")
	var unknown *UnknownFixtureError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.Name)
	assert.Equal(t, "a", unknown.RequiredBy)

	_, err = r.ResolveOrder("nope")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestCycles(t *testing.T) {
	r := NewRegistry()
	register(t, r,
		Meta{Name: "ok"},
		Meta{Name: "a", Dependencies: []string{"b"}},
		Meta{Name: "b", Dependencies: []string{"c"}},
		Meta{Name: "c", Dependencies: []string{"a"}},
	)

	err := r.DetectCycles()
	var circ *CircularDependencyError
	require.ErrorAs(t, err, &circ)
	assert.Equal(t, []string{"a", "b", "c", "a"}, circ.Cycle)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = r.ResolveOrder("c")
	require.True(t, errors.As(err, &circ), "ResolveOrder must not resolve a cyclic graph")
}

func TestResolveOrder_CycleOutsideRequestStillFails(t *testing.T) {
	r := NewRegistry()
	register(t, r,
		Meta{Name: "a"},
		Meta{Name: "x", Dependencies: []string{"y"}},
		Meta{Name: "y", Dependencies: []string{"x"}},
	)

	order, err := r.ResolveOrder("a")
	var circ *CircularDependencyError
	require.ErrorAs(t, err, &circ)
	assert.Nil(t, order)
	assert.Equal(t, []string{"x", "y", "x"}, circ.Cycle)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestResolveOrder_UnknownDependencyIsNotACycle(t *testing.T) {
	r := NewRegistry()
	register(t, r, Meta{Name: "a"}, Meta{Name: "b", Dependencies: []string{"ghost"}})

	order, err := r.ResolveOrder("a")
	require.NoError(t, err, "an unknown dependency only matters when requested")
	assert.Equal(t, []string{"a"}, order)
}

func TestResolveOrder_TiesFollowRequestThenDeclarationOrder(t *testing.T) {
	r := NewRegistry()
	register(t, r,
		Meta{Name: "first"},
		Meta{Name: "second"},
		Meta{Name: "third"},
		Meta{Name: "app", Dependencies: []string{"third", "first"}},
	)

	order, err := r.ResolveOrder("second", "app")
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "third", "first", "app"}, order)
}

func TestDetectCycles_Acyclic(t *testing.T) {
	r := NewRegistry()
	register(t, r, Meta{Name: "a"}, Meta{Name: "b", Dependencies: []string{"a", "missing"}})
	assert.NoError(t, r.DetectCycles())
}

func TestValidate(t *testing.T) {
	t.Run("scope mismatch", func(t *testing.T) {
		r := NewRegistry()
		register(t, r,
			Meta{Name: "tmpdir", Scope: Function},
			Meta{Name: "server", Scope: Session, Dependencies: []string{"tmpdir"}},
		)
		err := r.Validate()
		var mismatch *ScopeMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "server", mismatch.Name)
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("unknown dependency", func(t *testing.T) {
		r := NewRegistry()
		register(t, r, Meta{Name: "a", Dependencies: []string{"b"}})
		var unknown *UnknownFixtureError
		assert.ErrorAs(t, r.Validate(), &unknown)
	})

	t.Run("valid", func(t *testing.T) {
		r := NewRegistry()
		register(t, r,
			Meta{Name: "conn", Scope: Session},
			Meta{Name: "tx", Scope: Function, Dependencies: []string{"conn"}},
		)
		assert.NoError(t, r.Validate())
	})
}

func TestAutouse(t *testing.T) {
	r := NewRegistry()
	register(t, r,
		Meta{Name: "log", Autouse: true},
		Meta{Name: "env", Scope: Session, Autouse: true},
		Meta{Name: "manual"},
		Meta{Name: "clock", Autouse: true},
	)

	var names []string
	for _, m := range r.Autouse(Function) {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"log", "clock"}, names)
	assert.Len(t, r.Autouse(Session), 1)
	assert.Empty(t, r.Autouse(Module))
}

func TestParseScope(t *testing.T) {
	for _, s := range Scopes {
		got, err := ParseScope(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseScope("galaxy")
	assert.Error(t, err)
}
