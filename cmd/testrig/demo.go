package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkoosis/testrig/pkg/bench"
	"github.com/dkoosis/testrig/pkg/fixture"
	"github.com/dkoosis/testrig/pkg/runner"
	"github.com/dkoosis/testrig/pkg/suite"
	"github.com/dkoosis/testrig/pkg/testserver"
)

// userStore is the module-scoped system under test of the demo suites.
type userStore struct {
	mu    sync.Mutex
	users map[string]int
}

func (s *userStore) insert(name string, age int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[name]; ok {
		return fmt.Errorf("user %q exists", name)
	}
	s.users[name] = age
	return nil
}

func (s *userStore) lookup(name string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	age, ok := s.users[name]
	return age, ok
}

func (s *userStore) snapshot() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.users))
	for k, v := range s.users {
		out[k] = v
	}
	return out
}

func (s *userStore) restore(snap map[string]int) {
	s.mu.Lock()
	s.users = snap
	s.mu.Unlock()
}

// tx is a function-scoped transaction: whatever a test writes is rolled
// back on teardown.
type tx struct {
	store *userStore
	snap  map[string]int
}

func registerExampleFixtures(reg *fixture.Registry) {
	reg.MustRegister(fixture.Definition{
		Meta: fixture.Meta{Name: "settings", Scope: fixture.Session, Autouse: true},
		Setup: func(context.Context, *fixture.Request) (any, error) {
			return map[string]string{"region": "eu-west-1"}, nil
		},
	})
	reg.MustRegister(fixture.Definition{
		Meta: fixture.Meta{Name: "api", Scope: fixture.Session},
		Setup: func(ctx context.Context, _ *fixture.Request) (any, error) {
			return testserver.NewStatic().
				Get("/health", map[string]string{"status": "ok"}).
				Get("/users/ada", map[string]any{"name": "ada", "age": 36}).
				Route(http.MethodPost, "/users", http.StatusCreated, map[string]string{"id": "u-1"}).
				Start(ctx)
		},
		Teardown: func(ctx context.Context, v any) error {
			return v.(*testserver.StaticHandle).Stop(ctx)
		},
	})
	reg.MustRegister(fixture.Definition{
		Meta: fixture.Meta{Name: "store", Scope: fixture.Module, Dependencies: []string{"settings"}},
		Setup: func(context.Context, *fixture.Request) (any, error) {
			return &userStore{users: map[string]int{"root": 0}}, nil
		},
		Teardown: func(_ context.Context, v any) error {
			v.(*userStore).restore(nil)
			return nil
		},
	})
	reg.MustRegister(fixture.Definition{
		Meta: fixture.Meta{Name: "tx", Scope: fixture.Function, Dependencies: []string{"store"}},
		Setup: func(_ context.Context, r *fixture.Request) (any, error) {
			v, _ := r.Value("store")
			s := v.(*userStore)
			return &tx{store: s, snap: s.snapshot()}, nil
		},
		Teardown: func(_ context.Context, v any) error {
			t := v.(*tx)
			t.store.restore(t.snap)
			return nil
		},
	})
}

func exampleSuites(withFailures bool) []*suite.Suite {
	var classSetups atomic.Int32

	users := suite.New("TestUserStore").InModule("store").
		SetupClass(func() { classSetups.Add(1) }).
		Test("test_insert", func(t *runner.T) {
			tx := t.Fixture("tx").(*tx)
			name := t.Param("name").(string)
			age := t.Param("age").(int)
			if err := tx.store.insert(name, age); err != nil {
				t.Fatalf("insert: %v", err)
			}
			if got, ok := tx.store.lookup(name); !ok || got != age {
				t.Errorf("lookup(%q) = %d, %v; want %d", name, got, ok, age)
			}
		}, suite.Uses("tx"),
			suite.Parametrize("name", "ada", "grace"),
			suite.Parametrize("age", 36, 45)).
		Test("test_rolled_back", func(t *runner.T) {
			tx := t.Fixture("tx").(*tx)
			if _, ok := tx.store.lookup("ada"); ok {
				t.Error("previous transaction leaked into this test")
			}
		}, suite.Uses("tx")).
		Test("test_class_setup_once", func(t *runner.T) {
			if n := classSetups.Load(); n != 1 {
				t.Errorf("setup_class ran %d times", n)
			}
		}).
		Test("test_replication", func(*runner.T) {}, suite.Skip("needs a second region"), suite.Tags("slow"))

	httpSuite := suite.New("TestHTTP").InModule("http").
		Test("test_health", func(ctx context.Context, t *runner.T) error {
			api := t.Fixture("api").(*testserver.StaticHandle)
			var body map[string]string
			if err := getJSON(ctx, api.URL+"/health", &body); err != nil {
				return err
			}
			if body["status"] != "ok" {
				t.Errorf("status = %q", body["status"])
			}
			return nil
		}, suite.Uses("api"), suite.Timeout(5*time.Second)).
		Test("test_user_async", func(ctx context.Context, t *runner.T) <-chan error {
			api := t.Fixture("api").(*testserver.StaticHandle)
			errc := make(chan error, 1)
			go func() {
				var user struct{ Name string }
				err := getJSON(ctx, api.URL+"/users/ada", &user)
				if err == nil && user.Name != "ada" {
					err = suite.Failf("name = %q", user.Name)
				}
				errc <- err
			}()
			return errc
		}, suite.Uses("api"), suite.Tags("network"))

	suites := []*suite.Suite{users, httpSuite}
	if withFailures {
		suites = append(suites, suite.New("TestBroken").
			Test("test_assertion", func(t *runner.T) {
				t.Errorf("expected 2 replicas, got %d", 1)
			}).
			Test("test_error", func(*runner.T) error {
				return errors.New("connection refused")
			}).
			Test("test_panic", func(*runner.T) {
				var m map[string]int
				m["boom"]++
			}))
	}
	return suites
}

func getJSON(ctx context.Context, url string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(into)
}

func exampleBenchmarks() []*bench.Group {
	words := strings.Fields("the quick brown fox jumps over the lazy dog again and again")
	concat := bench.NewGroup("string-join").
		MustAdd("plus", func() {
			s := ""
			for _, w := range words {
				s += w + " "
			}
			_ = s
		}).
		MustAdd("builder", func() {
			var b strings.Builder
			for _, w := range words {
				b.WriteString(w)
				b.WriteByte(' ')
			}
			_ = b.String()
		}).
		MustAdd("join", func() {
			_ = strings.Join(words, " ")
		})

	data := make([]int, 4096)
	for i := range data {
		data[i] = (i * 7919) % 4096
	}
	sorting := bench.NewGroup("sort-4k").
		MustAdd("sort.Ints", func() {
			c := append([]int(nil), data...)
			sort.Ints(c)
		}).
		MustAdd("parallel-chunks", bench.Concurrent(4, func(_ context.Context, worker int) error {
			chunk := len(data) / 4
			c := append([]int(nil), data[worker*chunk:(worker+1)*chunk]...)
			sort.Ints(c)
			return nil
		}))
	return []*bench.Group{concat, sorting}
}
