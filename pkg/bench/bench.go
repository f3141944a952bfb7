// Package bench runs competing implementations of an operation under the same
// warmup and round schedule and compares their timing statistics.
package bench

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dkoosis/testrig/pkg/invoke"
)

// Defaults used when Options fields are zero.
const (
	DefaultRounds     = 5
	DefaultIterations = 100
)

// Options control a run.
type Options struct {
	Rounds         int
	Warmup         int
	Iterations     int
	FilterOutliers bool
	// Baseline names the variant others are compared against. Empty means
	// the first registered variant.
	Baseline string
	Logger   *zap.Logger
}

func (o Options) normalized() (Options, error) {
	if o.Rounds == 0 {
		o.Rounds = DefaultRounds
	}
	if o.Iterations == 0 {
		o.Iterations = DefaultIterations
	}
	if o.Rounds < 0 || o.Iterations < 0 || o.Warmup < 0 {
		return o, fmt.Errorf("invalid benchmark options: rounds=%d warmup=%d iterations=%d",
			o.Rounds, o.Warmup, o.Iterations)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o, nil
}

// Result holds the measurements of one variant.
type Result struct {
	Name      string    `json:"name" yaml:"name"`
	SamplesMs []float64 `json:"samples_ms" yaml:"samples_ms"`
	Stats     Stats     `json:"stats" yaml:"stats"`
	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Comparison relates a variant to the baseline. Speedup is
// variant ops/sec divided by baseline ops/sec: above 1 the variant is faster.
type Comparison struct {
	Variant  string  `json:"variant" yaml:"variant"`
	Baseline string  `json:"baseline" yaml:"baseline"`
	Speedup  float64 `json:"speedup" yaml:"speedup"`
}

// GroupResult is the outcome of running a Group.
type GroupResult struct {
	Name        string       `json:"name" yaml:"name"`
	Baseline    string       `json:"baseline" yaml:"baseline"`
	Results     []Result     `json:"results" yaml:"results"`
	Comparisons []Comparison `json:"comparisons,omitempty" yaml:"comparisons,omitempty"`
}

// Result returns the named variant result.
func (g *GroupResult) Result(name string) (Result, bool) {
	for _, r := range g.Results {
		if r.Name == name {
			return r, true
		}
	}
	return Result{}, false
}

// Failed reports whether any variant errored.
func (g *GroupResult) Failed() bool {
	for _, r := range g.Results {
		if r.Error != "" {
			return true
		}
	}
	return false
}

// VariantError records a variant whose function failed during a round.
type VariantError struct {
	Group   string
	Variant string
	Round   int
	Err     error
}

func (e *VariantError) Error() string {
	return fmt.Sprintf("benchmark %s/%s failed in round %d: %v", e.Group, e.Variant, e.Round, e.Err)
}

func (e *VariantError) Unwrap() error { return e.Err }

type variant struct {
	name string
	fn   invoke.Callable[struct{}]
}

// Group is a named set of competing variants.
type Group struct {
	name     string
	mu       sync.Mutex
	variants []variant
}

// NewGroup creates an empty group.
func NewGroup(name string) *Group {
	return &Group{name: name}
}

// Name returns the group name.
func (g *Group) Name() string { return g.name }

// Add registers fn under a variant label. fn may be func(), func() error,
// func(context.Context) error, or the async func(context.Context) <-chan error.
func (g *Group) Add(name string, fn any) error {
	c, err := invoke.Niladic(fn)
	if err != nil {
		return fmt.Errorf("benchmark %s/%s: %w", g.name, name, err)
	}
	if c.IsZero() {
		return fmt.Errorf("benchmark %s/%s: nil function", g.name, name)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, v := range g.variants {
		if v.name == name {
			return fmt.Errorf("benchmark %s: variant %q already registered", g.name, name)
		}
	}
	g.variants = append(g.variants, variant{name: name, fn: c})
	return nil
}

// MustAdd is Add that panics on error, and returns g for chaining.
func (g *Group) MustAdd(name string, fn any) *Group {
	if err := g.Add(name, fn); err != nil {
		panic(err)
	}
	return g
}

// Variants lists variant names in registration order.
func (g *Group) Variants() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.variants))
	for i, v := range g.variants {
		out[i] = v.name
	}
	return out
}

// Run measures every variant in registration order. For each variant it runs
// Warmup discarded rounds, then Rounds measured rounds of Iterations calls.
// A variant that fails is reported with Error set and the others still run.
// The returned error is only for invalid options or a cancelled context.
func (g *Group) Run(ctx context.Context, opts Options) (*GroupResult, error) {
	opts, err := opts.normalized()
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	variants := append([]variant(nil), g.variants...)
	g.mu.Unlock()
	if len(variants) == 0 {
		return nil, fmt.Errorf("benchmark %s: no variants registered", g.name)
	}

	res := &GroupResult{Name: g.name, Baseline: opts.Baseline}
	if res.Baseline == "" {
		res.Baseline = variants[0].name
	}
	found := false
	for _, v := range variants {
		found = found || v.name == res.Baseline
	}
	if !found {
		return nil, fmt.Errorf("benchmark %s: unknown baseline %q", g.name, res.Baseline)
	}

	for _, v := range variants {
		opts.Logger.Debug("benchmark variant starting",
			zap.String("group", g.name), zap.String("variant", v.name),
			zap.Int("rounds", opts.Rounds), zap.Int("warmup", opts.Warmup))
		r, err := g.measure(ctx, v, opts)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			opts.Logger.Warn("benchmark variant failed", zap.Error(err))
			r.Error = err.Error()
		}
		res.Results = append(res.Results, r)
	}

	res.Comparisons = compare(res)
	return res, nil
}

func (g *Group) measure(ctx context.Context, v variant, opts Options) (Result, error) {
	r := Result{Name: v.name, SamplesMs: make([]float64, 0, opts.Rounds)}
	for w := 0; w < opts.Warmup; w++ {
		if _, err := round(ctx, v.fn, opts.Iterations); err != nil {
			return r, g.wrap(ctx, v, -w-1, err)
		}
	}
	for i := 0; i < opts.Rounds; i++ {
		d, err := round(ctx, v.fn, opts.Iterations)
		if err != nil {
			return r, g.wrap(ctx, v, i+1, err)
		}
		r.SamplesMs = append(r.SamplesMs, toMillis(d))
	}
	r.Stats = Compute(r.SamplesMs, opts.Iterations, opts.FilterOutliers)
	if r.Stats.Outliers > 0 {
		opts.Logger.Debug("benchmark outliers excluded",
			zap.String("variant", v.name), zap.Int("outliers", r.Stats.Outliers))
	}
	return r, nil
}

func (g *Group) wrap(ctx context.Context, v variant, round int, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &VariantError{Group: g.name, Variant: v.name, Round: round, Err: err}
}

// round times iterations sequential calls. time.Now carries a monotonic
// reading, so the elapsed time is immune to wall-clock jumps.
func round(ctx context.Context, fn invoke.Callable[struct{}], iterations int) (time.Duration, error) {
	start := time.Now()
	for i := 0; i < iterations; i++ {
		out := fn.Invoke(ctx, struct{}{})
		if out.Panicked {
			return 0, fmt.Errorf("panic: %v", out.Recovered)
		}
		if out.Err != nil {
			return 0, out.Err
		}
	}
	return time.Since(start), nil
}

func compare(res *GroupResult) []Comparison {
	base, ok := res.Result(res.Baseline)
	if !ok || base.Stats.OpsPerSec == 0 {
		return nil
	}
	var out []Comparison
	for _, r := range res.Results {
		if r.Name == res.Baseline || r.Error != "" {
			continue
		}
		out = append(out, Comparison{
			Variant:  r.Name,
			Baseline: res.Baseline,
			Speedup:  r.Stats.OpsPerSec / base.Stats.OpsPerSec,
		})
	}
	return out
}
