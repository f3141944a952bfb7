package metrics

import (
	"fmt"

	"github.com/dkoosis/testrig/pkg/bench"
)

// DefaultTolerance is the throughput drop tolerated before a variant counts
// as regressed.
const DefaultTolerance = 0.10

// Regression records a benchmark variant that got slower between runs.
type Regression struct {
	Group   string  `json:"group"`
	Variant string  `json:"variant"`
	Metric  string  `json:"metric"`
	From    float64 `json:"from"`
	To      float64 `json:"to"`
}

// Change is the relative change from From to To.
func (r Regression) Change() float64 {
	if r.From == 0 {
		return 0
	}
	return (r.To - r.From) / r.From
}

func (r Regression) String() string {
	return fmt.Sprintf("%s/%s %s %.1f -> %.1f (%+.1f%%)", r.Group, r.Variant, r.Metric, r.From, r.To, r.Change()*100)
}

// Regressions compares variants present in both runs and returns those whose
// ops/sec fell by more than tolerance (0.1 is 10%). Variants that errored in
// either run are not compared.
func Regressions(prev, cur []bench.GroupResult, tolerance float64) []Regression {
	before := make(map[string]map[string]bench.Result)
	for _, g := range prev {
		m := make(map[string]bench.Result, len(g.Results))
		for _, v := range g.Results {
			m[v.Name] = v
		}
		before[g.Name] = m
	}
	var out []Regression
	for _, g := range cur {
		for _, v := range g.Results {
			old, ok := before[g.Name][v.Name]
			if !ok || old.Error != "" || v.Error != "" || old.Stats.OpsPerSec <= 0 {
				continue
			}
			if v.Stats.OpsPerSec < old.Stats.OpsPerSec*(1-tolerance) {
				out = append(out, Regression{
					Group:   g.Name,
					Variant: v.Name,
					Metric:  "ops_per_sec",
					From:    old.Stats.OpsPerSec,
					To:      v.Stats.OpsPerSec,
				})
			}
		}
	}
	return out
}
