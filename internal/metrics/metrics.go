// Package metrics exports run and benchmark results as prometheus metrics,
// for scraping or for node_exporter's textfile collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dkoosis/testrig/pkg/bench"
	"github.com/dkoosis/testrig/pkg/report"
	"github.com/dkoosis/testrig/pkg/runner"
)

const namespace = "testrig"

// Recorder collects metrics on its own registry. It is a runner.Observer.
type Recorder struct {
	reg *prometheus.Registry

	tests       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	suites      prometheus.Counter
	benchOps    *prometheus.GaugeVec
	benchMean   *prometheus.GaugeVec
	speedup     *prometheus.GaugeVec
	regressions prometheus.Gauge
}

// NewRecorder registers the testrig metrics on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		tests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tests_total",
			Help:      "Finished test instances by status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "test_duration_seconds",
			Help:      "Test instance duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"suite"}),
		suites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suites_total",
			Help:      "Suites executed.",
		}),
		benchOps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "benchmark",
			Name:      "ops_per_second",
			Help:      "Benchmark variant throughput.",
		}, []string{"group", "variant"}),
		benchMean: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "benchmark",
			Name:      "mean_seconds",
			Help:      "Mean duration of one benchmark round.",
		}, []string{"group", "variant"}),
		speedup: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "benchmark",
			Name:      "speedup_ratio",
			Help:      "Variant throughput relative to the group baseline.",
		}, []string{"group", "variant", "baseline"}),
		regressions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "benchmark",
			Name:      "regressions",
			Help:      "Benchmark variants slower than the previous run beyond tolerance.",
		}),
	}
	r.reg.MustRegister(r.tests, r.duration, r.suites, r.benchOps, r.benchMean, r.speedup, r.regressions)
	return r
}

var _ runner.Observer = (*Recorder)(nil)

// Registry exposes the registry, e.g. for promhttp.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) SuiteStarted(string, int) {}
func (r *Recorder) TestStarted(runner.TestID) {}
func (r *Recorder) SuiteFinished(string) { r.suites.Inc() }

func (r *Recorder) TestFinished(res report.TestResult) {
	r.tests.WithLabelValues(string(res.Status)).Inc()
	if res.Status != report.Skipped {
		r.duration.WithLabelValues(res.Suite).Observe(res.Duration.Seconds())
	}
}

// ObserveBenchmarks records the stats of each successful variant.
func (r *Recorder) ObserveBenchmarks(groups []bench.GroupResult) {
	for _, g := range groups {
		for _, v := range g.Results {
			if v.Error != "" {
				continue
			}
			r.benchOps.WithLabelValues(g.Name, v.Name).Set(v.Stats.OpsPerSec)
			r.benchMean.WithLabelValues(g.Name, v.Name).Set(v.Stats.MeanMs / 1000)
		}
		for _, c := range g.Comparisons {
			r.speedup.WithLabelValues(g.Name, c.Variant, c.Baseline).Set(c.Speedup)
		}
	}
}

// ObserveRegressions records how many regressions a comparison found.
func (r *Recorder) ObserveRegressions(regs []Regression) {
	r.regressions.Set(float64(len(regs)))
}

// WriteTextfile writes the current metrics in the text exposition format,
// atomically replacing path.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
