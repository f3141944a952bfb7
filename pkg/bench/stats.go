package bench

import (
	"math"
	"sort"
	"time"
)

// Stats summarises the round timings of one variant. All times are per
// round (Iterations calls), in milliseconds.
type Stats struct {
	Rounds     int     `json:"rounds" yaml:"rounds"`
	Iterations int     `json:"iterations" yaml:"iterations"`
	MeanMs     float64 `json:"mean_ms" yaml:"mean_ms"`
	MedianMs   float64 `json:"median_ms" yaml:"median_ms"`
	P50Ms      float64 `json:"p50_ms" yaml:"p50_ms"`
	P95Ms      float64 `json:"p95_ms" yaml:"p95_ms"`
	P99Ms      float64 `json:"p99_ms" yaml:"p99_ms"`
	MinMs      float64 `json:"min_ms" yaml:"min_ms"`
	MaxMs      float64 `json:"max_ms" yaml:"max_ms"`
	StddevMs   float64 `json:"stddev_ms" yaml:"stddev_ms"`
	CI95LowMs  float64 `json:"ci95_low_ms" yaml:"ci95_low_ms"`
	CI95HighMs float64 `json:"ci95_high_ms" yaml:"ci95_high_ms"`
	OpsPerSec  float64 `json:"ops_per_sec" yaml:"ops_per_sec"`
	Outliers   int     `json:"outliers" yaml:"outliers"`
}

// Percentile returns the p-th percentile (0..100) of sorted using the
// nearest-rank method: the value at rank ceil(p/100*n). No interpolation.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	rank := int(math.Ceil(p / 100 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

// Mean returns the arithmetic mean of xs.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Stddev returns the sample standard deviation of xs (n-1 denominator),
// or 0 when there are fewer than two samples.
func Stddev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// FilterOutliers drops samples outside [Q1-1.5*IQR, Q3+1.5*IQR], quartiles
// taken by nearest rank. It returns the kept samples in their original order
// and the number dropped. Fewer than four samples are returned unchanged.
func FilterOutliers(xs []float64) ([]float64, int) {
	if len(xs) < 4 {
		return append([]float64(nil), xs...), 0
	}
	sorted := sortedCopy(xs)
	q1 := Percentile(sorted, 25)
	q3 := Percentile(sorted, 75)
	iqr := q3 - q1
	lo, hi := q1-1.5*iqr, q3+1.5*iqr

	kept := make([]float64, 0, len(xs))
	for _, x := range xs {
		if x >= lo && x <= hi {
			kept = append(kept, x)
		}
	}
	return kept, len(xs) - len(kept)
}

// Compute derives Stats from round samples in milliseconds.
func Compute(samplesMs []float64, iterations int, filterOutliers bool) Stats {
	used := samplesMs
	dropped := 0
	if filterOutliers {
		used, dropped = FilterOutliers(samplesMs)
	}
	st := Stats{Rounds: len(samplesMs), Iterations: iterations, Outliers: dropped}
	if len(used) == 0 {
		return st
	}

	sorted := sortedCopy(used)
	st.MeanMs = Mean(used)
	st.P50Ms = Percentile(sorted, 50)
	st.MedianMs = st.P50Ms
	st.P95Ms = Percentile(sorted, 95)
	st.P99Ms = Percentile(sorted, 99)
	st.MinMs = sorted[0]
	st.MaxMs = sorted[len(sorted)-1]
	st.StddevMs = Stddev(used)

	half := tCritical95(len(used)-1) * st.StddevMs / math.Sqrt(float64(len(used)))
	st.CI95LowMs = st.MeanMs - half
	st.CI95HighMs = st.MeanMs + half

	if st.MeanMs > 0 {
		st.OpsPerSec = float64(iterations) / (st.MeanMs / 1000)
	}
	return st
}

func sortedCopy(xs []float64) []float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	return s
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// two-sided 95% Student t critical values, df 1..30
var tTable = [...]float64{
	12.706, 4.303, 3.182, 2.776, 2.571, 2.447, 2.365, 2.306, 2.262, 2.228,
	2.201, 2.179, 2.160, 2.145, 2.131, 2.120, 2.110, 2.101, 2.093, 2.086,
	2.080, 2.074, 2.069, 2.064, 2.060, 2.056, 2.052, 2.048, 2.045, 2.042,
}

func tCritical95(df int) float64 {
	if df < 1 {
		return 0
	}
	if df <= len(tTable) {
		return tTable[df-1]
	}
	return 1.96
}
