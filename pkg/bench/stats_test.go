package bench

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentile_NearestRank(t *testing.T) {
	sorted := []float64{15, 20, 35, 40, 50}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 15},
		{5, 15},
		{30, 20},
		{40, 20},
		{50, 35},
		{95, 50},
		{100, 50},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Percentile(sorted, tt.p), "p%v", tt.p)
	}
	assert.Equal(t, 0.0, Percentile(nil, 50))
}

func TestMeanStddev(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 5.0, Mean(xs), 1e-9)
	assert.InDelta(t, 2.138, Stddev(xs), 1e-3)
	assert.Equal(t, 0.0, Stddev([]float64{3}))
}

func TestFilterOutliers(t *testing.T) {
	xs := []float64{10, 11, 10, 12, 11, 10, 95}
	kept, dropped := FilterOutliers(xs)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, []float64{10, 11, 10, 12, 11, 10}, kept)

	small := []float64{1, 100, 1}
	kept, dropped = FilterOutliers(small)
	assert.Equal(t, 0, dropped)
	assert.Equal(t, small, kept)
}

func TestCompute(t *testing.T) {
	samples := []float64{10, 10, 10, 10, 100}

	raw := Compute(samples, 100, false)
	assert.Equal(t, 5, raw.Rounds)
	assert.Equal(t, 0, raw.Outliers)
	assert.InDelta(t, 28.0, raw.MeanMs, 1e-9)
	assert.Equal(t, 10.0, raw.MedianMs)
	assert.Equal(t, 100.0, raw.P99Ms)
	assert.Equal(t, 10.0, raw.MinMs)
	assert.Equal(t, 100.0, raw.MaxMs)
	assert.Less(t, raw.CI95LowMs, raw.MeanMs)
	assert.Greater(t, raw.CI95HighMs, raw.MeanMs)

	filtered := Compute(samples, 100, true)
	assert.Equal(t, 5, filtered.Rounds, "raw round count is kept")
	assert.Equal(t, 1, filtered.Outliers)
	assert.InDelta(t, 10.0, filtered.MeanMs, 1e-9)
	assert.InDelta(t, 10000.0, filtered.OpsPerSec, 1e-6)
	assert.Equal(t, 0.0, filtered.StddevMs)
}

func TestCompute_Empty(t *testing.T) {
	st := Compute(nil, 10, true)
	assert.Equal(t, 0, st.Rounds)
	assert.Equal(t, 0.0, st.OpsPerSec)
}
