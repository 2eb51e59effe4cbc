package stats

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		q      float64
		want   float64
	}{
		{
			name:   "minimum",
			values: []float64{3, 1, 2},
			q:      0,
			want:   1,
		},
		{
			name:   "maximum",
			values: []float64{3, 1, 2},
			q:      100,
			want:   3,
		},
		{
			name:   "single value",
			values: []float64{5},
			q:      50,
			want:   5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Percentile(tt.values, tt.q))
		})
	}
}

func TestPercentileMonotone(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	values := make([]float64, 500)
	for i := range values {
		values[i] = rng.NormFloat64()
	}

	prev := math.Inf(-1)
	for q := 0.0; q <= 100; q += 5 {
		p := Percentile(values, q)
		assert.GreaterOrEqual(t, p, prev, "q=%v", q)
		prev = p
	}
}

func TestPercentileDoesNotMutate(t *testing.T) {
	values := []float64{3, 1, 2}
	Percentile(values, 50)
	assert.Equal(t, []float64{3, 1, 2}, values)
}

func TestColumnPercentiles(t *testing.T) {
	X := [][]float64{
		{1, 10},
		{2, 20},
		{3, 30},
	}
	got := ColumnPercentiles(X, 100)
	assert.Equal(t, []float64{3, 30}, got)
}

func TestPopVariance(t *testing.T) {
	// Population variance of {1, 2, 3} about mean 2 is 2/3.
	assert.InDelta(t, 2.0/3.0, PopVariance([]float64{1, 2, 3}), 1e-12)
	assert.Zero(t, PopVariance([]float64{4, 4, 4}))
}

func TestFitChiSquared(t *testing.T) {
	// Samples from chi2 with 5 degrees of freedom, built from squared normals.
	rng := rand.New(rand.NewSource(0))
	samples := make([]float64, 5000)
	for i := range samples {
		var s float64
		for j := 0; j < 5; j++ {
			v := rng.NormFloat64()
			s += v * v
		}
		samples[i] = s
	}

	df, loc, scale := FitChiSquared(samples)
	require.Greater(t, df, 0.0)
	require.Greater(t, scale, 0.0)

	// Moment matching is rough; the recovered shape should still be in the
	// right neighborhood and the mean must be reproduced exactly.
	assert.InDelta(t, 5.0, df, 4.0)
	assert.InDelta(t, 5.0, df*scale+loc, 0.2)
}

func TestFitChiSquaredConstant(t *testing.T) {
	df, loc, scale := FitChiSquared([]float64{2, 2, 2, 2})
	assert.Equal(t, 1.0, df)
	assert.Equal(t, 2.0, loc)
	assert.Equal(t, 1.0, scale)
}

func TestChiSquaredQuantile(t *testing.T) {
	t.Run("monotone in p", func(t *testing.T) {
		prev := math.Inf(-1)
		for _, p := range []float64{0.1, 0.5, 0.9, 0.99} {
			q := ChiSquaredQuantile(p, 5, 0, 1)
			assert.Greater(t, q, prev)
			prev = q
		}
	})

	t.Run("p of one is infinite", func(t *testing.T) {
		assert.True(t, math.IsInf(ChiSquaredQuantile(1, 5, 0, 1), 1))
	})

	t.Run("location and scale shift", func(t *testing.T) {
		base := ChiSquaredQuantile(0.9, 3, 0, 1)
		assert.InDelta(t, 2*base+1, ChiSquaredQuantile(0.9, 3, 1, 2), 1e-12)
	})
}
