package ggm

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizuaki/go-outliers/pkg/detectors"
)

func generateTestData(rng *rand.Rand, n, features int) [][]float64 {
	data := make([][]float64, n)
	for i := range data {
		row := make([]float64, features)
		for j := range row {
			row[j] = rng.NormFloat64()
		}
		data[i] = row
	}
	return data
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{
			name: "defaults",
		},
		{
			name: "custom options",
			opts: []Option{WithAlpha(0.1), WithFPR(0.05), WithMaxIter(50), WithTol(1e-3), WithAssumeCentered(true)},
		},
		{
			name:    "negative alpha",
			opts:    []Option{WithAlpha(-0.1)},
			wantErr: true,
		},
		{
			name:    "alpha above one",
			opts:    []Option{WithAlpha(1.5)},
			wantErr: true,
		},
		{
			name:    "negative fpr",
			opts:    []Option{WithFPR(-0.1)},
			wantErr: true,
		},
		{
			name:    "fpr above one",
			opts:    []Option{WithFPR(1.1)},
			wantErr: true,
		},
		{
			name:    "zero max_iter",
			opts:    []Option{WithMaxIter(0)},
			wantErr: true,
		},
		{
			name:    "negative tol",
			opts:    []Option{WithTol(-1)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, detectors.ErrInvalidParam)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNotFitted(t *testing.T) {
	g, err := New()
	require.NoError(t, err)

	_, err = g.AnomalyScore(nil)
	assert.ErrorIs(t, err, detectors.ErrNotFitted)

	_, err = g.Predict([][]float64{{1, 2}})
	assert.ErrorIs(t, err, detectors.ErrNotFitted)

	_, err = g.FeatureWiseAnomalyScore(nil)
	assert.ErrorIs(t, err, detectors.ErrNotFitted)
}

func TestEndToEnd(t *testing.T) {
	// 1000 samples from a 10-dimensional standard multivariate normal.
	rng := rand.New(rand.NewSource(0))
	X := generateTestData(rng, 1000, 10)

	g, err := New()
	require.NoError(t, err)

	labels, err := g.FitPredict(X)
	require.NoError(t, err)
	require.Len(t, labels, 1000)
	for _, l := range labels {
		assert.Contains(t, []int{0, 1}, l)
	}
}

func TestLiberalFPRFlagsOutliers(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	X := generateTestData(rng, 1000, 10)

	g, err := New(WithFPR(0.2))
	require.NoError(t, err)

	labels, err := g.FitPredict(X)
	require.NoError(t, err)

	flagged := 0
	for _, l := range labels {
		flagged += l
	}
	assert.Greater(t, flagged, 0, "a liberal fpr should flag a non-trivial fraction")
}

func TestPlantedOutlierIsFlagged(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	X := generateTestData(rng, 500, 5)

	g, err := New()
	require.NoError(t, err)
	require.NoError(t, g.Fit(X))

	labels, err := g.Predict([][]float64{
		{0, 0, 0, 0, 0},
		{6, 6, 6, 6, 6},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, labels[0])
	assert.Equal(t, 1, labels[1])
}

func TestThresholdMonotoneInFPR(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	X := generateTestData(rng, 500, 5)

	loose, err := New(WithFPR(0.1))
	require.NoError(t, err)
	require.NoError(t, loose.Fit(X))

	strict, err := New(WithFPR(0.01))
	require.NoError(t, err)
	require.NoError(t, strict.Fit(X))

	assert.GreaterOrEqual(t, strict.Threshold(), loose.Threshold())

	looseLabels, err := loose.Predict(X)
	require.NoError(t, err)
	strictLabels, err := strict.Predict(X)
	require.NoError(t, err)
	assert.LessOrEqual(t, sum(strictLabels), sum(looseLabels))
}

func TestFeatureWiseScores(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	X := generateTestData(rng, 400, 4)

	g, err := New()
	require.NoError(t, err)
	require.NoError(t, g.Fit(X))

	Y, err := g.FeatureWiseAnomalyScore(nil)
	require.NoError(t, err)
	require.Len(t, Y, 400)
	assert.Len(t, Y[0], 4)

	thresholds := g.FeatureWiseThreshold()
	require.Len(t, thresholds, 4)

	// A sample deviating only in feature 2 should exceed only that
	// feature's threshold by a wide margin.
	Y, err = g.FeatureWiseAnomalyScore([][]float64{{0, 0, 8, 0}})
	require.NoError(t, err)
	assert.Greater(t, Y[0][2], thresholds[2])
}

func TestCachedScores(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	X := generateTestData(rng, 200, 3)

	g, err := New()
	require.NoError(t, err)
	require.NoError(t, g.Fit(X))

	cached, err := g.AnomalyScore(nil)
	require.NoError(t, err)
	fresh, err := g.AnomalyScore(X)
	require.NoError(t, err)
	assert.Equal(t, fresh, cached)
}

func TestFailedFitLeavesStateUntouched(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	X := generateTestData(rng, 200, 3)

	g, err := New()
	require.NoError(t, err)
	require.NoError(t, g.Fit(X))
	threshold := g.Threshold()

	require.Error(t, g.Fit([][]float64{{1, 2}, {3}}))
	assert.Equal(t, threshold, g.Threshold())

	_, err = g.AnomalyScore(nil)
	assert.NoError(t, err)
}

func TestPrecision(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	X := generateTestData(rng, 500, 3)

	g, err := New()
	require.NoError(t, err)
	require.NoError(t, g.Fit(X))

	P := g.Precision()
	require.Len(t, P, 3)
	for i := range P {
		assert.Greater(t, P[i][i], 0.0)
	}
}

func sum(labels []int) int {
	var s int
	for _, l := range labels {
		s += l
	}
	return s
}
