package vmf

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizuaki/go-outliers/pkg/detectors"
)

// generateDirectional draws n unit-ish vectors concentrated around (1, 0, 0).
func generateDirectional(rng *rand.Rand, n int) [][]float64 {
	data := make([][]float64, n)
	for i := range data {
		data[i] = []float64{
			1 + 0.05*rng.NormFloat64(),
			0.1 * rng.NormFloat64(),
			0.1 * rng.NormFloat64(),
		}
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
			name: "assume normalized",
			opts: []Option{WithAssumeNormalized(true), WithFPR(0.05)},
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
	v, err := New()
	require.NoError(t, err)

	_, err = v.AnomalyScore(nil)
	assert.ErrorIs(t, err, detectors.ErrNotFitted)

	_, err = v.Predict([][]float64{{1, 0, 0}})
	assert.ErrorIs(t, err, detectors.ErrNotFitted)
}

func TestMeanDirectionIsUnitNorm(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	v, err := New()
	require.NoError(t, err)
	require.NoError(t, v.Fit(generateDirectional(rng, 500)))

	mean := v.MeanDirection()
	require.Len(t, mean, 3)
	var norm float64
	for _, c := range mean {
		norm += c * c
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-12)
	assert.Greater(t, mean[0], 0.9, "mean direction should point near (1,0,0)")
}

func TestOppositeDirectionIsFlagged(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	v, err := New()
	require.NoError(t, err)
	require.NoError(t, v.Fit(generateDirectional(rng, 500)))

	labels, err := v.Predict([][]float64{
		{1, 0, 0},
		{-1, 0, 0},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, labels[0])
	assert.Equal(t, 1, labels[1])
}

func TestScoresBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	v, err := New()
	require.NoError(t, err)
	require.NoError(t, v.Fit(generateDirectional(rng, 300)))

	scores, err := v.AnomalyScore(nil)
	require.NoError(t, err)
	for _, s := range scores {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 2.0)
	}
}

func TestDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	X := generateDirectional(rng, 300)

	a, err := New()
	require.NoError(t, err)
	require.NoError(t, a.Fit(X))

	b, err := New()
	require.NoError(t, err)
	require.NoError(t, b.Fit(X))

	aScores, err := a.AnomalyScore(nil)
	require.NoError(t, err)
	bScores, err := b.AnomalyScore(nil)
	require.NoError(t, err)

	assert.Equal(t, aScores, bScores)
	assert.Equal(t, a.Threshold(), b.Threshold())
}

func TestAssumeNormalizedSkipsProjection(t *testing.T) {
	X := [][]float64{
		{1, 0},
		{0.8, 0.6},
	}

	v, err := New(WithAssumeNormalized(true))
	require.NoError(t, err)
	require.NoError(t, v.Fit(X))

	// With assumeNormalized the raw dot products are used as-is.
	scores, err := v.AnomalyScore([][]float64{{1, 0}})
	require.NoError(t, err)
	mean := v.MeanDirection()
	assert.InDelta(t, 1-mean[0], scores[0], 1e-12)
}

func TestFitPredictMatchesFitThenPredict(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	X := generateDirectional(rng, 200)

	a, err := New()
	require.NoError(t, err)
	got, err := a.FitPredict(X)
	require.NoError(t, err)

	b, err := New()
	require.NoError(t, err)
	require.NoError(t, b.Fit(X))
	want, err := b.Predict(X)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestCenteredDataFails(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	// Opposite unit vectors average to zero; the mean direction is undefined.
	err = v.Fit([][]float64{
		{1, 0},
		{-1, 0},
	})
	assert.ErrorIs(t, err, detectors.ErrInvalidInput)
}
