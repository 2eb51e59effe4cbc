package density

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizuaki/go-outliers/internal/neighbors"
)

func TestKernelValid(t *testing.T) {
	for _, k := range []Kernel{Gaussian, Tophat, Epanechnikov, Exponential, Linear, Cosine} {
		assert.True(t, k.Valid(), string(k))
	}
	assert.False(t, Kernel("box").Valid())
}

func TestFitRejectsUnknownKernel(t *testing.T) {
	_, err := Fit([][]float64{{0}}, Kernel("box"), 1, neighbors.Euclidean)
	assert.Error(t, err)
}

func TestGaussianLogDensityExact(t *testing.T) {
	// A single training point at the origin with unit bandwidth is a standard
	// normal: log density at 0 is -0.5*ln(2*pi) per dimension.
	e, err := Fit([][]float64{{0}}, Gaussian, 1, neighbors.Euclidean)
	require.NoError(t, err)

	got := e.LogDensity([][]float64{{0}, {1}})
	assert.InDelta(t, -0.5*math.Log(2*math.Pi), got[0], 1e-12)
	assert.InDelta(t, -0.5*math.Log(2*math.Pi)-0.5, got[1], 1e-12)
}

func TestCompactKernelsVanishOutsideBandwidth(t *testing.T) {
	for _, k := range []Kernel{Tophat, Epanechnikov, Linear, Cosine} {
		t.Run(string(k), func(t *testing.T) {
			e, err := Fit([][]float64{{0, 0}}, k, 1, neighbors.Euclidean)
			require.NoError(t, err)

			got := e.LogDensity([][]float64{{5, 5}})
			assert.True(t, math.IsInf(got[0], -1))
		})
	}
}

func TestLogDensityHigherNearData(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	X := make([][]float64, 200)
	for i := range X {
		X[i] = []float64{rng.NormFloat64(), rng.NormFloat64()}
	}

	for _, k := range []Kernel{Gaussian, Exponential, Epanechnikov} {
		t.Run(string(k), func(t *testing.T) {
			e, err := Fit(X, k, 1, neighbors.Euclidean)
			require.NoError(t, err)

			got := e.LogDensity([][]float64{{0, 0}, {1.5, 1.5}})
			assert.Greater(t, got[0], got[1])
		})
	}
}

func TestDim(t *testing.T) {
	e, err := Fit([][]float64{{0, 0, 0}}, Gaussian, 1, neighbors.Euclidean)
	require.NoError(t, err)
	assert.Equal(t, 3, e.Dim())
}
