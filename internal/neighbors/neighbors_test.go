package neighbors

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	a := []float64{0, 0}
	b := []float64{3, 4}

	tests := []struct {
		name   string
		metric Metric
		want   float64
	}{
		{"euclidean", Euclidean, 5},
		{"manhattan", Manhattan, 7},
		{"chebyshev", Chebyshev, 4},
		{"minkowski p=2", Minkowski(2), 5},
		{"minkowski p=1", Minkowski(1), 7},
		{"minkowski p=3", Minkowski(3), math.Pow(27+64, 1.0/3.0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.metric(a, b), 1e-12)
		})
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"minkowski", "euclidean", "manhattan", "chebyshev"} {
		m, err := ByName(name, 2)
		require.NoError(t, err, name)
		assert.NotNil(t, m)
	}

	_, err := ByName("cosine", 2)
	assert.Error(t, err)
}

func TestQuery(t *testing.T) {
	X := [][]float64{
		{0, 0},
		{1, 0},
		{5, 0},
		{0.5, 0},
	}
	ix := NewIndex(X, Euclidean)

	got := ix.Query([]float64{0.1, 0}, 3)
	assert.Equal(t, []int{0, 3, 1}, got)
}

func TestQueryClampsK(t *testing.T) {
	ix := NewIndex([][]float64{{0}, {1}}, Euclidean)
	assert.Len(t, ix.Query([]float64{0}, 10), 2)
}

func TestQuerySelf(t *testing.T) {
	X := [][]float64{
		{0, 0},
		{0.1, 0},
		{0.2, 0},
		{9, 9},
	}
	ix := NewIndex(X, Euclidean)

	got := ix.QuerySelf(0, 2)
	assert.NotContains(t, got, 0)
	assert.Equal(t, []int{1, 2}, got)
}
