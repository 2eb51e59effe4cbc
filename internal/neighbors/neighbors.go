// Package neighbors provides a brute-force k-nearest-neighbor index over
// in-memory sample matrices with Minkowski-family distance metrics.
package neighbors

import (
	"fmt"
	"math"
	"sort"
)

// Metric computes the distance between two equal-length vectors.
type Metric func(a, b []float64) float64

// Euclidean is the L2 distance.
func Euclidean(a, b []float64) float64 {
	var ss float64
	for i := range a {
		d := a[i] - b[i]
		ss += d * d
	}
	return math.Sqrt(ss)
}

// Manhattan is the L1 distance.
func Manhattan(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += math.Abs(a[i] - b[i])
	}
	return s
}

// Chebyshev is the L-infinity distance.
func Chebyshev(a, b []float64) float64 {
	var m float64
	for i := range a {
		if d := math.Abs(a[i] - b[i]); d > m {
			m = d
		}
	}
	return m
}

// Minkowski returns the Lp distance for power p >= 1.
func Minkowski(p float64) Metric {
	switch p {
	case 1:
		return Manhattan
	case 2:
		return Euclidean
	}
	return func(a, b []float64) float64 {
		var s float64
		for i := range a {
			s += math.Pow(math.Abs(a[i]-b[i]), p)
		}
		return math.Pow(s, 1/p)
	}
}

// ByName resolves a metric name. Supported: minkowski (with power p),
// euclidean, manhattan, chebyshev.
func ByName(name string, p float64) (Metric, error) {
	switch name {
	case "minkowski":
		return Minkowski(p), nil
	case "euclidean":
		return Euclidean, nil
	case "manhattan":
		return Manhattan, nil
	case "chebyshev":
		return Chebyshev, nil
	}
	return nil, fmt.Errorf("unknown metric: %s", name)
}

// Index is a brute-force nearest-neighbor index over a fixed sample matrix.
type Index struct {
	data   [][]float64
	metric Metric
}

// NewIndex builds an index over X. X is referenced, not copied.
func NewIndex(X [][]float64, metric Metric) *Index {
	return &Index{data: X, metric: metric}
}

// Data returns the indexed samples.
func (ix *Index) Data() [][]float64 { return ix.data }

// Len returns the number of indexed samples.
func (ix *Index) Len() int { return len(ix.data) }

// Query returns the indices of the k nearest samples to x, closest first.
// Ties are broken by insertion order.
func (ix *Index) Query(x []float64, k int) []int {
	return ix.query(x, k, -1)
}

// QuerySelf returns the k nearest neighbors of the i-th indexed sample,
// excluding the sample itself.
func (ix *Index) QuerySelf(i, k int) []int {
	return ix.query(ix.data[i], k, i)
}

func (ix *Index) query(x []float64, k, exclude int) []int {
	type cand struct {
		idx  int
		dist float64
	}
	cands := make([]cand, 0, len(ix.data))
	for i, row := range ix.data {
		if i == exclude {
			continue
		}
		cands = append(cands, cand{idx: i, dist: ix.metric(x, row)})
	}
	sort.SliceStable(cands, func(a, b int) bool { return cands[a].dist < cands[b].dist })

	if k > len(cands) {
		k = len(cands)
	}
	out := make([]int, k)
	for i := 0; i < k; i++ {
		out[i] = cands[i].idx
	}
	return out
}
