// Package abod implements the fast angle-based outlier detector (FastABOD).
//
// The anomaly score of a point is the negative variance of the normalized
// inner products (pa.pb)/(|pa|^2 |pb|^2) over all pairs {a, b} of its k
// nearest neighbors, approximating the variance of the angle spectrum the
// neighbors subtend at the point. Points seen from a narrow range of angles
// sit outside the data and score high.
//
// Reference: H.-P. Kriegel, M. Schubert and A. Zimek, "Angle-based outlier
// detection in high-dimensional data," SIGKDD'08.
package abod

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/mizuaki/go-outliers/internal/neighbors"
	"github.com/mizuaki/go-outliers/internal/stats"
	"github.com/mizuaki/go-outliers/pkg/detectors"
)

// FastABOD detects outliers from the variance of neighbor angle spectra.
type FastABOD struct {
	fpr        float64
	metricName string
	p          float64
	nNeighbors int
	jobs       int
	metric     neighbors.Metric

	index     *neighbors.Index
	scores    []float64
	threshold float64
}

// Option configures a FastABOD.
type Option func(*FastABOD)

// WithFPR sets the target false-positive rate used to derive the threshold.
func WithFPR(fpr float64) Option {
	return func(f *FastABOD) { f.fpr = fpr }
}

// WithMetric sets the distance metric by name (minkowski, euclidean,
// manhattan, chebyshev).
func WithMetric(name string) Option {
	return func(f *FastABOD) { f.metricName = name }
}

// WithPower sets the power parameter of the Minkowski metric.
func WithPower(p float64) Option {
	return func(f *FastABOD) { f.p = p }
}

// WithNeighbors sets the number of nearest neighbors.
func WithNeighbors(k int) Option {
	return func(f *FastABOD) { f.nNeighbors = k }
}

// WithJobs sets the number of goroutines used for scoring. Values below one
// select the number of CPUs.
func WithJobs(n int) Option {
	return func(f *FastABOD) { f.jobs = n }
}

// New creates a FastABOD detector, validating hyperparameters eagerly.
func New(opts ...Option) (*FastABOD, error) {
	f := &FastABOD{
		fpr:        0.01,
		metricName: "minkowski",
		p:          2,
		nNeighbors: 5,
		jobs:       1,
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.fpr < 0 || f.fpr > 1 {
		return nil, fmt.Errorf("%w: fpr must be between 0 and 1 inclusive but was %v", detectors.ErrInvalidParam, f.fpr)
	}
	if f.nNeighbors <= 1 {
		return nil, fmt.Errorf("%w: n_neighbors must be greater than 1 but was %d", detectors.ErrInvalidParam, f.nNeighbors)
	}
	if f.p < 1 {
		return nil, fmt.Errorf("%w: p must be greater than or equal to 1 but was %v", detectors.ErrInvalidParam, f.p)
	}
	metric, err := neighbors.ByName(f.metricName, f.p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", detectors.ErrInvalidParam, err)
	}
	f.metric = metric
	return f, nil
}

// Fit builds the nearest-neighbor structure over X and calibrates the
// threshold as the (1-fpr) empirical percentile of the in-sample scores.
func (f *FastABOD) Fit(X [][]float64) error {
	if err := detectors.ValidateMatrix(X); err != nil {
		return err
	}
	if f.nNeighbors >= len(X) {
		return fmt.Errorf("%w: need more than n_neighbors=%d training samples, got %d", detectors.ErrInvalidInput, f.nNeighbors, len(X))
	}

	data := make([][]float64, len(X))
	for i, row := range X {
		data[i] = append([]float64(nil), row...)
	}
	index := neighbors.NewIndex(data, f.metric)

	scores, err := f.scoreWithIndex(index, nil)
	if err != nil {
		return err
	}

	f.index = index
	f.scores = scores
	f.threshold = stats.Percentile(scores, 100*(1-f.fpr))
	return nil
}

// AnomalyScore computes anomaly scores for X. A nil X scores the training
// set through the stored neighbor structure, with each point excluded from
// its own neighborhood.
func (f *FastABOD) AnomalyScore(X [][]float64) ([]float64, error) {
	if f.index == nil {
		return nil, detectors.ErrNotFitted
	}
	if X != nil {
		if err := detectors.ValidateMatrix(X); err != nil {
			return nil, err
		}
		if err := detectors.ValidateWidth(X, len(f.index.Data()[0])); err != nil {
			return nil, err
		}
	}
	return f.scoreWithIndex(f.index, X)
}

// Predict classifies samples as outliers (1) or inliers (0).
func (f *FastABOD) Predict(X [][]float64) ([]int, error) {
	if f.index == nil {
		return nil, detectors.ErrNotFitted
	}
	scores, err := f.AnomalyScore(X)
	if err != nil {
		return nil, err
	}
	return detectors.Classify(scores, f.threshold), nil
}

// FitPredict fits on X and predicts labels for the same samples. Training
// rows are labeled from the cached self-excluded scores: re-scoring them
// through the neighbor graph would make the angle denominators degenerate.
func (f *FastABOD) FitPredict(X [][]float64) ([]int, error) {
	if err := f.Fit(X); err != nil {
		return nil, err
	}
	return detectors.Classify(f.scores, f.threshold), nil
}

// Threshold returns the calibrated decision threshold.
func (f *FastABOD) Threshold() float64 { return f.threshold }

// scoreWithIndex computes angle-based outlier factors through index. A nil
// query set scores the indexed samples themselves, excluding each from its
// own neighborhood.
func (f *FastABOD) scoreWithIndex(index *neighbors.Index, X [][]float64) ([]float64, error) {
	ind := make([][]int, 0)
	if X == nil {
		X = index.Data()
		for i := range X {
			ind = append(ind, index.QuerySelf(i, f.nNeighbors))
		}
	} else {
		for _, x := range X {
			ind = append(ind, index.Query(x, f.nNeighbors))
		}
	}

	jobs := f.jobs
	if jobs < 1 {
		jobs = runtime.NumCPU()
	}

	out := make([]float64, len(X))
	var g errgroup.Group
	for _, s := range evenSlices(len(X), jobs) {
		lo, hi := s[0], s[1]
		g.Go(func() error {
			return f.scoreSlice(index.Data(), X[lo:hi], ind[lo:hi], out[lo:hi])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// scoreSlice fills out with the negated angle-spectrum variance of each row.
// It is a pure function of its slice and the read-only index data, so slices
// can be scored concurrently.
func (f *FastABOD) scoreSlice(fitX, X [][]float64, ind [][]int, out []float64) error {
	k := f.nNeighbors
	diffs := make([][]float64, k)
	for j := range diffs {
		diffs[j] = make([]float64, len(fitX[0]))
	}
	norms := make([]float64, k)
	vals := make([]float64, 0, k*(k-1)/2)

	for i, p := range X {
		for j, idx := range ind[i] {
			var n2 float64
			for c, v := range fitX[idx] {
				d := v - p[c]
				diffs[j][c] = d
				n2 += d * d
			}
			if n2 == 0 {
				return fmt.Errorf("%w: X must not contain training samples", detectors.ErrInvalidInput)
			}
			norms[j] = n2
		}

		vals = vals[:0]
		for a := 0; a < k; a++ {
			for b := a + 1; b < k; b++ {
				var dot float64
				for c := range diffs[a] {
					dot += diffs[a][c] * diffs[b][c]
				}
				vals = append(vals, dot/(norms[a]*norms[b]))
			}
		}
		out[i] = -stats.PopVariance(vals)
	}
	return nil
}

// evenSlices partitions [0, n) into at most k contiguous slices of nearly
// equal length.
func evenSlices(n, k int) [][2]int {
	if k > n {
		k = n
	}
	out := make([][2]int, 0, k)
	lo := 0
	for i := 0; i < k; i++ {
		size := n / k
		if i < n%k {
			size++
		}
		out = append(out, [2]int{lo, lo + size})
		lo += size
	}
	return out
}
