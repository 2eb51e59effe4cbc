// Package iforest implements the Isolation Forest algorithm for anomaly
// detection. Anomalies are isolated in fewer random splits than regular
// points, so short average path lengths across a forest of random isolation
// trees indicate outlierness.
package iforest

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/mizuaki/go-outliers/internal/stats"
	"github.com/mizuaki/go-outliers/pkg/detectors"
)

// IsolationForest detects outliers from isolation path lengths.
type IsolationForest struct {
	nTrees     int
	sampleSize int
	fpr        float64
	seed       int64

	trees         []*node
	maxDepth      int
	avgPathLength float64
	width         int
	scores        []float64
	threshold     float64
}

// node is a node in an isolation tree.
type node struct {
	splitFeature int
	splitValue   float64
	left, right  *node
	size         int // samples that reached this leaf
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) { f.nTrees = n }
}

// WithSampleSize sets the subsample size used to grow each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) { f.sampleSize = n }
}

// WithFPR sets the target false-positive rate used to derive the threshold.
func WithFPR(fpr float64) Option {
	return func(f *IsolationForest) { f.fpr = fpr }
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) { f.seed = seed }
}

// New creates an IsolationForest detector, validating hyperparameters
// eagerly.
func New(opts ...Option) (*IsolationForest, error) {
	f := &IsolationForest{
		nTrees:     100,
		sampleSize: 256,
		fpr:        0.01,
		seed:       42,
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.nTrees <= 0 {
		return nil, fmt.Errorf("%w: n_trees must be positive but was %d", detectors.ErrInvalidParam, f.nTrees)
	}
	if f.sampleSize <= 1 {
		return nil, fmt.Errorf("%w: sample_size must be greater than 1 but was %d", detectors.ErrInvalidParam, f.sampleSize)
	}
	if f.fpr < 0 || f.fpr > 1 {
		return nil, fmt.Errorf("%w: fpr must be between 0 and 1 inclusive but was %v", detectors.ErrInvalidParam, f.fpr)
	}
	return f, nil
}

// Fit grows the forest on X and calibrates the threshold as the (1-fpr)
// empirical percentile of the in-sample scores.
func (f *IsolationForest) Fit(X [][]float64) error {
	if err := detectors.ValidateMatrix(X); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(f.seed))
	nSamples := len(X)
	nFeatures := len(X[0])

	sampleSize := f.sampleSize
	if sampleSize > nSamples {
		sampleSize = nSamples
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))
	if maxDepth < 1 {
		maxDepth = 1
	}

	trees := make([]*node, f.nTrees)
	sample := make([][]float64, sampleSize)
	for i := range trees {
		for j, idx := range rng.Perm(nSamples)[:sampleSize] {
			sample[j] = X[idx]
		}
		trees[i] = buildNode(rng, sample, nFeatures, 0, maxDepth)
	}

	f.trees = trees
	f.maxDepth = maxDepth
	f.avgPathLength = averagePathLength(float64(sampleSize))
	f.width = nFeatures
	f.scores = f.score(X)
	f.threshold = stats.Percentile(f.scores, 100*(1-f.fpr))
	return nil
}

// buildNode recursively grows an isolation tree over data.
func buildNode(rng *rand.Rand, data [][]float64, nFeatures, depth, maxDepth int) *node {
	n := len(data)
	if depth >= maxDepth || n <= 1 {
		return &node{size: n}
	}

	feature := rng.Intn(nFeatures)
	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		if row[feature] < minVal {
			minVal = row[feature]
		}
		if row[feature] > maxVal {
			maxVal = row[feature]
		}
	}
	if minVal == maxVal {
		return &node{size: n}
	}

	splitValue := minVal + rng.Float64()*(maxVal-minVal)
	var left, right [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	return &node{
		splitFeature: feature,
		splitValue:   splitValue,
		left:         buildNode(rng, left, nFeatures, depth+1, maxDepth),
		right:        buildNode(rng, right, nFeatures, depth+1, maxDepth),
	}
}

// AnomalyScore computes isolation scores in (0, 1] for X, higher = more
// anomalous. A nil X returns the cached in-sample scores.
func (f *IsolationForest) AnomalyScore(X [][]float64) ([]float64, error) {
	if f.trees == nil {
		return nil, detectors.ErrNotFitted
	}
	if X == nil {
		return f.scores, nil
	}
	if err := detectors.ValidateMatrix(X); err != nil {
		return nil, err
	}
	if err := detectors.ValidateWidth(X, f.width); err != nil {
		return nil, err
	}
	return f.score(X), nil
}

func (f *IsolationForest) score(X [][]float64) []float64 {
	scores := make([]float64, len(X))
	for i, sample := range X {
		var total float64
		for _, tree := range f.trees {
			total += pathLength(sample, tree, 0)
		}
		avgPath := total / float64(len(f.trees))
		scores[i] = math.Pow(2, -avgPath/f.avgPathLength)
	}
	return scores
}

// Predict classifies samples as outliers (1) or inliers (0).
func (f *IsolationForest) Predict(X [][]float64) ([]int, error) {
	scores, err := f.AnomalyScore(X)
	if err != nil {
		return nil, err
	}
	return detectors.Classify(scores, f.threshold), nil
}

// FitPredict fits on X and predicts labels for the same samples.
func (f *IsolationForest) FitPredict(X [][]float64) ([]int, error) {
	if err := f.Fit(X); err != nil {
		return nil, err
	}
	return f.Predict(X)
}

// Threshold returns the calibrated decision threshold.
func (f *IsolationForest) Threshold() float64 { return f.threshold }

// pathLength is the depth at which sample is isolated in the tree, plus the
// expected remaining depth for leaves holding more than one sample.
func pathLength(sample []float64, n *node, depth int) float64 {
	if n.left == nil && n.right == nil {
		return float64(depth) + averagePathLength(float64(n.size))
	}
	if sample[n.splitFeature] < n.splitValue {
		return pathLength(sample, n.left, depth+1)
	}
	return pathLength(sample, n.right, depth+1)
}

// averagePathLength is the expected path length of an unsuccessful BST
// search over n items: c(n) = 2*H(n-1) - 2*(n-1)/n.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}
