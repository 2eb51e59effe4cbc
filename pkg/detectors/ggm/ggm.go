// Package ggm implements outlier detection with a sparse Gaussian graphical
// model. The global anomaly score is the squared Mahalanobis distance under
// a graphical-lasso precision matrix; a feature-wise score decomposes the
// divergence per feature from the marginal precision terms.
//
// Reference: T. Ide, C. Lozano, N. Abe and Y. Liu, "Proximity-based anomaly
// detection using sparse structure learning," SDM'09.
package ggm

import (
	"fmt"
	"math"

	"github.com/mizuaki/go-outliers/internal/glasso"
	"github.com/mizuaki/go-outliers/internal/stats"
	"github.com/mizuaki/go-outliers/pkg/detectors"
)

// GGM detects outliers under a sparse Gaussian graphical model.
type GGM struct {
	alpha          float64
	assumeCentered bool
	fpr            float64
	maxIter        int
	tol            float64

	model                *glasso.Model
	scores               []float64
	featureScores        [][]float64
	threshold            float64
	featureWiseThreshold []float64
}

// Option configures a GGM detector.
type Option func(*GGM)

// WithAlpha sets the L1 regularization strength of the graphical lasso.
func WithAlpha(alpha float64) Option {
	return func(g *GGM) { g.alpha = alpha }
}

// WithAssumeCentered skips mean estimation; the data are taken as centered.
func WithAssumeCentered(centered bool) Option {
	return func(g *GGM) { g.assumeCentered = centered }
}

// WithFPR sets the target false-positive rate used to derive the threshold.
func WithFPR(fpr float64) Option {
	return func(g *GGM) { g.fpr = fpr }
}

// WithMaxIter sets the maximum number of graphical-lasso iterations.
func WithMaxIter(n int) Option {
	return func(g *GGM) { g.maxIter = n }
}

// WithTol sets the duality-gap convergence tolerance.
func WithTol(tol float64) Option {
	return func(g *GGM) { g.tol = tol }
}

// New creates a GGM detector, validating hyperparameters eagerly.
func New(opts ...Option) (*GGM, error) {
	g := &GGM{
		alpha:   0.01,
		fpr:     0.01,
		maxIter: 100,
		tol:     1e-4,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.alpha < 0 || g.alpha > 1 {
		return nil, fmt.Errorf("%w: alpha must be between 0 and 1 inclusive but was %v", detectors.ErrInvalidParam, g.alpha)
	}
	if g.fpr < 0 || g.fpr > 1 {
		return nil, fmt.Errorf("%w: fpr must be between 0 and 1 inclusive but was %v", detectors.ErrInvalidParam, g.fpr)
	}
	if g.maxIter <= 0 {
		return nil, fmt.Errorf("%w: max_iter must be positive but was %d", detectors.ErrInvalidParam, g.maxIter)
	}
	if g.tol < 0 {
		return nil, fmt.Errorf("%w: tol must be non-negative but was %v", detectors.ErrInvalidParam, g.tol)
	}
	return g, nil
}

// Fit estimates the sparse precision matrix from X. The global threshold is
// the (1-fpr) quantile of a chi-squared distribution fitted to the in-sample
// Mahalanobis scores; the feature-wise threshold is the per-feature (1-fpr)
// empirical percentile.
func (g *GGM) Fit(X [][]float64) error {
	if err := detectors.ValidateMatrix(X); err != nil {
		return err
	}

	model, err := glasso.Fit(X, g.alpha, g.assumeCentered, g.maxIter, g.tol)
	if err != nil {
		return fmt.Errorf("%w: %v", detectors.ErrInvalidInput, err)
	}

	scores := model.Mahalanobis(X)
	df, loc, scale := stats.FitChiSquared(scores)
	threshold := stats.ChiSquaredQuantile(1-g.fpr, df, loc, scale)

	featureScores := featureWise(model, X)
	featureWiseThreshold := stats.ColumnPercentiles(featureScores, 100*(1-g.fpr))

	g.model = model
	g.scores = scores
	g.featureScores = featureScores
	g.threshold = threshold
	g.featureWiseThreshold = featureWiseThreshold
	return nil
}

// AnomalyScore computes squared Mahalanobis distances for X. A nil X returns
// the cached in-sample scores.
func (g *GGM) AnomalyScore(X [][]float64) ([]float64, error) {
	if g.model == nil {
		return nil, detectors.ErrNotFitted
	}
	if X == nil {
		return g.scores, nil
	}
	if err := g.validate(X); err != nil {
		return nil, err
	}
	return g.model.Mahalanobis(X), nil
}

// FeatureWiseAnomalyScore decomposes the anomaly score of each sample per
// feature. A nil X returns the cached in-sample matrix.
func (g *GGM) FeatureWiseAnomalyScore(X [][]float64) ([][]float64, error) {
	if g.model == nil {
		return nil, detectors.ErrNotFitted
	}
	if X == nil {
		return g.featureScores, nil
	}
	if err := g.validate(X); err != nil {
		return nil, err
	}
	return featureWise(g.model, X), nil
}

// Predict classifies samples as outliers (1) or inliers (0).
func (g *GGM) Predict(X [][]float64) ([]int, error) {
	scores, err := g.AnomalyScore(X)
	if err != nil {
		return nil, err
	}
	return detectors.Classify(scores, g.threshold), nil
}

// FitPredict fits on X and predicts labels for the same samples.
func (g *GGM) FitPredict(X [][]float64) ([]int, error) {
	if err := g.Fit(X); err != nil {
		return nil, err
	}
	return g.Predict(X)
}

// Threshold returns the calibrated global decision threshold.
func (g *GGM) Threshold() float64 { return g.threshold }

// FeatureWiseThreshold returns the per-feature decision thresholds.
func (g *GGM) FeatureWiseThreshold() []float64 { return g.featureWiseThreshold }

// Precision returns the estimated precision matrix as rows.
func (g *GGM) Precision() [][]float64 {
	d := len(g.model.Location)
	out := make([][]float64, d)
	for i := 0; i < d; i++ {
		out[i] = make([]float64, d)
		for j := 0; j < d; j++ {
			out[i][j] = g.model.Precision.At(i, j)
		}
	}
	return out
}

func (g *GGM) validate(X [][]float64) error {
	if err := detectors.ValidateMatrix(X); err != nil {
		return err
	}
	return detectors.ValidateWidth(X, len(g.model.Location))
}

// featureWise computes, for each sample and feature i,
// 0.5*ln(2*pi/P_ii) + 0.5/P_ii * (P*(x-loc))_i^2, the marginal-feature
// contribution to the divergence. Off-diagonal precision terms are ignored
// in the normalization on purpose (marginal approximation).
func featureWise(m *glasso.Model, X [][]float64) [][]float64 {
	d := len(m.Location)
	out := make([][]float64, len(X))
	v := make([]float64, d)
	for i, row := range X {
		for j := range v {
			v[j] = row[j] - m.Location[j]
		}
		scores := make([]float64, d)
		for j := 0; j < d; j++ {
			var pv float64
			for k := 0; k < d; k++ {
				pv += m.Precision.At(j, k) * v[k]
			}
			pjj := m.Precision.At(j, j)
			scores[j] = 0.5*math.Log(2*math.Pi/pjj) + 0.5/pjj*pv*pv
		}
		out[i] = scores
	}
	return out
}
