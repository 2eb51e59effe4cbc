// Package vmf implements directional outlier detection under a von
// Mises-Fisher model. Samples are projected onto the unit hypersphere and
// scored by their cosine divergence 1 - x.mu from the mean direction; for
// concentrated directional data the in-sample scores are approximately
// chi-squared distributed, which drives the threshold calibration.
package vmf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/mizuaki/go-outliers/internal/stats"
	"github.com/mizuaki/go-outliers/pkg/detectors"
)

// VonMisesFisher detects samples pointing away from the mean direction.
type VonMisesFisher struct {
	assumeNormalized bool
	fpr              float64

	meanDirection []float64
	scores        []float64
	threshold     float64
}

// Option configures a VonMisesFisher detector.
type Option func(*VonMisesFisher)

// WithAssumeNormalized skips L2 normalization; the rows of X are taken to
// already lie on the unit hypersphere.
func WithAssumeNormalized(normalized bool) Option {
	return func(v *VonMisesFisher) { v.assumeNormalized = normalized }
}

// WithFPR sets the target false-positive rate used to derive the threshold.
func WithFPR(fpr float64) Option {
	return func(v *VonMisesFisher) { v.fpr = fpr }
}

// New creates a VonMisesFisher detector, validating hyperparameters eagerly.
func New(opts ...Option) (*VonMisesFisher, error) {
	v := &VonMisesFisher{fpr: 0.01}
	for _, opt := range opts {
		opt(v)
	}
	if v.fpr < 0 || v.fpr > 1 {
		return nil, fmt.Errorf("%w: fpr must be between 0 and 1 inclusive but was %v", detectors.ErrInvalidParam, v.fpr)
	}
	return v, nil
}

// Fit estimates the mean direction of X and calibrates the threshold as the
// (1-fpr) quantile of a chi-squared distribution fitted to the in-sample
// scores.
func (v *VonMisesFisher) Fit(X [][]float64) error {
	if err := detectors.ValidateMatrix(X); err != nil {
		return err
	}

	rows := v.project(X)

	d := len(rows[0])
	mean := make([]float64, d)
	for _, row := range rows {
		floats.Add(mean, row)
	}
	norm := math.Sqrt(floats.Dot(mean, mean))
	if norm == 0 {
		return fmt.Errorf("%w: mean direction is undefined for centered data", detectors.ErrInvalidInput)
	}
	floats.Scale(1/norm, mean)

	scores := score(rows, mean)
	df, loc, scale := stats.FitChiSquared(scores)

	v.meanDirection = mean
	v.scores = scores
	v.threshold = stats.ChiSquaredQuantile(1-v.fpr, df, loc, scale)
	return nil
}

// AnomalyScore computes cosine divergences from the mean direction. A nil X
// returns the cached in-sample scores.
func (v *VonMisesFisher) AnomalyScore(X [][]float64) ([]float64, error) {
	if v.meanDirection == nil {
		return nil, detectors.ErrNotFitted
	}
	if X == nil {
		return v.scores, nil
	}
	if err := detectors.ValidateMatrix(X); err != nil {
		return nil, err
	}
	if err := detectors.ValidateWidth(X, len(v.meanDirection)); err != nil {
		return nil, err
	}
	return score(v.project(X), v.meanDirection), nil
}

// Predict classifies samples as outliers (1) or inliers (0).
func (v *VonMisesFisher) Predict(X [][]float64) ([]int, error) {
	scores, err := v.AnomalyScore(X)
	if err != nil {
		return nil, err
	}
	return detectors.Classify(scores, v.threshold), nil
}

// FitPredict fits on X and predicts labels for the same samples.
func (v *VonMisesFisher) FitPredict(X [][]float64) ([]int, error) {
	if err := v.Fit(X); err != nil {
		return nil, err
	}
	return v.Predict(X)
}

// Threshold returns the calibrated decision threshold.
func (v *VonMisesFisher) Threshold() float64 { return v.threshold }

// MeanDirection returns the fitted unit-norm mean direction.
func (v *VonMisesFisher) MeanDirection() []float64 { return v.meanDirection }

// project returns X with L2-normalized rows, or X itself when the caller
// asserted normalization. Zero rows are left unchanged.
func (v *VonMisesFisher) project(X [][]float64) [][]float64 {
	if v.assumeNormalized {
		return X
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		r := append([]float64(nil), row...)
		if norm := math.Sqrt(floats.Dot(r, r)); norm > 0 {
			floats.Scale(1/norm, r)
		}
		out[i] = r
	}
	return out
}

func score(rows [][]float64, mean []float64) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = 1 - floats.Dot(row, mean)
	}
	return out
}
