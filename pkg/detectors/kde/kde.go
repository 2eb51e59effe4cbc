// Package kde implements outlier detection with kernel density estimation.
// The anomaly score of a sample is its negative log-density under a kernel
// density estimate of the training distribution.
package kde

import (
	"fmt"

	"github.com/mizuaki/go-outliers/internal/density"
	"github.com/mizuaki/go-outliers/internal/neighbors"
	"github.com/mizuaki/go-outliers/internal/stats"
	"github.com/mizuaki/go-outliers/pkg/detectors"
)

// KernelDensity detects outliers in low-density regions.
type KernelDensity struct {
	bandwidth  float64
	fpr        float64
	kernel     density.Kernel
	metricName string
	metric     neighbors.Metric

	model     *density.Estimator
	scores    []float64
	threshold float64
}

// Option configures a KernelDensity detector.
type Option func(*KernelDensity)

// WithBandwidth sets the kernel bandwidth.
func WithBandwidth(h float64) Option {
	return func(k *KernelDensity) { k.bandwidth = h }
}

// WithFPR sets the target false-positive rate used to derive the threshold.
func WithFPR(fpr float64) Option {
	return func(k *KernelDensity) { k.fpr = fpr }
}

// WithKernel sets the kernel: gaussian, tophat, epanechnikov, exponential,
// linear or cosine.
func WithKernel(kernel string) Option {
	return func(k *KernelDensity) { k.kernel = density.Kernel(kernel) }
}

// WithMetric sets the distance metric by name.
func WithMetric(name string) Option {
	return func(k *KernelDensity) { k.metricName = name }
}

// New creates a KernelDensity detector, validating hyperparameters eagerly.
func New(opts ...Option) (*KernelDensity, error) {
	k := &KernelDensity{
		bandwidth:  1.0,
		fpr:        0.01,
		kernel:     density.Gaussian,
		metricName: "euclidean",
	}
	for _, opt := range opts {
		opt(k)
	}

	if k.bandwidth <= 0 {
		return nil, fmt.Errorf("%w: bandwidth must be positive but was %v", detectors.ErrInvalidParam, k.bandwidth)
	}
	if k.fpr < 0 || k.fpr > 1 {
		return nil, fmt.Errorf("%w: fpr must be between 0 and 1 inclusive but was %v", detectors.ErrInvalidParam, k.fpr)
	}
	if !k.kernel.Valid() {
		return nil, fmt.Errorf("%w: invalid kernel: %s", detectors.ErrInvalidParam, k.kernel)
	}
	metric, err := neighbors.ByName(k.metricName, 2)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", detectors.ErrInvalidParam, err)
	}
	k.metric = metric
	return k, nil
}

// Fit estimates the training density and calibrates the threshold as the
// (1-fpr) empirical percentile of the in-sample scores.
func (k *KernelDensity) Fit(X [][]float64) error {
	if err := detectors.ValidateMatrix(X); err != nil {
		return err
	}

	data := make([][]float64, len(X))
	for i, row := range X {
		data[i] = append([]float64(nil), row...)
	}
	model, err := density.Fit(data, k.kernel, k.bandwidth, k.metric)
	if err != nil {
		return fmt.Errorf("%w: %v", detectors.ErrInvalidParam, err)
	}

	scores := negate(model.LogDensity(data))

	k.model = model
	k.scores = scores
	k.threshold = stats.Percentile(scores, 100*(1-k.fpr))
	return nil
}

// AnomalyScore computes negative log-densities for X. A nil X returns the
// cached in-sample scores.
func (k *KernelDensity) AnomalyScore(X [][]float64) ([]float64, error) {
	if k.model == nil {
		return nil, detectors.ErrNotFitted
	}
	if X == nil {
		return k.scores, nil
	}
	if err := detectors.ValidateMatrix(X); err != nil {
		return nil, err
	}
	if err := detectors.ValidateWidth(X, k.model.Dim()); err != nil {
		return nil, err
	}
	return negate(k.model.LogDensity(X)), nil
}

// Predict classifies samples as outliers (1) or inliers (0).
func (k *KernelDensity) Predict(X [][]float64) ([]int, error) {
	scores, err := k.AnomalyScore(X)
	if err != nil {
		return nil, err
	}
	return detectors.Classify(scores, k.threshold), nil
}

// FitPredict fits on X and predicts labels for the same samples.
func (k *KernelDensity) FitPredict(X [][]float64) ([]int, error) {
	if err := k.Fit(X); err != nil {
		return nil, err
	}
	return k.Predict(X)
}

// Threshold returns the calibrated decision threshold.
func (k *KernelDensity) Threshold() float64 { return k.threshold }

func negate(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = -v
	}
	return out
}
