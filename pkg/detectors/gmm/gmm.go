// Package gmm implements outlier detection with Gaussian mixture models.
// The anomaly score of a sample is its negative log-likelihood under a
// mixture fitted by expectation-maximization.
package gmm

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/mizuaki/go-outliers/internal/mixture"
	"github.com/mizuaki/go-outliers/internal/stats"
	"github.com/mizuaki/go-outliers/pkg/detectors"
)

// GaussianMixture detects outliers in low-likelihood regions of a fitted
// mixture.
type GaussianMixture struct {
	covarianceType mixture.CovarianceType
	fpr            float64
	maxIter        int
	nComponents    int
	tol            float64
	seed           int64
	warmStart      bool
	meansInit      [][]float64
	weightsInit    []float64
	precisionsInit []*mat.Dense

	model     *mixture.Model
	scores    []float64
	threshold float64
}

// Option configures a GaussianMixture detector.
type Option func(*GaussianMixture)

// WithCovarianceType selects the covariance parameterization: full, tied,
// diag or spherical.
func WithCovarianceType(t string) Option {
	return func(g *GaussianMixture) { g.covarianceType = mixture.CovarianceType(t) }
}

// WithFPR sets the target false-positive rate used to derive the threshold.
func WithFPR(fpr float64) Option {
	return func(g *GaussianMixture) { g.fpr = fpr }
}

// WithMaxIter sets the maximum number of EM iterations.
func WithMaxIter(n int) Option {
	return func(g *GaussianMixture) { g.maxIter = n }
}

// WithComponents sets the number of mixture components.
func WithComponents(n int) Option {
	return func(g *GaussianMixture) { g.nComponents = n }
}

// WithTol sets the EM convergence threshold on the log-likelihood change.
func WithTol(tol float64) Option {
	return func(g *GaussianMixture) { g.tol = tol }
}

// WithSeed sets the random seed for the EM initialization.
func WithSeed(seed int64) Option {
	return func(g *GaussianMixture) { g.seed = seed }
}

// WithWarmStart reuses the previous fit as the EM starting point on re-fit.
func WithWarmStart(warm bool) Option {
	return func(g *GaussianMixture) { g.warmStart = warm }
}

// WithMeansInit supplies initial component means.
func WithMeansInit(means [][]float64) Option {
	return func(g *GaussianMixture) { g.meansInit = means }
}

// WithWeightsInit supplies initial component weights.
func WithWeightsInit(weights []float64) Option {
	return func(g *GaussianMixture) { g.weightsInit = weights }
}

// WithPrecisionsInit supplies initial component precision matrices. A single
// matrix is shared across components.
func WithPrecisionsInit(precisions []*mat.Dense) Option {
	return func(g *GaussianMixture) { g.precisionsInit = precisions }
}

// New creates a GaussianMixture detector, validating hyperparameters eagerly.
func New(opts ...Option) (*GaussianMixture, error) {
	g := &GaussianMixture{
		covarianceType: mixture.Full,
		fpr:            0.01,
		maxIter:        100,
		nComponents:    1,
		tol:            1e-3,
		seed:           42,
	}
	for _, opt := range opts {
		opt(g)
	}

	if !g.covarianceType.Valid() {
		return nil, fmt.Errorf("%w: invalid covariance_type: %s", detectors.ErrInvalidParam, g.covarianceType)
	}
	if g.fpr < 0 || g.fpr > 1 {
		return nil, fmt.Errorf("%w: fpr must be between 0 and 1 inclusive but was %v", detectors.ErrInvalidParam, g.fpr)
	}
	if g.maxIter <= 0 {
		return nil, fmt.Errorf("%w: max_iter must be positive but was %d", detectors.ErrInvalidParam, g.maxIter)
	}
	if g.nComponents <= 0 {
		return nil, fmt.Errorf("%w: n_components must be positive but was %d", detectors.ErrInvalidParam, g.nComponents)
	}
	if g.tol < 0 {
		return nil, fmt.Errorf("%w: tol must be non-negative but was %v", detectors.ErrInvalidParam, g.tol)
	}
	return g, nil
}

// Fit runs EM on X and calibrates the threshold as the (1-fpr) empirical
// percentile of the in-sample scores.
func (g *GaussianMixture) Fit(X [][]float64) error {
	if err := detectors.ValidateMatrix(X); err != nil {
		return err
	}

	cfg := mixture.Config{
		NComponents:    g.nComponents,
		CovType:        g.covarianceType,
		MaxIter:        g.maxIter,
		Tol:            g.tol,
		MeansInit:      g.meansInit,
		WeightsInit:    g.weightsInit,
		PrecisionsInit: g.precisionsInit,
	}
	var prev *mixture.Model
	if g.warmStart {
		prev = g.model
	}
	rng := rand.New(rand.NewSource(g.seed))
	model, err := mixture.Fit(X, cfg, rng, prev)
	if err != nil {
		return fmt.Errorf("%w: %v", detectors.ErrInvalidInput, err)
	}

	scores := negate(model.ScoreSamples(X))

	g.model = model
	g.scores = scores
	g.threshold = stats.Percentile(scores, 100*(1-g.fpr))
	return nil
}

// AnomalyScore computes negative log-likelihoods for X. A nil X returns the
// cached in-sample scores.
func (g *GaussianMixture) AnomalyScore(X [][]float64) ([]float64, error) {
	if g.model == nil {
		return nil, detectors.ErrNotFitted
	}
	if X == nil {
		return g.scores, nil
	}
	if err := detectors.ValidateMatrix(X); err != nil {
		return nil, err
	}
	if err := detectors.ValidateWidth(X, len(g.model.Means[0])); err != nil {
		return nil, err
	}
	return negate(g.model.ScoreSamples(X)), nil
}

// Predict classifies samples as outliers (1) or inliers (0).
func (g *GaussianMixture) Predict(X [][]float64) ([]int, error) {
	scores, err := g.AnomalyScore(X)
	if err != nil {
		return nil, err
	}
	return detectors.Classify(scores, g.threshold), nil
}

// FitPredict fits on X and predicts labels for the same samples.
func (g *GaussianMixture) FitPredict(X [][]float64) ([]int, error) {
	if err := g.Fit(X); err != nil {
		return nil, err
	}
	return g.Predict(X)
}

// Threshold returns the calibrated decision threshold.
func (g *GaussianMixture) Threshold() float64 { return g.threshold }

func negate(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = -v
	}
	return out
}
