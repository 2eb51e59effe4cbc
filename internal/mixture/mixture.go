// Package mixture implements Gaussian mixture estimation with
// expectation-maximization over full, tied, diagonal and spherical
// covariance parameterizations.
package mixture

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// CovarianceType selects the covariance parameterization of the components.
type CovarianceType string

const (
	Full      CovarianceType = "full"
	Tied      CovarianceType = "tied"
	Diag      CovarianceType = "diag"
	Spherical CovarianceType = "spherical"
)

// Valid reports whether c names a supported covariance type.
func (c CovarianceType) Valid() bool {
	switch c {
	case Full, Tied, Diag, Spherical:
		return true
	}
	return false
}

// Config holds the estimation settings.
type Config struct {
	NComponents int
	CovType     CovarianceType
	MaxIter     int
	Tol         float64
	RegCovar    float64 // added to covariance diagonals, defaults to 1e-6

	// Optional user-supplied initial parameters. Missing pieces are
	// estimated from randomly initialized responsibilities.
	MeansInit      [][]float64
	WeightsInit    []float64
	PrecisionsInit []*mat.Dense // one per component (a single entry is shared)
}

// Model is a fitted Gaussian mixture.
type Model struct {
	CovType CovarianceType
	Weights []float64
	Means   [][]float64

	covs  []*mat.SymDense
	chols []mat.Cholesky
}

var errNotPD = errors.New("mixture: component covariance is not positive definite")

const log2Pi = 1.8378770664093453

// Fit runs EM on X. rng drives the random initialization; prev, when non-nil,
// is used as the starting point instead (warm start).
func Fit(X [][]float64, cfg Config, rng *rand.Rand, prev *Model) (*Model, error) {
	n := len(X)
	k := cfg.NComponents
	if cfg.RegCovar == 0 {
		cfg.RegCovar = 1e-6
	}

	// EM iterates on a private copy so a mid-loop failure cannot leave the
	// caller's previous model partially overwritten.
	var m *Model
	if prev != nil {
		var err error
		if m, err = prev.clone(); err != nil {
			return nil, err
		}
	} else {
		var err error
		if m, err = initialize(X, cfg, rng); err != nil {
			return nil, err
		}
	}

	resp := mat.NewDense(n, k, nil)
	prevLB := math.Inf(-1)
	for iter := 0; iter < cfg.MaxIter; iter++ {
		lb := m.eStep(X, resp)
		if err := m.mStep(X, resp, cfg); err != nil {
			return nil, err
		}
		if math.Abs(lb-prevLB) < cfg.Tol {
			break
		}
		prevLB = lb
	}
	return m, nil
}

// initialize estimates starting parameters from random responsibilities and
// overrides them with any user-supplied values.
func initialize(X [][]float64, cfg Config, rng *rand.Rand) (*Model, error) {
	n := len(X)
	k := cfg.NComponents

	resp := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < k; j++ {
			v := rng.Float64()
			resp.Set(i, j, v)
			sum += v
		}
		for j := 0; j < k; j++ {
			resp.Set(i, j, resp.At(i, j)/sum)
		}
	}

	m := &Model{CovType: cfg.CovType}
	if err := m.mStep(X, resp, cfg); err != nil {
		return nil, err
	}

	if cfg.WeightsInit != nil {
		copy(m.Weights, cfg.WeightsInit)
	}
	if cfg.MeansInit != nil {
		for i, mu := range cfg.MeansInit {
			copy(m.Means[i], mu)
		}
	}
	if cfg.PrecisionsInit != nil {
		if err := m.setCovariancesFromPrecisions(cfg.PrecisionsInit, cfg); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// clone deep-copies the model parameters and re-factorizes the covariances.
func (m *Model) clone() (*Model, error) {
	c := &Model{
		CovType: m.CovType,
		Weights: append([]float64(nil), m.Weights...),
		Means:   make([][]float64, len(m.Means)),
		covs:    make([]*mat.SymDense, len(m.covs)),
	}
	for i, mu := range m.Means {
		c.Means[i] = append([]float64(nil), mu...)
	}
	for i, cov := range m.covs {
		cp := mat.NewSymDense(cov.SymmetricDim(), nil)
		cp.CopySym(cov)
		c.covs[i] = cp
	}
	if err := c.factorize(); err != nil {
		return nil, err
	}
	return c, nil
}

func (m *Model) setCovariancesFromPrecisions(precisions []*mat.Dense, cfg Config) error {
	k := cfg.NComponents
	for c := 0; c < k; c++ {
		p := precisions[0]
		if len(precisions) > 1 {
			p = precisions[c]
		}
		d, _ := p.Dims()
		var inv mat.Dense
		if err := inv.Inverse(p); err != nil {
			return fmt.Errorf("mixture: initial precision is singular: %w", err)
		}
		cov := mat.NewSymDense(d, nil)
		for i := 0; i < d; i++ {
			for j := i; j < d; j++ {
				cov.SetSym(i, j, 0.5*(inv.At(i, j)+inv.At(j, i)))
			}
		}
		m.covs[c] = cov
	}
	return m.factorize()
}

// eStep fills resp with responsibilities and returns the mean per-sample
// log-likelihood lower bound.
func (m *Model) eStep(X [][]float64, resp *mat.Dense) float64 {
	n := len(X)
	k := len(m.Weights)
	logProbs := make([]float64, k)
	var total float64
	for i, x := range X {
		for c := 0; c < k; c++ {
			logProbs[c] = math.Log(m.Weights[c]) + m.logProb(x, c)
		}
		norm := floats.LogSumExp(logProbs)
		total += norm
		for c := 0; c < k; c++ {
			resp.Set(i, c, math.Exp(logProbs[c]-norm))
		}
	}
	return total / float64(n)
}

func (m *Model) mStep(X [][]float64, resp *mat.Dense, cfg Config) error {
	n := len(X)
	d := len(X[0])
	k := cfg.NComponents

	nk := make([]float64, k)
	for c := 0; c < k; c++ {
		for i := 0; i < n; i++ {
			nk[c] += resp.At(i, c)
		}
		nk[c] += 10 * 2.220446049250313e-16
	}

	weights := make([]float64, k)
	means := make([][]float64, k)
	for c := 0; c < k; c++ {
		weights[c] = nk[c] / float64(n)
		mu := make([]float64, d)
		for i, x := range X {
			r := resp.At(i, c)
			for j, v := range x {
				mu[j] += r * v
			}
		}
		for j := range mu {
			mu[j] /= nk[c]
		}
		means[c] = mu
	}

	covs := make([]*mat.SymDense, k)
	switch cfg.CovType {
	case Full, Tied:
		for c := 0; c < k; c++ {
			covs[c] = weightedScatter(X, resp, c, means[c], nk[c], cfg.RegCovar)
		}
		if cfg.CovType == Tied {
			// Pool the component scatters weighted by their responsibility mass.
			pooled := mat.NewSymDense(d, nil)
			for c := 0; c < k; c++ {
				for i := 0; i < d; i++ {
					for j := i; j < d; j++ {
						pooled.SetSym(i, j, pooled.At(i, j)+covs[c].At(i, j)*nk[c]/float64(n))
					}
				}
			}
			for c := 0; c < k; c++ {
				covs[c] = pooled
			}
		}
	case Diag, Spherical:
		for c := 0; c < k; c++ {
			diag := make([]float64, d)
			for i, x := range X {
				r := resp.At(i, c)
				for j, v := range x {
					dev := v - means[c][j]
					diag[j] += r * dev * dev
				}
			}
			for j := range diag {
				diag[j] = diag[j]/nk[c] + cfg.RegCovar
			}
			if cfg.CovType == Spherical {
				avg := floats.Sum(diag) / float64(d)
				for j := range diag {
					diag[j] = avg
				}
			}
			cov := mat.NewSymDense(d, nil)
			for j := 0; j < d; j++ {
				cov.SetSym(j, j, diag[j])
			}
			covs[c] = cov
		}
	default:
		return fmt.Errorf("mixture: invalid covariance type: %s", cfg.CovType)
	}

	m.Weights = weights
	m.Means = means
	m.covs = covs
	return m.factorize()
}

func weightedScatter(X [][]float64, resp *mat.Dense, c int, mu []float64, nk, reg float64) *mat.SymDense {
	d := len(mu)
	s := mat.NewSymDense(d, nil)
	dev := make([]float64, d)
	for i, x := range X {
		r := resp.At(i, c)
		for j, v := range x {
			dev[j] = v - mu[j]
		}
		for a := 0; a < d; a++ {
			for b := a; b < d; b++ {
				s.SetSym(a, b, s.At(a, b)+r*dev[a]*dev[b])
			}
		}
	}
	for a := 0; a < d; a++ {
		for b := a; b < d; b++ {
			s.SetSym(a, b, s.At(a, b)/nk)
		}
		s.SetSym(a, a, s.At(a, a)+reg)
	}
	return s
}

func (m *Model) factorize() error {
	m.chols = make([]mat.Cholesky, len(m.covs))
	for c, cov := range m.covs {
		if ok := m.chols[c].Factorize(cov); !ok {
			return errNotPD
		}
	}
	return nil
}

func (m *Model) logProb(x []float64, c int) float64 {
	d := len(x)
	dev := mat.NewVecDense(d, nil)
	for j := 0; j < d; j++ {
		dev.SetVec(j, x[j]-m.Means[c][j])
	}
	sol := mat.NewVecDense(d, nil)
	if err := m.chols[c].SolveVecTo(sol, dev); err != nil {
		return math.Inf(-1)
	}
	return -0.5 * (float64(d)*log2Pi + m.chols[c].LogDet() + mat.Dot(dev, sol))
}

// ScoreSamples returns the per-sample log-likelihood under the mixture.
func (m *Model) ScoreSamples(X [][]float64) []float64 {
	k := len(m.Weights)
	out := make([]float64, len(X))
	logProbs := make([]float64, k)
	for i, x := range X {
		for c := 0; c < k; c++ {
			logProbs[c] = math.Log(m.Weights[c]) + m.logProb(x, c)
		}
		out[i] = floats.LogSumExp(logProbs)
	}
	return out
}
