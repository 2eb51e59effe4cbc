// Package density implements kernel density estimation over in-memory sample
// matrices. Densities are properly normalized per kernel and dimension, so
// log-densities are comparable across bandwidths and feature counts.
package density

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/mizuaki/go-outliers/internal/neighbors"
)

// Kernel identifies a kernel profile.
type Kernel string

const (
	Gaussian     Kernel = "gaussian"
	Tophat       Kernel = "tophat"
	Epanechnikov Kernel = "epanechnikov"
	Exponential  Kernel = "exponential"
	Linear       Kernel = "linear"
	Cosine       Kernel = "cosine"
)

// Valid reports whether k names a supported kernel.
func (k Kernel) Valid() bool {
	switch k {
	case Gaussian, Tophat, Epanechnikov, Exponential, Linear, Cosine:
		return true
	}
	return false
}

// Estimator is a fitted kernel density model.
type Estimator struct {
	data      [][]float64
	kernel    Kernel
	bandwidth float64
	metric    neighbors.Metric
	logNorm   float64 // log normalization constant, includes bandwidth and sample count
}

// Fit builds a density estimate over X with the given kernel, bandwidth and
// metric. X is referenced, not copied.
func Fit(X [][]float64, kernel Kernel, bandwidth float64, metric neighbors.Metric) (*Estimator, error) {
	if !kernel.Valid() {
		return nil, fmt.Errorf("invalid kernel: %s", kernel)
	}
	d := len(X[0])
	return &Estimator{
		data:      X,
		kernel:    kernel,
		bandwidth: bandwidth,
		metric:    metric,
		logNorm:   -logKernelNorm(kernel, d) - float64(d)*math.Log(bandwidth) - math.Log(float64(len(X))),
	}, nil
}

// Dim returns the feature count of the fitted data.
func (e *Estimator) Dim() int { return len(e.data[0]) }

// LogDensity returns the log of the estimated density at each row of X.
func (e *Estimator) LogDensity(X [][]float64) []float64 {
	out := make([]float64, len(X))
	terms := make([]float64, len(e.data))
	for i, x := range X {
		for j, t := range e.data {
			terms[j] = logKernel(e.kernel, e.metric(x, t)/e.bandwidth)
		}
		out[i] = floats.LogSumExp(terms) + e.logNorm
	}
	return out
}

// logKernel is the unnormalized log kernel profile at scaled distance u.
func logKernel(k Kernel, u float64) float64 {
	switch k {
	case Gaussian:
		return -0.5 * u * u
	case Tophat:
		if u < 1 {
			return 0
		}
	case Epanechnikov:
		if u < 1 {
			return math.Log(1 - u*u)
		}
	case Exponential:
		return -u
	case Linear:
		if u < 1 {
			return math.Log(1 - u)
		}
	case Cosine:
		if u < 1 {
			return math.Log(math.Cos(0.5 * math.Pi * u))
		}
	}
	return math.Inf(-1)
}

// logKernelNorm is the log integral of the unnormalized kernel profile over
// d-dimensional space, so that exp(logKernel - logKernelNorm) integrates to 1.
func logKernelNorm(k Kernel, d int) float64 {
	n := float64(d)
	switch k {
	case Gaussian:
		return 0.5 * n * math.Log(2*math.Pi)
	case Tophat:
		return logUnitBallVolume(n)
	case Epanechnikov:
		return logUnitBallVolume(n) + math.Log(2/(n+2))
	case Exponential:
		lg, _ := math.Lgamma(n)
		return logUnitSphereArea(n-1) + lg
	case Linear:
		return logUnitBallVolume(n) - math.Log(n+1)
	case Cosine:
		// Closed-form alternating series for the integral of cos(pi*r/2)
		// over the unit d-ball.
		factor := 0.0
		tmp := 2 / math.Pi
		for it := 1; it <= d; it += 2 {
			factor += tmp
			tmp *= -float64((d-it)*(d-it-1)) * (2 / math.Pi) * (2 / math.Pi)
		}
		return math.Log(factor) + logUnitSphereArea(n-1)
	}
	panic("density: unreachable kernel")
}

// logUnitBallVolume is log V_n = log(pi^(n/2) / gamma(n/2 + 1)).
func logUnitBallVolume(n float64) float64 {
	lg, _ := math.Lgamma(0.5*n + 1)
	return 0.5*n*math.Log(math.Pi) - lg
}

// logUnitSphereArea is the log surface area of the unit n-sphere,
// S_n = 2*pi*V_(n-1).
func logUnitSphereArea(n float64) float64 {
	return math.Log(2*math.Pi) + logUnitBallVolume(n-1)
}
