// Package stats provides the shared statistical primitives used for
// anomaly-score threshold calibration: empirical percentiles, a moment-matched
// chi-squared fit, and population moments.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Percentile returns the q-th percentile (q in [0, 100]) of values using
// linear interpolation between order statistics. The input is not modified.
func Percentile(values []float64, q float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 100 {
		return sorted[len(sorted)-1]
	}
	return stat.Quantile(q/100, stat.LinInterp, sorted, nil)
}

// ColumnPercentiles returns the q-th percentile of each column of X.
func ColumnPercentiles(X [][]float64, q float64) []float64 {
	nFeatures := len(X[0])
	out := make([]float64, nFeatures)
	col := make([]float64, len(X))
	for j := 0; j < nFeatures; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		out[j] = Percentile(col, q)
	}
	return out
}

// PopVariance returns the population (biased) variance of x.
func PopVariance(x []float64) float64 {
	mean := stat.Mean(x, nil)
	var ss float64
	for _, v := range x {
		d := v - mean
		ss += d * d
	}
	return ss / float64(len(x))
}

// FitChiSquared estimates the parameters of a shifted, scaled chi-squared
// distribution from samples by moment matching: the degrees of freedom come
// from the skewness, the scale from the variance and the location from the
// mean. Falls back to a two-parameter fit (loc = 0) when the sample skewness
// is not positive.
func FitChiSquared(samples []float64) (df, loc, scale float64) {
	mean := stat.Mean(samples, nil)
	variance := PopVariance(samples)
	if variance <= 0 {
		return 1, mean, 1
	}

	skew := stat.Skew(samples, nil)
	if skew > 1e-12 {
		// skew(chi2_k) = sqrt(8/k), var = 2k*scale^2, mean = k*scale + loc.
		df = 8 / (skew * skew)
		scale = math.Sqrt(variance / (2 * df))
		loc = mean - df*scale
		return df, loc, scale
	}

	if mean > 0 {
		df = 2 * mean * mean / variance
		scale = variance / (2 * mean)
		return df, 0, scale
	}
	return 1, mean, math.Sqrt(variance/2)
}

// ChiSquaredQuantile returns the p-quantile of a chi-squared distribution
// with the given degrees of freedom, location and scale. p >= 1 yields +Inf.
func ChiSquaredQuantile(p, df, loc, scale float64) float64 {
	if p >= 1 {
		return math.Inf(1)
	}
	if p <= 0 {
		return loc
	}
	return loc + scale*distuv.ChiSquared{K: df}.Quantile(p)
}
