// Package glasso estimates sparse inverse covariance matrices with the
// graphical lasso: block coordinate descent over columns of the covariance,
// solving an L1-penalized regression per column, with a duality-gap stopping
// criterion.
package glasso

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Model is a fitted sparse Gaussian graphical model.
type Model struct {
	Covariance *mat.Dense
	Precision  *mat.Dense
	Location   []float64
}

const (
	cdSweeps = 100
	cdTol    = 1e-8
)

// Fit estimates the covariance and sparse precision of X with L1 penalty
// alpha. When assumeCentered is true the data are taken to have zero mean.
// Iterations stop when the duality gap falls below tol or after maxIter
// passes over the columns.
func Fit(X [][]float64, alpha float64, assumeCentered bool, maxIter int, tol float64) (*Model, error) {
	n := len(X)
	d := len(X[0])

	loc := make([]float64, d)
	if !assumeCentered {
		for _, row := range X {
			for j, v := range row {
				loc[j] += v
			}
		}
		for j := range loc {
			loc[j] /= float64(n)
		}
	}

	xc := mat.NewDense(n, d, nil)
	for i, row := range X {
		for j, v := range row {
			xc.Set(i, j, v-loc[j])
		}
	}
	S := mat.NewDense(d, d, nil)
	S.Mul(xc.T(), xc)
	S.Scale(1/float64(n), S)

	P := mat.NewDense(d, d, nil)
	if alpha == 0 {
		if err := P.Inverse(S); err != nil {
			return nil, fmt.Errorf("empirical covariance is singular: %w", err)
		}
		return &Model{Covariance: S, Precision: P, Location: loc}, nil
	}

	// Shrink off-diagonal entries so the initial estimate is well conditioned.
	W := mat.DenseCopyOf(S)
	W.Scale(0.95, W)
	for i := 0; i < d; i++ {
		W.Set(i, i, S.At(i, i))
	}
	if err := P.Inverse(W); err != nil {
		return nil, fmt.Errorf("initial covariance estimate is singular: %w", err)
	}

	oth := make([]int, d-1)  // full-matrix indices of the current sub-problem
	beta := make([]float64, d-1)
	w12 := make([]float64, d-1)

	for iter := 0; iter < maxIter; iter++ {
		for idx := 0; idx < d; idx++ {
			k := 0
			for j := 0; j < d; j++ {
				if j != idx {
					oth[k] = j
					k++
				}
			}

			// Warm start from the current precision column.
			pii := P.At(idx, idx)
			for k, j := range oth {
				beta[k] = -P.At(j, idx) / (pii + 1e-15)
			}

			lassoCD(W, S, oth, idx, alpha, beta)

			// w12 = W11 * beta
			for k, j := range oth {
				var s float64
				for l, m := range oth {
					s += W.At(j, m) * beta[l]
				}
				w12[k] = s
				W.Set(j, idx, s)
				W.Set(idx, j, s)
			}

			var dot float64
			for k := range beta {
				dot += w12[k] * beta[k]
			}
			pii = 1 / (W.At(idx, idx) - dot)
			P.Set(idx, idx, pii)
			for k, j := range oth {
				P.Set(j, idx, -pii*beta[k])
				P.Set(idx, j, -pii*beta[k])
			}
		}

		if math.Abs(dualGap(S, P, alpha)) < tol {
			break
		}
	}

	return &Model{Covariance: W, Precision: P, Location: loc}, nil
}

// lassoCD runs coordinate descent on
// 0.5*beta'*W11*beta - s12'*beta + alpha*|beta|_1
// where W11 and s12 are the views of W and S excluding row/column idx.
func lassoCD(W, S *mat.Dense, oth []int, idx int, alpha float64, beta []float64) {
	for sweep := 0; sweep < cdSweeps; sweep++ {
		var maxDelta float64
		for k, j := range oth {
			r := S.At(j, idx)
			for l, m := range oth {
				if l != k {
					r -= W.At(j, m) * beta[l]
				}
			}
			nb := softThreshold(r, alpha) / W.At(j, j)
			if delta := math.Abs(nb - beta[k]); delta > maxDelta {
				maxDelta = delta
			}
			beta[k] = nb
		}
		if maxDelta < cdTol {
			break
		}
	}
}

func softThreshold(x, t float64) float64 {
	switch {
	case x > t:
		return x - t
	case x < -t:
		return x + t
	}
	return 0
}

// dualGap is trace(S*P) - d + alpha*(|P|_1 - |diag(P)|_1); zero at the optimum.
func dualGap(S, P *mat.Dense, alpha float64) float64 {
	d, _ := S.Dims()
	var gap float64
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			gap += S.At(i, j) * P.At(j, i)
			if i != j {
				gap += alpha * math.Abs(P.At(i, j))
			}
		}
	}
	return gap - float64(d)
}

// Mahalanobis returns the squared Mahalanobis distance of each row of X under
// the fitted precision and location.
func (m *Model) Mahalanobis(X [][]float64) []float64 {
	d := len(m.Location)
	out := make([]float64, len(X))
	v := make([]float64, d)
	for i, row := range X {
		for j := range v {
			v[j] = row[j] - m.Location[j]
		}
		var q float64
		for j := 0; j < d; j++ {
			var s float64
			for k := 0; k < d; k++ {
				s += m.Precision.At(j, k) * v[k]
			}
			q += s * v[j]
		}
		out[i] = q
	}
	return out
}
