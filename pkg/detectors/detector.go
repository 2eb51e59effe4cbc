// Package detectors defines the contract shared by all unsupervised outlier
// detection algorithms: fit on unlabeled data, compute continuous anomaly
// scores (higher = more anomalous), and classify against a threshold derived
// at fit time from a target false-positive rate.
package detectors

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Detector is the common interface for all outlier detection algorithms.
type Detector interface {
	// Fit estimates the model from training data. Rows are samples,
	// columns are features. Fitting is unsupervised and all-or-nothing:
	// on error, previously fitted state is left untouched.
	Fit(X [][]float64) error

	// AnomalyScore computes anomaly scores for the given samples. A nil X
	// returns the in-sample scores cached during Fit, guaranteed to be
	// consistent with the stored threshold.
	AnomalyScore(X [][]float64) ([]float64, error)

	// Predict returns 1 for samples whose anomaly score exceeds the
	// threshold and 0 otherwise.
	Predict(X [][]float64) ([]int, error)

	// FitPredict fits on X and predicts labels for the same samples.
	FitPredict(X [][]float64) ([]int, error)
}

// Thresholder is implemented by detectors exposing their decision threshold.
type Thresholder interface {
	Threshold() float64
}

var (
	// ErrInvalidParam marks construction-time hyperparameter violations.
	ErrInvalidParam = errors.New("invalid parameter")

	// ErrNotFitted is returned by scoring or prediction on an unfitted detector.
	ErrNotFitted = errors.New("detector is not fitted")

	// ErrInvalidInput marks structurally invalid scoring or training data.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidateMatrix checks that X is a non-empty rectangular matrix of finite
// values.
func ValidateMatrix(X [][]float64) error {
	if len(X) == 0 || len(X[0]) == 0 {
		return fmt.Errorf("%w: empty sample matrix", ErrInvalidInput)
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrInvalidInput, i, len(row), width)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite value at row %d, column %d", ErrInvalidInput, i, j)
			}
		}
	}
	return nil
}

// ValidateWidth checks X against the feature count seen during fitting.
func ValidateWidth(X [][]float64, want int) error {
	if len(X[0]) != want {
		return fmt.Errorf("%w: expected %d features, got %d", ErrInvalidInput, want, len(X[0]))
	}
	return nil
}

// Classify converts anomaly scores into 0/1 labels against a threshold.
func Classify(scores []float64, threshold float64) []int {
	labels := make([]int, len(scores))
	for i, s := range scores {
		if s > threshold {
			labels[i] = 1
		}
	}
	return labels
}

// Score is a single streaming scoring result.
type Score struct {
	// Value is the anomaly score.
	Value float64
	// IsAnomaly indicates the score exceeds the detector's threshold.
	IsAnomaly bool
	// Features is the scored sample.
	Features []float64
}

// Stream scores samples from input with a fitted detector and sends results
// to output until input closes or the context is canceled. The output channel
// is not closed by Stream.
func Stream(ctx context.Context, d Detector, input <-chan []float64, output chan<- Score) error {
	t, _ := d.(Thresholder)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sample, ok := <-input:
			if !ok {
				return nil
			}
			scores, err := d.AnomalyScore([][]float64{sample})
			if err != nil {
				return err
			}
			result := Score{Value: scores[0], Features: sample}
			if t != nil {
				result.IsAnomaly = scores[0] > t.Threshold()
			}
			select {
			case output <- result:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
