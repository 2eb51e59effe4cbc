// Package io provides data ingestion and result reporting around the
// detectors: readers produce sample matrices, writers emit detection results.
package io

import (
	"context"
	"encoding/json"
	stdio "io"
)

// Reader is the interface for reading sample matrices from data sources.
type Reader interface {
	// Read returns the complete dataset, rows = samples.
	Read() ([][]float64, error)

	// Stream returns a channel of samples for incremental scoring.
	Stream(ctx context.Context) (<-chan []float64, error)

	// Close releases resources.
	Close() error
}

// FeatureExtractor converts raw records into numeric feature vectors.
type FeatureExtractor interface {
	// Extract converts a raw input to a feature vector.
	Extract(data any) ([]float64, error)

	// FeatureNames returns the names of the extracted features.
	FeatureNames() []string
}

// Result is a single detection outcome for reporting.
type Result struct {
	Index     int       `json:"index"`
	Score     float64   `json:"score"`
	IsAnomaly bool      `json:"is_anomaly"`
	Features  []float64 `json:"features,omitempty"`
}

// Writer is the interface for writing detection results.
type Writer interface {
	// Write outputs a single result.
	Write(result Result) error

	// WriteAll outputs multiple results.
	WriteAll(results []Result) error
}

// JSONWriter writes results as JSON lines.
type JSONWriter struct {
	enc *json.Encoder
}

// NewJSONWriter creates a Writer emitting one JSON object per line to w.
func NewJSONWriter(w stdio.Writer) *JSONWriter {
	return &JSONWriter{enc: json.NewEncoder(w)}
}

// Write outputs a single result.
func (w *JSONWriter) Write(result Result) error {
	return w.enc.Encode(result)
}

// WriteAll outputs multiple results.
func (w *JSONWriter) WriteAll(results []Result) error {
	for _, r := range results {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}
