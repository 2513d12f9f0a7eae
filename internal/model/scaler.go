package model

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes features to zero mean and unit variance. An unfitted
// scaler refuses to transform; the classifier treats that as a model-path
// failure and serves the rule path instead.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes column means and standard deviations from the training
// matrix. Constant columns get unit std so they pass through unchanged.
func FitScaler(x [][]float64) (*Scaler, error) {
	if len(x) == 0 || len(x[0]) == 0 {
		return nil, fmt.Errorf("empty training matrix")
	}
	cols := len(x[0])
	s := &Scaler{Mean: make([]float64, cols), Std: make([]float64, cols)}

	col := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		for i, row := range x {
			if len(row) != cols {
				return nil, fmt.Errorf("ragged training matrix at row %d", i)
			}
			col[i] = row[j]
		}
		s.Mean[j] = stat.Mean(col, nil)
		s.Std[j] = stat.StdDev(col, nil)
		if s.Std[j] == 0 || math.IsNaN(s.Std[j]) {
			s.Std[j] = 1
		}
	}
	return s, nil
}

// Fitted reports whether the scaler carries usable parameters.
func (s *Scaler) Fitted() bool {
	return s != nil && len(s.Mean) > 0 && len(s.Mean) == len(s.Std)
}

// Transform standardizes one feature row.
func (s *Scaler) Transform(row []float64) ([]float64, error) {
	if !s.Fitted() {
		return nil, fmt.Errorf("scaler is not fitted")
	}
	if len(row) != len(s.Mean) {
		return nil, fmt.Errorf("feature width %d does not match scaler width %d", len(row), len(s.Mean))
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out, nil
}

func (s *Scaler) MarshalBinary() ([]byte, error) {
	return json.Marshal(s)
}

func UnmarshalScaler(data []byte) (*Scaler, error) {
	var s Scaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode scaler: %w", err)
	}
	return &s, nil
}
