package model

import (
	"fmt"
	"math"
)

// StandardScaler applies a frozen per-feature (x - mean) / scale transform.
type StandardScaler struct {
	mean  []float64
	scale []float64
}

// NewStandardScaler creates a scaler from training-time parameters.
// A zero scale is treated as 1, leaving constant features centred only.
func NewStandardScaler(mean, scale []float64) (*StandardScaler, error) {
	if len(mean) == 0 {
		return nil, fmt.Errorf("scaler has no parameters")
	}
	if len(mean) != len(scale) {
		return nil, fmt.Errorf("scaler mean has %d values, scale has %d", len(mean), len(scale))
	}

	s := &StandardScaler{
		mean:  append([]float64(nil), mean...),
		scale: make([]float64, len(scale)),
	}
	for i, v := range scale {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.IsNaN(mean[i]) || math.IsInf(mean[i], 0) {
			return nil, fmt.Errorf("scaler parameter %d is not finite", i)
		}
		if v == 0 {
			v = 1
		}
		s.scale[i] = v
	}
	return s, nil
}

// NumFeatures returns the expected row width.
func (s *StandardScaler) NumFeatures() int {
	return len(s.mean)
}

// Transform returns a scaled copy of x. The input is not modified.
func (s *StandardScaler) Transform(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != len(s.mean) {
			return nil, fmt.Errorf("row %d has %d features, scaler expects %d", i, len(row), len(s.mean))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.mean[j]) / s.scale[j]
		}
		out[i] = scaled
	}
	return out, nil
}
