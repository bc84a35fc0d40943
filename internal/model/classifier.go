package model

import (
	"fmt"
	"math"
)

// Classifier is a frozen binary classifier over scaled feature rows.
type Classifier interface {
	// Predict returns the binary label {0, 1} for each row.
	Predict(x [][]float64) ([]int, error)

	// PredictProba returns the positive-class probability for each row.
	PredictProba(x [][]float64) ([]float64, error)

	// NumFeatures returns the expected row width.
	NumFeatures() int
}

// LogisticRegression is a linear classifier with a sigmoid link.
type LogisticRegression struct {
	coef      []float64
	intercept float64
}

// NewLogisticRegression creates a classifier from trained weights.
func NewLogisticRegression(coef []float64, intercept float64) (*LogisticRegression, error) {
	if len(coef) == 0 {
		return nil, fmt.Errorf("logistic regression has no coefficients")
	}
	for i, c := range coef {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("coefficient %d is not finite", i)
		}
	}
	if math.IsNaN(intercept) || math.IsInf(intercept, 0) {
		return nil, fmt.Errorf("intercept is not finite")
	}
	return &LogisticRegression{
		coef:      append([]float64(nil), coef...),
		intercept: intercept,
	}, nil
}

// NumFeatures returns the expected row width.
func (m *LogisticRegression) NumFeatures() int {
	return len(m.coef)
}

// DecisionFunction returns the signed distance of each row to the boundary.
func (m *LogisticRegression) DecisionFunction(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != len(m.coef) {
			return nil, fmt.Errorf("row %d has %d features, classifier expects %d", i, len(row), len(m.coef))
		}
		z := m.intercept
		for j, v := range row {
			z += m.coef[j] * v
		}
		out[i] = z
	}
	return out, nil
}

// Predict labels a row 1 when its decision value is positive.
func (m *LogisticRegression) Predict(x [][]float64) ([]int, error) {
	z, err := m.DecisionFunction(x)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(z))
	for i, v := range z {
		if v > 0 {
			labels[i] = 1
		}
	}
	return labels, nil
}

// PredictProba returns sigmoid(decision) for each row.
func (m *LogisticRegression) PredictProba(x [][]float64) ([]float64, error) {
	z, err := m.DecisionFunction(x)
	if err != nil {
		return nil, err
	}
	p := make([]float64, len(z))
	for i, v := range z {
		p[i] = sigmoid(v)
	}
	return p, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
