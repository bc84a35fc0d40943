package scoring

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/opensource-finance/fraudscope/internal/domain"
	"github.com/opensource-finance/fraudscope/internal/model"
)

// Scorer applies the frozen scaler and classifier to reconciled tables.
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	artifacts *model.Artifacts
}

// NewScorer creates a scorer over loaded artifacts.
func NewScorer(artifacts *model.Artifacts) *Scorer {
	return &Scorer{artifacts: artifacts}
}

// Artifacts returns the frozen artifacts the scorer uses.
func (s *Scorer) Artifacts() *model.Artifacts {
	return s.artifacts
}

// Score converts the feature view to a numeric matrix, runs the scaler and
// classifier, and returns the scored table. The view's underlying table is
// not modified.
func (s *Scorer) Score(v *FeatureView) (*domain.ScoredTable, error) {
	schema := s.artifacts.Schema
	actual := v.table.Columns

	if !slices.Equal(v.Columns, []string(schema)) {
		return nil, &domain.ScoringError{
			Reason:   "feature columns do not match the model schema",
			Row:      -1,
			Expected: schema,
			Actual:   v.Columns,
		}
	}

	x := make([][]float64, v.Len())
	for i := range x {
		row := make([]float64, len(schema))
		for j, name := range schema {
			f, err := parseFeature(v.Cell(i, j))
			if err != nil {
				return nil, &domain.ScoringError{
					Reason:   "feature value is not a finite number",
					Row:      i,
					Column:   name,
					Expected: schema,
					Actual:   actual,
					Err:      err,
				}
			}
			row[j] = f
		}
		x[i] = row
	}

	scaled, err := s.artifacts.Scaler.Transform(x)
	if err != nil {
		return nil, &domain.ScoringError{Reason: "scaler rejected the feature matrix", Row: -1, Expected: schema, Actual: actual, Err: err}
	}
	labels, err := s.artifacts.Classifier.Predict(scaled)
	if err != nil {
		return nil, &domain.ScoringError{Reason: "classifier rejected the feature matrix", Row: -1, Expected: schema, Actual: actual, Err: err}
	}
	proba, err := s.artifacts.Classifier.PredictProba(scaled)
	if err != nil {
		return nil, &domain.ScoringError{Reason: "classifier rejected the feature matrix", Row: -1, Expected: schema, Actual: actual, Err: err}
	}
	if len(labels) != len(x) || len(proba) != len(x) {
		return nil, &domain.ScoringError{
			Reason: fmt.Sprintf("classifier returned %d labels and %d probabilities for %d rows", len(labels), len(proba), len(x)),
			Row:    -1,
		}
	}

	columns := append([]string(nil), actual...)
	rows := make([]domain.ScoredRow, len(x))
	for i := range rows {
		level, err := ClassifyRisk(proba[i])
		if err != nil {
			return nil, err
		}
		rows[i] = domain.ScoredRow{
			Index:           i,
			Values:          append([]string(nil), v.table.Rows[i]...),
			Prediction:      labels[i],
			PredictionLabel: domain.PredictionLabel(labels[i]),
			Confidence:      proba[i],
			RiskLevel:       level,
		}
	}

	scored := domain.NewScoredTable(columns, rows)
	scored.MarkFilled(v.Missing...)
	return scored, nil
}

func parseFeature(cell string) (float64, error) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", cell)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %q", cell)
	}
	return f, nil
}
