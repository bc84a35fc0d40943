package pipeline

import (
	"bytes"
	"strconv"

	"github.com/opensource-finance/fraudscope/internal/domain"
	"github.com/opensource-finance/fraudscope/internal/table"
)

// ResultsFilename is the name of the downloadable scored CSV.
const ResultsFilename = "predictions.csv"

// FormatConfidence renders a probability with the shortest exact representation.
func FormatConfidence(p float64) string {
	return strconv.FormatFloat(p, 'g', -1, 64)
}

// ResultsCSV encodes the scored table with every output column.
func ResultsCSV(t *domain.ScoredTable) ([]byte, error) {
	return encode(Results(t, t.Rows))
}

// PredictionsCSV encodes the scored table with only Prediction and
// Confidence added.
func PredictionsCSV(t *domain.ScoredTable) ([]byte, error) {
	return encode(Predictions(t))
}

// outputColumn is a derived column written for every scored row.
type outputColumn struct {
	name  string
	value func(r domain.ScoredRow) string
}

var (
	predictionColumn = outputColumn{domain.ColumnPrediction, func(r domain.ScoredRow) string { return strconv.Itoa(r.Prediction) }}
	labelColumn      = outputColumn{domain.ColumnPredictionLabel, func(r domain.ScoredRow) string { return r.PredictionLabel }}
	confidenceColumn = outputColumn{domain.ColumnConfidence, func(r domain.ScoredRow) string { return FormatConfidence(r.Confidence) }}
	riskColumn       = outputColumn{domain.ColumnRiskLevel, func(r domain.ScoredRow) string { return string(r.RiskLevel) }}
)

// Results returns the header and records of the given rows of t with every
// output column written.
func Results(t *domain.ScoredTable, rows []domain.ScoredRow) ([]string, [][]string) {
	return project(t, rows, predictionColumn, labelColumn, confidenceColumn, riskColumn)
}

// Predictions returns the header and records of t with only Prediction and
// Confidence written.
func Predictions(t *domain.ScoredTable) ([]string, [][]string) {
	return project(t, t.Rows, predictionColumn, confidenceColumn)
}

// project copies the rows and writes each output column. An uploaded column
// with the same name is overwritten in place; otherwise the column is
// appended. Row values are never aliased.
func project(t *domain.ScoredTable, rows []domain.ScoredRow, outputs ...outputColumn) ([]string, [][]string) {
	columns := append([]string(nil), t.Columns...)
	slots := make([]int, len(outputs))
	for k, o := range outputs {
		if i := t.ColumnIndex(o.name); i >= 0 {
			slots[k] = i
			continue
		}
		slots[k] = len(columns)
		columns = append(columns, o.name)
	}

	records := make([][]string, len(rows))
	for i, r := range rows {
		rec := make([]string, len(columns))
		copy(rec, r.Values)
		for k, o := range outputs {
			rec[slots[k]] = o.value(r)
		}
		records[i] = rec
	}
	return columns, records
}

func encode(columns []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	if err := table.WriteCSV(&buf, columns, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
