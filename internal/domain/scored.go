package domain

// RiskLevel is one of four ordered risk tiers derived from confidence.
type RiskLevel string

const (
	RiskSafe   RiskLevel = "Safe"
	RiskLow    RiskLevel = "Low Risk"
	RiskMedium RiskLevel = "Medium Risk"
	RiskHigh   RiskLevel = "High Risk"
)

// RiskLevels lists the tiers in ascending order.
var RiskLevels = []RiskLevel{RiskSafe, RiskLow, RiskMedium, RiskHigh}

// Human-readable prediction labels
const (
	LabelNotFraudulent         = "Not Fraudulent"
	LabelPotentiallyFraudulent = "Potentially Fraudulent"
)

// Well-known analytics columns. None of them are required.
const (
	ColumnAmount = "Amount"
	ColumnClass  = "Class"
	ColumnTime   = "Time"
)

// Output columns appended to the scored table. Consumers depend on these names.
const (
	ColumnPrediction      = "Prediction"
	ColumnPredictionLabel = "Prediction_Label"
	ColumnConfidence      = "Confidence"
	ColumnRiskLevel       = "Risk_Level"
)

// PredictionLabel returns the human label for a binary prediction.
func PredictionLabel(prediction int) string {
	if prediction == 1 {
		return LabelPotentiallyFraudulent
	}
	return LabelNotFraudulent
}

// ScoredRow is an uploaded row plus its model outputs.
type ScoredRow struct {
	// Index is the zero-based position of the row in the upload.
	Index int

	// Values are the row's cells, aligned with ScoredTable.Columns.
	Values []string

	Prediction      int
	PredictionLabel string
	Confidence      float64
	RiskLevel       RiskLevel
}

// ScoredTable is the full scored upload.
type ScoredTable struct {
	// Columns are the uploaded columns followed by any zero-filled schema columns.
	Columns []string
	Rows    []ScoredRow

	index  map[string]int
	filled map[string]bool
}

// NewScoredTable creates a scored table over the given columns.
func NewScoredTable(columns []string, rows []ScoredRow) *ScoredTable {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	return &ScoredTable{Columns: columns, Rows: rows, index: idx}
}

// ColumnIndex returns the index of a column, or -1 if absent.
func (t *ScoredTable) ColumnIndex(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// HasColumn reports whether the table carries the column.
func (t *ScoredTable) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// MarkFilled records columns that were inserted by reconciliation rather
// than uploaded.
func (t *ScoredTable) MarkFilled(names ...string) {
	if len(names) == 0 {
		return
	}
	if t.filled == nil {
		t.filled = make(map[string]bool, len(names))
	}
	for _, n := range names {
		t.filled[n] = true
	}
}

// Filled reports whether the column was zero-filled.
func (t *ScoredTable) Filled(name string) bool {
	return t.filled[name]
}

// UploadedIndex returns the index of a column the upload actually carried,
// or -1 if it is absent or zero-filled.
func (t *ScoredTable) UploadedIndex(name string) int {
	if t.filled[name] {
		return -1
	}
	return t.ColumnIndex(name)
}

// Value returns the cell of row r in the named column.
func (t *ScoredTable) Value(r ScoredRow, name string) (string, bool) {
	i := t.ColumnIndex(name)
	if i < 0 || i >= len(r.Values) {
		return "", false
	}
	return r.Values[i], true
}
