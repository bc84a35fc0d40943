package domain

import (
	"time"
)

// Bundle is the analytics result of one pipeline run. It is derived from a
// single upload and never cached.
type Bundle struct {
	RunID        string       `json:"runId"`
	ModelVersion string       `json:"modelVersion"`
	Table        *ScoredTable `json:"-"`

	RowCount      int               `json:"rowCount"`
	PreventedLoss LossEstimate      `json:"preventedLoss"`
	TopRisk       []ScoredRow       `json:"-"`
	Distribution  LabelDistribution `json:"distribution"`
	RiskCounts    map[RiskLevel]int `json:"riskCounts"`

	// Optional outputs; nil when skipped or degraded
	Trend      *Trend      `json:"trend,omitempty"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`

	Alerts   []AlertMatch `json:"alerts,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
}

// FraudCount returns the number of rows predicted fraudulent.
func (b *Bundle) FraudCount() int {
	return b.Distribution.PotentiallyFraudulent
}

// LossEstimate is the sum of Amount over rows predicted fraudulent.
type LossEstimate struct {
	Amount float64 `json:"amount"`

	// Available is false when the upload has no Amount column.
	Available bool `json:"available"`

	// SkippedRows counts fraudulent rows whose Amount was empty or non-numeric.
	SkippedRows int `json:"skippedRows,omitempty"`
}

// LabelDistribution counts predictions per label.
type LabelDistribution struct {
	NotFraudulent         int `json:"notFraudulent"`
	PotentiallyFraudulent int `json:"potentiallyFraudulent"`
}

// Trend is the per-day mean predicted fraud rate.
type Trend struct {
	Points []TrendPoint `json:"points"`

	// ExcludedRows counts rows whose Time value could not be converted.
	ExcludedRows int `json:"excludedRows"`
}

// TrendPoint is one day of the trend.
type TrendPoint struct {
	Date         time.Time `json:"date"`
	FraudRate    float64   `json:"fraudRate"`
	Transactions int       `json:"transactions"`
}

// ConfusionMatrix is indexed [actual][predicted]:
//
//	[[TN, FP],
//	 [FN, TP]]
type ConfusionMatrix [2][2]int

func (m ConfusionMatrix) TN() int { return m[0][0] }
func (m ConfusionMatrix) FP() int { return m[0][1] }
func (m ConfusionMatrix) FN() int { return m[1][0] }
func (m ConfusionMatrix) TP() int { return m[1][1] }

// ROCPoint is one point of the ROC curve. Threshold is nil only on the
// leading (0, 0) anchor; the final (1, 1) point carries the lowest score.
type ROCPoint struct {
	FPR       float64  `json:"fpr"`
	TPR       float64  `json:"tpr"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// Evaluation holds supervised metrics computed against ground truth.
type Evaluation struct {
	Confusion ConfusionMatrix `json:"confusionMatrix"`

	// ROC and AUC are omitted when only one class is present.
	ROC []ROCPoint `json:"roc,omitempty"`
	AUC *float64   `json:"auc,omitempty"`

	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}
