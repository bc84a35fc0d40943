// Package analytics derives summary statistics from scored tables.
//
// Every function here is pure: it reads the scored table and returns a new
// value, leaving the table untouched.
package analytics

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/opensource-finance/fraudscope/internal/domain"
)

// TopRiskLimit is the number of rows kept by TopRisk.
const TopRiskLimit = 5

// PreventedLoss sums Amount over rows predicted fraudulent.
// Without an uploaded Amount column the estimate is unavailable and zero.
func PreventedLoss(t *domain.ScoredTable) domain.LossEstimate {
	idx := t.UploadedIndex(domain.ColumnAmount)
	if idx < 0 {
		return domain.LossEstimate{}
	}

	est := domain.LossEstimate{Available: true}
	for _, r := range t.Rows {
		if r.Prediction != 1 {
			continue
		}
		amount, ok := ParseNumber(r.Values[idx])
		if !ok {
			est.SkippedRows++
			continue
		}
		est.Amount += amount
	}
	return est
}

// TopRisk returns up to limit fraudulent rows ordered by descending
// confidence. Ties keep their upload order.
func TopRisk(t *domain.ScoredTable, limit int) []domain.ScoredRow {
	var flagged []domain.ScoredRow
	for _, r := range t.Rows {
		if r.Prediction == 1 {
			flagged = append(flagged, r)
		}
	}
	sort.SliceStable(flagged, func(i, j int) bool {
		return flagged[i].Confidence > flagged[j].Confidence
	})
	if limit >= 0 && len(flagged) > limit {
		flagged = flagged[:limit]
	}
	return flagged
}

// Distribution counts rows per predicted label.
func Distribution(t *domain.ScoredTable) domain.LabelDistribution {
	var d domain.LabelDistribution
	for _, r := range t.Rows {
		if r.Prediction == 1 {
			d.PotentiallyFraudulent++
		} else {
			d.NotFraudulent++
		}
	}
	return d
}

// RiskCounts counts rows per risk tier. Every tier is present in the result.
func RiskCounts(t *domain.ScoredTable) map[domain.RiskLevel]int {
	counts := make(map[domain.RiskLevel]int, len(domain.RiskLevels))
	for _, l := range domain.RiskLevels {
		counts[l] = 0
	}
	for _, r := range t.Rows {
		counts[r.RiskLevel]++
	}
	return counts
}

// ParseNumber reads a finite float from a cell.
func ParseNumber(cell string) (float64, bool) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
