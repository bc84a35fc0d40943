package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/opensource-finance/fraudscope/internal/domain"
)

// FormatCurrency renders an amount as dollars with thousands separators.
func FormatCurrency(amount float64) string {
	if amount < 0 {
		return "-$" + humanize.FormatFloat("#,###.##", -amount)
	}
	return "$" + humanize.FormatFloat("#,###.##", amount)
}

// FormatPercent renders a ratio as a percentage with two decimals.
func FormatPercent(ratio float64) string {
	return strconv.FormatFloat(ratio*100, 'f', 2, 64) + "%"
}

// WriteSummary writes the headline figures of a run.
func WriteSummary(w io.Writer, b *domain.Bundle) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	loss := "N/A (no Amount column)"
	if b.PreventedLoss.Available {
		loss = FormatCurrency(b.PreventedLoss.Amount)
	}

	table.Append([]string{"Run", b.RunID})
	table.Append([]string{"Model", b.ModelVersion})
	table.Append([]string{"Transactions", strconv.Itoa(b.RowCount)})
	table.Append([]string{domain.LabelNotFraudulent, strconv.Itoa(b.Distribution.NotFraudulent)})
	table.Append([]string{domain.LabelPotentiallyFraudulent, strconv.Itoa(b.Distribution.PotentiallyFraudulent)})
	table.Append([]string{"Prevented Loss", loss})
	for _, level := range domain.RiskLevels {
		table.Append([]string{string(level), strconv.Itoa(b.RiskCounts[level])})
	}
	if len(b.Alerts) > 0 {
		table.Append([]string{"Alerts", strconv.Itoa(len(b.Alerts))})
	}

	table.Render()

	for _, warning := range b.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

// WriteTopRisk writes the highest-confidence fraudulent rows. Only the given
// columns of the original upload are shown, when present.
func WriteTopRisk(w io.Writer, b *domain.Bundle, columns ...string) {
	if len(b.TopRisk) == 0 {
		fmt.Fprintln(w, "No transactions predicted fraudulent.")
		return
	}

	var shown []string
	for _, c := range columns {
		if b.Table != nil && b.Table.UploadedIndex(c) >= 0 {
			shown = append(shown, c)
		}
	}

	table := tablewriter.NewWriter(w)
	header := append([]string{"Row"}, shown...)
	table.SetHeader(append(header, domain.ColumnConfidence, domain.ColumnRiskLevel))

	for _, r := range b.TopRisk {
		row := []string{strconv.Itoa(r.Index)}
		for _, c := range shown {
			v, _ := b.Table.Value(r, c)
			row = append(row, v)
		}
		row = append(row, strconv.FormatFloat(r.Confidence, 'f', 4, 64), string(r.RiskLevel))
		table.Append(row)
	}

	table.Render()
}

// WriteEvaluation writes the confusion matrix and supervised metrics.
func WriteEvaluation(w io.Writer, e *domain.Evaluation) {
	if e == nil {
		fmt.Fprintln(w, "Evaluation skipped (no usable Class column).")
		return
	}

	matrix := tablewriter.NewWriter(w)
	matrix.SetHeader([]string{"", "Predicted 0", "Predicted 1"})
	matrix.Append([]string{"Actual 0", strconv.Itoa(e.Confusion.TN()), strconv.Itoa(e.Confusion.FP())})
	matrix.Append([]string{"Actual 1", strconv.Itoa(e.Confusion.FN()), strconv.Itoa(e.Confusion.TP())})
	matrix.Render()

	auc := "N/A (single class)"
	if e.AUC != nil {
		auc = strconv.FormatFloat(*e.AUC, 'f', 4, 64)
	}

	metrics := tablewriter.NewWriter(w)
	metrics.SetHeader([]string{"Metric", "Value"})
	metrics.SetAlignment(tablewriter.ALIGN_LEFT)
	metrics.Append([]string{"Accuracy", FormatPercent(e.Accuracy)})
	metrics.Append([]string{"Precision", FormatPercent(e.Precision)})
	metrics.Append([]string{"Recall", FormatPercent(e.Recall)})
	metrics.Append([]string{"F1", strconv.FormatFloat(e.F1, 'f', 4, 64)})
	metrics.Append([]string{"AUC", auc})
	metrics.Render()
}

// WriteTrend writes the daily fraud rate.
func WriteTrend(w io.Writer, t *domain.Trend) {
	if t == nil {
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Date", "Transactions", "Fraud Rate"})
	for _, p := range t.Points {
		table.Append([]string{p.Date.Format("2006-01-02"), strconv.Itoa(p.Transactions), FormatPercent(p.FraudRate)})
	}
	table.Render()

	if t.ExcludedRows > 0 {
		fmt.Fprintf(w, "%d rows excluded from the trend (unreadable Time)\n", t.ExcludedRows)
	}
}
