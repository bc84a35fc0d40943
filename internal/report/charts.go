// Package report renders run bundles as PNG charts and text tables.
package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/opensource-finance/fraudscope/internal/domain"
)

// Chart dimensions
const (
	ChartWidth  = 800
	ChartHeight = 400
)

var (
	colorSafe  = drawing.Color{R: 77, G: 184, B: 255, A: 255}
	colorFraud = drawing.Color{R: 250, G: 134, B: 94, A: 255}
	colorGrey  = drawing.Color{R: 160, G: 160, B: 160, A: 255}
)

var chartPadding = chart.Style{
	Padding: chart.Box{
		Top:    40,
		Left:   20,
		Right:  20,
		Bottom: 20,
	},
}

// Charts holds rendered charts as PNG data URIs. A chart that does not apply
// to the run is empty.
type Charts struct {
	Distribution string `json:"distribution,omitempty"`
	ROC          string `json:"roc,omitempty"`
	Confusion    string `json:"confusion,omitempty"`
	Trend        string `json:"trend,omitempty"`
}

// Chart names, also used as file names by SaveCharts.
const (
	ChartDistribution = "distribution"
	ChartConfusion    = "confusion"
	ChartROC          = "roc"
	ChartTrend        = "trend"
)

// RenderCharts renders every chart the bundle has data for.
func RenderCharts(b *domain.Bundle) (Charts, error) {
	var out Charts

	pngs, err := renderAll(b)
	for name, png := range pngs {
		uri := DataURI("image/png", png)
		switch name {
		case ChartDistribution:
			out.Distribution = uri
		case ChartConfusion:
			out.Confusion = uri
		case ChartROC:
			out.ROC = uri
		case ChartTrend:
			out.Trend = uri
		}
	}
	return out, err
}

// SaveCharts writes every chart the bundle has data for into dir as
// <name>.png and returns the written paths.
func SaveCharts(dir string, b *domain.Bundle) ([]string, error) {
	pngs, err := renderAll(b)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chart directory: %w", err)
	}

	var paths []string
	for _, name := range []string{ChartDistribution, ChartConfusion, ChartROC, ChartTrend} {
		png, ok := pngs[name]
		if !ok {
			continue
		}
		path := filepath.Join(dir, name+".png")
		if err := os.WriteFile(path, png, 0o644); err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// renderAll renders the applicable charts keyed by name. Charts rendered
// before a failure are still returned.
func renderAll(b *domain.Bundle) (map[string][]byte, error) {
	out := make(map[string][]byte, 4)

	png, err := DistributionChart(b.Distribution)
	if err != nil {
		return out, fmt.Errorf("distribution chart: %w", err)
	}
	out[ChartDistribution] = png

	if b.Evaluation != nil {
		png, err := ConfusionChart(b.Evaluation.Confusion)
		if err != nil {
			return out, fmt.Errorf("confusion chart: %w", err)
		}
		out[ChartConfusion] = png

		if len(b.Evaluation.ROC) > 0 {
			png, err := ROCChart(b.Evaluation.ROC, b.Evaluation.AUC)
			if err != nil {
				return out, fmt.Errorf("roc chart: %w", err)
			}
			out[ChartROC] = png
		}
	}

	if b.Trend != nil && len(b.Trend.Points) >= 2 {
		png, err := TrendChart(b.Trend)
		if err != nil {
			return out, fmt.Errorf("trend chart: %w", err)
		}
		out[ChartTrend] = png
	}

	return out, nil
}

// DataURI encodes data as a base64 data URI.
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DistributionChart renders the label distribution as a pie chart.
func DistributionChart(d domain.LabelDistribution) ([]byte, error) {
	var values []chart.Value
	if d.NotFraudulent > 0 {
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s (%d)", domain.LabelNotFraudulent, d.NotFraudulent),
			Value: float64(d.NotFraudulent),
			Style: chart.Style{FillColor: colorSafe},
		})
	}
	if d.PotentiallyFraudulent > 0 {
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s (%d)", domain.LabelPotentiallyFraudulent, d.PotentiallyFraudulent),
			Value: float64(d.PotentiallyFraudulent),
			Style: chart.Style{FillColor: colorFraud},
		})
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no predictions to chart")
	}

	pie := chart.PieChart{
		Title:      "Prediction Distribution",
		Background: chartPadding,
		Width:      ChartHeight,
		Height:     ChartHeight,
		Values:     values,
	}
	return render(pie)
}

// ROCChart renders the ROC curve against the chance diagonal.
func ROCChart(points []domain.ROCPoint, auc *float64) ([]byte, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("roc curve needs at least 2 points, got %d", len(points))
	}

	fpr := make([]float64, len(points))
	tpr := make([]float64, len(points))
	for i, p := range points {
		fpr[i] = p.FPR
		tpr[i] = p.TPR
	}

	name := "ROC"
	if auc != nil {
		name = fmt.Sprintf("ROC (AUC = %.3f)", *auc)
	}

	graph := chart.Chart{
		Title:      "ROC Curve",
		Background: chartPadding,
		Width:      ChartWidth,
		Height:     ChartHeight,
		XAxis:      chart.XAxis{Name: "False Positive Rate", Range: &chart.ContinuousRange{Min: 0, Max: 1}},
		YAxis:      chart.YAxis{Name: "True Positive Rate", Range: &chart.ContinuousRange{Min: 0, Max: 1}},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    name,
				XValues: fpr,
				YValues: tpr,
				Style:   chart.Style{StrokeColor: colorFraud, StrokeWidth: 2},
			},
			chart.ContinuousSeries{
				Name:    "Chance",
				XValues: []float64{0, 1},
				YValues: []float64{0, 1},
				Style:   chart.Style{StrokeColor: colorGrey, StrokeDashArray: []float64{5, 5}},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return render(graph)
}

// ConfusionChart renders the four confusion matrix cells as bars.
func ConfusionChart(m domain.ConfusionMatrix) ([]byte, error) {
	cells := []struct {
		label string
		value int
		color drawing.Color
	}{
		{"True Negative", m.TN(), colorSafe},
		{"False Positive", m.FP(), colorGrey},
		{"False Negative", m.FN(), colorGrey},
		{"True Positive", m.TP(), colorFraud},
	}

	maxValue := 1
	bars := make([]chart.Value, len(cells))
	for i, c := range cells {
		bars[i] = chart.Value{
			Label: fmt.Sprintf("%s (%d)", c.label, c.value),
			Value: float64(c.value),
			Style: chart.Style{FillColor: c.color, StrokeColor: c.color},
		}
		maxValue = max(maxValue, c.value)
	}

	bar := chart.BarChart{
		Title:      "Confusion Matrix",
		Background: chartPadding,
		Width:      ChartWidth,
		Height:     ChartHeight,
		BarWidth:   80,
		BarSpacing: 40,
		Bars:       bars,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: float64(maxValue)},
			ValueFormatter: func(v interface{}) string {
				if vf, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", vf)
				}
				return ""
			},
		},
	}
	return render(bar)
}

// TrendChart renders the daily fraud rate as a time series.
func TrendChart(trend *domain.Trend) ([]byte, error) {
	if trend == nil || len(trend.Points) < 2 {
		return nil, fmt.Errorf("trend needs at least 2 days")
	}

	dates := make([]time.Time, len(trend.Points))
	rates := make([]float64, len(trend.Points))
	for i, p := range trend.Points {
		dates[i] = p.Date
		rates[i] = p.FraudRate
	}

	graph := chart.Chart{
		Title:      "Daily Fraud Rate",
		Background: chartPadding,
		Width:      ChartWidth,
		Height:     ChartHeight,
		XAxis: chart.XAxis{
			Name:           "Date",
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01-02"),
		},
		YAxis: chart.YAxis{
			Name:  "Fraud Rate",
			Range: &chart.ContinuousRange{Min: 0, Max: 1},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Fraud Rate",
				XValues: dates,
				YValues: rates,
				Style:   chart.Style{StrokeColor: colorFraud, StrokeWidth: 2},
			},
		},
	}
	return render(graph)
}

// renderer is satisfied by every go-chart chart type.
type renderer interface {
	Render(rp chart.RendererProvider, w io.Writer) error
}

func render(c renderer) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
