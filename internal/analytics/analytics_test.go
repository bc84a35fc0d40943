package analytics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/fraudscope/internal/domain"
)

// scored builds a table from columns, cell rows, predictions and confidences.
func scored(columns []string, cells [][]string, preds []int, conf []float64) *domain.ScoredTable {
	rows := make([]domain.ScoredRow, len(cells))
	for i := range cells {
		rows[i] = domain.ScoredRow{
			Index:           i,
			Values:          cells[i],
			Prediction:      preds[i],
			PredictionLabel: domain.PredictionLabel(preds[i]),
			Confidence:      conf[i],
		}
	}
	return domain.NewScoredTable(columns, rows)
}

func TestThreeRowScenario(t *testing.T) {
	tbl := scored(
		[]string{"V1", "Amount"},
		[][]string{{"1", "100"}, {"2", "200"}, {"3", "50"}},
		[]int{1, 0, 1},
		[]float64{0.95, 0.2, 0.75},
	)

	loss := PreventedLoss(tbl)
	assert.True(t, loss.Available)
	assert.Equal(t, 150.0, loss.Amount)
	assert.Zero(t, loss.SkippedRows)

	top := TopRisk(tbl, TopRiskLimit)
	require.Len(t, top, 2)
	assert.Equal(t, 0, top[0].Index)
	assert.Equal(t, 2, top[1].Index)

	assert.Equal(t, domain.LabelDistribution{NotFraudulent: 1, PotentiallyFraudulent: 2}, Distribution(tbl))

	assert.Nil(t, BuildTrend(tbl), "no Time column")
	ev, err := BuildEvaluation(tbl)
	assert.NoError(t, err)
	assert.Nil(t, ev, "no Class column")
}

func TestPreventedLoss(t *testing.T) {
	t.Run("no amount column", func(t *testing.T) {
		tbl := scored([]string{"V1"}, [][]string{{"1"}}, []int{1}, []float64{0.9})
		assert.Equal(t, domain.LossEstimate{}, PreventedLoss(tbl))
	})

	t.Run("skips unreadable amounts", func(t *testing.T) {
		tbl := scored(
			[]string{"Amount"},
			[][]string{{"10.5"}, {""}, {"abc"}, {"4.5"}, {"1000"}},
			[]int{1, 1, 1, 1, 0},
			[]float64{0.9, 0.9, 0.9, 0.9, 0.1},
		)
		est := PreventedLoss(tbl)
		assert.True(t, est.Available)
		assert.Equal(t, 15.0, est.Amount)
		assert.Equal(t, 2, est.SkippedRows)
	})
}

func TestTopRisk(t *testing.T) {
	preds := []int{1, 1, 0, 1, 1, 1, 1, 1}
	conf := []float64{0.6, 0.99, 0.999, 0.8, 0.8, 0.7, 0.95, 0.8}
	cells := make([][]string, len(preds))
	for i := range cells {
		cells[i] = []string{}
	}
	tbl := scored(nil, cells, preds, conf)

	top := TopRisk(tbl, TopRiskLimit)
	require.Len(t, top, 5)

	var order []int
	for _, r := range top {
		assert.Equal(t, 1, r.Prediction)
		order = append(order, r.Index)
	}
	// ties at 0.8 keep upload order
	assert.Equal(t, []int{1, 6, 3, 4, 7}, order)

	assert.Empty(t, TopRisk(scored(nil, [][]string{{}}, []int{0}, []float64{0.1}), TopRiskLimit))
}

func TestRiskCounts(t *testing.T) {
	tbl := domain.NewScoredTable(nil, []domain.ScoredRow{
		{RiskLevel: domain.RiskHigh},
		{RiskLevel: domain.RiskSafe},
		{RiskLevel: domain.RiskHigh},
	})
	counts := RiskCounts(tbl)
	assert.Len(t, counts, 4)
	assert.Equal(t, 2, counts[domain.RiskHigh])
	assert.Equal(t, 1, counts[domain.RiskSafe])
	assert.Equal(t, 0, counts[domain.RiskLow])
}

func TestBuildTrend(t *testing.T) {
	day := int64(86400)
	tbl := scored(
		[]string{"Time"},
		[][]string{
			{"0"},
			{"3600"},
			{"86400.5"},
			{"-1"},
			{"not a time"},
			{""},
			{"1e12"},
			{"inf"},
		},
		[]int{1, 0, 1, 1, 1, 1, 1, 1},
		[]float64{0.9, 0.1, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9},
	)

	trend := BuildTrend(tbl)
	require.NotNil(t, trend)
	assert.Equal(t, 4, trend.ExcludedRows)
	require.Len(t, trend.Points, 3)

	assert.Equal(t, time.Unix(-day, 0).UTC(), trend.Points[0].Date)
	assert.Equal(t, 1.0, trend.Points[0].FraudRate)

	assert.Equal(t, time.Unix(0, 0).UTC(), trend.Points[1].Date)
	assert.Equal(t, 0.5, trend.Points[1].FraudRate)
	assert.Equal(t, 2, trend.Points[1].Transactions)

	assert.Equal(t, time.Unix(day, 0).UTC(), trend.Points[2].Date)
}

func TestBuildEvaluation(t *testing.T) {
	t.Run("metrics", func(t *testing.T) {
		tbl := scored(
			[]string{"Class"},
			[][]string{{"1"}, {"0"}, {"1.0"}, {"0.0"}, {" 1 "}},
			[]int{1, 0, 0, 1, 1},
			[]float64{0.9, 0.2, 0.4, 0.6, 0.8},
		)
		ev, err := BuildEvaluation(tbl)
		require.NoError(t, err)
		require.NotNil(t, ev)

		assert.Equal(t, domain.ConfusionMatrix{{1, 1}, {1, 2}}, ev.Confusion)
		assert.Equal(t, 1, ev.Confusion.TN())
		assert.Equal(t, 1, ev.Confusion.FP())
		assert.Equal(t, 1, ev.Confusion.FN())
		assert.Equal(t, 2, ev.Confusion.TP())

		assert.InDelta(t, 0.6, ev.Accuracy, 1e-12)
		assert.InDelta(t, 2.0/3, ev.Precision, 1e-12)
		assert.InDelta(t, 2.0/3, ev.Recall, 1e-12)
		assert.InDelta(t, 2.0/3, ev.F1, 1e-12)

		require.NotEmpty(t, ev.ROC)
		first, last := ev.ROC[0], ev.ROC[len(ev.ROC)-1]
		assert.Equal(t, 0.0, first.FPR)
		assert.Equal(t, 0.0, first.TPR)
		assert.Nil(t, first.Threshold)
		assert.Equal(t, 1.0, last.FPR)
		assert.Equal(t, 1.0, last.TPR)
		require.NotNil(t, last.Threshold)
		assert.Equal(t, 0.2, *last.Threshold)

		for i := 2; i < len(ev.ROC); i++ {
			assert.Greater(t, *ev.ROC[i-1].Threshold, *ev.ROC[i].Threshold)
		}

		// positives 0.9, 0.8, 0.4; negatives 0.6, 0.2
		require.NotNil(t, ev.AUC)
		assert.InDelta(t, 5.0/6, *ev.AUC, 1e-12)
	})

	t.Run("single class keeps confusion only", func(t *testing.T) {
		tbl := scored([]string{"Class"}, [][]string{{"0"}, {"0"}}, []int{0, 1}, []float64{0.1, 0.7})
		ev, err := BuildEvaluation(tbl)
		require.NoError(t, err)
		assert.Nil(t, ev.ROC)
		assert.Nil(t, ev.AUC)
		assert.Equal(t, domain.ConfusionMatrix{{1, 1}, {0, 0}}, ev.Confusion)
	})

	t.Run("non-binary value", func(t *testing.T) {
		for _, bad := range []string{"2", "", "yes", "0.5"} {
			tbl := scored([]string{"Class"}, [][]string{{"1"}, {bad}}, []int{1, 0}, []float64{0.9, 0.1})
			ev, err := BuildEvaluation(tbl)
			assert.Nil(t, ev)

			var evalErr *domain.EvaluationError
			require.True(t, errors.As(err, &evalErr), "value %q", bad)
			assert.Equal(t, 1, evalErr.Row)
			assert.Equal(t, bad, evalErr.Value)
		}
	})
}

func TestROCTies(t *testing.T) {
	points := ROC([]int{1, 0, 1, 0}, []float64{0.5, 0.5, 0.5, 0.5})
	require.Len(t, points, 2)
	assert.Equal(t, 1.0, points[1].FPR)
	assert.Equal(t, 1.0, points[1].TPR)
	assert.Nil(t, points[0].Threshold)
	require.NotNil(t, points[1].Threshold)
	assert.Equal(t, 0.5, *points[1].Threshold)
	assert.InDelta(t, 0.5, AUC(points), 1e-12)
}

func TestEvaluateLengthMismatch(t *testing.T) {
	_, err := Evaluate([]int{0, 1}, []int{0}, nil)
	assert.Error(t, err)

	ev, err := Evaluate([]int{0, 1}, []int{0, 1}, nil)
	require.NoError(t, err)
	assert.Nil(t, ev.ROC)
	assert.Equal(t, 1.0, ev.Accuracy)
}

func TestZeroFilledColumnsAreAbsent(t *testing.T) {
	tbl := scored(
		[]string{"V1", "Time", "Amount", "Class"},
		[][]string{{"1", "0", "0", "0"}, {"2", "0", "0", "0"}},
		[]int{1, 0},
		[]float64{0.8, 0.3},
	)
	tbl.MarkFilled("Time", "Amount", "Class")

	assert.True(t, tbl.HasColumn("Amount"))
	assert.Equal(t, -1, tbl.UploadedIndex("Amount"))

	assert.Equal(t, domain.LossEstimate{}, PreventedLoss(tbl))
	assert.Nil(t, BuildTrend(tbl))

	ev, err := BuildEvaluation(tbl)
	require.NoError(t, err)
	assert.Nil(t, ev)
}
