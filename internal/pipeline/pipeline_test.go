package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/fraudscope/internal/bus"
	"github.com/opensource-finance/fraudscope/internal/domain"
	"github.com/opensource-finance/fraudscope/internal/model"
	"github.com/opensource-finance/fraudscope/internal/rules"
	"github.com/opensource-finance/fraudscope/internal/table"
)

// proba = sigmoid(V1), so V1 picks the tier directly.
const testArtifact = `{
	"version": "test-1",
	"features": ["V1", "V2"],
	"scaler": {"mean": [0, 0], "scale": [1, 0]},
	"classifier": {"type": "logistic_regression", "coef": [1, 0], "intercept": 0}
}`

const threeRows = "Time,V1,Amount,Class\n" +
	"0,3,100,1\n" +
	"3600,-3,999,0\n" +
	"90000,1.5,50,1\n"

func testProcessor(t *testing.T, engine *rules.Engine, b domain.EventBus) *Processor {
	t.Helper()
	artifacts, err := model.Parse([]byte(testArtifact))
	require.NoError(t, err)
	return NewProcessor(artifacts, engine, b)
}

func TestProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("three row scenario", func(t *testing.T) {
		p := testProcessor(t, nil, nil)

		b, err := p.Process(ctx, &RunInput{Data: []byte(threeRows), Filename: "tx.csv", Source: SourceAnalyze})
		require.NoError(t, err)

		assert.NotEmpty(t, b.RunID)
		assert.Equal(t, "test-1", b.ModelVersion)
		assert.Equal(t, 3, b.RowCount)

		assert.True(t, b.PreventedLoss.Available)
		assert.InDelta(t, 150.0, b.PreventedLoss.Amount, 1e-9)

		levels := make([]domain.RiskLevel, len(b.Table.Rows))
		for i, r := range b.Table.Rows {
			levels[i] = r.RiskLevel
		}
		assert.Equal(t, []domain.RiskLevel{domain.RiskHigh, domain.RiskSafe, domain.RiskMedium}, levels)

		require.Len(t, b.TopRisk, 2)
		assert.Equal(t, 0, b.TopRisk[0].Index)
		assert.Equal(t, 2, b.TopRisk[1].Index)

		assert.Equal(t, domain.LabelDistribution{NotFraudulent: 1, PotentiallyFraudulent: 2}, b.Distribution)

		// V2 was absent and zero-filled
		assert.True(t, b.Table.HasColumn("V2"))

		require.NotNil(t, b.Trend)
		require.Len(t, b.Trend.Points, 2)
		assert.InDelta(t, 0.5, b.Trend.Points[0].FraudRate, 1e-9)
		assert.InDelta(t, 1.0, b.Trend.Points[1].FraudRate, 1e-9)

		require.NotNil(t, b.Evaluation)
		assert.Equal(t, domain.ConfusionMatrix{{1, 0}, {0, 2}}, b.Evaluation.Confusion)
		require.NotNil(t, b.Evaluation.AUC)
		assert.InDelta(t, 1.0, *b.Evaluation.AUC, 1e-9)
		assert.Empty(t, b.Warnings)
	})

	t.Run("no time and no class", func(t *testing.T) {
		p := testProcessor(t, nil, nil)

		b, err := p.Process(ctx, &RunInput{Data: []byte("V1,V2\n2,0\n-2,0\n"), Source: SourceAnalyze})
		require.NoError(t, err)

		assert.Nil(t, b.Trend)
		assert.Nil(t, b.Evaluation)
		assert.False(t, b.PreventedLoss.Available)
		assert.Zero(t, b.PreventedLoss.Amount)
		assert.Equal(t, 2, b.RowCount)
	})

	t.Run("malformed bytes", func(t *testing.T) {
		p := testProcessor(t, nil, nil)

		_, err := p.Process(ctx, &RunInput{Data: []byte{0xff, 0xfe, 0x00, 0x41}, Source: SourcePredictCSV})
		require.Error(t, err)

		var schemaErr *domain.SchemaError
		require.True(t, errors.As(err, &schemaErr))
		assert.Equal(t, []string{"V1", "V2"}, schemaErr.Expected)
		assert.Nil(t, schemaErr.Actual)
	})

	t.Run("non numeric feature", func(t *testing.T) {
		p := testProcessor(t, nil, nil)

		_, err := p.Process(ctx, &RunInput{Data: []byte("V1,V2\nabc,0\n"), Source: SourceAnalyze})
		var scoringErr *domain.ScoringError
		require.True(t, errors.As(err, &scoringErr))
		assert.Equal(t, 0, scoringErr.Row)
		assert.Equal(t, "V1", scoringErr.Column)
	})

	t.Run("bad class becomes a warning", func(t *testing.T) {
		p := testProcessor(t, nil, nil)

		b, err := p.Process(ctx, &RunInput{Data: []byte("V1,Class\n1,yes\n"), Source: SourceAnalyze})
		require.NoError(t, err)
		assert.Nil(t, b.Evaluation)
		require.Len(t, b.Warnings, 1)
		assert.Contains(t, b.Warnings[0], "evaluation error")
		assert.Len(t, b.Table.Rows, 1)
	})

	t.Run("deterministic output", func(t *testing.T) {
		p := testProcessor(t, nil, nil)

		first, err := p.Process(ctx, &RunInput{Data: []byte(threeRows), Source: SourcePredictCSV})
		require.NoError(t, err)
		second, err := p.Process(ctx, &RunInput{Data: []byte(threeRows), Source: SourcePredictCSV})
		require.NoError(t, err)

		a, err := PredictionsCSV(first.Table)
		require.NoError(t, err)
		c, err := PredictionsCSV(second.Table)
		require.NoError(t, err)
		assert.Equal(t, a, c)
	})

	t.Run("rescoring its own output", func(t *testing.T) {
		p := testProcessor(t, nil, nil)

		first, err := p.Process(ctx, &RunInput{Data: []byte(threeRows), Source: SourceAnalyze})
		require.NoError(t, err)
		out, err := ResultsCSV(first.Table)
		require.NoError(t, err)

		second, err := p.Process(ctx, &RunInput{Data: out, Source: SourceAnalyze})
		require.NoError(t, err)
		again, err := ResultsCSV(second.Table)
		require.NoError(t, err)

		parsed, err := table.Parse(again)
		require.NoError(t, err)
		assert.Equal(t, first.Table.Columns, second.Table.Columns[:len(first.Table.Columns)])
		assert.Equal(t, out, again)
		assert.Len(t, parsed.Columns, len(first.Table.Columns)+4)
	})

	t.Run("unversioned artifact", func(t *testing.T) {
		artifacts, err := model.Parse([]byte(`{"features":["V1"],"scaler":{"mean":[0],"scale":[1]},"classifier":{"type":"logistic_regression","coef":[1]}}`))
		require.NoError(t, err)
		p := NewProcessor(artifacts, nil, nil)

		b, err := p.Process(ctx, &RunInput{Data: []byte("V1\n1\n"), Source: SourceCLI})
		require.NoError(t, err)
		assert.Equal(t, model.Unversioned, b.ModelVersion)
		assert.Equal(t, model.Unversioned, p.ModelVersion())
	})

	t.Run("caller run id", func(t *testing.T) {
		p := testProcessor(t, nil, nil)

		b, err := p.Process(ctx, &RunInput{RunID: "run-fixed", Data: []byte(threeRows), Source: SourceCLI})
		require.NoError(t, err)
		assert.Equal(t, "run-fixed", b.RunID)
	})
}

// Time and Amount are features here, as in the bundled model, so an upload
// without them gets both zero-filled.
const timeAmountArtifact = `{
	"version": "test-2",
	"features": ["Time", "V1", "Amount"],
	"scaler": {"mean": [0, 0, 0], "scale": [1, 1, 1]},
	"classifier": {"type": "logistic_regression", "coef": [0, 1, 0], "intercept": 0}
}`

func TestProcessZeroFilledAnalyticsColumns(t *testing.T) {
	artifacts, err := model.Parse([]byte(timeAmountArtifact))
	require.NoError(t, err)

	engine, err := rules.NewEngine(2)
	require.NoError(t, err)
	defer engine.Close()
	require.NoError(t, engine.LoadPolicies([]domain.AlertPolicy{{
		ID:         "has-amount",
		Expression: "has_amount",
		Enabled:    true,
	}}))

	p := NewProcessor(artifacts, engine, nil)
	ctx := context.Background()

	t.Run("filled columns are not uploaded data", func(t *testing.T) {
		b, err := p.Process(ctx, &RunInput{Data: []byte("V1,V2\n1,2\n-1,0.5\n"), Source: SourceAnalyze})
		require.NoError(t, err)

		assert.True(t, b.Table.HasColumn(domain.ColumnTime))
		assert.True(t, b.Table.HasColumn(domain.ColumnAmount))
		assert.True(t, b.Table.Filled(domain.ColumnTime))
		assert.True(t, b.Table.Filled(domain.ColumnAmount))

		assert.Nil(t, b.Trend)
		assert.False(t, b.PreventedLoss.Available)
		assert.Zero(t, b.PreventedLoss.Amount)
		assert.Nil(t, b.Evaluation)
		assert.Empty(t, b.Alerts)
	})

	t.Run("uploaded columns still drive analytics", func(t *testing.T) {
		b, err := p.Process(ctx, &RunInput{Data: []byte(threeRows), Source: SourceAnalyze})
		require.NoError(t, err)

		assert.False(t, b.Table.Filled(domain.ColumnTime))
		require.NotNil(t, b.Trend)
		assert.Len(t, b.Trend.Points, 2)
		assert.True(t, b.PreventedLoss.Available)
		assert.InDelta(t, 150.0, b.PreventedLoss.Amount, 1e-9)
		require.NotNil(t, b.Evaluation)
		assert.Len(t, b.Alerts, 3)
	})
}

func TestProcessAlerts(t *testing.T) {
	engine, err := rules.NewEngine(4)
	require.NoError(t, err)
	defer engine.Close()

	require.NoError(t, engine.LoadPolicies([]domain.AlertPolicy{{
		ID:         "high-risk-amount",
		Name:       "High risk with amount",
		Expression: `risk_level == "High Risk" && has_amount && amount >= 100.0`,
		Reason:     "high risk transaction over 100",
		Enabled:    true,
	}}))

	p := testProcessor(t, engine, nil)

	b, err := p.Process(context.Background(), &RunInput{Data: []byte(threeRows), Source: SourceAnalyze})
	require.NoError(t, err)

	require.Len(t, b.Alerts, 1)
	assert.Equal(t, "high-risk-amount", b.Alerts[0].PolicyID)
	assert.Equal(t, 0, b.Alerts[0].RowIndex)
	assert.Equal(t, domain.AlertOutcomeMatch, b.Alerts[0].Outcome)
}

func TestProcessPublishesSummary(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	var mu sync.Mutex
	var runs []domain.RunSummary
	_, err := eventBus.Subscribe(context.Background(), domain.TopicRunCompleted, func(ctx context.Context, msg *domain.Message) error {
		var run domain.RunSummary
		if err := json.Unmarshal(msg.Payload, &run); err != nil {
			return err
		}
		mu.Lock()
		runs = append(runs, run)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	p := testProcessor(t, nil, eventBus)
	ctx := context.Background()

	_, err = p.Process(ctx, &RunInput{RunID: "ok", Data: []byte(threeRows), Filename: "tx.csv", Source: SourceAnalyze})
	require.NoError(t, err)
	_, err = p.Process(ctx, &RunInput{RunID: "bad", Data: []byte(""), Source: SourcePredictCSV})
	require.Error(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(runs) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	byID := map[string]domain.RunSummary{}
	for _, r := range runs {
		byID[r.ID] = r
	}

	ok := byID["ok"]
	assert.Equal(t, domain.RunStatusSucceeded, ok.Status)
	assert.Equal(t, 3, ok.RowCount)
	assert.Equal(t, 2, ok.FraudCount)
	assert.InDelta(t, 150.0, ok.PreventedLoss, 1e-9)
	assert.Equal(t, "tx.csv", ok.Filename)

	bad := byID["bad"]
	assert.Equal(t, domain.RunStatusFailed, bad.Status)
	assert.Equal(t, domain.KindSchema, bad.ErrorKind)
}

func TestOutputCSV(t *testing.T) {
	tbl := domain.NewScoredTable(
		[]string{"V1", "Amount"},
		[]domain.ScoredRow{
			{Index: 0, Values: []string{"3", "100"}, Prediction: 1, PredictionLabel: domain.LabelPotentiallyFraudulent, Confidence: 0.95, RiskLevel: domain.RiskHigh},
			{Index: 1, Values: []string{"-3", "9,99"}, Prediction: 0, PredictionLabel: domain.LabelNotFraudulent, Confidence: 0.25, RiskLevel: domain.RiskSafe},
		},
	)

	t.Run("predictions", func(t *testing.T) {
		data, err := PredictionsCSV(tbl)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "V1,Amount,Prediction,Confidence", lines[0])
		assert.Equal(t, "3,100,1,0.95", lines[1])
		assert.Equal(t, `-3,"9,99",0,0.25`, lines[2])
	})

	t.Run("results", func(t *testing.T) {
		data, err := ResultsCSV(tbl)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		assert.Equal(t, "V1,Amount,Prediction,Prediction_Label,Confidence,Risk_Level", lines[0])
		assert.Equal(t, "3,100,1,Potentially Fraudulent,0.95,High Risk", lines[1])
	})

	t.Run("existing output columns are overwritten", func(t *testing.T) {
		stale := domain.NewScoredTable(
			[]string{"V1", "Prediction", "Confidence"},
			[]domain.ScoredRow{
				{Index: 0, Values: []string{"3", "0", "0.1"}, Prediction: 1, PredictionLabel: domain.LabelPotentiallyFraudulent, Confidence: 0.95, RiskLevel: domain.RiskHigh},
			},
		)

		data, err := PredictionsCSV(stale)
		require.NoError(t, err)
		assert.Equal(t, "V1,Prediction,Confidence\n3,1,0.95\n", string(data))

		data, err = ResultsCSV(stale)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		assert.Equal(t, "V1,Prediction,Confidence,Prediction_Label,Risk_Level", lines[0])
		assert.Equal(t, "3,1,0.95,Potentially Fraudulent,High Risk", lines[1])
	})

	t.Run("does not alias row values", func(t *testing.T) {
		_, err := ResultsCSV(tbl)
		require.NoError(t, err)
		assert.Len(t, tbl.Rows[0].Values, 2)
		assert.Len(t, tbl.Columns, 2)
	})
}
