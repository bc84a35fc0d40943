// Package pipeline runs an upload through reconcile, score and analytics and
// produces the run bundle.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/opensource-finance/fraudscope/internal/analytics"
	"github.com/opensource-finance/fraudscope/internal/domain"
	"github.com/opensource-finance/fraudscope/internal/metrics"
	"github.com/opensource-finance/fraudscope/internal/model"
	"github.com/opensource-finance/fraudscope/internal/rules"
	"github.com/opensource-finance/fraudscope/internal/scoring"
	"github.com/opensource-finance/fraudscope/internal/table"
	"github.com/opensource-finance/fraudscope/internal/traces"
)

// Run sources
const (
	SourceAnalyze    = "analyze"
	SourcePredictCSV = "predict_csv"
	SourceCLI        = "cli"
)

// Processor runs uploads through the scoring pipeline. It holds only frozen
// artifacts and compiled policies and is safe for concurrent use.
type Processor struct {
	scorer *scoring.Scorer
	engine *rules.Engine
	bus    domain.EventBus

	now func() time.Time
}

// NewProcessor creates a processor. engine and bus may be nil.
func NewProcessor(artifacts *model.Artifacts, engine *rules.Engine, bus domain.EventBus) *Processor {
	return &Processor{
		scorer: scoring.NewScorer(artifacts),
		engine: engine,
		bus:    bus,
		now:    time.Now,
	}
}

// Artifacts returns the frozen model artifacts.
func (p *Processor) Artifacts() *model.Artifacts {
	return p.scorer.Artifacts()
}

// Engine returns the alert policy engine, or nil.
func (p *Processor) Engine() *rules.Engine {
	return p.engine
}

// ModelVersion returns the artifact version.
func (p *Processor) ModelVersion() string {
	return p.Artifacts().Version
}

// RunInput is one upload to process.
type RunInput struct {
	// RunID is generated when empty.
	RunID    string
	Data     []byte
	Filename string
	Source   string
}

// Process parses, reconciles and scores the upload, then derives analytics.
// SchemaError and ScoringError abort the run. A malformed Class column is
// reported as a bundle warning, and a policy that fails on a row is recorded
// as an error match.
func (p *Processor) Process(ctx context.Context, input *RunInput) (*domain.Bundle, error) {
	start := p.now()

	runID := input.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	ctx, span := traces.StartSpan(ctx, "pipeline.run",
		traces.RunID(runID),
		traces.Source(input.Source),
		traces.ModelVersion(p.ModelVersion()),
	)
	defer span.End()

	bundle, err := p.run(ctx, runID, input.Data)

	duration := p.now().Sub(start)
	metrics.PipelineDuration.WithLabelValues(input.Source).Observe(duration.Seconds())

	summary := p.summarize(runID, input, bundle, err, start, duration)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RunsTotal.WithLabelValues(summary.ErrorKind).Inc()

		slog.Warn("pipeline run failed",
			"run_id", runID,
			"source", input.Source,
			"kind", summary.ErrorKind,
			"error", err,
		)
	} else {
		span.SetAttributes(traces.Rows(bundle.RowCount))
		metrics.RunsTotal.WithLabelValues(domain.RunStatusSucceeded).Inc()

		slog.Info("pipeline run completed",
			"run_id", runID,
			"source", input.Source,
			"rows", bundle.RowCount,
			"fraud_count", bundle.FraudCount(),
			"alerts", len(bundle.Alerts),
			"warnings", len(bundle.Warnings),
			"duration_ms", duration.Milliseconds(),
		)
	}

	p.publish(ctx, summary, bundle)

	if err != nil {
		return nil, err
	}
	return bundle, nil
}

func (p *Processor) run(ctx context.Context, runID string, data []byte) (*domain.Bundle, error) {
	schema := p.Artifacts().Schema

	_, span := traces.StartSpan(ctx, "pipeline.reconcile")
	t, err := table.Parse(data)
	if err != nil {
		span.End()
		return nil, withExpected(err, schema)
	}
	view, err := scoring.Reconcile(t, schema)
	span.End()
	if err != nil {
		return nil, withExpected(err, schema)
	}
	if len(view.Missing) > 0 {
		slog.Debug("schema columns zero-filled",
			"run_id", runID,
			"missing", view.Missing,
		)
	}

	_, span = traces.StartSpan(ctx, "pipeline.score", traces.Rows(view.Len()))
	scored, err := p.scorer.Score(view)
	span.End()
	if err != nil {
		return nil, err
	}
	observePredictions(scored)

	bundle := &domain.Bundle{
		RunID:        runID,
		ModelVersion: p.ModelVersion(),
		Table:        scored,
		RowCount:     len(scored.Rows),
	}

	_, span = traces.StartSpan(ctx, "pipeline.analytics")
	bundle.PreventedLoss = analytics.PreventedLoss(scored)
	bundle.TopRisk = analytics.TopRisk(scored, analytics.TopRiskLimit)
	bundle.Distribution = analytics.Distribution(scored)
	bundle.RiskCounts = analytics.RiskCounts(scored)
	span.End()

	_, span = traces.StartSpan(ctx, "pipeline.trend")
	bundle.Trend = analytics.BuildTrend(scored)
	span.End()
	if bundle.Trend != nil && bundle.Trend.ExcludedRows > 0 {
		slog.Debug("trend rows excluded",
			"run_id", runID,
			"excluded", bundle.Trend.ExcludedRows,
		)
	}

	_, span = traces.StartSpan(ctx, "pipeline.evaluation")
	evaluation, err := analytics.BuildEvaluation(scored)
	span.End()
	if err != nil {
		bundle.Warnings = append(bundle.Warnings, err.Error())
	} else {
		bundle.Evaluation = evaluation
	}

	if p.engine != nil && p.engine.PoliciesCount() > 0 {
		evalCtx, span := traces.StartSpan(ctx, "pipeline.alerts")
		matches, err := p.engine.EvaluateTable(evalCtx, scored)
		span.End()
		if err != nil {
			return nil, err
		}
		bundle.Alerts = matches
		for _, m := range matches {
			metrics.AlertsTotal.WithLabelValues(m.PolicyID, m.Outcome).Inc()
		}
	}

	return bundle, nil
}

// withExpected fills the schema columns on a SchemaError that lacks them.
func withExpected(err error, schema model.Schema) error {
	var schemaErr *domain.SchemaError
	if errors.As(err, &schemaErr) && len(schemaErr.Expected) == 0 {
		schemaErr.Expected = schema
	}
	return err
}

func observePredictions(t *domain.ScoredTable) {
	metrics.RowsScoredTotal.Add(float64(len(t.Rows)))
	for _, r := range t.Rows {
		metrics.PredictionsTotal.WithLabelValues(r.PredictionLabel).Inc()
	}
}

// summarize builds the audit record of a run.
func (p *Processor) summarize(runID string, input *RunInput, b *domain.Bundle, err error, start time.Time, d time.Duration) *domain.RunSummary {
	run := &domain.RunSummary{
		ID:           runID,
		Filename:     input.Filename,
		Source:       input.Source,
		Status:       domain.RunStatusSucceeded,
		ModelVersion: p.ModelVersion(),
		DurationMs:   d.Milliseconds(),
		CreatedAt:    start.UTC(),
	}

	if err != nil {
		run.Status = domain.RunStatusFailed
		run.ErrorKind = domain.ErrorKind(err)
		run.ErrorMessage = err.Error()
		return run
	}

	run.RowCount = b.RowCount
	run.FraudCount = b.FraudCount()
	run.PreventedLoss = b.PreventedLoss.Amount
	for _, m := range b.Alerts {
		if m.Outcome == domain.AlertOutcomeMatch {
			run.AlertCount++
		}
	}
	return run
}

// publish emits the run summary, and the alert event when any policy matched.
// Failures are logged and never fail the run.
func (p *Processor) publish(ctx context.Context, run *domain.RunSummary, b *domain.Bundle) {
	if p.bus == nil {
		return
	}

	payload, err := json.Marshal(run)
	if err != nil {
		slog.Error("failed to encode run summary", "run_id", run.ID, "error", err)
		return
	}
	if err := p.bus.Publish(ctx, domain.TopicRunCompleted, payload); err != nil {
		slog.Error("failed to publish run summary",
			"run_id", run.ID,
			"error", err,
		)
	}

	if b == nil || len(b.Alerts) == 0 {
		return
	}

	payload, err = json.Marshal(domain.AlertEvent{RunID: run.ID, Matches: b.Alerts})
	if err != nil {
		slog.Error("failed to encode alert event", "run_id", run.ID, "error", err)
		return
	}
	if err := p.bus.Publish(ctx, domain.TopicRunAlert, payload); err != nil {
		slog.Error("failed to publish alert event",
			"run_id", run.ID,
			"error", err,
		)
	}
}
