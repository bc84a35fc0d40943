// Package worker persists run summaries asynchronously from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/fraudscope/internal/cache"
	"github.com/opensource-finance/fraudscope/internal/domain"
)

// Worker saves every completed run to the audit store and warms the run cache.
type Worker struct {
	bus   domain.EventBus
	repo  domain.Repository
	cache domain.Cache

	cacheTTL time.Duration

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// CacheTTL is how long a saved summary stays in the run cache.
	// Zero uses the cache's own default.
	CacheTTL time.Duration

	// LogAlerts subscribes to alert events and logs them.
	LogAlerts bool
}

// NewWorker creates a new async worker. repo and c may be nil.
func NewWorker(bus domain.EventBus, repo domain.Repository, c domain.Cache) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		cache:  c,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the run topics.
func (w *Worker) Start(cfg Config) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.cacheTTL = cfg.CacheTTL

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicRunCompleted, w.handleRunCompleted)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", domain.TopicRunCompleted, err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	if cfg.LogAlerts {
		sub, err := w.bus.Subscribe(w.ctx, domain.TopicRunAlert, w.handleRunAlert)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", domain.TopicRunAlert, err)
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("worker started",
		"subscriptions", len(w.subscriptions),
	)
	return nil
}

// handleRunCompleted saves one run summary.
func (w *Worker) handleRunCompleted(ctx context.Context, msg *domain.Message) error {
	var run domain.RunSummary
	if err := json.Unmarshal(msg.Payload, &run); err != nil {
		slog.Error("failed to parse run summary",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if w.repo != nil {
		if err := w.repo.SaveRun(ctx, &run); err != nil {
			slog.Error("failed to save run",
				"run_id", run.ID,
				"error", err,
			)
			return err
		}
	}

	if w.cache != nil {
		if err := cache.SetRun(ctx, w.cache, &run, w.cacheTTL); err != nil {
			slog.Warn("failed to cache run",
				"run_id", run.ID,
				"error", err,
			)
		}
	}

	slog.Debug("run saved",
		"run_id", run.ID,
		"status", run.Status,
		"rows", run.RowCount,
	)
	return nil
}

// handleRunAlert logs alert matches of one run.
func (w *Worker) handleRunAlert(ctx context.Context, msg *domain.Message) error {
	var event domain.AlertEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("parse alert event: %w", err)
	}

	for _, m := range event.Matches {
		slog.Warn("alert policy matched",
			"run_id", event.RunID,
			"policy_id", m.PolicyID,
			"row", m.RowIndex,
			"outcome", m.Outcome,
			"reason", m.Reason,
		)
	}
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
