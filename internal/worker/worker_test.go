package worker

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/fraudscope/internal/bus"
	"github.com/opensource-finance/fraudscope/internal/cache"
	"github.com/opensource-finance/fraudscope/internal/domain"
	"github.com/opensource-finance/fraudscope/internal/repository"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "fraudscope-worker-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil)

		if err := w.Start(Config{LogAlerts: true}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
		}
		if stats.Topics[0] != domain.TopicRunCompleted {
			t.Errorf("expected first topic %s, got %s", domain.TopicRunCompleted, stats.Topics[0])
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = w.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("SavesCompletedRun", func(t *testing.T) {
		repo := newTestRepo(t)
		c := cache.NewLRUCache(100)

		w := NewWorker(eventBus, repo, c)
		if err := w.Start(Config{CacheTTL: time.Minute}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		run := domain.RunSummary{
			ID:            "run-worker-001",
			Source:        "analyze",
			Status:        domain.RunStatusSucceeded,
			RowCount:      3,
			FraudCount:    2,
			PreventedLoss: 150,
			ModelVersion:  "test",
			CreatedAt:     time.Now().UTC().Truncate(time.Second),
		}
		payload, _ := json.Marshal(run)

		if err := eventBus.Publish(context.Background(), domain.TopicRunCompleted, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		ctx := context.Background()
		saved := waitFor(t, func() bool {
			_, err := repo.GetRun(ctx, run.ID)
			return err == nil
		})
		if !saved {
			t.Fatal("expected run to be saved")
		}

		got, err := repo.GetRun(ctx, run.ID)
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if got.PreventedLoss != 150 {
			t.Errorf("expected PreventedLoss 150, got %.2f", got.PreventedLoss)
		}

		cached := waitFor(t, func() bool {
			r, _ := cache.GetRun(ctx, c, run.ID)
			return r != nil
		})
		if !cached {
			t.Error("expected run to be cached")
		}
	})

	t.Run("BadPayloadDoesNotStopWorker", func(t *testing.T) {
		repo := newTestRepo(t)

		w := NewWorker(eventBus, repo, nil)
		if err := w.Start(Config{}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		ctx := context.Background()
		if err := eventBus.Publish(ctx, domain.TopicRunCompleted, []byte("not json")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		payload, _ := json.Marshal(domain.RunSummary{
			ID:        "run-worker-002",
			Source:    "cli",
			Status:    domain.RunStatusFailed,
			ErrorKind: domain.KindSchema,
			CreatedAt: time.Now().UTC(),
		})
		if err := eventBus.Publish(ctx, domain.TopicRunCompleted, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		saved := waitFor(t, func() bool {
			_, err := repo.GetRun(ctx, "run-worker-002")
			return err == nil
		})
		if !saved {
			t.Error("expected the valid run to be saved after a bad payload")
		}
	})

	t.Run("HandleRunAlert", func(t *testing.T) {
		w := NewWorker(eventBus, nil, nil)

		payload, _ := json.Marshal(domain.AlertEvent{
			RunID: "run-1",
			Matches: []domain.AlertMatch{
				{PolicyID: "high-confidence", RowIndex: 0, Outcome: domain.AlertOutcomeMatch, Reason: "high"},
			},
		})
		if err := w.handleRunAlert(context.Background(), &domain.Message{Payload: payload}); err != nil {
			t.Errorf("handleRunAlert failed: %v", err)
		}

		if err := w.handleRunAlert(context.Background(), &domain.Message{Payload: []byte("{")}); err == nil {
			t.Error("expected error for malformed alert event")
		}
	})
}
