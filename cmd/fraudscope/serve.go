package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/fraudscope/internal/api"
	"github.com/opensource-finance/fraudscope/internal/bus"
	"github.com/opensource-finance/fraudscope/internal/cache"
	"github.com/opensource-finance/fraudscope/internal/domain"
	"github.com/opensource-finance/fraudscope/internal/repository"
	"github.com/opensource-finance/fraudscope/internal/traces"
	"github.com/opensource-finance/fraudscope/internal/worker"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP scoring server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.Flags().Int("port", 0, "listen port (default 8080)")
	cmd.Flags().String("host", "", "listen host (default 0.0.0.0)")
	_ = v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	_ = v.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(ctx context.Context) error {
	slog.Info("starting fraudscope",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Initialize Tracing
	shutdownTracing, err := traces.Init(ctx, cfg.Tracing, Version, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Error("failed to shutdown tracing", "error", err)
		}
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Pipeline
	processor, err := newProcessor(busImpl)
	if err != nil {
		return err
	}
	if engine := processor.Engine(); engine != nil {
		defer engine.Close()
	}

	// Initialize audit Worker
	auditWorker := worker.NewWorker(busImpl, repo, cacheImpl)
	workerCfg := worker.Config{
		CacheTTL:  cfg.Cache.LocalTTL,
		LogAlerts: true,
	}
	if err := auditWorker.Start(workerCfg); err != nil {
		return fmt.Errorf("failed to start audit worker: %w", err)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, processor, repo, cacheImpl, Version)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("fraudscope is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal or server failure
	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case serveErr = <-errCh:
		slog.Error("server failed", "error", serveErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop the worker after the server
	if err := auditWorker.Stop(); err != nil {
		slog.Error("failed to stop audit worker", "error", err)
	}

	slog.Info("fraudscope shutdown complete")
	return serveErr
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  Fraudscope")
	fmt.Println("  Fraud scoring for transaction uploads")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Model:    %s\n", cfg.Model.ArtifactPath)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /analyze      - Score a CSV and build the dashboard bundle")
	fmt.Println("    POST /predict_csv  - Score a CSV and download predictions")
	fmt.Println("    GET  /runs         - List recent runs")
	fmt.Println("    GET  /runs/{id}    - Get a run summary")
	fmt.Println("    GET  /model        - Model version and feature schema")
	fmt.Println("    GET  /policies     - Loaded alert policies")
	fmt.Println("    GET  /metrics      - Prometheus metrics")
	fmt.Println("    GET  /health       - Health check")
	fmt.Println()
}
