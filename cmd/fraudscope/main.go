// Fraudscope - Fraud scoring for transaction uploads.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opensource-finance/fraudscope/internal/config"
	"github.com/opensource-finance/fraudscope/internal/domain"
	"github.com/opensource-finance/fraudscope/internal/metrics"
	"github.com/opensource-finance/fraudscope/internal/model"
	"github.com/opensource-finance/fraudscope/internal/pipeline"
	"github.com/opensource-finance/fraudscope/internal/rules"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var (
	cfgFile string
	v       = viper.New()
	cfg     *domain.Config

	rootCmd = &cobra.Command{
		Use:   "fraudscope",
		Short: "Fraud scoring for transaction uploads",
		Long: `Fraudscope scores uploaded transaction CSVs with a frozen logistic
regression model and reports risk tiers, prevented loss, evaluation
metrics and daily fraud trends.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./fraudscope.yaml)")
	rootCmd.PersistentFlags().String("model", "", "model artifact path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	// Bind flags to viper
	_ = v.BindPFlag("model.artifactpath", rootCmd.PersistentFlags().Lookup("model"))
	_ = v.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	// Add commands
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(scoreCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	// Set up signal handling
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	// Reports go to stdout, so only the server logs there
	var out io.Writer = os.Stderr
	if cmd.Name() == "serve" {
		out = os.Stdout
	}

	logger, err := config.NewLogger(out, cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	slog.SetDefault(logger)
	return nil
}

// newProcessor loads the model artifact and alert policies.
func newProcessor(bus domain.EventBus) (*pipeline.Processor, error) {
	artifacts, err := model.Load(cfg.Model.ArtifactPath)
	if err != nil {
		return nil, err
	}
	metrics.ModelFeatures.Set(float64(len(artifacts.Schema)))
	slog.Info("model loaded",
		"path", cfg.Model.ArtifactPath,
		"version", artifacts.Version,
		"features", len(artifacts.Schema),
	)

	engine, err := rules.NewEngine(100)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}
	if err := engine.LoadPolicies(cfg.Alerts.Policies); err != nil {
		return nil, fmt.Errorf("failed to load alert policies: %w", err)
	}
	slog.Info("policy engine initialized", "policies_count", engine.PoliciesCount())

	return pipeline.NewProcessor(artifacts, engine, bus), nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fraudscope %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}
