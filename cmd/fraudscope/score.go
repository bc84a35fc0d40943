package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/fraudscope/internal/domain"
	"github.com/opensource-finance/fraudscope/internal/pipeline"
	"github.com/opensource-finance/fraudscope/internal/report"
)

func scoreCmd() *cobra.Command {
	var (
		outPath   string
		chartsDir string
		columns   []string
	)

	cmd := &cobra.Command{
		Use:   "score <file.csv>",
		Short: "Score a CSV file locally and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}

			processor, err := newProcessor(nil)
			if err != nil {
				return err
			}

			bundle, err := processor.Process(cmd.Context(), &pipeline.RunInput{
				Data:     data,
				Filename: filepath.Base(args[0]),
				Source:   pipeline.SourceCLI,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", domain.ErrorKind(err), err)
			}

			out := cmd.OutOrStdout()
			report.WriteSummary(out, bundle)
			fmt.Fprintln(out)
			report.WriteTopRisk(out, bundle, columns...)
			fmt.Fprintln(out)
			report.WriteEvaluation(out, bundle.Evaluation)
			if bundle.Trend != nil {
				fmt.Fprintln(out)
				report.WriteTrend(out, bundle.Trend)
			}
			for _, m := range bundle.Alerts {
				fmt.Fprintf(out, "alert %s%s on row %d: %s\n", m.PolicyID, m.Outcome, m.RowIndex, m.Reason)
			}

			if outPath != "" {
				csv, err := pipeline.ResultsCSV(bundle.Table)
				if err != nil {
					return fmt.Errorf("failed to encode results: %w", err)
				}
				if err := os.WriteFile(outPath, csv, 0o644); err != nil {
					return fmt.Errorf("failed to write results: %w", err)
				}
				slog.Info("results written", "path", outPath, "rows", bundle.RowCount)
			}

			if chartsDir != "" {
				paths, err := report.SaveCharts(chartsDir, bundle)
				if err != nil {
					return err
				}
				slog.Info("charts written", "dir", chartsDir, "count", len(paths))
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the scored CSV to this path")
	cmd.Flags().StringVar(&chartsDir, "charts", "", "write PNG charts into this directory")
	cmd.Flags().StringSliceVar(&columns, "columns", []string{domain.ColumnTime, domain.ColumnAmount}, "upload columns shown in the top-risk table")

	return cmd
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the model's feature schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			processor, err := newProcessor(nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "model %s (%d features)\n", processor.ModelVersion(), len(processor.Artifacts().Schema))
			for _, f := range processor.Artifacts().Schema {
				fmt.Fprintln(out, f)
			}
			return nil
		},
	}
}
