package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgercast/ledgercast/internal/analytics/duration"
	"github.com/ledgercast/ledgercast/internal/logging"
	"github.com/ledgercast/ledgercast/internal/pipeline"
	"github.com/ledgercast/ledgercast/internal/services"
)

// forecastCmd runs the full pipeline
var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Forecast a monthly series",
	Long: `Run diagnostics, the model tournament, horizon validation, the winning
model's forecast and anomaly detection on the input.

Examples:
  ledgercast forecast --input revenue.csv
  ledgercast forecast --input ledger.csv --transactions --months 6
  cat revenue.csv | ledgercast forecast --format yaml`,
	RunE: runForecast,
}

// Forecast command flags
var (
	forecastInput        string
	forecastTransactions bool
	forecastMonths       string
	forecastTimeout      time.Duration
)

func init() {
	rootCmd.AddCommand(forecastCmd)

	forecastCmd.Flags().StringVar(&forecastInput, "input", "-", "CSV file of date,amount rows (- for stdin)")
	forecastCmd.Flags().BoolVar(&forecastTransactions, "transactions", false, "Treat rows as raw transactions to aggregate per month")
	forecastCmd.Flags().StringVar(&forecastMonths, "months", "", "Requested horizon in months (default: automatic)")
	forecastCmd.Flags().DurationVar(&forecastTimeout, "timeout", time.Minute, "Deadline for the whole run")
}

func runForecast(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req, err := readRequestFile(forecastInput, forecastTransactions)
	if err != nil {
		return err
	}
	series, notes, err := services.BuildSeries(req)
	if err != nil {
		return err
	}

	requested := duration.Auto()
	if forecastMonths != "" {
		requested = duration.FromValue(forecastMonths)
	}

	ctx, cancel := context.WithTimeout(context.Background(), forecastTimeout)
	defer cancel()

	p := pipeline.New(cfg.PipelineConfig(), logging.Global())
	result := p.Run(ctx, series, requested)
	if len(notes) > 0 {
		result.Explanations = append(notes, result.Explanations...)
	}

	if err := writeOutput(cmd.OutOrStdout(), outputFormat, result); err != nil {
		return err
	}
	if !result.Succeeded() {
		return fmt.Errorf("forecast failed: %s", result.ErrorMessage)
	}
	return nil
}
