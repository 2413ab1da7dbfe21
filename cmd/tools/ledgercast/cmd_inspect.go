package main

import (
	"github.com/spf13/cobra"

	"github.com/ledgercast/ledgercast/internal/analytics"
	"github.com/ledgercast/ledgercast/internal/analytics/diagnostics"
	"github.com/ledgercast/ledgercast/internal/analytics/duration"
	"github.com/ledgercast/ledgercast/internal/logging"
	"github.com/ledgercast/ledgercast/internal/services"
)

// diagnoseCmd prints the series diagnostics only
var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Show stationarity and seasonality diagnostics",
	RunE:  runDiagnose,
}

// durationCmd prints the horizon decision only
var durationCmd = &cobra.Command{
	Use:   "duration",
	Short: "Show the validated forecast horizon for a request",
	Long: `Apply the horizon rules to the input without fitting any model.

Examples:
  ledgercast duration --input revenue.csv
  ledgercast duration --input revenue.csv --months 18`,
	RunE: runDuration,
}

var (
	inspectInput        string
	inspectTransactions bool
	durationMonths      string
)

type diagnoseOutput struct {
	Report       diagnostics.Report `json:"diagnostics"`
	Explanations []string           `json:"explanations"`
}

type durationOutput struct {
	Decision     duration.Decision `json:"duration"`
	Explanations []string          `json:"explanations"`
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(durationCmd)

	for _, cmd := range []*cobra.Command{diagnoseCmd, durationCmd} {
		cmd.Flags().StringVar(&inspectInput, "input", "-", "CSV file of date,amount rows (- for stdin)")
		cmd.Flags().BoolVar(&inspectTransactions, "transactions", false, "Treat rows as raw transactions to aggregate per month")
	}
	durationCmd.Flags().StringVar(&durationMonths, "months", "", "Requested horizon in months (default: automatic)")
}

// loadSeries reads the input and returns the series with the aggregation notes
func loadSeries() (analytics.MonthlySeries, *analytics.Trace, error) {
	req, err := readRequestFile(inspectInput, inspectTransactions)
	if err != nil {
		return analytics.MonthlySeries{}, nil, err
	}
	series, notes, err := services.BuildSeries(req)
	if err != nil {
		return analytics.MonthlySeries{}, nil, err
	}

	trace := analytics.NewTrace(logging.Global())
	for _, note := range notes {
		trace.Add("%s", note)
	}
	return series, trace, nil
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	series, trace, err := loadSeries()
	if err != nil {
		return err
	}

	report := diagnostics.Run(series, cfg.PipelineConfig().Diagnostics, trace)
	return writeOutput(cmd.OutOrStdout(), outputFormat, diagnoseOutput{
		Report:       report,
		Explanations: trace.Lines(),
	})
}

func runDuration(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	series, trace, err := loadSeries()
	if err != nil {
		return err
	}

	requested := duration.Auto()
	if durationMonths != "" {
		requested = duration.FromValue(durationMonths)
	}

	decision := duration.NewValidator(cfg.PipelineConfig().Duration).Validate(series, requested, trace)
	return writeOutput(cmd.OutOrStdout(), outputFormat, durationOutput{
		Decision:     decision,
		Explanations: trace.Lines(),
	})
}
