// Command ledgercast runs the forecasting pipeline on a local CSV file.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ledgercast/ledgercast/internal/config"
	"github.com/ledgercast/ledgercast/internal/logging"
)

// Global flags
var (
	configPath   string
	outputFormat string
	logLevel     string
)

// rootCmd is the base command for the ledgercast CLI
var rootCmd = &cobra.Command{
	Use:   "ledgercast",
	Short: "Monthly financial series forecasting",
	Long: `ledgercast reads a CSV of dated amounts, aggregates it to a monthly
series and runs diagnostics, the model tournament, horizon validation and
anomaly detection on it.

The CSV has two columns, date and amount, with an optional header row.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch strings.ToLower(outputFormat) {
		case "json", "yaml":
		default:
			return fmt.Errorf("unsupported format %q (json|yaml)", outputFormat)
		}

		logger, err := logging.NewFromConfig(config.LoggingConfig{
			Level:      logLevel,
			Format:     "console",
			OutputPath: "stderr",
		})
		if err != nil {
			return err
		}
		logging.SetGlobal(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (forecast and anomaly sections)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "json", "Output format (json|yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug|info|warn|error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the optional config file, falling back to defaults
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(configPath)
}
