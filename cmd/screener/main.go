// Package main is the optionseller command line. It runs the same analytics
// as the HTTP service against local chain files and prints tables.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/optionseller/pkg/logger"
)

var (
	logLevel     string
	outputFormat string
)

// rootCmd is the base command for the optionseller CLI
var rootCmd = &cobra.Command{
	Use:   "optionseller",
	Short: "Screen and size short option trades",
	Long: `optionseller prices covered calls, cash-secured puts and short strangles
with Black-Scholes-Merton, screens them against configurable criteria and
sizes the survivors against an account's risk limits.

Configuration is read from the environment (and .env) the same way the
server reads it; flags override individual values.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json")
}

// newLogger logs to stderr so tables on stdout stay clean
func newLogger() zerolog.Logger {
	return logger.New(logger.Config{
		Level:  logLevel,
		Pretty: true,
		Output: os.Stderr,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
