package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	version = "1.0.0"

	// Global flags
	verbose         bool
	outputFormat    string
	precheckURL     string
	precheckTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "peppol-validator",
	Short: "Validate PEPPOL BIS / UBL e-invoices",
	Long: `PEPPOL Validator checks UBL invoices and credit notes against
schematron business rules and reconciles their monetary totals with
decimal-exact arithmetic.

Checks performed:
  - Schematron assertions (regex, date, boolean, existence, comparison)
  - Line amounts against the header line-extension total
  - Per-rate tax subtotals against computed tax
  - The payable-amount identity, including rounding

Examples:
  # Validate against one rule set
  peppol-validator validate invoice.xml --schematron peppol-bis.sch

  # Multiple rule sets and a directory of invoices
  peppol-validator validate invoices/ -s bis.sch -s national.sch

  # Delegate the header pre-check to a remote service
  peppol-validator validate invoice.xml -s bis.sch --precheck-url http://localhost:9090/check`,
	Version: version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, table)")
	rootCmd.PersistentFlags().StringVar(&precheckURL, "precheck-url", "", "Remote header pre-check endpoint (env: PRECHECK_URL)")
	rootCmd.PersistentFlags().DurationVar(&precheckTimeout, "precheck-timeout", 0, "Pre-check HTTP timeout (env: PRECHECK_TIMEOUT)")

	// Load from environment variables if not set via flags
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	if precheckURL == "" {
		precheckURL = os.Getenv("PRECHECK_URL")
	}
	if precheckTimeout == 0 {
		if raw := os.Getenv("PRECHECK_TIMEOUT"); raw != "" {
			if d, err := time.ParseDuration(raw); err == nil {
				precheckTimeout = d
			}
		}
	}
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
