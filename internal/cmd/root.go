// Package cmd wires the specflow CLI.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	flagStateDir    string
	flagConfig      string
	flagBackend     string
	flagTokens      string
	flagFormat      string
	flagConcurrency int
	flagMaxRemedy   int
	flagVerbose     bool
	flagMetricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "specflow",
	Short: "Phase-gated AI generation pipeline for project artifacts",
	Long: `specflow drives a multi-phase pipeline that produces versioned
specification and design artifacts for a software project by repeatedly
invoking a text-generation backend, gated by human approvals and automated
validation with bounded auto-remedy and snapshot rollback.`,
	SilenceUsage: true,
}

// ExecuteContext runs the root command under the given context
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagStateDir, "state-dir", ".specflow/state", "directory holding project state files")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "specflow.yaml", "backend registry configuration file")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "generation backend id (default: first enabled backend)")
	rootCmd.PersistentFlags().StringVar(&flagTokens, "tokens", "", "design-token file checked by the component self-review gate")
	rootCmd.PersistentFlags().StringVarP(&flagFormat, "format", "f", "text", "output format: text, json, or yaml")
	rootCmd.PersistentFlags().IntVar(&flagConcurrency, "concurrency", 2, "component dispatch batch size")
	rootCmd.PersistentFlags().IntVar(&flagMaxRemedy, "max-remedy", 3, "auto-remedy attempts before a phase is blocked")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagMetricsAddr, "metrics-listen", "", "serve Prometheus metrics on this address for the duration of the command (e.g. :9464)")

	rootCmd.AddCommand(newProjectCmd())
	rootCmd.AddCommand(newPhaseCmd())
	rootCmd.AddCommand(newGateCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newRollbackCmd())
	rootCmd.AddCommand(newBackendCmd())
}
