package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "venturalitica",
		Short: "Venturalitica - policy compliance for ML models",
		Long: `Venturalitica evaluates machine-learning datasets and model outputs
against compliance policies written as OSCAL documents or flat control lists.

Features:
  - OSCAL catalogs, profiles, component definitions and assessment plans
  - Column discovery through a synonym table
  - Built-in performance, fairness and privacy metrics
  - Starlark metric scripts
  - Rego release gates over the results
  - SQLite evidence store`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newEnforceCommand(version))
	rootCmd.AddCommand(newEvaluateCommand(version))
	rootCmd.AddCommand(newValidateCommand(version))
	rootCmd.AddCommand(newGateCommand(version))
	rootCmd.AddCommand(newResultsCommand(version))
	rootCmd.AddCommand(newMetricsCommand(version))

	return rootCmd
}
