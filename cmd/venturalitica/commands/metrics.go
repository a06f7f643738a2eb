package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMetricsCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "List registered metric keys",
		Long: `List the metric keys controls may reference: the built-in metrics plus
any Starlark scripts found in the configured scripts directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), version)
			if err != nil {
				return err
			}
			defer a.close()

			keys := a.registry.Keys()
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), keys)
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}
