package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/compliance"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/enforce"
)

func newEvaluateCommand(version string) *cobra.Command {
	var (
		policies    []string
		values      map[string]string
		strict      bool
		name        string
		resultsFile string
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Check precomputed metric values against policies",
		Long: `Check precomputed metric values against policy thresholds without
computing anything. Controls whose metric has no value are skipped.`,
		Example: `  venturalitica evaluate --policy risks.oscal.yaml --metric accuracy_score=0.7
  venturalitica evaluate --metric accuracy_score=0.92 --metric demographic_parity_diff=0.04 --strict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			metricValues, err := parseMetricValues(values)
			if err != nil {
				return err
			}

			a, err := newApp(ctx, version)
			if err != nil {
				return err
			}
			defer a.close()

			paths, err := a.policyPaths(policies)
			if err != nil {
				return err
			}

			req := enforce.Request{
				Policies: paths,
				Metrics:  metricValues,
				Strict:   strict || a.cfg.Strict,
			}
			session := enforce.NewSession(name)
			results, err := a.enforcer(resultsFile).Enforce(ctx, session, req)
			if err != nil {
				return err
			}

			summary := compliance.Summarize(results)
			if err := report(cmd, session.ID(), results, summary); err != nil {
				return err
			}
			if req.Strict && summary.Failed > 0 {
				return fmt.Errorf("%d of %d controls failed", summary.Failed, summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&policies, "policy", "p", nil, "policy file or directory (repeatable)")
	cmd.Flags().StringToStringVarP(&values, "metric", "m", nil, "metric value, e.g. accuracy_score=0.7")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any control fails")
	cmd.Flags().StringVar(&name, "name", "cli", "session name")
	cmd.Flags().StringVar(&resultsFile, "results-file", "", "append results to this file")
	_ = cmd.MarkFlagRequired("metric")

	return cmd
}
