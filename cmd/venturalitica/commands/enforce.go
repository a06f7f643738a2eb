package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/compliance"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/dataset"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/enforce"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/policy"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/stores"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/telemetry"
)

type enforceOptions struct {
	policies    []string
	dataPath    string
	target      string
	prediction  string
	attributes  map[string]string
	strict      bool
	name        string
	resultsFile string
	watch       bool
}

func newEnforceCommand(version string) *cobra.Command {
	opts := &enforceOptions{}

	cmd := &cobra.Command{
		Use:   "enforce",
		Short: "Evaluate a dataset against compliance policies",
		Long: `Evaluate a dataset against one or more compliance policies.

Columns for each control are bound from --target, --prediction and --attr,
falling back to the synonym table when a requested name is not a column.
Results are appended to the results file and, when configured, the
evidence store.`,
		Example: `  # Enforce the default policy on a scored dataset
  venturalitica enforce --data scored.csv

  # Bind the protected attribute explicitly, failing on any violation
  venturalitica enforce --policy risks.oscal.yaml --data scored.csv \
    --target label --prediction y_pred --attr dimension=gender --strict

  # Re-run whenever a policy file changes
  venturalitica enforce --policy ./policies --data scored.csv --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnforce(cmd, version, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.policies, "policy", "p", nil, "policy file or directory (repeatable)")
	cmd.Flags().StringVarP(&opts.dataPath, "data", "d", "", "dataset file (.csv or .json)")
	cmd.Flags().StringVar(&opts.target, "target", "", "label column")
	cmd.Flags().StringVar(&opts.prediction, "prediction", "", "model output column")
	cmd.Flags().StringToStringVar(&opts.attributes, "attr", nil, "role to column binding, e.g. dimension=gender")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "fail on any skipped or failed control")
	cmd.Flags().StringVar(&opts.name, "name", "cli", "session name")
	cmd.Flags().StringVar(&opts.resultsFile, "results-file", enforce.DefaultResultsFile, "results file, empty to disable")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "re-enforce when policy files change")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runEnforce(cmd *cobra.Command, version string, opts *enforceOptions) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, version)
	if err != nil {
		return err
	}
	defer a.close()

	frame, err := dataset.LoadFile(opts.dataPath)
	if err != nil {
		return err
	}

	paths, err := a.policyPaths(opts.policies)
	if err != nil {
		return err
	}

	req := enforce.Request{
		Policies:   paths,
		Data:       frame,
		Target:     opts.target,
		Prediction: opts.prediction,
		Attributes: opts.attributes,
		Strict:     opts.strict || a.cfg.Strict,
	}
	enforcer := a.enforcer(opts.resultsFile)

	run := func() error {
		return enforceOnce(ctx, cmd, a, enforcer, opts.name, req)
	}

	if !opts.watch {
		return run()
	}

	// Watch mode reports failures and keeps going.
	if err := run(); err != nil {
		a.logger.Error().Err(err).Msg("Enforcement failed")
	}
	watched := opts.policies
	if len(watched) == 0 {
		watched = a.cfg.PolicyPaths()
	}
	if len(watched) == 0 {
		watched = []string{enforce.DefaultPolicyPath}
	}
	err = a.loader.Watch(ctx, watched, func(policies []*policy.Policy) error {
		_ = a.tel.Events.Publish(telemetry.Event{
			Type:    telemetry.EventTypePolicyReloaded,
			Source:  "cli",
			Message: fmt.Sprintf("%d policies reloaded", len(policies)),
		})
		return run()
	})
	if err != nil {
		return err
	}
	defer func() { _ = a.loader.StopWatching() }()

	<-ctx.Done()
	return nil
}

func enforceOnce(ctx context.Context, cmd *cobra.Command, a *app, enforcer *enforce.Enforcer, name string, req enforce.Request) error {
	session := enforce.NewSession(name)

	if a.store != nil {
		err := a.store.CreateSession(ctx, &stores.Session{
			ID:     session.ID(),
			Name:   session.Name(),
			Strict: req.Strict,
		})
		if err != nil {
			return fmt.Errorf("failed to record session: %w", err)
		}
	}

	results, err := enforcer.Enforce(ctx, session, req)
	if err != nil {
		return err
	}
	summary := compliance.Summarize(results)

	if a.store != nil {
		if err := a.store.MarkSessionEnforced(ctx, session.ID()); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to mark session enforced")
		}
	}
	a.audit(ctx, "session.enforced", session.ID(), summary)

	if err := report(cmd, session.ID(), results, summary); err != nil {
		return err
	}

	if req.Strict && summary.Failed > 0 {
		return fmt.Errorf("%d of %d controls failed", summary.Failed, summary.Total)
	}
	return nil
}

func report(cmd *cobra.Command, sessionID string, results []compliance.ComplianceResult, summary compliance.Summary) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, map[string]any{
			"session_id": sessionID,
			"results":    nonNil(results),
			"summary":    summary,
		})
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "No controls evaluated.")
		return nil
	}
	printResults(out, results)
	printSummary(out, summary)
	return nil
}

func nonNil(results []compliance.ComplianceResult) []compliance.ComplianceResult {
	if results == nil {
		return []compliance.ComplianceResult{}
	}
	return results
}
