package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/compliance"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/enforce"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/gate"
)

type gateOptions struct {
	resultsFile string
	sessionID   string
	regoPaths   []string
	enable      []string
	disable     []string
	minPassRate float64
}

func newGateCommand(version string) *cobra.Command {
	opts := &gateOptions{}

	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Decide whether compliance results allow a release",
		Long: `Evaluate Rego release gates over a set of compliance results.

Built-in gates:
  no-critical-failures  enabled, denies any failed critical control
  no-high-failures      disabled, denies failed high or critical controls
  min-pass-rate         disabled, denies a pass rate below data.params.threshold

Results are read from the results file, or from the evidence store when
--session is given.`,
		Example: `  venturalitica gate --results .venturalitica/results.json
  venturalitica gate --enable no-high-failures --min-pass-rate 0.9
  venturalitica gate --session 3f2c... --rego ./gates`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGate(cmd, version, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.resultsFile, "results", "r", enforce.DefaultResultsFile, "results file")
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "read results for this session from the evidence store")
	cmd.Flags().StringSliceVar(&opts.regoPaths, "rego", nil, "directory or file of custom gates (repeatable)")
	cmd.Flags().StringSliceVar(&opts.enable, "enable", nil, "enable a gate by name")
	cmd.Flags().StringSliceVar(&opts.disable, "disable", nil, "disable a gate by name")
	cmd.Flags().Float64Var(&opts.minPassRate, "min-pass-rate", 0, "enable min-pass-rate with this threshold")

	return cmd
}

func runGate(cmd *cobra.Command, version string, opts *gateOptions) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, version)
	if err != nil {
		return err
	}
	defer a.close()

	results, err := gateInput(ctx, a, opts)
	if err != nil {
		return err
	}

	engine, err := gate.NewEngine(a.logger, gate.WithMetrics(a.tel.Metrics), gate.WithEvents(a.tel.Events))
	if err != nil {
		return err
	}
	if len(opts.regoPaths) > 0 {
		if err := engine.LoadGates(ctx, opts.regoPaths); err != nil {
			return err
		}
	}
	for _, name := range opts.enable {
		if err := engine.EnableGate(name); err != nil {
			return err
		}
	}
	for _, name := range opts.disable {
		if err := engine.DisableGate(name); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("min-pass-rate") {
		if err := engine.SetParam(ctx, gate.GateMinPassRate, "threshold", opts.minPassRate); err != nil {
			return err
		}
		if err := engine.EnableGate(gate.GateMinPassRate); err != nil {
			return err
		}
	}

	decision, err := engine.Evaluate(ctx, results)
	if err != nil {
		return err
	}

	action := "gate.allowed"
	if !decision.Allowed {
		action = "gate.denied"
	}
	a.audit(ctx, action, opts.sessionID, decision)

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := printJSON(out, decision); err != nil {
			return err
		}
	} else {
		printDecision(out, decision)
	}

	if !decision.Allowed {
		return fmt.Errorf("release denied by %d violation(s)", len(decision.Violations)+len(decision.Errors))
	}
	return nil
}

func gateInput(ctx context.Context, a *app, opts *gateOptions) ([]compliance.ComplianceResult, error) {
	if opts.sessionID == "" {
		return enforce.ReadResultsFile(opts.resultsFile)
	}
	if a.store == nil {
		return nil, errNoStore
	}
	stored, err := a.store.ListResults(ctx, opts.sessionID)
	if err != nil {
		return nil, err
	}
	results := make([]compliance.ComplianceResult, 0, len(stored))
	for _, r := range stored {
		results = append(results, r.ComplianceResult)
	}
	return results, nil
}

func printDecision(w io.Writer, d *gate.Decision) {
	verdict := "ALLOWED"
	if !d.Allowed {
		verdict = "DENIED"
	}
	fmt.Fprintf(w, "Release %s (%d gates, %d controls, %d failed)\n",
		verdict, len(d.EvaluatedGates), d.Summary.Total, d.Summary.Failed)
	for _, v := range d.Violations {
		fmt.Fprintf(w, "  deny  [%s] %s\n", v.Gate, v.Message)
	}
	for _, v := range d.Warnings {
		fmt.Fprintf(w, "  warn  [%s] %s\n", v.Gate, v.Message)
	}
	for _, e := range d.Errors {
		fmt.Fprintf(w, "  error %s\n", e)
	}
}
