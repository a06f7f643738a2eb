package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/config"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/policy"
)

type validation struct {
	Path   string                   `json:"path"`
	Policy *policy.Policy           `json:"policy,omitempty"`
	Errors []config.ValidationError `json:"errors,omitempty"`
}

func newValidateCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <policy>...",
		Short: "Load policies and list their normalized controls",
		Long: `Load policy files and print the controls they normalize to.

This command checks:
  - YAML, JSON or CUE syntax
  - OSCAL document shape and numeric thresholds
  - Flat control lists against the flat-control schema`,
		Example: `  venturalitica validate risks.oscal.yaml
  venturalitica validate ./policies --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, version)
			if err != nil {
				return err
			}
			defer a.close()

			paths, err := expandPolicyPaths(args)
			if err != nil {
				return err
			}

			var (
				checked []validation
				failed  int
			)
			for _, path := range paths {
				v := validation{Path: path}

				pol, err := a.loader.LoadFile(ctx, path)
				if err != nil {
					v.Errors = append(v.Errors, config.ValidationError{File: path, Message: err.Error()})
				} else {
					v.Policy = pol
				}
				v.Errors = append(v.Errors, checkFlatSchema(path)...)

				if len(v.Errors) > 0 {
					failed++
				}
				checked = append(checked, v)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := printJSON(out, checked); err != nil {
					return err
				}
			} else {
				for _, v := range checked {
					if v.Policy != nil {
						printControls(out, v.Policy)
					}
					for _, e := range v.Errors {
						fmt.Fprintf(out, "  error %s%s: %s\n", e.File, e.Path, e.Message)
					}
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d policy files are invalid", failed, len(checked))
			}
			return nil
		},
	}

	return cmd
}

// checkFlatSchema validates each element of a flat control list. Documents of
// any other shape are left to the loader.
func checkFlatSchema(path string) []config.ValidationError {
	format, ok := policy.FormatForPath(path)
	if !ok || format == policy.FormatCUE {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}

	errs := config.Schemas().ValidateEach(config.SchemaFlatControl, items)
	for i := range errs {
		errs[i].File = path
	}
	return errs
}
