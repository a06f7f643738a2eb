package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/compliance"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/stores"
)

func newResultsCommand(version string) *cobra.Command {
	var (
		sessionID string
		limit     int
		sessions  bool
		audit     bool
	)

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show results recorded in the evidence store",
		Example: `  venturalitica results --limit 20
  venturalitica results --session 3f2c...
  venturalitica results --sessions
  venturalitica results --audit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, version)
			if err != nil {
				return err
			}
			defer a.close()

			if a.store == nil {
				return errNoStore
			}
			out := cmd.OutOrStdout()

			if audit {
				entries, err := a.store.ListAuditEntries(ctx, nil, limit, 0)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(out, entries)
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tACTION\tACTOR\tTARGET")
				for _, e := range entries {
					target := "-"
					if e.TargetID != nil {
						target = *e.TargetID
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.Actor, target)
				}
				return tw.Flush()
			}

			if sessions {
				list, err := a.store.ListSessions(ctx, limit, 0)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(out, list)
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tSTRICT\tENFORCED\tCREATED")
				for _, s := range list {
					fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\n", s.ID, s.Name, s.Strict, s.Enforced, s.CreatedAt.Format("2006-01-02 15:04:05"))
				}
				return tw.Flush()
			}

			var stored []*stores.StoredResult
			if sessionID != "" {
				if _, err := a.store.GetSession(ctx, sessionID); err != nil {
					return err
				}
				stored, err = a.store.ListResults(ctx, sessionID)
			} else {
				stored, err = a.store.LatestResults(ctx, limit)
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				if stored == nil {
					stored = []*stores.StoredResult{}
				}
				return printJSON(out, stored)
			}

			results := make([]compliance.ComplianceResult, 0, len(stored))
			for _, r := range stored {
				results = append(results, r.ComplianceResult)
			}
			if len(results) == 0 {
				fmt.Fprintln(out, "No results recorded.")
				return nil
			}
			printResults(out, results)
			printSummary(out, compliance.Summarize(results))
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "show results of one session")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of rows")
	cmd.Flags().BoolVar(&sessions, "sessions", false, "list sessions instead of results")
	cmd.Flags().BoolVar(&audit, "audit", false, "list audit entries instead of results")

	return cmd
}
