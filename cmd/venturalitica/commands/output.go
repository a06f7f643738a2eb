package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/compliance"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/policy"
)

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResults(w io.Writer, results []compliance.ComplianceResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTROL\tMETRIC\tACTUAL\tOPERATOR\tTHRESHOLD\tSEVERITY\tSTATUS")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ControlID, r.MetricKey, formatActual(r.ActualValue), r.Operator,
			formatFloat(r.Threshold), r.Severity, status(r.Passed))
	}
	_ = tw.Flush()
}

func printSummary(w io.Writer, s compliance.Summary) {
	fmt.Fprintf(w, "\n%d controls: %d passed, %d failed (pass rate %.1f%%)\n",
		s.Total, s.Passed, s.Failed, s.PassRate*100)
	if s.Failed == 0 {
		return
	}
	sevs := make([]string, 0, len(s.FailedBy))
	for sev := range s.FailedBy {
		sevs = append(sevs, string(sev))
	}
	sort.Slice(sevs, func(i, j int) bool {
		return policy.Severity(sevs[i]).Rank() > policy.Severity(sevs[j]).Rank()
	})
	parts := make([]string, 0, len(sevs))
	for _, sev := range sevs {
		parts = append(parts, fmt.Sprintf("%s=%d", sev, s.FailedBy[policy.Severity(sev)]))
	}
	fmt.Fprintf(w, "failed by severity: %s\n", strings.Join(parts, ", "))
}

func printControls(w io.Writer, pol *policy.Policy) {
	fmt.Fprintf(w, "%s (%d controls)\n", pol.Title, len(pol.Controls))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tMETRIC\tOPERATOR\tTHRESHOLD\tSEVERITY\tINPUTS")
	for _, c := range pol.Controls {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.MetricKey, c.Operator, formatFloat(c.Threshold), c.Severity, formatProps(c.InputMapping))
	}
	_ = tw.Flush()
}

func formatProps(p policy.Props) string {
	if p.Len() == 0 {
		return "-"
	}
	parts := make([]string, 0, p.Len())
	for _, item := range p.Items() {
		parts = append(parts, item.Name+"="+item.Value)
	}
	return strings.Join(parts, ",")
}

func formatActual(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatFloat(*v)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}

func status(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}

// parseMetricValues converts key=value flags into metric values.
func parseMetricValues(raw map[string]string) (map[string]float64, error) {
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("metric %s: %q is not a number", k, v)
		}
		out[k] = f
	}
	return out, nil
}
