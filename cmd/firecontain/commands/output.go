package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/firecontain/pkg/policy"
	"github.com/openfroyo/firecontain/pkg/scenario"
	"github.com/openfroyo/firecontain/pkg/stores"
)

// Output formats
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func checkFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

// encode writes v as JSON or YAML. It reports false for the table format.
func encode(w io.Writer, format string, v interface{}) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	default:
		return false, nil
	}
}

// runReport is the structured output of one run.
type runReport struct {
	RunID    string            `json:"run_id" yaml:"run_id"`
	BatchID  string            `json:"batch_id,omitempty" yaml:"batch_id,omitempty"`
	Scenario string            `json:"scenario" yaml:"scenario"`
	Outcome  *scenario.Outcome `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Error    string            `json:"error,omitempty" yaml:"error,omitempty"`
	Policy   *policyReport     `json:"policy,omitempty" yaml:"policy,omitempty"`
	Elapsed  string            `json:"elapsed" yaml:"elapsed"`
}

type policyReport struct {
	Allowed    bool               `json:"allowed" yaml:"allowed"`
	Violations []policy.Violation `json:"violations,omitempty" yaml:"violations,omitempty"`
}

func newRunReport(rec *scenario.Record, result *policy.Result) runReport {
	r := runReport{
		RunID:    rec.RunID,
		BatchID:  rec.BatchID,
		Scenario: rec.Scenario.Name,
		Outcome:  rec.Outcome,
		Error:    rec.Error(),
		Elapsed:  rec.Duration.Round(time.Microsecond).String(),
	}
	if result != nil {
		r.Policy = &policyReport{Allowed: result.Allowed, Violations: result.Violations}
	}
	return r
}

// printOutcome writes the human readable summary of one run.
func printOutcome(w io.Writer, rec *scenario.Record, result *policy.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Scenario:\t%s\n", rec.Scenario.Name)
	fmt.Fprintf(tw, "Run:\t%s\n", rec.RunID)
	if rec.Err != nil {
		fmt.Fprintf(tw, "Error:\t%v\n", rec.Err)
		return tw.Flush()
	}

	out := rec.Outcome
	fmt.Fprintf(tw, "Status:\t%s\n", out.Status)
	fmt.Fprintf(tw, "Time:\t%.1f min\n", out.Time)
	fmt.Fprintf(tw, "Fire size:\t%.2f ac\n", out.FireSizeAcres)
	fmt.Fprintf(tw, "Containment area:\t%.2f ac\n", out.ContainmentAreaAcres)
	fmt.Fprintf(tw, "Fireline:\t%.0f ft\n", out.FirelineLength)
	fmt.Fprintf(tw, "Perimeter:\t%.0f ft\n", out.PerimeterAtContainment)
	fmt.Fprintf(tw, "Cost:\t%.2f\n", out.Cost)
	fmt.Fprintf(tw, "Resources used:\t%d\n", out.ResourcesUsed)
	fmt.Fprintf(tw, "Passes:\t%d\n", out.Passes)
	if out.EffectiveWindSpeed > 0 {
		fmt.Fprintf(tw, "Effective wind:\t%.1f mi/h\n", out.EffectiveWindSpeed)
	}
	if out.PerimeterAtInitialAttack > 0 {
		fmt.Fprintf(tw, "At initial attack:\t%.0f ft perimeter, %.2f ac\n",
			out.PerimeterAtInitialAttack, out.FireSizeAtInitialAttack/43560)
	}

	if result != nil {
		verdict := "accepted"
		if !result.Allowed {
			verdict = "rejected"
		}
		fmt.Fprintf(tw, "Policy:\t%s\n", verdict)
		for _, v := range result.Violations {
			fmt.Fprintf(tw, "  [%s]\t%s: %s\n", v.Severity, v.Policy, v.Message)
		}
	}
	return tw.Flush()
}

// printRecords writes one line per record.
func printRecords(w io.Writer, recs []*scenario.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tSTATUS\tTIME (min)\tSIZE (ac)\tLINE (ft)\tCOST\tRUN")
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		if rec.Err != nil {
			fmt.Fprintf(tw, "%s\terror\t-\t-\t-\t-\t%s\n", rec.Scenario.Name, rec.RunID)
			continue
		}
		out := rec.Outcome
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%.2f\t%.0f\t%.2f\t%s\n",
			rec.Scenario.Name, out.Status, out.Time, out.FireSizeAcres, out.FirelineLength, out.Cost, rec.RunID)
	}
	return tw.Flush()
}

// printSummary writes the policy summary of a batch.
func printSummary(w io.Writer, s *policy.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Evaluated runs:\t%d\n", s.TotalRuns)
	fmt.Fprintf(tw, "Accepted:\t%d\n", s.AllowedRuns)
	fmt.Fprintf(tw, "Rejected:\t%d\n", s.BlockedRuns)
	fmt.Fprintf(tw, "Violations:\t%d\n", s.TotalViolations)
	for _, name := range sortedKeys(s.ViolationsByPolicy) {
		fmt.Fprintf(tw, "  %s\t%d\n", name, s.ViolationsByPolicy[name])
	}
	return tw.Flush()
}

// printRuns writes archived runs.
func printRuns(w io.Writer, runs []*stores.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSCENARIO\tSTATUS\tTIME (min)\tSIZE (ac)\tCOST\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%.2f\t%.2f\t%s\n",
			r.ID, r.Scenario, r.Status, r.TimeMin, r.FireSizeAc, r.Cost, r.StartedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// splitList splits comma separated flag values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
