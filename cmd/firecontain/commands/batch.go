package commands

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/firecontain/pkg/policy"
	"github.com/openfroyo/firecontain/pkg/scenario"
	"github.com/openfroyo/firecontain/pkg/stores"
)

func newBatchCommand(version string) *cobra.Command {
	var names []string

	cmd := &cobra.Command{
		Use:   "batch <document>...",
		Short: "Simulate scenarios in parallel",
		Long: `Simulate the scenarios defined in the documents on a bounded worker pool.

Results are reported in document order. The batch and its runs are archived
unless --no-store is given, and every outcome is checked against the
acceptance policies.`,
		Example: `  # Run a generated sweep on 8 workers
  firecontain batch sweep.cue --workers 8

  # Stop handing out work after the first failed scenario
  firecontain batch scenarios/ --fail-fast -o json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(outputFormat); err != nil {
				return err
			}

			a, ctx, err := newApp(cmd.Context(), version, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			all, err := a.parse(ctx, args)
			if err != nil {
				return err
			}
			selected, err := selectScenarios(all, splitList(names))
			if err != nil {
				return err
			}

			log.Info().
				Int("scenarios", len(selected)).
				Int("workers", a.settings.Batch.Workers).
				Bool("fail_fast", a.settings.Batch.FailFast).
				Msg("Running batch")

			started := time.Now().UTC()
			br := scenario.NewBatchRunner(a.settings.Batch.Workers, a.runner("batch"), a.settings.Batch.FailFast)
			res, runErr := br.Run(ctx, selected)
			if res == nil {
				return runErr
			}

			if a.store != nil {
				if err := a.store.SaveBatch(ctx, stores.BatchFromResult(res, started)); err != nil {
					log.Warn().Err(err).Str("batch_id", res.BatchID).Msg("Failed to archive batch")
				}
			}

			var report *policy.Report
			if a.policies != nil {
				report, err = a.policies.EvaluateBatch(ctx, res.Records)
				if err != nil {
					return err
				}
				if a.store != nil {
					for _, r := range report.Results {
						if err := a.store.SavePolicyResults(ctx, policy.StoreResults(r.Context.RunID, r)); err != nil {
							return fmt.Errorf("failed to save policy results: %w", err)
						}
					}
				}
			}

			if err := printBatch(cmd, res, report); err != nil {
				return err
			}

			if runErr != nil {
				return runErr
			}
			if res.Failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", res.Failed, len(selected))
			}
			if report != nil && report.Summary.BlockedRuns > 0 {
				return fmt.Errorf("%d of %d outcomes: %w", report.Summary.BlockedRuns, report.Summary.TotalRuns, ErrPolicyBlocked)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&names, "scenario", "s", nil, "run only the named scenarios")
	cmd.Flags().Int("workers", 0, "number of parallel workers (default from settings)")
	cmd.Flags().Bool("fail-fast", false, "stop after the first failed scenario")
	bindFlags(cmd.Flags(), map[string]string{
		"batch.workers":  "workers",
		"batch.failFast": "fail-fast",
	})

	return cmd
}

// batchReport is the structured output of a batch.
type batchReport struct {
	BatchID   string          `json:"batch_id" yaml:"batch_id"`
	Completed int             `json:"completed" yaml:"completed"`
	Failed    int             `json:"failed" yaml:"failed"`
	Skipped   int             `json:"skipped" yaml:"skipped"`
	Elapsed   string          `json:"elapsed" yaml:"elapsed"`
	Runs      []runReport     `json:"runs" yaml:"runs"`
	Policy    *policy.Summary `json:"policy,omitempty" yaml:"policy,omitempty"`
}

func printBatch(cmd *cobra.Command, res *scenario.BatchResult, report *policy.Report) error {
	results := make(map[string]*policy.Result)
	var summary *policy.Summary
	if report != nil {
		summary = report.Summary
		for _, r := range report.Results {
			results[r.Context.RunID] = r
		}
	}

	if outputFormat != formatTable {
		out := batchReport{
			BatchID:   res.BatchID,
			Completed: res.Completed,
			Failed:    res.Failed,
			Skipped:   res.Skipped,
			Elapsed:   res.Duration.Round(time.Millisecond).String(),
			Policy:    summary,
		}
		for _, rec := range res.Records {
			if rec != nil {
				out.Runs = append(out.Runs, newRunReport(rec, results[rec.RunID]))
			}
		}
		_, err := encode(cmd.OutOrStdout(), outputFormat, out)
		return err
	}

	w := cmd.OutOrStdout()
	if err := printRecords(w, res.Records); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nBatch %s: %d completed, %d failed, %d skipped in %s\n",
		res.BatchID, res.Completed, res.Failed, res.Skipped, res.Duration.Round(time.Millisecond))
	if summary != nil {
		fmt.Fprintln(w)
		return printSummary(w, summary)
	}
	return nil
}
