package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/firecontain/pkg/stores"
)

func newHistoryCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the run archive",
		Long: `Inspect and maintain the archive of simulation runs.

Every run, batch, policy verdict and notable event is stored in a local
SQLite database (see the store settings).`,
	}

	cmd.AddCommand(newHistoryListCommand(version))
	cmd.AddCommand(newHistoryShowCommand(version))
	cmd.AddCommand(newHistoryStatsCommand(version))
	cmd.AddCommand(newHistoryEventsCommand(version))
	cmd.AddCommand(newHistoryPruneCommand(version))

	return cmd
}

// withStore runs fn against the archive.
func withStore(cmd *cobra.Command, version string, fn func(ctx context.Context, store *stores.SQLiteStore) error) error {
	if err := checkFormat(outputFormat); err != nil {
		return err
	}
	a, ctx, err := newApp(cmd.Context(), version, appOptions{needStore: true})
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a.store)
}

func newHistoryListCommand(version string) *cobra.Command {
	var (
		filter stores.RunFilter
		since  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived runs, newest first",
		Example: `  # Last 20 runs
  firecontain history list

  # Overrun runs of one scenario during the last day
  firecontain history list --scenario ridge --status overrun --since 24h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, version, func(ctx context.Context, store *stores.SQLiteStore) error {
				if since > 0 {
					filter.Since = time.Now().Add(-since)
				}
				runs, err := store.ListRuns(ctx, filter)
				if err != nil {
					return err
				}
				if ok, err := encode(cmd.OutOrStdout(), outputFormat, runs); ok {
					return err
				}
				return printRuns(cmd.OutOrStdout(), runs)
			})
		},
	}

	cmd.Flags().StringVar(&filter.Scenario, "scenario", "", "only runs of this scenario")
	cmd.Flags().StringVar(&filter.Status, "status", "", "only runs with this status")
	cmd.Flags().StringVar(&filter.BatchID, "batch", "", "only runs of this batch")
	cmd.Flags().DurationVar(&since, "since", 0, "only runs started within this duration")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "maximum number of runs (0 for all)")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "skip this many runs")

	return cmd
}

// runDetail is the structured output of history show.
type runDetail struct {
	Run      *stores.Run            `json:"run" yaml:"run"`
	Policies []*stores.PolicyResult `json:"policies,omitempty" yaml:"policies,omitempty"`
	Events   []*stores.Event        `json:"events,omitempty" yaml:"events,omitempty"`
}

func newHistoryShowCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show an archived run with its policy verdicts and events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, version, func(ctx context.Context, store *stores.SQLiteStore) error {
				run, err := store.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				detail := runDetail{Run: run}
				if detail.Policies, err = store.ListPolicyResults(ctx, run.ID); err != nil {
					return err
				}
				if detail.Events, err = store.GetEvents(ctx, stores.EventFilter{RunID: run.ID}); err != nil {
					return err
				}
				if ok, err := encode(cmd.OutOrStdout(), outputFormat, detail); ok {
					return err
				}
				return printRunDetail(cmd, detail)
			})
		},
	}
	return cmd
}

func printRunDetail(cmd *cobra.Command, d runDetail) error {
	w := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	r := d.Run
	fmt.Fprintf(tw, "Run:\t%s\n", r.ID)
	if r.BatchID != nil {
		fmt.Fprintf(tw, "Batch:\t%s\n", *r.BatchID)
	}
	fmt.Fprintf(tw, "Scenario:\t%s\n", r.Scenario)
	fmt.Fprintf(tw, "Status:\t%s\n", r.Status)
	if r.Error != nil {
		fmt.Fprintf(tw, "Error:\t%s\n", *r.Error)
	}
	fmt.Fprintf(tw, "Started:\t%s (%d ms)\n", r.StartedAt.Local().Format(time.DateTime), r.DurationMs)
	fmt.Fprintf(tw, "Time:\t%.1f min\n", r.TimeMin)
	fmt.Fprintf(tw, "Fire size:\t%.2f ac\n", r.FireSizeAc)
	fmt.Fprintf(tw, "Containment area:\t%.2f ac\n", r.ContainmentAc)
	fmt.Fprintf(tw, "Fireline:\t%.0f ft\n", r.FirelineFt)
	fmt.Fprintf(tw, "Cost:\t%.2f\n", r.Cost)
	fmt.Fprintf(tw, "Resources used:\t%d\n", r.ResourcesUsed)
	fmt.Fprintf(tw, "Passes:\t%d\n", r.Passes)
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(d.Policies) > 0 {
		fmt.Fprintln(w, "\nPolicies:")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, p := range d.Policies {
			verdict := "pass"
			if !p.Allowed {
				verdict = "FAIL"
			} else if p.Message != "" {
				verdict = "warn"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", verdict, p.Policy, p.Severity, p.Message)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(d.Events) > 0 {
		fmt.Fprintln(w, "\nEvents:")
		for _, e := range d.Events {
			fmt.Fprintf(w, "  %s  %-7s %s\n", e.Timestamp.Local().Format(time.TimeOnly), e.Level, e.Message)
		}
	}
	return nil
}

func newHistoryStatsCommand(version string) *cobra.Command {
	var scenarioName string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize archived runs by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, version, func(ctx context.Context, store *stores.SQLiteStore) error {
				counts, err := store.StatusCounts(ctx, scenarioName)
				if err != nil {
					return err
				}
				if ok, err := encode(cmd.OutOrStdout(), outputFormat, counts); ok {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "STATUS\tRUNS\tMEAN COST\tMEAN TIME (min)")
				for _, c := range counts {
					fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.1f\n", c.Status, c.Runs, c.MeanCost, c.MeanTime)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&scenarioName, "scenario", "", "only runs of this scenario")
	return cmd
}

func newHistoryEventsCommand(version string) *cobra.Command {
	var (
		filter stores.EventFilter
		level  string
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List archived events",
		Example: `  # Policy violations of the last runs
  firecontain history events --type policy.violation`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, version, func(ctx context.Context, store *stores.SQLiteStore) error {
				filter.Level = stores.EventLevel(level)
				events, err := store.GetEvents(ctx, filter)
				if err != nil {
					return err
				}
				if ok, err := encode(cmd.OutOrStdout(), outputFormat, events); ok {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tLEVEL\tTYPE\tMESSAGE")
				for _, e := range events {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Timestamp.Local().Format(time.DateTime), e.Level, e.Type, e.Message)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&filter.RunID, "run", "", "only events of this run")
	cmd.Flags().StringVar(&filter.BatchID, "batch", "", "only events of this batch")
	cmd.Flags().StringVar(&filter.Type, "type", "", "only events of this type")
	cmd.Flags().StringVar(&level, "level", "", "only events of this level (info, warning, error)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum number of events (0 for all)")

	return cmd
}

func newHistoryPruneCommand(version string) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete archived runs older than a duration",
		Example: `  # Keep the last 30 days
  firecontain history prune --older-than 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return withStore(cmd, version, func(ctx context.Context, store *stores.SQLiteStore) error {
				before := time.Now().Add(-olderThan)
				n, err := store.PruneRuns(ctx, before)
				if err != nil {
					return err
				}
				log.Info().Int64("runs", n).Time("before", before).Msg("Pruned run archive")
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d runs\n", n)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the runs to delete")
	return cmd
}
