package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/firecontain/pkg/contain"
	"github.com/openfroyo/firecontain/pkg/scenario"
)

func newRunCommand(version string) *cobra.Command {
	var (
		names      []string
		geojsonOut string
		wkt        bool
		trace      bool
	)

	cmd := &cobra.Command{
		Use:   "run <document>...",
		Short: "Simulate scenarios one after another",
		Long: `Simulate the scenarios defined in CUE, YAML or JSON documents.

Each run is archived unless --no-store is given, and its outcome is checked
against the acceptance policies. The command exits with status 2 when an
outcome raises an error or critical policy violation.`,
		Example: `  # Run every scenario in a document
  firecontain run grass.cue

  # Run one scenario and print the outcome as JSON
  firecontain run scenarios/ --scenario ridge -o json

  # Export the fireline of a contained fire
  firecontain run ridge.cue --geojson ridge.geojson

  # Show how every simulation pass was resolved
  firecontain run ridge.cue --trace`,
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
				Bool("store", a.store != nil).
				Msg("Running scenarios")

			var observers []contain.Observer
			if trace {
				observers = append(observers, traceObserver(cmd.ErrOrStderr()))
			}
			runner := a.runner("cli", observers...)

			var (
				reports  []runReport
				records  []*scenario.Record
				features []*scenario.Feature
				failed   int
				blocked  int
			)
			for _, s := range selected {
				if err := ctx.Err(); err != nil {
					return err
				}

				rec, err := runner.Run(ctx, s)
				if err != nil {
					return err
				}
				result, err := a.evaluate(ctx, rec)
				if err != nil {
					return err
				}
				records = append(records, rec)
				reports = append(reports, newRunReport(rec, result))
				if rec.Err != nil {
					failed++
				}
				if result != nil && !result.Allowed {
					blocked++
				}

				if geojsonOut != "" || wkt {
					f, err := exportFireline(cmd.OutOrStdout(), rec, wkt)
					if err != nil {
						return err
					}
					if f != nil {
						features = append(features, f)
					}
				}

				if outputFormat == formatTable {
					if err := printOutcome(cmd.OutOrStdout(), rec, result); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout())
				}
			}

			if outputFormat == formatTable && len(records) > 1 {
				if err := printRecords(cmd.OutOrStdout(), records); err != nil {
					return err
				}
			} else if _, err := encode(cmd.OutOrStdout(), outputFormat, reports); err != nil {
				return err
			}

			if geojsonOut != "" {
				if err := writeFeatures(geojsonOut, cmd.OutOrStdout(), features); err != nil {
					return err
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", failed, len(selected))
			}
			if blocked > 0 {
				return fmt.Errorf("%d of %d outcomes: %w", blocked, len(selected), ErrPolicyBlocked)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&names, "scenario", "s", nil, "run only the named scenarios")
	cmd.Flags().StringVar(&geojsonOut, "geojson", "", "write the firelines as a GeoJSON feature collection (- for stdout)")
	cmd.Flags().BoolVar(&wkt, "wkt", false, "print the fireline of each run as WKT")
	cmd.Flags().BoolVar(&trace, "trace", false, "print how every simulation pass was resolved")

	return cmd
}

// traceObserver prints one line per resolved pass.
func traceObserver(w io.Writer) contain.Observer {
	return contain.ObserverFuncs{
		Pass: func(e contain.PassEvent) {
			rerun := ""
			if e.Rerun {
				rerun = " (rerun)"
			}
			fmt.Fprintf(w, "pass %d: %s after %d steps, %.1f min, step %.1f ft%s\n",
				e.Pass, e.Reason, e.Steps, e.Elapsed, e.DistStep, rerun)
		},
	}
}

// exportFireline builds the GeoJSON feature of a run and optionally prints
// its WKT. Runs without a fireline yield nil.
func exportFireline(w io.Writer, rec *scenario.Record, wkt bool) (*scenario.Feature, error) {
	if rec.Outcome == nil {
		return nil, nil
	}

	if wkt {
		line, err := scenario.Fireline(rec.Outcome.Result)
		if err == nil && rec.Scenario.Anchor != nil {
			line, err = rec.Scenario.Anchor.Geographic(line)
		}
		switch {
		case errors.Is(err, scenario.ErrNoFireline):
			fmt.Fprintf(w, "%s: no fireline\n", rec.Scenario.Name)
		case err != nil:
			return nil, err
		default:
			fmt.Fprintf(w, "%s: %s\n", rec.Scenario.Name, line.AsText())
		}
	}

	f, err := scenario.FirelineFeature(rec.Outcome, rec.Scenario.Anchor)
	if errors.Is(err, scenario.ErrNoFireline) {
		log.Debug().Str("scenario", rec.Scenario.Name).Msg("No fireline to export")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", rec.Scenario.Name, err)
	}
	f.Properties["run_id"] = rec.RunID
	return f, nil
}

// writeFeatures writes a GeoJSON feature collection to path, or to stdout
// when path is "-".
func writeFeatures(path string, stdout io.Writer, features []*scenario.Feature) error {
	if features == nil {
		features = []*scenario.Feature{}
	}
	data, err := json.MarshalIndent(map[string]interface{}{
		"type":     "FeatureCollection",
		"features": features,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	log.Info().Str("path", path).Int("features", len(features)).Msg("Wrote firelines")
	return nil
}
