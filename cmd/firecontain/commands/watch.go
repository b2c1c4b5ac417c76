package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/firecontain/pkg/config"
	"github.com/openfroyo/firecontain/pkg/policy"
	"github.com/openfroyo/firecontain/pkg/scenario"
)

// defaultDebounce collapses the burst of events an editor save produces.
const defaultDebounce = 300 * time.Millisecond

func newWatchCommand(version string) *cobra.Command {
	var (
		names    []string
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <document>...",
		Short: "Re-run scenarios whenever their documents change",
		Long: `Watch scenario documents and re-run their scenarios on every change.

Policy files in the configured policy directory are watched too and
reloaded without restarting. When metrics are enabled in the settings the
metrics endpoint is served for as long as the command runs.`,
		Example: `  # Iterate on a scenario while editing it
  firecontain watch ridge.cue

  # Watch a directory and expose metrics
  FIRECONTAIN_METRICS_ENABLED=true firecontain watch scenarios/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(outputFormat); err != nil {
				return err
			}

			a, ctx, err := newApp(cmd.Context(), version, appOptions{metrics: true})
			if err != nil {
				return err
			}
			defer a.close()

			if a.policies != nil && a.settings.Policy.Dir != "" {
				loader := policy.NewLoader(log.Logger)
				if err := loader.Watch(ctx, []string{a.settings.Policy.Dir}, a.policies.ReplacePolicies); err != nil {
					return fmt.Errorf("failed to watch policies: %w", err)
				}
				defer loader.StopWatching()
			}

			w := &scenarioWatcher{
				app:      a,
				sources:  args,
				names:    splitList(names),
				runner:   a.runner("watch"),
				debounce: debounce,
				cmd:      cmd,
			}
			return w.run(ctx)
		},
	}

	cmd.Flags().StringSliceVarP(&names, "scenario", "s", nil, "run only the named scenarios")
	cmd.Flags().DurationVar(&debounce, "debounce", defaultDebounce, "quiet period before re-running")

	return cmd
}

// scenarioWatcher re-runs scenarios when their documents change.
type scenarioWatcher struct {
	app      *app
	sources  []string
	names    []string
	runner   *scenario.Runner
	debounce time.Duration
	cmd      *cobra.Command
}

func (sw *scenarioWatcher) run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range sw.watchDirs() {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		log.Debug().Str("dir", dir).Msg("Watching directory")
	}

	sw.runAll(ctx)
	log.Info().Strs("sources", sw.sources).Msg("Watching for changes, press Ctrl+C to stop")

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !sw.relevant(event) {
				continue
			}
			log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Scenario document changed")
			if err := sw.app.tel.Events.PublishScenarioChanged(event.Name, event.Op.String()); err != nil {
				log.Debug().Err(err).Msg("Scenario change event not published")
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(sw.debounce)
			} else {
				timer.Reset(sw.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			sw.runAll(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Watcher error")
		}
	}
}

// watchDirs lists the directories holding the sources. Directories are
// watched recursively; files through their parent, which survives editors
// that replace files on save.
func (sw *scenarioWatcher) watchDirs() []string {
	seen := make(map[string]bool)
	var dirs []string
	add := func(dir string) {
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	for _, src := range sw.sources {
		info, err := os.Stat(src)
		if err != nil || !info.IsDir() {
			add(filepath.Dir(src))
			continue
		}
		_ = filepath.Walk(src, func(path string, fi os.FileInfo, err error) error {
			if err != nil || !fi.IsDir() {
				return nil
			}
			if path != src && len(fi.Name()) > 1 && fi.Name()[0] == '.' {
				return filepath.SkipDir
			}
			add(path)
			return nil
		})
	}
	return dirs
}

// relevant reports whether an event touches a scenario document, roster or
// script of a watched source.
func (sw *scenarioWatcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	switch filepath.Ext(event.Name) {
	case ".cue", ".yaml", ".yml", ".json", ".star", ".roster":
	default:
		return false
	}

	for _, src := range sw.sources {
		if info, err := os.Stat(src); err == nil && info.IsDir() {
			return true
		}
		if filepath.Clean(src) == filepath.Clean(event.Name) || filepath.Dir(src) == filepath.Dir(event.Name) {
			return true
		}
	}
	return false
}

// runAll parses the sources and runs the selected scenarios. Problems are
// reported and the watch goes on.
func (sw *scenarioWatcher) runAll(ctx context.Context) {
	parsed, err := sw.app.parser.Parse(ctx, sw.sources)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read scenario documents")
		return
	}
	if parsed.HasErrors() {
		for _, e := range parsed.Errors {
			if e.Severity == config.SeverityError {
				log.Error().Msg(e.Error())
			}
		}
		return
	}

	selected, err := selectScenarios(parsed.Scenarios, sw.names)
	if err != nil {
		log.Error().Err(err).Msg("Scenario selection failed")
		return
	}

	out := sw.cmd.OutOrStdout()
	fmt.Fprintf(out, "\n--- %s ---\n", time.Now().Format(time.TimeOnly))
	var reports []runReport
	for _, s := range selected {
		if ctx.Err() != nil {
			return
		}
		rec, err := sw.runner.Run(ctx, s)
		if err != nil {
			log.Error().Err(err).Str("scenario", s.Name).Msg("Failed to archive run")
		}
		result, err := sw.app.evaluate(ctx, rec)
		if err != nil {
			log.Error().Err(err).Str("scenario", s.Name).Msg("Policy evaluation failed")
		}
		reports = append(reports, newRunReport(rec, result))

		if outputFormat == formatTable {
			if err := printOutcome(out, rec, result); err != nil {
				log.Error().Err(err).Msg("Failed to print outcome")
			}
			fmt.Fprintln(out)
		}
	}
	if _, err := encode(out, outputFormat, reports); err != nil {
		log.Error().Err(err).Msg("Failed to print outcomes")
	}
}
