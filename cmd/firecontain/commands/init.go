package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/firecontain/pkg/settings"
)

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Initialize a firecontain workspace",
		Long: `Initialize a workspace with a settings file, an example scenario
document, a policy directory and the run archive.`,
		Example: `  # Initialize the current directory
  firecontain init

  # Initialize a new directory, overwriting existing files
  firecontain init ./district --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			dir, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			log.Info().Str("dir", dir).Bool("force", force).Msg("Initializing workspace")
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Initializing firecontain workspace in %s\n\n", dir)

			for _, sub := range []string{"scenarios", "policies", "data"} {
				path := filepath.Join(dir, sub)
				if err := os.MkdirAll(path, 0o755); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", path, err)
				}
				fmt.Fprintf(w, "✓ Created directory: %s\n", path)
			}

			dbPath := filepath.Join(dir, "data", "runs.db")
			files := []struct {
				path    string
				content string
			}{
				{filepath.Join(dir, settings.ConfigName+".yaml"), fmt.Sprintf(defaultSettings, dbPath, filepath.Join(dir, "policies"))},
				{filepath.Join(dir, "scenarios", "example.cue"), exampleScenario},
				{filepath.Join(dir, "policies", "budget.rego"), examplePolicy},
			}
			for _, f := range files {
				written, err := writeNew(f.path, f.content, force)
				if err != nil {
					return err
				}
				if written {
					fmt.Fprintf(w, "✓ Created file: %s\n", f.path)
				} else {
					fmt.Fprintf(w, "✓ File already exists: %s\n", f.path)
				}
			}

			store, err := openStore(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			if err := store.Close(); err != nil {
				return err
			}
			fmt.Fprintf(w, "✓ Initialized run archive: %s\n", dbPath)

			fmt.Fprintf(w, "\nNext: cd %s && firecontain run scenarios/\n", dir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}

// writeNew writes a file unless it exists and force is off.
func writeNew(path, content string, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return false, err
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}

const defaultSettings = `# firecontain settings
logLevel: info
logFormat: console
environment: development

store:
  enabled: true
  path: %s

batch:
  workers: 4
  failFast: false

policy:
  enabled: true
  builtin: true
  dir: %s

metrics:
  enabled: false
  address: ":9464"

tracing:
  exporter: none

starlark:
  timeout: 30s
`

const exampleScenario = `// Grass fire attacked by two engines and a hand crew.
_units: {
	area:  "ac"
	speed: "ch/h"
	time:  "h"
}

rosters: district: [
	{description: "Engine 11", arrival: 0.25, production: 20, duration: 8, base_cost: 500, hour_cost: 150},
	{description: "Engine 12", arrival: 0.5, production: 20, duration: 8, base_cost: 500, hour_cost: 150},
	{description: "Crew 3", arrival: 1, production: 8, duration: 12, base_cost: 900, hour_cost: 400},
]

scenarios: {
	grass: {
		description: "Light wind, head attack"
		units:       _units
		roster:      "district"
		report_size: 2
		report_rate: 10
		lw_ratio:    2.5
	}

	grass_rear: {
		description: "Same fire attacked from the rear"
		units:       _units
		roster:      "district"
		report_size: 2
		report_rate: 10
		lw_ratio:    2.5
		tactic:      "rear"
	}
}
`

const examplePolicy = `# Contained fires must stay within the initial attack budget.
# severity: warning
package firecontain.budget

import rego.v1

deny contains msg if {
	input.outcome.status == "contained"
	input.outcome.cost > 25000
	msg := sprintf("initial attack cost %.0f exceeds the budget of 25000", [input.outcome.cost])
}
`
