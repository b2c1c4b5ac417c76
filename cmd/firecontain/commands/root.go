package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrPolicyBlocked is returned when an outcome raised an error or critical
// policy violation.
var ErrPolicyBlocked = errors.New("blocking policy violation")

var (
	// Global flags
	configPath   string
	outputFormat string
	noStore      bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "firecontain",
		Short: "Firecontain - wildfire initial attack containment simulator",
		Long: `Firecontain simulates the initial attack on an elliptical wildfire by
fireline building resources and reports whether, when and at what cost
the fire is contained.

Features:
  - Typed scenario documents via CUE, YAML or JSON
  - Scenario generators and diurnal curves via Starlark
  - Parallel batch runs with a bounded worker pool
  - Run archive in SQLite with history and statistics
  - Outcome acceptance policies in Rego
  - GeoJSON and WKT export of the constructed fireline`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "config file path (default ./firecontain.yaml, then ~/.firecontain/)")
	flags.StringVarP(&outputFormat, "output", "o", "table", "output format (table, json, yaml)")
	flags.BoolVar(&noStore, "no-store", false, "do not archive runs")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "", "log format (console, json)")
	flags.String("store", "", "run archive database path")
	flags.String("policy-dir", "", "directory or file of additional Rego policies")
	bindFlags(flags, map[string]string{
		"logLevel":   "log-level",
		"logFormat":  "log-format",
		"store.path": "store",
		"policy.dir": "policy-dir",
	})

	// Add subcommands
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newRunCommand(version))
	rootCmd.AddCommand(newBatchCommand(version))
	rootCmd.AddCommand(newWatchCommand(version))
	rootCmd.AddCommand(newHistoryCommand(version))
	rootCmd.AddCommand(newPolicyCommand(version))
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}

// bindFlags binds settings keys to flags. A bound flag overrides the config
// file and environment only when it is set.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = viper.BindPFlag(key, flags.Lookup(name))
	}
}
