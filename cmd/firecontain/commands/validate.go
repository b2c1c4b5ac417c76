package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/firecontain/pkg/config"
	"github.com/openfroyo/firecontain/pkg/policy"
	"github.com/openfroyo/firecontain/pkg/settings"
)

func newValidateCommand() *cobra.Command {
	var (
		strict      bool
		schema      string
		listSchemas bool
		policies    bool
	)

	cmd := &cobra.Command{
		Use:   "validate [path]...",
		Short: "Validate scenario documents",
		Long: `Validate scenario documents without running them.

This command checks:
  - CUE, YAML and JSON syntax
  - Conformance to the built-in scenario and roster schemas
  - Roster references, roster files and Starlark generators
  - Optionally a custom CUE schema every scenario must satisfy
  - Optionally that the configured Rego policies compile`,
		Example: `  # Validate documents in the current directory
  firecontain validate

  # Treat warnings as errors and apply a local schema
  firecontain validate --strict --schema ./district.cue ./scenarios

  # List the built-in schemas
  firecontain validate --list-schemas`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(outputFormat); err != nil {
				return err
			}
			s, err := settings.Load(configPath)
			if err != nil {
				return err
			}
			if level, err := zerolog.ParseLevel(s.LogLevel); err == nil {
				zerolog.SetGlobalLevel(level)
			}

			parser := config.NewCUEParser(config.WithStarlarkTimeout(s.Starlark.Timeout))
			registry := parser.GetSchemaRegistry()
			if schema != "" {
				data, err := os.ReadFile(schema)
				if err != nil {
					return fmt.Errorf("failed to read schema: %w", err)
				}
				if err := registry.RegisterSchema(customSchemaName(schema), string(data)); err != nil {
					return err
				}
			}

			if listSchemas {
				for _, name := range registry.ListSchemas() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			paths := args
			if len(paths) == 0 {
				paths = []string{"."}
			}

			log.Info().
				Strs("paths", paths).
				Bool("strict", strict).
				Str("schema", schema).
				Msg("Validating scenario documents")

			ctx := cmd.Context()
			parsed, err := parser.Parse(ctx, paths)
			if err != nil {
				return err
			}

			if schema != "" {
				name := customSchemaName(schema)
				for _, sc := range parsed.Scenarios {
					if err := registry.ValidateAgainstSchema(ctx, name, sc); err != nil {
						parsed.Errors = append(parsed.Errors, config.ValidationError{
							File:     schema,
							Path:     "scenarios." + sc.Name,
							Message:  err.Error(),
							Severity: config.SeverityError,
						})
					}
				}
			}

			if policies {
				if err := checkPolicies(ctx, s); err != nil {
					parsed.Errors = append(parsed.Errors, config.ValidationError{
						File:     s.Policy.Dir,
						Message:  err.Error(),
						Severity: config.SeverityError,
					})
				}
			}

			encoded, err := encode(cmd.OutOrStdout(), outputFormat, parsed)
			if err != nil {
				return err
			}
			if !encoded {
				if err := printParsed(cmd, parsed); err != nil {
					return err
				}
			}

			errCount, warnCount := 0, 0
			for _, e := range parsed.Errors {
				if e.Severity == config.SeverityError {
					errCount++
				} else {
					warnCount++
				}
			}
			if errCount > 0 || (strict && warnCount > 0) {
				return fmt.Errorf("validation failed: %d errors, %d warnings", errCount, warnCount)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as errors")
	cmd.Flags().StringVar(&schema, "schema", "", "CUE schema file every scenario must also satisfy")
	cmd.Flags().BoolVar(&listSchemas, "list-schemas", false, "list the registered schemas and exit")
	cmd.Flags().BoolVar(&policies, "policies", false, "also check that the configured policies compile")

	return cmd
}

// customSchemaName names a schema file in the registry.
func customSchemaName(path string) string {
	return "custom:" + strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func checkPolicies(ctx context.Context, s *settings.Settings) error {
	var opts []policy.Option
	if !s.Policy.Builtin {
		opts = append(opts, policy.WithoutBuiltins())
	}
	engine, err := policy.NewEngine(log.Logger, opts...)
	if err != nil {
		return err
	}
	if s.Policy.Dir == "" {
		return nil
	}
	return engine.LoadPolicies(ctx, []string{s.Policy.Dir})
}

func printParsed(cmd *cobra.Command, parsed *config.ParsedConfig) error {
	w := cmd.OutOrStdout()
	if len(parsed.Scenarios) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SCENARIO\tREPORT SIZE\tREPORT RATE\tTACTIC\tRESOURCES")
		for _, s := range parsed.Scenarios {
			units := s.Units
			tactic := string(s.Tactic)
			if tactic == "" {
				tactic = "head"
			}
			fmt.Fprintf(tw, "%s\t%g %s\t%g %s\t%s\t%d\n",
				s.Name, s.ReportSize, unitOr(units.Area, "ac"), s.ReportRate, unitOr(units.Speed, "ft/min"), tactic, len(s.Resources))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	for _, e := range parsed.Errors {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", e.Severity, e.Error())
	}
	if !parsed.HasErrors() {
		fmt.Fprintf(w, "✓ %d scenarios in %d files are valid\n", len(parsed.Scenarios), len(parsed.SourceFiles))
	}
	return nil
}

func unitOr(unit, fallback string) string {
	if unit == "" {
		return fallback
	}
	return unit
}
