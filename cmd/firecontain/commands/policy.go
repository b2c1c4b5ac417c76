package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openfroyo/firecontain/pkg/policy"
)

func newPolicyCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect outcome acceptance policies",
		Long: `Inspect the Rego policies outcomes are checked against.

The built-in policies require containment, flag large and long fires and
report idle resources. Additional policies are loaded from the policy
directory (--policy-dir or policy.dir in the settings).`,
	}

	cmd.AddCommand(newPolicyListCommand(version))
	cmd.AddCommand(newPolicyShowCommand(version))
	cmd.AddCommand(newPolicyCheckCommand(version))

	return cmd
}

// policyEngine bootstraps the app and requires policies to be enabled.
func policyEngine(cmd *cobra.Command, version string, opts appOptions) (*app, error) {
	a, ctx, err := newApp(cmd.Context(), version, opts)
	if err != nil {
		return nil, err
	}
	cmd.SetContext(ctx)
	if a.policies == nil {
		a.close()
		return nil, fmt.Errorf("policies are disabled")
	}
	return a, nil
}

func newPolicyListCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List loaded policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(outputFormat); err != nil {
				return err
			}
			a, err := policyEngine(cmd, version, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			policies := a.policies.ListPolicies()
			if ok, err := encode(cmd.OutOrStdout(), outputFormat, policies); ok {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSEVERITY\tENABLED\tSOURCE\tDESCRIPTION")
			for _, p := range policies {
				source := "file"
				if p.Builtin {
					source = "builtin"
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", p.Name, p.Severity, p.Enabled, source, p.Description)
			}
			return tw.Flush()
		},
	}
}

func newPolicyShowCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print the Rego source of a policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := policyEngine(cmd, version, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			p, err := a.policies.GetPolicy(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(p.Rego))
			return nil
		},
	}
}

func newPolicyCheckCommand(version string) *cobra.Command {
	var (
		disable []string
		save    bool
	)

	cmd := &cobra.Command{
		Use:   "check <run-id>",
		Short: "Evaluate the current policies against an archived run",
		Long: `Evaluate the current policies against the outcome of an archived run.

Use this after changing policies to see how earlier runs would fare.`,
		Example: `  # Re-check a run without the idle resources report
  firecontain policy check 0b6f... --disable idle-resources`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(outputFormat); err != nil {
				return err
			}
			a, err := policyEngine(cmd, version, appOptions{needStore: true})
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			if err := a.policies.DisablePolicies(splitList(disable)); err != nil {
				return err
			}

			run, err := a.store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			out, err := run.Outcome()
			if err != nil {
				return err
			}
			if out == nil {
				return fmt.Errorf("run %s failed and has no outcome", run.ID)
			}
			spec, err := run.ScenarioSpec()
			if err != nil {
				return err
			}

			input := &policy.Input{
				Scenario: spec,
				Outcome:  out,
				Context:  &policy.Context{RunID: run.ID},
			}
			if run.BatchID != nil {
				input.Context.BatchID = *run.BatchID
			}
			result, err := a.policies.Evaluate(ctx, input)
			if err != nil {
				return err
			}
			if save {
				if err := a.store.SavePolicyResults(ctx, policy.StoreResults(run.ID, result)); err != nil {
					return err
				}
			}

			if ok, err := encode(cmd.OutOrStdout(), outputFormat, result); ok {
				if err != nil {
					return err
				}
			} else {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Run %s (%s, %s)\n", run.ID, run.Scenario, run.Status)
				for _, v := range result.Violations {
					fmt.Fprintf(w, "  [%s] %s: %s\n", v.Severity, v.Policy, v.Message)
				}
				for _, e := range result.Errors {
					fmt.Fprintf(w, "  [error] %s\n", e)
				}
				if len(result.Violations) == 0 {
					fmt.Fprintf(w, "  ✓ no violations in %d policies\n", len(result.EvaluatedPolicies))
				}
			}

			if !result.Allowed {
				return ErrPolicyBlocked
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&disable, "disable", nil, "policies to skip")
	cmd.Flags().BoolVar(&save, "save", false, "archive the new verdicts with the run")

	return cmd
}
