// Package commands implements the statecraft CLI as a cobra tree: one
// subcommand per operation, persistent flags for cross-cutting concerns,
// zerolog for command-level logging.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	jsonOutput  bool
	policyPaths []string
)

// Execute runs the root command.
func Execute(ctx context.Context, version string) error {
	return newRootCommand(version).ExecuteContext(ctx)
}

func newRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:     "statecraft",
		Short:   "Declarative configuration management: check, plan, apply",
		Version: version,
		Long: `statecraft drives a Check -> Plan -> Apply pipeline against Go-built
resource declarations (see examples/ for the registration convention),
targeting either the local machine or a single remote host over secure
shell.`,
	}

	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON output")
	root.PersistentFlags().StringSliceVar(&policyPaths, "policy", nil, "additional .rego policy files or directories")

	root.AddCommand(newPlanCommand())
	root.AddCommand(newApplyCommand())
	root.AddCommand(newStateCommand())
	root.AddCommand(newCheckDriftCommand())

	return root
}

func scriptArg(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected exactly one script name (see `statecraft plan --help`)")
	}
	return args[0], nil
}
