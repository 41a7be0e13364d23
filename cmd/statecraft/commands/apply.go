package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/statecraft/statecraft/pkg/executor"
	"github.com/statecraft/statecraft/pkg/policy"
	"github.com/statecraft/statecraft/pkg/resource"
)

func newApplyCommand() *cobra.Command {
	var (
		rf        remoteFlags
		yes       bool
		watchFile string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "apply <script>",
		Short: "Plan and apply a registered script",
		Example: `  statecraft apply webserver --yes
  statecraft apply webserver --host 10.0.0.5 --user root --key ~/.ssh/id_ed25519 --escalate --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := scriptArg(args)
			if err != nil {
				return err
			}

			run := func(ctx context.Context) error {
				return runApply(ctx, name, &rf, yes, dryRun)
			}

			ctx := cmd.Context()
			if watchFile == "" {
				return run(ctx)
			}
			return watchAndRun(ctx, watchFile, run)
		},
	}

	rf.register(cmd.Flags())
	cmd.Flags().BoolVar(&yes, "yes", false, "apply without an interactive confirmation prompt")
	cmd.Flags().StringVar(&watchFile, "watch-file", "", "re-plan and re-apply whenever this file changes")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute and print the plan without applying it")

	return cmd
}

func runApply(ctx context.Context, name string, rf *remoteFlags, yes, dryRun bool) error {
	ex, st, err := buildFromScript(ctx, name, rf)
	if err != nil {
		return err
	}
	defer st.Close()

	pr := ex.Plan(ctx)
	printPlan(pr)

	if pr.HasErrors() {
		return fmt.Errorf("planning failed for %d resource(s)", len(pr.Errors))
	}
	if !pr.HasChanges() {
		fmt.Println("nothing to do")
		return nil
	}
	if dryRun {
		return nil
	}
	if !yes && !confirm() {
		fmt.Println("aborted")
		return nil
	}

	ar, err := ex.Apply(ctx, pr, executor.ApplyOptions{
		Persist: true,
		Policy:  policy.Context{User: rf.user, DryRun: false},
	})
	if err != nil {
		if err == executor.ErrPolicyDenied {
			return fmt.Errorf("apply denied by policy")
		}
		return err
	}
	printApplyResult(ar)
	if !ar.Success() {
		return fmt.Errorf("apply completed with %d error(s)", len(ar.Errors))
	}
	return nil
}

func confirm() bool {
	fmt.Print("apply this plan? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.EqualFold(strings.TrimSpace(line), "y")
}

func printApplyResult(ar *resource.ApplyResult) {
	for _, id := range ar.Changed {
		fmt.Printf("%-40s applied\n", id)
	}
	for id, err := range ar.Errors {
		fmt.Printf("%-40s FAILED: %v\n", id, err)
	}
	fmt.Printf("\n%d changed, %d failed, took %s\n", len(ar.Changed), len(ar.Errors), ar.Duration)
}
