package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/statecraft/statecraft/pkg/drift"
	"github.com/statecraft/statecraft/pkg/executor"
	"github.com/statecraft/statecraft/pkg/policy"
)

func newCheckDriftCommand() *cobra.Command {
	var (
		rf  remoteFlags
		fix bool
	)

	cmd := &cobra.Command{
		Use:   "check-drift <script>",
		Short: "Re-check every persisted resource against its live state",
		Long: `Recreates each persisted resource from its stored type and name, runs a
fresh check against the target, and flips any resource whose observed
state no longer matches what was recorded to drift status.

With --fix, resources reported as drifted are then re-planned and
re-applied against <script> to bring the target back to the script's
desired state.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := scriptArg(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			ex, st, err := buildFromScript(ctx, name, &rf)
			if err != nil {
				return err
			}
			defer st.Close()

			d := drift.New(st, ex.Transport(), ex.Platform())
			reports, err := d.CheckAll(ctx)
			if err != nil {
				return fmt.Errorf("check drift: %w", err)
			}

			anyDrift := false
			for _, r := range reports {
				if !r.Drifted {
					continue
				}
				anyDrift = true
				fmt.Printf("%-40s DRIFTED\n", r.ResourceID)
				for field, fd := range r.Fields {
					fmt.Printf("  %-20s expected=%v actual=%v\n", field, fd.Expected, fd.Actual)
				}
			}
			if !anyDrift {
				fmt.Println("no drift detected")
				return nil
			}

			if !fix {
				return nil
			}

			fmt.Println("\nreconciling drift by re-applying the script...")
			pr := ex.Plan(ctx)
			printPlan(pr)
			if pr.HasErrors() {
				return fmt.Errorf("planning failed for %d resource(s)", len(pr.Errors))
			}
			if !pr.HasChanges() {
				fmt.Println("script already matches target state")
				return nil
			}
			ar, err := ex.Apply(ctx, pr, executor.ApplyOptions{
				Persist: true,
				Policy:  policy.Context{User: rf.user},
			})
			if err != nil {
				return err
			}
			printApplyResult(ar)
			if !ar.Success() {
				return fmt.Errorf("reconciliation completed with %d error(s)", len(ar.Errors))
			}
			return nil
		},
	}

	rf.register(cmd.Flags())
	cmd.Flags().BoolVar(&fix, "fix", false, "re-apply the script to reconcile drifted resources")

	return cmd
}
