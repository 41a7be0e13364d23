package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/statecraft/statecraft/examples"
	"github.com/statecraft/statecraft/pkg/executor"
	"github.com/statecraft/statecraft/pkg/resource"
	"github.com/statecraft/statecraft/pkg/store"
)

func newPlanCommand() *cobra.Command {
	var (
		rf        remoteFlags
		watchFile string
	)

	cmd := &cobra.Command{
		Use:   "plan <script>",
		Short: "Compute the plan for a registered script without applying it",
		Example: `  statecraft plan webserver
  statecraft plan webserver --host 10.0.0.5 --user root --key ~/.ssh/id_ed25519
  statecraft plan webserver --watch --watch-file examples/webserver.go`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := scriptArg(args)
			if err != nil {
				return err
			}

			run := func(ctx context.Context) error {
				pr, err := runPlan(ctx, name, &rf)
				if err != nil {
					return err
				}
				printPlan(pr)
				return nil
			}

			ctx := cmd.Context()
			if watchFile == "" {
				return run(ctx)
			}
			return watchAndRun(ctx, watchFile, run)
		},
	}

	rf.register(cmd.Flags())
	cmd.Flags().StringVar(&watchFile, "watch-file", "", "re-run whenever this file changes")
	cmd.Flags().Bool("watch", false, "accepted for compatibility and has no effect; re-running is controlled by --watch-file")

	return cmd
}

// buildFromScript resolves name in the examples registry, builds a
// transport, store, and policy-attached executor against rf, and runs the
// script's Build against it. The caller owns the returned store and must
// close it.
func buildFromScript(ctx context.Context, name string, rf *remoteFlags) (*executor.Executor, *store.SQLiteStore, error) {
	build, err := examples.Lookup(name)
	if err != nil {
		return nil, nil, err
	}

	tr, err := rf.buildTransport()
	if err != nil {
		return nil, nil, fmt.Errorf("build transport: %w", err)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	eng, err := newPolicyEngine(logger, policyPaths)
	if err != nil {
		return nil, nil, err
	}

	st, err := openStateStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	ex := buildExecutor(ctx, tr, eng, st, rf.user)
	if err := build(ctx, ex); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("build script %q: %w", name, err)
	}
	return ex, st, nil
}

// runPlan builds the script and computes its plan, closing the store
// before returning since planning alone never persists.
func runPlan(ctx context.Context, name string, rf *remoteFlags) (*resource.PlanResult, error) {
	ex, st, err := buildFromScript(ctx, name, rf)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return ex.Plan(ctx), nil
}

func printPlan(pr *resource.PlanResult) {
	if jsonOutput {
		b, _ := json.MarshalIndent(pr, "", "  ")
		fmt.Println(string(b))
		return
	}

	if len(pr.Order) == 0 {
		fmt.Println("no resources registered")
		return
	}

	for _, id := range pr.Order {
		if err, ok := pr.Errors[id]; ok {
			fmt.Printf("%-40s ERROR: %v\n", id, err)
			continue
		}
		plan := pr.Plans[id]
		if !plan.HasChanges() {
			fmt.Printf("%-40s %s\n", id, plan.Action)
			continue
		}
		fmt.Printf("%-40s %s\n", id, plan.Action)
		for _, c := range plan.Changes {
			fmt.Printf("  %-20s %v -> %v\n", c.Field, c.From, c.To)
		}
	}
	fmt.Printf("\n%d resource(s), %d change(s)\n", len(pr.Order), pr.ChangeCount())
}

// watchAndRun invokes run once immediately, then again each time path
// changes, via a single-file fsnotify subscription. It only re-triggers the
// run; it never reloads code, since scripts are compiled-in Go functions.
func watchAndRun(ctx context.Context, path string, run func(context.Context) error) error {
	if err := run(ctx); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	fmt.Printf("watching %s for changes (ctrl-c to stop)\n", path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := run(ctx); err != nil {
				fmt.Printf("run failed: %v\n", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Printf("watch error: %v\n", err)
		}
	}
}
