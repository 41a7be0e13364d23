package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect persisted resource state and apply history",
	}
	cmd.AddCommand(newStateListCommand())
	cmd.AddCommand(newStateShowCommand())
	cmd.AddCommand(newStateHistoryCommand())
	cmd.AddCommand(newStateDriftCommand())
	return cmd
}

func newStateListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every persisted resource",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStateStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			resources, err := st.ListResources(ctx)
			if err != nil {
				return fmt.Errorf("list resources: %w", err)
			}
			if jsonOutput {
				return printJSON(resources)
			}
			if len(resources) == 0 {
				fmt.Println("no persisted resources")
				return nil
			}
			for _, rs := range resources {
				fmt.Printf("%-40s %-10s %s\n", rs.ID, rs.Status, rs.AppliedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newStateShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show the persisted state for one resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStateStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			rs, err := st.GetResource(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get resource %s: %w", args[0], err)
			}
			return printJSON(rs)
		},
	}
}

func newStateHistoryCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show apply history for one resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStateStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			hist, err := st.ListHistory(ctx, args[0], limit)
			if err != nil {
				return fmt.Errorf("list history for %s: %w", args[0], err)
			}
			if jsonOutput {
				return printJSON(hist)
			}
			if len(hist) == 0 {
				fmt.Println("no history")
				return nil
			}
			for _, h := range hist {
				status := "ok"
				if !h.Success {
					status = "FAILED: " + h.Error
				}
				fmt.Printf("%s  %-10s %-10s %s\n", h.Timestamp.Format("2006-01-02 15:04:05"), h.Action, status, h.User)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of entries to show")
	return cmd
}

func newStateDriftCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drift",
		Short: "List resources whose persisted status is drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStateStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			drifted, err := st.ListDrifted(ctx)
			if err != nil {
				return fmt.Errorf("list drifted resources: %w", err)
			}
			if jsonOutput {
				return printJSON(drifted)
			}
			if len(drifted) == 0 {
				fmt.Println("no drift recorded")
				return nil
			}
			for _, rs := range drifted {
				fmt.Printf("%-40s drifted at %s\n", rs.ID, rs.AppliedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
