package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/taskflow/internal/agent"
	"github.com/aristath/taskflow/internal/persistence"
)

// openExistingStore opens the --db database without creating a new one.
func openExistingStore(cmd *cobra.Command) (*persistence.SQLiteStore, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no database at %s", dbPath)
	}
	store, err := persistence.NewSQLiteStore(cmd.Context(), dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

func newFlowsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "flows",
		Short: "List recorded flows, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openExistingStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			flows, err := store.ListFlows(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(flows) == 0 {
				fmt.Fprintln(out, "No flows recorded")
				return nil
			}
			for _, f := range flows {
				done, total, err := taskCounts(ctx, store, f.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s  %-20s  %d/%d tasks  %s\n", f.ID, f.Name, done, total, f.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func taskCounts(ctx context.Context, store persistence.Store, flowID string) (done, total int, err error) {
	tasks, err := store.ListTasks(ctx, flowID)
	if err != nil {
		return 0, 0, err
	}
	for _, t := range tasks {
		if t.State.IsTerminal() {
			done++
		}
	}
	return done, len(tasks), nil
}

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <flow-id>",
		Short: "Print a recorded flow's tasks and turn log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, _ := cmd.Flags().GetString("task")

			store, err := openExistingStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			flow, err := store.GetFlow(ctx, args[0])
			if err != nil {
				return err
			}
			tasks, err := store.ListTasks(ctx, flow.ID)
			if err != nil {
				return err
			}

			var turns []agent.Turn
			if taskID != "" {
				turns, err = store.ListTaskTurns(ctx, flow.ID, taskID)
			} else {
				turns, err = store.ListTurns(ctx, flow.ID)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Flow %q (%s)\n\nTasks:\n", flow.Name, flow.ID)
			for _, t := range tasks {
				if taskID != "" && t.ID != taskID {
					continue
				}
				fmt.Fprintf(out, "  %-12s %-10s turns=%d failures=%d", t.ID, t.State, t.Turns, t.Failures)
				switch {
				case t.Err != "":
					fmt.Fprintf(out, "  error: %s", t.Err)
				case t.Value != nil:
					fmt.Fprintf(out, "  value: %s", formatValue(t.Value))
				}
				fmt.Fprintln(out)
			}

			fmt.Fprintln(out, "\nTurns:")
			for _, turn := range turns {
				fmt.Fprintf(out, "  #%d [%s] %s/%s %s: %s\n", turn.Seq, turn.TaskID, turn.AgentID, turn.Role, turn.Action, oneLine(turn.Raw))
				if turn.Err != "" {
					fmt.Fprintf(out, "      rejected: %s\n", turn.Err)
				}
			}
			return nil
		},
	}
	cmd.Flags().String("task", "", "Only show one task")
	return cmd
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 120 {
		return s[:117] + "..."
	}
	return s
}
