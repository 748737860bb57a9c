package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/taskflow/internal/config"
	"github.com/aristath/taskflow/internal/flowdef"
	"github.com/aristath/taskflow/internal/resultspec"
)

func newDescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <flow.yaml>",
		Short: "Validate a flow and print its tasks in execution order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDefault()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			doc, err := flowdef.Load(args[0])
			if err != nil {
				return err
			}
			flow, err := doc.Build(flowdef.Options{Agents: cfg.AgentSet()})
			if err != nil {
				return err
			}
			order, err := flow.Order()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Flow %q: %d tasks\n", flow.Name, len(order))
			for _, id := range order {
				t, _ := flow.Task(id)
				fmt.Fprintf(out, "\n%s", t.ID)
				if t.Name != "" {
					fmt.Fprintf(out, " (%s)", t.Name)
				}
				fmt.Fprintln(out)
				if t.Objective != "" {
					fmt.Fprintf(out, "  objective: %s\n", t.Objective)
				}
				if len(t.DependsOn) > 0 {
					fmt.Fprintf(out, "  depends on: %s\n", strings.Join(t.DependsOn, ", "))
				}
				if t.AutoComplete {
					fmt.Fprintln(out, "  completes when its dependencies do")
					continue
				}
				agents := make([]string, len(t.Agents))
				for i, a := range t.Agents {
					agents[i] = a.ID
				}
				fmt.Fprintf(out, "  agents: %s (%s)\n", strings.Join(agents, ", "), t.Policy.Kind)
				if t.Interactive {
					fmt.Fprintln(out, "  interactive")
				}
				fmt.Fprintln(out, "  result:")
				for _, line := range strings.Split(resultspec.Describe(t.Spec), "\n") {
					fmt.Fprintf(out, "    %s\n", line)
				}
			}
			return nil
		},
	}
}
