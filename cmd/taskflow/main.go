package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var defaultDBPath = filepath.Join(".taskflow", "taskflow.db")

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "taskflow",
		Short:        "Agent task flow scheduler",
		Long:         "Taskflow drives dependent tasks through AI agent turns until every task has a result that matches its declared shape.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("db", defaultDBPath, "SQLite database that records flows, tasks and turns")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newDescribeCommand())
	rootCmd.AddCommand(newFlowsCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newConfigCommand())
	return rootCmd
}
