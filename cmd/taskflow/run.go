package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/aristath/taskflow/internal/backend"
	"github.com/aristath/taskflow/internal/config"
	"github.com/aristath/taskflow/internal/events"
	"github.com/aristath/taskflow/internal/flowdef"
	"github.com/aristath/taskflow/internal/orchestrator"
	"github.com/aristath/taskflow/internal/persistence"
	"github.com/aristath/taskflow/internal/resultspec"
	"github.com/aristath/taskflow/internal/scheduler"
	"github.com/aristath/taskflow/internal/tui"
)

type runOptions struct {
	dbPath   string
	agentCmd string
	flowID   string
	useTUI   bool
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <flow.yaml>",
		Short: "Run a flow definition to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts runOptions
			opts.dbPath, _ = cmd.Flags().GetString("db")
			opts.agentCmd, _ = cmd.Flags().GetString("agent-cmd")
			opts.flowID, _ = cmd.Flags().GetString("flow-id")
			opts.useTUI, _ = cmd.Flags().GetBool("tui")
			return runFlow(cmd, args[0], opts)
		},
	}

	cmd.Flags().String("agent-cmd", "", "Serve every agent with this command (prompt on stdin, answer on stdout)")
	cmd.Flags().String("flow-id", "", "Flow ID to record under; reusing one resumes its agent sessions")
	cmd.Flags().Bool("tui", false, "Show the live dashboard instead of line output")
	return cmd
}

func runFlow(cmd *cobra.Command, path string, opts runOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	out := cmd.OutOrStdout()

	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.agentCmd != "" {
		if err := useAgentCommand(cfg, opts.agentCmd); err != nil {
			return err
		}
	}
	schedCfg, err := cfg.Scheduler.SchedulerConfig()
	if err != nil {
		return fmt.Errorf("invalid scheduler settings: %w", err)
	}

	doc, err := flowdef.Load(path)
	if err != nil {
		return err
	}
	flow, err := doc.Build(flowdef.Options{Agents: cfg.AgentSet(), FlowID: opts.flowID})
	if err != nil {
		return err
	}

	store, err := persistence.NewSQLiteStore(ctx, opts.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	logger := log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
	if opts.useTUI {
		// The dashboard owns the terminal
		logFile, err := os.OpenFile(filepath.Join(filepath.Dir(opts.dbPath), "taskflow.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer logFile.Close()
		logger = log.New(logFile, "", log.LstdFlags)
	}

	pm := backend.NewProcessManager()
	inv := backend.NewInvoker(cfg.BackendConfigs(), pm,
		backend.WithSessionStore(store),
		backend.WithDefaultProvider(config.DefaultProvider),
		backend.WithInvokerLogger(logger))
	defer inv.Close()

	breakers := orchestrator.NewCircuitBreakerRegistryWith(cfg.Scheduler.BreakerConfig(), logger)
	resilient := orchestrator.NewResilientInvoker(inv, cfg.Scheduler.RetryConfig(), breakers)

	bus := events.NewEventBus()
	defer bus.Close()

	schedOpts := []scheduler.Option{
		scheduler.WithRecorder(store),
		scheduler.WithEventBus(bus),
		scheduler.WithLogger(logger),
	}
	runnerCfg := orchestrator.FlowRunnerConfig{ConcurrencyLimit: 1, Logger: logger}
	if !opts.useTUI {
		qa := orchestrator.NewQAChannel(2*schedCfg.Concurrency, orchestrator.LineAnswerer(cmd.InOrStdin(), out))
		schedOpts = append(schedOpts, scheduler.WithUserInput(qa))
		runnerCfg.QAChannel = qa
	}
	runner := orchestrator.NewFlowRunner(runnerCfg, scheduler.New(resilient, schedCfg, schedOpts...))

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			// Restore default signal handling so a second Ctrl+C force-exits
			stop()
			logger.Println("Shutdown signal received, cleaning up...")
			if err := pm.KillAll(); err != nil {
				logger.Printf("Error killing subprocesses: %v", err)
			}
		case <-finished:
		}
	}()

	var results []orchestrator.FlowResult
	if opts.useTUI {
		results, err = runWithDashboard(ctx, runner, flow, bus)
	} else {
		results, err = runWithOutput(ctx, out, runner, flow, bus)
	}
	if err != nil {
		return err
	}

	res := results[0]
	printSummary(out, flow, res)
	if !res.Succeeded() {
		if res.Error != nil {
			return fmt.Errorf("flow %s did not complete: %w", res.FlowID, res.Error)
		}
		return fmt.Errorf("flow %s: %d of %d tasks did not succeed", res.FlowID, res.Counts.Total-res.Counts.Successful, res.Counts.Total)
	}
	return nil
}

// runWithOutput prints one line per task event while the flow runs.
func runWithOutput(ctx context.Context, out io.Writer, runner *orchestrator.FlowRunner, flow *scheduler.Flow, bus *events.EventBus) ([]orchestrator.FlowResult, error) {
	fmt.Fprintf(out, "Running flow %q (%s)\n", flow.Name, flow.ID)

	sub := bus.SubscribeFlow(flow.ID, 256)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range sub {
			printEvent(out, ev)
		}
	}()

	results, err := runner.Run(ctx, flow)
	bus.Close()
	<-printed
	return results, err
}

// runWithDashboard runs the flow behind the TUI. Quitting the dashboard
// cancels a flow that is still running.
func runWithDashboard(ctx context.Context, runner *orchestrator.FlowRunner, flow *scheduler.Flow, bus *events.EventBus) ([]orchestrator.FlowResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(tui.New(bus, flow.ID, flow.Name), tea.WithAltScreen())

	type outcome struct {
		results []orchestrator.FlowResult
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, err := runner.Run(ctx, flow)
		done <- outcome{results, err}
	}()
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, tuiErr := p.Run()
	cancel()
	o := <-done
	if tuiErr != nil {
		return nil, fmt.Errorf("dashboard: %w", tuiErr)
	}
	return o.results, o.err
}

// useAgentCommand points every provider at one command line.
func useAgentCommand(cfg *config.Config, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return fmt.Errorf("--agent-cmd is empty")
	}
	for name := range cfg.Providers {
		cfg.Providers[name] = config.ProviderConfig{
			Type:    "command",
			Command: fields[0],
			Args:    fields[1:],
		}
	}
	return nil
}

func printEvent(w io.Writer, ev events.Event) {
	switch e := ev.(type) {
	case events.TaskStartedEvent:
		fmt.Fprintf(w, "● %s started (%s)\n", e.ID, e.AgentID)
	case events.TaskRepairEvent:
		fmt.Fprintf(w, "↻ %s attempt %d: %v\n", e.ID, e.Attempt, e.Err)
	case events.TaskParkedEvent:
		fmt.Fprintf(w, "? %s waits for input from %s\n", e.ID, e.AgentID)
	case events.TaskCompletedEvent:
		fmt.Fprintf(w, "✓ %s completed after %d turns\n", e.ID, e.Turns)
	case events.TaskFailedEvent:
		fmt.Fprintf(w, "✗ %s failed: %v\n", e.ID, e.Err)
	case events.TaskSkippedEvent:
		fmt.Fprintf(w, "- %s skipped: %v\n", e.ID, e.Reason)
	}
}

func printSummary(w io.Writer, flow *scheduler.Flow, res orchestrator.FlowResult) {
	fmt.Fprintf(w, "\nFlow %q: %d/%d tasks succeeded in %v\n", res.Name, res.Counts.Successful, res.Counts.Total, res.Duration.Round(time.Millisecond))
	for _, t := range flow.Tasks() {
		switch t.State {
		case scheduler.StateSuccessful:
			fmt.Fprintf(w, "  ✓ %s: %s\n", t.ID, formatValue(t.Value))
		case scheduler.StateFailed:
			fmt.Fprintf(w, "  ✗ %s: %v\n", t.ID, t.Err)
		case scheduler.StateSkipped:
			fmt.Fprintf(w, "  - %s: skipped (%v)\n", t.ID, t.Err)
		default:
			fmt.Fprintf(w, "  ○ %s: %s\n", t.ID, t.State)
		}
	}
}

// formatValue renders a result on one line.
func formatValue(v any) string {
	switch v := v.(type) {
	case resultspec.NoResult:
		return "(no result)"
	case string:
		return v
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
