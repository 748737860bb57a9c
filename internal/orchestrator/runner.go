package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/taskflow/internal/scheduler"
)

// FlowResult represents the outcome of one flow run.
type FlowResult struct {
	FlowID   string
	Name     string
	Counts   scheduler.Counts
	Duration time.Duration
	Error    error // Validation or cancellation error; task failures live on the tasks
}

// Succeeded reports whether every task of the flow succeeded.
func (r FlowResult) Succeeded() bool {
	return r.Error == nil && r.Counts.Successful == r.Counts.Total
}

// FlowRunnerConfig configures the flow runner.
type FlowRunnerConfig struct {
	ConcurrencyLimit int         // Max flows run at once (default 2)
	QAChannel        *QAChannel  // Optional; started for one Run and stopped when it returns
	Logger           *log.Logger // Defaults to log.Default()
}

// FlowRunner runs independent flows concurrently on one scheduler.
type FlowRunner struct {
	config FlowRunnerConfig
	sched  *scheduler.Scheduler
}

// NewFlowRunner creates a new flow runner.
func NewFlowRunner(cfg FlowRunnerConfig, sched *scheduler.Scheduler) *FlowRunner {
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &FlowRunner{config: cfg, sched: sched}
}

// Run drives every flow to completion with bounded concurrency. Results are
// returned in the order the flows were given. The error is non-nil only when
// ctx was cancelled.
func (r *FlowRunner) Run(ctx context.Context, flows ...*scheduler.Flow) ([]FlowResult, error) {
	if r.config.QAChannel != nil {
		qctx, cancel := context.WithCancel(ctx)
		r.config.QAChannel.Start(qctx)
		defer r.config.QAChannel.Stop()
		defer cancel()
	}

	results := make([]FlowResult, len(flows))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.ConcurrencyLimit)

	for i, f := range flows {
		g.Go(func() error {
			start := time.Now()
			err := r.sched.Run(gctx, f)
			if err != nil && ctx.Err() == nil {
				r.config.Logger.Printf("WARNING: flow %q (%s) did not complete: %v", f.Name, f.ID, err)
			}

			mu.Lock()
			results[i] = FlowResult{
				FlowID:   f.ID,
				Name:     f.Name,
				Counts:   f.Counts(),
				Duration: time.Since(start),
				Error:    err,
			}
			mu.Unlock()

			// Only cancellation stops the other flows
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("flow runner cancelled: %w", err)
	}
	return results, nil
}
