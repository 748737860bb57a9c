package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/taskflow/internal/agent"
	"github.com/aristath/taskflow/internal/events"
)

// TieBreak orders tasks that become ready at the same time.
type TieBreak int

const (
	TieCreation    TieBreak = iota // Order tasks were added
	TiePriority                    // Higher Priority first, then creation order
	TieTopological                 // Topological order, then creation order
)

func (t TieBreak) String() string {
	switch t {
	case TiePriority:
		return "priority"
	case TieTopological:
		return "topological"
	default:
		return "creation"
	}
}

// ParseTieBreak accepts the names produced by String.
func ParseTieBreak(s string) (TieBreak, error) {
	switch s {
	case "", "creation":
		return TieCreation, nil
	case "priority":
		return TiePriority, nil
	case "topological":
		return TieTopological, nil
	default:
		return 0, fmt.Errorf("unknown tie-break policy %q", s)
	}
}

// Config controls scheduling.
type Config struct {
	DefaultRetryBudget          int           // Repair attempts for tasks that set none
	MaxTurns                    int           // Agent turns per task, discussion included; 0 = unlimited
	Concurrency                 int           // Tasks run in parallel by Run
	TieBreak                    TieBreak      // Order of simultaneously ready tasks
	ProceedOnFailedDependencies bool          // Run dependents of failed tasks with missing context
	InteractiveTimeout          time.Duration // Bound on waiting for user input; 0 = unbounded
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		DefaultRetryBudget: 3,
		MaxTurns:           20,
		Concurrency:        4,
		TieBreak:           TieCreation,
		InteractiveTimeout: 10 * time.Minute,
	}
}

// FlowRecord is the persisted description of a flow.
type FlowRecord struct {
	ID           string
	Name         string
	Instructions string
	CreatedAt    time.Time
}

// Recorder persists flow state. Failures are logged and never fail a turn.
type Recorder interface {
	SaveFlow(ctx context.Context, flow FlowRecord) error
	SaveTask(ctx context.Context, flowID string, task *Task, deps []string) error
	AppendTurn(ctx context.Context, turn agent.Turn) error
}

// Scheduler drives tasks through agent turns.
type Scheduler struct {
	cfg      Config
	invoker  agent.Invoker
	input    agent.UserInput
	recorder Recorder
	bus      *events.EventBus
	logger   *log.Logger
	locks    *TurnLockManager
	now      func() time.Time

	mu       sync.Mutex
	recorded map[string]*sync.Once // flows saved through the recorder
	started  map[string]time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithUserInput sets the interactive input boundary.
func WithUserInput(in agent.UserInput) Option {
	return func(s *Scheduler) { s.input = in }
}

// WithRecorder persists flows, tasks, and turns.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithEventBus publishes task and flow events.
func WithEventBus(b *events.EventBus) Option {
	return func(s *Scheduler) { s.bus = b }
}

// WithLogger replaces the default logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a Scheduler.
func New(invoker agent.Invoker, cfg Config, opts ...Option) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.DefaultRetryBudget < 0 {
		cfg.DefaultRetryBudget = 0
	}
	s := &Scheduler{
		cfg:      cfg,
		invoker:  invoker,
		logger:   log.Default(),
		locks:    NewTurnLockManager(),
		now:      time.Now,
		recorded: make(map[string]*sync.Once),
		started:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the scheduler configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Ready settles dependency outcomes and returns the IDs of tasks that can
// take a turn now, in tie-break order.
func (s *Scheduler) Ready(f *Flow) []string {
	f.dag.mu.Lock()
	changed := f.settleLocked(s.cfg.ProceedOnFailedDependencies)
	var ids []string
	if !f.cancelled {
		for _, t := range f.dag.readyLocked(s.cfg.TieBreak) {
			ids = append(ids, t.ID)
		}
	}
	f.dag.mu.Unlock()

	s.announce(context.Background(), f, changed)
	return ids
}

// Step runs exactly one turn on the first ready task and returns its ID.
func (s *Scheduler) Step(ctx context.Context, f *Flow) (string, error) {
	ids := s.Ready(f)
	if len(ids) == 0 {
		return "", ErrNoReadyTask
	}
	if _, err := s.turn(ctx, f, ids[0]); err != nil {
		return ids[0], err
	}
	return ids[0], nil
}

// RunTask drives one task to a terminal state and returns its value or its
// terminal error. Dependencies must already be terminal.
func (s *Scheduler) RunTask(ctx context.Context, f *Flow, taskID string) (any, error) {
	for {
		done, err := s.turn(ctx, f, taskID)
		if err != nil {
			return nil, err
		}
		if !done {
			continue
		}
		t, _ := f.Task(taskID)
		if t.State == StateSuccessful {
			return t.Value, nil
		}
		return nil, t.Err
	}
}

// Run validates the flow and drives every task to a terminal state, running
// independent ready tasks concurrently in waves. Task failures are recorded
// on the tasks; Run only returns validation and cancellation errors.
func (s *Scheduler) Run(ctx context.Context, f *Flow) error {
	if err := f.Validate(); err != nil {
		return err
	}
	s.ensureRecorded(ctx, f)

	for {
		if err := ctx.Err(); err != nil {
			s.Cancel(f)
			return err
		}

		ready := s.Ready(f)
		if len(ready) == 0 {
			break
		}
		before := f.Counts().Terminal()

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.Concurrency)
		for _, id := range ready {
			id := id
			g.Go(func() error {
				_, err := s.RunTask(gctx, f, id)
				if err != nil && isCancellation(gctx, err) {
					return err
				}
				// Task outcomes live on the task, not in the group error
				return nil
			})
		}
		if err := g.Wait(); err != nil && ctx.Err() != nil {
			s.Cancel(f)
			return ctx.Err()
		}

		if f.Counts().Terminal() == before {
			return fmt.Errorf("flow %q made no progress with %d ready tasks", f.ID, len(ready))
		}
	}

	if f.Cancelled() {
		return ErrFlowCancelled
	}
	return nil
}

// Cancel cancels the flow and announces the skipped tasks.
func (s *Scheduler) Cancel(f *Flow) {
	skipped := f.Cancel()
	s.announce(context.Background(), f, skipped)
}

// announce records and publishes tasks that changed without a turn.
func (s *Scheduler) announce(ctx context.Context, f *Flow, changed []*Task) {
	if len(changed) == 0 {
		return
	}
	s.ensureRecorded(ctx, f)
	for _, t := range changed {
		s.saveTask(ctx, f, t)
		s.publishOutcome(f, t)
	}
	s.publishProgress(f)
}

func (s *Scheduler) ensureRecorded(ctx context.Context, f *Flow) {
	if s.recorder == nil {
		return
	}
	s.mu.Lock()
	once, ok := s.recorded[f.ID]
	if !ok {
		once = new(sync.Once)
		s.recorded[f.ID] = once
	}
	s.mu.Unlock()

	// Concurrent first turns wait until the flow row exists
	once.Do(func() {
		rec := FlowRecord{ID: f.ID, Name: f.Name, Instructions: f.Instructions, CreatedAt: f.CreatedAt}
		if err := s.recorder.SaveFlow(ctx, rec); err != nil {
			s.logger.Printf("WARNING: failed to record flow %q: %v", f.ID, err)
		}
		for _, t := range f.Tasks() {
			s.saveTask(ctx, f, t)
		}
	})
}

func (s *Scheduler) saveTask(ctx context.Context, f *Flow, t *Task) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.SaveTask(ctx, f.ID, t, f.dag.Dependencies(t.ID)); err != nil {
		s.logger.Printf("WARNING: failed to record task %q: %v", t.ID, err)
	}
}

func (s *Scheduler) appendTurn(ctx context.Context, turn agent.Turn) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.AppendTurn(ctx, turn); err != nil {
		s.logger.Printf("WARNING: failed to record turn %d of task %q: %v", turn.Seq, turn.TaskID, err)
	}
}

func (s *Scheduler) markStarted(f *Flow, taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := turnKey(f.ID, taskID)
	if _, ok := s.started[key]; !ok {
		s.started[key] = s.now()
	}
}

func (s *Scheduler) elapsed(f *Flow, taskID string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := turnKey(f.ID, taskID)
	start, ok := s.started[key]
	if !ok {
		return 0
	}
	delete(s.started, key)
	return s.now().Sub(start)
}

func (s *Scheduler) publishOutcome(f *Flow, t *Task) {
	now := s.now()
	switch t.State {
	case StateSuccessful:
		s.bus.Publish(events.TaskCompletedEvent{Flow: f.ID, ID: t.ID, Value: t.Value, Turns: t.Turns, Duration: s.elapsed(f, t.ID), Timestamp: now})
	case StateFailed:
		s.bus.Publish(events.TaskFailedEvent{Flow: f.ID, ID: t.ID, Err: t.Err, Duration: s.elapsed(f, t.ID), Timestamp: now})
	case StateSkipped:
		s.elapsed(f, t.ID)
		s.bus.Publish(events.TaskSkippedEvent{Flow: f.ID, ID: t.ID, Reason: t.Err, Timestamp: now})
	case StateRepairRequested:
		s.bus.Publish(events.TaskRepairEvent{Flow: f.ID, ID: t.ID, Attempt: t.Failures + 1, Err: t.LastError, Timestamp: now})
	}
}

func (s *Scheduler) publishProgress(f *Flow) {
	if s.bus == nil {
		return
	}
	c := f.Counts()
	s.bus.Publish(events.FlowProgressEvent{
		Flow:       f.ID,
		Total:      c.Total,
		Pending:    c.Pending,
		Running:    c.Running,
		Successful: c.Successful,
		Failed:     c.Failed,
		Skipped:    c.Skipped,
		Timestamp:  s.now(),
	})
}

// isCancellation reports whether err comes from ctx being done.
func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ctx.Err()))
}
