package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/taskflow/internal/agent"
)

// Flow is a scoped execution context: a set of tasks with dependency edges,
// the completed-result index, and a shared append-only history.
//
// Lock order is dag.mu before history.mu.
type Flow struct {
	ID           string
	Name         string
	Instructions string
	Agents       []*agent.Agent // Used by tasks that assign none
	CreatedAt    time.Time

	dag       *DAG
	history   *History
	cancelled bool // guarded by dag.mu
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithFlowID overrides the generated flow ID.
func WithFlowID(id string) FlowOption {
	return func(f *Flow) { f.ID = id }
}

// WithFlowInstructions sets instructions shared by every task.
func WithFlowInstructions(s string) FlowOption {
	return func(f *Flow) { f.Instructions = s }
}

// WithFlowAgents sets the default agents.
func WithFlowAgents(agents ...*agent.Agent) FlowOption {
	return func(f *Flow) { f.Agents = append(f.Agents, agents...) }
}

// NewFlow creates an empty flow.
func NewFlow(name string, opts ...FlowOption) *Flow {
	f := &Flow{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now(),
		dag:       NewDAG(),
		history:   &History{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// AddTask adds t to the flow. Tasks without agents get the flow's default
// agents, or the built-in default agent.
func (f *Flow) AddTask(t *Task) error {
	if f.Cancelled() {
		return ErrFlowCancelled
	}
	if len(t.Agents) == 0 {
		t = cloneTask(t)
		if len(f.Agents) > 0 {
			t.Agents = append([]*agent.Agent(nil), f.Agents...)
		} else {
			t.Agents = []*agent.Agent{agent.Default()}
		}
	}
	if t.Policy.Kind == Designated && t.Policy.Agent != "" && findAgent(t.Agents, t.Policy.Agent) == nil {
		return fmt.Errorf("task %q designates agent %q which is not assigned", t.ID, t.Policy.Agent)
	}
	return f.dag.AddTask(t)
}

// Validate checks that every dependency exists and there are no cycles.
func (f *Flow) Validate() error {
	_, err := f.dag.Validate()
	return err
}

// Order returns task IDs in topological order.
func (f *Flow) Order() ([]string, error) {
	return f.dag.Validate()
}

// Task returns a snapshot of one task.
func (f *Flow) Task(id string) (*Task, bool) {
	return f.dag.Get(id)
}

// Tasks returns snapshots of every task in creation order.
func (f *Flow) Tasks() []*Task {
	return f.dag.Tasks()
}

// History returns a snapshot of the turn log.
func (f *Flow) History() []agent.Turn {
	return f.history.Snapshot()
}

// TaskHistory returns the turns of one task.
func (f *Flow) TaskHistory(taskID string) []agent.Turn {
	return f.history.ForTask(taskID)
}

// Results returns a snapshot of the completed-result index.
func (f *Flow) Results() map[string]any {
	return f.dag.Results()
}

// Result returns one published result.
func (f *Flow) Result(taskID string) (any, bool) {
	return f.dag.Result(taskID)
}

// Cancelled reports whether Cancel was called.
func (f *Flow) Cancelled() bool {
	f.dag.mu.RLock()
	defer f.dag.mu.RUnlock()
	return f.cancelled
}

// Cancel marks every non-terminal task Skipped and stops new turns. A turn
// already in progress may finish, but its result is discarded. It returns
// snapshots of the tasks it skipped.
func (f *Flow) Cancel() []*Task {
	f.dag.mu.Lock()
	defer f.dag.mu.Unlock()

	f.cancelled = true
	var skipped []*Task
	for _, id := range f.dag.order {
		t := f.dag.tasks[id]
		if t.State.IsTerminal() {
			continue
		}
		if err := transition(t, StateSkipped); err != nil {
			continue
		}
		t.Err = ErrFlowCancelled
		skipped = append(skipped, cloneTask(t))
	}
	return skipped
}

// Done reports whether every task is terminal.
func (f *Flow) Done() bool {
	c := f.Counts()
	return c.Terminal() == c.Total
}

// Counts tallies tasks per state.
type Counts struct {
	Total      int
	Pending    int
	Running    int
	Successful int
	Failed     int
	Skipped    int
}

// Terminal returns the number of finished tasks.
func (c Counts) Terminal() int {
	return c.Successful + c.Failed + c.Skipped
}

// Counts returns per-state totals.
func (f *Flow) Counts() Counts {
	f.dag.mu.RLock()
	defer f.dag.mu.RUnlock()
	return f.countsLocked()
}

func (f *Flow) countsLocked() Counts {
	c := Counts{Total: len(f.dag.tasks)}
	for _, t := range f.dag.tasks {
		switch t.State {
		case StatePending:
			c.Pending++
		case StateSuccessful:
			c.Successful++
		case StateFailed:
			c.Failed++
		case StateSkipped:
			c.Skipped++
		default:
			c.Running++
		}
	}
	return c
}

// settleLocked applies the transitions that need no agent: tasks blocked by
// a failed or skipped dependency become Skipped (unless proceed is set), and
// auto-complete tasks whose dependencies are all terminal become Successful.
// It repeats until nothing changes and returns snapshots of changed tasks.
func (f *Flow) settleLocked(proceed bool) []*Task {
	var changed []*Task
	for {
		progress := false
		for _, id := range f.dag.order {
			t := f.dag.tasks[id]
			if t.State != StatePending {
				continue
			}
			if !proceed {
				if reason := f.dag.blockedLocked(t); reason != nil {
					_ = transition(t, StateSkipped)
					t.Err = reason
					changed = append(changed, cloneTask(t))
					progress = true
					continue
				}
			}
			if t.AutoComplete && f.dag.depsTerminalLocked(t) {
				joined := make(map[string]any, len(f.dag.deps[id]))
				for _, depID := range f.dag.deps[id] {
					if v, ok := f.dag.results[depID]; ok {
						joined[depID] = v
					}
				}
				_ = transition(t, StateSuccessful)
				t.Value = joined
				f.dag.publishLocked(id, joined)
				changed = append(changed, cloneTask(t))
				progress = true
			}
		}
		if !progress {
			return changed
		}
	}
}

// resolveContextLocked returns t's context with Ref values replaced by the
// referenced results. Refs to tasks without a result resolve to nil.
func (f *Flow) resolveContextLocked(t *Task) map[string]any {
	if len(t.Context) == 0 {
		return nil
	}
	out := make(map[string]any, len(t.Context))
	for k, v := range t.Context {
		if ref, ok := v.(Ref); ok {
			out[k] = f.dag.results[ref.TaskID]
			continue
		}
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
