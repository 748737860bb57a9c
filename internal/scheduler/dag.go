package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gammazero/toposort"

	"github.com/aristath/taskflow/internal/resultspec"
)

// DAG holds a flow's tasks, their dependency edges, and the insert-only
// index of published results. All task mutation happens under mu.
type DAG struct {
	mu         sync.RWMutex
	tasks      map[string]*Task    // All tasks indexed by ID
	order      []string            // Task IDs in creation order
	deps       map[string][]string // taskID -> tasks it depends on
	dependents map[string][]string // taskID -> tasks that depend on it
	results    map[string]any      // taskID -> published value, insert-only
	inFlight   map[string]bool     // tasks with a turn in progress
	rank       map[string]int      // topological position, set by Validate
}

// NewDAG creates an empty DAG.
func NewDAG() *DAG {
	return &DAG{
		tasks:      make(map[string]*Task),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
		results:    make(map[string]any),
		inFlight:   make(map[string]bool),
	}
}

// AddTask adds a pending task. A nil result spec means None. The spec is
// checked and copied so later changes by the caller cannot reach the running task.
func (d *DAG) AddTask(task *Task) error {
	if task.ID == "" {
		return fmt.Errorf("task has no ID")
	}
	if task.State != StatePending {
		return fmt.Errorf("task %q must be pending to be added, is %s", task.ID, task.State)
	}
	spec := task.Spec
	if spec == nil {
		spec = resultspec.None{}
	}
	if err := resultspec.Check(spec); err != nil {
		return fmt.Errorf("task %q: %w", task.ID, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %q already exists", task.ID)
	}

	t := cloneTask(task)
	t.Spec = resultspec.Clone(spec)
	t.seq = len(d.order)
	d.tasks[t.ID] = t
	d.order = append(d.order, t.ID)

	// Build dependents map for efficient downstream lookup
	d.deps[t.ID] = t.dependencies()
	for _, depID := range d.deps[t.ID] {
		d.dependents[depID] = append(d.dependents[depID], t.ID)
	}
	d.rank = nil

	return nil
}

// Validate runs topological sort using gammazero/toposort.
// Returns ordered task IDs or error if a cycle is found or a dependency
// does not exist.
func (d *DAG) Validate() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.validateLocked()
}

func (d *DAG) validateLocked() ([]string, error) {
	for _, taskID := range d.order {
		for _, depID := range d.deps[taskID] {
			if _, exists := d.tasks[depID]; !exists {
				return nil, fmt.Errorf("task %q depends on non-existent task %q", taskID, depID)
			}
			if depID == taskID {
				return nil, fmt.Errorf("task %q depends on itself", taskID)
			}
		}
	}

	var edges []toposort.Edge
	for _, taskID := range d.order {
		if len(d.deps[taskID]) == 0 {
			// Edge from nil keeps tasks without dependencies in the result
			edges = append(edges, toposort.Edge{nil, taskID})
			continue
		}
		for _, depID := range d.deps[taskID] {
			edges = append(edges, toposort.Edge{depID, taskID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("task graph contains cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	if len(order) != len(d.tasks) {
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		var missing []string
		for _, taskID := range d.order {
			if !found[taskID] {
				missing = append(missing, taskID)
			}
		}
		return nil, fmt.Errorf("topological sort lost %d tasks: %s", len(missing), strings.Join(missing, ", "))
	}

	d.rank = make(map[string]int, len(order))
	for i, id := range order {
		d.rank[id] = i
	}
	return order, nil
}

// Get returns a snapshot of the task.
func (d *DAG) Get(taskID string) (*Task, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns snapshots of all tasks in creation order.
func (d *DAG) Tasks() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tasks := make([]*Task, 0, len(d.order))
	for _, id := range d.order {
		tasks = append(tasks, cloneTask(d.tasks[id]))
	}
	return tasks
}

// Dependencies returns the IDs taskID depends on.
func (d *DAG) Dependencies(taskID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.deps[taskID]...)
}

// Result returns the published value of a successful task.
func (d *DAG) Result(taskID string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.results[taskID]
	return v, ok
}

// Results returns a snapshot of the completed-result index.
func (d *DAG) Results() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]any, len(d.results))
	for k, v := range d.results {
		out[k] = v
	}
	return out
}

// publishLocked inserts a result. Results are never overwritten.
func (d *DAG) publishLocked(taskID string, value any) {
	if _, exists := d.results[taskID]; exists {
		return
	}
	d.results[taskID] = value
}

// blockedLocked returns the dependency error that prevents t from running,
// or nil. A task is blocked when an upstream task failed or was skipped.
func (d *DAG) blockedLocked(t *Task) error {
	for _, depID := range d.deps[t.ID] {
		switch d.tasks[depID].State {
		case StateFailed:
			return &DependencyError{Kind: ErrDependencyFailed, TaskID: depID}
		case StateSkipped:
			return &DependencyError{Kind: ErrDependencySkipped, TaskID: depID}
		}
	}
	return nil
}

// depsTerminalLocked reports whether every dependency of t is terminal.
func (d *DAG) depsTerminalLocked(t *Task) bool {
	for _, depID := range d.deps[t.ID] {
		dep, ok := d.tasks[depID]
		if !ok || !dep.State.IsTerminal() {
			return false
		}
	}
	return true
}

// readyLocked returns tasks that can take a turn now, ordered by tie.
func (d *DAG) readyLocked(tie TieBreak) []*Task {
	var ready []*Task
	for _, id := range d.order {
		t := d.tasks[id]
		if t.State.IsTerminal() || t.AutoComplete || d.inFlight[id] {
			continue
		}
		if !d.depsTerminalLocked(t) {
			continue
		}
		ready = append(ready, t)
	}

	if d.rank == nil && tie == TieTopological {
		if _, err := d.validateLocked(); err != nil {
			tie = TieCreation
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		switch tie {
		case TiePriority:
			if a.Priority != b.Priority {
				return a.Priority > b.Priority
			}
		case TieTopological:
			if d.rank[a.ID] != d.rank[b.ID] {
				return d.rank[a.ID] < d.rank[b.ID]
			}
		}
		return a.seq < b.seq
	})
	return ready
}
