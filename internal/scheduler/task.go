package scheduler

import (
	"github.com/google/uuid"

	"github.com/aristath/taskflow/internal/agent"
	"github.com/aristath/taskflow/internal/resultspec"
	"github.com/aristath/taskflow/internal/validate"
)

// TaskState represents the current state of a task.
type TaskState int

const (
	StatePending         TaskState = iota // Waiting for dependencies or a first turn
	StateRunning                          // An agent turn is in progress
	StateCoerced                          // Output coerced, validation pending
	StateRepairRequested                  // Output rejected, waiting for a retry turn
	StateSuccessful                       // Terminal: value published
	StateFailed                           // Terminal: carries the last error
	StateSkipped                          // Terminal: never completed
)

func (s TaskState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCoerced:
		return "coerced"
	case StateRepairRequested:
		return "repair_requested"
	case StateSuccessful:
		return "successful"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s TaskState) IsTerminal() bool {
	return s == StateSuccessful || s == StateFailed || s == StateSkipped
}

// ParseTaskState is the inverse of TaskState.String.
func ParseTaskState(s string) (TaskState, bool) {
	for st := StatePending; st <= StateSkipped; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// Ref is a context value standing for another task's result. Referencing a
// task makes it a dependency.
type Ref struct {
	TaskID string
}

// ResultOf returns a Ref to taskID's result.
func ResultOf(taskID string) Ref {
	return Ref{TaskID: taskID}
}

// Task represents a unit of delegated work in a flow.
type Task struct {
	ID           string
	Name         string
	Objective    string
	Instructions string
	Context      map[string]any // Read-only snapshot; Ref values are resolved per turn
	Spec         resultspec.Spec
	Validators   []validate.Validator
	Agents       []*agent.Agent // Shared, never owned
	Policy       TurnPolicy
	Interactive  bool
	RetryBudget  int // Repair attempts after the first; negative uses the scheduler default
	DependsOn    []string
	Priority     int  // Higher runs first under the priority tie-break
	AutoComplete bool // Completes from its dependencies without agent turns

	State     TaskState
	Value     any
	Err       error // Terminal error
	LastError error // Most recent rejection, cleared on success
	Failures  int   // Rejected result attempts
	Turns     int   // Agent turns taken, including discussion turns

	seq  int // creation order within the flow
	turn turnState
}

// TaskOption configures a Task.
type TaskOption func(*Task)

// NewTask creates a pending task. The ID defaults to a random UUID.
func NewTask(objective string, spec resultspec.Spec, opts ...TaskOption) *Task {
	t := &Task{
		ID:          uuid.NewString(),
		Objective:   objective,
		Spec:        spec,
		RetryBudget: -1,
		State:       StatePending,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.Spec == nil {
		t.Spec = resultspec.None{}
	}
	return t
}

// WithID overrides the generated ID.
func WithID(id string) TaskOption {
	return func(t *Task) { t.ID = id }
}

// WithName sets a display name.
func WithName(name string) TaskOption {
	return func(t *Task) { t.Name = name }
}

// WithInstructions adds task-specific instructions for the agents.
func WithInstructions(s string) TaskOption {
	return func(t *Task) { t.Instructions = s }
}

// WithPolicy sets the turn policy.
func WithPolicy(p TurnPolicy) TaskOption {
	return func(t *Task) { t.Policy = p }
}

// WithInteractive marks the task as able to ask the user for input.
func WithInteractive(on bool) TaskOption {
	return func(t *Task) { t.Interactive = on }
}

// WithRetryBudget sets how many repair attempts follow the first attempt.
func WithRetryBudget(n int) TaskOption {
	return func(t *Task) { t.RetryBudget = n }
}

// WithPriority sets the priority used by the priority tie-break.
func WithPriority(p int) TaskOption {
	return func(t *Task) { t.Priority = p }
}

// WithAutoComplete makes the task a join point that completes with the
// results of its dependencies.
func WithAutoComplete() TaskOption {
	return func(t *Task) { t.AutoComplete = true }
}

// WithAgents assigns agents to the task.
func WithAgents(agents ...*agent.Agent) TaskOption {
	return func(t *Task) { t.Agents = append(t.Agents, agents...) }
}

// WithValidators appends to the validation chain.
func WithValidators(vs ...validate.Validator) TaskOption {
	return func(t *Task) { t.Validators = append(t.Validators, vs...) }
}

// WithContext sets a context entry. Ref values create dependencies.
func WithContext(key string, value any) TaskOption {
	return func(t *Task) {
		if t.Context == nil {
			t.Context = make(map[string]any)
		}
		t.Context[key] = value
	}
}

// WithDependencies adds explicit dependencies.
func WithDependencies(ids ...string) TaskOption {
	return func(t *Task) { t.DependsOn = append(t.DependsOn, ids...) }
}

// Label returns the name, falling back to the ID.
func (t *Task) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}

// Seq returns the task's creation order within its flow, starting at 0.
func (t *Task) Seq() int {
	return t.seq
}

// dependencies returns explicit dependencies plus context references,
// deduplicated in declaration order.
func (t *Task) dependencies() []string {
	seen := make(map[string]bool)
	var deps []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			deps = append(deps, id)
		}
	}
	for _, id := range t.DependsOn {
		add(id)
	}
	for _, key := range sortedKeys(t.Context) {
		if ref, ok := t.Context[key].(Ref); ok {
			add(ref.TaskID)
		}
	}
	return deps
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.DependsOn != nil {
		cp.DependsOn = append([]string(nil), task.DependsOn...)
	}
	if task.Agents != nil {
		cp.Agents = append([]*agent.Agent(nil), task.Agents...)
	}
	if task.Validators != nil {
		cp.Validators = append([]validate.Validator(nil), task.Validators...)
	}
	if task.Context != nil {
		cp.Context = make(map[string]any, len(task.Context))
		for k, v := range task.Context {
			cp.Context[k] = v
		}
	}
	return &cp
}
