package scheduler

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDependencyFailed  = errors.New("dependency failed")
	ErrDependencySkipped = errors.New("dependency skipped")
	ErrFlowCancelled     = errors.New("flow cancelled")
	ErrNoReadyTask       = errors.New("no ready task")
	ErrTaskNotFound      = errors.New("task not found")
	ErrNoUserInput       = errors.New("no user input source configured")
)

// DependencyError is the terminal reason of a task skipped because an
// upstream task did not succeed. Kind is ErrDependencyFailed or
// ErrDependencySkipped.
type DependencyError struct {
	Kind   error
	TaskID string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.TaskID)
}

func (e *DependencyError) Unwrap() error { return e.Kind }

// MaxRetriesExceededError is the terminal error of a task whose repair
// budget ran out. Last is the final coercion or validation error.
type MaxRetriesExceededError struct {
	Attempts int
	Last     error
}

func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("max retries exceeded after %d attempts: %v", e.Attempts, e.Last)
}

func (e *MaxRetriesExceededError) Unwrap() error { return e.Last }

// InteractiveTimeoutError reports that the user did not answer in time.
type InteractiveTimeoutError struct {
	Prompt  string
	Timeout time.Duration
}

func (e *InteractiveTimeoutError) Error() string {
	return fmt.Sprintf("no user input within %s for prompt %q", e.Timeout, e.Prompt)
}

// AgentError wraps a failure of the invocation boundary. It is terminal.
type AgentError struct {
	AgentID string
	Err     error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent %q: %v", e.AgentID, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

// MaxTurnsExceededError ends a task whose agents kept talking without
// producing a result.
type MaxTurnsExceededError struct {
	Turns int
}

func (e *MaxTurnsExceededError) Error() string {
	return fmt.Sprintf("task used all %d turns without a result", e.Turns)
}

// TransitionError reports a state change the task state machine forbids.
type TransitionError struct {
	TaskID   string
	From, To TaskState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("disallowed transition for %q: %s -> %s", e.TaskID, e.From, e.To)
}
