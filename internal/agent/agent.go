// Package agent defines agents and the boundaries through which the
// scheduler talks to them and to the user.
package agent

import (
	"context"
	"time"
)

// DefaultID is the identity of the agent used when neither a task nor its
// flow names one.
const DefaultID = "default"

// Agent is a shared, stateless participant. Tasks reference agents by
// pointer; all per-task state lives in the scheduler.
type Agent struct {
	ID           string
	Name         string
	Instructions string
	Tools        []string
	// UserAccess allows the agent to ask the user for input on interactive tasks.
	UserAccess bool
	// Provider selects the backend that serves this agent, e.g. "claude".
	Provider string
	Model    string
}

// Default returns the fallback agent.
func Default() *Agent {
	return &Agent{
		ID:           DefaultID,
		Name:         "Default Agent",
		Instructions: "You are a helpful assistant. Follow the task instructions exactly.",
		UserAccess:   true,
	}
}

// Label returns a display name.
func (a *Agent) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// Action is what an agent asks the scheduler to do with its turn.
type Action int

const (
	// Submit offers Output as the task result.
	Submit Action = iota
	// Defer is a discussion turn: Output is recorded but not coerced.
	Defer
	// HandOff passes the turn to the agent named in HandOffTo.
	HandOff
	// RequestInput asks the user a question (Prompt) before answering.
	RequestInput
)

func (a Action) String() string {
	switch a {
	case Submit:
		return "submit"
	case Defer:
		return "defer"
	case HandOff:
		return "handoff"
	case RequestInput:
		return "request_input"
	default:
		return "unknown"
	}
}

// Role identifies who produced a turn record.
type Role string

const (
	RoleAgent Role = "agent"
	RoleUser  Role = "user"
)

// Turn is one entry of a flow's append-only history.
type Turn struct {
	ID        string
	Seq       int
	FlowID    string
	TaskID    string
	AgentID   string
	Role      Role
	Action    Action
	Attempt   int
	Raw       string
	Value     any
	Err       string
	Timestamp time.Time
}

// Failed reports whether the turn's output was rejected.
func (t Turn) Failed() bool {
	return t.Err != ""
}

// TurnRequest is everything the invocation layer gets for one turn.
type TurnRequest struct {
	FlowID    string
	TaskID    string
	Agent     *Agent
	Objective string
	// Instructions combines flow and task instructions.
	Instructions string
	// Context holds the task's context with dependency results resolved.
	Context map[string]any
	// History is a point-in-time snapshot of the flow's turns.
	History []Turn
	// ResultInstructions describes the expected result, with numbered
	// options for choices.
	ResultInstructions string
	// Repair carries the previous rejection when the agent is retrying.
	Repair string
	// Attempt counts result attempts, starting at 1.
	Attempt int
	// Interactive is true when the agent may request user input.
	Interactive bool
	// Participants lists the agents assigned to the task.
	Participants []string
}

// TurnResponse is the agent's contribution for one turn.
type TurnResponse struct {
	Output    string
	Action    Action
	HandOffTo string
	Prompt    string
}

// Invoker obtains raw output from an agent. Implementations own any retry
// policy; errors returned here end the task.
type Invoker interface {
	RequestTurn(ctx context.Context, req TurnRequest) (TurnResponse, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, req TurnRequest) (TurnResponse, error)

// RequestTurn calls f.
func (f InvokerFunc) RequestTurn(ctx context.Context, req TurnRequest) (TurnResponse, error) {
	return f(ctx, req)
}

// UserInput supplies answers from a human for interactive tasks.
type UserInput interface {
	AwaitUserInput(ctx context.Context, taskID, prompt string) (string, error)
}

// UserInputFunc adapts a function to UserInput.
type UserInputFunc func(ctx context.Context, taskID, prompt string) (string, error)

// AwaitUserInput calls f.
func (f UserInputFunc) AwaitUserInput(ctx context.Context, taskID, prompt string) (string, error) {
	return f(ctx, taskID, prompt)
}
