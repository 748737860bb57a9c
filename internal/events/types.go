package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	FlowID() string
	TaskID() string
}

// Topic constants
const (
	TopicTask = "task"
	TopicFlow = "flow"
)

// Event type constants
const (
	EventTypeTaskStarted   = "task.started"
	EventTypeTurnCompleted = "task.turn"
	EventTypeTaskRepair    = "task.repair"
	EventTypeTaskParked    = "task.parked"
	EventTypeTaskCompleted = "task.completed"
	EventTypeTaskFailed    = "task.failed"
	EventTypeTaskSkipped   = "task.skipped"
	EventTypeFlowProgress  = "flow.progress"
)

// TopicOf returns the topic an event is published on.
func TopicOf(e Event) string {
	if _, ok := e.(FlowProgressEvent); ok {
		return TopicFlow
	}
	return TopicTask
}

// TaskStartedEvent is published when a task receives its first turn.
type TaskStartedEvent struct {
	Flow      string
	ID        string
	Name      string
	AgentID   string
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) FlowID() string    { return e.Flow }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TurnCompletedEvent is published after every recorded turn.
type TurnCompletedEvent struct {
	Flow      string
	ID        string
	Seq       int
	AgentID   string
	Role      string
	Action    string
	Raw       string
	Err       string
	Timestamp time.Time
}

func (e TurnCompletedEvent) EventType() string { return EventTypeTurnCompleted }
func (e TurnCompletedEvent) FlowID() string    { return e.Flow }
func (e TurnCompletedEvent) TaskID() string    { return e.ID }

// TaskRepairEvent is published when a result was rejected and the agent is
// asked to try again.
type TaskRepairEvent struct {
	Flow      string
	ID        string
	Attempt   int
	Err       error
	Timestamp time.Time
}

func (e TaskRepairEvent) EventType() string { return EventTypeTaskRepair }
func (e TaskRepairEvent) FlowID() string    { return e.Flow }
func (e TaskRepairEvent) TaskID() string    { return e.ID }

// TaskParkedEvent is published when an interactive task waits for user input.
type TaskParkedEvent struct {
	Flow      string
	ID        string
	AgentID   string
	Prompt    string
	Timestamp time.Time
}

func (e TaskParkedEvent) EventType() string { return EventTypeTaskParked }
func (e TaskParkedEvent) FlowID() string    { return e.Flow }
func (e TaskParkedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task reaches Successful.
type TaskCompletedEvent struct {
	Flow      string
	ID        string
	Value     any
	Turns     int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) FlowID() string    { return e.Flow }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task reaches Failed.
type TaskFailedEvent struct {
	Flow      string
	ID        string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) FlowID() string    { return e.Flow }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskSkippedEvent is published when a task is skipped without completing.
type TaskSkippedEvent struct {
	Flow      string
	ID        string
	Reason    error
	Timestamp time.Time
}

func (e TaskSkippedEvent) EventType() string { return EventTypeTaskSkipped }
func (e TaskSkippedEvent) FlowID() string    { return e.Flow }
func (e TaskSkippedEvent) TaskID() string    { return e.ID }

// FlowProgressEvent is published whenever a task of the flow changes state.
type FlowProgressEvent struct {
	Flow       string
	Total      int
	Pending    int
	Running    int
	Successful int
	Failed     int
	Skipped    int
	Timestamp  time.Time
}

func (e FlowProgressEvent) EventType() string { return EventTypeFlowProgress }
func (e FlowProgressEvent) FlowID() string    { return e.Flow }
func (e FlowProgressEvent) TaskID() string    { return "" }

// Done reports whether every task has reached a terminal state.
func (e FlowProgressEvent) Done() bool {
	return e.Total > 0 && e.Successful+e.Failed+e.Skipped == e.Total
}
