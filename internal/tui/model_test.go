package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/taskflow/internal/events"
)

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return model
}

func TestModel_TracksTaskLifecycle(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := New(bus, "flow-1", "launch")
	now := time.Now()

	m = update(t, m, events.TaskStartedEvent{Flow: "flow-1", ID: "headline", Name: "Headline", AgentID: "writer", Timestamp: now})
	m = update(t, m, events.TurnCompletedEvent{Flow: "flow-1", ID: "headline", AgentID: "writer", Action: "submit", Raw: "Big news", Err: "too long"})
	m = update(t, m, events.TaskRepairEvent{Flow: "flow-1", ID: "headline", Attempt: 2, Err: errors.New("too long")})

	tv, ok := m.Tasks().Task("headline")
	if !ok {
		t.Fatal("task not tracked")
	}
	if tv.Status != StatusRepair {
		t.Errorf("status = %q, want %q", tv.Status, StatusRepair)
	}
	if tv.Turns != 1 {
		t.Errorf("turns = %d, want 1", tv.Turns)
	}
	if len(tv.Lines) != 2 || !strings.Contains(tv.Lines[0], "rejected: too long") {
		t.Errorf("unexpected transcript: %q", tv.Lines)
	}

	m = update(t, m, events.TaskCompletedEvent{Flow: "flow-1", ID: "headline", Value: "News", Turns: 2, Duration: time.Second})
	tv, _ = m.Tasks().Task("headline")
	if tv.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", tv.Status, StatusCompleted)
	}
	if tv.Duration != time.Second {
		t.Errorf("duration = %v, want 1s", tv.Duration)
	}
}

func TestModel_UnstartedTasksAppear(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := New(bus, "flow-1", "")
	m = update(t, m, events.TaskSkippedEvent{Flow: "flow-1", ID: "summary", Reason: errors.New("dependency failed")})
	m = update(t, m, events.TaskFailedEvent{Flow: "flow-1", ID: "draft", Err: errors.New("boom")})

	tests := []struct {
		id     string
		status string
	}{
		{"summary", StatusSkipped},
		{"draft", StatusFailed},
	}
	for _, tt := range tests {
		tv, ok := m.Tasks().Task(tt.id)
		if !ok {
			t.Fatalf("task %s not tracked", tt.id)
		}
		if tv.Status != tt.status {
			t.Errorf("%s status = %q, want %q", tt.id, tv.Status, tt.status)
		}
		if tv.Name != tt.id {
			t.Errorf("%s name = %q, want the ID", tt.id, tv.Name)
		}
	}
	if got := m.Tasks().SelectedTaskID(); got != "summary" {
		t.Errorf("selected = %q, want first task seen", got)
	}
}

func TestModel_ParkedTask(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := New(bus, "flow-1", "")
	m = update(t, m, events.TaskParkedEvent{Flow: "flow-1", ID: "name", AgentID: "default", Prompt: "Which name?"})

	tv, _ := m.Tasks().Task("name")
	if tv.Status != StatusParked {
		t.Errorf("status = %q, want %q", tv.Status, StatusParked)
	}
	if len(tv.Lines) != 1 || !strings.Contains(tv.Lines[0], "Which name?") {
		t.Errorf("unexpected transcript: %q", tv.Lines)
	}
}

func TestModel_Progress(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := New(bus, "flow-1", "")
	p := events.FlowProgressEvent{Flow: "flow-1", Total: 3, Successful: 2, Failed: 1}
	m = update(t, m, p)

	if got := m.Progress(); got != p {
		t.Errorf("progress = %+v, want %+v", got, p)
	}
	if !m.Progress().Done() {
		t.Error("expected flow to be done")
	}
}

func TestModel_SelectionKeys(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := New(bus, "flow-1", "")
	m = update(t, m, events.TaskStartedEvent{Flow: "flow-1", ID: "a", Name: "a"})
	m = update(t, m, events.TaskStartedEvent{Flow: "flow-1", ID: "b", Name: "b"})

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	if got := m.Tasks().SelectedTaskID(); got != "b" {
		t.Errorf("after j selected = %q, want b", got)
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	if got := m.Tasks().SelectedTaskID(); got != "b" {
		t.Errorf("selection moved past the end: %q", got)
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	if got := m.Tasks().SelectedTaskID(); got != "a" {
		t.Errorf("after k selected = %q, want a", got)
	}

	// Selection keys are ignored while the progress pane has focus
	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	if got := m.Tasks().SelectedTaskID(); got != "a" {
		t.Errorf("unfocused pane changed selection to %q", got)
	}
}

func TestModel_View(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := New(bus, "flow-1", "launch")
	if got := m.View(); got != "Initializing..." {
		t.Errorf("view before resize = %q", got)
	}

	m = update(t, m, tea.WindowSizeMsg{Width: 140, Height: 30})
	m = update(t, m, events.TaskStartedEvent{Flow: "flow-1", ID: "tone", Name: "tone"})
	m = update(t, m, events.FlowProgressEvent{Flow: "flow-1", Total: 2, Running: 1, Pending: 1})

	view := m.View()
	for _, want := range []string{"Flow: launch", "Tasks", "tone", "Flow Progress", "q: quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if got := m.View(); got != "Goodbye!\n" {
		t.Errorf("view after quit = %q", got)
	}
}

func TestWaitForEvent_ClosedBus(t *testing.T) {
	bus := events.NewEventBus()
	m := New(bus, "flow-1", "")
	bus.Close()

	if _, ok := m.Init()().(busClosedMsg); !ok {
		t.Error("expected busClosedMsg after the bus closed")
	}
}
