package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/taskflow/internal/events"
)

// Task statuses shown in the list.
const (
	StatusRunning   = "running"
	StatusRepair    = "repair"
	StatusParked    = "parked"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

const listWidth = 25

// TaskView is the dashboard's view of a single task.
type TaskView struct {
	TaskID    string
	Name      string
	Agent     string
	Status    string
	Turns     int
	Lines     []string
	StartTime time.Time
	Duration  time.Duration
}

// TaskPaneModel lists the flow's tasks and shows the selected task's transcript.
type TaskPaneModel struct {
	tasks       map[string]*TaskView
	order       []string
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int
}

// NewTaskPaneModel creates an empty task pane.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		tasks:    make(map[string]*TaskView),
		viewport: viewport.New(0, 0),
	}
}

// tickMsg debounces transcript refreshes.
type tickMsg struct {
	tag int
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd
	var changed string

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStartedEvent:
		t := m.task(msg.ID)
		t.Name = msg.Name
		t.Agent = msg.AgentID
		t.Status = StatusRunning
		t.StartTime = msg.Timestamp
		changed = msg.ID

	case events.TurnCompletedEvent:
		t := m.task(msg.ID)
		t.Turns++
		t.Agent = msg.AgentID
		line := fmt.Sprintf("[%s %s] %s", msg.AgentID, msg.Action, strings.TrimSpace(msg.Raw))
		if msg.Err != "" {
			line += "\n  rejected: " + msg.Err
		}
		t.Lines = append(t.Lines, line)
		changed = msg.ID

	case events.TaskRepairEvent:
		t := m.task(msg.ID)
		t.Status = StatusRepair
		t.Lines = append(t.Lines, fmt.Sprintf("[attempt %d] %v", msg.Attempt, msg.Err))
		changed = msg.ID

	case events.TaskParkedEvent:
		t := m.task(msg.ID)
		t.Status = StatusParked
		t.Lines = append(t.Lines, fmt.Sprintf("[%s asks] %s", msg.AgentID, msg.Prompt))
		changed = msg.ID

	case events.TaskCompletedEvent:
		t := m.task(msg.ID)
		t.Status = StatusCompleted
		t.Duration = msg.Duration
		t.Lines = append(t.Lines, fmt.Sprintf("\n[Completed in %v after %d turns] %v", msg.Duration, msg.Turns, msg.Value))
		changed = msg.ID

	case events.TaskFailedEvent:
		t := m.task(msg.ID)
		t.Status = StatusFailed
		t.Duration = msg.Duration
		t.Lines = append(t.Lines, fmt.Sprintf("\n[Failed: %v]", msg.Err))
		changed = msg.ID

	case events.TaskSkippedEvent:
		t := m.task(msg.ID)
		t.Status = StatusSkipped
		t.Lines = append(t.Lines, fmt.Sprintf("\n[Skipped: %v]", msg.Reason))
		changed = msg.ID

	case tickMsg:
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	if changed != "" {
		cmd = m.refresh(changed)
	}
	return m, cmd
}

// task returns the view for id, adding it to the list on first sight.
func (m *TaskPaneModel) task(id string) *TaskView {
	if t, ok := m.tasks[id]; ok {
		return t
	}
	t := &TaskView{TaskID: id, Name: id}
	m.tasks[id] = t
	m.order = append(m.order, id)
	if len(m.order) == 1 {
		m.selectedIdx = 0
		m.updateViewportContent()
	}
	return t
}

// refresh schedules a debounced viewport update when id is on screen.
func (m *TaskPaneModel) refresh(id string) tea.Cmd {
	if m.SelectedTaskID() != id {
		return nil
	}
	m.updateTag++
	tag := m.updateTag
	return tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{tag: tag}
	})
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(listWidth),
		lipgloss.NewStyle().
			Width(m.width-listWidth-4).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}
	for i, id := range m.order {
		t := m.tasks[id]
		name := t.Name
		if len(name) > width-6 {
			name = name[:width-9] + "..."
		}
		line := fmt.Sprintf("%s %s", StatusIcon(t.Status), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	switch status {
	case StatusRunning:
		return StyleStatusRunning.Render("●")
	case StatusRepair:
		return StyleStatusRunning.Render("↻")
	case StatusParked:
		return StyleStatusParked.Render("?")
	case StatusCompleted:
		return StyleStatusComplete.Render("✓")
	case StatusFailed:
		return StyleStatusFailed.Render("✗")
	case StatusSkipped:
		return StyleStatusPending.Render("-")
	default:
		return StyleStatusPending.Render("○")
	}
}

// Task returns the view of a task, if it has been seen.
func (m TaskPaneModel) Task(id string) (TaskView, bool) {
	t, ok := m.tasks[id]
	if !ok {
		return TaskView{}, false
	}
	return *t, true
}

// SelectedTaskID returns the ID of the highlighted task.
func (m TaskPaneModel) SelectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

func (m *TaskPaneModel) updateViewportContent() {
	t, ok := m.tasks[m.SelectedTaskID()]
	if !ok {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}
	header := fmt.Sprintf("%s (%s) agent=%s turns=%d\n\n", t.Name, t.Status, t.Agent, t.Turns)
	m.viewport.SetContent(header + strings.Join(t.Lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-listWidth-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
