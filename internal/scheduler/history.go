package scheduler

import (
	"sync"

	"github.com/aristath/taskflow/internal/agent"
)

// History is a flow's append-only turn log. Records are ordered by turn
// completion and never rewritten.
type History struct {
	mu    sync.RWMutex
	turns []agent.Turn
}

// append assigns the next sequence number and stores the turn.
func (h *History) append(t agent.Turn) agent.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()

	t.Seq = len(h.turns) + 1
	h.turns = append(h.turns, t)
	return t
}

// Snapshot returns a point-in-time copy of every turn.
func (h *History) Snapshot() []agent.Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]agent.Turn(nil), h.turns...)
}

// ForTask returns the turns of one task in order.
func (h *History) ForTask(taskID string) []agent.Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []agent.Turn
	for _, t := range h.turns {
		if t.TaskID == taskID {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of recorded turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}
