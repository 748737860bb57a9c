package scheduler

import (
	"fmt"

	"github.com/aristath/taskflow/internal/agent"
)

// PolicyKind selects how agents sharing a task take turns.
type PolicyKind int

const (
	// RoundRobin rotates through the assigned agents. The cursor advances
	// after discussion and hand-off turns; a repair goes back to the agent
	// whose answer was rejected.
	RoundRobin PolicyKind = iota
	// Designated gives every turn to a single agent.
	Designated
	// HandOff keeps the turn with one holder until it explicitly hands off.
	HandOff
)

func (k PolicyKind) String() string {
	switch k {
	case RoundRobin:
		return "round_robin"
	case Designated:
		return "designated"
	case HandOff:
		return "handoff"
	default:
		return fmt.Sprintf("policy(%d)", int(k))
	}
}

// ParsePolicyKind accepts the names produced by String. The empty string is
// RoundRobin.
func ParsePolicyKind(s string) (PolicyKind, error) {
	switch s {
	case "", "round_robin", "round-robin":
		return RoundRobin, nil
	case "designated", "single":
		return Designated, nil
	case "handoff", "hand_off", "hand-off":
		return HandOff, nil
	default:
		return 0, fmt.Errorf("unknown turn policy %q", s)
	}
}

// TurnPolicy is a per-task value describing who speaks next. Agent names the
// designated agent, or the first holder for HandOff; empty means the first
// assigned agent.
type TurnPolicy struct {
	Kind  PolicyKind
	Agent string
}

// RoundRobinPolicy is the default policy.
func RoundRobinPolicy() TurnPolicy { return TurnPolicy{Kind: RoundRobin} }

// DesignatedPolicy gives every turn to agentID.
func DesignatedPolicy(agentID string) TurnPolicy {
	return TurnPolicy{Kind: Designated, Agent: agentID}
}

// HandOffPolicy starts with agentID and follows explicit hand-offs.
func HandOffPolicy(agentID string) TurnPolicy {
	return TurnPolicy{Kind: HandOff, Agent: agentID}
}

// turnState is the mutable part of a policy, owned by the task.
type turnState struct {
	cursor int
	holder string
}

// currentAgent returns the agent whose turn it is.
func currentAgent(t *Task) *agent.Agent {
	agents := t.Agents
	switch t.Policy.Kind {
	case Designated:
		if a := findAgent(agents, t.Policy.Agent); a != nil {
			return a
		}
		return agents[0]
	case HandOff:
		holder := t.turn.holder
		if holder == "" {
			holder = t.Policy.Agent
		}
		if a := findAgent(agents, holder); a != nil {
			return a
		}
		return agents[0]
	default:
		return agents[t.turn.cursor%len(agents)]
	}
}

// advance moves the turn after a response. It returns a non-empty message
// when a hand-off was ignored.
func advance(t *Task, current *agent.Agent, resp agent.TurnResponse) string {
	switch resp.Action {
	case agent.HandOff:
		if t.Policy.Kind == Designated {
			return fmt.Sprintf("hand-off to %q ignored: task has a designated agent", resp.HandOffTo)
		}
		idx := indexOfAgent(t.Agents, resp.HandOffTo)
		if idx < 0 {
			return fmt.Sprintf("hand-off to %q ignored: not assigned to task", resp.HandOffTo)
		}
		t.turn.cursor = idx
		t.turn.holder = t.Agents[idx].ID
	case agent.Defer:
		if t.Policy.Kind == RoundRobin {
			t.turn.cursor = (indexOfAgent(t.Agents, current.ID) + 1) % len(t.Agents)
		}
	}
	return ""
}

func findAgent(agents []*agent.Agent, id string) *agent.Agent {
	if i := indexOfAgent(agents, id); i >= 0 {
		return agents[i]
	}
	return nil
}

func indexOfAgent(agents []*agent.Agent, id string) int {
	if id == "" {
		return -1
	}
	for i, a := range agents {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func agentIDs(agents []*agent.Agent) []string {
	ids := make([]string, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	return ids
}
