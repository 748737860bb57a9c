package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/aristath/taskflow/internal/agent"
	"github.com/aristath/taskflow/internal/events"
	"github.com/aristath/taskflow/internal/resultspec"
	"github.com/aristath/taskflow/internal/validate"
)

// turnStart is what begin hands to the rest of a turn.
type turnStart struct {
	req         agent.TurnRequest
	label       string
	agent       *agent.Agent
	spec        resultspec.Spec
	validators  []validate.Validator
	budget      int
	interactive bool
	first       bool
	done        bool
	changed     []*Task
}

// turn runs one agent turn on taskID. done reports that the task is
// terminal afterwards. Only cancellation and readiness problems are
// returned as errors; task outcomes are recorded on the task.
func (s *Scheduler) turn(ctx context.Context, f *Flow, taskID string) (bool, error) {
	key := turnKey(f.ID, taskID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	s.ensureRecorded(ctx, f)

	st, err := s.begin(f, taskID)
	s.announce(ctx, f, st.changed)
	if err != nil || st.done {
		return st.done, err
	}
	if st.first {
		s.markStarted(f, taskID)
		s.bus.Publish(events.TaskStartedEvent{Flow: f.ID, ID: taskID, Name: st.label, AgentID: st.agent.ID, Timestamp: s.now()})
	}

	resp, err := s.invoke(ctx, st)
	for err == nil && resp.Action == agent.RequestInput && st.interactive && st.agent.UserAccess {
		var discarded bool
		discarded, err = s.park(ctx, f, &st, resp)
		if discarded {
			return true, nil
		}
		if err != nil {
			break
		}
		st.req.History = f.history.Snapshot()
		resp, err = s.invoke(ctx, st)
	}

	if err != nil {
		if isCancellation(ctx, err) {
			s.release(f, taskID)
			return false, err
		}
		done, _ := s.commitTurn(ctx, f, taskID, nil, true, func(t *Task) {
			_ = transition(t, StateFailed)
			t.Err = err
		})
		return done, nil
	}

	switch resp.Action {
	case agent.Defer, agent.HandOff:
		return s.discuss(ctx, f, st, resp), nil
	case agent.RequestInput:
		s.logger.Printf("WARNING: agent %q requested input on task %q which cannot ask the user; treating output as an answer", st.agent.ID, taskID)
	}
	return s.submit(ctx, f, st, resp), nil
}

// begin validates that taskID can take a turn and moves it to Running.
func (s *Scheduler) begin(f *Flow, taskID string) (turnStart, error) {
	f.dag.mu.Lock()
	defer f.dag.mu.Unlock()

	var st turnStart
	st.changed = f.settleLocked(s.cfg.ProceedOnFailedDependencies)

	t, ok := f.dag.tasks[taskID]
	if !ok {
		return st, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if t.State.IsTerminal() {
		st.done = true
		return st, nil
	}
	if f.dag.inFlight[taskID] {
		return st, fmt.Errorf("task %q already has a turn in progress", taskID)
	}
	if t.AutoComplete || !f.dag.depsTerminalLocked(t) {
		return st, fmt.Errorf("task %q is not ready: waiting on dependencies", taskID)
	}

	if s.cfg.MaxTurns > 0 && t.Turns >= s.cfg.MaxTurns {
		if t.State == StatePending {
			_ = transition(t, StateRunning)
		}
		_ = transition(t, StateFailed)
		t.Err = &MaxTurnsExceededError{Turns: t.Turns}
		st.done = true
		st.changed = append(st.changed, cloneTask(t))
		st.changed = append(st.changed, f.settleLocked(s.cfg.ProceedOnFailedDependencies)...)
		return st, nil
	}

	st.budget = budgetFor(t, s.cfg.DefaultRetryBudget)
	st.first = t.State == StatePending
	var repair string
	if t.State == StateRepairRequested && t.LastError != nil {
		repair = repairMessage(t.LastError, st.budget-t.Failures)
	}
	if t.State != StateRunning {
		if err := transition(t, StateRunning); err != nil {
			return st, err
		}
	}
	if st.first {
		st.changed = append(st.changed, cloneTask(t))
	}
	t.Turns++
	f.dag.inFlight[taskID] = true

	st.agent = currentAgent(t)
	st.label = t.Label()
	st.spec = t.Spec
	st.validators = t.Validators
	st.interactive = t.Interactive
	st.req = agent.TurnRequest{
		FlowID:             f.ID,
		TaskID:             t.ID,
		Agent:              st.agent,
		Objective:          t.Objective,
		Instructions:       joinInstructions(f.Instructions, t.Instructions),
		Context:            f.resolveContextLocked(t),
		History:            f.history.Snapshot(),
		ResultInstructions: resultspec.Describe(t.Spec),
		Repair:             repair,
		Attempt:            t.Failures + 1,
		Interactive:        t.Interactive,
		Participants:       agentIDs(t.Agents),
	}
	return st, nil
}

// invoke calls the agent. Boundary failures become AgentError; they are
// never retried here.
func (s *Scheduler) invoke(ctx context.Context, st turnStart) (agent.TurnResponse, error) {
	if err := ctx.Err(); err != nil {
		return agent.TurnResponse{}, err
	}
	resp, err := s.invoker.RequestTurn(ctx, st.req)
	if err != nil {
		if isCancellation(ctx, err) {
			return resp, err
		}
		return resp, &AgentError{AgentID: st.agent.ID, Err: err}
	}
	return resp, nil
}

// park records the agent's question, waits for the user, and records the
// answer. The task stays Running and no retry is consumed.
func (s *Scheduler) park(ctx context.Context, f *Flow, st *turnStart, resp agent.TurnResponse) (bool, error) {
	taskID := st.req.TaskID
	prompt := resp.Prompt
	if prompt == "" {
		prompt = resp.Output
	}

	question := agent.Turn{AgentID: st.agent.ID, Role: agent.RoleAgent, Action: agent.RequestInput, Attempt: st.req.Attempt, Raw: prompt}
	if _, discarded := s.commitTurn(ctx, f, taskID, &question, false, nil); discarded {
		return true, nil
	}
	s.bus.Publish(events.TaskParkedEvent{Flow: f.ID, ID: taskID, AgentID: st.agent.ID, Prompt: prompt, Timestamp: s.now()})

	answer, err := s.awaitInput(ctx, taskID, prompt)
	if err != nil {
		return false, err
	}

	reply := agent.Turn{Role: agent.RoleUser, Action: agent.Submit, Attempt: st.req.Attempt, Raw: answer}
	if _, discarded := s.commitTurn(ctx, f, taskID, &reply, false, nil); discarded {
		return true, nil
	}
	return false, nil
}

func (s *Scheduler) awaitInput(ctx context.Context, taskID, prompt string) (string, error) {
	if s.input == nil {
		return "", ErrNoUserInput
	}

	ictx := ctx
	if s.cfg.InteractiveTimeout > 0 {
		var cancel context.CancelFunc
		ictx, cancel = context.WithTimeout(ctx, s.cfg.InteractiveTimeout)
		defer cancel()
	}

	answer, err := s.input.AwaitUserInput(ictx, taskID, prompt)
	if err == nil {
		return answer, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || ictx.Err() != nil {
		return "", &InteractiveTimeoutError{Prompt: prompt, Timeout: s.cfg.InteractiveTimeout}
	}
	return "", fmt.Errorf("user input: %w", err)
}

// discuss records a turn that offers no result and passes the turn on.
func (s *Scheduler) discuss(ctx context.Context, f *Flow, st turnStart, resp agent.TurnResponse) bool {
	var note string
	rec := agent.Turn{AgentID: st.agent.ID, Role: agent.RoleAgent, Action: resp.Action, Attempt: st.req.Attempt, Raw: resp.Output}
	done, _ := s.commitTurn(ctx, f, st.req.TaskID, &rec, true, func(t *Task) {
		note = advance(t, st.agent, resp)
	})
	if note != "" {
		s.logger.Printf("WARNING: task %q: %s", st.req.TaskID, note)
	}
	return done
}

// submit coerces and validates the output, then commits the outcome.
func (s *Scheduler) submit(ctx context.Context, f *Flow, st turnStart, resp agent.TurnResponse) bool {
	value, err := resultspec.Coerce(resp.Output, st.spec)
	coerced := err == nil
	if coerced {
		value, err = validate.Run(value, st.validators...)
	}

	rec := agent.Turn{AgentID: st.agent.ID, Role: agent.RoleAgent, Action: agent.Submit, Attempt: st.req.Attempt, Raw: resp.Output}
	if err != nil {
		rec.Err = err.Error()
	} else {
		rec.Value = value
	}

	done, _ := s.commitTurn(ctx, f, st.req.TaskID, &rec, true, func(t *Task) {
		if coerced {
			_ = transition(t, StateCoerced)
		}
		if err != nil {
			reject(t, err, st.budget)
			return
		}
		_ = transition(t, StateSuccessful)
		t.Value = value
		t.LastError = nil
		f.dag.publishLocked(t.ID, value)
	})
	return done
}

// commitTurn atomically applies mutate, appends rec to the history, and
// propagates a terminal outcome to dependents. If the task became terminal
// while the turn ran (the flow was cancelled), nothing is applied and
// discarded is true. final ends the task's in-flight turn.
func (s *Scheduler) commitTurn(ctx context.Context, f *Flow, taskID string, rec *agent.Turn, final bool, mutate func(*Task)) (done, discarded bool) {
	f.dag.mu.Lock()
	t := f.dag.tasks[taskID]
	if t.State.IsTerminal() {
		delete(f.dag.inFlight, taskID)
		f.dag.mu.Unlock()
		return true, true
	}

	prev := t.State
	if mutate != nil {
		mutate(t)
	}
	var stored agent.Turn
	if rec != nil {
		rec.ID = uuid.NewString()
		rec.FlowID = f.ID
		rec.TaskID = taskID
		rec.Timestamp = s.now()
		stored = f.history.append(*rec)
	}
	if final {
		delete(f.dag.inFlight, taskID)
	}

	var changed []*Task
	if t.State != prev {
		changed = append(changed, cloneTask(t))
	}
	done = t.State.IsTerminal()
	if done {
		changed = append(changed, f.settleLocked(s.cfg.ProceedOnFailedDependencies)...)
	}
	f.dag.mu.Unlock()

	if rec != nil {
		s.appendTurn(ctx, stored)
		s.bus.Publish(events.TurnCompletedEvent{
			Flow:      f.ID,
			ID:        taskID,
			Seq:       stored.Seq,
			AgentID:   stored.AgentID,
			Role:      string(stored.Role),
			Action:    stored.Action.String(),
			Raw:       stored.Raw,
			Err:       stored.Err,
			Timestamp: stored.Timestamp,
		})
	}
	s.announce(ctx, f, changed)
	return done, false
}

// release ends an in-flight turn without changing the task.
func (s *Scheduler) release(f *Flow, taskID string) {
	f.dag.mu.Lock()
	defer f.dag.mu.Unlock()
	delete(f.dag.inFlight, taskID)
}

func joinInstructions(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
