package scheduler

// allowed lists the legal transitions. Terminal states have no entry, so no
// state is revisited after one is reached.
var allowed = map[TaskState][]TaskState{
	StatePending:         {StateRunning, StateSkipped, StateSuccessful},
	StateRunning:         {StateCoerced, StateRepairRequested, StateFailed, StateSkipped},
	StateCoerced:         {StateSuccessful, StateRepairRequested},
	StateRepairRequested: {StateRunning, StateFailed, StateSkipped},
}

func isAllowedTransition(from, to TaskState) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transition moves t to the given state. Pending to Successful is only legal
// for auto-complete tasks. Callers hold the flow lock.
func transition(t *Task, to TaskState) error {
	if !isAllowedTransition(t.State, to) || (t.State == StatePending && to == StateSuccessful && !t.AutoComplete) {
		return &TransitionError{TaskID: t.ID, From: t.State, To: to}
	}
	t.State = to
	return nil
}
