package scheduler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/taskflow/internal/resultspec"
	"github.com/aristath/taskflow/internal/validate"
)

// repairMessage tells the agent why its previous answer was rejected.
func repairMessage(err error, remaining int) string {
	var b strings.Builder

	var ce *resultspec.CoercionError
	var ve *validate.ValidationError
	switch {
	case errors.As(err, &ce):
		b.WriteString("Your previous answer could not be read as the requested result.\n")
		for _, issue := range ce.Issues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
	case errors.As(err, &ve):
		fmt.Fprintf(&b, "Your previous answer was rejected by the %q check: %s\n", ve.Validator, ve.Message)
	default:
		fmt.Fprintf(&b, "Your previous answer was rejected: %v\n", err)
	}

	b.WriteString("Answer again, following the result instructions exactly.")
	if remaining == 0 {
		b.WriteString(" This is your last attempt.")
	} else {
		fmt.Fprintf(&b, " Attempts left after this one: %d.", remaining)
	}
	return b.String()
}

// budgetFor resolves a task's retry budget against the default.
func budgetFor(t *Task, def int) int {
	if t.RetryBudget >= 0 {
		return t.RetryBudget
	}
	if def < 0 {
		return 0
	}
	return def
}

// reject records a failed result attempt. The task goes to RepairRequested,
// and on to Failed once more attempts were rejected than the budget allows.
func reject(t *Task, err error, budget int) {
	_ = transition(t, StateRepairRequested)
	t.Failures++
	t.LastError = err
	if t.Failures > budget {
		_ = transition(t, StateFailed)
		t.Err = &MaxRetriesExceededError{Attempts: t.Failures, Last: err}
	}
}
