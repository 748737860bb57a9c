package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/aristath/taskflow/internal/resultspec"
	"github.com/aristath/taskflow/internal/scheduler"
)

// ObjectivesError names every objective that did not succeed.
type ObjectivesError struct {
	Objectives []string
	Errs       []error
}

func (e *ObjectivesError) Error() string {
	return "failed objectives: " + strings.Join(e.Objectives, ", ")
}

// Unwrap exposes the per-objective errors to errors.Is and errors.As.
func (e *ObjectivesError) Unwrap() []error { return e.Errs }

// RunObjectives runs each objective as an independent task of a fresh flow
// and returns the results in order. A nil spec expects a string result. Each
// option applies to every task.
func RunObjectives(ctx context.Context, s *scheduler.Scheduler, objectives []string, spec resultspec.Spec, opts ...scheduler.TaskOption) ([]any, error) {
	if len(objectives) == 0 {
		return nil, nil
	}
	if spec == nil {
		spec = resultspec.Scalar{Kind: resultspec.String}
	}

	f := scheduler.NewFlow("ad hoc")
	ids := make([]string, len(objectives))
	for i, objective := range objectives {
		t := scheduler.NewTask(objective, spec, opts...)
		if err := f.AddTask(t); err != nil {
			return nil, fmt.Errorf("objective %d: %w", i+1, err)
		}
		ids[i] = t.ID
	}

	if err := s.Run(ctx, f); err != nil {
		return nil, err
	}

	values := make([]any, len(ids))
	var failed ObjectivesError
	for i, id := range ids {
		t, _ := f.Task(id)
		if t.State != scheduler.StateSuccessful {
			failed.Objectives = append(failed.Objectives, objectives[i])
			failed.Errs = append(failed.Errs, t.Err)
			continue
		}
		values[i] = t.Value
	}
	if len(failed.Objectives) > 0 {
		return nil, &failed
	}
	return values, nil
}
