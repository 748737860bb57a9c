package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/taskflow/internal/resultspec"
	"github.com/aristath/taskflow/internal/scheduler"
)

// TaskRecord is the stored view of a task.
type TaskRecord struct {
	FlowID      string
	ID          string
	Seq         int
	Name        string
	Objective   string
	Spec        resultspec.Decl
	State       scheduler.TaskState
	Value       any
	Err         string
	LastError   string
	Failures    int
	Turns       int
	Priority    int
	Interactive bool
	DependsOn   []string
	UpdatedAt   time.Time
}

// SaveTask saves or updates a task and replaces its dependency rows.
func (s *SQLiteStore) SaveTask(ctx context.Context, flowID string, task *scheduler.Task, deps []string) error {
	spec, err := encodeSpec(task.Spec)
	if err != nil {
		return err
	}
	value, err := encodeValue(task.Value)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (flow_id, id, seq, name, objective, result_spec, state, value, error, last_error,
				failures, turns, priority, interactive, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(flow_id, id) DO UPDATE SET
				name = excluded.name,
				objective = excluded.objective,
				result_spec = excluded.result_spec,
				state = excluded.state,
				value = excluded.value,
				error = excluded.error,
				last_error = excluded.last_error,
				failures = excluded.failures,
				turns = excluded.turns,
				priority = excluded.priority,
				interactive = excluded.interactive,
				updated_at = excluded.updated_at
		`, flowID, task.ID, task.Seq(), task.Name, task.Objective, spec, task.State.String(), value,
			errString(task.Err), errString(task.LastError), task.Failures, task.Turns, task.Priority,
			boolInt(task.Interactive), formatTime(time.Now()))
		if err != nil {
			return fmt.Errorf("failed to upsert task: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE flow_id = ? AND task_id = ?`, flowID, task.ID); err != nil {
			return fmt.Errorf("failed to delete old dependencies: %w", err)
		}
		for _, depID := range deps {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO task_dependencies (flow_id, task_id, depends_on_id)
				VALUES (?, ?, ?)
			`, flowID, task.ID, depID); err != nil {
				return fmt.Errorf("failed to insert dependency %s: %w", depID, err)
			}
		}
		return nil
	})
}

const taskColumns = `flow_id, id, seq, name, objective, result_spec, state, value, error, last_error,
	failures, turns, priority, interactive, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*TaskRecord, error) {
	var (
		rec         TaskRecord
		spec, state string
		value       sql.NullString
		interactive int
		updated     string
	)
	if err := row.Scan(&rec.FlowID, &rec.ID, &rec.Seq, &rec.Name, &rec.Objective, &spec, &state, &value,
		&rec.Err, &rec.LastError, &rec.Failures, &rec.Turns, &rec.Priority, &interactive, &updated); err != nil {
		return nil, err
	}

	decl, err := decodeSpec(spec)
	if err != nil {
		return nil, err
	}
	rec.Spec = decl

	st, ok := scheduler.ParseTaskState(state)
	if !ok {
		return nil, fmt.Errorf("task %q has unknown state %q", rec.ID, state)
	}
	rec.State = st

	if rec.Value, err = decodeValue(value); err != nil {
		return nil, err
	}
	if rec.State == scheduler.StateSuccessful && rec.Value == nil && (decl.Type == "none" || decl.Type == "") {
		rec.Value = resultspec.NoResult{}
	}
	rec.Interactive = interactive != 0
	rec.UpdatedAt = parseTime(updated)
	return &rec, nil
}

// GetTask retrieves one task with its dependencies.
func (s *SQLiteStore) GetTask(ctx context.Context, flowID, taskID string) (*TaskRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rec, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE flow_id = ? AND id = ?`, flowID, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %q in flow %q: %w", taskID, flowID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}

	deps, err := s.dependencies(ctx, flowID)
	if err != nil {
		return nil, err
	}
	rec.DependsOn = deps[taskID]
	return rec, nil
}

// ListTasks returns a flow's tasks in creation order.
func (s *SQLiteStore) ListTasks(ctx context.Context, flowID string) ([]*TaskRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE flow_id = ? ORDER BY seq, id`, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	var tasks []*TaskRecord
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	// Release the only connection before the dependency query
	rows.Close()

	deps, err := s.dependencies(ctx, flowID)
	if err != nil {
		return nil, err
	}
	for _, rec := range tasks {
		rec.DependsOn = deps[rec.ID]
	}
	return tasks, nil
}

// dependencies loads every dependency edge of a flow keyed by task ID.
func (s *SQLiteStore) dependencies(ctx context.Context, flowID string) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, depends_on_id
		FROM task_dependencies
		WHERE flow_id = ?
		ORDER BY task_id, rowid
	`, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer rows.Close()

	deps := make(map[string][]string)
	for rows.Next() {
		var taskID, depID string
		if err := rows.Scan(&taskID, &depID); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		deps[taskID] = append(deps[taskID], depID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dependencies: %w", err)
	}
	return deps, nil
}
