package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/taskflow/internal/agent"
)

// AppendTurn stores one history entry. Turns are append-only.
func (s *SQLiteStore) AppendTurn(ctx context.Context, turn agent.Turn) error {
	value, err := encodeValue(turn.Value)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO turns (id, flow_id, task_id, seq, agent_id, role, action, attempt, raw, value, error, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, turn.ID, turn.FlowID, turn.TaskID, turn.Seq, turn.AgentID, string(turn.Role), turn.Action.String(),
			turn.Attempt, turn.Raw, value, turn.Err, formatTime(turn.Timestamp))
		if err != nil {
			return fmt.Errorf("failed to append turn: %w", err)
		}
		return nil
	})
}

// ListTurns returns a flow's history in sequence order.
func (s *SQLiteStore) ListTurns(ctx context.Context, flowID string) ([]agent.Turn, error) {
	return s.queryTurns(ctx, `
		SELECT id, flow_id, task_id, seq, agent_id, role, action, attempt, raw, value, error, timestamp
		FROM turns
		WHERE flow_id = ?
		ORDER BY seq ASC, id ASC
	`, flowID)
}

// ListTaskTurns returns the turns taken on one task in sequence order.
func (s *SQLiteStore) ListTaskTurns(ctx context.Context, flowID, taskID string) ([]agent.Turn, error) {
	return s.queryTurns(ctx, `
		SELECT id, flow_id, task_id, seq, agent_id, role, action, attempt, raw, value, error, timestamp
		FROM turns
		WHERE flow_id = ? AND task_id = ?
		ORDER BY seq ASC, id ASC
	`, flowID, taskID)
}

func (s *SQLiteStore) queryTurns(ctx context.Context, query string, args ...any) ([]agent.Turn, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	// Empty slice, not nil, for a flow without turns
	turns := []agent.Turn{}
	for rows.Next() {
		var (
			turn         agent.Turn
			role, action string
			value        sql.NullString
			ts           string
		)
		if err := rows.Scan(&turn.ID, &turn.FlowID, &turn.TaskID, &turn.Seq, &turn.AgentID, &role, &action,
			&turn.Attempt, &turn.Raw, &value, &turn.Err, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Role = agent.Role(role)
		turn.Action = parseAction(action)
		if turn.Value, err = decodeValue(value); err != nil {
			return nil, err
		}
		turn.Timestamp = parseTime(ts)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}
	return turns, nil
}

func parseAction(s string) agent.Action {
	for _, a := range []agent.Action{agent.Submit, agent.Defer, agent.HandOff, agent.RequestInput} {
		if a.String() == s {
			return a
		}
	}
	return agent.Submit
}
