package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SessionKey identifies one agent's backend conversation on one task.
type SessionKey struct {
	FlowID  string
	TaskID  string
	AgentID string
}

func (k SessionKey) String() string {
	return k.FlowID + "/" + k.TaskID + "/" + k.AgentID
}

// SaveSession stores the backend session for an agent on a task.
// Uses ON CONFLICT to upsert - handles both first-save and resume scenarios.
func (s *SQLiteStore) SaveSession(ctx context.Context, key SessionKey, sessionID, backendType string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (flow_id, task_id, agent_id, session_id, backend_type, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(flow_id, task_id, agent_id) DO UPDATE SET
				session_id = excluded.session_id,
				backend_type = excluded.backend_type
		`, key.FlowID, key.TaskID, key.AgentID, sessionID, backendType, formatTime(time.Now()))
		if err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		return nil
	})
}

// GetSession retrieves the backend session for an agent on a task.
// Returns a wrapped ErrNotFound if none was saved.
func (s *SQLiteStore) GetSession(ctx context.Context, key SessionKey) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var sessionID, backendType string
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, backend_type
		FROM sessions
		WHERE flow_id = ? AND task_id = ? AND agent_id = ?
	`, key.FlowID, key.TaskID, key.AgentID).Scan(&sessionID, &backendType)

	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("no session found for %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to query session: %w", err)
	}
	return sessionID, backendType, nil
}
