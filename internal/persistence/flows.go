package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aristath/taskflow/internal/scheduler"
)

// SaveFlow saves or updates a flow header.
func (s *SQLiteStore) SaveFlow(ctx context.Context, flow scheduler.FlowRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO flows (id, name, instructions, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				instructions = excluded.instructions
		`, flow.ID, flow.Name, flow.Instructions, formatTime(flow.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to upsert flow: %w", err)
		}
		return nil
	})
}

// GetFlow retrieves a flow header by ID.
func (s *SQLiteStore) GetFlow(ctx context.Context, flowID string) (scheduler.FlowRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var rec scheduler.FlowRecord
	var created string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, instructions, created_at
		FROM flows
		WHERE id = ?
	`, flowID).Scan(&rec.ID, &rec.Name, &rec.Instructions, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("flow %q: %w", flowID, ErrNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("failed to query flow: %w", err)
	}
	rec.CreatedAt = parseTime(created)
	return rec, nil
}

// ListFlows returns every recorded flow, newest first.
func (s *SQLiteStore) ListFlows(ctx context.Context) ([]scheduler.FlowRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, instructions, created_at
		FROM flows
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}
	defer rows.Close()

	var flows []scheduler.FlowRecord
	for rows.Next() {
		var rec scheduler.FlowRecord
		var created string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Instructions, &created); err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}
		rec.CreatedAt = parseTime(created)
		flows = append(flows, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}
	return flows, nil
}
