package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS flows (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		instructions TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		flow_id TEXT NOT NULL,
		id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		objective TEXT NOT NULL,
		result_spec TEXT NOT NULL,
		state TEXT NOT NULL,
		value TEXT,
		error TEXT NOT NULL DEFAULT '',
		last_error TEXT NOT NULL DEFAULT '',
		failures INTEGER NOT NULL DEFAULT 0,
		turns INTEGER NOT NULL DEFAULT 0,
		priority INTEGER NOT NULL DEFAULT 0,
		interactive INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (flow_id, id),
		FOREIGN KEY (flow_id) REFERENCES flows(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS task_dependencies (
		flow_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		depends_on_id TEXT NOT NULL,
		PRIMARY KEY (flow_id, task_id, depends_on_id),
		FOREIGN KEY (flow_id, task_id) REFERENCES tasks(flow_id, id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		flow_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		agent_id TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		action TEXT NOT NULL,
		attempt INTEGER NOT NULL DEFAULT 0,
		raw TEXT NOT NULL DEFAULT '',
		value TEXT,
		error TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL,
		FOREIGN KEY (flow_id) REFERENCES flows(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_turns_flow_seq ON turns(flow_id, seq);

	CREATE TABLE IF NOT EXISTS sessions (
		flow_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		backend_type TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (flow_id, task_id, agent_id)
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
