package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CommandAdapter runs an arbitrary command once per message. The prompt is
// written to stdin and stdout is the reply. The session ID is exported to the
// command as TASKFLOW_SESSION_ID so scripts can keep their own state.
type CommandAdapter struct {
	command   string
	args      []string
	workDir   string
	sessionID string
	model     string
	procMgr   *ProcessManager
}

// NewCommandAdapter creates an adapter for cfg.Command.
func NewCommandAdapter(cfg Config, procMgr *ProcessManager) (*CommandAdapter, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("command backend needs a command")
	}
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &CommandAdapter{
		command:   cfg.Command,
		args:      cfg.Args,
		workDir:   cfg.WorkDir,
		sessionID: sessionID,
		model:     cfg.Model,
		procMgr:   procMgr,
	}, nil
}

// Send runs the command with msg.Content on stdin.
func (c *CommandAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	cmd := newCommand(ctx, c.command, c.args...)
	cmd.Dir = c.workDir
	cmd.Stdin = strings.NewReader(msg.Content)
	cmd.Env = append(cmd.Environ(), "TASKFLOW_SESSION_ID="+c.sessionID, "TASKFLOW_MODEL="+c.model)

	stdout, _, err := executeCommand(ctx, cmd, c.procMgr)
	if err != nil {
		return Response{
			Error:     fmt.Sprintf("%s failed: %v", c.command, err),
			SessionID: c.sessionID,
		}, err
	}
	return Response{
		Content:   strings.TrimRight(string(stdout), "\n"),
		SessionID: c.sessionID,
	}, nil
}

// Close is a no-op.
func (c *CommandAdapter) Close() error {
	return nil
}

// SessionID returns the session identifier handed to the command.
func (c *CommandAdapter) SessionID() string {
	return c.sessionID
}
