package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// ClaudeAdapter implements the Backend interface for the Claude Code CLI.
type ClaudeAdapter struct {
	command      string
	extraArgs    []string
	sessionID    string
	workDir      string
	model        string
	systemPrompt string
	started      bool
	procMgr      *ProcessManager
}

// claudeResponse represents the JSON structure returned by the CLI.
// Example: {"session_id": "uuid", "result": "response text"}
type claudeResponse struct {
	SessionID string          `json:"session_id"`
	Result    json.RawMessage `json:"result"`
	IsError   bool            `json:"is_error"`
}

// NewClaudeAdapter creates a new Claude Code backend adapter.
// If cfg.SessionID is empty, a new UUID will be generated. With cfg.Resume the
// first call continues the existing session.
// The ProcessManager is optional - if nil, subprocesses won't be tracked.
func NewClaudeAdapter(cfg Config, procMgr *ProcessManager) (*ClaudeAdapter, error) {
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	command := cfg.Command
	if command == "" {
		command = "claude"
	}

	return &ClaudeAdapter{
		command:      command,
		extraArgs:    cfg.Args,
		sessionID:    sessionID,
		workDir:      workDir,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		started:      cfg.Resume && cfg.SessionID != "",
		procMgr:      procMgr,
	}, nil
}

// Send sends a message to the CLI and returns the response.
// The first call uses --session-id, subsequent calls use --resume.
func (a *ClaudeAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	args := a.buildArgs(msg, a.started)

	cmd := newCommand(ctx, a.command, args...)
	cmd.Dir = a.workDir

	stdout, stderr, err := executeCommand(ctx, cmd, a.procMgr)
	if err != nil {
		return Response{
			Error: fmt.Sprintf("claude command failed: %v", err),
		}, err
	}

	resp, err := parseClaudeResponse(stdout)
	if err != nil {
		return Response{
			Error: fmt.Sprintf("failed to parse claude response: %v (stderr: %s)", err, string(stderr)),
		}, err
	}
	if resp.SessionID == "" {
		resp.SessionID = a.sessionID
	}

	// Mark as started after first successful call
	a.started = true

	return resp, nil
}

// Close is a no-op (subprocess-per-invocation model).
func (a *ClaudeAdapter) Close() error {
	return nil
}

// SessionID returns the current session identifier.
func (a *ClaudeAdapter) SessionID() string {
	return a.sessionID
}

// buildArgs constructs the command-line arguments for the claude CLI.
// isResume determines whether to use --session-id (false) or --resume (true).
func (a *ClaudeAdapter) buildArgs(msg Message, isResume bool) []string {
	args := []string{"-p", msg.Content, "--output-format", "json"}

	if isResume {
		args = append(args, "--resume", a.sessionID)
	} else {
		args = append(args, "--session-id", a.sessionID)
	}

	if a.model != "" {
		args = append(args, "--model", a.model)
	}

	if a.systemPrompt != "" {
		args = append(args, "--append-system-prompt", a.systemPrompt)
	}

	return append(args, a.extraArgs...)
}

// parseClaudeResponse parses the JSON output of the CLI. The result is either
// a plain string or an object holding a content array of text blocks.
func parseClaudeResponse(data []byte) (Response, error) {
	var cr claudeResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return Response{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	var content string
	var text string
	if err := json.Unmarshal(cr.Result, &text); err == nil {
		content = text
	} else {
		var blocks struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(cr.Result, &blocks); err != nil {
			return Response{}, fmt.Errorf("unexpected result shape: %w", err)
		}
		for _, item := range blocks.Content {
			if item.Type == "text" {
				content += item.Text
			}
		}
	}

	resp := Response{Content: content, SessionID: cr.SessionID}
	if cr.IsError {
		resp.Error = content
		return resp, fmt.Errorf("claude reported an error: %s", content)
	}
	return resp, nil
}
