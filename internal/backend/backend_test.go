package backend

import (
	"strings"
	"testing"
)

func TestFactory(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "claude", cfg: Config{Type: "claude", SessionID: "s"}},
		{name: "command", cfg: Config{Type: "command", Command: "cat"}},
		{name: "command without binary", cfg: Config{Type: "command"}, wantErr: "needs a command"},
		{name: "unknown", cfg: Config{Type: "codex"}, wantErr: "unknown backend type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(tt.cfg, nil)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if b.SessionID() == "" {
				t.Error("backend should have a session ID")
			}
			if err := b.Close(); err != nil {
				t.Errorf("Close failed: %v", err)
			}
			// Close is idempotent
			if err := b.Close(); err != nil {
				t.Errorf("second Close failed: %v", err)
			}
		})
	}
}
