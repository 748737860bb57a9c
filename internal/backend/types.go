package backend

// Message represents a message sent to the backend.
type Message struct {
	Content string
	Role    string // "user" or "system"
}

// Response represents a response from the backend.
type Response struct {
	Content   string
	SessionID string
	Error     string
}

// Config defines the configuration for a backend.
type Config struct {
	Type         string   // "claude" or "command"
	Command      string   // Binary to run; defaults to "claude" for the claude type
	Args         []string // Extra arguments appended to every invocation
	WorkDir      string
	SessionID    string
	Resume       bool // SessionID names an existing conversation
	Model        string
	SystemPrompt string
}
