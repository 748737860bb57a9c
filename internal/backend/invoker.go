package backend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/aristath/taskflow/internal/agent"
	"github.com/aristath/taskflow/internal/persistence"
)

// Reply directives recognised on the first non-empty line of a reply.
const (
	DirectiveHandOff = "HANDOFF:"
	DirectiveAsk     = "ASK:"
	DirectivePass    = "PASS"
)

// SessionStore remembers backend sessions across runs.
type SessionStore interface {
	SaveSession(ctx context.Context, key persistence.SessionKey, sessionID, backendType string) error
	GetSession(ctx context.Context, key persistence.SessionKey) (string, string, error)
}

// Invoker serves agent turns from CLI backends. Each agent keeps one backend
// conversation per task, selected by the agent's provider.
type Invoker struct {
	providers       map[string]Config
	defaultProvider string
	pm              *ProcessManager
	sessions        SessionStore
	logger          *log.Logger
	newBackend      func(Config, *ProcessManager) (Backend, error)

	mu       sync.Mutex
	backends map[persistence.SessionKey]Backend
}

var _ agent.Invoker = (*Invoker)(nil)

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithSessionStore persists backend sessions so a rerun resumes them.
func WithSessionStore(s SessionStore) InvokerOption {
	return func(inv *Invoker) { inv.sessions = s }
}

// WithDefaultProvider serves agents that name no provider, or an unknown one.
func WithDefaultProvider(name string) InvokerOption {
	return func(inv *Invoker) { inv.defaultProvider = name }
}

// WithInvokerLogger replaces the default logger.
func WithInvokerLogger(l *log.Logger) InvokerOption {
	return func(inv *Invoker) { inv.logger = l }
}

// NewInvoker creates an invoker over the named provider configurations.
func NewInvoker(providers map[string]Config, pm *ProcessManager, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		providers:  providers,
		pm:         pm,
		logger:     log.Default(),
		newBackend: New,
		backends:   make(map[persistence.SessionKey]Backend),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// RequestTurn renders the request into a prompt, sends it to the agent's
// backend, and parses the reply.
func (inv *Invoker) RequestTurn(ctx context.Context, req agent.TurnRequest) (agent.TurnResponse, error) {
	ag := req.Agent
	if ag == nil {
		ag = agent.Default()
	}
	key := persistence.SessionKey{FlowID: req.FlowID, TaskID: req.TaskID, AgentID: ag.ID}

	b, cfg, err := inv.backend(ctx, key, ag)
	if err != nil {
		return agent.TurnResponse{}, err
	}

	resp, err := b.Send(ctx, Message{Content: RenderPrompt(req), Role: "user"})
	if err != nil {
		return agent.TurnResponse{}, fmt.Errorf("agent %q: %w", ag.ID, err)
	}

	if inv.sessions != nil {
		if err := inv.sessions.SaveSession(ctx, key, b.SessionID(), cfg.Type); err != nil {
			inv.logger.Printf("WARNING: failed to save session for %s: %v", key, err)
		}
	}
	return ParseReply(resp.Content), nil
}

// Close closes every backend the invoker opened.
func (inv *Invoker) Close() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	var errs []error
	for key, b := range inv.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	inv.backends = make(map[persistence.SessionKey]Backend)
	return errors.Join(errs...)
}

func (inv *Invoker) backend(ctx context.Context, key persistence.SessionKey, ag *agent.Agent) (Backend, Config, error) {
	cfg, err := inv.providerFor(ag)
	if err != nil {
		return nil, cfg, err
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	if b, ok := inv.backends[key]; ok {
		return b, cfg, nil
	}

	cfg.Model = firstNonEmpty(ag.Model, cfg.Model)
	cfg.SystemPrompt = ag.Instructions
	if inv.sessions != nil {
		id, backendType, err := inv.sessions.GetSession(ctx, key)
		switch {
		case err == nil && backendType == cfg.Type:
			cfg.SessionID = id
			cfg.Resume = true
		case err != nil && !errors.Is(err, persistence.ErrNotFound):
			inv.logger.Printf("WARNING: failed to load session for %s: %v", key, err)
		}
	}

	b, err := inv.newBackend(cfg, inv.pm)
	if err != nil {
		return nil, cfg, fmt.Errorf("agent %q: %w", ag.ID, err)
	}
	inv.backends[key] = b
	return b, cfg, nil
}

func (inv *Invoker) providerFor(ag *agent.Agent) (Config, error) {
	if cfg, ok := inv.providers[ag.Provider]; ok {
		return cfg, nil
	}
	if cfg, ok := inv.providers[inv.defaultProvider]; ok {
		return cfg, nil
	}
	return Config{}, fmt.Errorf("agent %q: no provider %q configured", ag.ID, ag.Provider)
}

// ParseReply turns a raw reply into a turn response. A directive is only
// recognised on the first non-empty line; everything after it is the output.
func ParseReply(text string) agent.TurnResponse {
	trimmed := strings.TrimSpace(text)
	first, rest, _ := strings.Cut(trimmed, "\n")
	first = strings.TrimSpace(first)
	rest = strings.TrimSpace(rest)

	switch {
	case hasDirective(first, DirectiveHandOff):
		target := strings.TrimSpace(first[len(DirectiveHandOff):])
		return agent.TurnResponse{Action: agent.HandOff, HandOffTo: target, Output: rest}
	case hasDirective(first, DirectiveAsk):
		prompt := strings.TrimSpace(first[len(DirectiveAsk):])
		if rest != "" {
			prompt = strings.TrimSpace(prompt + "\n" + rest)
		}
		return agent.TurnResponse{Action: agent.RequestInput, Prompt: prompt, Output: prompt}
	case strings.EqualFold(first, DirectivePass):
		return agent.TurnResponse{Action: agent.Defer, Output: rest}
	default:
		return agent.TurnResponse{Action: agent.Submit, Output: trimmed}
	}
}

func hasDirective(line, directive string) bool {
	return len(line) >= len(directive) && strings.EqualFold(line[:len(directive)], directive)
}

// RenderPrompt lays out everything an agent needs for one turn.
func RenderPrompt(req agent.TurnRequest) string {
	var b strings.Builder

	section := func(title, body string) {
		if strings.TrimSpace(body) == "" {
			return
		}
		fmt.Fprintf(&b, "## %s\n%s\n\n", title, strings.TrimSpace(body))
	}

	section("Objective", req.Objective)
	section("Instructions", req.Instructions)
	section("Context", renderContext(req.Context))
	section("Conversation so far", renderHistory(req.History))
	section("Expected result", req.ResultInstructions)
	if req.Repair != "" {
		section(fmt.Sprintf("Attempt %d: your previous answer was rejected", req.Attempt), req.Repair)
	}
	section("How to reply", renderDirectives(req))

	return strings.TrimSpace(b.String())
}

func renderContext(ctx map[string]any) string {
	if len(ctx) == 0 {
		return ""
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		out, err := yaml.Marshal(map[string]any{k: ctx[k]})
		if err != nil {
			fmt.Fprintf(&b, "%s: %v\n", k, ctx[k])
			continue
		}
		b.Write(out)
	}
	return b.String()
}

func renderHistory(turns []agent.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		who := "user"
		if t.Role == agent.RoleAgent {
			who = t.AgentID
		}
		fmt.Fprintf(&b, "[%s on %s] %s\n", who, t.TaskID, strings.TrimSpace(t.Raw))
		if t.Failed() {
			fmt.Fprintf(&b, "  (rejected: %s)\n", t.Err)
		}
	}
	return b.String()
}

func renderDirectives(req agent.TurnRequest) string {
	lines := []string{"Reply with the result only."}
	if len(req.Participants) > 1 {
		lines = append(lines,
			fmt.Sprintf("To pass the task to another agent, start your reply with a line %q followed by your notes. Agents: %s.",
				DirectiveHandOff+" <agent>", strings.Join(req.Participants, ", ")),
			fmt.Sprintf("To add to the discussion without answering, start your reply with a line %q.", DirectivePass))
	}
	if req.Interactive && req.Agent != nil && req.Agent.UserAccess {
		lines = append(lines,
			fmt.Sprintf("To ask the user a question first, reply with a single line %q.", DirectiveAsk+" <question>"))
	}
	return strings.Join(lines, "\n")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
