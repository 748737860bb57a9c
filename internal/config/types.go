package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration written as a Go duration string ("30s") in JSON.
type Duration time.Duration

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid duration %s", b)
	}
	*d = Duration(n)
	return nil
}

// RetrySettings tunes the backoff of the resilient invoker. Zero fields keep
// the built-in defaults.
type RetrySettings struct {
	InitialInterval Duration `json:"initial_interval,omitempty"`
	MaxInterval     Duration `json:"max_interval,omitempty"`
	MaxElapsedTime  Duration `json:"max_elapsed_time,omitempty"`
	Multiplier      float64  `json:"multiplier,omitempty" validate:"omitempty,gte=1"`
}

// BreakerSettings tunes the per-agent circuit breakers.
type BreakerSettings struct {
	ConsecutiveFailures uint32   `json:"consecutive_failures,omitempty"`
	OpenTimeout         Duration `json:"open_timeout,omitempty"`
}

// SchedulerSettings controls how flows are scheduled.
type SchedulerSettings struct {
	DefaultRetryBudget          int             `json:"default_retry_budget" validate:"gte=0"`
	MaxTurns                    int             `json:"max_turns" validate:"gte=0"`
	Concurrency                 int             `json:"concurrency" validate:"gte=1"`
	TieBreak                    string          `json:"tie_break" validate:"omitempty,oneof=creation priority topological"`
	ProceedOnFailedDependencies bool            `json:"proceed_on_failed_dependencies,omitempty"`
	InteractiveTimeout          Duration        `json:"interactive_timeout,omitempty"`
	Retry                       RetrySettings   `json:"retry"`
	Breaker                     BreakerSettings `json:"breaker"`
}

// ProviderConfig defines a transport layer (CLI command, args, base settings).
// Providers are separate from agents -- multiple agents can share one provider.
type ProviderConfig struct {
	Command string   `json:"command" validate:"required"` // CLI binary name (e.g., "claude")
	Args    []string `json:"args,omitempty"`              // Default args appended to every invocation
	Type    string   `json:"type" validate:"required,oneof=claude command"`
}

// AgentConfig defines an agent served by a provider.
type AgentConfig struct {
	Name         string   `json:"name,omitempty"`
	Provider     string   `json:"provider" validate:"required"` // Key into Providers map
	Model        string   `json:"model,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
	Tools        []string `json:"tools,omitempty"`
	UserAccess   bool     `json:"user_access,omitempty"`
}

// Config is the top-level configuration.
type Config struct {
	Scheduler SchedulerSettings         `json:"scheduler"`
	Providers map[string]ProviderConfig `json:"providers" validate:"dive"`
	Agents    map[string]AgentConfig    `json:"agents" validate:"dive"`
}
