package config

import (
	"time"

	"github.com/aristath/taskflow/internal/agent"
	"github.com/aristath/taskflow/internal/backend"
	"github.com/aristath/taskflow/internal/orchestrator"
	"github.com/aristath/taskflow/internal/scheduler"
)

// SchedulerConfig converts the settings into a scheduler configuration.
func (s SchedulerSettings) SchedulerConfig() (scheduler.Config, error) {
	tie, err := scheduler.ParseTieBreak(s.TieBreak)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		DefaultRetryBudget:          s.DefaultRetryBudget,
		MaxTurns:                    s.MaxTurns,
		Concurrency:                 s.Concurrency,
		TieBreak:                    tie,
		ProceedOnFailedDependencies: s.ProceedOnFailedDependencies,
		InteractiveTimeout:          time.Duration(s.InteractiveTimeout),
	}, nil
}

// RetryConfig returns the backoff settings, falling back to the defaults.
func (s SchedulerSettings) RetryConfig() orchestrator.RetryConfig {
	cfg := orchestrator.DefaultRetryConfig()
	if s.Retry.InitialInterval > 0 {
		cfg.InitialInterval = time.Duration(s.Retry.InitialInterval)
	}
	if s.Retry.MaxInterval > 0 {
		cfg.MaxInterval = time.Duration(s.Retry.MaxInterval)
	}
	if s.Retry.MaxElapsedTime > 0 {
		cfg.MaxElapsedTime = time.Duration(s.Retry.MaxElapsedTime)
	}
	if s.Retry.Multiplier > 0 {
		cfg.Multiplier = s.Retry.Multiplier
	}
	return cfg
}

// BreakerConfig returns the circuit breaker settings, falling back to the defaults.
func (s SchedulerSettings) BreakerConfig() orchestrator.BreakerConfig {
	cfg := orchestrator.DefaultBreakerConfig()
	if s.Breaker.ConsecutiveFailures > 0 {
		cfg.ConsecutiveFailures = s.Breaker.ConsecutiveFailures
	}
	if s.Breaker.OpenTimeout > 0 {
		cfg.OpenTimeout = time.Duration(s.Breaker.OpenTimeout)
	}
	return cfg
}

// Agent builds the agent configured under id.
func (c *Config) Agent(id string) (*agent.Agent, bool) {
	ac, ok := c.Agents[id]
	if !ok {
		return nil, false
	}
	return &agent.Agent{
		ID:           id,
		Name:         ac.Name,
		Instructions: ac.Instructions,
		Tools:        append([]string(nil), ac.Tools...),
		UserAccess:   ac.UserAccess,
		Provider:     ac.Provider,
		Model:        ac.Model,
	}, true
}

// AgentSet builds every configured agent, keyed by ID.
func (c *Config) AgentSet() map[string]*agent.Agent {
	set := make(map[string]*agent.Agent, len(c.Agents))
	for id := range c.Agents {
		set[id], _ = c.Agent(id)
	}
	return set
}

// BackendConfigs converts the providers into backend configurations, keyed
// by provider name.
func (c *Config) BackendConfigs() map[string]backend.Config {
	out := make(map[string]backend.Config, len(c.Providers))
	for name, p := range c.Providers {
		out[name] = backend.Config{
			Type:    p.Type,
			Command: p.Command,
			Args:    append([]string(nil), p.Args...),
		}
	}
	return out
}
