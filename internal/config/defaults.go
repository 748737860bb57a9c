package config

import "time"

// DefaultProvider serves agents whose provider is not configured.
const DefaultProvider = "claude"

// DefaultConfig returns the default configuration with the built-in providers and agents.
func DefaultConfig() *Config {
	return &Config{
		Scheduler: SchedulerSettings{
			DefaultRetryBudget: 3,
			MaxTurns:           20,
			Concurrency:        4,
			TieBreak:           "creation",
			InteractiveTimeout: Duration(10 * time.Minute),
			Retry: RetrySettings{
				InitialInterval: Duration(100 * time.Millisecond),
				MaxInterval:     Duration(10 * time.Second),
				MaxElapsedTime:  Duration(2 * time.Minute),
				Multiplier:      2.0,
			},
			Breaker: BreakerSettings{
				ConsecutiveFailures: 5,
				OpenTimeout:         Duration(30 * time.Second),
			},
		},
		Providers: map[string]ProviderConfig{
			"claude": {
				Command: "claude",
				Type:    "claude",
			},
		},
		Agents: map[string]AgentConfig{
			"default": {
				Name:         "Default Agent",
				Provider:     "claude",
				Instructions: "You are a helpful assistant. Follow the task instructions exactly.",
				UserAccess:   true,
			},
			"planner": {
				Name:         "Planner",
				Provider:     "claude",
				Instructions: "You break objectives into concrete, ordered steps.",
			},
			"reviewer": {
				Name:         "Reviewer",
				Provider:     "claude",
				Instructions: "You check answers for correctness and completeness.",
			},
		},
	}
}
