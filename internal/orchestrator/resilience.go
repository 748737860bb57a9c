package orchestrator

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/taskflow/internal/agent"
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 2min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// BreakerConfig configures the per-agent circuit breakers.
type BreakerConfig struct {
	ConsecutiveFailures uint32        // Failures that open the circuit (default 5)
	OpenTimeout         time.Duration // Time open before probing recovery (default 30s)
	HalfOpenRequests    uint32        // Probe requests allowed while half-open (default 3)
}

// DefaultBreakerConfig returns the default circuit breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    3,
	}
}

// CircuitBreakerRegistry manages per-agent circuit breakers.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	logger   *log.Logger
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewCircuitBreakerRegistry creates a registry using the default breaker settings.
func NewCircuitBreakerRegistry() *CircuitBreakerRegistry {
	return NewCircuitBreakerRegistryWith(DefaultBreakerConfig(), log.Default())
}

// NewCircuitBreakerRegistryWith creates a registry with explicit settings.
func NewCircuitBreakerRegistryWith(cfg BreakerConfig, logger *log.Logger) *CircuitBreakerRegistry {
	def := DefaultBreakerConfig()
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = def.ConsecutiveFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = def.HalfOpenRequests
	}
	if logger == nil {
		logger = log.Default()
	}
	return &CircuitBreakerRegistry{
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for the given agent, creating it on first use.
func (r *CircuitBreakerRegistry) Get(agentID string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[agentID]; ok {
		return cb
	}

	threshold := r.cfg.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        agentID,
		MaxRequests: r.cfg.HalfOpenRequests,
		Interval:    0, // Don't clear counts automatically
		Timeout:     r.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Cancellation is the caller's doing, not an agent failure
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[agentID] = cb
	return cb
}

// ResilientInvoker retries failed agent invocations with exponential backoff
// behind a circuit breaker per agent. Errors it finally returns reach the
// scheduler as terminal agent errors.
type ResilientInvoker struct {
	inner    agent.Invoker
	breakers *CircuitBreakerRegistry
	retry    RetryConfig
}

// NewResilientInvoker wraps inner. A nil registry gets the default breakers.
func NewResilientInvoker(inner agent.Invoker, retry RetryConfig, breakers *CircuitBreakerRegistry) *ResilientInvoker {
	if breakers == nil {
		breakers = NewCircuitBreakerRegistry()
	}
	return &ResilientInvoker{inner: inner, breakers: breakers, retry: retry}
}

// RequestTurn implements agent.Invoker.
func (ri *ResilientInvoker) RequestTurn(ctx context.Context, req agent.TurnRequest) (agent.TurnResponse, error) {
	key := agent.DefaultID
	if req.Agent != nil {
		key = req.Agent.ID
	}
	return requestWithRetry(ctx, ri.inner, req, ri.breakers.Get(key), ri.retry)
}

// requestWithRetry asks the invoker for a turn with exponential backoff retry
// and circuit breaker protection.
func requestWithRetry(ctx context.Context, inv agent.Invoker, req agent.TurnRequest, cb *gobreaker.CircuitBreaker, retryCfg RetryConfig) (agent.TurnResponse, error) {
	var resp agent.TurnResponse

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		result, err := cb.Execute(func() (interface{}, error) {
			return inv.RequestTurn(ctx, req)
		})
		if err != nil {
			// Circuit is open - don't retry
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		resp = result.(agent.TurnResponse)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryCfg.InitialInterval
	policy.MaxInterval = retryCfg.MaxInterval
	policy.MaxElapsedTime = retryCfg.MaxElapsedTime
	policy.Multiplier = retryCfg.Multiplier
	policy.RandomizationFactor = retryCfg.RandomizationFactor

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	return resp, err
}
