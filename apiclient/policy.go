package apiclient

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Defaults for RetryPolicy.
const (
	DefaultMaxAttempts = 3
	DefaultTimeout     = 30 * time.Second
	DefaultBaseDelay   = time.Second
	DefaultMultiplier  = 2.0
)

// RetryPolicy controls attempts, per-attempt timeout and backoff.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" toml:"max_attempts"`

	// Timeout bounds each individual attempt.
	Timeout time.Duration `json:"timeout" yaml:"timeout" toml:"timeout"`

	// BaseDelay is the wait after the first failed attempt.
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay" toml:"base_delay"`

	// Multiplier scales the delay after each further failure.
	Multiplier float64 `json:"multiplier" yaml:"multiplier" toml:"multiplier"`

	// MaxDelay caps a single backoff wait. 0 means uncapped.
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay" toml:"max_delay"`
}

// DefaultRetryPolicy returns 3 attempts, 30s per attempt, 1s/2s/4s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Timeout:     DefaultTimeout,
		BaseDelay:   DefaultBaseDelay,
		Multiplier:  DefaultMultiplier,
	}
}

// Validate checks if the policy is usable.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %v", p.Timeout)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("base_delay must be >= 0, got %v", p.BaseDelay)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("multiplier must be >= 1, got %v", p.Multiplier)
	}
	if p.MaxDelay < 0 {
		return fmt.Errorf("max_delay must be >= 0, got %v", p.MaxDelay)
	}
	return nil
}

// withDefaults fills zero MaxAttempts, Timeout and Multiplier from
// DefaultRetryPolicy. A zero BaseDelay means retry without waiting.
func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts == 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Timeout == 0 {
		p.Timeout = def.Timeout
	}
	if p.Multiplier == 0 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// Delay returns the wait after failed attempt n (0-indexed):
// BaseDelay * Multiplier^n, capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// sleepContext is the default Sleeper.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
