package retry

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
)

// Policy defines retry behavior for tool invocations
type Policy struct {
	MaxRetries        int           // Maximum number of retry attempts (0 = no retries)
	InitialDelay      time.Duration // Initial delay before first retry
	MaxDelay          time.Duration // Maximum delay between retries
	BackoffMultiplier float64       // Multiplier for exponential backoff (e.g., 2.0)
}

// DefaultPolicy returns the retry policy for transient tool failures:
// two extra attempts after 500ms and then 1s
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        config.DefaultMaxRetries,
		InitialDelay:      config.DefaultRetryInitialDelay,
		MaxDelay:          config.DefaultRetryMaxDelay,
		BackoffMultiplier: config.DefaultRetryMultiplier,
	}
}

// FromConfig builds a policy from dispatch configuration
func FromConfig(cfg config.DispatchConfig) Policy {
	p := Policy{
		MaxRetries:        cfg.MaxRetries,
		InitialDelay:      cfg.InitialDelay,
		MaxDelay:          cfg.MaxDelay,
		BackoffMultiplier: cfg.BackoffMultiplier,
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = config.DefaultRetryInitialDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.BackoffMultiplier <= 0 {
		p.BackoffMultiplier = config.DefaultRetryMultiplier
	}
	return p
}

// NoRetryPolicy returns a policy that never retries
func NoRetryPolicy() Policy {
	return Policy{
		MaxRetries:        0,
		InitialDelay:      time.Millisecond,
		MaxDelay:          time.Millisecond,
		BackoffMultiplier: 1,
	}
}

// CalculateDelay calculates the delay before retry number retryCount+1
// using exponential backoff
func (p *Policy) CalculateDelay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return p.InitialDelay
	}

	// Calculate exponential backoff: initialDelay * (multiplier ^ retryCount)
	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(retryCount))

	// Cap at maximum delay
	if time.Duration(delay) > p.MaxDelay {
		return p.MaxDelay
	}

	return time.Duration(delay)
}

// ShouldRetry determines if another attempt is allowed after retryCount retries
func (p *Policy) ShouldRetry(retryCount int) bool {
	return retryCount < p.MaxRetries
}

// retriableErrors are substrings of transient, network-level failures
var retriableErrors = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"network is unreachable",
	"temporary failure",
	"service unavailable",
	"too many requests",
	"context deadline exceeded",
}

// IsRetriableError reports whether err text looks like a transient failure
func IsRetriableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, retriable := range retriableErrors {
		if strings.Contains(errStr, retriable) {
			return true
		}
	}

	return false
}

// Validate checks if the retry policy configuration is valid
func (p *Policy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("MaxRetries must be non-negative")
	}
	if p.InitialDelay <= 0 {
		return errors.New("InitialDelay must be positive")
	}
	if p.MaxDelay <= 0 {
		return errors.New("MaxDelay must be positive")
	}
	if p.BackoffMultiplier <= 0 {
		return errors.New("BackoffMultiplier must be positive")
	}
	if p.InitialDelay > p.MaxDelay {
		return errors.New("InitialDelay cannot be greater than MaxDelay")
	}
	return nil
}
