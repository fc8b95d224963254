package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
)

// RetryConfig configures retry behavior for model calls.
type RetryConfig struct {
	MaxRetries      int           // retries after the initial attempt
	InitialInterval time.Duration // first backoff interval
	MaxInterval     time.Duration // backoff cap
}

// DefaultRetryConfig backs off 2s, 4s, 8s before giving up.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 2 * time.Second,
		MaxInterval:     8 * time.Second,
	}
}

// retryablePatterns groups error substrings by category, matched
// case-insensitively against err.Error().
//
// NOTE: String matching is used because Genkit and the provider SDK do not
// expose typed errors for transient failures. Re-evaluate if Genkit adds
// structured error types.
var retryablePatterns = [][]string{
	{"rate limit", "resource exhausted", "quota", "429"}, // rate limiting
	{"503", "500", "502", "504", "unavailable", "overloaded"}, // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// retryableError reports whether err is transient and worth retrying.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, pattern := range group {
			if strings.Contains(errStr, pattern) {
				return true
			}
		}
	}
	return false
}

// errRetriesExhausted wraps the last transient error once all attempts are
// spent; callers turn it into a degraded answer instead of a failure.
type errRetriesExhausted struct {
	attempts int
	elapsed  time.Duration
	last     error
}

func (e *errRetriesExhausted) Error() string {
	return fmt.Sprintf("model unavailable after %d attempts (%v): %v", e.attempts, e.elapsed, e.last)
}

func (e *errRetriesExhausted) Unwrap() error { return e.last }

// generateWithRetry runs fn with request pacing and exponential backoff.
// Non-retryable errors fail immediately; exhausted retries return
// *errRetriesExhausted.
func (a *Agent) generateWithRetry(ctx context.Context, fn func(context.Context) (*ai.ModelResponse, error)) (*ai.ModelResponse, error) {
	var lastErr error
	delay := a.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= a.retry.MaxRetries; attempt++ {
		// Pace every attempt, not just the first: a retry storm must not
		// exceed the provider quota either.
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := fn(ctx)
		if err == nil {
			a.logger.Debug("model call succeeded",
				"attempts", attempt+1, "elapsed", time.Since(start))
			return resp, nil
		}

		lastErr = err
		if !retryableError(err) {
			return nil, fmt.Errorf("generating answer: %w", err)
		}
		if attempt == a.retry.MaxRetries {
			break
		}

		a.logger.Warn("transient model error, retrying",
			"attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, a.retry.MaxInterval)
		}
	}

	return nil, &errRetriesExhausted{
		attempts: a.retry.MaxRetries + 1,
		elapsed:  time.Since(start),
		last:     lastErr,
	}
}
