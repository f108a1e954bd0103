// Package providers implements the agent.Provider interface for the LLM
// backends jimi supports: Anthropic's Claude models and OpenAI-compatible
// endpoints (OpenAI itself, plus anything speaking its chat API).
//
// Providers are deliberately thin. They translate between the session's
// message format and each SDK's wire types and pass streaming deltas through
// untouched; reassembling fragmented tool calls is the accumulator's job,
// not theirs.
package providers

import (
	"context"
	"strings"
	"time"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
)

// withRetry invokes fn up to maxRetries times with linear backoff. Only
// errors classified retryable by isRetryableError trigger another attempt.
func withRetry(ctx context.Context, maxRetries int, retryDelay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay * time.Duration(attempt)):
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryableError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// isRetryableError reports whether an API error is transient. SDK error
// types differ per backend, so this matches on message text the way both
// SDKs surface HTTP-level failures.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit",
		"429",
		"timeout",
		"connection reset",
		"connection refused",
		"overloaded",
		"500",
		"502",
		"503",
		"504",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
