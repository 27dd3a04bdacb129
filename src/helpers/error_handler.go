package helpers

import (
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type StreamError struct {
	Message string
	Cause   error
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Distinct error types for errors.As checks
type ConfigurationError struct{ StreamError }
type TransportError struct{ StreamError }
type ProtocolError struct{ StreamError }

// -----------------------------------------------------------------------------

func NewConfigurationError(message string, cause error) error {
	return &ConfigurationError{StreamError{Message: message, Cause: cause}}
}

func NewTransportError(message string, cause error) error {
	return &TransportError{StreamError{Message: message, Cause: cause}}
}

func NewProtocolError(message string, cause error) error {
	return &ProtocolError{StreamError{Message: message, Cause: cause}}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// BackoffDelay returns base * 2^attempt capped at max (attempt starts at 0)
func BackoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max || delay <= 0 {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// -----------------------------------------------------------------------------

// RetryWithBackoff attempts to execute the operation up to maxRetries times with exponential backoff.
// stop is checked before every attempt and aborts the loop when it returns true.
func RetryWithBackoff(maxRetries int, baseDelay, maxDelay time.Duration, stop func() bool, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 0; maxRetries <= 0 || attempt < maxRetries; attempt++ {
		if stop != nil && stop() {
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt, lastErr)
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if maxRetries > 0 && attempt == maxRetries-1 {
			break
		}
		time.Sleep(BackoffDelay(attempt, baseDelay, maxDelay))
	}

	return fmt.Errorf("gave up after %d attempts: %w", maxRetries, lastErr)
}
