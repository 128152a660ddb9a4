package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrEmbeddingUnavailable signals that the embedding backend cannot serve
// requests right now. Callers degrade to retrieval-free operation instead of
// failing the run.
var ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

// TransientError wraps a failure that has a reasonable chance of succeeding
// on retry: connection resets, timeouts, rate limits, upstream 5xx.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient ai error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientError. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is marked retryable. Context cancellation
// and deadline expiry are never transient.
func IsTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *TransientError
	return errors.As(err, &te)
}

// MalformedResponseError reports a response that arrived but could not be
// interpreted: unparseable JSON, a schema violation, an empty body where
// content was required. Retrying an identical request will not help, so
// callers must not.
type MalformedResponseError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed ai response (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed ai response (%s)", e.Reason)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// Malformed builds a MalformedResponseError. Raw carries a snippet of the
// offending payload for diagnostics and is truncated by the caller.
func Malformed(reason string, raw string, err error) error {
	return &MalformedResponseError{Reason: reason, Raw: raw, Err: err}
}

// IsMalformed reports whether err is a MalformedResponseError.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

// RetryPolicy bounds how often and how patiently a transient failure is
// retried. Delay grows exponentially from BaseDelay and is capped at
// MaxDelay. The policy is an explicit value so tests can shrink it.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy matches the production defaults: three retries starting
// at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Backoff returns the delay before retry attempt i (0-based).
func (p RetryPolicy) Backoff(i int) time.Duration {
	if i < 0 {
		i = 0
	}
	d := p.BaseDelay * (1 << uint(i))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do runs fn up to 1+MaxRetries times, sleeping the backoff between
// attempts. Only transient errors are retried; malformed responses, context
// errors, and unclassified failures return immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) || attempt >= p.MaxRetries {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff(attempt)):
		}
	}
}
