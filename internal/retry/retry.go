// ABOUTME: Bounded retry with exponential backoff and error classification
// ABOUTME: Shared by the record, generation, and publishing gateways

package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Class buckets an error by how callers should react to it.
type Class int

const (
	// ClassTransient covers timeouts, rate limits and 5xx-style upstream
	// failures. Retried up to the policy budget.
	ClassTransient Class = iota
	// ClassPermanent covers invalid credentials, rejected content and other
	// 4xx-style failures. Never retried.
	ClassPermanent
	// ClassNotEligible covers empty-result conditions (no matching client,
	// nothing in the right state). Not an error to the caller.
	ClassNotEligible
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassNotEligible:
		return "not-eligible"
	default:
		return "unknown"
	}
}

type classified struct {
	err   error
	class Class
}

func (e *classified) Error() string { return e.err.Error() }
func (e *classified) Unwrap() error { return e.err }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, class: ClassTransient}
}

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, class: ClassPermanent}
}

// NotEligible marks err as an empty-result condition.
func NotEligible(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, class: ClassNotEligible}
}

// Classify returns the class recorded on err. Unmarked errors are treated
// as transient: an upstream that didn't say otherwise gets the benefit of
// the retry budget.
func Classify(err error) Class {
	var c *classified
	if errors.As(err, &c) {
		return c.class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	return ClassTransient
}

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy is the gateway-wide retry budget: three attempts with
// exponential backoff starting at 500ms, capped at 5s.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    5 * time.Second,
}

// Do runs fn until it succeeds, fails permanently, or the attempt budget is
// exhausted. Backoff grows exponentially with +-20% jitter. The context
// bounds the whole loop including sleeps.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		switch Classify(lastErr) {
		case ClassPermanent, ClassNotEligible:
			return lastErr
		}

		if attempt == policy.MaxAttempts {
			break
		}

		select {
		case <-time.After(backoff(policy, attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("retry budget exhausted after %d attempts: %w", policy.MaxAttempts, lastErr)
}

// backoff computes the delay before the next attempt (1-based).
func backoff(policy Policy, attempt int) time.Duration {
	delay := policy.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= policy.MaxDelay {
			delay = policy.MaxDelay
			break
		}
	}

	// +-20% jitter so concurrent retries don't align
	jitter := time.Duration(rand.Int63n(int64(delay)/5+1)) - delay/10
	delay += jitter
	if delay < 0 {
		delay = policy.BaseDelay
	}
	return delay
}
