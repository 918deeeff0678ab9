// Package retry provides a single bounded-retry wrapper used by every
// gateway, parameterized by which error classes are retryable.
package retry
