package store

import (
	"context"
	"time"
)

// DefaultAttempts bounds retries of transient failures.
const DefaultAttempts = 3

// Retry runs fn up to attempts times, backing off exponentially from base
// between tries. Only transient failures (unavailable, deadline exceeded)
// are retried; validation, permission, and not-found errors surface on the
// first attempt.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	delay := base
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !IsTransient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
