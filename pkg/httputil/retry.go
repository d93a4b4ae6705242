// Package httputil provides retry with exponential backoff for the
// registry client. Scans make one metadata request per package in the
// dependency closure, so a registry hiccup mid-closure would otherwise
// skip a package that a second attempt would have resolved.
package httputil

import (
	"context"
	"errors"
	"time"
)

// RetryableError marks a failure as transient. The registry client wraps
// 5xx responses and transport errors with it; anything else (a 404, a
// malformed document) fails on the first attempt.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retry runs fn up to attempts times, sleeping delay between tries and
// doubling it each round. Only [RetryableError] failures are retried;
// other errors return immediately, as does ctx.Err() when the context is
// cancelled during a backoff sleep. After the final attempt the last
// transient error is returned so the caller can report what kept failing.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.As(err, new(*RetryableError)) {
			return err
		}
		last = err

		if attempt == attempts {
			return last
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}
}

// RetryWithBackoff applies the defaults every registry call uses: three
// attempts starting at one second. A package the registry cannot serve
// within that window is skipped rather than stalling the whole scan.
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	return Retry(ctx, 3, time.Second, fn)
}
