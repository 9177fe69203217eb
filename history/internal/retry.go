// Package internal provides the retry helper for history's sqlite writes:
// a single-statement exec retried with exponential backoff on a transient
// (lock contention) error.
package internal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
)

// Run runs fn, recovering from a panic inside it.
func Run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if rerr := recover(); rerr != nil {
			err = fmt.Errorf("%v", rerr)
		}
	}()
	return fn(ctx)
}

// RunWithRetry is like Run but retries fn with exponential backoff while
// retryable(err) reports true.
func RunWithRetry(ctx context.Context, fn func(context.Context) error, retryable func(error) bool) error {
	return RunWithRetryBackoff(ctx, fn, retryable, backoff.NewExponentialBackOff())
}

// RunWithRetryBackoff is like RunWithRetry but with a configurable backoff.
func RunWithRetryBackoff(ctx context.Context, fn func(context.Context) error, retryable func(error) bool, b backoff.BackOff) (err error) {
	b.Reset()
	for {
		if err = Run(ctx, fn); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return err
		}
		time.Sleep(delay)
	}
}

// IsLocked reports whether err looks like a transient sqlite lock-contention
// error worth retrying, e.g. "database is locked" surfaced by
// modernc.org/sqlite under concurrent writers.
func IsLocked(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, sub := range []string{"database is locked", "database table is locked", "SQLITE_BUSY", "SQLITE_LOCKED"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
