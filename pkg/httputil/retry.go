package httputil

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"
)

// MaxBackoff caps the wait between two attempts, including waits asked for
// by a server.
const MaxBackoff = 30 * time.Second

// RetryableError marks an error as transient. [Retry] only retries errors
// carrying this wrapper. A non-zero After replaces the backoff delay before
// the next attempt.
type RetryableError struct {
	Err   error
	After time.Duration
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err as a [RetryableError]. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// RetryAfter wraps err as retryable after the wait a server asked for in
// its Retry-After header. Headers that are absent or not a number of
// seconds fall back to the regular backoff.
func RetryAfter(err error, h http.Header) error {
	if err == nil {
		return nil
	}
	re := &RetryableError{Err: err}
	if secs, perr := strconv.Atoi(h.Get("Retry-After")); perr == nil && secs > 0 {
		re.After = time.Duration(secs) * time.Second
	}
	return re
}

// IsRetryable reports whether err is wrapped with [RetryableError].
func IsRetryable(err error) bool {
	return errors.As(err, new(*RetryableError))
}

// Permanent strips the retry marker from err, for errors that leave the
// retry loop.
func Permanent(err error) error {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.Err
	}
	return err
}

// Retry runs fn up to attempts times. The wait starts at delay and doubles
// after each retryable failure, up to [MaxBackoff]. Non-retryable errors are
// returned immediately; a cancelled ctx returns ctx.Err().
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	attempts = max(attempts, 1)
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !IsRetryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		wait := delay
		var re *RetryableError
		if errors.As(err, &re) && re.After > 0 {
			wait = re.After
		}
		timer := time.NewTimer(min(wait, MaxBackoff))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, MaxBackoff)
	}
	return err
}
