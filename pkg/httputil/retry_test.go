package httputil

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	transient := Retryable(errors.New("flaky"))
	permanent := errors.New("bad input")

	tests := []struct {
		name      string
		failures  []error
		attempts  int
		wantCalls int
		wantErr   error
	}{
		{"success first try", nil, 3, 1, nil},
		{"recovers", []error{transient, transient}, 3, 3, nil},
		{"exhausted", []error{transient, transient, transient}, 3, 3, transient},
		{"permanent stops", []error{permanent, transient}, 3, 1, permanent},
		{"zero attempts runs once", []error{transient}, 0, 1, transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), tt.attempts, time.Millisecond, func() error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if !errors.Is(err, tt.wantErr) && err != tt.wantErr {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, 5, time.Hour, func() error {
		calls++
		cancel()
		return Retryable(errors.New("flaky"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestIsRetryable(t *testing.T) {
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) should be nil")
	}
	if IsRetryable(errors.New("x")) {
		t.Error("plain error should not be retryable")
	}
	wrapped := errors.Join(Retryable(errors.New("x")))
	if !IsRetryable(wrapped) {
		t.Error("wrapped retryable error should be retryable")
	}
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 0},
		{"2", 2 * time.Second},
		{"0", 0},
		{"soon", 0},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}
	for _, tt := range tests {
		h := http.Header{}
		if tt.header != "" {
			h.Set("Retry-After", tt.header)
		}
		err := RetryAfter(errors.New("limited"), h)
		var re *RetryableError
		if !errors.As(err, &re) {
			t.Fatalf("RetryAfter(%q) is not retryable", tt.header)
		}
		if re.After != tt.want {
			t.Errorf("RetryAfter(%q).After = %v, want %v", tt.header, re.After, tt.want)
		}
	}
	if RetryAfter(nil, http.Header{}) != nil {
		t.Error("RetryAfter(nil) should be nil")
	}
}

func TestRetryHonoursAfter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	calls := 0
	err := Retry(ctx, 3, time.Millisecond, func() error {
		calls++
		return &RetryableError{Err: errors.New("limited"), After: time.Hour}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPermanent(t *testing.T) {
	base := errors.New("x")
	if got := Permanent(Retryable(base)); got != base {
		t.Errorf("Permanent(Retryable(x)) = %v, want x", got)
	}
	if got := Permanent(base); got != base {
		t.Errorf("Permanent(x) = %v, want x", got)
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
