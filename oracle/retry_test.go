package oracle

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int64
	}{
		{name: "success", err: nil, wantCalls: 1},
		{name: "provider failure retried", err: errUpstream, wantCalls: 3},
		{name: "expired not retried", err: ErrTokenExpired, wantCalls: 1},
		{name: "revoked not retried", err: ErrTokenRevoked, wantCalls: 1},
		{name: "open circuit not retried", err: ErrCircuitOpen, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &scriptedOracle{}
			next.setErr(tt.err)
			o := WithRetry(next, RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond})

			_, err := o.Verify(context.Background(), "tok", true)
			if !errors.Is(err, tt.err) && !(tt.err == nil && err == nil) {
				t.Errorf("Verify() error = %v, want %v", err, tt.err)
			}
			if n := next.calls.Load(); n != tt.wantCalls {
				t.Errorf("calls = %d, want %d", n, tt.wantCalls)
			}
		})
	}
}

func TestWithRetry_RecoversAndReportsAttempts(t *testing.T) {
	next := &scriptedOracle{}
	next.setErr(errUpstream)

	var attempts []int
	o := WithRetry(next, RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		OnRetry: func(attempt int, _ error, _ time.Duration) {
			attempts = append(attempts, attempt)
			if attempt == 2 {
				next.setErr(nil)
			}
		},
	})

	claims, err := o.Verify(context.Background(), "tok", false)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("Subject = %q", claims.Subject)
	}
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", attempts)
	}
}

func TestWithRetry_StopsOnCancel(t *testing.T) {
	next := &scriptedOracle{}
	next.setErr(errUpstream)
	o := WithRetry(next, RetryConfig{MaxAttempts: 10, InitialDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := o.Verify(ctx, "tok", false)
	if !errors.Is(err, errUpstream) {
		t.Errorf("Verify() error = %v, want last oracle error", err)
	}
	if time.Since(start) > time.Second {
		t.Error("retry did not stop when the caller context ended")
	}
	if n := next.calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{70, time.Second},
	}
	for _, tt := range tests {
		if got := backoff(cfg, tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestWithRetry_SingleAttemptIsPassthrough(t *testing.T) {
	next := &scriptedOracle{}
	if o := WithRetry(next, RetryConfig{MaxAttempts: 1}); o != Oracle(next) {
		t.Error("WithRetry(MaxAttempts=1) should return next unchanged")
	}
}
