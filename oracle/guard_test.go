package oracle

import (
	"context"
	"errors"
	"testing"
	"time"
)

func blockingOracle() Oracle {
	return Func(func(ctx context.Context, _ string, _ bool) (*Claims, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

func TestWithTimeout(t *testing.T) {
	o := WithTimeout(blockingOracle(), 10*time.Millisecond)

	_, err := o.Verify(context.Background(), "tok", true)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Verify() error = %v, want ErrTimeout", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Verify() error = %v, should wrap DeadlineExceeded", err)
	}
}

func TestWithTimeout_CallerCancellation(t *testing.T) {
	o := WithTimeout(blockingOracle(), time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := o.Verify(ctx, "tok", true)
	if errors.Is(err, ErrTimeout) {
		t.Errorf("caller cancellation reported as timeout: %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Verify() error = %v, want context.Canceled", err)
	}
}

func TestWithTimeout_Disabled(t *testing.T) {
	next := &scriptedOracle{}
	if o := WithTimeout(next, 0); o != Oracle(next) {
		t.Error("WithTimeout(0) should return next unchanged")
	}
}

func TestWithRateLimit(t *testing.T) {
	next := &scriptedOracle{}
	o := WithRateLimit(next, 1, 1)

	if _, err := o.Verify(context.Background(), "tok", true); err != nil {
		t.Fatalf("first Verify() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := o.Verify(ctx, "tok", true); err == nil {
		t.Error("second Verify() inside burst window should fail on short deadline")
	}
	if n := next.calls.Load(); n != 1 {
		t.Errorf("oracle called %d times, want 1", n)
	}
}

func TestWithRateLimit_Disabled(t *testing.T) {
	next := &scriptedOracle{}
	if o := WithRateLimit(next, 0, 0); o != Oracle(next) {
		t.Error("WithRateLimit(0) should return next unchanged")
	}
}

func TestWithConcurrencyLimit(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	next := Func(func(ctx context.Context, _ string, _ bool) (*Claims, error) {
		entered <- struct{}{}
		<-release
		return &Claims{Subject: "alice"}, nil
	})
	o := WithConcurrencyLimit(next, 1, 0)

	done := make(chan error, 1)
	go func() {
		_, err := o.Verify(context.Background(), "tok", false)
		done <- err
	}()
	<-entered

	if _, err := o.Verify(context.Background(), "tok", false); !errors.Is(err, ErrOverloaded) {
		t.Errorf("Verify() with full limit error = %v, want ErrOverloaded", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Verify() error = %v", err)
	}
	if _, err := o.Verify(context.Background(), "tok", false); err != nil {
		t.Errorf("Verify() after release error = %v", err)
	}
}

func TestWithConcurrencyLimit_WaitsForSlot(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 2)
	next := Func(func(ctx context.Context, _ string, _ bool) (*Claims, error) {
		entered <- struct{}{}
		<-release
		return &Claims{Subject: "alice"}, nil
	})
	o := WithConcurrencyLimit(next, 1, time.Second)

	go func() { _, _ = o.Verify(context.Background(), "tok", false) }()
	<-entered

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	if _, err := o.Verify(context.Background(), "tok", false); err != nil {
		t.Errorf("waiting Verify() error = %v", err)
	}
}

func TestWithConcurrencyLimit_Disabled(t *testing.T) {
	next := &scriptedOracle{}
	if o := WithConcurrencyLimit(next, 0, 0); o != Oracle(next) {
		t.Error("WithConcurrencyLimit(0) should return next unchanged")
	}
}
