package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	statemachine "github.com/goliatone/go-statemachine"
)

type countingFunc struct {
	mu        sync.Mutex
	calls     int
	failUntil int
}

func (c *countingFunc) fn(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls <= c.failUntil {
		return fmt.Errorf("attempt %d failed", c.calls)
	}
	return nil
}

func TestHandler_NoError_NoRetries(t *testing.T) {
	h := NewHandler()

	cf := &countingFunc{}
	if err := h.Run(context.Background(), cf.fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cf.calls != 1 {
		t.Errorf("expected calls=1, got %d", cf.calls)
	}
	if h.Runs() != 1 || h.SuccessfulRuns() != 1 {
		t.Errorf("expected 1 run and 1 success, got %d/%d", h.Runs(), h.SuccessfulRuns())
	}
}

func TestHandler_SuccessOnSecondAttempt(t *testing.T) {
	var reported []error
	h := NewHandler(
		WithMaxRetries(3),
		WithErrorHandler(func(err error) { reported = append(reported, err) }),
	)

	cf := &countingFunc{failUntil: 1}
	if err := h.Run(context.Background(), cf.fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cf.calls != 2 {
		t.Errorf("expected calls=2, got %d", cf.calls)
	}
	if len(reported) != 1 {
		t.Errorf("expected one reported attempt failure, got %d", len(reported))
	}
}

func TestHandler_AllAttemptsFail(t *testing.T) {
	h := NewHandler(WithMaxRetries(2))

	cf := &countingFunc{failUntil: 5}
	err := h.Run(context.Background(), cf.fn)
	if err == nil {
		t.Fatal("expected error")
	}

	if cf.calls != 3 {
		t.Errorf("expected calls=3 (1 initial + 2 retries), got %d", cf.calls)
	}
	if h.SuccessfulRuns() != 0 {
		t.Errorf("expected no successful runs, got %d", h.SuccessfulRuns())
	}
}

func TestHandler_TimeoutAbandonsCall(t *testing.T) {
	h := NewHandler(WithTimeout(30*time.Millisecond), WithName("slow"))

	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	err := h.Run(context.Background(), func(context.Context) error {
		<-release
		return nil
	})

	if time.Since(start) >= 500*time.Millisecond {
		t.Fatal("expected the call to be abandoned at the timeout")
	}
	if !statemachine.IsCode(err, statemachine.ErrCodeActionTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestHandler_CooperativeTimeout(t *testing.T) {
	h := NewHandler(WithTimeout(30 * time.Millisecond))

	err := h.Run(context.Background(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
			return nil
		}
	})

	if !statemachine.IsCode(err, statemachine.ErrCodeActionTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestHandler_Deadline(t *testing.T) {
	h := NewHandler(WithDeadline(time.Now().Add(30 * time.Millisecond)))

	err := h.Run(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !statemachine.IsCode(err, statemachine.ErrCodeActionTimeout) {
		t.Fatalf("expected deadline to surface as timeout, got %v", err)
	}
}

func TestHandler_ParentCancellationIsNotTimeout(t *testing.T) {
	h := NewHandler(WithTimeout(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.Run(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHandler_PanicIsCaptured(t *testing.T) {
	h := NewHandler()

	err := h.Run(context.Background(), func(context.Context) error {
		panic("boom")
	})
	if !statemachine.IsCode(err, statemachine.ErrCodePanic) {
		t.Fatalf("expected panic error, got %v", err)
	}
}

func TestHandler_Concurrency(t *testing.T) {
	h := NewHandler(WithMaxRetries(1))
	wg := sync.WaitGroup{}
	const goroutines = 10

	cf := &countingFunc{failUntil: 1}

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Run(context.Background(), cf.fn)
		}()
	}
	wg.Wait()

	if h.Runs() != goroutines {
		t.Errorf("expected runs=%d, got %d", goroutines, h.Runs())
	}
	if h.SuccessfulRuns() != goroutines {
		t.Errorf("expected successfulRuns=%d, got %d", goroutines, h.SuccessfulRuns())
	}
}

func TestHandler_RetryStrategyDelay(t *testing.T) {
	h := NewHandler(
		WithMaxRetries(2),
		WithRetryStrategy(ConstantDelayStrategy{Delay: 10 * time.Millisecond}),
	)

	cf := &countingFunc{failUntil: 2}
	start := time.Now()
	if err := h.Run(context.Background(), cf.fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("expected at least two delays, took %s", elapsed)
	}
}
