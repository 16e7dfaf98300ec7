package runner

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	statemachine "github.com/goliatone/go-statemachine"
)

// Handler runs a function under a timeout or deadline, with optional
// retries. Panics are captured and returned as errors. When a bound is set
// the function runs on its own goroutine so a call that ignores its context
// is abandoned once the bound expires.
type Handler struct {
	mu sync.Mutex

	name          string
	logger        statemachine.Logger
	errorHandler  func(error)
	retryStrategy RetryStrategy

	maxRetries int
	timeout    time.Duration
	deadline   time.Time

	runs           int
	successfulRuns int
}

// NewHandler applies opts over the defaults: no bound, no retries.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		name:          "handler",
		errorHandler:  func(error) {},
		retryStrategy: NoDelayStrategy{},
	}
	for _, o := range opts {
		if o != nil {
			o(h)
		}
	}
	return h
}

// Bounded reports whether Run applies a timeout or deadline.
func (h *Handler) Bounded() bool {
	return h.timeout > 0 || !h.deadline.IsZero()
}

// Run executes fn and returns the error of the last attempt.
func (h *Handler) Run(ctx context.Context, fn func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	h.mu.Lock()
	maxRetries := h.maxRetries
	strategy := h.retryStrategy
	h.mu.Unlock()

	ctx, cancel := h.contextWithSettings(ctx)
	defer cancel()

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = h.attempt(ctx, fn)
		if err == nil || ctx.Err() != nil {
			break
		}
		if attempt == maxRetries {
			break
		}

		h.handleError(statemachine.CloneError(
			statemachine.ErrActionExecution,
			fmt.Sprintf("%s failed, attempt %d of %d", h.name, attempt+1, maxRetries+1),
			err,
			nil,
		))
		if delay := strategy.SleepDuration(attempt, err); delay > 0 {
			if werr := sleep(ctx, delay); werr != nil {
				err = h.mapContextError(ctx, werr)
				break
			}
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs++
	if err == nil {
		h.successfulRuns++
		return nil
	}

	h.handleError(err)
	if h.logger != nil {
		h.logger.Debug("%s failed after %d attempt(s): %v", h.name, maxRetries+1, err)
	}
	return err
}

// Runs returns how many Run calls completed.
func (h *Handler) Runs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs
}

// SuccessfulRuns returns how many Run calls ended without error.
func (h *Handler) SuccessfulRuns() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.successfulRuns
}

func (h *Handler) attempt(ctx context.Context, fn func(context.Context) error) error {
	call := func() error {
		return statemachine.Safely(h.name, func() error { return fn(ctx) })
	}

	if !h.Bounded() {
		return h.mapContextError(ctx, call())
	}

	done := make(chan error, 1)
	go func() { done <- call() }()

	select {
	case err := <-done:
		return h.mapContextError(ctx, err)
	case <-ctx.Done():
		return h.mapContextError(ctx, ctx.Err())
	}
}

func (h *Handler) mapContextError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.DeadlineExceeded) && stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return statemachine.CloneError(
			statemachine.ErrActionTimeout,
			fmt.Sprintf("%s exceeded its time bound", h.name),
			err,
			map[string]any{
				"handler": h.name,
				"timeout": h.timeout.String(),
			},
		)
	}
	return err
}

func (h *Handler) handleError(err error) {
	if h.errorHandler != nil {
		h.errorHandler(err)
	}
}

func (h *Handler) contextWithSettings(parent context.Context) (context.Context, context.CancelFunc) {
	switch {
	case h.timeout > 0 && !h.deadline.IsZero():
		ctx, cancelTimeout := context.WithTimeout(parent, h.timeout)
		ctxDeadline, cancelDeadline := context.WithDeadline(ctx, h.deadline)
		return ctxDeadline, func() {
			cancelDeadline()
			cancelTimeout()
		}
	case h.timeout > 0:
		return context.WithTimeout(parent, h.timeout)
	case !h.deadline.IsZero():
		return context.WithDeadline(parent, h.deadline)
	default:
		return parent, func() {}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
