package runner

import (
	"time"

	statemachine "github.com/goliatone/go-statemachine"
)

type Option func(*Handler)

// WithName labels errors and log lines produced by the handler.
func WithName(name string) Option {
	return func(r *Handler) {
		if name != "" {
			r.name = name
		}
	}
}

// WithTimeout bounds every Run call. Zero disables the bound.
func WithTimeout(t time.Duration) Option {
	return func(r *Handler) {
		r.timeout = t
	}
}

func WithDeadline(d time.Time) Option {
	return func(r *Handler) {
		r.deadline = d
	}
}

func WithMaxRetries(max int) Option {
	return func(r *Handler) {
		if max < 0 {
			max = 0
		}
		r.maxRetries = max
	}
}

func WithErrorHandler(h func(error)) Option {
	return func(r *Handler) {
		if h == nil {
			h = func(error) {}
		}
		r.errorHandler = h
	}
}

func WithLogger(l statemachine.Logger) Option {
	return func(r *Handler) {
		r.logger = l
	}
}

func WithRetryStrategy(s RetryStrategy) Option {
	return func(r *Handler) {
		if s != nil {
			r.retryStrategy = s
		}
	}
}
