package events

import statemachine "github.com/goliatone/go-statemachine"

type Option func(*Bus)

// WithMatcher replaces the topic matcher.
func WithMatcher(match func(pattern, topic string) bool) Option {
	return func(b *Bus) {
		if match != nil {
			b.match = match
		}
	}
}

func WithLogger(logger statemachine.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithErrorHandler receives the joined handler errors of every publish
// that had failures.
func WithErrorHandler(fn func(error)) Option {
	return func(b *Bus) {
		b.errorHandler = fn
	}
}
