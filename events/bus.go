package events

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/machine"
)

// Handler reacts to a published context event.
type Handler func(ctx context.Context, evt machine.ContextEvent) error

type Subscription interface {
	Unsubscribe()
}

// Bus routes context events to handlers subscribed by topic pattern. It
// implements machine.Publisher, so it can be passed to
// machine.WithContextEvents.
type Bus struct {
	mu       sync.RWMutex
	patterns []string
	handlers map[string][]*entry
	nextID   uint64

	match        func(pattern, topic string) bool
	logger       statemachine.Logger
	errorHandler func(error)
}

type entry struct {
	bus     *Bus
	id      uint64
	pattern string
	handler Handler
}

func NewBus(opts ...Option) *Bus {
	b := &Bus{
		handlers: make(map[string][]*entry),
		match:    NewMatcher(MatcherOptions{Separator: "/"}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	b.logger = statemachine.NormalizeLogger(b.logger)
	return b
}

// Subscribe registers h for topics matching pattern.
func (b *Bus) Subscribe(pattern string, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	e := &entry{bus: b, id: b.nextID, pattern: pattern, handler: h}
	if _, ok := b.handlers[pattern]; !ok {
		b.patterns = append(b.patterns, pattern)
		slices.Sort(b.patterns)
	}
	b.handlers[pattern] = append(b.handlers[pattern], e)
	return e
}

func (e *entry) Unsubscribe() {
	b := e.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := slices.DeleteFunc(slices.Clone(b.handlers[e.pattern]), func(x *entry) bool {
		return x.id == e.id
	})
	if len(kept) > 0 {
		b.handlers[e.pattern] = kept
		return
	}
	delete(b.handlers, e.pattern)
	b.patterns = slices.DeleteFunc(b.patterns, func(p string) bool { return p == e.pattern })
}

// Handlers returns the number of handlers whose pattern matches topic.
func (b *Bus) Handlers(topic string) int {
	return len(b.matching(topic))
}

func (b *Bus) matching(topic string) []*entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*entry
	for _, p := range b.patterns {
		if b.match(p, topic) {
			out = append(out, b.handlers[p]...)
		}
	}
	return out
}

// Publish delivers evt to every matching handler in pattern order. Handler
// errors and panics are logged and passed to the error handler; they never
// reach the publisher.
func (b *Bus) Publish(ctx context.Context, evt machine.ContextEvent) {
	topic := Topic(evt)
	var errs error
	for _, e := range b.matching(topic) {
		err := statemachine.Safely("events.handler", func() error {
			return e.handler(ctx, evt)
		})
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("%s (pattern %s): %w", topic, e.pattern, err))
		}
	}
	if errs == nil {
		return
	}
	b.logger.Warn("context event handlers failed: %v", errs)
	if b.errorHandler != nil {
		b.errorHandler(errs)
	}
}
