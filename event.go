package statemachine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-errors"
)

// EventType identifies the trigger a transition reacts to.
type EventType string

// Event is a message submitted to a machine. Headers travel with the event
// and are visible to guards and actions through the state context.
type Event struct {
	Type    EventType      `json:"type" yaml:"type"`
	Headers map[string]any `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// NewEvent builds an event, merging any header maps in order.
func NewEvent(t EventType, headers ...map[string]any) Event {
	evt := Event{Type: t}
	for _, h := range headers {
		for k, v := range h {
			if evt.Headers == nil {
				evt.Headers = make(map[string]any, len(h))
			}
			evt.Headers[k] = v
		}
	}
	return evt
}

// Header returns a header value.
func (e Event) Header(key string) (any, bool) {
	if e.Headers == nil {
		return nil, false
	}
	v, ok := e.Headers[key]
	return v, ok
}

// Validate rejects events without a type.
func (e Event) Validate() error {
	if strings.TrimSpace(string(e.Type)) == "" {
		return errors.New("event type is required", errors.CategoryValidation).
			WithTextCode(ErrCodeInvalidEvent)
	}
	return nil
}

func (e Event) String() string {
	if len(e.Headers) == 0 {
		return string(e.Type)
	}
	keys := make([]string, 0, len(e.Headers))
	for k := range e.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Headers[k]))
	}
	return fmt.Sprintf("%s{%s}", e.Type, strings.Join(parts, ","))
}

// Clone returns a copy with its own header map.
func (e Event) Clone() Event {
	return NewEvent(e.Type, e.Headers)
}
