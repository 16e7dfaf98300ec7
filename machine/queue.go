package machine

import (
	"sync"

	statemachine "github.com/goliatone/go-statemachine"
	"github.com/goliatone/go-statemachine/graph"
)

type itemKind uint8

const (
	itemExternal itemKind = iota
	itemDeferred
	itemCompletion
)

type queueItem struct {
	kind  itemKind
	event statemachine.Event
	// completion events are scoped to the state that completed.
	state graph.StateID

	processed bool
	accepted  bool
}

// eventQueue is the dispatcher deque. External events join at the back;
// internal events are pushed to the front where they are produced.
type eventQueue struct {
	mu    sync.Mutex
	items []*queueItem
}

func (q *eventQueue) pushBack(it *queueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, it)
}

// pushFront inserts items ahead of everything queued, keeping their order.
func (q *eventQueue) pushFront(items ...*queueItem) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	merged := make([]*queueItem, 0, len(items)+len(q.items))
	merged = append(merged, items...)
	merged = append(merged, q.items...)
	q.items = merged
}

func (q *eventQueue) pop() (*queueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	it := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return it, true
}

// atBoundary reports whether no internal event is pending, which is where
// one run-to-completion cycle ends and the next begins.
func (q *eventQueue) atBoundary() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0 || q.items[0].kind == itemExternal
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *eventQueue) clear() []*queueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}
