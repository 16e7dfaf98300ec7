package machine

import (
	"maps"
	"sync"

	"github.com/goliatone/go-statemachine/graph"
)

// HistoryTracker remembers the last active child of every region that has
// been exited.
type HistoryTracker struct {
	mu      sync.RWMutex
	entries map[graph.RegionID]graph.StateID
}

func NewHistoryTracker() *HistoryTracker {
	return &HistoryTracker{entries: make(map[graph.RegionID]graph.StateID)}
}

func (h *HistoryTracker) Record(region graph.RegionID, state graph.StateID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[region] = state
}

func (h *HistoryTracker) Get(region graph.RegionID) (graph.StateID, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.entries[region]
	return s, ok
}

func (h *HistoryTracker) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = make(map[graph.RegionID]graph.StateID)
}

// Entries returns a copy of the recorded history.
func (h *HistoryTracker) Entries() map[graph.RegionID]graph.StateID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return maps.Clone(h.entries)
}

// Load replaces the recorded history.
func (h *HistoryTracker) Load(entries map[graph.RegionID]graph.StateID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = make(map[graph.RegionID]graph.StateID, len(entries))
	maps.Copy(h.entries, entries)
}
