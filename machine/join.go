package machine

import (
	"slices"
	"sync"

	"github.com/goliatone/go-statemachine/graph"
)

// JoinTracker accumulates arrivals at join pseudostates. Arrivals survive
// across cycles until every source has arrived, or until a source state is
// exited before the join fires.
type JoinTracker struct {
	mu      sync.RWMutex
	graph   *graph.Graph
	arrived map[graph.StateID]map[graph.StateID]struct{}
}

func NewJoinTracker(g *graph.Graph) *JoinTracker {
	return &JoinTracker{
		graph:   g,
		arrived: make(map[graph.StateID]map[graph.StateID]struct{}),
	}
}

// Arrive records source at join and reports whether the join fires. A
// firing join has its accumulator cleared.
func (j *JoinTracker) Arrive(join, source graph.StateID) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	set := j.arrived[join]
	if set == nil {
		set = make(map[graph.StateID]struct{})
		j.arrived[join] = set
	}
	set[source] = struct{}{}

	for _, src := range j.graph.JoinSources(join) {
		if _, ok := set[src]; !ok {
			return false
		}
	}
	delete(j.arrived, join)
	return true
}

// Withdraw drops source from every join it feeds.
func (j *JoinTracker) Withdraw(source graph.StateID) {
	joins := j.graph.JoinsOf(source)
	if len(joins) == 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, join := range joins {
		if set := j.arrived[join]; set != nil {
			delete(set, source)
			if len(set) == 0 {
				delete(j.arrived, join)
			}
		}
	}
}

// Pending returns the sources that have arrived per join, sorted.
func (j *JoinTracker) Pending() map[graph.StateID][]graph.StateID {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make(map[graph.StateID][]graph.StateID, len(j.arrived))
	for join, set := range j.arrived {
		sources := make([]graph.StateID, 0, len(set))
		for src := range set {
			sources = append(sources, src)
		}
		slices.Sort(sources)
		out[join] = sources
	}
	return out
}

func (j *JoinTracker) Load(pending map[graph.StateID][]graph.StateID) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.arrived = make(map[graph.StateID]map[graph.StateID]struct{}, len(pending))
	for join, sources := range pending {
		if len(sources) == 0 {
			continue
		}
		set := make(map[graph.StateID]struct{}, len(sources))
		for _, src := range sources {
			set[src] = struct{}{}
		}
		j.arrived[join] = set
	}
}

func (j *JoinTracker) Reset() {
	j.Load(nil)
}
