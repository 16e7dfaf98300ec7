package graph

import (
	"fmt"
	"strings"

	statemachine "github.com/goliatone/go-statemachine"
)

type initialDef struct {
	target  StateID
	actions []Action
}

type compiler struct {
	def      Definition
	g        *Graph
	initials map[RegionID]initialDef
	issues   []string
}

// Compile validates def and builds the immutable graph. Every structural
// problem found is reported in a single ErrConfiguration.
func Compile(def Definition) (*Graph, error) {
	c := &compiler{
		def: def,
		g: &Graph{
			id:          def.ID,
			states:      make(map[StateID]*State),
			regions:     make(map[RegionID]*Region),
			outgoing:    make(map[StateID][]*Transition),
			incoming:    make(map[StateID][]*Transition),
			joinSources: make(map[StateID][]StateID),
			sourceJoins: make(map[StateID][]StateID),
		},
		initials: make(map[RegionID]initialDef),
	}

	c.collectRegions()
	c.collectStates()
	if len(c.issues) == 0 {
		c.linkRegions()
	}
	if len(c.issues) == 0 {
		c.linkInitials()
		c.collectTransitions()
	}
	if len(c.issues) == 0 {
		c.checkPseudostates()
		c.checkHistory()
	}

	if len(c.issues) > 0 {
		return nil, configurationError(def.ID, c.issues)
	}
	return c.g, nil
}

func configurationError(id string, issues []string) error {
	return statemachine.CloneError(
		statemachine.ErrConfiguration,
		fmt.Sprintf("invalid state machine %q: %s", id, strings.Join(issues, "; ")),
		nil,
		map[string]any{
			"machine": id,
			"issues":  append([]string(nil), issues...),
		},
	)
}

func (c *compiler) fail(format string, args ...any) {
	c.issues = append(c.issues, fmt.Sprintf(format, args...))
}

func (c *compiler) addRegion(id RegionID, parent StateID, initial StateID, actions []Action) {
	if _, exists := c.g.regions[id]; exists {
		c.fail("duplicate region %s", id)
		return
	}
	c.g.regions[id] = &Region{ID: id, Parent: parent}
	c.g.regionOrder = append(c.g.regionOrder, id)
	c.initials[id] = initialDef{target: initial, actions: actions}
}

func (c *compiler) collectRegions() {
	roots := 0
	for _, rd := range c.def.Regions {
		id := rd.ID
		if rd.Parent == "" {
			roots++
			if id == "" {
				id = RootRegion
			}
			initial, actions := rd.Initial, rd.InitialActions
			if initial == "" {
				initial, actions = c.def.Initial, c.def.InitialActions
			}
			c.g.root = id
			c.addRegion(id, "", initial, actions)
			continue
		}
		if id == "" {
			c.fail("region of %s has no id", rd.Parent)
			continue
		}
		c.addRegion(id, rd.Parent, rd.Initial, rd.InitialActions)
	}

	switch {
	case roots == 0:
		c.g.root = RootRegion
		c.addRegion(RootRegion, "", c.def.Initial, c.def.InitialActions)
	case roots > 1:
		c.fail("%d top-level regions declared, expected one", roots)
	}
}

func (c *compiler) collectStates() {
	for _, sd := range c.def.States {
		if sd.ID == "" {
			c.fail("state without id")
			continue
		}
		if _, exists := c.g.states[sd.ID]; exists {
			c.fail("duplicate state %s", sd.ID)
			continue
		}
		if sd.Kind == KindInitial {
			c.fail("state %s: initial pseudostates are declared through region initials", sd.ID)
			continue
		}
		if sd.Kind > KindJoin {
			c.fail("state %s: unknown kind %d", sd.ID, sd.Kind)
			continue
		}

		kind := sd.Kind
		if sd.Initial != "" {
			switch kind {
			case KindSimple, KindComposite:
				kind = KindComposite
				c.addRegion(RegionID(sd.ID), sd.ID, sd.Initial, sd.InitialActions)
			default:
				c.fail("state %s: %s pseudostate cannot own a region", sd.ID, kind)
			}
		}
		if kind.IsPseudo() && (len(sd.Entry) > 0 || len(sd.Exit) > 0 || len(sd.Deferred) > 0) {
			c.fail("state %s: %s pseudostate cannot declare entry, exit or deferred events", sd.ID, kind)
		}

		region := sd.Region
		if region == "" {
			region = c.g.root
		}
		st := &State{
			ID:     sd.ID,
			Kind:   kind,
			Region: region,
			Entry:  append([]Action(nil), sd.Entry...),
			Exit:   append([]Action(nil), sd.Exit...),
		}
		if len(sd.Deferred) > 0 {
			st.Deferred = make(map[statemachine.EventType]struct{}, len(sd.Deferred))
			for _, evt := range sd.Deferred {
				st.Deferred[evt] = struct{}{}
			}
		}
		c.g.states[sd.ID] = st
		c.g.stateOrder = append(c.g.stateOrder, sd.ID)
	}
}

func (c *compiler) linkRegions() {
	for _, rid := range c.g.regionOrder {
		r := c.g.regions[rid]
		if r.Parent == "" {
			continue
		}
		parent, ok := c.g.states[r.Parent]
		if !ok {
			c.fail("region %s: unknown parent state %s", rid, r.Parent)
			continue
		}
		switch parent.Kind {
		case KindSimple:
			parent.Kind = KindComposite
		case KindComposite:
		default:
			c.fail("region %s: parent %s is a %s pseudostate", rid, r.Parent, parent.Kind)
			continue
		}
		parent.Regions = append(parent.Regions, rid)
	}

	for _, sid := range c.g.stateOrder {
		s := c.g.states[sid]
		r, ok := c.g.regions[s.Region]
		if !ok {
			c.fail("state %s: unknown region %s", sid, s.Region)
			continue
		}
		r.States = append(r.States, sid)
	}

	for _, sid := range c.g.stateOrder {
		s := c.g.states[sid]
		if s.Kind == KindComposite && len(s.Regions) == 0 {
			c.fail("composite state %s has no regions", sid)
		}
		if c.nestingCycle(sid) {
			c.fail("state %s is nested inside itself", sid)
		}
	}

	for _, rid := range c.g.regionOrder {
		if len(c.g.regions[rid].States) == 0 {
			c.fail("region %s has no states", rid)
		}
	}
}

func (c *compiler) nestingCycle(id StateID) bool {
	seen := make(map[StateID]struct{})
	for cur := id; cur != ""; {
		if _, ok := seen[cur]; ok {
			return true
		}
		seen[cur] = struct{}{}
		s, ok := c.g.states[cur]
		if !ok {
			return false
		}
		r, ok := c.g.regions[s.Region]
		if !ok {
			return false
		}
		cur = r.Parent
	}
	return false
}

func (c *compiler) linkInitials() {
	for _, rid := range c.g.regionOrder {
		r := c.g.regions[rid]
		init := c.initials[rid]
		if init.target == "" {
			c.fail("region %s has no initial state", rid)
			continue
		}
		target, ok := c.g.states[init.target]
		if !ok {
			c.fail("region %s: unknown initial state %s", rid, init.target)
			continue
		}
		if target.Region != rid {
			c.fail("region %s: initial state %s belongs to region %s", rid, init.target, target.Region)
			continue
		}
		if target.Kind.IsPseudo() {
			c.fail("region %s: initial state %s is a %s pseudostate", rid, init.target, target.Kind)
			continue
		}

		pid := StateID("initial:" + string(rid))
		if _, exists := c.g.states[pid]; exists {
			c.fail("state id %s is reserved", pid)
			continue
		}
		c.g.states[pid] = &State{ID: pid, Kind: KindInitial, Region: rid}
		r.Initial = &Transition{
			ID:      string(pid),
			Source:  pid,
			Target:  init.target,
			Actions: append([]Action(nil), init.actions...),
			Kind:    External,
			order:   -1,
		}
		c.g.outgoing[pid] = []*Transition{r.Initial}
	}
}

func (c *compiler) collectTransitions() {
	ids := make(map[string]struct{}, len(c.def.Transitions))
	for i, td := range c.def.Transitions {
		id := td.ID
		if id == "" {
			id = fmt.Sprintf("t%d", i)
		}
		if _, exists := ids[id]; exists {
			c.fail("duplicate transition %s", id)
			continue
		}
		ids[id] = struct{}{}

		source, ok := c.g.states[td.Source]
		if !ok {
			c.fail("transition %s: unknown source %q", id, td.Source)
			continue
		}
		targetID := td.Target
		if td.Kind == Internal {
			if targetID == "" {
				targetID = td.Source
			}
			if targetID != td.Source {
				c.fail("transition %s: internal transition must target its source", id)
				continue
			}
		}
		target, ok := c.g.states[targetID]
		if !ok {
			c.fail("transition %s: unknown target %q", id, targetID)
			continue
		}

		switch {
		case source.Kind == KindEnd:
			c.fail("transition %s: end state %s cannot have outgoing transitions", id, source.ID)
			continue
		case source.Kind == KindInitial || target.Kind == KindInitial:
			c.fail("transition %s: initial pseudostates cannot be referenced", id)
			continue
		case source.Kind.IsPseudo() && td.Event != "":
			c.fail("transition %s: %s pseudostate %s cannot be left on an event", id, source.Kind, source.ID)
			continue
		case source.Kind.IsPseudo() && td.Kind == Internal:
			c.fail("transition %s: %s pseudostate %s cannot have internal transitions", id, source.Kind, source.ID)
			continue
		case td.Guard != nil && (source.Kind == KindFork || source.Kind == KindJoin || source.Kind.IsHistory()):
			c.fail("transition %s: transitions leaving a %s cannot be guarded", id, source.Kind)
			continue
		}

		t := &Transition{
			ID:      id,
			Source:  td.Source,
			Target:  targetID,
			Event:   td.Event,
			Guard:   td.Guard,
			Actions: append([]Action(nil), td.Actions...),
			Kind:    td.Kind,
			order:   i,
		}
		c.g.transitions = append(c.g.transitions, t)
		c.g.outgoing[t.Source] = append(c.g.outgoing[t.Source], t)
		c.g.incoming[t.Target] = append(c.g.incoming[t.Target], t)
	}
}

func (c *compiler) checkPseudostates() {
	for _, sid := range c.g.stateOrder {
		s := c.g.states[sid]
		out := c.g.outgoing[sid]
		switch s.Kind {
		case KindSimple, KindComposite, KindEnd:
		case KindChoice:
			defaults := 0
			for _, t := range out {
				if t.Guard == nil {
					defaults++
				}
			}
			if defaults != 1 {
				c.fail("choice %s needs exactly one unguarded default transition, found %d", sid, defaults)
			}
		case KindFork:
			if len(out) == 0 {
				c.fail("fork %s has no outgoing transitions", sid)
				continue
			}
			targets := make([]StateID, 0, len(out))
			for _, t := range out {
				tgt := c.g.states[t.Target]
				if tgt.Kind.IsPseudo() && !tgt.Kind.IsHistory() && tgt.Kind != KindEnd {
					c.fail("fork %s: target %s is a %s pseudostate", sid, t.Target, tgt.Kind)
				}
				targets = append(targets, t.Target)
			}
			c.checkOrthogonal("fork", sid, targets)
		case KindJoin:
			in := c.g.incoming[sid]
			if len(in) == 0 {
				c.fail("join %s has no incoming transitions", sid)
				continue
			}
			if len(out) != 1 {
				c.fail("join %s needs exactly one outgoing transition, found %d", sid, len(out))
				continue
			}
			var sources []StateID
			seen := make(map[StateID]struct{}, len(in))
			for _, t := range in {
				if _, dup := seen[t.Source]; dup {
					continue
				}
				seen[t.Source] = struct{}{}
				sources = append(sources, t.Source)
			}
			c.checkOrthogonal("join", sid, sources)
			c.g.joinSources[sid] = sources
			for _, src := range sources {
				c.g.sourceJoins[src] = append(c.g.sourceJoins[src], sid)
			}
		case KindShallowHistory, KindDeepHistory:
			if len(out) > 1 {
				c.fail("history %s has %d default transitions, expected at most one", sid, len(out))
			}
		default:
			c.fail("state %s has unsupported kind %s", sid, s.Kind)
		}
	}
}

// checkOrthogonal requires members to sit in distinct regions of the
// innermost composite enclosing all of them.
func (c *compiler) checkOrthogonal(kind string, id StateID, members []StateID) {
	if len(members) < 2 {
		return
	}

	var owner StateID
	for _, candidate := range c.g.Ancestors(members[0]) {
		all := true
		for _, m := range members[1:] {
			if !c.g.IsDescendant(m, candidate) {
				all = false
				break
			}
		}
		if all {
			owner = candidate
			break
		}
	}
	if owner == "" {
		c.fail("%s %s: %v do not share an enclosing composite state", kind, id, members)
		return
	}

	used := make(map[RegionID]StateID, len(members))
	for _, m := range members {
		for _, rid := range c.g.states[owner].Regions {
			if !c.g.InRegion(m, rid) {
				continue
			}
			if prev, dup := used[rid]; dup {
				c.fail("%s %s: %s and %s are in the same region %s of %s", kind, id, prev, m, rid, owner)
			}
			used[rid] = m
		}
	}
}

func (c *compiler) checkHistory() {
	if c.def.History == "" {
		return
	}
	h, ok := c.g.states[c.def.History]
	switch {
	case !ok:
		c.fail("unknown history state %s", c.def.History)
	case !h.Kind.IsHistory():
		c.fail("history state %s is a %s", c.def.History, h.Kind)
	case h.Region != c.g.root:
		c.fail("history state %s must belong to the top-level region", c.def.History)
	default:
		c.g.history = c.def.History
	}
}
