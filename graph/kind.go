package graph

import (
	"fmt"
	"strings"
)

// Kind is the closed set of vertex kinds a graph may contain.
type Kind uint8

const (
	KindSimple Kind = iota
	KindComposite
	KindInitial
	KindEnd
	KindShallowHistory
	KindDeepHistory
	KindChoice
	KindFork
	KindJoin
)

var kindNames = [...]string{
	KindSimple:         "simple",
	KindComposite:      "composite",
	KindInitial:        "initial",
	KindEnd:            "end",
	KindShallowHistory: "shallow_history",
	KindDeepHistory:    "deep_history",
	KindChoice:         "choice",
	KindFork:           "fork",
	KindJoin:           "join",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// IsPseudo reports whether the kind is transient: a machine never rests in
// a pseudostate, End excepted, which marks its region terminal.
func (k Kind) IsPseudo() bool {
	switch k {
	case KindSimple, KindComposite:
		return false
	case KindInitial, KindEnd, KindShallowHistory, KindDeepHistory, KindChoice, KindFork, KindJoin:
		return true
	default:
		panic(fmt.Sprintf("graph: unknown kind %d", k))
	}
}

// IsHistory reports shallow or deep history.
func (k Kind) IsHistory() bool {
	return k == KindShallowHistory || k == KindDeepHistory
}

// ParseKind accepts the names produced by String plus a few aliases.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "simple", "state":
		return KindSimple, nil
	case "composite":
		return KindComposite, nil
	case "initial":
		return KindInitial, nil
	case "end", "final":
		return KindEnd, nil
	case "history", "shallow", "shallow_history":
		return KindShallowHistory, nil
	case "deep", "deep_history":
		return KindDeepHistory, nil
	case "choice":
		return KindChoice, nil
	case "fork":
		return KindFork, nil
	case "join":
		return KindJoin, nil
	}
	return KindSimple, fmt.Errorf("unknown state kind %q", raw)
}

// TransitionKind selects how much of the configuration a transition exits.
type TransitionKind uint8

const (
	// External exits and re-enters the source when the target is inside it.
	External TransitionKind = iota
	// Internal runs actions without leaving the source.
	Internal
	// Local does not exit or re-enter the containing composite.
	Local
)

func (k TransitionKind) String() string {
	switch k {
	case External:
		return "external"
	case Internal:
		return "internal"
	case Local:
		return "local"
	}
	return fmt.Sprintf("transition_kind(%d)", k)
}

func ParseTransitionKind(raw string) (TransitionKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "external":
		return External, nil
	case "internal":
		return Internal, nil
	case "local":
		return Local, nil
	}
	return External, fmt.Errorf("unknown transition kind %q", raw)
}
