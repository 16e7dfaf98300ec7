package events

import "strings"

// MatcherOptions configures topic pattern matching.
type MatcherOptions struct {
	// Separator splits patterns and topics into segments. Defaults to "/".
	Separator string
	// StrictSuffix only allows "#" as the final pattern segment.
	StrictSuffix bool
}

// NewMatcher returns func(pattern, topic) reporting whether topic matches
// pattern. "*" and "+" match exactly one segment; "#" matches any number
// of segments, including none.
func NewMatcher(opts ...MatcherOptions) func(pattern, topic string) bool {
	sep := "/"
	strict := false
	if len(opts) > 0 {
		if opts[0].Separator != "" {
			sep = opts[0].Separator
		}
		strict = opts[0].StrictSuffix
	}

	return func(pattern, topic string) bool {
		if pattern == topic {
			return true
		}
		p := strings.Split(pattern, sep)
		t := strings.Split(topic, sep)
		if strict {
			return matchStrict(p, t)
		}
		return matchAnywhere(p, t)
	}
}

func matchStrict(pattern, topic []string) bool {
	pi, ti := 0, 0
	for pi < len(pattern) && ti < len(topic) {
		seg := pattern[pi]
		if seg == "#" {
			return pi == len(pattern)-1
		}
		if seg != topic[ti] && !isSingle(seg) {
			return false
		}
		pi++
		ti++
	}
	if pi == len(pattern) && ti == len(topic) {
		return true
	}
	// "a/#" also matches "a"
	return pi == len(pattern)-1 && pattern[pi] == "#" && ti == len(topic)
}

// matchAnywhere lets "#" appear in any position. prev[j] holds whether the
// pattern consumed so far matches the first j topic segments.
func matchAnywhere(pattern, topic []string) bool {
	prev := make([]bool, len(topic)+1)
	cur := make([]bool, len(topic)+1)
	prev[0] = true

	for _, seg := range pattern {
		cur[0] = seg == "#" && prev[0]
		for j := 1; j <= len(topic); j++ {
			switch {
			case seg == "#":
				cur[j] = prev[j] || cur[j-1]
			case isSingle(seg):
				cur[j] = prev[j-1]
			default:
				cur[j] = prev[j-1] && seg == topic[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(topic)]
}

func isSingle(seg string) bool {
	return seg == "*" || seg == "+"
}
