// Package router maps free-form requests to the assistant capability that
// should handle them. Routing is a pure function over a fixed rule table.
package router

import (
	"regexp"
	"sort"
)

// Capability is something the assistant can be asked to do.
type Capability string

const (
	Research Capability = "research"
	Write    Capability = "write"
	Code     Capability = "code"
	Create   Capability = "create"
	Remember Capability = "remember"
	Reflect  Capability = "reflect"
)

// Capabilities lists every capability in rule-table order. Ties in scoring
// resolve to the earlier entry.
var Capabilities = []Capability{Research, Write, Code, Create, Remember, Reflect}

const (
	confidenceBoost = 0.3
	maxSecondary    = 2
)

// Decision is the outcome of routing one request.
type Decision struct {
	Primary        Capability   `json:"primary"`
	Secondary      []Capability `json:"secondary"`
	Confidence     float64      `json:"confidence"`
	Summary        string       `json:"summary"`
	RequiresMemory bool         `json:"requires_memory"`
}

type rule struct {
	capability Capability
	patterns   []*regexp.Regexp
	summary    string
}

var rules = []rule{
	{Research, compile(
		`\b(search|find|look up|research|what is|who is)\b`,
		`\b(latest|news|current|recent)\b`,
	), "User wants to find or learn information"},
	{Write, compile(
		`\b(write|draft|compose|create.*(?:email|doc|post))\b`,
		`\b(edit|revise|rewrite|summarize)\b`,
	), "User wants to create or edit content"},
	{Code, compile(
		`\b(code|implement|debug|fix.*(?:bug|error))\b`,
		`\b(function|class|api|test)\b`,
		"```",
	), "User wants to write or modify code"},
	{Create, compile(
		`\b(generate.*image|create.*visual|design)\b`,
		`\b(diagram|chart|illustration)\b`,
	), "User wants to generate visual content"},
	{Remember, compile(
		`\b(remember|save|store|note)\b`,
		`\b(don't forget|keep in mind)\b`,
	), "User wants to save information for later"},
	{Reflect, compile(
		`\b(plan|think|analyze|strategize)\b`,
		`\b(what should|how should|next steps)\b`,
	), "User wants to plan or analyze"},
}

// pastContext matches references to earlier conversations.
var pastContext = compile(
	`\b(earlier|before|previously|last time)\b`,
	`\b(we discussed|you said|i mentioned)\b`,
	`\b(continue|resume|pick up where)\b`,
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// Score is the fraction of a capability's patterns that match text.
func Score(text string, c Capability) float64 {
	for _, r := range rules {
		if r.capability == c {
			return matchRatio(text, r.patterns)
		}
	}
	return 0
}

func matchRatio(text string, patterns []*regexp.Regexp) float64 {
	if len(patterns) == 0 {
		return 0
	}
	matches := 0
	for _, p := range patterns {
		if p.MatchString(text) {
			matches++
		}
	}
	return float64(matches) / float64(len(patterns))
}

// MentionsPastContext reports whether text refers back to earlier sessions.
func MentionsPastContext(text string) bool {
	for _, p := range pastContext {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Route picks the best-scoring capability for text and up to two runners-up
// with a non-zero score. Text that matches nothing routes to research.
func Route(text string) Decision {
	type scored struct {
		rule  rule
		score float64
	}
	ranked := make([]scored, len(rules))
	for i, r := range rules {
		ranked[i] = scored{rule: r, score: matchRatio(text, r.patterns)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	primary := ranked[0]
	d := Decision{
		Primary:    primary.rule.capability,
		Secondary:  []Capability{},
		Confidence: min(primary.score+confidenceBoost, 1),
		Summary:    primary.rule.summary,
	}
	for _, s := range ranked[1:min(len(ranked), 1+maxSecondary)] {
		if s.score > 0 {
			d.Secondary = append(d.Secondary, s.rule.capability)
		}
	}

	d.RequiresMemory = d.Primary == Remember || MentionsPastContext(text)
	for _, c := range d.Secondary {
		if c == Remember {
			d.RequiresMemory = true
		}
	}
	return d
}
