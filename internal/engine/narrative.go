package engine

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jacq-os/jacq/internal/memory"
)

const (
	// SectionMarker tags every header the narrative emits.
	SectionMarker = "[Memory]"

	unknownEntity     = "(unknown entity)"
	recentActivityMax = 3
)

// BuildNarrative renders a scored subgraph as markdown sections, one per entity
// that has at least one fact, in entity order. Facts within a section are
// ordered by descending score, ties by fact ID. A trailing recent activity
// section lists the topics of up to three of the newest interactions.
// Sections are separated by exactly one blank line.
func BuildNarrative(entities []memory.Entity, facts []memory.ScoredFact, interactions []memory.Interaction) string {
	byID := make(map[string]memory.Entity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}

	bySubject := make(map[string][]memory.ScoredFact)
	for _, sf := range facts {
		bySubject[sf.Fact.SubjectID] = append(bySubject[sf.Fact.SubjectID], sf)
	}

	var sections []string
	emitted := make(map[string]bool)
	for _, e := range entities {
		group := bySubject[e.ID]
		if len(group) == 0 || emitted[e.ID] {
			continue
		}
		emitted[e.ID] = true
		sections = append(sections, entitySection(e, group, byID))
	}

	if s := activitySection(interactions); s != "" {
		sections = append(sections, s)
	}
	return strings.Join(sections, "\n\n")
}

func entitySection(e memory.Entity, group []memory.ScoredFact, byID map[string]memory.Entity) string {
	sorted := make([]memory.ScoredFact, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Fact.ID < sorted[j].Fact.ID
	})

	var b strings.Builder
	b.WriteString(header(e))
	for _, sf := range sorted {
		fmt.Fprintf(&b, "\n- %s: %s", sf.Fact.Predicate, resolveValue(sf.Fact.Object, byID))
	}
	return b.String()
}

func header(e memory.Entity) string {
	if e.IsSelf() {
		return "### " + SectionMarker + " About the user"
	}
	return fmt.Sprintf("### %s %s (%s)", SectionMarker, e.Name, e.Type)
}

func resolveValue(o memory.Object, byID map[string]memory.Entity) string {
	if v, ok := o.Literal(); ok {
		return v
	}
	if id, ok := o.EntityID(); ok {
		if e, found := byID[id]; found {
			return e.Name
		}
	}
	return unknownEntity
}

func activitySection(interactions []memory.Interaction) string {
	if len(interactions) == 0 {
		return ""
	}
	recent := make([]memory.Interaction, len(interactions))
	copy(recent, interactions)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Timestamp.After(recent[j].Timestamp)
	})
	if len(recent) > recentActivityMax {
		recent = recent[:recentActivityMax]
	}

	var b strings.Builder
	b.WriteString("### " + SectionMarker + " Recent activity")
	for _, in := range recent {
		topics := "(no topics)"
		if len(in.Topics) > 0 {
			topics = strings.Join(in.Topics, ", ")
		}
		fmt.Fprintf(&b, "\n- %s: %s", in.Timestamp.UTC().Format("2006-01-02"), topics)
	}
	return b.String()
}

// EstimateTokens approximates the token cost of s as ceil(characters / 4).
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}
