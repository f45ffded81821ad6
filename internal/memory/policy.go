package memory

import (
	"fmt"
	"strings"
)

// Policy holds every tunable that the scorer, the lifecycle engine and the
// traversal consult. It is a plain value: callers pass it into each call, so
// tests and individual owners can run with different settings side by side.
type Policy struct {
	PromotionThreshold  int     // access count at which a staged fact is promoted
	GracePeriodDays     float64 // days without decay after the last access
	DecayRate           float64 // weekly decay multiplier once the grace period is over
	CleanupThreshold    float64 // score below which an unprotected fact is retracted
	MinAccessProtection int     // confirmed facts with at least this many accesses never decay out
	ConflictConfidence  float64 // a new fact must exceed this to supersede contradicting facts

	MaxHops            int
	MaxFacts           int
	PerEntityFactLimit int
	AnchorTopK         int
}

// DefaultPolicy returns the stock calibration.
func DefaultPolicy() Policy {
	return Policy{
		PromotionThreshold:  3,
		GracePeriodDays:     7,
		DecayRate:           0.95,
		CleanupThreshold:    0.2,
		MinAccessProtection: 5,
		ConflictConfidence:  0.9,
		MaxHops:             2,
		MaxFacts:            30,
		PerEntityFactLimit:  10,
		AnchorTopK:          3,
	}
}

// Validate rejects settings that would make the lifecycle or traversal meaningless.
func (p Policy) Validate() error {
	var problems []string
	if p.PromotionThreshold < 1 {
		problems = append(problems, "promotion_threshold must be >= 1")
	}
	if p.GracePeriodDays < 0 {
		problems = append(problems, "decay_grace_period_days must be >= 0")
	}
	if p.DecayRate <= 0 || p.DecayRate > 1 {
		problems = append(problems, "decay_rate must be in (0,1]")
	}
	if p.CleanupThreshold < 0 {
		problems = append(problems, "cleanup_threshold must be >= 0")
	}
	if p.MinAccessProtection < 0 {
		problems = append(problems, "min_access_protection must be >= 0")
	}
	if p.ConflictConfidence < 0 || p.ConflictConfidence > 1 {
		problems = append(problems, "conflict_confidence must be in [0,1]")
	}
	if p.MaxHops < 0 {
		problems = append(problems, "max_hops must be >= 0")
	}
	if p.MaxFacts < 1 {
		problems = append(problems, "max_facts must be >= 1")
	}
	if p.PerEntityFactLimit < 1 {
		problems = append(problems, "per_entity_fact_limit must be >= 1")
	}
	if p.AnchorTopK < 1 {
		problems = append(problems, "anchor_top_k must be >= 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("memory policy: %s", strings.Join(problems, "; "))
	}
	return nil
}
