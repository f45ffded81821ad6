package memory

import (
	"math"
	"time"
)

// sourceWeights encode how much a fact's origin is trusted.
var sourceWeights = map[Source]float64{
	SourceUserEdit:     2.0,
	SourceFile:         1.5,
	SourceSystem:       1.2,
	SourceConversation: 1.0,
}

const (
	decayPeriodDays     = 7.0
	usageBoostFactor    = 0.5
	confirmedBoost      = 1.1
	hoursPerDay         = 24.0
	unknownSourceWeight = 1.0
)

// SourceWeight returns the trust multiplier for a source.
func SourceWeight(s Source) float64 {
	if w, ok := sourceWeights[s]; ok {
		return w
	}
	return unknownSourceWeight
}

// DaysSinceAccess returns the idle time of a fact in days, never negative.
func DaysSinceAccess(f Fact, now time.Time) float64 {
	days := now.Sub(f.LastTouched()).Hours() / hoursPerDay
	if days < 0 {
		return 0
	}
	return days
}

// DecayFactor is 1 within the grace period and DecayRate^((days-grace)/7) after it.
func DecayFactor(daysSinceAccess float64, p Policy) float64 {
	if daysSinceAccess <= p.GracePeriodDays {
		return 1.0
	}
	return math.Pow(p.DecayRate, (daysSinceAccess-p.GracePeriodDays)/decayPeriodDays)
}

// UsageBoost is 1 + log10(accessCount+1)/2; zero accesses are neutral.
func UsageBoost(accessCount int) float64 {
	if accessCount < 0 {
		accessCount = 0
	}
	return 1 + math.Log10(float64(accessCount)+1)*usageBoostFactor
}

// Score computes the current relevance of a fact:
//
//	confidence * source_weight * decay_factor * usage_boost * status_weight
//
// It is pure and never negative.
func Score(f Fact, now time.Time, p Policy) float64 {
	statusWeight := 1.0
	if f.Status == StatusConfirmed {
		statusWeight = confirmedBoost
	}
	confidence := math.Max(f.Confidence, 0)
	return confidence *
		SourceWeight(f.Source) *
		DecayFactor(DaysSinceAccess(f, now), p) *
		UsageBoost(f.AccessCount) *
		statusWeight
}
