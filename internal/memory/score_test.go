package memory

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreFormula(t *testing.T) {
	p := DefaultPolicy()
	f := newFact("f", func(f *Fact) {
		f.Confidence = 0.5
		f.Source = SourceFile
		f.Status = StatusConfirmed
		f.AccessCount = 9
		f.LastAccessed = daysAgo(21)
	})

	decay := math.Pow(0.95, (21.0-7.0)/7.0)
	want := 0.5 * 1.5 * decay * (1 + 1*0.5) * 1.1
	assert.InDelta(t, want, Score(f, testNow, p), 1e-9)
}

func TestSourceWeights(t *testing.T) {
	assert.Equal(t, 2.0, SourceWeight(SourceUserEdit))
	assert.Equal(t, 1.5, SourceWeight(SourceFile))
	assert.Equal(t, 1.2, SourceWeight(SourceSystem))
	assert.Equal(t, 1.0, SourceWeight(SourceConversation))
	assert.Equal(t, 1.0, SourceWeight(Source("carrier-pigeon")))
}

func TestZeroAccessIsNeutral(t *testing.T) {
	assert.Equal(t, 1.0, UsageBoost(0))
}

func TestScoreStrictlyIncreasesWithAccessCount(t *testing.T) {
	p := DefaultPolicy()
	prev := -1.0
	for n := 0; n <= 50; n++ {
		f := newFact("f", func(f *Fact) { f.AccessCount = n; f.LastAccessed = daysAgo(3) })
		s := Score(f, testNow, p)
		assert.Greater(t, s, prev, "access count %d", n)
		prev = s
	}
}

func TestScoreFlatWithinGracePeriod(t *testing.T) {
	p := DefaultPolicy()
	base := Score(newFact("f", func(f *Fact) { f.LastAccessed = daysAgo(0) }), testNow, p)
	for _, d := range []float64{0.5, 1, 3, 6.99, 7} {
		f := newFact("f", func(f *Fact) { f.LastAccessed = daysAgo(d) })
		assert.InDelta(t, base, Score(f, testNow, p), 1e-12, "day %v", d)
	}
}

func TestScoreDecaysPastGracePeriod(t *testing.T) {
	p := DefaultPolicy()
	prev := math.Inf(1)
	for _, d := range []float64{8, 14, 30, 100, 365} {
		f := newFact("f", func(f *Fact) { f.LastAccessed = daysAgo(d) })
		s := Score(f, testNow, p)
		assert.Less(t, s, prev, "day %v", d)
		prev = s
	}
}

func TestScoreNonDecreasingInConfidence(t *testing.T) {
	p := DefaultPolicy()
	prev := -1.0
	for c := 0.0; c <= 1.0; c += 0.1 {
		f := newFact("f", func(f *Fact) { f.Confidence = c })
		s := Score(f, testNow, p)
		assert.GreaterOrEqual(t, s, prev)
		prev = s
	}
}

func TestScoreFallsBackToTimestamp(t *testing.T) {
	p := DefaultPolicy()
	f := newFact("f", func(f *Fact) {
		f.Timestamp = *daysAgo(35)
		f.LastAccessed = nil
	})
	want := 0.8 * math.Pow(0.95, 4)
	assert.InDelta(t, want, Score(f, testNow, p), 1e-9)
}

func TestScoreFutureAccessClampsToZeroDays(t *testing.T) {
	p := DefaultPolicy()
	future := testNow.AddDate(0, 0, 5)
	f := newFact("f", func(f *Fact) { f.LastAccessed = &future })
	assert.Equal(t, 0.0, DaysSinceAccess(f, testNow))
	assert.InDelta(t, 0.8, Score(f, testNow, p), 1e-12)
}

func TestConfirmedBoost(t *testing.T) {
	p := DefaultPolicy()
	staged := newFact("f")
	confirmed := newFact("f", func(f *Fact) { f.Status = StatusConfirmed })
	assert.InDelta(t, Score(staged, testNow, p)*1.1, Score(confirmed, testNow, p), 1e-12)
}
