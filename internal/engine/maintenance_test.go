package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacq-os/jacq/internal/memory"
	"github.com/jacq-os/jacq/internal/metrics"
)

// batchStore holds one fact ready for promotion, one decayed below the
// cleanup threshold and one old but protected by usage.
func batchStore() *fakeStore {
	s := newFakeStore()
	s.addFact(fact("f1", "A", "uses", "sqlite", 0.8, func(f *memory.Fact) {
		f.AccessCount = 3
		f.LastAccessed = daysAgo(1)
	}))
	s.addFact(fact("f2", "A", "mood", "curious", 0.3, func(f *memory.Fact) {
		f.LastAccessed = daysAgo(100)
	}))
	s.addFact(fact("f3", "A", "prefers", "vim", 0.3, func(f *memory.Fact) {
		f.Status = memory.StatusConfirmed
		f.AccessCount = 6
		f.LastAccessed = daysAgo(200)
	}))
	return s
}

func newMaintainer(s Store, m *metrics.Metrics) *Maintainer {
	return &Maintainer{Store: s, Policy: memory.DefaultPolicy(), Metrics: m}
}

func TestMaintenanceBatch(t *testing.T) {
	s := batchStore()
	m := metrics.New()

	rep, err := newMaintainer(s, m).Run(context.Background(), testNow)
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Evaluated)
	assert.Equal(t, 1, rep.Promoted)
	assert.Equal(t, 1, rep.CleanedUp)
	assert.Zero(t, rep.Conflicts)
	assert.Zero(t, rep.Failures)

	assert.Equal(t, memory.StatusConfirmed, s.fact("f1").Status)
	assert.Nil(t, s.fact("f1").ValidUntil)

	cleaned := s.fact("f2")
	assert.Equal(t, memory.StatusRetracted, cleaned.Status)
	require.NotNil(t, cleaned.ValidUntil)
	assert.True(t, cleaned.ValidUntil.Equal(testNow))

	assert.Equal(t, memory.StatusConfirmed, s.fact("f3").Status, "protected facts never decay out")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("promote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("cleanup")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MaintenanceRuns))
}

func TestMaintenanceRerunIsNoOp(t *testing.T) {
	s := batchStore()
	mt := newMaintainer(s, nil)

	_, err := mt.Run(context.Background(), testNow)
	require.NoError(t, err)

	rep, err := mt.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.False(t, rep.Changed())
	assert.Equal(t, 2, rep.Evaluated)
}

func TestMaintenancePromotionTakesPrecedence(t *testing.T) {
	s := newFakeStore()
	s.addFact(fact("stale", "A", "p", "x", 0.1, func(f *memory.Fact) {
		f.AccessCount = 3
		f.LastAccessed = daysAgo(400)
	}))
	mt := newMaintainer(s, nil)

	rep, err := mt.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Promoted)
	assert.Zero(t, rep.CleanedUp, "a promoted fact is not cleaned up in the same run")
	assert.Equal(t, memory.StatusConfirmed, s.fact("stale").Status)

	// Confirmed but below the protection threshold, it decays out next time.
	rep, err = mt.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Zero(t, rep.Promoted)
	assert.Equal(t, 1, rep.CleanedUp)
	assert.Equal(t, memory.StatusRetracted, s.fact("stale").Status)

	rep, err = mt.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.False(t, rep.Changed())
}

func TestMaintenanceSupersedesContradictions(t *testing.T) {
	s := newFakeStore()
	confirmed := func(f *memory.Fact) {
		f.Status = memory.StatusConfirmed
		f.AccessCount = 2
		f.LastAccessed = daysAgo(1)
	}
	s.addFact(fact("nyc", "owner", "lives_in", "NYC", 0.8, confirmed, func(f *memory.Fact) {
		f.Timestamp = testNow.Add(-48 * time.Hour)
	}))
	s.addFact(fact("boston", "owner", "lives_in", "Boston", 0.8, confirmed, func(f *memory.Fact) {
		f.Timestamp = testNow
	}))
	s.addFact(fact("la", "owner", "lives_in", "LA", 0.5, func(f *memory.Fact) {
		f.Timestamp = testNow.Add(-2 * time.Hour)
	}))
	s.addFact(fact("sf", "owner", "lives_in", "SF", 0.95))

	rep, err := newMaintainer(s, nil).Run(context.Background(), testNow)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Superseded)
	assert.Equal(t, 1, rep.Skipped, "staged rivals cannot be superseded")
	assert.Equal(t, 3, rep.Evaluated)

	nyc := s.fact("nyc")
	assert.Equal(t, memory.StatusSuperseded, nyc.Status)
	require.NotNil(t, nyc.ValidUntil)
	assert.True(t, nyc.ValidUntil.Equal(testNow))

	assert.Equal(t, memory.StatusConfirmed, s.fact("boston").Status, "newer than the staged winner")
	assert.Equal(t, memory.StatusStaged, s.fact("la").Status)
	assert.Equal(t, memory.StatusStaged, s.fact("sf").Status, "the winner still has to earn promotion")
}

func TestMaintenanceDefersOnConcurrentModification(t *testing.T) {
	s := batchStore()
	raced := false
	s.beforeUpdate = func(id string) {
		if id == "f1" && !raced {
			raced = true
			s.setStatus("f1", memory.StatusRetracted)
		}
	}
	m := metrics.New()

	rep, err := newMaintainer(s, m).Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Conflicts)
	assert.Zero(t, rep.Promoted)
	assert.Equal(t, 1, rep.CleanedUp)
	assert.Equal(t, memory.StatusRetracted, s.fact("f1").Status, "the concurrent write wins")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CASConflicts))

	rep, err = newMaintainer(s, m).Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Zero(t, rep.Conflicts)
	assert.False(t, rep.Changed())
}

func TestMaintenanceCountsWriteFailures(t *testing.T) {
	s := batchStore()
	s.updateErr["f2"] = errors.New("disk full")

	rep, err := newMaintainer(s, nil).Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failures)
	assert.Equal(t, 1, rep.Promoted, "one failure does not stop the batch")
	assert.Zero(t, rep.CleanedUp)
	assert.Equal(t, memory.StatusStaged, s.fact("f2").Status)
}

func TestMaintenanceLoadFailure(t *testing.T) {
	s := batchStore()
	s.statusErr = errors.New("locked")

	_, err := newMaintainer(s, nil).Run(context.Background(), testNow)
	assert.Error(t, err)
}

func TestMaintenanceHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := batchStore()
	rep, err := newMaintainer(s, nil).Run(ctx, testNow)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, rep.Changed())
}

func TestEngineMaintenanceTimerStops(t *testing.T) {
	s := batchStore()
	e := testEngine(t, s)
	e.Options.MaintenanceInterval = time.Hour

	e.StartMaintenanceTimer()
	e.Stop()
	e.Stop()

	assert.Equal(t, memory.StatusConfirmed, s.fact("f1").Status, "startup run happens synchronously")
}
