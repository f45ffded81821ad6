package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/jacq-os/jacq/internal/memory"
	"github.com/jacq-os/jacq/internal/metrics"
)

// Report summarizes one maintenance batch.
type Report struct {
	Evaluated  int           `json:"evaluated"`
	Promoted   int           `json:"promoted"`
	CleanedUp  int           `json:"cleaned_up"`
	Superseded int           `json:"superseded"`
	Skipped    int           `json:"skipped"`   // contradicting facts still staged
	Conflicts  int           `json:"conflicts"` // compare-and-set rejections
	Failures   int           `json:"failures"`
	Duration   time.Duration `json:"duration"`
}

// Changed reports whether any transition was applied.
func (r Report) Changed() bool {
	return r.Promoted+r.CleanedUp+r.Superseded > 0
}

// Maintainer runs the lifecycle engine over the full live fact set.
type Maintainer struct {
	Store   Store
	Policy  memory.Policy
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

// Run snapshots staged and confirmed facts, lets high-confidence staged facts
// supersede older contradicting confirmed ones, then promotes and cleans up.
// Every write is a compare-and-set on the snapshot status: rejected writes are
// counted and left for the next run, other per-fact errors are counted as
// failures and the batch continues. Each fact takes at most one transition per
// run, the one Evaluate recommends for its snapshot state.
func (m *Maintainer) Run(ctx context.Context, now time.Time) (Report, error) {
	start := time.Now()
	var rep Report
	log := m.logger()

	staged, err := m.Store.FactsByStatus(ctx, memory.StatusStaged)
	if err != nil {
		return rep, fmt.Errorf("load staged facts: %w", err)
	}
	confirmed, err := m.Store.FactsByStatus(ctx, memory.StatusConfirmed)
	if err != nil {
		return rep, fmt.Errorf("load confirmed facts: %w", err)
	}
	m.Metrics.MaintenanceRun()

	superseded := m.sweepConflicts(ctx, staged, confirmed, now, &rep)

	live := make([]memory.Fact, 0, len(staged)+len(confirmed))
	live = append(live, staged...)
	for _, f := range confirmed {
		if !superseded[f.ID] {
			live = append(live, f)
		}
	}
	rep.Evaluated = len(live)

	for _, f := range live {
		if err := ctx.Err(); err != nil {
			rep.Duration = time.Since(start)
			return rep, err
		}
		m.step(ctx, f, now, &rep)
	}

	rep.Duration = time.Since(start)
	log.Info("maintenance complete",
		zap.Int("evaluated", rep.Evaluated),
		zap.Int("promoted", rep.Promoted),
		zap.Int("cleaned_up", rep.CleanedUp),
		zap.Int("superseded", rep.Superseded),
		zap.Int("conflicts", rep.Conflicts),
		zap.Int("failures", rep.Failures),
		zap.Duration("duration", rep.Duration))
	return rep, nil
}

// sweepConflicts applies conflict resolution for every high-confidence staged
// fact, oldest first, against confirmed facts no newer than it. Staged
// contradictions are counted as skipped. It returns the IDs it superseded.
func (m *Maintainer) sweepConflicts(ctx context.Context, staged, confirmed []memory.Fact, now time.Time, rep *Report) map[string]bool {
	done := make(map[string]bool)

	winners := make([]memory.Fact, 0)
	for _, f := range staged {
		if f.Confidence > m.Policy.ConflictConfidence {
			winners = append(winners, f)
		}
	}
	sort.SliceStable(winners, func(i, j int) bool {
		if !winners[i].Timestamp.Equal(winners[j].Timestamp) {
			return winners[i].Timestamp.Before(winners[j].Timestamp)
		}
		return winners[i].ID < winners[j].ID
	})

	for _, w := range winners {
		var rivals []memory.Fact
		for _, c := range confirmed {
			if done[c.ID] || c.Timestamp.After(w.Timestamp) {
				continue
			}
			rivals = append(rivals, c)
		}
		rivals = append(rivals, staged...)
		res := memory.ResolveConflicts(w, rivals, now, m.Policy)
		rep.Skipped += len(res.Skipped)
		for _, next := range res.Superseded {
			if m.apply(ctx, next.ID, memory.StatusConfirmed, next, "supersede", rep) {
				done[next.ID] = true
				rep.Superseded++
			}
		}
	}
	return done
}

// step applies the transition Evaluate recommends for one fact in the snapshot.
// A fact moves at most one step per run, so a staged fact that is both
// promotable and decayed is promoted and left for the next run to judge.
func (m *Maintainer) step(ctx context.Context, f memory.Fact, now time.Time, rep *Report) {
	action := memory.Evaluate(f, now, m.Policy)
	if action == memory.ActionNone {
		return
	}
	to, _ := action.Target()
	next, err := memory.Transition(f, to, now)
	if err != nil {
		rep.Failures++
		m.logger().Error("maintenance produced an invalid transition", zap.String("fact", f.ID), zap.Error(err))
		return
	}
	if !m.apply(ctx, f.ID, f.Status, next, string(action), rep) {
		return
	}
	switch action {
	case memory.ActionPromote:
		rep.Promoted++
	case memory.ActionCleanup:
		rep.CleanedUp++
	}
}

// apply writes one transition with compare-and-set and reports whether it landed.
func (m *Maintainer) apply(ctx context.Context, id string, expected memory.Status, next memory.Fact, action string, rep *Report) bool {
	err := m.Store.UpdateFactStatus(ctx, id, expected, next.Status, next.ValidUntil)
	switch {
	case err == nil:
		m.Metrics.Transition(action)
		return true
	case errors.Is(err, memory.ErrConcurrentModification):
		rep.Conflicts++
		m.Metrics.CASConflict()
		m.logger().Debug("fact moved concurrently, deferring", zap.String("fact", id), zap.String("action", action))
	default:
		rep.Failures++
		m.Metrics.Failure("maintenance")
		m.logger().Warn("maintenance write failed", zap.String("fact", id), zap.String("action", action), zap.Error(err))
	}
	return false
}

func (m *Maintainer) logger() *zap.Logger {
	if m.Log != nil {
		return m.Log
	}
	return zap.NewNop()
}
