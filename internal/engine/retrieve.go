package engine

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/jacq-os/jacq/internal/memory"
	"github.com/jacq-os/jacq/internal/metrics"
)

// Retrieval outcomes recorded in metrics.
const (
	OutcomeOK       = "ok"
	OutcomeEmpty    = "empty"
	OutcomeDegraded = "degraded"
)

// Retriever runs the read pipeline: anchors, traversal, entity resolution,
// scoring, recent interactions and narrative.
type Retriever struct {
	Store    Store
	Entities EntityStore
	Anchors  *AnchorSelector
	Policy   memory.Policy

	// StoreTimeout bounds every individual store call.
	StoreTimeout time.Duration
	// RecentLimit is how many interactions are loaded for the activity section.
	RecentLimit int

	Now     func() time.Time
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

// Retrieve builds the memory context for a query. It never fails: store and
// search failures produce a partial or empty context and are logged.
func (r *Retriever) Retrieve(ctx context.Context, ownerID, query string) *memory.MemoryContext {
	start := time.Now()
	now := r.now()
	log := r.logger().With(zap.String("owner", ownerID))
	degraded := false

	mc := &memory.MemoryContext{RetrievedAt: now}

	anchors := r.Anchors.Select(ctx, ownerID, query, r.Policy.AnchorTopK)
	mc.AnchorIDs = anchors.IDs
	if mc.AnchorIDs == nil {
		mc.AnchorIDs = []string{}
	}

	tr := Traverse(ctx, r.Store, anchors.IDs, r.Policy, r.StoreTimeout)
	mc.HopDepth = tr.Hops
	if tr.Err != nil {
		degraded = true
		r.Metrics.Failure("traversal")
		log.Warn("traversal stopped early", zap.Int("facts", len(tr.Facts)), zap.Error(tr.Err))
	}

	entities, err := r.resolveEntities(ctx, anchors.IDs, tr.Facts)
	if err != nil {
		degraded = true
		r.Metrics.Failure("entities")
		log.Warn("entity resolution failed", zap.Error(err))
	}
	mc.Entities = entities

	mc.Facts = ScoreFacts(tr.Facts, now, r.Policy)

	if r.RecentLimit > 0 {
		sctx, cancel := r.storeContext(ctx)
		interactions, err := r.Entities.RecentInteractions(sctx, ownerID, r.RecentLimit)
		cancel()
		if err != nil {
			degraded = true
			r.Metrics.Failure("interactions")
			log.Warn("recent interactions unavailable", zap.Error(err))
		}
		mc.Interactions = interactions
	}

	mc.Narrative = BuildNarrative(mc.Entities, mc.Facts, mc.Interactions)
	mc.TokenEstimate = EstimateTokens(mc.Narrative)

	outcome := OutcomeOK
	switch {
	case degraded:
		outcome = OutcomeDegraded
	case mc.Empty():
		outcome = OutcomeEmpty
	}
	r.Metrics.ObserveRetrieval(outcome, time.Since(start), len(mc.Facts))
	log.Debug("retrieved context",
		zap.Strings("anchors", mc.AnchorIDs),
		zap.String("fallback", anchors.Fallback),
		zap.Int("hops", mc.HopDepth),
		zap.Int("facts", len(mc.Facts)),
		zap.Int("tokens", mc.TokenEstimate))
	return mc
}

// resolveEntities loads anchors, fact subjects and relationship targets, and
// returns them anchors first, then in order of first appearance.
func (r *Retriever) resolveEntities(ctx context.Context, anchors []string, facts []memory.Fact) ([]memory.Entity, error) {
	order := make([]string, 0, len(anchors)+len(facts))
	order = append(order, anchors...)
	for _, f := range facts {
		order = append(order, f.SubjectID)
		if id, ok := f.Object.EntityID(); ok {
			order = append(order, id)
		}
	}
	order = dedupe(order)
	if len(order) == 0 {
		return []memory.Entity{}, nil
	}

	sctx, cancel := r.storeContext(ctx)
	defer cancel()
	found, err := r.Entities.EntitiesByIDs(sctx, order)
	if err != nil {
		return []memory.Entity{}, err
	}

	byID := make(map[string]memory.Entity, len(found))
	for _, e := range found {
		byID[e.ID] = e
	}
	out := make([]memory.Entity, 0, len(found))
	for _, id := range order {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *Retriever) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.StoreTimeout > 0 {
		return context.WithTimeout(ctx, r.StoreTimeout)
	}
	return context.WithCancel(ctx)
}

func (r *Retriever) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Retriever) logger() *zap.Logger {
	if r.Log != nil {
		return r.Log
	}
	return zap.NewNop()
}

// ScoreFacts scores every fact and orders the result by descending score,
// ties by fact ID.
func ScoreFacts(facts []memory.Fact, now time.Time, p memory.Policy) []memory.ScoredFact {
	out := make([]memory.ScoredFact, 0, len(facts))
	for _, f := range facts {
		out = append(out, memory.ScoredFact{Fact: f, Score: memory.Score(f, now, p)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Fact.ID < out[j].Fact.ID
	})
	return out
}
