package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jacq-os/jacq/internal/memory"
)

// AddFactResult reports what happened when a fact was ingested.
type AddFactResult struct {
	Fact memory.Fact `json:"fact"`
	// Superseded lists facts this one replaced.
	Superseded []string `json:"superseded,omitempty"`
	// Skipped lists contradicting facts that were still staged.
	Skipped []string `json:"skipped,omitempty"`
	// Deferred lists supersessions rejected by a concurrent writer; maintenance
	// picks them up on its next run.
	Deferred []string `json:"deferred,omitempty"`
}

// AddEntity validates and stores a new entity, then embeds it when an
// embedder is configured. Embedding failures are logged, not returned.
func (e *Engine) AddEntity(ctx context.Context, ent memory.Entity) (*memory.Entity, error) {
	ent.Name = strings.TrimSpace(ent.Name)
	if ent.ID == "" {
		ent.ID = uuid.NewString()
	}
	if ent.CreatedAt.IsZero() {
		ent.CreatedAt = e.now()
	}
	if err := memory.ValidateEntity(ent); err != nil {
		return nil, err
	}

	stored, err := e.Store.InsertEntity(ctx, ent)
	if err != nil {
		return nil, fmt.Errorf("add entity: %w", err)
	}
	if err := e.EmbedEntity(ctx, *stored); err != nil {
		e.Log.Warn("embed new entity", zap.String("entity", stored.ID), zap.Error(err))
	}
	return stored, nil
}

// MentionEntity records a mention, optionally learning a new alias.
func (e *Engine) MentionEntity(ctx context.Context, id, alias string) (*memory.Entity, error) {
	ent, err := e.Store.MentionEntity(ctx, id, alias)
	if err != nil {
		return nil, fmt.Errorf("mention entity: %w", err)
	}
	if strings.TrimSpace(alias) != "" {
		if err := e.EmbedEntity(ctx, *ent); err != nil {
			e.Log.Warn("re-embed entity", zap.String("entity", ent.ID), zap.Error(err))
		}
	}
	return ent, nil
}

// AddFact validates and stores a fact. New facts always start staged with no
// accesses. When the fact is confident enough, contradicting confirmed facts on
// the same subject and predicate are superseded with compare-and-set writes.
func (e *Engine) AddFact(ctx context.Context, f memory.Fact) (*AddFactResult, error) {
	now := e.now()
	f.Predicate = strings.TrimSpace(f.Predicate)
	f.ID = uuid.NewString()
	f.Status = memory.StatusStaged
	f.AccessCount = 0
	f.LastAccessed = nil
	f.ValidUntil = nil
	if f.Timestamp.IsZero() {
		f.Timestamp = now
	}
	if f.Source == "" {
		f.Source = memory.SourceConversation
	}
	if f.Provenance == "" {
		f.Provenance = memory.ProvenanceExplicit
	}
	if err := memory.ValidateFact(f); err != nil {
		return nil, err
	}
	if err := e.checkReferences(ctx, f); err != nil {
		return nil, err
	}

	stored, err := e.Store.InsertFact(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("add fact: %w", err)
	}
	res := &AddFactResult{Fact: *stored}

	if stored.Confidence <= e.Policy.ConflictConfidence {
		return res, nil
	}
	existing, err := e.Store.FactsBySubject(ctx, stored.SubjectID, liveStatuses, 0)
	if err != nil {
		// The fact is stored; maintenance will resolve the conflict later.
		e.Log.Warn("conflict check skipped", zap.String("fact", stored.ID), zap.Error(err))
		return res, nil
	}

	resolution := memory.ResolveConflicts(*stored, existing, now, e.Policy)
	res.Skipped = resolution.Skipped
	for _, next := range resolution.Superseded {
		err := e.Store.UpdateFactStatus(ctx, next.ID, memory.StatusConfirmed, memory.StatusSuperseded, next.ValidUntil)
		switch {
		case err == nil:
			res.Superseded = append(res.Superseded, next.ID)
			e.Metrics.Transition("supersede")
		case errors.Is(err, memory.ErrConcurrentModification):
			res.Deferred = append(res.Deferred, next.ID)
			e.Metrics.CASConflict()
			e.Log.Info("supersession deferred", zap.String("fact", next.ID), zap.String("by", stored.ID))
		default:
			res.Deferred = append(res.Deferred, next.ID)
			e.Metrics.Failure("ingest")
			e.Log.Warn("supersession failed", zap.String("fact", next.ID), zap.Error(err))
		}
	}
	return res, nil
}

// checkReferences rejects a fact whose subject or relationship target is not a
// stored entity.
func (e *Engine) checkReferences(ctx context.Context, f memory.Fact) error {
	ids := []string{f.SubjectID}
	objectID, isRel := f.Object.EntityID()
	if isRel {
		ids = append(ids, objectID)
	}
	found, err := e.Store.EntitiesByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("add fact: resolve entities: %w", err)
	}
	known := make(map[string]bool, len(found))
	for _, ent := range found {
		known[ent.ID] = true
	}

	var problems []string
	if !known[f.SubjectID] {
		problems = append(problems, "subject_id: unknown entity "+f.SubjectID)
	}
	if isRel && !known[objectID] {
		problems = append(problems, "object_id: unknown entity "+objectID)
	}
	if len(problems) > 0 {
		return &memory.ValidationError{Kind: "fact", Problems: problems}
	}
	return nil
}

// TouchFact records one access. A staged fact that reaches the promotion
// threshold is promoted immediately; losing that race to another writer is
// not an error.
func (e *Engine) TouchFact(ctx context.Context, id string) (*memory.Fact, error) {
	f, err := e.Store.RecordAccess(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("touch fact: %w", err)
	}
	if !memory.ShouldPromote(*f, e.Policy) {
		return f, nil
	}

	promoted, err := memory.Promote(*f, e.now())
	if err != nil {
		return f, nil
	}
	err = e.Store.UpdateFactStatus(ctx, id, memory.StatusStaged, memory.StatusConfirmed, nil)
	switch {
	case err == nil:
		e.Metrics.Transition(string(memory.ActionPromote))
		return &promoted, nil
	case errors.Is(err, memory.ErrConcurrentModification):
		e.Metrics.CASConflict()
		return e.Store.GetFact(ctx, id)
	default:
		return f, fmt.Errorf("promote fact: %w", err)
	}
}

// PromoteFact explicitly confirms a staged fact. Any other status yields a
// *memory.TransitionError.
func (e *Engine) PromoteFact(ctx context.Context, id string) (*memory.Fact, error) {
	return e.transitionFact(ctx, id, memory.StatusConfirmed, string(memory.ActionPromote))
}

// RetractFact explicitly invalidates a staged or confirmed fact.
func (e *Engine) RetractFact(ctx context.Context, id string) (*memory.Fact, error) {
	return e.transitionFact(ctx, id, memory.StatusRetracted, "retract")
}

func (e *Engine) transitionFact(ctx context.Context, id string, to memory.Status, action string) (*memory.Fact, error) {
	f, err := e.Store.GetFact(ctx, id)
	if err != nil {
		return nil, err
	}
	var next memory.Fact
	if to == memory.StatusConfirmed {
		next, err = memory.Promote(*f, e.now())
	} else {
		next, err = memory.Retract(*f, e.now())
	}
	if err != nil {
		return nil, err
	}
	if err := e.Store.UpdateFactStatus(ctx, id, f.Status, next.Status, next.ValidUntil); err != nil {
		if errors.Is(err, memory.ErrConcurrentModification) {
			e.Metrics.CASConflict()
		}
		return nil, fmt.Errorf("%s fact: %w", action, err)
	}
	e.Metrics.Transition(action)
	return &next, nil
}

// RecordInteraction appends a session to the owner's timeline.
func (e *Engine) RecordInteraction(ctx context.Context, in memory.Interaction) (*memory.Interaction, error) {
	if strings.TrimSpace(in.OwnerID) == "" {
		return nil, &memory.ValidationError{Kind: "interaction", Problems: []string{"owner_id: required"}}
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = e.now()
	}
	stored, err := e.Store.InsertInteraction(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("record interaction: %w", err)
	}
	return stored, nil
}
