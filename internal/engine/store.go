package engine

import (
	"context"
	"time"

	"github.com/jacq-os/jacq/internal/memory"
	"github.com/jacq-os/jacq/internal/store"
)

// Store is the fact side of the persistence collaborator.
type Store interface {
	// FactsBySubject returns outgoing facts of entityID with one of statuses,
	// confidence descending then ID ascending, at most limit (<= 0: no cap).
	FactsBySubject(ctx context.Context, entityID string, statuses []memory.Status, limit int) ([]memory.Fact, error)
	FactsByStatus(ctx context.Context, status memory.Status) ([]memory.Fact, error)
	// UpdateFactStatus is compare-and-set on the prior status. It returns
	// memory.ErrConcurrentModification or memory.ErrNotFound on rejection.
	UpdateFactStatus(ctx context.Context, id string, expected, next memory.Status, validUntil *time.Time) error
	RecordAccess(ctx context.Context, id string) (*memory.Fact, error)
	InsertFact(ctx context.Context, f memory.Fact) (*memory.Fact, error)
	GetFact(ctx context.Context, id string) (*memory.Fact, error)
}

// EntityStore is the entity and timeline side of the persistence collaborator.
type EntityStore interface {
	EntitiesByIDs(ctx context.Context, ids []string) ([]memory.Entity, error)
	ListEntities(ctx context.Context, ownerID string) ([]memory.Entity, error)
	InsertEntity(ctx context.Context, e memory.Entity) (*memory.Entity, error)
	MentionEntity(ctx context.Context, id, alias string) (*memory.Entity, error)
	RecentInteractions(ctx context.Context, ownerID string, limit int) ([]memory.Interaction, error)
	InsertInteraction(ctx context.Context, in memory.Interaction) (*memory.Interaction, error)
}

// VectorStore persists entity embeddings for the vector searcher.
type VectorStore interface {
	SaveVector(ctx context.Context, entityID string, embedding []float64, model string) error
	GetVector(ctx context.Context, entityID string) (*store.VectorRecord, error)
	OwnerVectors(ctx context.Context, ownerID string) ([]store.VectorRecord, error)
}

// Backend is everything the Engine needs from persistence. *store.DB satisfies it.
type Backend interface {
	Store
	EntityStore
}

// Searcher ranks entities by semantic similarity to a query.
type Searcher interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	// TopKByCosine returns up to k entity IDs of ownerID, most similar first.
	TopKByCosine(ctx context.Context, ownerID string, vec []float64, k int) ([]string, error)
}

var (
	_ Backend     = (*store.DB)(nil)
	_ VectorStore = (*store.DB)(nil)
)

// liveStatuses are the statuses that take part in traversal.
var liveStatuses = []memory.Status{memory.StatusStaged, memory.StatusConfirmed}
