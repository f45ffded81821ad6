package memory

import "time"

// EntityType classifies a node in the memory graph.
type EntityType string

const (
	EntityPerson     EntityType = "person"
	EntityProject    EntityType = "project"
	EntityConcept    EntityType = "concept"
	EntityDecision   EntityType = "decision"
	EntityPreference EntityType = "preference"
)

// Status is the lifecycle state of a fact.
type Status string

const (
	StatusStaged     Status = "staged"
	StatusConfirmed  Status = "confirmed"
	StatusSuperseded Status = "superseded"
	StatusRetracted  Status = "retracted"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusSuperseded || s == StatusRetracted
}

// Live reports whether a fact with this status takes part in retrieval.
func (s Status) Live() bool {
	return s == StatusStaged || s == StatusConfirmed
}

// Source records where a fact was learned. It drives the trust weight in Score.
type Source string

const (
	SourceUserEdit     Source = "user_edit"
	SourceFile         Source = "file"
	SourceSystem       Source = "system"
	SourceConversation Source = "conversation"
)

// Provenance records how a fact was derived.
type Provenance string

const (
	ProvenanceExplicit  Provenance = "explicit"
	ProvenanceInference Provenance = "inference"
	ProvenanceImport    Provenance = "import"
)

// Entity is a node: a person, project, concept, decision or preference.
type Entity struct {
	ID            string     `json:"id"`
	OwnerID       string     `json:"owner_id" validate:"required"`
	Type          EntityType `json:"type" validate:"required,oneof=person project concept decision preference"`
	Name          string     `json:"name" validate:"required"`
	Aliases       []string   `json:"aliases,omitempty" validate:"dive,required"`
	Embedding     []float64  `json:"-"` // set by single-entity lookups only
	MentionCount  int        `json:"mention_count" validate:"gte=0"`
	LastMentioned *time.Time `json:"last_mentioned,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// IsSelf reports whether the entity stands for the owner of the graph.
// By convention the owner's own entity shares its ID with the owner ID.
func (e Entity) IsSelf() bool {
	return e.ID != "" && e.ID == e.OwnerID
}

// Fact is an edge (relationship to another entity) or an attribute (literal value)
// hanging off a subject entity.
type Fact struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id" validate:"required"`
	SubjectID    string     `json:"subject_id" validate:"required"`
	Predicate    string     `json:"predicate" validate:"required"`
	Object       Object     `json:"object"`
	Confidence   float64    `json:"confidence" validate:"gte=0,lte=1"`
	Status       Status     `json:"status" validate:"required,oneof=staged confirmed superseded retracted"`
	Source       Source     `json:"source" validate:"required,oneof=user_edit file system conversation"`
	Provenance   Provenance `json:"provenance" validate:"required,oneof=explicit inference import"`
	AccessCount  int        `json:"access_count" validate:"gte=0"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
	ValidUntil   *time.Time `json:"valid_until,omitempty"`
}

// LastTouched returns LastAccessed, falling back to the creation timestamp.
func (f Fact) LastTouched() time.Time {
	if f.LastAccessed != nil {
		return *f.LastAccessed
	}
	return f.Timestamp
}

// Interaction is an immutable record of one conversation session.
type Interaction struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	EntityID      string    `json:"entity_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Topics        []string  `json:"topics,omitempty"`
	FactsCreated  []string  `json:"facts_created,omitempty"`
	FactsAccessed []string  `json:"facts_accessed,omitempty"`
}

// ScoredFact pairs a fact with its relevance at retrieval time.
type ScoredFact struct {
	Fact  Fact    `json:"fact"`
	Score float64 `json:"score"`
}

// MemoryContext is the ephemeral result of one retrieval. It is never persisted.
type MemoryContext struct {
	Entities      []Entity      `json:"entities"`
	Facts         []ScoredFact  `json:"facts"`
	Interactions  []Interaction `json:"interactions,omitempty"`
	RetrievedAt   time.Time     `json:"retrieved_at"`
	AnchorIDs     []string      `json:"anchor_ids"`
	HopDepth      int           `json:"hop_depth"`
	Narrative     string        `json:"narrative"`
	TokenEstimate int           `json:"token_estimate"`
}

// Empty reports whether the context carries no facts.
func (c *MemoryContext) Empty() bool {
	return c == nil || len(c.Facts) == 0
}
