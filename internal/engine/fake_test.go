package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jacq-os/jacq/internal/memory"
	"github.com/jacq-os/jacq/internal/store"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeStore is an in-memory Backend with failure injection.
type fakeStore struct {
	mu           sync.Mutex
	entities     map[string]memory.Entity
	order        []string
	facts        map[string]memory.Fact
	interactions []memory.Interaction

	subjectErr   map[string]error // FactsBySubject failures per entity
	listErr      error
	entitiesErr  error
	recentErr    error
	statusErr    error
	updateErr    map[string]error // UpdateFactStatus failures per fact
	beforeUpdate func(id string)  // runs before a compare-and-set, outside the lock

	subjectCalls []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entities:   make(map[string]memory.Entity),
		facts:      make(map[string]memory.Fact),
		subjectErr: make(map[string]error),
		updateErr:  make(map[string]error),
	}
}

func (s *fakeStore) addEntity(id, name string, typ memory.EntityType, aliases ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[id] = memory.Entity{ID: id, OwnerID: "owner", Type: typ, Name: name, Aliases: aliases, CreatedAt: testNow}
	s.order = append(s.order, id)
}

func (s *fakeStore) addFact(f memory.Fact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts[f.ID] = f
}

func (s *fakeStore) setStatus(id string, st memory.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.facts[id]
	f.Status = st
	s.facts[id] = f
}

func (s *fakeStore) fact(id string) memory.Fact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facts[id]
}

func (s *fakeStore) FactsBySubject(_ context.Context, entityID string, statuses []memory.Status, limit int) ([]memory.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjectCalls = append(s.subjectCalls, entityID)
	if err := s.subjectErr[entityID]; err != nil {
		return nil, err
	}
	want := make(map[memory.Status]bool)
	for _, st := range statuses {
		want[st] = true
	}
	var out []memory.Fact
	for _, f := range s.facts {
		if f.SubjectID == entityID && want[f.Status] {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) FactsByStatus(_ context.Context, status memory.Status) ([]memory.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	var out []memory.Fact
	for _, f := range s.facts {
		if f.Status == status {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) UpdateFactStatus(_ context.Context, id string, expected, next memory.Status, validUntil *time.Time) error {
	if s.beforeUpdate != nil {
		s.beforeUpdate(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateErr[id]; err != nil {
		return err
	}
	f, ok := s.facts[id]
	if !ok {
		return fmt.Errorf("fact %s: %w", id, memory.ErrNotFound)
	}
	if f.Status != expected {
		return fmt.Errorf("fact %s: %w", id, memory.ErrConcurrentModification)
	}
	f.Status = next
	f.ValidUntil = validUntil
	s.facts[id] = f
	return nil
}

func (s *fakeStore) RecordAccess(_ context.Context, id string) (*memory.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.facts[id]
	if !ok {
		return nil, fmt.Errorf("fact %s: %w", id, memory.ErrNotFound)
	}
	f = memory.Touch(f, testNow)
	s.facts[id] = f
	return &f, nil
}

func (s *fakeStore) InsertFact(_ context.Context, f memory.Fact) (*memory.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts[f.ID] = f
	return &f, nil
}

func (s *fakeStore) GetFact(_ context.Context, id string) (*memory.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.facts[id]
	if !ok {
		return nil, fmt.Errorf("fact %s: %w", id, memory.ErrNotFound)
	}
	return &f, nil
}

func (s *fakeStore) EntitiesByIDs(_ context.Context, ids []string) ([]memory.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entitiesErr != nil {
		return nil, s.entitiesErr
	}
	var out []memory.Entity
	// Reverse order: callers must not rely on the store's ordering.
	for i := len(ids) - 1; i >= 0; i-- {
		if e, ok := s.entities[ids[i]]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) ListEntities(_ context.Context, ownerID string) ([]memory.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []memory.Entity
	for _, id := range s.order {
		if e := s.entities[id]; e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertEntity(_ context.Context, e memory.Entity) (*memory.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = e
	s.order = append(s.order, e.ID)
	return &e, nil
}

func (s *fakeStore) MentionEntity(_ context.Context, id, alias string) (*memory.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("entity %s: %w", id, memory.ErrNotFound)
	}
	e.MentionCount++
	if alias != "" {
		e.Aliases = append(e.Aliases, alias)
	}
	s.entities[id] = e
	return &e, nil
}

func (s *fakeStore) RecentInteractions(_ context.Context, ownerID string, limit int) ([]memory.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	var out []memory.Interaction
	for i := len(s.interactions) - 1; i >= 0 && len(out) < limit; i-- {
		if s.interactions[i].OwnerID == ownerID {
			out = append(out, s.interactions[i])
		}
	}
	return out, nil
}

func (s *fakeStore) InsertInteraction(_ context.Context, in memory.Interaction) (*memory.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions = append(s.interactions, in)
	return &in, nil
}

// fact builds a live fact for tests. Relationship targets are given as "@id".
func fact(id, subject, predicate, object string, confidence float64, mutate ...func(*memory.Fact)) memory.Fact {
	obj := memory.Attribute(object)
	if len(object) > 1 && object[0] == '@' {
		obj = memory.Relationship(object[1:])
	}
	f := memory.Fact{
		ID:         id,
		OwnerID:    "owner",
		SubjectID:  subject,
		Predicate:  predicate,
		Object:     obj,
		Confidence: confidence,
		Status:     memory.StatusStaged,
		Source:     memory.SourceConversation,
		Provenance: memory.ProvenanceExplicit,
		Timestamp:  testNow.Add(-time.Hour),
	}
	for _, m := range mutate {
		m(&f)
	}
	return f
}

func daysAgo(n int) *time.Time {
	t := testNow.AddDate(0, 0, -n)
	return &t
}

func factIDs(facts []memory.Fact) []string {
	ids := make([]string, len(facts))
	for i, f := range facts {
		ids[i] = f.ID
	}
	return ids
}

// testDB opens an in-memory SQLite store pinned to testNow.
func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	db.Now = func() time.Time { return testNow }
	t.Cleanup(func() { db.Close() })
	return db
}

func testEngine(t *testing.T, backend Backend) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.Anchor.SearchTimeout = 200 * time.Millisecond
	e := New(backend, memory.DefaultPolicy(), opts, nil, nil)
	e.Now = func() time.Time { return testNow }
	return e
}
