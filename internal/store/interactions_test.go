package store

import (
	"context"
	"testing"
	"time"

	"github.com/jacq-os/jacq/internal/memory"
)

func TestRecentInteractions(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for i, topic := range []string{"setup", "schema", "retrieval", "narrative"} {
		_, err := db.InsertInteraction(ctx, memory.Interaction{
			OwnerID:   "owner",
			Timestamp: t0.Add(time.Duration(i) * time.Hour),
			Topics:    []string{topic},
		})
		if err != nil {
			t.Fatalf("InsertInteraction: %v", err)
		}
	}
	if _, err := db.InsertInteraction(ctx, memory.Interaction{OwnerID: "other", Topics: []string{"x"}}); err != nil {
		t.Fatalf("InsertInteraction: %v", err)
	}

	got, err := db.RecentInteractions(ctx, "owner", 3)
	if err != nil {
		t.Fatalf("RecentInteractions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	want := []string{"narrative", "retrieval", "schema"}
	for i, topic := range want {
		if got[i].Topics[0] != topic {
			t.Errorf("got[%d].Topics = %v, want [%s]", i, got[i].Topics, topic)
		}
	}
	if got[0].ID == "" {
		t.Error("expected generated ID")
	}
}

func TestInteractionRoundTripsLists(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	in, err := db.InsertInteraction(ctx, memory.Interaction{
		OwnerID:       "owner",
		EntityID:      "owner",
		Timestamp:     t0,
		FactsCreated:  []string{"f1", "f2"},
		FactsAccessed: []string{"f3"},
	})
	if err != nil {
		t.Fatalf("InsertInteraction: %v", err)
	}

	got, err := db.RecentInteractions(ctx, "owner", 1)
	if err != nil {
		t.Fatalf("RecentInteractions: %v", err)
	}
	if got[0].ID != in.ID || got[0].EntityID != "owner" {
		t.Errorf("got %+v", got[0])
	}
	if len(got[0].FactsCreated) != 2 || len(got[0].FactsAccessed) != 1 || len(got[0].Topics) != 0 {
		t.Errorf("lists = %v %v %v", got[0].Topics, got[0].FactsCreated, got[0].FactsAccessed)
	}
}
