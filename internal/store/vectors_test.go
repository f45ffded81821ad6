package store

import (
	"context"
	"math"
	"testing"

	"github.com/jacq-os/jacq/internal/memory"
)

func TestEncodeDecodeEmbedding(t *testing.T) {
	original := []float64{1.0, -0.5, 0.333, math.Pi, 0.0}
	blob := encodeEmbedding(original)
	decoded := decodeEmbedding(blob)

	if len(decoded) != len(original) {
		t.Fatalf("length mismatch: %d vs %d", len(decoded), len(original))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Errorf("index %d: got %f, want %f", i, decoded[i], original[i])
		}
	}
}

func TestSaveAndGetVector(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustEntity(t, db, "p", "JACQ", memory.EntityProject)

	embedding := []float64{0.1, 0.2, 0.3, 0.4, 0.5}
	if err := db.SaveVector(ctx, "p", embedding, "test-model"); err != nil {
		t.Fatalf("SaveVector: %v", err)
	}

	v, err := db.GetVector(ctx, "p")
	if err != nil {
		t.Fatalf("GetVector: %v", err)
	}
	if v == nil {
		t.Fatal("expected vector, got nil")
	}
	if v.Model != "test-model" {
		t.Errorf("model = %q, want %q", v.Model, "test-model")
	}
	if v.Dimensions != 5 {
		t.Errorf("dimensions = %d, want 5", v.Dimensions)
	}
	if len(v.Embedding) != 5 {
		t.Fatalf("embedding length = %d, want 5", len(v.Embedding))
	}
	for i := range embedding {
		if v.Embedding[i] != embedding[i] {
			t.Errorf("embedding[%d] = %f, want %f", i, v.Embedding[i], embedding[i])
		}
	}
}

func TestSaveVectorReplace(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustEntity(t, db, "p", "JACQ", memory.EntityProject)

	db.SaveVector(ctx, "p", []float64{0.1, 0.2}, "model-a")
	db.SaveVector(ctx, "p", []float64{0.3, 0.4, 0.5}, "model-b")

	v, _ := db.GetVector(ctx, "p")
	if v.Model != "model-b" {
		t.Errorf("model = %q, want %q", v.Model, "model-b")
	}
	if v.Dimensions != 3 {
		t.Errorf("dimensions = %d, want 3", v.Dimensions)
	}
}

func TestGetVectorNotFound(t *testing.T) {
	db := testDB(t)

	v, err := db.GetVector(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetVector: %v", err)
	}
	if v != nil {
		t.Error("expected nil for nonexistent vector")
	}
}

func TestOwnerVectors(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustEntity(t, db, "a", "Alice", memory.EntityPerson)
	mustEntity(t, db, "b", "Bob", memory.EntityPerson)
	mustEntity(t, db, "c", "Carol", memory.EntityPerson)

	db.SaveVector(ctx, "a", []float64{0.1, 0.2}, "test")
	db.SaveVector(ctx, "b", []float64{0.3, 0.4}, "test")

	all, err := db.OwnerVectors(ctx, "owner")
	if err != nil {
		t.Fatalf("OwnerVectors: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 vectors, got %d", len(all))
	}

	others, _ := db.OwnerVectors(ctx, "nobody")
	if len(others) != 0 {
		t.Errorf("expected no vectors for unknown owner, got %d", len(others))
	}
}
