package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// VectorRecord holds an embedding for an entity.
type VectorRecord struct {
	EntityID   string    `db:"entity_id"`
	Embedding  []float64 `db:"-"`
	Blob       []byte    `db:"embedding"`
	Model      string    `db:"model"`
	Dimensions int       `db:"dimensions"`
	CreatedAt  int64     `db:"created_at"`
}

// encodeEmbedding converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeEmbedding converts a binary BLOB back to []float64.
func decodeEmbedding(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

// SaveVector stores or replaces the embedding for an entity.
func (db *DB) SaveVector(ctx context.Context, entityID string, embedding []float64, model string) error {
	now := toMillis(db.now())
	blob := encodeEmbedding(embedding)

	_, err := db.ExecContext(ctx, `
		INSERT INTO entity_vectors (entity_id, embedding, model, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET embedding = ?, model = ?, dimensions = ?, created_at = ?
	`, entityID, blob, model, len(embedding), now,
		blob, model, len(embedding), now)
	if err != nil {
		return fmt.Errorf("save vector: %w", err)
	}
	return nil
}

// GetVector returns the embedding for an entity, or nil if not found.
func (db *DB) GetVector(ctx context.Context, entityID string) (*VectorRecord, error) {
	var v VectorRecord
	err := db.GetContext(ctx, &v, `
		SELECT entity_id, embedding, model, dimensions, created_at
		FROM entity_vectors WHERE entity_id = ?
	`, entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vector: %w", err)
	}
	v.Embedding = decodeEmbedding(v.Blob)
	v.Blob = nil
	return &v, nil
}

// OwnerVectors returns the stored vectors of every entity belonging to owner.
func (db *DB) OwnerVectors(ctx context.Context, ownerID string) ([]VectorRecord, error) {
	var records []VectorRecord
	err := db.SelectContext(ctx, &records, `
		SELECT v.entity_id, v.embedding, v.model, v.dimensions, v.created_at
		FROM entity_vectors v
		JOIN entities e ON e.id = v.entity_id
		WHERE e.owner_id = ?
		ORDER BY e.created_at, e.id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("owner vectors: %w", err)
	}
	for i := range records {
		records[i].Embedding = decodeEmbedding(records[i].Blob)
		records[i].Blob = nil
	}
	return records, nil
}
