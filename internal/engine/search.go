package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrNoIndex is returned by VectorSearcher when the owner has no stored vectors
// for the active embedding model.
var ErrNoIndex = errors.New("no entity vectors indexed")

// SearchResult is one ranked entity.
type SearchResult struct {
	EntityID   string  `json:"entity_id"`
	Similarity float64 `json:"similarity"`
}

// VectorSearcher implements Searcher over embeddings stored per entity.
type VectorSearcher struct {
	Vectors  VectorStore
	Embedder Embedder
}

// NewVectorSearcher pairs a vector store with the embedder that produced it.
func NewVectorSearcher(vectors VectorStore, embedder Embedder) *VectorSearcher {
	return &VectorSearcher{Vectors: vectors, Embedder: embedder}
}

// Embed embeds the query text.
func (s *VectorSearcher) Embed(ctx context.Context, text string) ([]float64, error) {
	if s.Embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	vec, err := s.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vec, nil
}

// TopKByCosine returns up to k entity IDs of ownerID ranked by cosine
// similarity to vec. Only vectors from the current model with a positive
// similarity are considered; ties break by entity ID.
func (s *VectorSearcher) TopKByCosine(ctx context.Context, ownerID string, vec []float64, k int) ([]string, error) {
	results, err := s.Rank(ctx, ownerID, vec)
	if err != nil {
		return nil, err
	}
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.EntityID
	}
	return ids, nil
}

// Rank scores every indexed entity of the owner against vec.
func (s *VectorSearcher) Rank(ctx context.Context, ownerID string, vec []float64) ([]SearchResult, error) {
	if s.Vectors == nil || s.Embedder == nil {
		return nil, fmt.Errorf("vector searcher not configured")
	}
	vectors, err := s.Vectors.OwnerVectors(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}

	model := s.Embedder.Model()
	indexed := 0
	var results []SearchResult
	for _, v := range vectors {
		if v.Model != model {
			continue
		}
		indexed++
		similarity := CosineSimilarity(vec, v.Embedding)
		if similarity > 0 {
			results = append(results, SearchResult{EntityID: v.EntityID, Similarity: similarity})
		}
	}
	if indexed == 0 {
		return nil, ErrNoIndex
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].EntityID < results[j].EntityID
	})
	return results, nil
}
