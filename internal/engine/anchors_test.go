package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacq-os/jacq/internal/memory"
	"github.com/jacq-os/jacq/internal/metrics"
)

type stubSearcher struct {
	ids       []string
	embedErr  error
	searchErr error
	block     bool
	calls     int
}

func (s *stubSearcher) Embed(ctx context.Context, _ string) ([]float64, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.embedErr != nil {
		return nil, s.embedErr
	}
	return []float64{1, 0}, nil
}

func (s *stubSearcher) TopKByCosine(_ context.Context, _ string, _ []float64, k int) ([]string, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if len(s.ids) > k {
		return s.ids[:k], nil
	}
	return s.ids, nil
}

func anchorStore() *fakeStore {
	s := newFakeStore()
	s.addEntity("owner", "Joshua", memory.EntityPerson, "me")
	s.addEntity("jacq", "JACQ", memory.EntityProject, "jacq-os")
	s.addEntity("go", "Go", memory.EntityConcept, "golang")
	s.addEntity("sqlite", "SQLite", memory.EntityConcept)
	return s
}

func TestSelectUsesSemanticPath(t *testing.T) {
	s := anchorStore()
	a := NewAnchorSelector(s, &stubSearcher{ids: []string{"go", "jacq", "go", "sqlite"}}, DefaultAnchorOptions(), nil, nil)

	got := a.Select(context.Background(), "owner", "anything", 3)
	assert.Equal(t, FallbackNone, got.Fallback)
	assert.Equal(t, []string{"go", "jacq"}, got.IDs)
}

func TestSelectEmptySemanticResultDoesNotFallBack(t *testing.T) {
	a := NewAnchorSelector(anchorStore(), &stubSearcher{}, DefaultAnchorOptions(), nil, nil)

	got := a.Select(context.Background(), "owner", "JACQ", 3)
	assert.Equal(t, FallbackNone, got.Fallback)
	assert.Empty(t, got.IDs)
}

func TestSelectFallsBackOnSearchError(t *testing.T) {
	m := metrics.New()
	a := NewAnchorSelector(anchorStore(), &stubSearcher{embedErr: errors.New("ollama down")}, DefaultAnchorOptions(), nil, m)

	got := a.Select(context.Background(), "owner", "jacq status", 3)
	assert.Equal(t, FallbackError, got.Fallback)
	assert.Equal(t, []string{"jacq"}, got.IDs)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnchorFallbacks.WithLabelValues(FallbackError)))
}

func TestSelectFallsBackOnTimeout(t *testing.T) {
	opts := DefaultAnchorOptions()
	opts.SearchTimeout = 20 * time.Millisecond
	a := NewAnchorSelector(anchorStore(), &stubSearcher{block: true}, opts, nil, nil)

	start := time.Now()
	got := a.Select(context.Background(), "owner", "golang tips", 3)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, FallbackTimeout, got.Fallback)
	assert.Equal(t, []string{"go"}, got.IDs)
}

func TestSelectFallsBackOnEmptyIndex(t *testing.T) {
	a := NewAnchorSelector(anchorStore(), &stubSearcher{searchErr: ErrNoIndex}, DefaultAnchorOptions(), nil, nil)

	got := a.Select(context.Background(), "owner", "sqlite", 3)
	assert.Equal(t, FallbackNoIndex, got.Fallback)
	assert.Equal(t, []string{"sqlite"}, got.IDs)
}

func TestSelectBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	opts := DefaultAnchorOptions()
	opts.BreakerFailures = 2
	opts.BreakerCooldown = time.Minute
	searcher := &stubSearcher{embedErr: errors.New("boom")}
	a := NewAnchorSelector(anchorStore(), searcher, opts, nil, nil)

	for i := 0; i < 2; i++ {
		assert.Equal(t, FallbackError, a.Select(context.Background(), "owner", "go", 3).Fallback)
	}
	got := a.Select(context.Background(), "owner", "go", 3)
	assert.Equal(t, FallbackBreakerOpen, got.Fallback)
	assert.Equal(t, []string{"go"}, got.IDs)
	assert.Equal(t, 2, searcher.calls, "open breaker short-circuits the searcher")
}

func TestSelectNoSearcher(t *testing.T) {
	a := NewAnchorSelector(anchorStore(), nil, DefaultAnchorOptions(), nil, nil)

	got := a.Select(context.Background(), "owner", "What does ME think about JACQ and Go?", 2)
	assert.Equal(t, FallbackNoSearcher, got.Fallback)
	assert.Equal(t, []string{"owner", "jacq"}, got.IDs, "store order, capped at k")
}

func TestSelectFallbackListFailureYieldsNoAnchors(t *testing.T) {
	s := anchorStore()
	s.listErr = errors.New("locked")
	a := NewAnchorSelector(s, nil, DefaultAnchorOptions(), nil, nil)

	got := a.Select(context.Background(), "owner", "jacq", 3)
	assert.Empty(t, got.IDs)
}

func TestKeywordAnchors(t *testing.T) {
	entities, err := anchorStore().ListEntities(context.Background(), "owner")
	require.NoError(t, err)

	cases := []struct {
		query string
		k     int
		want  []string
	}{
		{"JACQ", 3, []string{"jacq"}},
		{"jacq-os roadmap", 3, []string{"jacq"}}, // query contains alias
		{"sql", 3, []string{"sqlite"}},           // name contains query
		{"GOLANG", 3, []string{"go"}},            // alias, case-insensitive
		{"unrelated words", 3, nil},
		{"   ", 3, nil},
		{"jacq and sqlite and go", 0, nil},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, KeywordAnchors(entities, tc.query, tc.k), "query %q", tc.query)
	}
}
