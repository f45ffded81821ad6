package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/jacq-os/jacq/internal/memory"
	"github.com/jacq-os/jacq/internal/metrics"
)

// Fallback reasons reported by AnchorSelector.
const (
	FallbackNone        = ""
	FallbackNoSearcher  = "no_searcher"
	FallbackTimeout     = "timeout"
	FallbackBreakerOpen = "breaker_open"
	FallbackNoIndex     = "no_index"
	FallbackError       = "error"
)

// AnchorOptions bounds the semantic path of anchor selection.
type AnchorOptions struct {
	SearchTimeout time.Duration // embed + top-k, combined
	StoreTimeout  time.Duration // entity listing for the keyword fallback

	// Consecutive semantic failures that open the breaker, and how long it stays open.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// DefaultAnchorOptions returns the stock timeouts and breaker settings.
func DefaultAnchorOptions() AnchorOptions {
	return AnchorOptions{
		SearchTimeout:   2 * time.Second,
		StoreTimeout:    time.Second,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// Anchors is the outcome of one selection.
type Anchors struct {
	IDs []string
	// Fallback names why keyword matching was used, or is empty.
	Fallback string
}

// AnchorSelector resolves a query to seed entities. The breaker is the only
// state it carries across calls.
type AnchorSelector struct {
	entities EntityStore
	searcher Searcher
	opts     AnchorOptions
	breaker  *gobreaker.CircuitBreaker
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// NewAnchorSelector creates a selector. searcher may be nil, in which case every
// selection uses the keyword fallback.
func NewAnchorSelector(entities EntityStore, searcher Searcher, opts AnchorOptions, log *zap.Logger, m *metrics.Metrics) *AnchorSelector {
	if log == nil {
		log = zap.NewNop()
	}
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	a := &AnchorSelector{
		entities: entities,
		searcher: searcher,
		opts:     opts,
		log:      log,
		metrics:  m,
	}
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "anchor-search",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.Stringer("from", from), zap.Stringer("to", to))
		},
		IsSuccessful: func(err error) bool {
			// An empty index is a data condition, not a backend failure.
			return err == nil || errors.Is(err, ErrNoIndex)
		},
	})
	return a
}

// Select returns up to k entity IDs for the owner. It never fails: on any
// semantic-path problem it falls back to keyword matching, and a failing
// fallback yields no anchors.
func (a *AnchorSelector) Select(ctx context.Context, ownerID, query string, k int) Anchors {
	if k <= 0 {
		return Anchors{}
	}
	if a.searcher == nil {
		return a.fallback(ctx, ownerID, query, k, FallbackNoSearcher, nil)
	}

	out, err := a.breaker.Execute(func() (any, error) {
		sctx := ctx
		if a.opts.SearchTimeout > 0 {
			var cancel context.CancelFunc
			sctx, cancel = context.WithTimeout(ctx, a.opts.SearchTimeout)
			defer cancel()
		}
		vec, err := a.searcher.Embed(sctx, query)
		if err != nil {
			return nil, err
		}
		return a.searcher.TopKByCosine(sctx, ownerID, vec, k)
	})
	if err != nil {
		return a.fallback(ctx, ownerID, query, k, classifyFallback(err), err)
	}

	ids := dedupe(out.([]string))
	if len(ids) > k {
		ids = ids[:k]
	}
	return Anchors{IDs: ids}
}

func classifyFallback(err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return FallbackBreakerOpen
	case errors.Is(err, context.DeadlineExceeded):
		return FallbackTimeout
	case errors.Is(err, ErrNoIndex):
		return FallbackNoIndex
	default:
		return FallbackError
	}
}

func (a *AnchorSelector) fallback(ctx context.Context, ownerID, query string, k int, reason string, cause error) Anchors {
	a.metrics.AnchorFallback(reason)
	if cause != nil {
		a.log.Debug("anchor search unavailable, using keyword match",
			zap.String("reason", reason), zap.Error(cause))
	}

	if a.opts.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.StoreTimeout)
		defer cancel()
	}
	entities, err := a.entities.ListEntities(ctx, ownerID)
	if err != nil {
		a.metrics.Failure("anchors")
		a.log.Warn("keyword anchor fallback failed", zap.String("owner", ownerID), zap.Error(err))
		return Anchors{Fallback: reason}
	}
	return Anchors{IDs: KeywordAnchors(entities, query, k), Fallback: reason}
}

// KeywordAnchors returns up to k entity IDs, in the given order, whose name or
// any alias contains the query or is contained in it, ignoring case.
func KeywordAnchors(entities []memory.Entity, query string, k int) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || k <= 0 {
		return nil
	}
	var ids []string
	for _, e := range entities {
		if !entityMatches(e, q) {
			continue
		}
		ids = append(ids, e.ID)
		if len(ids) == k {
			break
		}
	}
	return ids
}

func entityMatches(e memory.Entity, q string) bool {
	candidates := append([]string{e.Name}, e.Aliases...)
	for _, c := range candidates {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if strings.Contains(c, q) || strings.Contains(q, c) {
			return true
		}
	}
	return false
}
