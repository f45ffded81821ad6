package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jacq-os/jacq/internal/memory"
)

// TraversalResult is the output of one spreading-activation walk.
type TraversalResult struct {
	Facts []memory.Fact
	// Hops is the number of hops actually expanded.
	Hops int
	// Err is set when a store call failed and the walk stopped early.
	// Facts still holds everything collected before the failure.
	Err error
}

// traversal owns its frontier and visited set; one is created per walk.
type traversal struct {
	store   Store
	policy  memory.Policy
	timeout time.Duration

	frontier []string
	visited  map[string]bool
	facts    []memory.Fact
}

// Traverse expands breadth-first from the anchors over outgoing staged and
// confirmed facts. It stops when MaxHops hops have run, the frontier is empty,
// or MaxFacts facts have been collected (checked before each hop). The result
// is truncated to MaxFacts and is deterministic for a fixed store snapshot.
// Each store call is bounded by timeout when timeout > 0.
func Traverse(ctx context.Context, s Store, anchors []string, p memory.Policy, timeout time.Duration) TraversalResult {
	t := &traversal{
		store:    s,
		policy:   p,
		timeout:  timeout,
		frontier: dedupe(anchors),
		visited:  make(map[string]bool),
	}
	return t.run(ctx)
}

func (t *traversal) run(ctx context.Context) TraversalResult {
	var res TraversalResult
	for res.Hops < t.policy.MaxHops && len(t.frontier) > 0 && len(t.facts) < t.policy.MaxFacts {
		if err := t.hop(ctx); err != nil {
			res.Err = err
			break
		}
		res.Hops++
	}
	res.Facts = t.facts
	if len(res.Facts) > t.policy.MaxFacts {
		res.Facts = res.Facts[:t.policy.MaxFacts]
	}
	return res
}

func (t *traversal) hop(ctx context.Context) error {
	var next []string
	queued := make(map[string]bool)
	for _, id := range t.frontier {
		if t.visited[id] {
			continue
		}
		t.visited[id] = true

		facts, err := t.fetch(ctx, id)
		if err != nil {
			return fmt.Errorf("expand %s: %w", id, err)
		}
		for _, f := range facts {
			t.facts = append(t.facts, f)
			if obj, ok := f.Object.EntityID(); ok && !t.visited[obj] && !queued[obj] {
				queued[obj] = true
				next = append(next, obj)
			}
		}
	}
	t.frontier = next
	return nil
}

func (t *traversal) fetch(ctx context.Context, entityID string) ([]memory.Fact, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	facts, err := t.store.FactsBySubject(ctx, entityID, liveStatuses, t.policy.PerEntityFactLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memory.ErrCollaboratorUnavailable, err)
	}
	return facts, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
