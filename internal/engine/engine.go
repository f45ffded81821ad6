package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jacq-os/jacq/internal/memory"
	"github.com/jacq-os/jacq/internal/metrics"
)

// Options tunes the engine's collaborator timeouts and background work.
type Options struct {
	StoreTimeout        time.Duration
	Anchor              AnchorOptions
	TouchOnRetrieve     bool
	RecentInteractions  int
	MaintenanceInterval time.Duration
	EmbedConcurrency    int
}

// DefaultOptions returns the stock engine options.
func DefaultOptions() Options {
	return Options{
		StoreTimeout:        time.Second,
		Anchor:              DefaultAnchorOptions(),
		TouchOnRetrieve:     true,
		RecentInteractions:  3,
		MaintenanceInterval: 24 * time.Hour,
		EmbedConcurrency:    4,
	}
}

// Engine orchestrates ingestion, retrieval, maintenance and embedding.
type Engine struct {
	Store    Backend
	Vectors  VectorStore
	Embedder Embedder
	Policy   memory.Policy
	Options  Options
	Log      *zap.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time

	anchors  *AnchorSelector
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates an Engine over the given backend. When the backend also stores
// vectors, SetEmbedder enables semantic anchor search.
func New(backend Backend, policy memory.Policy, opts Options, log *zap.Logger, m *metrics.Metrics) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		Store:   backend,
		Policy:  policy,
		Options: opts,
		Log:     log,
		Metrics: m,
		Now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	if v, ok := backend.(VectorStore); ok {
		e.Vectors = v
	}
	e.anchors = NewAnchorSelector(backend, nil, opts.Anchor, log.Named("anchors"), m)
	return e
}

// SetEmbedder configures the embedding provider and rebuilds the anchor
// selector around a vector searcher. Call it before serving requests.
func (e *Engine) SetEmbedder(emb Embedder) {
	e.Embedder = emb
	var searcher Searcher
	if emb != nil && e.Vectors != nil {
		searcher = NewVectorSearcher(e.Vectors, emb)
	}
	e.anchors = NewAnchorSelector(e.Store, searcher, e.Options.Anchor, e.Log.Named("anchors"), e.Metrics)
}

// SetSearcher installs an arbitrary Searcher for anchor selection.
func (e *Engine) SetSearcher(s Searcher) {
	e.anchors = NewAnchorSelector(e.Store, s, e.Options.Anchor, e.Log.Named("anchors"), e.Metrics)
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// Retriever returns a read pipeline bound to the engine's collaborators.
func (e *Engine) Retriever() *Retriever {
	return &Retriever{
		Store:        e.Store,
		Entities:     e.Store,
		Anchors:      e.anchors,
		Policy:       e.Policy,
		StoreTimeout: e.Options.StoreTimeout,
		RecentLimit:  e.Options.RecentInteractions,
		Now:          e.now,
		Log:          e.Log.Named("retrieve"),
		Metrics:      e.Metrics,
	}
}

// Retrieve builds the memory context for a query and, when TouchOnRetrieve is
// set, records one access on every returned fact. The returned scores reflect
// the state before those accesses.
func (e *Engine) Retrieve(ctx context.Context, ownerID, query string) *memory.MemoryContext {
	mc := e.Retriever().Retrieve(ctx, ownerID, query)
	if e.Options.TouchOnRetrieve {
		for _, sf := range mc.Facts {
			if _, err := e.TouchFact(ctx, sf.Fact.ID); err != nil {
				e.Log.Warn("record access failed", zap.String("fact", sf.Fact.ID), zap.Error(err))
			}
		}
	}
	return mc
}

// Maintainer returns a maintenance runner bound to the engine's store.
func (e *Engine) Maintainer() *Maintainer {
	return &Maintainer{
		Store:   e.Store,
		Policy:  e.Policy,
		Log:     e.Log.Named("maintenance"),
		Metrics: e.Metrics,
	}
}

// RunMaintenance runs one maintenance batch at the current time.
func (e *Engine) RunMaintenance(ctx context.Context) (Report, error) {
	return e.Maintainer().Run(ctx, e.now())
}

// StartMaintenanceTimer runs maintenance on startup and then every
// MaintenanceInterval until Stop is called.
func (e *Engine) StartMaintenanceTimer() {
	e.maintain()

	interval := e.Options.MaintenanceInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.maintain()
			case <-e.stopCh:
				return
			}
		}
	}()
}

func (e *Engine) maintain() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-e.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := e.RunMaintenance(ctx); err != nil {
		e.Log.Error("maintenance failed", zap.Error(err))
	}
}

// Stop shuts down the engine's background goroutines and waits for them.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

// EmbedEntity generates and stores an embedding for a single entity.
func (e *Engine) EmbedEntity(ctx context.Context, ent memory.Entity) error {
	if e.Embedder == nil || e.Vectors == nil {
		return nil
	}
	vec, err := e.Embedder.Embed(ctx, EntityDocument(ent))
	if err != nil {
		return fmt.Errorf("embed entity %s: %w", ent.ID, err)
	}
	return e.Vectors.SaveVector(ctx, ent.ID, vec, e.Embedder.Model())
}

// EmbedMissing embeds every entity of the owner that has no vector or whose
// vector came from a different model. At most EmbedConcurrency embeddings run
// at once. Individual failures are logged and skipped.
func (e *Engine) EmbedMissing(ctx context.Context, ownerID string) (int, error) {
	if e.Embedder == nil || e.Vectors == nil {
		return 0, nil
	}

	entities, err := e.Store.ListEntities(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("list entities: %w", err)
	}

	limit := e.Options.EmbedConcurrency
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var embedded atomic.Int64
	model := e.Embedder.Model()
	for _, ent := range entities {
		g.Go(func() error {
			existing, err := e.Vectors.GetVector(gctx, ent.ID)
			if err != nil {
				e.Log.Warn("embed missing: get vector", zap.String("entity", ent.ID), zap.Error(err))
				return nil
			}
			if existing != nil && existing.Model == model {
				return nil
			}
			if err := e.EmbedEntity(gctx, ent); err != nil {
				e.Log.Warn("embed missing", zap.String("entity", ent.ID), zap.Error(err))
				return nil
			}
			embedded.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(embedded.Load()), err
	}
	return int(embedded.Load()), ctx.Err()
}
