package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jacq-os/jacq/internal/config"
	"github.com/jacq-os/jacq/internal/engine"
	"github.com/jacq-os/jacq/internal/metrics"
	"github.com/jacq-os/jacq/internal/store"
)

// tfidfTerms caps the vocabulary of the fallback embedder.
const tfidfTerms = 512

// app bundles what every command needs: configuration, logger, database and
// the engine over it.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	db      *store.DB
	engine  *engine.Engine
	metrics *metrics.Metrics
}

// newApp loads configuration and opens the database. The caller must Close it.
func newApp() (*app, error) {
	cfg, err := config.LoadWith(settings, configPath)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	m := metrics.New()
	eng := engine.New(db, cfg.Policy(), cfg.EngineOptions(), log.Named("engine"), m)
	return &app{cfg: cfg, log: log, db: db, engine: eng, metrics: m}, nil
}

func (a *app) Close() {
	a.engine.Stop()
	a.db.Close()
	_ = a.log.Sync()
}

// enableEmbeddings selects the configured embedder and installs it on the
// engine. A nil embedder leaves keyword anchoring in place.
func (a *app) enableEmbeddings(ctx context.Context) error {
	emb, err := selectEmbedder(ctx, a.cfg, a.db)
	if err != nil {
		return err
	}
	if emb != nil {
		a.engine.SetEmbedder(emb)
		a.log.Info("embedder ready", zap.String("model", emb.Model()))
	}
	return nil
}

// selectEmbedder resolves embedding.provider. "auto" uses Ollama when it
// answers a probe and falls back to TF-IDF otherwise.
func selectEmbedder(ctx context.Context, cfg config.Config, entities engine.EntityStore) (engine.Embedder, error) {
	ec := cfg.Embedding
	switch ec.Provider {
	case "none":
		return nil, nil
	case "ollama":
		return engine.NewOllamaEmbedder(ec.OllamaURL, ec.Model, ec.Dimensions), nil
	case "openai":
		if ec.OpenAIKey == "" {
			return nil, errors.New("embedding.openai_key is required for the openai provider")
		}
		return engine.NewOpenAIEmbedder(ec.OpenAIKey, ec.OpenAIURL, ec.Model, ec.Dimensions), nil
	case "tfidf":
		return engine.NewTFIDFEmbedder(ctx, entities, cfg.Owner, tfidfTerms)
	default:
		if engine.ProbeOllama(ec.OllamaURL, ec.Model) {
			return engine.NewOllamaEmbedder(ec.OllamaURL, ec.Model, ec.Dimensions), nil
		}
		return engine.NewTFIDFEmbedder(ctx, entities, cfg.Owner, tfidfTerms)
	}
}

func newLogger(c config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
