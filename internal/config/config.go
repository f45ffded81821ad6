package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/jacq-os/jacq/internal/engine"
	"github.com/jacq-os/jacq/internal/memory"
)

// EnvPrefix prefixes every environment override, e.g. JACQ_SERVER_PORT.
const EnvPrefix = "JACQ"

// Config holds all jacq configuration.
type Config struct {
	Owner       string            `mapstructure:"owner"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	Memory      MemoryConfig      `mapstructure:"memory"`
	Retrieval   RetrievalConfig   `mapstructure:"retrieval"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Bind string `mapstructure:"bind"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"` // empty resolves to store.DefaultDBPath()
}

type EmbeddingConfig struct {
	Provider    string `mapstructure:"provider"` // "auto", "ollama", "openai", "tfidf", "none"
	Model       string `mapstructure:"model"`
	Dimensions  int    `mapstructure:"dimensions"`
	OllamaURL   string `mapstructure:"ollama_url"`
	OpenAIKey   string `mapstructure:"openai_key"`
	OpenAIURL   string `mapstructure:"openai_url"`
	Concurrency int    `mapstructure:"concurrency"`
}

// MemoryConfig mirrors memory.Policy.
type MemoryConfig struct {
	PromotionThreshold   int     `mapstructure:"promotion_threshold"`
	DecayGracePeriodDays float64 `mapstructure:"decay_grace_period_days"`
	DecayRate            float64 `mapstructure:"decay_rate"`
	CleanupThreshold     float64 `mapstructure:"cleanup_threshold"`
	MinAccessProtection  int     `mapstructure:"min_access_protection"`
	ConflictConfidence   float64 `mapstructure:"conflict_confidence"`
	MaxHops              int     `mapstructure:"max_hops"`
	MaxFacts             int     `mapstructure:"max_facts"`
	PerEntityFactLimit   int     `mapstructure:"per_entity_fact_limit"`
	AnchorTopK           int     `mapstructure:"anchor_top_k"`
}

type RetrievalConfig struct {
	StoreTimeout       time.Duration `mapstructure:"store_timeout"`
	EmbedTimeout       time.Duration `mapstructure:"embed_timeout"`
	BreakerFailures    uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown    time.Duration `mapstructure:"breaker_cooldown"`
	TouchOnRetrieve    bool          `mapstructure:"touch_on_retrieve"`
	RecentInteractions int           `mapstructure:"recent_interactions"`
}

type MaintenanceConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	p := memory.DefaultPolicy()
	return Config{
		Owner: "default",
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Embedding: EmbeddingConfig{
			Provider:    "auto",
			Model:       "nomic-embed-text",
			Dimensions:  768,
			OllamaURL:   "http://localhost:11434",
			Concurrency: 4,
		},
		Memory: MemoryConfig{
			PromotionThreshold:   p.PromotionThreshold,
			DecayGracePeriodDays: p.GracePeriodDays,
			DecayRate:            p.DecayRate,
			CleanupThreshold:     p.CleanupThreshold,
			MinAccessProtection:  p.MinAccessProtection,
			ConflictConfidence:   p.ConflictConfidence,
			MaxHops:              p.MaxHops,
			MaxFacts:             p.MaxFacts,
			PerEntityFactLimit:   p.PerEntityFactLimit,
			AnchorTopK:           p.AnchorTopK,
		},
		Retrieval: RetrievalConfig{
			StoreTimeout:       time.Second,
			EmbedTimeout:       2 * time.Second,
			BreakerFailures:    5,
			BreakerCooldown:    30 * time.Second,
			TouchOnRetrieve:    true,
			RecentInteractions: 3,
		},
		Maintenance: MaintenanceConfig{
			Enabled:  true,
			Interval: 24 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// policyKeys are the memory options that may also be set through their bare
// environment names, e.g. MAX_HOPS alongside JACQ_MAX_HOPS.
var policyKeys = []string{
	"promotion_threshold",
	"decay_grace_period_days",
	"decay_rate",
	"cleanup_threshold",
	"min_access_protection",
	"conflict_confidence",
	"max_hops",
	"max_facts",
	"per_entity_fact_limit",
	"anchor_top_k",
}

// DefaultPath returns ~/.jacq/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".jacq", "config.toml"), nil
}

// New returns a viper instance primed with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())
	for _, key := range policyKeys {
		upper := strings.ToUpper(key)
		// The first name that is set wins.
		_ = v.BindEnv("memory."+key, EnvPrefix+"_"+upper, EnvPrefix+"_MEMORY_"+upper, upper)
	}
	return v
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("owner", d.Owner)
	v.SetDefault("server.bind", d.Server.Bind)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.ollama_url", d.Embedding.OllamaURL)
	v.SetDefault("embedding.openai_key", d.Embedding.OpenAIKey)
	v.SetDefault("embedding.openai_url", d.Embedding.OpenAIURL)
	v.SetDefault("embedding.concurrency", d.Embedding.Concurrency)

	v.SetDefault("memory.promotion_threshold", d.Memory.PromotionThreshold)
	v.SetDefault("memory.decay_grace_period_days", d.Memory.DecayGracePeriodDays)
	v.SetDefault("memory.decay_rate", d.Memory.DecayRate)
	v.SetDefault("memory.cleanup_threshold", d.Memory.CleanupThreshold)
	v.SetDefault("memory.min_access_protection", d.Memory.MinAccessProtection)
	v.SetDefault("memory.conflict_confidence", d.Memory.ConflictConfidence)
	v.SetDefault("memory.max_hops", d.Memory.MaxHops)
	v.SetDefault("memory.max_facts", d.Memory.MaxFacts)
	v.SetDefault("memory.per_entity_fact_limit", d.Memory.PerEntityFactLimit)
	v.SetDefault("memory.anchor_top_k", d.Memory.AnchorTopK)

	v.SetDefault("retrieval.store_timeout", d.Retrieval.StoreTimeout)
	v.SetDefault("retrieval.embed_timeout", d.Retrieval.EmbedTimeout)
	v.SetDefault("retrieval.breaker_failures", d.Retrieval.BreakerFailures)
	v.SetDefault("retrieval.breaker_cooldown", d.Retrieval.BreakerCooldown)
	v.SetDefault("retrieval.touch_on_retrieve", d.Retrieval.TouchOnRetrieve)
	v.SetDefault("retrieval.recent_interactions", d.Retrieval.RecentInteractions)

	v.SetDefault("maintenance.enabled", d.Maintenance.Enabled)
	v.SetDefault("maintenance.interval", d.Maintenance.Interval)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
}

// Load reads configuration from path, or from DefaultPath when path is empty,
// then applies environment overrides. A missing default file is not an error;
// a missing explicit file is.
func Load(path string) (Config, error) {
	return LoadWith(New(), path)
}

// LoadWith is Load over a caller-supplied viper instance, so command-line
// flags bound to it take precedence over the file and the environment.
func LoadWith(v *viper.Viper, path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if explicit || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Owner) == "" {
		return fmt.Errorf("config: owner must not be empty")
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Embedding.Provider {
	case "auto", "ollama", "openai", "tfidf", "none":
	default:
		return fmt.Errorf("config: unknown embedding provider %q", c.Embedding.Provider)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// Policy returns the memory policy value handed to the lifecycle engine,
// the scorer and the traversal.
func (c *Config) Policy() memory.Policy {
	m := c.Memory
	return memory.Policy{
		PromotionThreshold:  m.PromotionThreshold,
		GracePeriodDays:     m.DecayGracePeriodDays,
		DecayRate:           m.DecayRate,
		CleanupThreshold:    m.CleanupThreshold,
		MinAccessProtection: m.MinAccessProtection,
		ConflictConfidence:  m.ConflictConfidence,
		MaxHops:             m.MaxHops,
		MaxFacts:            m.MaxFacts,
		PerEntityFactLimit:  m.PerEntityFactLimit,
		AnchorTopK:          m.AnchorTopK,
	}
}

// EngineOptions returns the engine's timeouts and background settings.
func (c *Config) EngineOptions() engine.Options {
	opts := engine.DefaultOptions()
	opts.StoreTimeout = c.Retrieval.StoreTimeout
	opts.Anchor = engine.AnchorOptions{
		SearchTimeout:   c.Retrieval.EmbedTimeout,
		StoreTimeout:    c.Retrieval.StoreTimeout,
		BreakerFailures: c.Retrieval.BreakerFailures,
		BreakerCooldown: c.Retrieval.BreakerCooldown,
	}
	opts.TouchOnRetrieve = c.Retrieval.TouchOnRetrieve
	opts.RecentInteractions = c.Retrieval.RecentInteractions
	opts.MaintenanceInterval = c.Maintenance.Interval
	opts.EmbedConcurrency = c.Embedding.Concurrency
	return opts
}
