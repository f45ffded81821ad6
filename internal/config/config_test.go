package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacq-os/jacq/internal/memory"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultMatchesPolicy(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, memory.DefaultPolicy(), cfg.Policy())
	assert.Equal(t, "127.0.0.1:37778", cfg.ListenAddr())
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
owner = "joshua"

[server]
port = 9000

[memory]
max_hops = 3
decay_rate = 0.9

[retrieval]
store_timeout = "250ms"
touch_on_retrieve = false

[log]
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "joshua", cfg.Owner)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Bind)
	assert.Equal(t, 3, cfg.Policy().MaxHops)
	assert.Equal(t, 0.9, cfg.Policy().DecayRate)
	assert.Equal(t, 30, cfg.Policy().MaxFacts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retrieval.StoreTimeout)
	assert.False(t, cfg.Retrieval.TouchOnRetrieve)
	assert.Equal(t, "debug", cfg.Log.Level)

	opts := cfg.EngineOptions()
	assert.Equal(t, 250*time.Millisecond, opts.StoreTimeout)
	assert.False(t, opts.TouchOnRetrieve)
	assert.Equal(t, 2*time.Second, opts.Anchor.SearchTimeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "[memory]\nmax_hops = 3\n")
	t.Setenv("MAX_HOPS", "4")
	t.Setenv("JACQ_MAX_FACTS", "12")
	t.Setenv("PROMOTION_THRESHOLD", "5")
	t.Setenv("JACQ_PROMOTION_THRESHOLD", "6")
	t.Setenv("JACQ_SERVER_PORT", "8123")
	t.Setenv("JACQ_EMBEDDING_PROVIDER", "tfidf")

	cfg, err := Load(path)
	require.NoError(t, err)
	p := cfg.Policy()
	assert.Equal(t, 4, p.MaxHops, "bare names override the file")
	assert.Equal(t, 12, p.MaxFacts)
	assert.Equal(t, 6, p.PromotionThreshold, "prefixed names win over bare ones")
	assert.Equal(t, 8123, cfg.Server.Port)
	assert.Equal(t, "tfidf", cfg.Embedding.Provider)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err, "an explicit path must exist")

	_, err = Load(writeConfig(t, "[memory\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "[memory]\ndecay_rate = 1.5\n"))
	assert.ErrorContains(t, err, "decay_rate")

	_, err = Load(writeConfig(t, "[embedding]\nprovider = \"magic\"\n"))
	assert.ErrorContains(t, err, "embedding provider")

	_, err = Load(writeConfig(t, "[log]\nlevel = \"loud\"\n"))
	assert.Error(t, err)
}
