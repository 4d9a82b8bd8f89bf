//go:build !integration

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ebook-queue/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

// clearEnv blanks every variable Load consults so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	for _, k := range []string{
		"EBOOKQ_STORE_DRIVER", "EBOOKQ_REDIS_URL", "EBOOKQ_AI_PROVIDER", "EBOOKQ_OPENAI_KEY",
		"EBOOKQ_GEMINI_KEY", "EBOOKQ_DATABASE_URL", "EBOOKQ_HTTP_PORT", "EBOOKQ_AUTH_SECRET",
		"KV_URL", "REDIS_URL", "OPENAI_API_KEY", "DATABASE_URL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(writeConfig(t, "store:\n  driver: memory\n"), false)
	require.NoError(t, err)

	assert.Equal(t, "ebook:", cfg.Store.KeyPrefix)
	assert.Equal(t, "pages", cfg.Store.Queue)
	assert.Equal(t, 5*time.Second, cfg.Store.PopTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Store.ChunkTTL)
	assert.Equal(t, 4, cfg.Generation.MaxRetries)
	assert.Equal(t, 1.5, cfg.Generation.TimeoutMultiplier)
	assert.Equal(t, 40, cfg.Generation.MinChunkLength)
	assert.Equal(t, 0.5, cfg.Generation.FallbackTokenRatio)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, time.Minute, cfg.HTTP.CreateWindow)
	assert.Equal(t, time.Minute, cfg.Reconciler.LockTTL, "lock ttl follows the interval")
	assert.False(t, cfg.Runtime.Dev)
}

func TestLoad_FileValues(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
store:
  driver: redis
  key_prefix: "test:"
  pop_timeout: 2s
redis:
  url: redis://localhost:6379/1
ai:
  provider: gemini
  gemini_key: g-key
generation:
  max_retries: 6
  base_timeout: 5s
  max_timeout: 20s
worker:
  concurrency: 8
  embedded: true
http:
  port: 9090
  create_limit: 3
`)
	cfg, err := config.Load(path, true)
	require.NoError(t, err)

	assert.Equal(t, "test:", cfg.Store.KeyPrefix)
	assert.Equal(t, 2*time.Second, cfg.Store.PopTimeout)
	assert.Equal(t, "redis://localhost:6379/1", cfg.Redis.URL)
	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, 6, cfg.Generation.MaxRetries)
	assert.Equal(t, 20*time.Second, cfg.Generation.MaxTimeout)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.True(t, cfg.Worker.Embedded)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 3, cfg.HTTP.CreateLimit)
	assert.True(t, cfg.Runtime.Dev)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("KV_URL", "redis://legacy:6379")
	t.Setenv("OPENAI_API_KEY", "sk-legacy")
	t.Setenv("EBOOKQ_HTTP_PORT", "7070")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), false)
	require.NoError(t, err)
	assert.Equal(t, "redis://legacy:6379", cfg.Redis.URL)
	assert.Equal(t, "sk-legacy", cfg.AI.OpenAIKey)
	assert.Equal(t, "openai", cfg.AI.Provider, "provider inferred from the key")
	assert.Equal(t, 7070, cfg.HTTP.Port)

	t.Setenv("EBOOKQ_REDIS_URL", "redis://primary:6379")
	cfg, err = config.Load("", false)
	require.NoError(t, err)
	assert.Equal(t, "redis://primary:6379", cfg.Redis.URL, "prefixed variable wins over the legacy one")
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"redis without url": "store:\n  driver: redis\n",
		"unknown driver":    "store:\n  driver: etcd\n",
		"unknown provider":  "store:\n  driver: memory\nai:\n  provider: llama\n",
		"timeouts inverted": "store:\n  driver: memory\ngeneration:\n  base_timeout: 30s\n  max_timeout: 10s\n",
		"bad yaml":          "store: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, body), false)
			assert.Error(t, err)
		})
	}
}
