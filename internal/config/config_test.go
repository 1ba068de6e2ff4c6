// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/trendlab/pkg/types"
)

func defaults(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(defaults(t), nil)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Sources.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Sources.AITimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Sources.RequestDelay)
	assert.Equal(t, 10, cfg.Sources.ResultLimit)
	assert.Equal(t, "trendlab/1.0 research bot", cfg.Sources.UserAgent)
	assert.Equal(t, 4, cfg.Collection.Concurrency)
	assert.Equal(t, 3, cfg.Collection.MaxKeywords)
	assert.Equal(t, types.ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, "sqlite3", cfg.Store.Driver)
	assert.Equal(t, []types.RenderFormat{types.FormatMarkdown, types.FormatHTML, types.FormatDOCX}, cfg.Render.Formats)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 256, cfg.Server.EventBuffer)
	assert.Equal(t, 1024, cfg.Server.EventRetained)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadSecretsFillEmptyCredentials(t *testing.T) {
	v := defaults(t)
	v.Set("sources.gemini_api_key", "from-config")
	creds := map[string]string{
		"perplexity-api-key": "pplx",
		"gemini-api-key":     "gm-secret",
		"usda-api-key":       "usda",
	}

	cfg, err := Load(v, creds)
	require.NoError(t, err)
	assert.Equal(t, "pplx", cfg.Sources.PerplexityAPIKey)
	assert.Equal(t, "from-config", cfg.Sources.GeminiAPIKey, "explicit config wins over secrets")
	assert.Equal(t, "usda", cfg.Sources.USDAAPIKey)
	assert.Equal(t, "gm-secret", cfg.LLM.APIKey, "gemini provider takes the gemini key")
}

func TestLoadLLMKeyFollowsProvider(t *testing.T) {
	creds := map[string]string{
		"gemini-api-key":    "gm",
		"openai-api-key":    "oa",
		"anthropic-api-key": "an",
	}
	tests := []struct {
		provider types.LLMProvider
		want     string
	}{
		{types.ProviderGemini, "gm"},
		{types.ProviderOpenAI, "oa"},
		{types.ProviderAnthropic, "an"},
		{types.ProviderNone, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			v := defaults(t)
			v.Set("llm.provider", string(tt.provider))
			cfg, err := Load(v, creds)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.LLM.APIKey)
		})
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		value  any
		errKey string
	}{
		{"unknown provider", "llm.provider", "mistral", "llm.provider"},
		{"concurrency too high", "collection.concurrency", 9, "collection.concurrency"},
		{"concurrency zero", "collection.concurrency", 0, "collection.concurrency"},
		{"unknown driver", "store.driver", "mysql", "store.driver"},
		{"empty dsn", "store.dsn", "", "store.dsn"},
		{"unknown format", "render.formats", []string{"pdf"}, "render.formats"},
		{"no formats", "render.formats", []string{}, "render.formats"},
		{"bad log level", "log.level", "trace", "log.level"},
		{"result limit", "sources.result_limit", 0, "sources.result_limit"},
		{"bad base url", "llm.base_url", "not a url", "llm.base_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := defaults(t)
			v.Set(tt.key, tt.value)
			_, err := Load(v, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errKey)
		})
	}
}

func TestNewReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
collection:
  concurrency: 2
llm:
  provider: openai
  model: gpt-4o-mini
render:
  formats: [markdown]
`), 0o644))

	v, err := New(path)
	require.NoError(t, err)
	cfg, err := Load(v, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Collection.Concurrency)
	assert.Equal(t, types.ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, []types.RenderFormat{types.FormatMarkdown}, cfg.Render.Formats)
	assert.Equal(t, 10*time.Second, cfg.Sources.Timeout, "unset keys keep defaults")
}

func TestNewMissingExplicitFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestNewEnvOverride(t *testing.T) {
	t.Setenv("TRENDLAB_COLLECTION_CONCURRENCY", "1")
	t.Setenv("TRENDLAB_STORE_DSN", "/tmp/other.db")
	t.Chdir(t.TempDir())

	v, err := New("")
	require.NoError(t, err)
	cfg, err := Load(v, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Collection.Concurrency)
	assert.Equal(t, "/tmp/other.db", cfg.Store.DSN)
}
