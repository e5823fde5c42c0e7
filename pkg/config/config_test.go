package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
models:
  default_chat: gemini-flash
  default_embedding: embed
  definitions:
    gemini-flash:
      provider: gemini
      model_name: gemini-2.0-flash
      api_key: ${TEST_GOOGLE_API_KEY}
      base_url: https://generativelanguage.googleapis.com/v1beta/openai/
      timeout: 60s
    embed:
      provider: gemini
      model_name: text-embedding-004
      api_key: ${TEST_GOOGLE_API_KEY}
search:
  api_key: tvly-key
weather:
  api_key: owm-key
`

func TestParse_ExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_GOOGLE_API_KEY", "g-secret")

	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	chat, ok := cfg.GetChatModel("")
	require.True(t, ok)
	assert.Equal(t, "g-secret", chat.APIKey)
	assert.Equal(t, 60*time.Second, chat.Timeout)

	assert.Equal(t, ":8000", cfg.App.ListenAddr)
	assert.Equal(t, 6, cfg.Chat.MaxRounds)
	assert.InDelta(t, 0.2, *cfg.Chat.Temperature, 1e-9)
	assert.True(t, *cfg.Chat.UseHistory)
	assert.Equal(t, 20, cfg.Chat.MaxHistory)
	assert.Equal(t, 3, cfg.Chat.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.Chat.RetryBaseDelay)
	assert.Equal(t, 10*time.Second, cfg.Chat.ToolTimeout)

	assert.Equal(t, "KnowMe_chunks", cfg.RAG.Collection)
	assert.InDelta(t, 0.75, *cfg.RAG.MinScore, 1e-9)
	assert.NotEmpty(t, cfg.RAG.Stoplist)

	assert.Equal(t, "https://api.tavily.com", cfg.Search.BaseURL)
	assert.Equal(t, 10*time.Minute, cfg.Search.CacheTTL)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, 10*time.Second, cfg.Webhook.Timeout)
	assert.False(t, cfg.S3.Enabled())
}

func TestParse_FailsFastOnMissingKeys(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		env     string
		wantErr string
	}{
		{
			name:    "missing chat api key",
			env:     "",
			wantErr: "api_key for model 'gemini-flash' is required",
		},
		{
			name: "missing search key",
			env:  "k",
			mutate: func(s string) string {
				return strings.ReplaceAll(s, "api_key: tvly-key", "api_key: \"\"")
			},
			wantErr: "search.api_key is required",
		},
		{
			name: "missing weather key",
			env:  "k",
			mutate: func(s string) string {
				return strings.ReplaceAll(s, "api_key: owm-key", "api_key: \"\"")
			},
			wantErr: "weather.api_key is required",
		},
		{
			name: "unknown default chat",
			env:  "k",
			mutate: func(s string) string {
				return strings.ReplaceAll(s, "default_chat: gemini-flash", "default_chat: nope")
			},
			wantErr: "models.default_chat 'nope' is not defined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_GOOGLE_API_KEY", tt.env)
			src := minimalYAML
			if tt.mutate != nil {
				src = tt.mutate(src)
			}
			_, err := Parse([]byte(src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_RejectsUnknownCacheDriver(t *testing.T) {
	t.Setenv("TEST_GOOGLE_API_KEY", "k")
	_, err := Parse([]byte(minimalYAML + "cache:\n  driver: memcached\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.driver")
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_FromFile(t *testing.T) {
	t.Setenv("TEST_GOOGLE_API_KEY", "k")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML+"tools:\n  web_search:\n    timeout: 3s\n  get_weather:\n    enabled: false\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.ToolTimeout("web_search"))
	assert.Equal(t, 10*time.Second, cfg.ToolTimeout("rag_search"))
	assert.False(t, cfg.ToolEnabled("get_weather"))
	assert.True(t, cfg.ToolEnabled("rag_search"))
}
