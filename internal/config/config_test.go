package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/provider"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seeva.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// isolate keeps a developer's own seeva.yaml out of the test.
func isolate(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })
	t.Setenv("HOME", t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8100", cfg.Server.Addr)
	assert.Equal(t, "seeva.db", cfg.Database.Path)
	assert.Equal(t, provider.Anthropic, cfg.DefaultProvider())
	assert.Equal(t, "You are a helpful AI assistant.", cfg.Chat.SystemPrompt)
	assert.Equal(t, 0.7, cfg.Chat.Temperature)
	assert.Equal(t, provider.DefaultMaxTokens, cfg.Chat.MaxTokens)
	assert.Equal(t, provider.DefaultTimeouts, cfg.Timeouts())
	assert.Equal(t, provider.DefaultOllamaBaseURL, cfg.Providers["ollama"].BaseURL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: 127.0.0.1:9000
chat:
  provider: openrouter
  max_tokens: 1024
providers:
  openrouter:
    api_key: sk-or-file
    default_model: openai/gpt-4o
http:
  response_header_timeout: 90s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, provider.OpenRouter, cfg.DefaultProvider())
	assert.Equal(t, 1024, cfg.Chat.MaxTokens)
	assert.Equal(t, "sk-or-file", cfg.Providers["openrouter"].APIKey)
	assert.Equal(t, "openai/gpt-4o", cfg.DefaultModel(provider.OpenRouter))
	assert.Equal(t, 90*time.Second, cfg.HTTP.ResponseHeaderTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTP.DialTimeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
providers:
  anthropic:
    api_key: from-file
`)
	t.Setenv("SEEVA_PROVIDERS_ANTHROPIC_API_KEY", "from-env")
	t.Setenv("SEEVA_CHAT_TEMPERATURE", "0.2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Providers["anthropic"].APIKey)
	assert.Equal(t, 0.2, cfg.Chat.Temperature)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "read", cfgErr.Op)
}

func TestLoad_Validation(t *testing.T) {
	path := writeConfig(t, `
chat:
  provider: gemini
  temperature: 3
  max_tokens: 0
`)

	_, err := Load(path)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Len(t, validationErr.Errors, 3)
}

func TestProviderFactory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-configured" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"model":"gpt-5-mini","choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer server.Close()

	path := writeConfig(t, fmt.Sprintf(`
providers:
  openai:
    api_key: sk-configured
    base_url: %s
`, server.URL))
	cfg, err := Load(path)
	require.NoError(t, err)

	factory := cfg.ProviderFactory(zap.NewNop())

	p, err := factory(provider.OpenAI, "")
	require.NoError(t, err)
	resp, err := p.Chat(context.Background(), provider.ChatRequest{Model: "gpt-5-mini"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)

	p, err = factory(provider.OpenAI, "sk-other")
	require.NoError(t, err)
	_, err = p.Chat(context.Background(), provider.ChatRequest{Model: "gpt-5-mini"})
	assert.ErrorIs(t, err, provider.ErrInvalidAPIKey)

	_, err = factory("gemini", "key")
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)
}
