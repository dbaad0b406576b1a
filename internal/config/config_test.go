package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowkaihon/agentd/internal/workspace"
)

func TestLoadEnvFileDoesNotOverrideExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ANTHROPIC_API_KEY=from-file\nFOO=bar\n"), 0644))
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	os.Unsetenv("FOO")

	loadEnvFile(path)

	assert.Equal(t, "from-env", os.Getenv("ANTHROPIC_API_KEY"), "expected existing env var preserved")
	assert.Equal(t, "bar", os.Getenv("FOO"), "expected FOO set from file")
}

func TestLoadEnvFileStripsQuotesAndComments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# a comment\n\nQUOTED=\"hello world\"\nSINGLE='abc'\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	os.Unsetenv("QUOTED")
	os.Unsetenv("SINGLE")

	loadEnvFile(path)

	assert.Equal(t, "hello world", os.Getenv("QUOTED"), "expected quotes stripped")
	assert.Equal(t, "abc", os.Getenv("SINGLE"), "expected quotes stripped")
}

func TestResolveLLMMissingAPIKeyErrors(t *testing.T) {
	os.Unsetenv("ANTHROPIC_API_KEY")
	_, err := resolveLLM("anthropic")
	assert.Error(t, err, "expected an error when ANTHROPIC_API_KEY is unset")
}

func TestResolveLLMAnthropic(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	cfg, err := resolveLLM("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.NotZero(t, cfg.ContextWindow)
}

func TestOpenAIContextWindow(t *testing.T) {
	cases := map[string]int{
		"gpt-5.2-codex": 400000,
		"o3-mini":       200000,
		"gpt-3.5-turbo": 16000,
		"gpt-4o-mini":   128000,
	}
	for model, want := range cases {
		assert.Equal(t, want, openAIContextWindow(model), "model %q", model)
	}
}

func TestConfigDirRespectsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdgtest")
	dir, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/xdgtest", "agentd"), dir)
}

func TestKnownModelsNonEmpty(t *testing.T) {
	models := KnownModels()
	require.NotEmpty(t, models)
	for _, m := range models {
		assert.NotEmpty(t, m.Provider, "incomplete known model entry: %+v", m)
		assert.NotEmpty(t, m.Model, "incomplete known model entry: %+v", m)
		assert.NotEmpty(t, m.Label, "incomplete known model entry: %+v", m)
	}
}

func TestNewToolsFactoryWiresDenylist(t *testing.T) {
	cfg := &Config{BashDenylist: []string{"rm -rf "}}
	factory := NewToolsFactory(cfg)
	reg := factory(workspace.New(t.TempDir(), nil))
	require.NotNil(t, reg, "expected a non-nil registry")
}
