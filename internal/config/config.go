// Package config handles LLM provider configuration, .env file loading,
// XDG-compliant credential storage, and the service-level settings
// (listen port, session directory, SSH defaults, bash denylist) agentd
// reads at startup.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lowkaihon/agentd/internal/llm"
	"github.com/lowkaihon/agentd/internal/session"
	"github.com/lowkaihon/agentd/internal/tools"
	"github.com/lowkaihon/agentd/internal/workspace"
)

// LLMConfig holds the resolved LLM provider configuration.
type LLMConfig struct {
	Provider      string
	APIKey        string
	Model         string
	MaxTokens     int
	BaseURL       string
	ContextWindow int
}

// Config is agentd's full resolved configuration: the LLM provider plus
// the service-level settings a session needs to start.
type Config struct {
	LLM LLMConfig

	SessionDir    string
	ListenAddr    string
	DefaultDir    string // workspace root when a client omits working_directory
	BashDenylist  []string
	SSHConfigPath string // for kevinburke/ssh_config lookups, "" uses the default ~/.ssh/config
}

// defaultBashDenylist blocks shell invocations of operations that duplicate
// a dedicated tool (spec's bash tool description: "blocked by a denylist of
// patterns that duplicate a dedicated tool").
var defaultBashDenylist = []string{"cat ", "head ", "tail ", "grep ", "find ", "sed -i", "ls "}

// Load resolves LLM configuration by reading .env files, XDG credentials,
// and falling back to built-in defaults. An empty provider defaults to
// "anthropic", matching the primary model agentd ships with.
func Load(provider string) (*Config, error) {
	loadEnvFile(".env")
	if dir, err := ConfigDir(); err == nil {
		loadEnvFile(filepath.Join(dir, "credentials"))
	}

	if provider == "" {
		provider = "anthropic"
	}

	llmCfg, err := resolveLLM(provider)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LLM:          *llmCfg,
		SessionDir:   defaultSessionDir(),
		ListenAddr:   ":8420",
		BashDenylist: append([]string(nil), defaultBashDenylist...),
	}
	return cfg, nil
}

func resolveLLM(provider string) (*LLMConfig, error) {
	switch provider {
	case "anthropic":
		apiKey := APIKeyForProvider("anthropic")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set (env or %s/credentials)", mustConfigDir())
		}
		return &LLMConfig{
			Provider:      "anthropic",
			APIKey:        apiKey,
			Model:         "claude-sonnet-4-5-20250929",
			MaxTokens:     16384,
			BaseURL:       "https://api.anthropic.com/v1",
			ContextWindow: 200000,
		}, nil
	default:
		apiKey := APIKeyForProvider("openai")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set (env or %s/credentials)", mustConfigDir())
		}
		baseURL, maxTokens, contextWindow := ProviderDefaults("openai", "gpt-4o-mini")
		return &LLMConfig{
			Provider:      "openai",
			APIKey:        apiKey,
			Model:         "gpt-4o-mini",
			MaxTokens:     maxTokens,
			BaseURL:       baseURL,
			ContextWindow: contextWindow,
		}, nil
	}
}

func mustConfigDir() string {
	dir, err := ConfigDir()
	if err != nil {
		return "~/.config/agentd"
	}
	return dir
}

// KnownModel represents one curated provider/model option returned by
// KnownModels.
type KnownModel struct {
	Provider string
	Model    string
	Label    string
}

// KnownModels returns the list of curated models for the model picker.
func KnownModels() []KnownModel {
	return []KnownModel{
		{"anthropic", "claude-opus-4-6", "Claude Opus 4.6 (Anthropic)"},
		{"anthropic", "claude-sonnet-4-5-20250929", "Claude Sonnet 4.5 (Anthropic)"},
		{"anthropic", "claude-haiku-4-5-20251001", "Claude Haiku 4.5 (Anthropic)"},
		{"openai", "gpt-5.2-codex", "GPT-5.2 Codex (OpenAI)"},
		{"openai", "gpt-5.1-codex-mini", "GPT-5.1 Codex Mini (OpenAI)"},
		{"openai", "gpt-4o-mini", "GPT-4o Mini (OpenAI)"},
	}
}

// ProviderDefaults returns the base URL, max tokens, and context window for
// a provider and model.
func ProviderDefaults(provider, model string) (baseURL string, maxTokens int, contextWindow int) {
	switch provider {
	case "anthropic":
		return "https://api.anthropic.com/v1", 16384, 200000
	default:
		return "https://api.openai.com/v1", 16384, openAIContextWindow(model)
	}
}

func openAIContextWindow(model string) int {
	switch {
	case strings.HasPrefix(model, "gpt-5"):
		return 400000
	case strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4"):
		return 200000
	case strings.HasPrefix(model, "gpt-3.5"):
		return 16000
	default:
		return 128000
	}
}

// APIKeyForProvider returns the API key for the given provider from the
// environment (populated by Load's .env/credentials pass). Returns "" if
// not found.
func APIKeyForProvider(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

// ConfigDir returns the XDG-compliant config directory for agentd: uses
// $XDG_CONFIG_HOME/agentd if set, otherwise ~/.config/agentd.
func ConfigDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" && filepath.IsAbs(dir) {
		return filepath.Join(dir, "agentd"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config", "agentd"), nil
}

// defaultSessionDir returns $XDG_CONFIG_HOME/agentd/sessions (or the home
// equivalent), creating no directories — the session persistence layer
// creates it lazily on first save.
func defaultSessionDir() string {
	dir, err := ConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "agentd-sessions")
	}
	return filepath.Join(dir, "sessions")
}

// NewClientFactory builds a session.ClientFactory that hands out an LLM
// client for cfg.LLM, ignoring the per-session working directory: every
// session shares one provider/model, and there is no per-session model
// override.
func NewClientFactory(cfg *Config) session.ClientFactory {
	return func(workingDirectory string) (llm.Client, int, error) {
		switch cfg.LLM.Provider {
		case "anthropic":
			return llm.NewAnthropicClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.MaxTokens), cfg.LLM.ContextWindow, nil
		case "openai":
			return llm.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.MaxTokens, cfg.LLM.BaseURL), cfg.LLM.ContextWindow, nil
		default:
			return nil, 0, fmt.Errorf("unknown LLM provider %q", cfg.LLM.Provider)
		}
	}
}

// NewToolsFactory builds a session.ToolsFactory that wires cfg.BashDenylist
// into every session's Tool Registry.
func NewToolsFactory(cfg *Config) session.ToolsFactory {
	return func(ws *workspace.Workspace) *tools.Registry {
		return tools.NewRegistryWithDenylist(ws, cfg.BashDenylist)
	}
}

// loadEnvFile reads a .env-style file and sets environment variables. Lines
// are KEY=VALUE; comments (#) and blank lines are ignored. Existing
// environment variables are never overridden.
func loadEnvFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
			value = value[1 : len(value)-1]
		}
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
