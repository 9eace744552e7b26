// Package config handles opencrank configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/opencrank/config.yaml, /etc/opencrank/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "opencrank", "config.yaml"))
	}

	paths = append(paths, "/etc/opencrank/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all opencrank configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Models     ModelsConfig     `yaml:"models"`
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	Agent      AgentConfig      `yaml:"agent"`
	Context    ContextConfig    `yaml:"context"`
	ShellExec  ShellExecConfig  `yaml:"shell_exec"`
	LogLevel   string           `yaml:"log_level"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// Configured reports whether an API key was supplied.
func (c AnthropicConfig) Configured() bool {
	return c.APIKey != ""
}

// AgentConfig controls the Agent Loop's bounded-iteration and
// auto-chunking behavior. Zero values fall back to agent.DefaultConfig.
type AgentConfig struct {
	MaxIterations         int     `yaml:"max_iterations"`
	MaxConsecutiveErrors  int     `yaml:"max_consecutive_errors"`
	MaxTokenLimitRetries  int     `yaml:"max_token_limit_retries"`
	AutoChunkLargeResults *bool   `yaml:"auto_chunk_large_results"`
	MaxToolResultSize     int     `yaml:"max_tool_result_size"`
	ChunkSize             int     `yaml:"chunk_size"`
	Temperature           float64 `yaml:"temperature"`
	MaxTokens             int     `yaml:"max_tokens"`
}

// ContextConfig controls the Context Manager's usage thresholds. Zero
// values fall back to contextmgr.DefaultConfig.
type ContextConfig struct {
	MaxContextChars    int     `yaml:"max_context_chars"`
	ReserveForResponse int     `yaml:"reserve_for_response"`
	UsageThreshold     float64 `yaml:"usage_threshold"`
	MaxResumeChars     int     `yaml:"max_resume_chars"`
	AutoSaveMemory     *bool   `yaml:"auto_save_memory"`
}

// ShellExecConfig defines shell execution capabilities.
type ShellExecConfig struct {
	// Enabled allows shell command execution. Disabled by default for safety.
	Enabled bool `yaml:"enabled"`
	// DeniedPatterns are command patterns to block (e.g., "rm -rf /"),
	// defense-in-depth on top of the Sandbox's Landlock enforcement.
	DeniedPatterns []string `yaml:"denied_patterns"`
	// AllowedPrefixes limits commands to those starting with these prefixes.
	// Empty means all commands are allowed (subject to denied patterns).
	AllowedPrefixes []string `yaml:"allowed_prefixes"`
	// DefaultTimeoutSec is the default timeout in seconds (default 30).
	DefaultTimeoutSec int `yaml:"default_timeout_sec"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ModelsConfig defines model routing settings.
type ModelsConfig struct {
	Default    string        `yaml:"default"`
	OllamaURL  string        `yaml:"ollama_url"`
	LocalFirst bool          `yaml:"local_first"`
	Available  []ModelConfig `yaml:"available"`
}

// ModelConfig defines a single model's capabilities.
type ModelConfig struct {
	Name          string `yaml:"name"`
	Provider      string `yaml:"provider"` // ollama, anthropic, openai
	SupportsTools bool   `yaml:"supports_tools"`
	ContextWindow int    `yaml:"context_window"`
	Speed         int    `yaml:"speed"`          // 1-10
	Quality       int    `yaml:"quality"`        // 1-10
	CostTier      int    `yaml:"cost_tier"`      // 0=local, 1=cheap, 2=moderate, 3=expensive
	MinComplexity string `yaml:"min_complexity"` // simple, moderate, complex
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{
		Listen: ListenConfig{Port: 8080},
	}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Models: ModelsConfig{
			Default:    "qwen3:4b",
			LocalFirst: true,
			Available: []ModelConfig{
				{
					Name:          "qwen3:4b",
					Provider:      "ollama",
					SupportsTools: true,
					ContextWindow: 4096,
					Speed:         9,
					Quality:       5,
					CostTier:      0,
					MinComplexity: "simple",
				},
				{
					Name:          "qwen2.5:72b",
					Provider:      "ollama",
					SupportsTools: true,
					ContextWindow: 32768,
					Speed:         4,
					Quality:       8,
					CostTier:      0,
					MinComplexity: "moderate",
				},
			},
		},
	}
}
