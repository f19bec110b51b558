package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/michaelbrown/recall/internal/memory"
)

type ProviderConfig struct {
	BaseURL string            `mapstructure:"base_url"`
	APIKey  string            `mapstructure:"api_key"`
	Models  map[string]string `mapstructure:"models"`
}

type AgentConfig struct {
	MaxToolTurns         int    `mapstructure:"max_tool_turns"`
	ContextMaxTokens     int    `mapstructure:"context_max_tokens"`
	SaveConversationPath string `mapstructure:"save_conversation_path"`
	PersonasDir          string `mapstructure:"personas_dir"`
}

type MemoryConfig struct {
	Path          string `mapstructure:"path"`
	MaxFileBytes  int64  `mapstructure:"max_file_bytes"`
	MaxDirBytes   int64  `mapstructure:"max_dir_bytes"`
	MaxTotalBytes int64  `mapstructure:"max_total_bytes"`
}

type SandboxConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type Config struct {
	Providers       map[string]ProviderConfig `mapstructure:"providers"`
	DefaultProvider string                    `mapstructure:"default_provider"`
	Agent           AgentConfig               `mapstructure:"agent"`
	Memory          MemoryConfig              `mapstructure:"memory"`
	Sandbox         SandboxConfig             `mapstructure:"sandbox"`
	Server          ServerConfig              `mapstructure:"server"`
	Storage         StorageConfig             `mapstructure:"storage"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("recall")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.recall")

	v.SetDefault("default_provider", "vllm")
	v.SetDefault("providers.vllm.base_url", "http://localhost:8000/v1")
	v.SetDefault("providers.openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("providers.openrouter.api_key", "${OPENROUTER_API_KEY}")
	v.SetDefault("agent.max_tool_turns", 20)
	v.SetDefault("agent.context_max_tokens", 32768)
	v.SetDefault("agent.save_conversation_path", filepath.Join("output", "conversations"))
	v.SetDefault("memory.path", "memory")
	v.SetDefault("memory.max_file_bytes", 1<<20)
	v.SetDefault("memory.max_dir_bytes", 10<<20)
	v.SetDefault("memory.max_total_bytes", 100<<20)
	v.SetDefault("sandbox.timeout_seconds", 20)
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.db_path", filepath.Join(os.Getenv("HOME"), ".recall", "recall.db"))

	// A missing config file is fine; defaults cover everything.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Expand environment variables in API keys
	for name, p := range cfg.Providers {
		if strings.HasPrefix(p.APIKey, "${") && strings.HasSuffix(p.APIKey, "}") {
			envVar := p.APIKey[2 : len(p.APIKey)-1]
			p.APIKey = os.Getenv(envVar)
			cfg.Providers[name] = p
		}
	}

	return &cfg, nil
}

// Provider returns the config for a named provider, falling back to the default.
func (c *Config) Provider(name string) (ProviderConfig, error) {
	if name == "" {
		name = c.DefaultProvider
	}
	p, ok := c.Providers[name]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("unknown provider: %s", name)
	}
	return p, nil
}

// MemoryLimits returns the configured store size limits, with defaults for
// anything unset.
func (c *Config) MemoryLimits() memory.Limits {
	limits := memory.DefaultLimits()
	if c.Memory.MaxFileBytes > 0 {
		limits.FileSize = c.Memory.MaxFileBytes
	}
	if c.Memory.MaxDirBytes > 0 {
		limits.DirSize = c.Memory.MaxDirBytes
	}
	if c.Memory.MaxTotalBytes > 0 {
		limits.StoreSize = c.Memory.MaxTotalBytes
	}
	return limits
}

// SandboxTimeout returns the configured snippet timeout as a duration.
func (c *Config) SandboxTimeout() time.Duration {
	if c.Sandbox.TimeoutSeconds <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.Sandbox.TimeoutSeconds) * time.Second
}
