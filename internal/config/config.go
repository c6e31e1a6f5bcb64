// Package config loads service configuration from an optional YAML file and
// DISCUSSION_AGENT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"discussion-agent/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. DISCUSSION_AGENT_LLM_API_KEY.
const EnvPrefix = "DISCUSSION_AGENT"

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	LLM          LLMConfig          `mapstructure:"llm"`
	History      HistoryConfig      `mapstructure:"history"`
	Context      ContextConfig      `mapstructure:"context"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Logging      logging.Options    `mapstructure:"logging"`
	// AgentsFile points at the YAML roster.
	AgentsFile string `mapstructure:"agents_file"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LLMConfig struct {
	// Provider is "openai" or "echo".
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type HistoryConfig struct {
	// Backend is "file" or "sqlite".
	Backend    string `mapstructure:"backend"`
	Dir        string `mapstructure:"dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	// CacheSize > 0 puts an LRU read cache in front of the backend.
	CacheSize int `mapstructure:"cache_size"`
}

type ContextConfig struct {
	CharBudget int `mapstructure:"char_budget"`
	// TokenCounter is "tiktoken" or "heuristic".
	TokenCounter string `mapstructure:"token_counter"`
}

type ConversationConfig struct {
	MaxRepliesPerTurn int `mapstructure:"max_replies_per_turn"`
	MaxActionRounds   int `mapstructure:"max_action_rounds"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("history.backend", "file")
	v.SetDefault("history.dir", "data/history")
	v.SetDefault("history.sqlite_path", "data/discussions.db")
	v.SetDefault("history.cache_size", 256)

	v.SetDefault("context.char_budget", 20000)
	v.SetDefault("context.token_counter", "tiktoken")

	v.SetDefault("conversation.max_replies_per_turn", 0)
	v.SetDefault("conversation.max_action_rounds", 1)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.log_in_console", true)

	v.SetDefault("agents_file", "agents.yaml")
}

// Load reads the configuration and validates it.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read loads path (if non-empty) and applies environment overrides on top of the defaults,
// without validating the result.
func Read(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

// Validate rejects unknown backends and missing credentials.
func (c Config) Validate() error {
	var errs []error
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" {
			errs = append(errs, errors.New("llm.api_key is required for the openai provider"))
		}
	case "echo":
	default:
		errs = append(errs, fmt.Errorf("unknown llm.provider %q", c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	switch c.History.Backend {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown history.backend %q", c.History.Backend))
	}
	switch c.Context.TokenCounter {
	case "tiktoken", "heuristic":
	default:
		errs = append(errs, fmt.Errorf("unknown context.token_counter %q", c.Context.TokenCounter))
	}
	if c.Context.CharBudget <= 0 {
		errs = append(errs, errors.New("context.char_budget must be positive"))
	}
	if c.AgentsFile == "" {
		errs = append(errs, errors.New("agents_file is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
