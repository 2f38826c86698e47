// Package config loads service settings from an optional TOML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

var ErrConfiguration = errors.New("invalid configuration")

type Config struct {
	Model    ModelConfig  `toml:"model"`
	Search   SearchConfig `toml:"search"`
	AIPipe   AIPipeConfig `toml:"aipipe"`
	Agent    AgentConfig  `toml:"agent"`
	Server   ServerConfig `toml:"server"`
	Slack    SlackConfig  `toml:"slack"`
	LogLevel string       `toml:"log_level"`
}

type ModelConfig struct {
	Provider       string `toml:"provider"` // openai (default) or anthropic
	OpenAIKey      string `toml:"openai_api_key"`
	OpenAIModel    string `toml:"openai_model"`
	OpenAIBaseURL  string `toml:"openai_base_url"`
	AnthropicKey   string `toml:"anthropic_api_key"`
	AnthropicModel string `toml:"anthropic_model"`
}

type SearchConfig struct {
	Provider   string `toml:"provider"`
	GoogleKey  string `toml:"google_cse_key"`
	GoogleCX   string `toml:"google_cse_cx"`
	SerpAPIKey string `toml:"serpapi_api_key"`
}

type AIPipeConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

type AgentConfig struct {
	MaxTurns       int           `toml:"max_turns"`
	SandboxTimeout time.Duration `toml:"sandbox_timeout"`
	HTTPTimeout    time.Duration `toml:"http_timeout"`
}

type ServerConfig struct {
	Port  string `toml:"port"`
	Build string `toml:"build"`
}

type SlackConfig struct {
	BotToken string `toml:"bot_token"`
	AppToken string `toml:"app_token"`
}

func Default() *Config {
	return &Config{
		Model:  ModelConfig{Provider: "openai", OpenAIModel: "gpt-4o-mini"},
		Search: SearchConfig{Provider: "google_cse"},
		Agent: AgentConfig{
			MaxTurns:       10,
			SandboxTimeout: 10 * time.Second,
			HTTPTimeout:    60 * time.Second,
		},
		Server:   ServerConfig{Port: "8080", Build: "dev"},
		LogLevel: "info",
	}
}

// Load reads defaults, then path (skipped when empty or missing), then the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) ApplyEnvOverrides() error {
	setString(&c.Model.Provider, "MODEL_PROVIDER")
	setString(&c.Model.OpenAIKey, "OPENAI_API_KEY")
	setString(&c.Model.OpenAIModel, "OPENAI_MODEL")
	setString(&c.Model.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&c.Model.AnthropicKey, "ANTHROPIC_API_KEY")
	setString(&c.Model.AnthropicModel, "ANTHROPIC_MODEL")

	setString(&c.Search.Provider, "SEARCH_PROVIDER")
	setString(&c.Search.GoogleKey, "GOOGLE_CSE_KEY")
	setString(&c.Search.GoogleCX, "GOOGLE_CSE_CX")
	setString(&c.Search.SerpAPIKey, "SERPAPI_API_KEY")

	setString(&c.AIPipe.BaseURL, "AIPIPE_BASE_URL")
	setString(&c.AIPipe.APIKey, "AIPIPE_API_KEY")

	setString(&c.Server.Port, "PORT")
	setString(&c.Server.Build, "BUILD")
	setString(&c.Slack.BotToken, "SLACK_BOT_TOKEN")
	setString(&c.Slack.AppToken, "SLACK_APP_TOKEN")
	setString(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("TOOLCHAT_MAX_TURNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: TOOLCHAT_MAX_TURNS: %v", ErrConfiguration, err)
		}
		c.Agent.MaxTurns = n
	}
	if v := os.Getenv("TOOLCHAT_SANDBOX_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: TOOLCHAT_SANDBOX_TIMEOUT: %v", ErrConfiguration, err)
		}
		c.Agent.SandboxTimeout = d
	}
	if v := os.Getenv("TOOLCHAT_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: TOOLCHAT_HTTP_TIMEOUT: %v", ErrConfiguration, err)
		}
		c.Agent.HTTPTimeout = d
	}
	return nil
}

// Validate checks what every entry point needs: a usable model provider and
// sane limits. Surface-specific secrets are checked by the commands.
func (c *Config) Validate() error {
	var problems []string

	switch strings.ToLower(c.Model.Provider) {
	case "", "openai":
		if c.Model.OpenAIKey == "" {
			problems = append(problems, "OPENAI_API_KEY missing")
		}
	case "anthropic":
		if c.Model.AnthropicKey == "" {
			problems = append(problems, "ANTHROPIC_API_KEY missing")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown model provider %q", c.Model.Provider))
	}
	if c.Agent.MaxTurns <= 0 {
		problems = append(problems, "max_turns must be positive")
	}
	if c.Agent.SandboxTimeout <= 0 {
		problems = append(problems, "sandbox_timeout must be positive")
	}
	if _, err := c.Level(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, ", "))
	}
	return nil
}

func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
