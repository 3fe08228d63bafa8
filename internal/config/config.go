// Package config loads settings from defaults, an optional seeva.yaml and
// SEEVA_ prefixed environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/provider"
	"go.uber.org/zap"
)

const (
	defaultConfigName = "seeva"
	defaultConfigType = "yaml"
	envPrefix         = "SEEVA"
)

type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Database  DatabaseConfig            `mapstructure:"database"`
	Chat      ChatConfig                `mapstructure:"chat"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	HTTP      HTTPConfig                `mapstructure:"http"`
	Logging   LoggingConfig             `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// StaticDir is served at / when it is set.
	StaticDir string `mapstructure:"static_dir"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type ChatConfig struct {
	// Provider is used when a request does not name one.
	Provider     string  `mapstructure:"provider"`
	SystemPrompt string  `mapstructure:"system_prompt"`
	Temperature  float64 `mapstructure:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens"`
}

type ProviderConfig struct {
	APIKey       string `mapstructure:"api_key"`
	DefaultModel string `mapstructure:"default_model"`
	BaseURL      string `mapstructure:"base_url"`
}

type HTTPConfig struct {
	DialTimeout           time.Duration `mapstructure:"dial_timeout"`
	TLSHandshakeTimeout   time.Duration `mapstructure:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `mapstructure:"response_header_timeout"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads configuration. An empty path searches the working directory
// and $HOME/.seeva for seeva.yaml; a missing file is not an error then.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(defaultConfigName)
		v.SetConfigType(defaultConfigType)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.seeva")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, &ConfigError{Op: "read", Err: fmt.Errorf("failed to read config file: %w", err)}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{Op: "unmarshal", Err: fmt.Errorf("failed to unmarshal config: %w", err)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8100")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.static_dir", "")

	v.SetDefault("database.path", "seeva.db")

	v.SetDefault("chat.provider", string(provider.Anthropic))
	v.SetDefault("chat.system_prompt", "You are a helpful AI assistant.")
	v.SetDefault("chat.temperature", 0.7)
	v.SetDefault("chat.max_tokens", provider.DefaultMaxTokens)

	// Every key has a default so AutomaticEnv can override it.
	for _, name := range provider.Names() {
		v.SetDefault("providers."+string(name)+".api_key", "")
		v.SetDefault("providers."+string(name)+".default_model", "")
		v.SetDefault("providers."+string(name)+".base_url", "")
	}
	v.SetDefault("providers.ollama.base_url", provider.DefaultOllamaBaseURL)

	v.SetDefault("http.dial_timeout", provider.DefaultTimeouts.Dial)
	v.SetDefault("http.tls_handshake_timeout", provider.DefaultTimeouts.TLSHandshake)
	v.SetDefault("http.response_header_timeout", provider.DefaultTimeouts.ResponseHeader)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

// Validate collects every invalid setting into one ValidationError.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Addr == "" {
		errs = append(errs, "server.addr must not be empty")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path must not be empty")
	}
	if _, err := provider.ParseName(c.Chat.Provider); err != nil {
		errs = append(errs, fmt.Sprintf("chat.provider: %v", err))
	}
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		errs = append(errs, fmt.Sprintf("chat.temperature must be between 0 and 2, got %v", c.Chat.Temperature))
	}
	if c.Chat.MaxTokens <= 0 {
		errs = append(errs, fmt.Sprintf("chat.max_tokens must be positive, got %d", c.Chat.MaxTokens))
	}
	for name := range c.Providers {
		if _, err := provider.ParseName(name); err != nil {
			errs = append(errs, fmt.Sprintf("providers.%s: %v", name, err))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// DefaultProvider returns the validated chat.provider.
func (c *Config) DefaultProvider() provider.Name {
	name, _ := provider.ParseName(c.Chat.Provider)
	return name
}

func (c *Config) Timeouts() provider.Timeouts {
	return provider.Timeouts{
		Dial:           c.HTTP.DialTimeout,
		TLSHandshake:   c.HTTP.TLSHandshakeTimeout,
		ResponseHeader: c.HTTP.ResponseHeaderTimeout,
	}
}

// ProviderFactory builds adapters with the configured timeouts and base
// URLs. A request without an API key uses the configured one.
func (c *Config) ProviderFactory(logger *zap.Logger) provider.Factory {
	common := []provider.Option{
		provider.WithTimeouts(c.Timeouts()),
		provider.WithLogger(logger),
	}
	return func(name provider.Name, apiKey string) (provider.Provider, error) {
		opts := common
		pc := c.Providers[string(name)]
		if pc.BaseURL != "" {
			opts = append(opts[:len(opts):len(opts)], provider.WithBaseURL(pc.BaseURL))
		}
		if apiKey == "" {
			apiKey = pc.APIKey
		}
		return provider.New(name, apiKey, opts...)
	}
}

// DefaultModel returns the configured model for name, or "" to let the
// vendor's preferred model apply.
func (c *Config) DefaultModel(name provider.Name) string {
	return c.Providers[string(name)].DefaultModel
}
