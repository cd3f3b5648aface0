package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai, local, etc.
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name        string  `mapstructure:"name"`
	APIName     string  `mapstructure:"api_name"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// LLMRoutingConfig defines which model to use for different tasks
type LLMRoutingConfig struct {
	Planning string `mapstructure:"planning"` // decomposing a topic into a search plan
	Writing  string `mapstructure:"writing"`  // synthesizing the final report
	Fallback string `mapstructure:"fallback"` // fallback model
}

func (l LLMConfig) Validate() error {
	if len(l.Providers) == 0 {
		return fmt.Errorf("llm.providers requires at least one provider")
	}
	for name, p := range l.Providers {
		if strings.TrimSpace(p.Type) == "" {
			return fmt.Errorf("llm.providers.%s.type is required", name)
		}
	}
	if strings.TrimSpace(l.Routing.Fallback) == "" {
		return fmt.Errorf("llm.routing.fallback is required")
	}
	return nil
}

// Model resolves a routing slot to a model name, falling back when unset.
func (l LLMConfig) Model(slot string) string {
	switch slot {
	case "planning":
		if l.Routing.Planning != "" {
			return l.Routing.Planning
		}
	case "writing":
		if l.Routing.Writing != "" {
			return l.Routing.Writing
		}
	}
	return l.Routing.Fallback
}

// SearchConfig contains search capability settings
type SearchConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	Endpoint        string        `mapstructure:"endpoint"`
	ResultsPerQuery int           `mapstructure:"results_per_query"`
	MaxContentFetch int           `mapstructure:"max_content_fetch"`
	MaxContentChars int           `mapstructure:"max_content_chars"`
	SnippetChars    int           `mapstructure:"snippet_chars"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
}

// Normalize applies defaults for unset search values.
func (s SearchConfig) Normalize() SearchConfig {
	if s.Endpoint == "" {
		s.Endpoint = "https://api.exa.ai"
	}
	if s.ResultsPerQuery <= 0 {
		s.ResultsPerQuery = 5
	}
	if s.MaxContentFetch <= 0 {
		s.MaxContentFetch = 8
	}
	if s.MaxContentChars <= 0 {
		s.MaxContentChars = 4000
	}
	if s.SnippetChars <= 0 {
		s.SnippetChars = 300
	}
	if s.Timeout <= 0 {
		s.Timeout = 20 * time.Second
	}
	return s
}

// FetchConfig controls the direct-fetch fallback used when the search
// provider cannot return page contents.
type FetchConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

func (f FetchConfig) Normalize() FetchConfig {
	if f.Timeout <= 0 {
		f.Timeout = 15 * time.Second
	}
	if strings.TrimSpace(f.UserAgent) == "" {
		f.UserAgent = "deepscout/1.0"
	}
	return f
}

// SandboxConfig declares remote-execution settings.
type SandboxConfig struct {
	Provider       string        `mapstructure:"provider"`
	Image          string        `mapstructure:"image"`
	InstallTimeout time.Duration `mapstructure:"install_timeout"`
	RunTimeout     time.Duration `mapstructure:"run_timeout"`
	ForceRemote    bool          `mapstructure:"force_remote"`
}

func (s SandboxConfig) Normalize() SandboxConfig {
	if strings.TrimSpace(s.Provider) == "" {
		s.Provider = "docker"
	}
	if strings.TrimSpace(s.Image) == "" {
		s.Image = "golang:1.24-alpine"
	}
	if s.InstallTimeout <= 0 {
		s.InstallTimeout = 2 * time.Minute
	}
	if s.RunTimeout <= 0 {
		s.RunTimeout = 5 * time.Minute
	}
	return s
}

func (s SandboxConfig) Validate() error {
	if s.Provider != "docker" && s.Provider != "none" {
		return fmt.Errorf("sandbox.provider must be docker or none, got %q", s.Provider)
	}
	if s.InstallTimeout > s.RunTimeout {
		return fmt.Errorf("sandbox.install_timeout must not exceed sandbox.run_timeout")
	}
	return nil
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Creds reports whether the credentials required to run a research
// session are present.
func (c *Config) Creds() error {
	hasLLM := false
	for _, p := range c.LLM.Providers {
		if strings.TrimSpace(p.APIKey) != "" {
			hasLLM = true
			break
		}
	}
	if !hasLLM {
		return fmt.Errorf("no LLM provider API key configured")
	}
	if strings.TrimSpace(c.Search.APIKey) == "" {
		return fmt.Errorf("search api_key not configured")
	}
	return nil
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("general.default_timeout", "10m")
	viper.SetDefault("llm.routing.fallback", "gpt-4o-mini")
	viper.SetDefault("search.endpoint", "https://api.exa.ai")
	viper.SetDefault("fetch.enabled", true)
	viper.SetDefault("sandbox.provider", "docker")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("DEEPSCOUT")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv() // read in environment variables that match (DEEPSCOUT_*)

	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config

	if err = viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.Search = config.Search.Normalize()
	config.Fetch = config.Fetch.Normalize()
	config.Sandbox = config.Sandbox.Normalize()

	if err := config.LLM.Validate(); err != nil {
		panic(err)
	}
	if err := config.Sandbox.Validate(); err != nil {
		panic(err)
	}
	return &config
}
