// Package config loads the mcpchat application config and the MCP server
// definition file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/petal-labs/mcpchat/agent"
	"github.com/petal-labs/mcpchat/session"
)

const (
	projectConfigName = "mcpchat.yaml"
	homeConfigDir     = ".mcpchat"
	homeConfigName    = "config.yaml"
)

// Defaults for keys absent from the config file.
const (
	DefaultProvider       = "anthropic"
	DefaultModel          = "claude-3-7-sonnet-20250219"
	DefaultMaxTokens      = 2024
	DefaultAPIKeyEnv      = "ANTHROPIC_API_KEY"
	DefaultServersFile    = "server_config.json"
	DefaultConnectTries   = 3
	DefaultRetryDelay     = time.Second
	DefaultInitTimeout    = 30 * time.Second
	DefaultResourceScheme = "papers"
	DefaultServiceName    = "mcpchat"
)

// Config is the shape of mcpchat.yaml.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Servers   ServersConfig   `yaml:"servers"`
	History   HistoryConfig   `yaml:"history"`
	Shell     ShellConfig     `yaml:"shell"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Path is the file the config was read from. Empty when only defaults apply.
	Path string `yaml:"-"`
}

// ModelConfig selects the model provider and request parameters.
type ModelConfig struct {
	Provider      string `yaml:"provider"`
	Name          string `yaml:"name"`
	MaxTokens     int    `yaml:"max_tokens"`
	SystemPrompt  string `yaml:"system_prompt,omitempty"`
	APIKeyEnv     string `yaml:"api_key_env"`
	MaxIterations int    `yaml:"max_iterations,omitempty"`
}

// ServersConfig locates the server definition file and tunes connecting.
type ServersConfig struct {
	File            string        `yaml:"file"`
	ConnectAttempts int           `yaml:"connect_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	InitTimeout     time.Duration `yaml:"init_timeout"`
	HealthCheck     string        `yaml:"health_check,omitempty"`
}

// HistoryConfig controls conversation retention and transcript recording.
type HistoryConfig struct {
	Mode string `yaml:"mode"`
	// Store is a SQLite path. Empty disables recording; "default" means
	// ~/.mcpchat/history.db.
	Store     string        `yaml:"store,omitempty"`
	Retention time.Duration `yaml:"retention,omitempty"`
}

// ShellConfig tunes the interactive shell.
type ShellConfig struct {
	ResourceScheme string `yaml:"resource_scheme"`
}

// TelemetryConfig enables OTLP export when an endpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the config used when no file is found.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

// Discover resolves the config location with first-match semantics: the
// explicit path, ./mcpchat.yaml, then ~/.mcpchat/config.yaml.
func Discover(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve user home: %w", err)
	}
	return DiscoverFrom(explicitPath, cwd, homeDir)
}

// DiscoverFrom is a testable variant of Discover.
func DiscoverFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(clean))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		candidates = append(candidates, filepath.Join(homeDir, homeConfigDir, homeConfigName))
	}

	for i, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			if i == 0 && strings.TrimSpace(explicitPath) != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// Load discovers and reads the config. Without a file the defaults apply.
func Load(explicitPath string) (Config, error) {
	path, found, err := Discover(explicitPath)
	if err != nil {
		return Config{}, err
	}
	if !found {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads one config file, fills absent keys with defaults and
// validates the result.
func LoadFile(path string) (Config, error) {
	// #nosec G304 -- path resolved from explicit local config discovery.
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	cfg.Path = path
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values that would fail later at startup.
func (c Config) Validate() error {
	switch c.Model.Provider {
	case "anthropic", "openai", "ollama":
	default:
		return fmt.Errorf("model.provider: unsupported provider %q", c.Model.Provider)
	}
	if c.Model.MaxIterations < 0 {
		return errors.New("model.max_iterations: must not be negative")
	}
	if c.Servers.ConnectAttempts < 1 {
		return errors.New("servers.connect_attempts: must be at least 1")
	}
	if _, err := agent.ParseHistoryMode(c.History.Mode); err != nil {
		return fmt.Errorf("history.mode: %w", err)
	}
	if c.Servers.HealthCheck != "" {
		if _, err := session.ParseHealthSchedule(c.Servers.HealthCheck); err != nil {
			return fmt.Errorf("servers.health_check: %w", err)
		}
	}
	return nil
}

// ServersFile returns the server definition path. A relative path is
// resolved against the config file's directory.
func (c Config) ServersFile() string {
	file := expandEnvValue(strings.TrimSpace(c.Servers.File))
	if c.Path == "" {
		return filepath.Clean(file)
	}
	return resolveConfigRelative(filepath.Dir(c.Path), file)
}

func (c *Config) applyDefaults() {
	c.Model.Provider = strings.ToLower(strings.TrimSpace(c.Model.Provider))
	if c.Model.Provider == "" {
		c.Model.Provider = DefaultProvider
	}
	if c.Model.Name == "" {
		c.Model.Name = DefaultModel
	}
	if c.Model.MaxTokens <= 0 {
		c.Model.MaxTokens = DefaultMaxTokens
	}
	if c.Model.APIKeyEnv == "" {
		switch c.Model.Provider {
		case "anthropic":
			c.Model.APIKeyEnv = DefaultAPIKeyEnv
		case "openai":
			c.Model.APIKeyEnv = "OPENAI_API_KEY"
		}
	}
	if c.Servers.File == "" {
		c.Servers.File = DefaultServersFile
	}
	if c.Servers.ConnectAttempts == 0 {
		c.Servers.ConnectAttempts = DefaultConnectTries
	}
	if c.Servers.RetryDelay <= 0 {
		c.Servers.RetryDelay = DefaultRetryDelay
	}
	if c.Servers.InitTimeout <= 0 {
		c.Servers.InitTimeout = DefaultInitTimeout
	}
	if c.History.Mode == "" {
		c.History.Mode = string(agent.HistoryPerQuery)
	}
	if c.Shell.ResourceScheme == "" {
		c.Shell.ResourceScheme = DefaultResourceScheme
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = DefaultServiceName
	}
}

func expandEnvValue(value string) string {
	return os.ExpandEnv(value)
}

func resolveConfigRelative(baseDir, p string) string {
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return clean
	}
	return filepath.Join(baseDir, clean)
}
