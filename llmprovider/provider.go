package llmprovider

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/petal-labs/iris/providers"
	// Auto-register the supported providers.
	_ "github.com/petal-labs/iris/providers/anthropic"
	_ "github.com/petal-labs/iris/providers/ollama"
	_ "github.com/petal-labs/iris/providers/openai"

	"github.com/petal-labs/mcpchat/core"
)

// Config selects and authenticates a model provider.
type Config struct {
	Provider  string // anthropic | openai | ollama
	APIKey    string
	APIKeyEnv string // read when APIKey is empty
}

// ResolveAPIKey returns the explicit key or the value of APIKeyEnv.
func (c Config) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if c.APIKeyEnv != "" {
		return os.Getenv(c.APIKeyEnv)
	}
	return ""
}

// NewClient creates a core.LLMClient for the configured provider.
// It delegates to the iris provider registry to instantiate the underlying provider.
func NewClient(cfg Config) (core.LLMClient, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		return nil, errors.New("llmprovider: provider name is required")
	}
	key := cfg.ResolveAPIKey()
	if key == "" && name != "ollama" {
		return nil, fmt.Errorf("llmprovider: no API key for provider %q (set %s)", name, cfg.APIKeyEnv)
	}

	provider, err := providers.Create(name, key)
	if err != nil {
		return nil, fmt.Errorf("llmprovider: creating provider %q: %w", name, err)
	}
	return &irisAdapter{provider: provider}, nil
}
