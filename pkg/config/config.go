// Package config loads the vidchat configuration file and fills in
// defaults for everything it leaves out.
package config

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	DefaultListen      = "127.0.0.1:8080"
	DefaultTurnTimeout = 30 * time.Second
	DefaultMaxSteps    = 5

	DefaultProvider       = "openai"
	DefaultModel          = "grok-4-fast-non-reasoning"
	DefaultBaseURL        = "https://api.x.ai/v1"
	DefaultSearchMaxPages = 3
	DefaultVideoCacheTTL  = time.Minute
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load reads a YAML configuration file. A missing file is not an error
// when the path was not explicitly chosen by the user.
func Load(path string, mustExist bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !mustExist {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("parsing config file\n%s", yaml.FormatError(err, true, true))
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	c.Listen = cmp.Or(c.Listen, DefaultListen)
	c.TurnTimeout = cmp.Or(c.TurnTimeout, DefaultTurnTimeout)
	c.MaxSteps = cmp.Or(c.MaxSteps, DefaultMaxSteps)

	c.Model.Provider = cmp.Or(c.Model.Provider, DefaultProvider)
	if c.Model.Provider == DefaultProvider {
		c.Model.Model = cmp.Or(c.Model.Model, DefaultModel)
		c.Model.BaseURL = cmp.Or(c.Model.BaseURL, DefaultBaseURL)
		c.Model.TokenKey = cmp.Or(c.Model.TokenKey, "XAI_API_KEY")
	}
	if c.Model.Provider == "anthropic" {
		c.Model.Model = cmp.Or(c.Model.Model, "claude-sonnet-4-5")
		c.Model.TokenKey = cmp.Or(c.Model.TokenKey, "ANTHROPIC_API_KEY")
	}

	c.TwelveLabs.SearchMaxPages = cmp.Or(c.TwelveLabs.SearchMaxPages, DefaultSearchMaxPages)
	c.TwelveLabs.VideoCacheTTL = cmp.Or(c.TwelveLabs.VideoCacheTTL, DefaultVideoCacheTTL)
}

func (c *Config) validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	if c.MaxSteps < 1 {
		return fmt.Errorf("max_steps must be at least 1, got %d", c.MaxSteps)
	}
	if c.TurnTimeout < 0 {
		return errors.New("turn_timeout must be positive")
	}
	return nil
}
