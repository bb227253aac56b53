package config

import "time"

type Config struct {
	Listen      string        `yaml:"listen,omitempty"`
	TurnTimeout time.Duration `yaml:"turn_timeout,omitempty"`
	MaxSteps    int           `yaml:"max_steps,omitempty"`
	// EnforceNarration makes the runtime guarantee a text reply after tool
	// results. Nil means enabled.
	EnforceNarration *bool `yaml:"enforce_narration,omitempty"`
	// AutoContinue lets the chat client resume the turn once every pending
	// tool decision has been answered.
	AutoContinue bool `yaml:"auto_continue,omitempty"`

	Model      ModelConfig      `yaml:"model,omitempty"`
	Image      ImageConfig      `yaml:"image,omitempty"`
	TwelveLabs TwelveLabsConfig `yaml:"twelvelabs,omitempty"`
}

// ModelConfig selects the chat model. Provider is "openai" for any
// OpenAI-compatible endpoint (xAI by default) or "anthropic".
type ModelConfig struct {
	Provider    string   `yaml:"provider,omitempty"`
	Model       string   `yaml:"model,omitempty"`
	BaseURL     string   `yaml:"base_url,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   int64    `yaml:"max_tokens,omitempty"`
	// TokenKey names the environment variable holding the API key.
	TokenKey string `yaml:"token_key,omitempty"`
}

type ImageConfig struct {
	Model   string `yaml:"model,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
}

type TwelveLabsConfig struct {
	BaseURL        string        `yaml:"base_url,omitempty"`
	SearchMaxPages int           `yaml:"search_max_pages,omitempty"`
	VideoCacheTTL  time.Duration `yaml:"video_cache_ttl,omitempty"`
}

func (c *Config) NarrationEnforced() bool {
	return c.EnforceNarration == nil || *c.EnforceNarration
}
