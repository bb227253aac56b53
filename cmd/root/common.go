package root

import (
	"cmp"
	"context"
	"slices"

	"github.com/vvoland/vidchat/pkg/config"
	"github.com/vvoland/vidchat/pkg/environment"
	"github.com/vvoland/vidchat/pkg/twelvelabs"
)

const (
	defaultConfigFile = "vidchat.yaml"

	envTwelveLabsAPIKey = "TWELVELABS_API_KEY"
	envXAIAPIKey        = "XAI_API_KEY"
)

// loadConfig reads --config, or vidchat.yaml from the working directory
// when it exists.
func (f *rootFlags) loadConfig() (*config.Config, error) {
	if f.configPath != "" {
		return config.Load(f.configPath, true)
	}
	return config.Load(defaultConfigFile, false)
}

func (f *rootFlags) environment() (environment.Provider, error) {
	return environment.NewDefaultProvider(f.envFiles...)
}

// requireEnv checks every name at once so that a single error lists all
// the missing variables.
func requireEnv(ctx context.Context, env environment.Provider, names ...string) (map[string]string, error) {
	names = slices.DeleteFunc(slices.Clone(names), func(name string) bool { return name == "" })
	slices.Sort(names)
	return environment.Require(ctx, env, slices.Compact(names)...)
}

func newTwelveLabsClient(cfg *config.Config, apiKey string) (*twelvelabs.Client, error) {
	opts := []twelvelabs.Opt{
		twelvelabs.WithSearchMaxPages(cfg.TwelveLabs.SearchMaxPages),
		twelvelabs.WithBaseURL(cmp.Or(cfg.TwelveLabs.BaseURL, twelvelabs.DefaultBaseURL)),
	}
	return twelvelabs.NewClient(apiKey, opts...)
}

// videoClient builds the video intelligence client the direct video and
// index commands talk to.
func (f *rootFlags) videoClient(ctx context.Context) (*twelvelabs.Client, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	env, err := f.environment()
	if err != nil {
		return nil, err
	}
	values, err := requireEnv(ctx, env, envTwelveLabsAPIKey)
	if err != nil {
		return nil, err
	}
	return newTwelveLabsClient(cfg, values[envTwelveLabsAPIKey])
}
