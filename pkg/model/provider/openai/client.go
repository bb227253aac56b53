package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/vvoland/vidchat/pkg/chat"
	"github.com/vvoland/vidchat/pkg/config"
	"github.com/vvoland/vidchat/pkg/environment"
	"github.com/vvoland/vidchat/pkg/httpclient"
	"github.com/vvoland/vidchat/pkg/tools"
)

// Client talks to any OpenAI-compatible chat completions endpoint.
// It implements the provider.Provider interface
type Client struct {
	client openai.Client
	config *config.ModelConfig
}

// NewClient creates a new OpenAI client from the provided configuration
func NewClient(ctx context.Context, cfg *config.ModelConfig, env environment.Provider, opts ...option.RequestOption) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("model configuration is required")
	}

	tokenKey := cfg.TokenKey
	if tokenKey == "" {
		tokenKey = "OPENAI_API_KEY"
	}
	apiKey, _ := env.Get(ctx, tokenKey)
	if apiKey == "" {
		slog.Error("OpenAI client creation failed", "error", "missing API key", "env", tokenKey)
		return nil, &environment.RequiredEnvError{Missing: []string{tokenKey}}
	}

	clientOptions := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpclient.NewHTTPClient()),
		option.WithMiddleware(errorBodyMiddleware()),
	}
	if cfg.BaseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(cfg.BaseURL))
	}
	clientOptions = append(clientOptions, opts...)

	slog.Debug("OpenAI client created successfully", "model", cfg.Model, "base_url", cfg.BaseURL)
	return &Client{
		client: openai.NewClient(clientOptions...),
		config: cfg,
	}, nil
}

func (c *Client) ID() string {
	return "openai/" + c.config.Model
}

// CreateChatCompletionStream creates a streaming chat completion request
// It returns a stream that can be iterated over to get completion chunks
func (c *Client) CreateChatCompletionStream(ctx context.Context, messages []chat.Message, requestTools []tools.Tool) (chat.MessageStream, error) {
	slog.Debug("Creating OpenAI chat completion stream",
		"model", c.config.Model,
		"message_count", len(messages),
		"tool_count", len(requestTools))

	if len(messages) == 0 {
		return nil, errors.New("at least one message is required")
	}

	params := openai.ChatCompletionNewParams{
		Model:    c.config.Model,
		Messages: convertMessages(messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if c.config.Temperature != nil {
		params.Temperature = openai.Float(*c.config.Temperature)
	}
	if c.config.MaxTokens > 0 {
		params.MaxTokens = openai.Int(c.config.MaxTokens)
	}

	if len(requestTools) > 0 {
		toolsParam := make([]openai.ChatCompletionToolUnionParam, len(requestTools))
		for i, tool := range requestTools {
			paramsMap, err := tools.SchemaToMap(tool.Parameters)
			if err != nil {
				return nil, fmt.Errorf("converting parameters of tool %s: %w", tool.Name, err)
			}

			toolsParam[i] = openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  shared.FunctionParameters(paramsMap),
			})
		}
		params.Tools = toolsParam
	}

	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		if requestJSON, err := json.Marshal(params); err == nil {
			slog.Debug("OpenAI chat completion request", "request", string(requestJSON))
		}
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	return newStreamAdapter(stream), nil
}
