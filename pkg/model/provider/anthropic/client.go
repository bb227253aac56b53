package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/vvoland/vidchat/pkg/chat"
	"github.com/vvoland/vidchat/pkg/config"
	"github.com/vvoland/vidchat/pkg/environment"
	"github.com/vvoland/vidchat/pkg/httpclient"
	"github.com/vvoland/vidchat/pkg/tools"
)

const defaultMaxTokens = 8192

// Client represents an Anthropic client wrapper
// It implements the provider.Provider interface
type Client struct {
	client anthropic.Client
	config *config.ModelConfig
}

// NewClient creates a new Anthropic client from the provided configuration
func NewClient(ctx context.Context, cfg *config.ModelConfig, env environment.Provider, opts ...option.RequestOption) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("model configuration is required")
	}

	tokenKey := cfg.TokenKey
	if tokenKey == "" {
		tokenKey = "ANTHROPIC_API_KEY"
	}
	authToken, _ := env.Get(ctx, tokenKey)
	if authToken == "" {
		slog.Error("Anthropic client creation failed", "error", "missing API key", "env", tokenKey)
		return nil, &environment.RequiredEnvError{Missing: []string{tokenKey}}
	}

	requestOptions := []option.RequestOption{
		option.WithAPIKey(authToken),
		option.WithHTTPClient(httpclient.NewHTTPClient()),
	}
	if cfg.BaseURL != "" {
		requestOptions = append(requestOptions, option.WithBaseURL(cfg.BaseURL))
	}
	requestOptions = append(requestOptions, opts...)

	return &Client{
		client: anthropic.NewClient(requestOptions...),
		config: cfg,
	}, nil
}

func (c *Client) ID() string {
	return "anthropic/" + c.config.Model
}

func (c *Client) CreateChatCompletionStream(
	ctx context.Context,
	messages []chat.Message,
	requestTools []tools.Tool,
) (chat.MessageStream, error) {
	slog.Debug("Creating Anthropic chat completion stream",
		"model", c.config.Model,
		"message_count", len(messages),
		"tool_count", len(requestTools))

	maxTokens := c.config.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	allTools, err := convertTools(requestTools)
	if err != nil {
		slog.Error("Failed to convert tools for Anthropic request", "error", err)
		return nil, err
	}

	converted := convertMessages(messages)
	if len(converted) == 0 {
		return nil, errors.New("no messages to send after conversion: all messages were filtered out")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		MaxTokens: maxTokens,
		System:    extractSystemBlocks(messages),
		Messages:  converted,
		Tools:     allTools,
	}
	if c.config.Temperature != nil {
		params.Temperature = param.NewOpt(*c.config.Temperature)
	}

	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		if b, err := json.Marshal(params); err == nil {
			slog.Debug("Anthropic chat completion request", "request", string(b))
		}
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	return newStreamAdapter(stream), nil
}

func convertMessages(messages []chat.Message) []anthropic.MessageParam {
	var anthropicMessages []anthropic.MessageParam
	// tool_result blocks are only valid right after an assistant message
	// with tool_use blocks.
	pendingAssistantToolUse := false

	for i := 0; i < len(messages); i++ {
		msg := &messages[i]

		switch msg.Role {
		case chat.MessageRoleSystem:
			// System messages are handled via the top-level params.System

		case chat.MessageRoleUser:
			if txt := strings.TrimSpace(msg.Content); txt != "" {
				anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(txt)))
			}
			pendingAssistantToolUse = false

		case chat.MessageRoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if txt := strings.TrimSpace(msg.Content); txt != "" {
				blocks = append(blocks, anthropic.NewTextBlock(txt))
			}
			for _, toolCall := range msg.ToolCalls {
				var input map[string]any
				if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &input); err != nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    toolCall.ID,
						Input: input,
						Name:  toolCall.Function.Name,
					},
				})
			}
			if len(blocks) > 0 {
				anthropicMessages = append(anthropicMessages, anthropic.NewAssistantMessage(blocks...))
			}
			pendingAssistantToolUse = len(msg.ToolCalls) > 0

		case chat.MessageRoleTool:
			// Group consecutive tool results into a single user message.
			var blocks []anthropic.ContentBlockParamUnion
			j := i
			for j < len(messages) && messages[j].Role == chat.MessageRoleTool {
				blocks = append(blocks, anthropic.NewToolResultBlock(messages[j].ToolCallID, strings.TrimSpace(messages[j].Content), messages[j].IsError))
				j++
			}
			if pendingAssistantToolUse {
				anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(blocks...))
			}
			pendingAssistantToolUse = false
			i = j - 1
		}
	}

	return anthropicMessages
}

// extractSystemBlocks collects system messages, which go to the
// top-level MessageNewParams.System field.
func extractSystemBlocks(messages []chat.Message) []anthropic.TextBlockParam {
	var systemBlocks []anthropic.TextBlockParam
	for i := range messages {
		if messages[i].Role != chat.MessageRoleSystem {
			continue
		}
		if txt := strings.TrimSpace(messages[i].Content); txt != "" {
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: txt})
		}
	}
	return systemBlocks
}

func convertTools(requestTools []tools.Tool) ([]anthropic.ToolUnionParam, error) {
	anthropicTools := make([]anthropic.ToolUnionParam, len(requestTools))
	for i, tool := range requestTools {
		m, err := tools.SchemaToMap(tool.Parameters)
		if err != nil {
			return nil, err
		}

		inputSchema := anthropic.ToolInputSchemaParam{Properties: m["properties"]}
		if required, ok := m["required"].([]any); ok {
			for _, r := range required {
				if s, ok := r.(string); ok {
					inputSchema.Required = append(inputSchema.Required, s)
				}
			}
		}

		anthropicTools[i] = anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: inputSchema,
		}}
	}
	return anthropicTools, nil
}
