// Package provider creates the chat model clients the runtime streams
// completions from.
package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vvoland/vidchat/pkg/chat"
	"github.com/vvoland/vidchat/pkg/config"
	"github.com/vvoland/vidchat/pkg/environment"
	"github.com/vvoland/vidchat/pkg/model/provider/anthropic"
	"github.com/vvoland/vidchat/pkg/model/provider/openai"
	"github.com/vvoland/vidchat/pkg/tools"
)

// Provider defines the interface for model providers
type Provider interface {
	// ID returns "<provider>/<model>".
	ID() string
	// CreateChatCompletionStream creates a streaming chat completion request
	// It returns a stream that can be iterated over to get completion chunks
	CreateChatCompletionStream(
		ctx context.Context,
		messages []chat.Message,
		tools []tools.Tool,
	) (chat.MessageStream, error)
}

func New(ctx context.Context, cfg *config.ModelConfig, env environment.Provider) (Provider, error) {
	slog.Debug("Creating model provider", "type", cfg.Provider, "model", cfg.Model)

	switch cfg.Provider {
	case "openai":
		return openai.NewClient(ctx, cfg, env)
	case "anthropic":
		return anthropic.NewClient(ctx, cfg, env)
	default:
		slog.Error("Unknown provider type", "type", cfg.Provider)
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Provider)
	}
}
