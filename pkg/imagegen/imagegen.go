// Package imagegen generates images through an OpenAI-compatible images
// API, xAI's Grok by default.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/vvoland/vidchat/pkg/httpclient"
)

const (
	DefaultModel   = "grok-2-image-1212"
	DefaultBaseURL = "https://api.x.ai/v1"
)

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

type Client struct {
	client openai.Client
	model  string
}

func New(cfg Config, opts ...option.RequestOption) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("XAI_API_KEY is not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	clientOptions := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(httpclient.NewHTTPClient()),
	}
	clientOptions = append(clientOptions, opts...)

	return &Client{
		client: openai.NewClient(clientOptions...),
		model:  cfg.Model,
	}, nil
}

// Generate returns the URL of a single image generated from prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	slog.Debug("Generating image", "model", c.model)

	res, err := c.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Model:  openai.ImageModel(c.model),
		Prompt: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate image: %w", err)
	}

	if len(res.Data) == 0 || res.Data[0].URL == "" {
		return "", errors.New("failed to generate image: No image URL returned")
	}
	return res.Data[0].URL, nil
}
