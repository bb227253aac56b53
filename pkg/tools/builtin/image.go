package builtin

import (
	"context"
	"fmt"

	"github.com/vvoland/vidchat/pkg/tools"
)

const ToolNameGenerateImage = "generateImage"

type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type GenerateImageArgs struct {
	Prompt string `json:"prompt" jsonschema:"The description of the image to generate"`
}

type GenerateImageOutput struct {
	ImageURL string `json:"imageUrl"`
	Prompt   string `json:"prompt"`
}

func NewGenerateImageTool(generator ImageGenerator) tools.Tool {
	return tools.Tool{
		Name:        ToolNameGenerateImage,
		Description: "Generate images using Grok AI based on a text prompt. Use this to create visualizations, diagrams, suspect sketches, scene reconstructions, or any other images needed for investigation or reporting.",
		Parameters:  tools.MustSchemaFor[GenerateImageArgs](),
		Handler: typed(func(ctx context.Context, args GenerateImageArgs) (*tools.ToolCallResult, error) {
			imageURL, err := generator.Generate(ctx, args.Prompt)
			if err != nil {
				return nil, fmt.Errorf("Error generating image: %w", err)
			}
			return tools.ResultJSON(GenerateImageOutput{ImageURL: imageURL, Prompt: args.Prompt})
		}),
	}
}
