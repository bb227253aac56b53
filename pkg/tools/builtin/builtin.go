package builtin

import "github.com/vvoland/vidchat/pkg/tools"

// NewRegistry returns the tools offered to the model on every turn.
func NewRegistry(videos interface {
	VideoAnalyzer
	VideoSearcher
}, images ImageGenerator,
) (*tools.Registry, error) {
	return tools.NewRegistry(
		NewAnalyzeVideoTool(videos),
		NewSearchVideosTool(videos),
		NewGenerateImageTool(images),
		NewAskForConfirmationTool(),
	)
}
