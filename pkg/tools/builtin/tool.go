package builtin

import (
	"context"

	"github.com/vvoland/vidchat/pkg/tools"
)

// typed adapts a handler taking decoded arguments to tools.ToolHandler.
// Arguments that do not decode into Args fail the call before fn runs.
func typed[Args any](fn func(context.Context, Args) (*tools.ToolCallResult, error)) tools.ToolHandler {
	return func(ctx context.Context, call tools.ToolCall) (*tools.ToolCallResult, error) {
		var args Args
		if err := tools.DecodeArguments(call, &args); err != nil {
			return nil, err
		}
		return fn(ctx, args)
	}
}
