package tools

import "context"

type ToolType string

const ToolTypeFunction ToolType = "function"

type ToolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     ToolType     `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name string `json:"name,omitempty"`

	Arguments string `json:"arguments,omitempty"`
}

// ToolCallResult is what a handler hands back to the runtime.
// Output is the text the model sees, Structured is the payload clients render.
type ToolCallResult struct {
	Output     string `json:"output"`
	Structured any    `json:"structured,omitempty"`
}

type ToolHandler func(ctx context.Context, toolCall ToolCall) (*ToolCallResult, error)

type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters"`

	// Handler is nil for tools answered by the client, such as confirmations.
	Handler ToolHandler `json:"-"`
}

// ClientSide reports whether the tool waits for a decision from the client
// instead of being executed by the runtime.
func (t *Tool) ClientSide() bool {
	return t.Handler == nil
}
