package tools

import (
	"encoding/json"
	"fmt"
)

func JSONRoundtrip(params, v any) error {
	buf, err := json.Marshal(params)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(buf, v); err != nil {
		return err
	}

	return nil
}

// DecodeArguments parses the complete JSON arguments of a tool call into v.
// An empty payload decodes as an empty object.
func DecodeArguments(toolCall ToolCall, v any) error {
	args := toolCall.Function.Arguments
	if args == "" {
		args = "{}"
	}
	if err := json.Unmarshal([]byte(args), v); err != nil {
		return fmt.Errorf("invalid arguments for %s: %w", toolCall.Function.Name, err)
	}
	return nil
}

// ResultJSON builds a result whose model-facing output is the JSON encoding
// of the structured payload.
func ResultJSON(v any) (*ToolCallResult, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return &ToolCallResult{
		Output:     string(buf),
		Structured: v,
	}, nil
}
