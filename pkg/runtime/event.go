package runtime

import (
	"encoding/json"
	"fmt"
)

// Event is one frame of the UI message stream sent to clients during a
// turn. Every event marshals to a JSON object with a "type" field.
type Event interface {
	isEvent()
}

type StartEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId,omitempty"`
}

func Start(messageID string) Event {
	return &StartEvent{
		Type:      "start",
		MessageID: messageID,
	}
}

func (e *StartEvent) isEvent() {}

type StartStepEvent struct {
	Type string `json:"type"`
}

func StartStep() Event {
	return &StartStepEvent{Type: "start-step"}
}

func (e *StartStepEvent) isEvent() {}

type TextStartEvent struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func TextStart(id string) Event {
	return &TextStartEvent{
		Type: "text-start",
		ID:   id,
	}
}

func (e *TextStartEvent) isEvent() {}

type TextDeltaEvent struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Delta string `json:"delta"`
}

func TextDelta(id, delta string) Event {
	return &TextDeltaEvent{
		Type:  "text-delta",
		ID:    id,
		Delta: delta,
	}
}

func (e *TextDeltaEvent) isEvent() {}

type TextEndEvent struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func TextEnd(id string) Event {
	return &TextEndEvent{
		Type: "text-end",
		ID:   id,
	}
}

func (e *TextEndEvent) isEvent() {}

// ToolInputStartEvent is sent when the model starts a tool call.
type ToolInputStartEvent struct {
	Type       string `json:"type"`
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
}

func ToolInputStart(toolCallID, toolName string) Event {
	return &ToolInputStartEvent{
		Type:       "tool-input-start",
		ToolCallID: toolCallID,
		ToolName:   toolName,
	}
}

func (e *ToolInputStartEvent) isEvent() {}

// ToolInputDeltaEvent carries a chunk of the tool call arguments as the
// model emits them. The chunks are not valid JSON on their own.
type ToolInputDeltaEvent struct {
	Type           string `json:"type"`
	ToolCallID     string `json:"toolCallId"`
	InputTextDelta string `json:"inputTextDelta"`
}

func ToolInputDelta(toolCallID, delta string) Event {
	return &ToolInputDeltaEvent{
		Type:           "tool-input-delta",
		ToolCallID:     toolCallID,
		InputTextDelta: delta,
	}
}

func (e *ToolInputDeltaEvent) isEvent() {}

// ToolInputAvailableEvent is sent once the arguments of a call are
// complete. Execution starts right after it.
type ToolInputAvailableEvent struct {
	Type       string          `json:"type"`
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Input      json.RawMessage `json:"input"`
}

func ToolInputAvailable(toolCallID, toolName string, input json.RawMessage) Event {
	return &ToolInputAvailableEvent{
		Type:       "tool-input-available",
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Input:      input,
	}
}

func (e *ToolInputAvailableEvent) isEvent() {}

type ToolOutputAvailableEvent struct {
	Type       string          `json:"type"`
	ToolCallID string          `json:"toolCallId"`
	Output     json.RawMessage `json:"output"`
}

func ToolOutputAvailable(toolCallID string, output json.RawMessage) Event {
	return &ToolOutputAvailableEvent{
		Type:       "tool-output-available",
		ToolCallID: toolCallID,
		Output:     output,
	}
}

func (e *ToolOutputAvailableEvent) isEvent() {}

type ToolOutputErrorEvent struct {
	Type       string `json:"type"`
	ToolCallID string `json:"toolCallId"`
	ErrorText  string `json:"errorText"`
}

func ToolOutputError(toolCallID, errorText string) Event {
	return &ToolOutputErrorEvent{
		Type:       "tool-output-error",
		ToolCallID: toolCallID,
		ErrorText:  errorText,
	}
}

func (e *ToolOutputErrorEvent) isEvent() {}

type FinishStepEvent struct {
	Type string `json:"type"`
}

func FinishStep() Event {
	return &FinishStepEvent{Type: "finish-step"}
}

func (e *FinishStepEvent) isEvent() {}

type FinishEvent struct {
	Type string `json:"type"`
}

func Finish() Event {
	return &FinishEvent{Type: "finish"}
}

func (e *FinishEvent) isEvent() {}

// ErrorEvent ends a turn that could not complete. No more events follow.
type ErrorEvent struct {
	Type      string `json:"type"`
	ErrorText string `json:"errorText"`
}

func Error(errorText string) Event {
	return &ErrorEvent{
		Type:      "error",
		ErrorText: errorText,
	}
}

func (e *ErrorEvent) isEvent() {}

// DecodeEvent parses one JSON frame of the stream.
func DecodeEvent(data []byte) (Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}

	var event Event
	switch head.Type {
	case "start":
		event = &StartEvent{}
	case "start-step":
		event = &StartStepEvent{}
	case "text-start":
		event = &TextStartEvent{}
	case "text-delta":
		event = &TextDeltaEvent{}
	case "text-end":
		event = &TextEndEvent{}
	case "tool-input-start":
		event = &ToolInputStartEvent{}
	case "tool-input-delta":
		event = &ToolInputDeltaEvent{}
	case "tool-input-available":
		event = &ToolInputAvailableEvent{}
	case "tool-output-available":
		event = &ToolOutputAvailableEvent{}
	case "tool-output-error":
		event = &ToolOutputErrorEvent{}
	case "finish-step":
		event = &FinishStepEvent{}
	case "finish":
		event = &FinishEvent{}
	case "error":
		event = &ErrorEvent{}
	default:
		return nil, fmt.Errorf("unknown event type %q", head.Type)
	}

	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("decoding %s event: %w", head.Type, err)
	}
	return event, nil
}
