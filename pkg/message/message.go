// Package message holds the conversation model shared by the server and its
// clients: messages made of ordered text and tool invocation parts.
package message

import (
	"encoding/json"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

const (
	PartTypeText = "text"

	toolPartPrefix = "tool-"
)

// Message is one entry of a conversation. Parts are rendered in order.
type Message struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is either a text part (Type "text") or a tool invocation part
// (Type "tool-<toolName>"). Only the fields of its kind are set.
type Part struct {
	Type  string `json:"type"`
	State State  `json:"state,omitempty"`

	Text string `json:"text,omitempty"`

	ToolCallID string          `json:"toolCallId,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`

	// InputText accumulates the raw argument deltas while the input streams.
	InputText string `json:"-"`
}

func ToolPartType(toolName string) string {
	return toolPartPrefix + toolName
}

func (p *Part) IsText() bool {
	return p.Type == PartTypeText
}

func (p *Part) IsTool() bool {
	return strings.HasPrefix(p.Type, toolPartPrefix)
}

// ToolName returns the tool of an invocation part, or "" for text parts.
func (p *Part) ToolName() string {
	if !p.IsTool() {
		return ""
	}
	return strings.TrimPrefix(p.Type, toolPartPrefix)
}

func Text(text string) Part {
	return Part{Type: PartTypeText, Text: text, State: StateDone}
}

func ToolInvocation(toolName, toolCallID string) Part {
	return Part{Type: ToolPartType(toolName), ToolCallID: toolCallID, State: StateInputStreaming}
}

// NewUserMessage builds a user message carrying a single text part.
func NewUserMessage(id, text string) Message {
	return Message{
		ID:    id,
		Role:  RoleUser,
		Parts: []Part{Text(text)},
	}
}

// Text concatenates the text parts of the message.
func (m *Message) Text() string {
	var sb strings.Builder
	for i := range m.Parts {
		if m.Parts[i].IsText() {
			sb.WriteString(m.Parts[i].Text)
		}
	}
	return sb.String()
}

// FindToolPart returns the index of the tool part with the given call id.
func (m *Message) FindToolPart(toolCallID string) int {
	for i := range m.Parts {
		if m.Parts[i].IsTool() && m.Parts[i].ToolCallID == toolCallID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy that shares no slices with m.
func (m *Message) Clone() Message {
	c := Message{ID: m.ID, Role: m.Role, Parts: make([]Part, len(m.Parts))}
	for i, p := range m.Parts {
		p.Input = cloneRaw(p.Input)
		p.Output = cloneRaw(p.Output)
		c.Parts[i] = p
	}
	return c
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return append(json.RawMessage(nil), r...)
}
