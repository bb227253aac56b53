package message

import (
	"strings"

	"github.com/vvoland/vidchat/pkg/chat"
	"github.com/vvoland/vidchat/pkg/tools"
)

// ToChatMessages converts a conversation into provider messages.
//
// Assistant messages are split into steps: the text and tool calls of a step
// become one assistant message followed by one tool message per settled
// call. Tool parts that never reached a terminal state carry nothing the
// model can use and are dropped.
func ToChatMessages(messages []Message) []chat.Message {
	var out []chat.Message

	for i := range messages {
		msg := &messages[i]

		switch msg.Role {
		case RoleSystem:
			if text := joinText(msg.Parts); text != "" {
				out = append(out, chat.Message{Role: chat.MessageRoleSystem, Content: text})
			}
		case RoleUser:
			out = append(out, chat.Message{Role: chat.MessageRoleUser, Content: joinText(msg.Parts)})
		case RoleAssistant:
			out = append(out, assistantSteps(msg.Parts)...)
		}
	}

	return out
}

func joinText(parts []Part) string {
	var texts []string
	for i := range parts {
		if parts[i].IsText() && parts[i].Text != "" {
			texts = append(texts, parts[i].Text)
		}
	}
	return strings.Join(texts, "\n")
}

func assistantSteps(parts []Part) []chat.Message {
	var (
		out     []chat.Message
		step    chat.Message
		results []chat.Message
	)
	step.Role = chat.MessageRoleAssistant

	flush := func() {
		if step.Content != "" || len(step.ToolCalls) > 0 {
			out = append(out, step)
			out = append(out, results...)
		}
		step = chat.Message{Role: chat.MessageRoleAssistant}
		results = nil
	}

	for i := range parts {
		part := &parts[i]

		switch {
		case part.IsText():
			if len(step.ToolCalls) > 0 {
				flush()
			}
			step.Content += part.Text
		case part.IsTool() && part.State.Terminal():
			args := string(part.Input)
			if args == "" {
				args = "{}"
			}
			step.ToolCalls = append(step.ToolCalls, tools.ToolCall{
				ID:   part.ToolCallID,
				Type: tools.ToolTypeFunction,
				Function: tools.FunctionCall{
					Name:      part.ToolName(),
					Arguments: args,
				},
			})
			results = append(results, toolResult(part))
		}
	}
	flush()

	return out
}

func toolResult(part *Part) chat.Message {
	if part.State == StateOutputError {
		return chat.Message{
			Role:       chat.MessageRoleTool,
			Content:    part.ErrorText,
			ToolCallID: part.ToolCallID,
			IsError:    true,
		}
	}

	content := string(part.Output)
	if strings.TrimSpace(content) == "" {
		content = "(no output)"
	}
	return chat.Message{
		Role:       chat.MessageRoleTool,
		Content:    content,
		ToolCallID: part.ToolCallID,
	}
}
