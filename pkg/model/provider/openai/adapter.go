package openai

import (
	"io"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"github.com/vvoland/vidchat/pkg/chat"
	"github.com/vvoland/vidchat/pkg/tools"
)

// streamAdapter adapts the OpenAI stream to our interface
type streamAdapter struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	// Only the first delta of a tool call carries its id.
	toolCalls map[int]string
}

func newStreamAdapter(stream *ssestream.Stream[openai.ChatCompletionChunk]) *streamAdapter {
	return &streamAdapter{
		stream:    stream,
		toolCalls: make(map[int]string),
	}
}

// Recv gets the next completion chunk
func (a *streamAdapter) Recv() (chat.MessageStreamResponse, error) {
	if !a.stream.Next() {
		if err := a.stream.Err(); err != nil {
			return chat.MessageStreamResponse{}, err
		}
		return chat.MessageStreamResponse{}, io.EOF
	}

	chunk := a.stream.Current()

	response := chat.MessageStreamResponse{
		ID:      chunk.ID,
		Model:   chunk.Model,
		Choices: make([]chat.MessageStreamChoice, len(chunk.Choices)),
	}

	if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
		response.Usage = &chat.Usage{
			InputTokens:  chunk.Usage.PromptTokens,
			OutputTokens: chunk.Usage.CompletionTokens,
		}
	}

	for i := range chunk.Choices {
		choice := &chunk.Choices[i]

		response.Choices[i] = chat.MessageStreamChoice{
			Index:        int(choice.Index),
			FinishReason: chat.FinishReason(choice.FinishReason),
			Delta: chat.MessageDelta{
				Role:    string(choice.Delta.Role),
				Content: choice.Delta.Content,
			},
		}

		for _, toolCall := range choice.Delta.ToolCalls {
			index := int(toolCall.Index)
			id := toolCall.ID
			if id == "" {
				id = a.toolCalls[index]
			} else {
				a.toolCalls[index] = id
			}

			response.Choices[i].Delta.ToolCalls = append(response.Choices[i].Delta.ToolCalls, tools.ToolCall{
				Index: &index,
				ID:    id,
				Type:  tools.ToolTypeFunction,
				Function: tools.FunctionCall{
					Name:      toolCall.Function.Name,
					Arguments: toolCall.Function.Arguments,
				},
			})
		}
	}

	return response, nil
}

// Close closes the stream
func (a *streamAdapter) Close() {
	_ = a.stream.Close()
}
