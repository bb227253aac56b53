package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvoland/vidchat/pkg/chat"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to State
		want     bool
	}{
		{"", StateInputStreaming, true},
		{"", StateInputAvailable, true},
		{StateInputStreaming, StateInputAvailable, true},
		{StateInputStreaming, StateOutputError, false},
		{StateInputStreaming, StateOutputAvailable, false},
		{"", StateOutputAvailable, false},
		{"", StateOutputError, false},
		{StateInputAvailable, StateOutputAvailable, true},
		{StateInputAvailable, StateOutputError, true},
		{StateInputAvailable, StateInputStreaming, false},
		{StateInputAvailable, StateInputAvailable, false},
		{StateOutputAvailable, StateOutputError, false},
		{StateOutputError, StateOutputAvailable, false},
		{StateOutputAvailable, StateInputStreaming, false},
		{StateInputStreaming, StateDone, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestPartWireFormat(t *testing.T) {
	t.Parallel()

	var msg Message
	err := json.Unmarshal([]byte(`{
		"id": "m1",
		"role": "assistant",
		"parts": [
			{"type": "text", "text": "Searching."},
			{"type": "tool-searchVideos", "toolCallId": "c1", "state": "output-available",
			 "input": {"indexId": "IDX1", "queryText": "red car"},
			 "output": {"videos_retrieved": []}}
		]
	}`), &msg)
	require.NoError(t, err)

	require.Len(t, msg.Parts, 2)
	assert.True(t, msg.Parts[0].IsText())
	assert.Empty(t, msg.Parts[0].ToolName())

	tool := msg.Parts[1]
	assert.True(t, tool.IsTool())
	assert.Equal(t, "searchVideos", tool.ToolName())
	assert.Equal(t, StateOutputAvailable, tool.State)
	assert.Equal(t, 1, msg.FindToolPart("c1"))
	assert.Equal(t, -1, msg.FindToolPart("nope"))
}

func TestCloneDoesNotAlias(t *testing.T) {
	t.Parallel()

	orig := Message{ID: "m", Role: RoleAssistant, Parts: []Part{{
		Type:  ToolPartType("generateImage"),
		Input: json.RawMessage(`{"prompt":"a"}`),
	}}}

	c := orig.Clone()
	c.Parts[0].Input[2] = 'X'
	c.Parts[0].State = StateOutputError

	assert.JSONEq(t, `{"prompt":"a"}`, string(orig.Parts[0].Input))
	assert.Empty(t, orig.Parts[0].State)
}

func TestToChatMessages(t *testing.T) {
	t.Parallel()

	history := []Message{
		{ID: "s", Role: RoleSystem, Parts: []Part{Text("be brief")}},
		NewUserMessage("u1", "search for a red car"),
		{ID: "a1", Role: RoleAssistant, Parts: []Part{
			Text("Let me search."),
			{
				Type:       ToolPartType("searchVideos"),
				ToolCallID: "c1",
				State:      StateOutputAvailable,
				Input:      json.RawMessage(`{"indexId":"IDX1","queryText":"red car"}`),
				Output:     json.RawMessage(`{"videos_retrieved":[]}`),
			},
			{
				Type:       ToolPartType("analyzeSelectedVideo"),
				ToolCallID: "c2",
				State:      StateOutputError,
				Input:      json.RawMessage(`{"videoId":"v","prompt":"p"}`),
				ErrorText:  "Error analyzing video: boom",
			},
			Text("Nothing found and the analysis failed."),
			{
				Type:       ToolPartType("askForConfirmation"),
				ToolCallID: "c3",
				State:      StateInputAvailable,
				Input:      json.RawMessage(`{"message":"continue?"}`),
			},
		}},
	}

	got := ToChatMessages(history)

	require.Len(t, got, 6)
	assert.Equal(t, chat.Message{Role: chat.MessageRoleSystem, Content: "be brief"}, got[0])
	assert.Equal(t, chat.Message{Role: chat.MessageRoleUser, Content: "search for a red car"}, got[1])

	assert.Equal(t, chat.MessageRoleAssistant, got[2].Role)
	assert.Equal(t, "Let me search.", got[2].Content)
	require.Len(t, got[2].ToolCalls, 2)
	assert.Equal(t, "searchVideos", got[2].ToolCalls[0].Function.Name)
	assert.Equal(t, "c2", got[2].ToolCalls[1].ID)

	assert.Equal(t, chat.Message{Role: chat.MessageRoleTool, ToolCallID: "c1", Content: `{"videos_retrieved":[]}`}, got[3])
	assert.Equal(t, chat.Message{Role: chat.MessageRoleTool, ToolCallID: "c2", Content: "Error analyzing video: boom", IsError: true}, got[4])

	assert.Equal(t, chat.Message{Role: chat.MessageRoleAssistant, Content: "Nothing found and the analysis failed."}, got[5])
}

func TestToChatMessagesIsPure(t *testing.T) {
	t.Parallel()

	history := []Message{NewUserMessage("u", "hello")}
	first := ToChatMessages(history)
	second := ToChatMessages(history)

	assert.Equal(t, first, second)
	assert.Equal(t, []Message{NewUserMessage("u", "hello")}, history)
}
