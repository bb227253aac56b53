package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvoland/vidchat/pkg/chat"
	"github.com/vvoland/vidchat/pkg/config"
	"github.com/vvoland/vidchat/pkg/tools"
)

type mapEnv map[string]string

func (m mapEnv) Get(_ context.Context, name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

func TestStream(t *testing.T) {
	t.Parallel()

	events := []string{
		`{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5","content":[],"usage":{"input_tokens":10,"output_tokens":0}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Searching."}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"searchVideos","input":{}}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"indexId\":\"IDX1\"}"}}`,
		`{"type":"content_block_stop","index":1}`,
		`{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":7}}`,
		`{"type":"message_stop"}`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		var payload map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, true, payload["stream"])
		system, _ := payload["system"].([]any)
		assert.Len(t, system, 1)

		w.Header().Set("content-type", "text/event-stream")
		for _, e := range events {
			var typed struct {
				Type string `json:"type"`
			}
			_ = json.Unmarshal([]byte(e), &typed)
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", typed.Type, e)
		}
	}))
	defer srv.Close()

	c, err := NewClient(t.Context(), &config.ModelConfig{Model: "claude-sonnet-4-5", BaseURL: srv.URL}, mapEnv{"ANTHROPIC_API_KEY": "test-key"}, option.WithMaxRetries(0))
	require.NoError(t, err)

	stream, err := c.CreateChatCompletionStream(t.Context(), []chat.Message{
		{Role: chat.MessageRoleSystem, Content: "sys"},
		{Role: chat.MessageRoleUser, Content: "search for a red car"},
	}, []tools.Tool{{Name: "searchVideos", Parameters: tools.MustSchemaFor[struct {
		IndexID string `json:"indexId"`
	}]()}})
	require.NoError(t, err)
	defer stream.Close()

	var (
		text      string
		args      string
		toolNames []string
		finish    chat.FinishReason
	)
	for {
		res, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)

		choice := res.Choices[0]
		text += choice.Delta.Content
		for _, tc := range choice.Delta.ToolCalls {
			assert.Equal(t, "toolu_1", tc.ID)
			if tc.Function.Name != "" {
				toolNames = append(toolNames, tc.Function.Name)
			}
			args += tc.Function.Arguments
		}
		if choice.FinishReason != "" {
			finish = choice.FinishReason
		}
	}

	assert.Equal(t, "Searching.", text)
	assert.Equal(t, []string{"searchVideos"}, toolNames)
	assert.JSONEq(t, `{"indexId":"IDX1"}`, args)
	assert.Equal(t, chat.FinishReasonToolCalls, finish)
}

func TestConvertMessagesGroupsToolResults(t *testing.T) {
	t.Parallel()

	converted := convertMessages([]chat.Message{
		{Role: chat.MessageRoleSystem, Content: "sys"},
		{Role: chat.MessageRoleUser, Content: "go"},
		{Role: chat.MessageRoleAssistant, Content: "Working.", ToolCalls: []tools.ToolCall{
			{ID: "a", Function: tools.FunctionCall{Name: "searchVideos", Arguments: `{"indexId":"IDX1"}`}},
			{ID: "b", Function: tools.FunctionCall{Name: "generateImage", Arguments: `not json`}},
		}},
		{Role: chat.MessageRoleTool, ToolCallID: "a", Content: "[]"},
		{Role: chat.MessageRoleTool, ToolCallID: "b", Content: "Error generating image: x", IsError: true},
		{Role: chat.MessageRoleUser, Content: "next"},
		{Role: chat.MessageRoleTool, ToolCallID: "orphan", Content: "dropped"},
	})

	require.Len(t, converted, 4)
	assert.Len(t, converted[1].Content, 3)
	assert.Len(t, converted[2].Content, 2)
	assert.Len(t, converted[3].Content, 1)
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewClient(t.Context(), &config.ModelConfig{}, mapEnv{})
	require.ErrorContains(t, err, "ANTHROPIC_API_KEY")
}
