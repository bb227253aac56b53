package openai

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/vvoland/vidchat/pkg/chat"
)

// convertMessages maps the conversation onto chat completion params.
// Assistant messages without text or tool calls are dropped, the API
// rejects them.
func convertMessages(messages []chat.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for i := range messages {
		msg := &messages[i]

		switch msg.Role {
		case chat.MessageRoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case chat.MessageRoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case chat.MessageRoleAssistant:
			if len(msg.ToolCalls) == 0 && strings.TrimSpace(msg.Content) == "" {
				continue
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: assistantParam(msg)})
		case chat.MessageRoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}
	return out
}

func assistantParam(msg *chat.Message) *openai.ChatCompletionAssistantMessageParam {
	p := &openai.ChatCompletionAssistantMessageParam{}
	if msg.Content != "" {
		p.Content.OfString = param.NewOpt(msg.Content)
	}
	for _, tc := range msg.ToolCalls {
		p.ToolCalls = append(p.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			},
		})
	}
	return p
}

// errorBodyMiddleware rewrites error bodies that lack an "error" object
// into {"error": ...} so the SDK keeps their details. xAI and other
// compatible endpoints do not always follow OpenAI's error format.
func errorBodyMiddleware() option.Middleware {
	return func(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		resp, err := next(req)
		if err != nil || resp == nil || resp.StatusCode < 400 {
			return resp, err
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil || hasErrorObject(body) {
			resp.Body = io.NopCloser(bytes.NewReader(body))
			return resp, nil
		}

		if len(body) == 0 {
			body = []byte(http.StatusText(resp.StatusCode))
		}
		var wrapped []byte
		if json.Valid(body) {
			wrapped = append(append([]byte(`{"error":`), body...), '}')
		} else {
			wrapped, _ = json.Marshal(map[string]any{"error": map[string]any{"message": string(body)}})
		}
		resp.Body = io.NopCloser(bytes.NewReader(wrapped))
		resp.ContentLength = int64(len(wrapped))
		return resp, nil
	}
}

func hasErrorObject(body []byte) bool {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return false
	}
	v := bytes.TrimLeft(raw["error"], " \t\n\r")
	return len(v) > 0 && v[0] == '{'
}
