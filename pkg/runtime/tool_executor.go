package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vvoland/vidchat/pkg/chat"
	"github.com/vvoland/vidchat/pkg/tools"
	"github.com/vvoland/vidchat/pkg/tools/builtin"
)

type toolExecutor struct {
	tracer   trace.Tracer
	registry *tools.Registry
}

// toolOutcome is what a settled call leaves behind for narration.
type toolOutcome struct {
	name      string
	errorText string
}

type processResult struct {
	// messages are the tool results handed back to the model.
	messages []chat.Message
	outcomes []toolOutcome
	// awaitingClient is set when a call needs a decision from the user.
	awaitingClient bool
}

// ProcessToolCalls runs the calls of a step one after another, in the
// order the model requested them.
func (e *toolExecutor) ProcessToolCalls(ctx context.Context, calls []tools.ToolCall, tc TurnContext, send func(Event) bool) processResult {
	slog.Debug("Processing tool calls", "call_count", len(calls))

	var res processResult
	for _, toolCall := range calls {
		if ctx.Err() != nil {
			return res
		}

		callCtx, span := e.startSpan(ctx, "runtime.tool.call", trace.WithAttributes(
			attribute.String("tool.name", toolCall.Function.Name),
			attribute.String("tool.call_id", toolCall.ID),
		))

		toolCall = bindArguments(toolCall, tc)
		name := toolCall.Function.Name

		tool, exists := e.registry.Lookup(name)
		if !exists {
			slog.Warn("Tool call rejected: unknown tool", "tool", name)
			e.fail(&res, toolCall, fmt.Sprintf("Tool '%s' not found", name), false, send)
			span.SetStatus(codes.Error, "tool not found")
			span.End()
			continue
		}

		if err := tools.ValidateArguments(tool.Parameters, toolCall.Function.Arguments); err != nil {
			slog.Warn("Tool call rejected: invalid arguments", "tool", name, "error", err)
			e.fail(&res, toolCall, err.Error(), false, send)
			span.SetStatus(codes.Error, "invalid arguments")
			span.End()
			continue
		}

		send(ToolInputAvailable(toolCall.ID, name, inputJSON(toolCall.Function.Arguments)))

		if tool.ClientSide() {
			slog.Debug("Tool call awaits a client decision", "tool", name, "tool_call_id", toolCall.ID)
			res.awaitingClient = true
			span.SetStatus(codes.Ok, "awaiting client")
			span.End()
			continue
		}

		result, err := e.runTool(callCtx, tool, toolCall)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "tool handler error")
			slog.Error("Error calling tool", "tool", name, "error", err)
			e.fail(&res, toolCall, err.Error(), true, send)
			span.End()
			continue
		}

		span.SetStatus(codes.Ok, "tool handler completed")
		span.End()
		slog.Debug("Tool call completed", "tool", name, "output_length", len(result.Output))

		send(ToolOutputAvailable(toolCall.ID, outputJSON(result)))

		content := result.Output
		if strings.TrimSpace(content) == "" {
			content = "(no output)"
		}
		res.messages = append(res.messages, chat.Message{
			Role:       chat.MessageRoleTool,
			Content:    content,
			ToolCallID: toolCall.ID,
		})
		res.outcomes = append(res.outcomes, toolOutcome{name: name})
	}

	return res
}

// runTool calls the handler once. A panicking handler counts as a failed
// call.
func (e *toolExecutor) runTool(ctx context.Context, tool tools.Tool, toolCall tools.ToolCall) (res *tools.ToolCallResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("tool %s panicked: %v", tool.Name, r)
		}
	}()

	res, err = tool.Handler(ctx, toolCall)
	if err == nil && res == nil {
		res = &tools.ToolCallResult{}
	}
	return res, err
}

// fail settles a call as output-error. Calls rejected before execution
// have not announced their input yet and do it here.
func (e *toolExecutor) fail(res *processResult, toolCall tools.ToolCall, errorText string, announced bool, send func(Event) bool) {
	if !announced {
		send(ToolInputAvailable(toolCall.ID, toolCall.Function.Name, inputJSON(toolCall.Function.Arguments)))
	}
	send(ToolOutputError(toolCall.ID, errorText))

	res.messages = append(res.messages, chat.Message{
		Role:       chat.MessageRoleTool,
		Content:    errorText,
		ToolCallID: toolCall.ID,
		IsError:    true,
	})
	res.outcomes = append(res.outcomes, toolOutcome{name: toolCall.Function.Name, errorText: errorText})
}

func (e *toolExecutor) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if e.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return e.tracer.Start(ctx, name, opts...)
}

// bindArguments applies the turn context to the arguments of a call: a
// bound index always wins for searches and the selected video fills an
// empty videoId.
func bindArguments(toolCall tools.ToolCall, tc TurnContext) tools.ToolCall {
	var field, value string
	switch toolCall.Function.Name {
	case builtin.ToolNameSearchVideos:
		field, value = "indexId", tc.IndexID
	case builtin.ToolNameAnalyzeSelectedVideo:
		field, value = "videoId", tc.SelectedVideoID
	default:
		return toolCall
	}
	if value == "" {
		return toolCall
	}

	args := map[string]any{}
	if a := strings.TrimSpace(toolCall.Function.Arguments); a != "" {
		if err := json.Unmarshal([]byte(a), &args); err != nil {
			return toolCall
		}
	}

	current, _ := args[field].(string)
	switch {
	case current == value:
		return toolCall
	case current == "":
	case field == "indexId":
		slog.Warn("Rewriting searchVideos index to the bound index", "requested", current, "bound", value)
	default:
		return toolCall
	}

	args[field] = value
	buf, err := json.Marshal(args)
	if err != nil {
		return toolCall
	}
	toolCall.Function.Arguments = string(buf)
	return toolCall
}

// inputJSON returns the arguments as JSON, quoting them when the model
// produced something that does not parse.
func inputJSON(arguments string) json.RawMessage {
	if strings.TrimSpace(arguments) == "" {
		return json.RawMessage("{}")
	}
	if json.Valid([]byte(arguments)) {
		return json.RawMessage(arguments)
	}
	buf, _ := json.Marshal(arguments)
	return buf
}

func outputJSON(res *tools.ToolCallResult) json.RawMessage {
	if res.Structured != nil {
		if buf, err := json.Marshal(res.Structured); err == nil {
			return buf
		}
	}
	if json.Valid([]byte(res.Output)) {
		return json.RawMessage(res.Output)
	}
	buf, _ := json.Marshal(res.Output)
	return buf
}
