// Package runtime runs chat turns: it streams a model completion, executes
// the tools the model asks for and feeds their results back until the
// model is done, emitting UI message stream events along the way.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vvoland/vidchat/pkg/chat"
	"github.com/vvoland/vidchat/pkg/message"
	"github.com/vvoland/vidchat/pkg/model/provider"
	"github.com/vvoland/vidchat/pkg/tools"
)

const DefaultMaxSteps = 5

type Runtime struct {
	provider         provider.Provider
	registry         *tools.Registry
	tracer           trace.Tracer
	maxSteps         int
	enforceNarration bool
}

type Opt func(*Runtime)

func WithTracer(t trace.Tracer) Opt {
	return func(r *Runtime) {
		r.tracer = t
	}
}

// WithMaxSteps caps the number of model invocations in one turn.
func WithMaxSteps(n int) Opt {
	return func(r *Runtime) {
		if n > 0 {
			r.maxSteps = n
		}
	}
}

// WithNarrationEnforcement controls whether a turn that ends right after
// tool results is nudged once and then closed with a fallback summary.
func WithNarrationEnforcement(enabled bool) Opt {
	return func(r *Runtime) {
		r.enforceNarration = enabled
	}
}

func New(p provider.Provider, registry *tools.Registry, opts ...Opt) *Runtime {
	r := &Runtime{
		provider:         p,
		registry:         registry,
		maxSteps:         DefaultMaxSteps,
		enforceNarration: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunTurn starts a turn and returns its events. The channel is closed
// when the turn ends or ctx is done.
func (r *Runtime) RunTurn(ctx context.Context, history []message.Message, tc TurnContext) <-chan Event {
	events := make(chan Event, 128)

	go func() {
		defer close(events)

		send := func(e Event) bool {
			select {
			case events <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}

		r.runTurn(ctx, history, tc, send)
	}()

	return events
}

// TurnMessageID is the id of the assistant message a turn writes into.
// A conversation ending with an assistant message is a continuation after
// client tool decisions, and the turn keeps appending to that message.
func TurnMessageID(history []message.Message) string {
	if n := len(history); n > 0 && history[n-1].Role == message.RoleAssistant && history[n-1].ID != "" {
		return history[n-1].ID
	}
	return uuid.NewString()
}

func (r *Runtime) runTurn(ctx context.Context, history []message.Message, tc TurnContext, send func(Event) bool) {
	messageID := TurnMessageID(history)

	ctx, span := r.startSpan(ctx, "runtime.turn", trace.WithAttributes(
		attribute.String("turn.message_id", messageID),
		attribute.String("turn.index_id", tc.IndexID),
		attribute.String("turn.selected_video_id", tc.SelectedVideoID),
	))
	defer span.End()

	slog.Debug("Starting turn", "message_id", messageID, "history", len(history), "index_id", tc.IndexID, "selected_video_id", tc.SelectedVideoID)

	if !send(Start(messageID)) {
		return
	}

	messages := append([]chat.Message{{
		Role:    chat.MessageRoleSystem,
		Content: BuildDirective(tc),
	}}, message.ToChatMessages(history)...)

	executor := &toolExecutor{tracer: r.tracer, registry: r.registry}

	var (
		// unnarrated holds the tool outcomes no assistant text has followed yet.
		unnarrated []toolOutcome
		nudged     bool
		paused     bool
	)

	for step := 0; step < r.maxSteps; step++ {
		if !send(StartStep()) {
			return
		}

		res, err := r.runStep(ctx, step, messages, send)
		if err != nil {
			if ctx.Err() != nil {
				slog.Debug("Turn canceled", "message_id", messageID, "error", ctx.Err())
				return
			}
			slog.Error("Model stream failed", "message_id", messageID, "step", step, "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "model stream failed")
			send(Error(err.Error()))
			return
		}

		if res.text != "" {
			unnarrated = nil
		}
		messages = append(messages, chat.Message{
			Role:      chat.MessageRoleAssistant,
			Content:   res.text,
			ToolCalls: res.calls,
		})

		processed := executor.ProcessToolCalls(ctx, res.calls, tc, send)
		if ctx.Err() != nil {
			return
		}
		unnarrated = append(unnarrated, processed.outcomes...)
		messages = append(messages, processed.messages...)

		if !send(FinishStep()) {
			return
		}

		if processed.awaitingClient {
			slog.Debug("Turn paused for a client decision", "message_id", messageID)
			paused = true
			break
		}

		if len(res.calls) > 0 {
			continue
		}

		if len(unnarrated) > 0 && r.enforceNarration && !nudged {
			slog.Warn("Model ended the turn without narrating tool results, nudging", "message_id", messageID)
			nudged = true
			messages = append(messages, chat.Message{Role: chat.MessageRoleUser, Content: narrationNudge})
			continue
		}
		break
	}

	if len(unnarrated) > 0 && r.enforceNarration && !paused {
		slog.Warn("Closing turn with a fallback summary", "message_id", messageID, "tools", len(unnarrated))
		if !r.emitFallback(unnarrated, send) {
			return
		}
	}

	span.SetStatus(codes.Ok, "turn completed")
	send(Finish())
}

type stepResult struct {
	text         string
	calls        []tools.ToolCall
	finishReason chat.FinishReason
}

// runStep streams one model completion, forwarding text and tool input
// deltas as they arrive.
func (r *Runtime) runStep(ctx context.Context, step int, messages []chat.Message, send func(Event) bool) (*stepResult, error) {
	ctx, span := r.startSpan(ctx, "runtime.step", trace.WithAttributes(
		attribute.Int("step", step),
		attribute.String("model", r.provider.ID()),
	))
	defer span.End()

	stream, err := r.provider.CreateChatCompletionStream(ctx, messages, r.registry.Tools())
	if err != nil {
		return nil, fmt.Errorf("creating chat completion stream: %w", err)
	}
	defer stream.Close()

	var (
		res    stepResult
		text   strings.Builder
		textID string
		acc    toolCallAccumulator
	)

	closeText := func() {
		if textID != "" {
			send(TextEnd(textID))
			textID = ""
		}
	}

	// A call starts on the wire once its name is known. Arguments that
	// arrived earlier are sent as one delta.
	started := map[string]bool{}
	startCall := func(call *tools.ToolCall) {
		started[call.ID] = true
		send(ToolInputStart(call.ID, call.Function.Name))
		if call.Function.Arguments != "" {
			send(ToolInputDelta(call.ID, call.Function.Arguments))
		}
	}

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if response.Usage != nil {
			span.SetAttributes(
				attribute.Int64("usage.input_tokens", response.Usage.InputTokens),
				attribute.Int64("usage.output_tokens", response.Usage.OutputTokens),
			)
		}
		if len(response.Choices) == 0 {
			continue
		}

		choice := response.Choices[0]
		if choice.FinishReason != "" && choice.FinishReason != chat.FinishReasonNull {
			res.finishReason = choice.FinishReason
		}

		if choice.Delta.Content != "" {
			if textID == "" {
				textID = uuid.NewString()
				send(TextStart(textID))
			}
			text.WriteString(choice.Delta.Content)
			send(TextDelta(textID, choice.Delta.Content))
		}

		for _, delta := range choice.Delta.ToolCalls {
			call, _ := acc.add(delta)
			switch {
			case started[call.ID]:
				if delta.Function.Arguments != "" {
					send(ToolInputDelta(call.ID, delta.Function.Arguments))
				}
			case call.Function.Name != "":
				closeText()
				startCall(call)
			}
		}
	}
	closeText()

	// Calls the model never named still get a start so their walk is complete.
	for _, call := range acc.list {
		if !started[call.ID] {
			startCall(call)
		}
	}

	res.text = text.String()
	res.calls = acc.calls()

	slog.Debug("Step completed", "step", step, "text_length", len(res.text), "tool_calls", len(res.calls), "finish_reason", res.finishReason)
	return &res, nil
}

// emitFallback closes a turn whose tool results the model never explained
// with a short summary of their outcomes.
func (r *Runtime) emitFallback(outcomes []toolOutcome, send func(Event) bool) bool {
	id := uuid.NewString()
	return send(StartStep()) &&
		send(TextStart(id)) &&
		send(TextDelta(id, fallbackSummary(outcomes))) &&
		send(TextEnd(id)) &&
		send(FinishStep())
}

func fallbackSummary(outcomes []toolOutcome) string {
	var sb strings.Builder
	sb.WriteString("Here is what the tools returned:")
	for _, o := range outcomes {
		if o.errorText != "" {
			fmt.Fprintf(&sb, "\n- %s failed: %s", o.name, o.errorText)
		} else {
			fmt.Fprintf(&sb, "\n- %s completed successfully.", o.name)
		}
	}
	return sb.String()
}

func (r *Runtime) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if r.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return r.tracer.Start(ctx, name, opts...)
}

// toolCallAccumulator assembles streamed tool call deltas. Deltas are
// matched by id, then by index, then to the latest call.
type toolCallAccumulator struct {
	list []*tools.ToolCall
}

func (a *toolCallAccumulator) add(delta tools.ToolCall) (*tools.ToolCall, bool) {
	call := a.find(delta)
	isNew := call == nil
	if isNew {
		call = &tools.ToolCall{
			Index: delta.Index,
			ID:    delta.ID,
			Type:  tools.ToolTypeFunction,
		}
		if call.ID == "" {
			call.ID = "call_" + uuid.NewString()
		}
		a.list = append(a.list, call)
	}

	if delta.Function.Name != "" {
		call.Function.Name = delta.Function.Name
	}
	call.Function.Arguments += delta.Function.Arguments
	return call, isNew
}

func (a *toolCallAccumulator) find(delta tools.ToolCall) *tools.ToolCall {
	if delta.ID != "" {
		for _, c := range a.list {
			if c.ID == delta.ID {
				return c
			}
		}
		return nil
	}
	if delta.Index != nil {
		for _, c := range a.list {
			if c.Index != nil && *c.Index == *delta.Index {
				return c
			}
		}
		return nil
	}
	if n := len(a.list); n > 0 {
		return a.list[n-1]
	}
	return nil
}

func (a *toolCallAccumulator) calls() []tools.ToolCall {
	if len(a.list) == 0 {
		return nil
	}
	out := make([]tools.ToolCall, len(a.list))
	for i, c := range a.list {
		out[i] = *c
	}
	return out
}
