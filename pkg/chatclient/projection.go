// Package chatclient consumes the UI message stream of a chat turn and
// keeps a live projection of the conversation for rendering.
package chatclient

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/vvoland/vidchat/pkg/message"
	"github.com/vvoland/vidchat/pkg/runtime"
	"github.com/vvoland/vidchat/pkg/tools/builtin"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusSubmitted Status = "submitted"
	StatusStreaming Status = "streaming"
	StatusDone      Status = "done"
	StatusErrored   Status = "errored"
)

var ErrUnknownToolCall = errors.New("no tool call awaiting a decision with this id")

// Projection reduces stream events into messages. It is safe for
// concurrent use: one goroutine applies events while others read.
type Projection struct {
	mu       sync.RWMutex
	messages []message.Message
	status   Status
	errText  string

	// current is the index of the assistant message the turn writes into.
	current int
	// textParts maps stream text ids to part indexes of the current message.
	textParts map[string]int
	openText  int
}

func NewProjection(history ...message.Message) *Projection {
	p := &Projection{
		status:  StatusIdle,
		current: -1,
	}
	for i := range history {
		p.messages = append(p.messages, history[i].Clone())
	}
	p.resetTurn()
	return p
}

func (p *Projection) resetTurn() {
	p.current = -1
	p.textParts = map[string]int{}
	p.openText = -1
}

// Messages returns a snapshot of the conversation.
func (p *Projection) Messages() []message.Message {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]message.Message, len(p.messages))
	for i := range p.messages {
		out[i] = p.messages[i].Clone()
	}
	return out
}

func (p *Projection) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Err returns the error text of the last errored turn.
func (p *Projection) Err() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.errText
}

// AppendUser adds a user message to the conversation.
func (p *Projection) AppendUser(msg message.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg.Clone())
}

// BeginTurn marks a request as sent.
func (p *Projection) BeginTurn() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusSubmitted
	p.errText = ""
	p.resetTurn()
}

// EndTurn records how the stream closed. A nil error is a clean close
// unless the stream already reported an error.
func (p *Projection) EndTurn(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current >= 0 {
		parts := p.messages[p.current].Parts
		for i := range parts {
			if parts[i].IsText() && parts[i].State == message.StateStreaming {
				parts[i].State = message.StateDone
			}
		}
	}
	p.resetTurn()

	switch {
	case err != nil:
		p.status = StatusErrored
		if p.errText == "" {
			p.errText = err.Error()
		}
	case p.status != StatusErrored:
		p.status = StatusDone
	}
}

// Apply reduces one event. Events that contradict the projection are
// logged and dropped.
func (p *Projection) Apply(event runtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status == StatusSubmitted || p.status == StatusIdle {
		p.status = StatusStreaming
	}

	switch e := event.(type) {
	case *runtime.StartEvent:
		p.startMessage(e.MessageID)
	case *runtime.TextStartEvent:
		p.openTextPart(e.ID)
	case *runtime.TextDeltaEvent:
		p.appendText(e.ID, e.Delta)
	case *runtime.TextEndEvent:
		p.closeText(e.ID)
	case *runtime.ToolInputStartEvent:
		p.startTool(e.ToolCallID, e.ToolName)
	case *runtime.ToolInputDeltaEvent:
		p.appendToolInput(e.ToolCallID, e.InputTextDelta)
	case *runtime.ToolInputAvailableEvent:
		p.toolInputAvailable(e.ToolCallID, e.ToolName, e.Input)
	case *runtime.ToolOutputAvailableEvent:
		p.settleTool(e.ToolCallID, message.StateOutputAvailable, func(part *message.Part) {
			part.Output = append(json.RawMessage(nil), e.Output...)
		})
	case *runtime.ToolOutputErrorEvent:
		p.settleTool(e.ToolCallID, message.StateOutputError, func(part *message.Part) {
			part.ErrorText = e.ErrorText
		})
	case *runtime.ErrorEvent:
		p.status = StatusErrored
		p.errText = e.ErrorText
	}
}

func (p *Projection) startMessage(id string) {
	if n := len(p.messages); n > 0 && p.messages[n-1].Role == message.RoleAssistant && p.messages[n-1].ID == id {
		p.current = n - 1
		return
	}
	if id == "" {
		id = uuid.NewString()
	}
	p.messages = append(p.messages, message.Message{ID: id, Role: message.RoleAssistant})
	p.current = len(p.messages) - 1
}

func (p *Projection) assistant() *message.Message {
	if p.current < 0 {
		p.startMessage("")
	}
	return &p.messages[p.current]
}

func (p *Projection) openTextPart(id string) int {
	msg := p.assistant()
	msg.Parts = append(msg.Parts, message.Part{Type: message.PartTypeText, State: message.StateStreaming})
	idx := len(msg.Parts) - 1
	if id != "" {
		p.textParts[id] = idx
	}
	p.openText = idx
	return idx
}

func (p *Projection) appendText(id, delta string) {
	msg := p.assistant()

	idx, ok := p.textParts[id]
	if !ok {
		idx = p.openText
	}
	if idx < 0 {
		idx = p.openTextPart(id)
	}
	msg.Parts[idx].Text += delta
}

func (p *Projection) closeText(id string) {
	idx, ok := p.textParts[id]
	if !ok {
		slog.Warn("Ignoring text end for an unknown text part", "id", id)
		return
	}
	p.assistant().Parts[idx].State = message.StateDone
	delete(p.textParts, id)
	if p.openText == idx {
		p.openText = -1
	}
}

// findTool returns the part of a tool call in the current assistant
// message, or nil.
func (p *Projection) findTool(toolCallID string) *message.Part {
	if p.current < 0 {
		return nil
	}
	msg := &p.messages[p.current]
	if i := msg.FindToolPart(toolCallID); i >= 0 {
		return &msg.Parts[i]
	}
	return nil
}

func (p *Projection) startTool(toolCallID, toolName string) {
	if p.findTool(toolCallID) != nil {
		slog.Warn("Ignoring duplicate tool input start", "tool_call_id", toolCallID)
		return
	}
	msg := p.assistant()
	msg.Parts = append(msg.Parts, message.ToolInvocation(toolName, toolCallID))
	p.openText = -1
}

func (p *Projection) appendToolInput(toolCallID, delta string) {
	part := p.findTool(toolCallID)
	if part == nil {
		slog.Warn("Ignoring tool input delta for an unknown tool call", "tool_call_id", toolCallID)
		return
	}
	if part.State != message.StateInputStreaming {
		slog.Warn("Ignoring tool input delta after the input completed", "tool_call_id", toolCallID, "state", part.State)
		return
	}
	part.InputText += delta
	if json.Valid([]byte(part.InputText)) {
		part.Input = json.RawMessage(part.InputText)
	}
}

func (p *Projection) toolInputAvailable(toolCallID, toolName string, input json.RawMessage) {
	part := p.findTool(toolCallID)
	if part == nil {
		msg := p.assistant()
		msg.Parts = append(msg.Parts, message.Part{Type: message.ToolPartType(toolName), ToolCallID: toolCallID})
		part = &msg.Parts[len(msg.Parts)-1]
		p.openText = -1
	}
	if !p.transition(part, message.StateInputAvailable) {
		return
	}
	part.Input = append(json.RawMessage(nil), input...)
	part.InputText = ""
}

func (p *Projection) settleTool(toolCallID string, to message.State, apply func(*message.Part)) {
	part := p.findTool(toolCallID)
	if part == nil {
		slog.Warn("Ignoring tool result for an unknown tool call", "tool_call_id", toolCallID, "state", to)
		return
	}
	if p.transition(part, to) {
		apply(part)
	}
}

func (p *Projection) transition(part *message.Part, to message.State) bool {
	if !message.CanTransition(part.State, to) {
		slog.Warn("Ignoring invalid tool state transition", "tool_call_id", part.ToolCallID, "from", part.State, "to", to)
		return false
	}
	part.State = to
	return true
}

// IsComposing reports whether the assistant is still producing the turn
// or waits on the user, so a new message must not be sent yet. Once the
// stream has closed only client-side tool calls awaiting a decision keep
// it composing: nothing will settle the other unfinished parts.
func (p *Projection) IsComposing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	live := p.status == StatusSubmitted || p.status == StatusStreaming
	if p.status == StatusSubmitted {
		return true
	}

	msg := p.lastAssistant()
	if msg == nil || len(msg.Parts) == 0 {
		return false
	}

	last := msg.Parts[len(msg.Parts)-1]
	if live && last.IsText() && (last.Text == "" || last.State == message.StateStreaming) {
		return true
	}
	for i := range msg.Parts {
		part := &msg.Parts[i]
		if !part.IsTool() || part.State.Terminal() {
			continue
		}
		if live || awaitsDecision(part) {
			return true
		}
	}
	return false
}

// awaitsDecision reports whether the user has to settle the part.
func awaitsDecision(part *message.Part) bool {
	return part.State == message.StateInputAvailable && builtin.IsClientSide(part.ToolName())
}

// lastAssistant returns the assistant message closing the conversation.
func (p *Projection) lastAssistant() *message.Message {
	n := len(p.messages)
	if n == 0 || p.messages[n-1].Role != message.RoleAssistant {
		return nil
	}
	return &p.messages[n-1]
}

// SubmitToolDecision answers a client-side tool call waiting for the
// user. The output is stored as if the tool had returned it. Calls of
// server-side tools are never settled here.
func (p *Projection) SubmitToolDecision(toolCallID string, output any) error {
	buf, err := json.Marshal(output)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	msg := p.lastAssistant()
	if msg == nil {
		return ErrUnknownToolCall
	}
	i := msg.FindToolPart(toolCallID)
	if i < 0 || !awaitsDecision(&msg.Parts[i]) {
		return ErrUnknownToolCall
	}
	msg.Parts[i].State = message.StateOutputAvailable
	msg.Parts[i].Output = buf
	return nil
}

// ReadyToContinue reports whether the conversation ends with an
// assistant message whose tool calls all have results.
func (p *Projection) ReadyToContinue() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	msg := p.lastAssistant()
	if msg == nil {
		return false
	}

	// Only the tool parts after the last text part count.
	var tools int
	for i := len(msg.Parts) - 1; i >= 0; i-- {
		part := &msg.Parts[i]
		if part.IsText() {
			break
		}
		if !part.State.Terminal() {
			return false
		}
		tools++
	}
	return tools > 0
}

// PendingToolCalls returns the tool parts of the last assistant message
// that wait for a decision from the user.
func (p *Projection) PendingToolCalls() []message.Part {
	p.mu.RLock()
	defer p.mu.RUnlock()

	msg := p.lastAssistant()
	if msg == nil {
		return nil
	}

	var pending []message.Part
	for _, part := range msg.Clone().Parts {
		if awaitsDecision(&part) {
			pending = append(pending, part)
		}
	}
	return pending
}
