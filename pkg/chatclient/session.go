package chatclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/vvoland/vidchat/pkg/api"
	"github.com/vvoland/vidchat/pkg/message"
	"github.com/vvoland/vidchat/pkg/runtime"
)

var ErrBusy = errors.New("the assistant is still composing")

// Streamer runs one chat turn.
type Streamer interface {
	Chat(ctx context.Context, req api.ChatRequest, fn func(runtime.Event)) error
}

// Session is one conversation with the server together with the live UI
// selection sent along with every turn.
type Session struct {
	streamer     Streamer
	projection   *Projection
	autoContinue bool

	// OnEvent, if set, is called after every applied event.
	OnEvent func(runtime.Event)

	mu        sync.Mutex
	selection runtime.TurnContext

	// turnMu makes the busy check and the start of a turn one step.
	turnMu  sync.Mutex
	running bool
}

type SessionOption func(*Session)

// WithAutoContinue starts a continuation turn as soon as the last pending
// tool decision of a step is submitted.
func WithAutoContinue(enabled bool) SessionOption {
	return func(s *Session) {
		s.autoContinue = enabled
	}
}

func WithHistory(history ...message.Message) SessionOption {
	return func(s *Session) {
		s.projection = NewProjection(history...)
	}
}

func NewSession(streamer Streamer, opts ...SessionOption) *Session {
	s := &Session{
		streamer:   streamer,
		projection: NewProjection(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Projection() *Projection {
	return s.projection
}

// SetSelection updates the selection. Turns started afterwards use it.
func (s *Session) SetSelection(tc runtime.TurnContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = tc
}

func (s *Session) Selection() runtime.TurnContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

func (s *Session) busy() bool {
	return s.running || s.projection.IsComposing()
}

// Send appends a user message and runs a turn until its stream closes.
func (s *Session) Send(ctx context.Context, text string) error {
	s.turnMu.Lock()
	if s.busy() {
		s.turnMu.Unlock()
		return ErrBusy
	}
	s.projection.AppendUser(message.NewUserMessage(uuid.NewString(), text))
	s.begin()
	s.turnMu.Unlock()

	return s.run(ctx)
}

// SubmitToolDecision answers a client-side tool call. With auto-continue
// enabled, the decision that settles the last pending call resumes the
// turn.
func (s *Session) SubmitToolDecision(ctx context.Context, toolCallID string, output any) error {
	s.turnMu.Lock()
	if err := s.projection.SubmitToolDecision(toolCallID, output); err != nil {
		s.turnMu.Unlock()
		return err
	}
	if !s.autoContinue || s.busy() || !s.projection.ReadyToContinue() {
		s.turnMu.Unlock()
		return nil
	}
	slog.Debug("All tool decisions submitted, continuing the turn")
	s.begin()
	s.turnMu.Unlock()

	return s.run(ctx)
}

// Continue resumes the turn after tool decisions were submitted.
func (s *Session) Continue(ctx context.Context) error {
	s.turnMu.Lock()
	if s.busy() {
		s.turnMu.Unlock()
		return ErrBusy
	}
	s.begin()
	s.turnMu.Unlock()

	return s.run(ctx)
}

// begin marks a turn as started. Callers hold turnMu.
func (s *Session) begin() {
	s.running = true
	s.projection.BeginTurn()
}

func (s *Session) run(ctx context.Context) error {
	defer func() {
		s.turnMu.Lock()
		s.running = false
		s.turnMu.Unlock()
	}()

	selection := s.Selection()
	req := api.ChatRequest{
		Messages:        s.projection.Messages(),
		SelectedVideoID: selection.SelectedVideoID,
		IndexID:         selection.IndexID,
	}

	err := s.streamer.Chat(ctx, req, func(e runtime.Event) {
		s.projection.Apply(e)
		if s.OnEvent != nil {
			s.OnEvent(e)
		}
	})
	s.projection.EndTurn(err)
	return err
}
