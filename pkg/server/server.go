package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/vvoland/vidchat/pkg/api"
	"github.com/vvoland/vidchat/pkg/concurrent"
	"github.com/vvoland/vidchat/pkg/message"
	"github.com/vvoland/vidchat/pkg/runtime"
	"github.com/vvoland/vidchat/pkg/twelvelabs"
)

const DefaultTurnTimeout = 30 * time.Second

var (
	errTurnTimeout = errors.New("turn timed out")
	errTurnStopped = errors.New("turn stopped")
)

// Runner runs one chat turn.
type Runner interface {
	RunTurn(ctx context.Context, history []message.Message, tc runtime.TurnContext) <-chan runtime.Event
}

// Videos is the part of the video intelligence service exposed as plain
// endpoints.
type Videos interface {
	ListVideos(ctx context.Context, indexID string) ([]twelvelabs.Video, error)
	ListIndexes(ctx context.Context, name string) ([]twelvelabs.Index, error)
	CreateIndex(ctx context.Context, name string) (string, error)
	GetVideoURL(ctx context.Context, videoID string) (string, error)
}

type Server struct {
	e           *echo.Echo
	runner      Runner
	videos      Videos
	turnTimeout time.Duration
	videoTTL    time.Duration
	videoCache  *cache.Cache

	// turns holds the cancel function of each in-flight turn by message id.
	turns *concurrent.Map[string, context.CancelFunc]
}

type Opt func(*Server)

func WithTurnTimeout(d time.Duration) Opt {
	return func(s *Server) {
		if d > 0 {
			s.turnTimeout = d
		}
	}
}

// WithVideoCacheTTL sets how long video listings are served from memory.
// Zero disables the cache.
func WithVideoCacheTTL(d time.Duration) Opt {
	return func(s *Server) {
		s.videoTTL = d
	}
}

func New(runner Runner, videos Videos, opts ...Opt) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())

	s := &Server{
		e:           e,
		runner:      runner,
		videos:      videos,
		turnTimeout: DefaultTurnTimeout,
		videoTTL:    time.Minute,
		turns:       concurrent.NewMap[string, context.CancelFunc](),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.videoTTL > 0 {
		s.videoCache = cache.New(s.videoTTL, 2*s.videoTTL)
	}

	group := e.Group("/api")

	// Run a chat turn
	group.POST("/chat", s.chat)
	// Stop an in-flight turn by the id of the message it writes
	group.POST("/chat/:id/stop", s.stopTurn)

	group.GET("/indexes", s.listIndexes)
	group.POST("/indexes", s.createIndex)
	group.GET("/indexes/:id/videos", s.listVideos)
	group.GET("/videos/:id/url", s.videoURL)

	// Health check endpoint
	group.GET("/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := http.Server{
		Handler:           s.e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		slog.Error("Failed to start server", "error", err)
		return err
	}

	return nil
}

func (s *Server) chat(c echo.Context) error {
	var req api.ChatRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	if len(req.Messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "messages are required")
	}

	ctx, stop := context.WithCancelCause(c.Request().Context())
	defer stop(nil)
	ctx, cancel := context.WithTimeoutCause(ctx, s.turnTimeout, errTurnTimeout)
	defer cancel()

	tc := runtime.TurnContext{SelectedVideoID: req.SelectedVideoID, IndexID: req.IndexID}
	slog.Debug("Running chat turn", "messages", len(req.Messages), "index_id", tc.IndexID, "selected_video_id", tc.SelectedVideoID)

	events := s.runner.RunTurn(ctx, req.Messages, tc)

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("x-vercel-ai-ui-message-stream", "v1")
	w.WriteHeader(http.StatusOK)

	var (
		messageID string
		finished  bool
		failed    bool
	)
	defer func() {
		if messageID != "" {
			s.turns.Delete(messageID)
		}
	}()

	for event := range events {
		switch e := event.(type) {
		case *runtime.StartEvent:
			messageID = e.MessageID
			s.turns.Store(messageID, func() { stop(errTurnStopped) })
		case *runtime.FinishEvent:
			finished = true
		case *runtime.ErrorEvent:
			failed = true
		}
		writeEvent(w, event)
	}

	switch cause := context.Cause(ctx); {
	case failed:
		return nil
	case finished:
	case errors.Is(cause, errTurnTimeout):
		slog.Warn("Chat turn timed out", "message_id", messageID, "timeout", s.turnTimeout)
		writeEvent(w, runtime.Error(fmt.Sprintf("%s after %s", errTurnTimeout, s.turnTimeout)))
		return nil
	case errors.Is(cause, errTurnStopped):
		slog.Debug("Chat turn stopped", "message_id", messageID)
		writeEvent(w, runtime.Finish())
	default:
		// The client went away, nobody reads the rest.
		return nil
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	w.Flush()
	return nil
}

func writeEvent(w *echo.Response, event runtime.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal event", "error", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	w.Flush()
}

func (s *Server) stopTurn(c echo.Context) error {
	id := c.Param("id")

	cancel, ok := s.turns.LoadAndDelete(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no turn in progress for message %s", id))
	}
	cancel()

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listVideos(c echo.Context) error {
	indexID := c.Param("id")

	if s.videoCache != nil {
		if videos, ok := s.videoCache.Get(indexID); ok {
			return c.JSON(http.StatusOK, videos)
		}
	}

	videos, err := s.videos.ListVideos(c.Request().Context(), indexID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("failed to list videos: %v", err))
	}
	if videos == nil {
		videos = []twelvelabs.Video{}
	}

	if s.videoCache != nil {
		s.videoCache.SetDefault(indexID, videos)
	}
	return c.JSON(http.StatusOK, videos)
}

func (s *Server) listIndexes(c echo.Context) error {
	indexes, err := s.videos.ListIndexes(c.Request().Context(), c.QueryParam("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("failed to list indexes: %v", err))
	}
	if indexes == nil {
		indexes = []twelvelabs.Index{}
	}
	return c.JSON(http.StatusOK, indexes)
}

func (s *Server) createIndex(c echo.Context) error {
	var req api.CreateIndexRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	id, err := s.videos.CreateIndex(c.Request().Context(), req.Name)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("failed to create index: %v", err))
	}
	return c.JSON(http.StatusCreated, api.CreateIndexResponse{ID: id})
}

func (s *Server) videoURL(c echo.Context) error {
	url, err := s.videos.GetVideoURL(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, api.VideoURLResponse{URL: url})
}
