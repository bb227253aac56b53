package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvoland/vidchat/pkg/api"
	"github.com/vvoland/vidchat/pkg/chat"
	"github.com/vvoland/vidchat/pkg/chatclient"
	"github.com/vvoland/vidchat/pkg/message"
	"github.com/vvoland/vidchat/pkg/runtime"
	"github.com/vvoland/vidchat/pkg/tools"
	"github.com/vvoland/vidchat/pkg/tools/builtin"
	"github.com/vvoland/vidchat/pkg/twelvelabs"
)

type runnerFunc func(ctx context.Context, history []message.Message, tc runtime.TurnContext) <-chan runtime.Event

func (f runnerFunc) RunTurn(ctx context.Context, history []message.Message, tc runtime.TurnContext) <-chan runtime.Event {
	return f(ctx, history, tc)
}

func scripted(events ...runtime.Event) runnerFunc {
	return func(context.Context, []message.Message, runtime.TurnContext) <-chan runtime.Event {
		ch := make(chan runtime.Event, len(events))
		for _, e := range events {
			ch <- e
		}
		close(ch)
		return ch
	}
}

// untilCanceled starts a turn that never finishes on its own.
func untilCanceled(ctx context.Context, _ []message.Message, _ runtime.TurnContext) <-chan runtime.Event {
	ch := make(chan runtime.Event, 1)
	go func() {
		defer close(ch)
		ch <- runtime.Start("a1")
		<-ctx.Done()
	}()
	return ch
}

type fakeVideos struct {
	listCalls atomic.Int32
	err       error
}

func (f *fakeVideos) ListVideos(_ context.Context, indexID string) ([]twelvelabs.Video, error) {
	f.listCalls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []twelvelabs.Video{{ID: indexID + "-v1"}}, nil
}

func (f *fakeVideos) ListIndexes(_ context.Context, name string) ([]twelvelabs.Index, error) {
	return []twelvelabs.Index{{ID: "idx-1", Name: name}}, nil
}

func (f *fakeVideos) CreateIndex(_ context.Context, name string) (string, error) {
	return "new-" + name, nil
}

func (f *fakeVideos) GetVideoURL(_ context.Context, videoID string) (string, error) {
	if videoID == "missing" {
		return "", errors.New("failed to fetch video URL: No video URL available")
	}
	return "https://hls/" + videoID + ".m3u8", nil
}

func newTestServer(t *testing.T, runner Runner, videos Videos, opts ...Opt) *httptest.Server {
	t.Helper()

	if videos == nil {
		videos = &fakeVideos{}
	}
	srv := httptest.NewServer(New(runner, videos, opts...).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postChat(t *testing.T, ctx context.Context, url string, req api.ChatRequest) *http.Response {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/api/chat", bytes.NewReader(body))
	require.NoError(t, err)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readFrames(t *testing.T, r io.Reader) []string {
	t.Helper()

	var frames []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if data, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
			frames = append(frames, data)
		}
	}
	return frames
}

func userRequest(text string) api.ChatRequest {
	return api.ChatRequest{Messages: []message.Message{message.NewUserMessage("u1", text)}}
}

func TestPingOverUnixSocket(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	socketPath := "unix://" + filepath.Join(t.TempDir(), "test.sock")

	ln, err := Listen(ctx, socketPath)
	require.NoError(t, err)

	srv := New(scripted(), &fakeVideos{})
	go srv.Serve(ctx, ln)

	var status map[string]string
	httpGET(t, ctx, socketPath, "/api/ping", &status)
	assert.Equal(t, "ok", status["status"])
}

func TestChatStream(t *testing.T) {
	t.Parallel()

	var got runtime.TurnContext
	var mu sync.Mutex
	runner := runnerFunc(func(ctx context.Context, history []message.Message, tc runtime.TurnContext) <-chan runtime.Event {
		mu.Lock()
		got = tc
		mu.Unlock()
		return scripted(runtime.Start("a1"), runtime.TextStart("t"), runtime.TextDelta("t", "Hi"), runtime.TextEnd("t"), runtime.Finish())(ctx, history, tc)
	})
	srv := newTestServer(t, runner, nil)

	req := userRequest("hello")
	req.IndexID = "IDX1"
	req.SelectedVideoID = "vid-1"
	resp := postChat(t, t.Context(), srv.URL, req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "v1", resp.Header.Get("x-vercel-ai-ui-message-stream"))

	frames := readFrames(t, resp.Body)
	require.Len(t, frames, 6)
	assert.JSONEq(t, `{"type":"start","messageId":"a1"}`, frames[0])
	assert.JSONEq(t, `{"type":"text-delta","id":"t","delta":"Hi"}`, frames[2])
	assert.Equal(t, "[DONE]", frames[5])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, runtime.TurnContext{IndexID: "IDX1", SelectedVideoID: "vid-1"}, got)
}

func TestChatRejectsBadRequests(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, scripted(), nil)

	resp := postChat(t, t.Context(), srv.URL, api.ChatRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	httpResp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer httpResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, httpResp.StatusCode)
}

func TestChatRuntimeErrorHasNoTerminator(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, scripted(runtime.Start("a1"), runtime.Error("model unavailable")), nil)

	frames := readFrames(t, postChat(t, t.Context(), srv.URL, userRequest("hi")).Body)
	require.Len(t, frames, 2)
	assert.JSONEq(t, `{"type":"error","errorText":"model unavailable"}`, frames[1])
}

func TestChatTimeout(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, runnerFunc(untilCanceled), nil, WithTurnTimeout(50*time.Millisecond))

	frames := readFrames(t, postChat(t, t.Context(), srv.URL, userRequest("hi")).Body)
	require.Len(t, frames, 2)
	assert.JSONEq(t, `{"type":"error","errorText":"turn timed out after 50ms"}`, frames[1])
}

func TestStopTurn(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, runnerFunc(untilCanceled), nil, WithTurnTimeout(10*time.Second))

	resp := postChat(t, t.Context(), srv.URL, userRequest("hi"))
	reader := bufio.NewReader(resp.Body)

	first, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, first, `"messageId":"a1"`)

	stopResp, err := http.Post(srv.URL+"/api/chat/a1/stop", "", http.NoBody)
	require.NoError(t, err)
	stopResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, stopResp.StatusCode)

	frames := readFrames(t, reader)
	require.Len(t, frames, 2)
	assert.JSONEq(t, `{"type":"finish"}`, frames[0])
	assert.Equal(t, "[DONE]", frames[1])

	stopResp, err = http.Post(srv.URL+"/api/chat/a1/stop", "", http.NoBody)
	require.NoError(t, err)
	stopResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, stopResp.StatusCode)
}

func TestListVideosIsCached(t *testing.T) {
	t.Parallel()

	videos := &fakeVideos{}
	srv := newTestServer(t, scripted(), videos, WithVideoCacheTTL(time.Minute))

	for range 3 {
		var got []twelvelabs.Video
		httpGETURL(t, srv.URL+"/api/indexes/IDX1/videos", http.StatusOK, &got)
		require.Len(t, got, 1)
		assert.Equal(t, "IDX1-v1", got[0].ID)
	}
	httpGETURL(t, srv.URL+"/api/indexes/IDX2/videos", http.StatusOK, nil)

	assert.Equal(t, int32(2), videos.listCalls.Load())
}

func TestListVideosWithoutCache(t *testing.T) {
	t.Parallel()

	videos := &fakeVideos{}
	srv := newTestServer(t, scripted(), videos, WithVideoCacheTTL(0))

	httpGETURL(t, srv.URL+"/api/indexes/IDX1/videos", http.StatusOK, nil)
	httpGETURL(t, srv.URL+"/api/indexes/IDX1/videos", http.StatusOK, nil)
	assert.Equal(t, int32(2), videos.listCalls.Load())
}

func TestListVideosFailure(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, scripted(), &fakeVideos{err: errors.New("unauthorized")})

	var errResp api.ErrorResponse
	httpGETURL(t, srv.URL+"/api/indexes/IDX1/videos", http.StatusBadGateway, &errResp)
	assert.Equal(t, "failed to list videos: unauthorized", errResp.Message)
}

func TestIndexesAndVideoURL(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, scripted(), nil)

	var indexes []twelvelabs.Index
	httpGETURL(t, srv.URL+"/api/indexes?name=footage", http.StatusOK, &indexes)
	require.Len(t, indexes, 1)
	assert.Equal(t, "footage", indexes[0].Name)

	resp, err := http.Post(srv.URL+"/api/indexes", "application/json", strings.NewReader(`{"name":"cams"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var created api.CreateIndexResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "new-cams", created.ID)

	var u api.VideoURLResponse
	httpGETURL(t, srv.URL+"/api/videos/vid-1/url", http.StatusOK, &u)
	assert.Equal(t, "https://hls/vid-1.m3u8", u.URL)

	httpGETURL(t, srv.URL+"/api/videos/missing/url", http.StatusBadGateway, nil)
}

// scriptedProvider serves one stream per model call.
type scriptedProvider struct {
	mu      sync.Mutex
	streams [][]chat.MessageStreamResponse
}

func (p *scriptedProvider) ID() string { return "test/model" }

func (p *scriptedProvider) CreateChatCompletionStream(context.Context, []chat.Message, []tools.Tool) (chat.MessageStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var next []chat.MessageStreamResponse
	if len(p.streams) > 0 {
		next, p.streams = p.streams[0], p.streams[1:]
	}
	return &sliceStream{responses: next}, nil
}

type sliceStream struct{ responses []chat.MessageStreamResponse }

func (s *sliceStream) Recv() (chat.MessageStreamResponse, error) {
	if len(s.responses) == 0 {
		return chat.MessageStreamResponse{}, io.EOF
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r, nil
}

func (s *sliceStream) Close() {}

func deltaResponse(delta chat.MessageDelta) chat.MessageStreamResponse {
	return chat.MessageStreamResponse{Choices: []chat.MessageStreamChoice{{Delta: delta}}}
}

type searchOnly struct{}

func (searchOnly) Analyze(context.Context, string, string) (*twelvelabs.Analysis, error) {
	return nil, errors.New("not used")
}

func (searchOnly) Search(_ context.Context, indexID, _ string, _ *twelvelabs.SearchOptions) ([]twelvelabs.SearchResult, error) {
	return []twelvelabs.SearchResult{{ID: indexID + "-vid", Clips: []twelvelabs.Clip{{Start: 1, End: 2, Rank: 1}}}}, nil
}

type noImages struct{}

func (noImages) Generate(context.Context, string) (string, error) { return "", errors.New("not used") }

func TestRedCarSearchEndToEnd(t *testing.T) {
	t.Parallel()

	registry, err := builtin.NewRegistry(searchOnly{}, noImages{})
	require.NoError(t, err)

	prov := &scriptedProvider{streams: [][]chat.MessageStreamResponse{
		{
			deltaResponse(chat.MessageDelta{ToolCalls: []tools.ToolCall{{ID: "call_1", Function: tools.FunctionCall{Name: "searchVideos"}}}}),
			deltaResponse(chat.MessageDelta{ToolCalls: []tools.ToolCall{{ID: "call_1", Function: tools.FunctionCall{Arguments: `{"indexId":"WRONG",`}}}}),
			deltaResponse(chat.MessageDelta{ToolCalls: []tools.ToolCall{{ID: "call_1", Function: tools.FunctionCall{Arguments: `"queryText":"red car"}`}}}}),
		},
		{
			deltaResponse(chat.MessageDelta{Content: "I found a red car in one video."}),
		},
	}}

	srv := newTestServer(t, runtime.New(prov, registry), nil)

	client, err := chatclient.NewClient(srv.URL)
	require.NoError(t, err)
	session := chatclient.NewSession(client)
	session.SetSelection(runtime.TurnContext{IndexID: "IDX1"})

	require.NoError(t, session.Send(t.Context(), "search for a red car"))

	p := session.Projection()
	assert.Equal(t, chatclient.StatusDone, p.Status())
	assert.False(t, p.IsComposing())

	msgs := p.Messages()
	require.Len(t, msgs, 2)
	parts := msgs[1].Parts
	require.Len(t, parts, 2)

	search := parts[0]
	assert.Equal(t, "searchVideos", search.ToolName())
	assert.Equal(t, message.StateOutputAvailable, search.State)
	assert.JSONEq(t, `{"indexId":"IDX1","queryText":"red car"}`, string(search.Input))

	var out builtin.SearchVideosOutput
	require.NoError(t, json.Unmarshal(search.Output, &out))
	require.Len(t, out.VideosRetrieved, 1)
	assert.Equal(t, "IDX1-vid", out.VideosRetrieved[0].ID)

	assert.True(t, parts[1].IsText())
	assert.Equal(t, "I found a red car in one video.", parts[1].Text)
}

func httpGETURL(t *testing.T, url string, wantStatus int, v any) {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, http.NoBody)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, wantStatus, resp.StatusCode)
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
}

func httpGET(t *testing.T, ctx context.Context, socketPath, path string, v any) {
	t.Helper()

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", strings.TrimPrefix(socketPath, "unix://"))
			},
		},
	}

	url := "http://_" + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	err = json.Unmarshal(buf, &v)
	require.NoError(t, err)
}
