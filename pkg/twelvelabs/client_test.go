package twelvelabs

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Opt) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient("test-key", append([]Opt{WithBaseURL(srv.URL)}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewClient("")
	require.ErrorContains(t, err, "TWELVELABS_API_KEY")
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/analyze", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "vid-1", body["video_id"])
		assert.Equal(t, "what happens?", body["prompt"])
		assert.InDelta(t, 0.2, body["temperature"], 0.0001)

		_, _ = io.WriteString(w, `{"id":"res-1","data":"Two cars collide.","usage":{"output_tokens":12}}`)
	}))

	res, err := c.Analyze(t.Context(), "vid-1", "what happens?")
	require.NoError(t, err)
	assert.Equal(t, "res-1", res.ID)
	assert.Equal(t, "Two cars collide.", res.Data)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 12, res.Usage.OutputTokens)
}

func TestAnalyzeAPIError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":"video_not_found","message":"The video does not exist."}`)
	}))

	_, err := c.Analyze(t.Context(), "missing", "p")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "video_not_found", apiErr.Code)
	assert.Contains(t, err.Error(), "The video does not exist.")
}

func TestSearchDefaultsAndPaging(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /search", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "IDX1", r.FormValue("index_id"))
		assert.Equal(t, "red car", r.FormValue("query_text"))
		assert.Equal(t, []string{"visual", "audio"}, r.MultipartForm.Value["search_options"])
		assert.Equal(t, "video", r.FormValue("group_by"))
		assert.Equal(t, "or", r.FormValue("operator"))
		assert.Equal(t, "5", r.FormValue("page_limit"))
		assert.Equal(t, "score", r.FormValue("sort_option"))

		_, _ = io.WriteString(w, `{
			"data": [{"id": "vid-1", "clips": [{"start": 1.5, "end": 4, "video_id": "vid-1", "rank": 1, "thumbnail_url": "https://thumb/1"}]}],
			"page_info": {"next_page_token": "tok-2"}
		}`)
	})
	mux.HandleFunc("GET /search/tok-2", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{
			"data": [{"start": 10, "end": 12, "video_id": "vid-2", "rank": 2, "transcription": "stop the car"}],
			"page_info": {"next_page_token": "tok-3"}
		}`)
	})
	mux.HandleFunc("GET /search/tok-3", func(http.ResponseWriter, *http.Request) {
		t.Error("page cap exceeded")
	})

	c := newTestClient(t, mux, WithSearchMaxPages(2))

	results, err := c.Search(t.Context(), "IDX1", "red car", nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Grouped())
	assert.Equal(t, "vid-1", results[0].ID)
	require.Len(t, results[0].Clips, 1)
	assert.Equal(t, "https://thumb/1", results[0].Clips[0].ThumbnailURL)

	assert.False(t, results[1].Grouped())
	assert.Equal(t, "vid-2", results[1].VideoID)
	assert.Equal(t, "stop the car", results[1].Transcription)
}

func TestSearchResultJSON(t *testing.T) {
	t.Parallel()

	grouped, err := json.Marshal(SearchResult{ID: "v", Clips: []Clip{{Start: 1, End: 2, VideoID: "v", Rank: 1}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"v","clips":[{"start":1,"end":2,"videoId":"v","rank":1}]}`, string(grouped))

	flat, err := json.Marshal(SearchResult{Clip: Clip{Start: 3, End: 4, VideoID: "w", Rank: 2, Transcription: "hi"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":3,"end":4,"videoId":"w","rank":2,"transcription":"hi"}`, string(flat))
}

func TestListVideosWalksAllPages(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/indexes/IDX1/videos", r.URL.Path)

		switch r.URL.Query().Get("page") {
		case "1":
			_, _ = io.WriteString(w, `{"data":[{"_id":"a","created_at":"2025-01-02T03:04:05Z","system_metadata":{"filename":"cam1.mp4","duration":61.5}}],"page_info":{"page":1,"total_page":2}}`)
		case "2":
			_, _ = io.WriteString(w, `{"data":[{"_id":"b","created_at":"2025-01-02T03:04:05Z"}],"page_info":{"page":2,"total_page":2}}`)
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))

	videos, err := c.ListVideos(t.Context(), "IDX1")
	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, "a", videos[0].ID)
	require.NotNil(t, videos[0].SystemMetadata)
	assert.Equal(t, "cam1.mp4", videos[0].SystemMetadata.Filename)
	assert.Equal(t, "b", videos[1].ID)
	assert.Nil(t, videos[1].SystemMetadata)
}

func TestIndexes(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /indexes", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			IndexName string  `json:"index_name"`
			Models    []Model `json:"models"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "evidence", body.IndexName)
		assert.Equal(t, defaultModels(), body.Models)
		_, _ = io.WriteString(w, `{"_id":"IDX9"}`)
	})
	mux.HandleFunc("GET /indexes", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "evidence", r.URL.Query().Get("index_name"))
		assert.Equal(t, "desc", r.URL.Query().Get("sort_option"))
		_, _ = io.WriteString(w, `{"data":[{"_id":"IDX9","index_name":"evidence","video_count":3,"total_duration":120.5,"created_at":"2025-01-02T03:04:05Z","updated_at":"2025-01-02T03:04:05Z"}]}`)
	})

	c := newTestClient(t, mux)

	id, err := c.CreateIndex(t.Context(), "evidence")
	require.NoError(t, err)
	assert.Equal(t, "IDX9", id)

	indexes, err := c.ListIndexes(t.Context(), "evidence")
	require.NoError(t, err)
	require.Len(t, indexes, 1)
	assert.Equal(t, "evidence", indexes[0].Name)
	assert.Equal(t, 3, indexes[0].VideoCount)

	_, err = c.CreateIndex(t.Context(), "")
	require.Error(t, err)
}

func TestGetVideoURL(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /tasks/ready", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"hls":{"video_url":"https://cdn/ready.m3u8"}}`)
	})
	mux.HandleFunc("GET /tasks/pending", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status":"indexing"}`)
	})

	c := newTestClient(t, mux)

	u, err := c.GetVideoURL(t.Context(), "ready")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/ready.m3u8", u)

	_, err = c.GetVideoURL(t.Context(), "pending")
	require.ErrorContains(t, err, "No video URL available")
}
