package chatclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/vvoland/vidchat/pkg/api"
	"github.com/vvoland/vidchat/pkg/httpclient"
	"github.com/vvoland/vidchat/pkg/runtime"
	"github.com/vvoland/vidchat/pkg/twelvelabs"
)

// ErrIncompleteStream is returned when the server closes a stream without
// its terminator, as it does when a turn fails or runs out of time.
var ErrIncompleteStream = errors.New("stream closed before completion")

// Client is an HTTP client for the chat server.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	// Turns are bounded by the server, streams carry no client timeout.
	client := &Client{
		baseURL:    parsedURL,
		httpClient: httpclient.NewHTTPClient(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func (c *Client) endpoint(elem ...string) string {
	u := *c.baseURL
	u.Path = path.Join(append([]string{u.Path}, elem...)...)
	return u.String()
}

// Chat posts a turn and calls fn for every event until the stream ends.
// It returns nil only when the server terminated the stream.
func (c *Client) Chat(ctx context.Context, req api.ChatRequest, fn func(runtime.Event)) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/chat"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return responseError(resp)
	}

	return readStream(resp.Body, fn)
}

// readStream decodes SSE data frames. Comment lines and frames that do not
// decode are skipped.
func readStream(r io.Reader, fn func(runtime.Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			return nil
		}

		event, err := runtime.DecodeEvent([]byte(data))
		if err != nil {
			slog.Warn("Skipping undecodable stream frame", "error", err)
			continue
		}
		fn(event)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return ErrIncompleteStream
}

// Stop cancels the in-flight turn writing into the given message.
func (c *Client) Stop(ctx context.Context, messageID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/chat", messageID, "stop"), http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return responseError(resp)
	}
	return nil
}

// ListVideos returns the videos of an index.
func (c *Client) ListVideos(ctx context.Context, indexID string) ([]twelvelabs.Video, error) {
	var videos []twelvelabs.Video
	if err := c.getJSON(ctx, c.endpoint("/api/indexes", indexID, "videos"), &videos); err != nil {
		return nil, err
	}
	return videos, nil
}

// ListIndexes returns the indexes visible to the server.
func (c *Client) ListIndexes(ctx context.Context) ([]twelvelabs.Index, error) {
	var indexes []twelvelabs.Index
	if err := c.getJSON(ctx, c.endpoint("/api/indexes"), &indexes); err != nil {
		return nil, err
	}
	return indexes, nil
}

// VideoURL returns the playback URL of a video.
func (c *Client) VideoURL(ctx context.Context, videoID string) (string, error) {
	var resp api.VideoURLResponse
	if err := c.getJSON(ctx, c.endpoint("/api/videos", videoID, "url"), &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return responseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func responseError(resp *http.Response) error {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading error response body: %w", err)
	}

	var errResp api.ErrorResponse
	if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Message)
	}
	return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
}
