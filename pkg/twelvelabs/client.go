// Package twelvelabs is a small client for the TwelveLabs v1.3 REST API,
// covering the calls vidchat needs: analysis, search, index and video
// listing.
package twelvelabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/vvoland/vidchat/pkg/httpclient"
)

const DefaultBaseURL = "https://api.twelvelabs.io/v1.3"

type Client struct {
	baseURL  string
	http     *http.Client
	maxPages int
}

type Opt func(*Client)

func WithBaseURL(baseURL string) Opt {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithHTTPClient(client *http.Client) Opt {
	return func(c *Client) {
		c.http = client
	}
}

// WithSearchMaxPages caps how many result pages Search follows.
func WithSearchMaxPages(n int) Opt {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

func NewClient(apiKey string, opts ...Opt) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("TWELVELABS_API_KEY is not set")
	}

	c := &Client{
		baseURL:  DefaultBaseURL,
		maxPages: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.NewHTTPClient(httpclient.WithHeader("x-api-key", apiKey))
	}

	return c, nil
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("twelvelabs: %s (%d %s)", e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("twelvelabs: unexpected status %d", e.StatusCode)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	slog.Debug("TwelveLabs request", "method", req.Method, "path", req.URL.Path)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", req.URL.Path, err)
	}
	return nil
}
