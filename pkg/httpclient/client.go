package httpclient

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/vvoland/vidchat/pkg/version"
)

type HTTPOptions struct {
	Header  http.Header
	Timeout time.Duration
}

type Opt func(*HTTPOptions)

func WithHeader(key, value string) Opt {
	return func(o *HTTPOptions) {
		o.Header.Set(key, value)
	}
}

func WithTimeout(timeout time.Duration) Opt {
	return func(o *HTTPOptions) {
		o.Timeout = timeout
	}
}

// NewHTTPClient returns a client that tags every request with the vidchat
// User-Agent plus any extra headers.
func NewHTTPClient(opts ...Opt) *http.Client {
	httpOptions := HTTPOptions{
		Header: make(http.Header),
	}
	for _, opt := range opts {
		opt(&httpOptions)
	}
	httpOptions.Header.Set("User-Agent", fmt.Sprintf("vidchat/%s (%s; %s)", version.Version, runtime.GOOS, runtime.GOARCH))

	return &http.Client{
		Timeout: httpOptions.Timeout,
		Transport: &headerTransport{
			header: httpOptions.Header,
			rt:     http.DefaultTransport,
		},
	}
}

type headerTransport struct {
	header http.Header
	rt     http.RoundTripper
}

func (h *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r2 := req.Clone(req.Context())
	for key, values := range h.header {
		r2.Header[key] = values
	}
	return h.rt.RoundTrip(r2)
}
