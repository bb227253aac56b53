package twelvelabs

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
)

type SearchOptions struct {
	SearchOptions []string
	GroupBy       string
	Operator      string
	Filter        string
	PageLimit     int
	SortOption    string
}

func (o *SearchOptions) withDefaults() SearchOptions {
	var opts SearchOptions
	if o != nil {
		opts = *o
	}
	if len(opts.SearchOptions) == 0 {
		opts.SearchOptions = []string{"visual", "audio"}
	}
	if opts.GroupBy == "" {
		opts.GroupBy = "video"
	}
	if opts.Operator == "" {
		opts.Operator = "or"
	}
	if opts.PageLimit == 0 {
		opts.PageLimit = 5
	}
	if opts.SortOption == "" {
		opts.SortOption = "score"
	}
	return opts
}

type Clip struct {
	Start         float64 `json:"start"`
	End           float64 `json:"end"`
	VideoID       string  `json:"videoId"`
	Rank          int     `json:"rank"`
	ThumbnailURL  string  `json:"thumbnailUrl,omitempty"`
	Transcription string  `json:"transcription,omitempty"`
}

// SearchResult is either a video with its clips (ID and Clips set) or a
// single clip, depending on how the search was grouped.
type SearchResult struct {
	ID    string `json:"id,omitempty"`
	Clips []Clip `json:"clips,omitempty"`

	Clip
}

func (r *SearchResult) Grouped() bool {
	return r.ID != "" && r.Clips != nil
}

func (r SearchResult) MarshalJSON() ([]byte, error) {
	if r.Grouped() {
		return json.Marshal(struct {
			ID    string `json:"id"`
			Clips []Clip `json:"clips"`
		}{r.ID, r.Clips})
	}
	return json.Marshal(r.Clip)
}

type apiClip struct {
	Start         float64 `json:"start"`
	End           float64 `json:"end"`
	VideoID       string  `json:"video_id"`
	Rank          int     `json:"rank"`
	ThumbnailURL  string  `json:"thumbnail_url"`
	Transcription string  `json:"transcription"`
}

func (a apiClip) clip() Clip {
	return Clip{
		Start:         a.Start,
		End:           a.End,
		VideoID:       a.VideoID,
		Rank:          a.Rank,
		ThumbnailURL:  a.ThumbnailURL,
		Transcription: a.Transcription,
	}
}

type searchPage struct {
	Data []struct {
		ID    string    `json:"id"`
		Clips []apiClip `json:"clips"`
		apiClip
	} `json:"data"`
	PageInfo struct {
		NextPageToken string `json:"next_page_token"`
	} `json:"page_info"`
}

// Search queries an index and follows result pages up to the client's cap.
func (c *Client) Search(ctx context.Context, indexID, queryText string, options *SearchOptions) ([]SearchResult, error) {
	opts := options.withDefaults()

	page, err := c.searchFirst(ctx, indexID, queryText, &opts)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for pages := 1; ; pages++ {
		for _, item := range page.Data {
			if item.ID != "" && item.Clips != nil {
				clips := make([]Clip, len(item.Clips))
				for i, c := range item.Clips {
					clips[i] = c.clip()
				}
				results = append(results, SearchResult{ID: item.ID, Clips: clips})
			} else {
				results = append(results, SearchResult{Clip: item.clip()})
			}
		}

		token := page.PageInfo.NextPageToken
		if token == "" || pages >= c.maxPages {
			break
		}

		page = &searchPage{}
		if err := c.getJSON(ctx, "/search/"+url.PathEscape(token), nil, page); err != nil {
			return nil, err
		}
	}

	slog.Debug("Search completed", "index_id", indexID, "results", len(results))
	return results, nil
}

func (c *Client) searchFirst(ctx context.Context, indexID, queryText string, opts *SearchOptions) (*searchPage, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fields := [][2]string{
		{"index_id", indexID},
		{"query_text", queryText},
		{"group_by", opts.GroupBy},
		{"operator", opts.Operator},
		{"page_limit", strconv.Itoa(opts.PageLimit)},
		{"sort_option", opts.SortOption},
	}
	for _, mod := range opts.SearchOptions {
		fields = append(fields, [2]string{"search_options", mod})
	}
	if opts.Filter != "" {
		fields = append(fields, [2]string{"filter", opts.Filter})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var page searchPage
	if err := c.do(req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
