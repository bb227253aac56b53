package twelvelabs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

type Model struct {
	ModelName    string   `json:"model_name"`
	ModelOptions []string `json:"model_options"`
}

type Index struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Models        []Model   `json:"models"`
	VideoCount    int       `json:"videoCount"`
	TotalDuration float64   `json:"totalDuration"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type SystemMetadata struct {
	Filename string  `json:"filename,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	FPS      float64 `json:"fps,omitempty"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Size     int64   `json:"size,omitempty"`
}

type Video struct {
	ID             string          `json:"id"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      *time.Time      `json:"updatedAt,omitempty"`
	IndexedAt      *time.Time      `json:"indexedAt,omitempty"`
	SystemMetadata *SystemMetadata `json:"systemMetadata,omitempty"`
}

func defaultModels() []Model {
	return []Model{
		{ModelName: "marengo3.0", ModelOptions: []string{"visual", "audio"}},
		{ModelName: "pegasus1.2", ModelOptions: []string{"visual", "audio"}},
	}
}

// CreateIndex creates an index able to both search and analyze videos and
// returns its id.
func (c *Client) CreateIndex(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", errors.New("index name is required")
	}

	body := map[string]any{
		"index_name": name,
		"models":     defaultModels(),
	}

	var res struct {
		ID string `json:"_id"`
	}
	if err := c.postJSON(ctx, "/indexes", body, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

// ListIndexes returns the ten most recent indexes, filtered by name when
// one is given.
func (c *Client) ListIndexes(ctx context.Context, name string) ([]Index, error) {
	query := url.Values{
		"page":        {"1"},
		"page_limit":  {"10"},
		"sort_by":     {"created_at"},
		"sort_option": {"desc"},
	}
	if name != "" {
		query.Set("index_name", name)
	}

	var res struct {
		Data []struct {
			ID            string    `json:"_id"`
			IndexName     string    `json:"index_name"`
			Models        []Model   `json:"models"`
			VideoCount    int       `json:"video_count"`
			TotalDuration float64   `json:"total_duration"`
			CreatedAt     time.Time `json:"created_at"`
			UpdatedAt     time.Time `json:"updated_at"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, "/indexes", query, &res); err != nil {
		return nil, err
	}

	indexes := make([]Index, 0, len(res.Data))
	for _, d := range res.Data {
		indexes = append(indexes, Index{
			ID:            d.ID,
			Name:          d.IndexName,
			Models:        d.Models,
			VideoCount:    d.VideoCount,
			TotalDuration: d.TotalDuration,
			CreatedAt:     d.CreatedAt,
			UpdatedAt:     d.UpdatedAt,
		})
	}
	return indexes, nil
}

// ListVideos returns every video of an index, walking all pages.
func (c *Client) ListVideos(ctx context.Context, indexID string) ([]Video, error) {
	if indexID == "" {
		return nil, errors.New("index id is required")
	}

	var videos []Video
	for page := 1; ; page++ {
		query := url.Values{
			"page":       {strconv.Itoa(page)},
			"page_limit": {"50"},
		}

		var res struct {
			Data []struct {
				ID             string          `json:"_id"`
				CreatedAt      time.Time       `json:"created_at"`
				UpdatedAt      *time.Time      `json:"updated_at"`
				IndexedAt      *time.Time      `json:"indexed_at"`
				SystemMetadata *SystemMetadata `json:"system_metadata"`
			} `json:"data"`
			PageInfo struct {
				Page      int `json:"page"`
				TotalPage int `json:"total_page"`
			} `json:"page_info"`
		}
		if err := c.getJSON(ctx, "/indexes/"+url.PathEscape(indexID)+"/videos", query, &res); err != nil {
			return nil, fmt.Errorf("listing videos of index %s: %w", indexID, err)
		}

		for _, d := range res.Data {
			videos = append(videos, Video{
				ID:             d.ID,
				CreatedAt:      d.CreatedAt,
				UpdatedAt:      d.UpdatedAt,
				IndexedAt:      d.IndexedAt,
				SystemMetadata: d.SystemMetadata,
			})
		}

		if len(res.Data) == 0 || page >= res.PageInfo.TotalPage {
			break
		}
	}

	return videos, nil
}

// GetVideoURL returns the HLS stream URL of a video.
func (c *Client) GetVideoURL(ctx context.Context, videoID string) (string, error) {
	var res struct {
		HLS *struct {
			VideoURL string `json:"video_url"`
		} `json:"hls"`
	}
	if err := c.getJSON(ctx, "/tasks/"+url.PathEscape(videoID), nil, &res); err != nil {
		return "", fmt.Errorf("failed to fetch video URL: %w", err)
	}
	if res.HLS == nil || res.HLS.VideoURL == "" {
		return "", errors.New("failed to fetch video URL: No video URL available")
	}
	return res.HLS.VideoURL, nil
}
