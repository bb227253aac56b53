package twelvelabs

import (
	"context"
	"log/slog"
)

type Usage struct {
	OutputTokens int `json:"output_tokens"`
}

type Analysis struct {
	ID    string `json:"id"`
	Data  string `json:"data"`
	Usage *Usage `json:"usage,omitempty"`
}

// Analyze runs a single-shot open-ended analysis of a video.
func (c *Client) Analyze(ctx context.Context, videoID, prompt string) (*Analysis, error) {
	body := map[string]any{
		"video_id":    videoID,
		"prompt":      prompt,
		"temperature": 0.2,
		"stream":      false,
	}

	var res Analysis
	if err := c.postJSON(ctx, "/analyze", body, &res); err != nil {
		return nil, err
	}

	attrs := []any{"id", res.ID, "video_id", videoID}
	if res.Usage != nil {
		attrs = append(attrs, "output_tokens", res.Usage.OutputTokens)
	}
	slog.Debug("Video analyzed", attrs...)

	return &res, nil
}
