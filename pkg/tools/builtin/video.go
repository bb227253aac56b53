package builtin

import (
	"context"
	"errors"
	"fmt"

	"github.com/vvoland/vidchat/pkg/tools"
	"github.com/vvoland/vidchat/pkg/twelvelabs"
)

const (
	ToolNameAnalyzeSelectedVideo = "analyzeSelectedVideo"
	ToolNameSearchVideos         = "searchVideos"
)

type VideoAnalyzer interface {
	Analyze(ctx context.Context, videoID, prompt string) (*twelvelabs.Analysis, error)
}

type VideoSearcher interface {
	Search(ctx context.Context, indexID, queryText string, options *twelvelabs.SearchOptions) ([]twelvelabs.SearchResult, error)
}

type AnalyzeVideoArgs struct {
	VideoID string `json:"videoId" jsonschema:"The ID of the video to analyze"`
	Prompt  string `json:"prompt" jsonschema:"The analysis prompt or question about the video"`
}

type AnalyzeVideoOutput struct {
	Analysis string `json:"analysis"`
}

type SearchVideosArgs struct {
	IndexID   string `json:"indexId" jsonschema:"The ID of the TwelveLabs index to search in"`
	QueryText string `json:"queryText" jsonschema:"The search query describing what to look for in the videos"`
}

type SearchVideosOutput struct {
	VideosRetrieved []twelvelabs.SearchResult `json:"videos_retrieved"`
}

func NewAnalyzeVideoTool(analyzer VideoAnalyzer) tools.Tool {
	return tools.Tool{
		Name:        ToolNameAnalyzeSelectedVideo,
		Description: "Get analysis of the selected video.",
		Parameters:  tools.MustSchemaFor[AnalyzeVideoArgs](),
		Handler: typed(func(ctx context.Context, args AnalyzeVideoArgs) (*tools.ToolCallResult, error) {
			if args.VideoID == "" || args.Prompt == "" {
				return nil, errors.New("Error analyzing video: videoId and prompt are required")
			}

			res, err := analyzer.Analyze(ctx, args.VideoID, args.Prompt)
			if err != nil {
				return nil, fmt.Errorf("Error analyzing video: %w", err)
			}
			return tools.ResultJSON(AnalyzeVideoOutput{Analysis: res.Data})
		}),
	}
}

func NewSearchVideosTool(searcher VideoSearcher) tools.Tool {
	return tools.Tool{
		Name:        ToolNameSearchVideos,
		Description: "Search through videos in the TwelveLabs index using visual and audio search. Use this to find specific scenes, objects, people, actions, or audio content across all videos.",
		Parameters:  tools.MustSchemaFor[SearchVideosArgs](),
		Handler: typed(func(ctx context.Context, args SearchVideosArgs) (*tools.ToolCallResult, error) {
			results, err := searcher.Search(ctx, args.IndexID, args.QueryText, nil)
			if err != nil {
				return nil, fmt.Errorf("Error searching videos: %w", err)
			}
			if results == nil {
				results = []twelvelabs.SearchResult{}
			}
			return tools.ResultJSON(SearchVideosOutput{VideosRetrieved: results})
		}),
	}
}
