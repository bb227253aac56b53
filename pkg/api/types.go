package api

import (
	"github.com/vvoland/vidchat/pkg/message"
)

// ChatRequest is the body of POST /api/chat. The selection is the one the
// user had when the turn was sent.
type ChatRequest struct {
	Messages        []message.Message `json:"messages"`
	SelectedVideoID string            `json:"selectedVideoId,omitempty"`
	IndexID         string            `json:"indexId,omitempty"`
}

// CreateIndexRequest represents a request to create an index
type CreateIndexRequest struct {
	Name string `json:"name"`
}

// CreateIndexResponse represents the response from creating an index
type CreateIndexResponse struct {
	ID string `json:"id"`
}

// VideoURLResponse carries the streaming URL of a video
type VideoURLResponse struct {
	URL string `json:"url"`
}

// ErrorResponse is the body of a failed request
type ErrorResponse struct {
	Message string `json:"message"`
}
