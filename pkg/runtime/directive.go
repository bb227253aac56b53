package runtime

import (
	"fmt"
	"strings"
)

const (
	persona        = "You are an AI assistant for law enforcement, specialized in analyzing police cam and CCTV footage."
	generalPersona = " You help officers search through and analyze video evidence to support investigations."

	narrationInstruction = "\n\nIMPORTANT: After using ANY tool (analyzeSelectedVideo, searchVideos or generateImage), you MUST provide a detailed text response summarizing and explaining the results to the user. Never end your response immediately after calling a tool - always explain the results in natural language."

	narrationNudge = "You did not explain the tool results. Reply to the user now with a short text summary of the tool results above."
)

// TurnContext is the live UI selection sent with every chat request. It is
// never stored in the conversation.
type TurnContext struct {
	SelectedVideoID string `json:"selectedVideoId,omitempty"`
	IndexID         string `json:"indexId,omitempty"`
}

// BuildDirective returns the system prompt for a turn.
func BuildDirective(tc TurnContext) string {
	var sb strings.Builder
	sb.WriteString(persona)

	if tc.SelectedVideoID != "" {
		fmt.Fprintf(&sb, " The user has selected a video with ID: %s.", tc.SelectedVideoID)
	} else {
		sb.WriteString(generalPersona)
	}

	if tc.IndexID != "" {
		fmt.Fprintf(&sb, " The current index ID is: %s. When using the searchVideos tool, you MUST use this index ID: \"%s\".", tc.IndexID, tc.IndexID)
	}

	sb.WriteString(narrationInstruction)
	return sb.String()
}
