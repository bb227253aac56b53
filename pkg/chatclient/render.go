package chatclient

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/vvoland/vidchat/pkg/message"
	"github.com/vvoland/vidchat/pkg/tools/builtin"
	"github.com/vvoland/vidchat/pkg/twelvelabs"
)

// maxClipsShown is how many clips of a grouped search result are listed.
const maxClipsShown = 2

// Render returns the text shown for a part. It depends on nothing but the
// part, so rendering the same part twice gives the same bytes.
func Render(part message.Part) string {
	if part.IsText() {
		return part.Text
	}

	switch part.ToolName() {
	case builtin.ToolNameAnalyzeSelectedVideo:
		return renderAnalysis(part)
	case builtin.ToolNameSearchVideos:
		return renderSearch(part)
	case builtin.ToolNameGenerateImage:
		return renderImage(part)
	case builtin.ToolNameAskForConfirmation:
		return renderConfirmation(part)
	}

	switch part.State {
	case message.StateOutputError:
		return fmt.Sprintf("%s failed: %s", part.ToolName(), part.ErrorText)
	case message.StateOutputAvailable:
		return fmt.Sprintf("%s: %s", part.ToolName(), part.Output)
	default:
		return fmt.Sprintf("Running %s...", part.ToolName())
	}
}

// RenderMessage renders the parts of a message, one block per part.
func RenderMessage(msg message.Message) string {
	var blocks []string
	for _, part := range msg.Parts {
		if s := Render(part); s != "" {
			blocks = append(blocks, s)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func renderAnalysis(part message.Part) string {
	switch part.State {
	case message.StateInputStreaming:
		return "Preparing video analysis..."
	case message.StateInputAvailable:
		var in builtin.AnalyzeVideoArgs
		_ = json.Unmarshal(part.Input, &in)
		return fmt.Sprintf("Analyzing video...\nVideo ID: %s\nPrompt: %q", in.VideoID, in.Prompt)
	case message.StateOutputAvailable:
		var out builtin.AnalyzeVideoOutput
		if err := json.Unmarshal(part.Output, &out); err == nil && out.Analysis != "" {
			return out.Analysis
		}
		var s string
		if err := json.Unmarshal(part.Output, &s); err == nil {
			return s
		}
		return indentJSON(part.Output)
	case message.StateOutputError:
		return "Analysis Failed\n" + part.ErrorText
	}
	return ""
}

func renderSearch(part message.Part) string {
	switch part.State {
	case message.StateInputStreaming:
		return "Preparing search..."
	case message.StateInputAvailable:
		var in builtin.SearchVideosArgs
		_ = json.Unmarshal(part.Input, &in)
		return fmt.Sprintf("Searching videos...\nQuery: %q\nIndex ID: %s", in.QueryText, in.IndexID)
	case message.StateOutputAvailable:
		var out builtin.SearchVideosOutput
		_ = json.Unmarshal(part.Output, &out)
		if len(out.VideosRetrieved) == 0 {
			return "No results found"
		}

		var sb strings.Builder
		for i, result := range out.VideosRetrieved {
			if i > 0 {
				sb.WriteString("\n")
			}
			if result.ID != "" {
				fmt.Fprintf(&sb, "Video: %s\n%d clip(s) found", result.ID, len(result.Clips))
				for _, clip := range result.Clips[:min(len(result.Clips), maxClipsShown)] {
					sb.WriteString("\n" + clipLine("• ", clip))
				}
				continue
			}
			fmt.Fprintf(&sb, "Video: %s\n%s", result.VideoID, clipLine("", result.Clip))
			if result.Transcription != "" {
				fmt.Fprintf(&sb, "\n%q", result.Transcription)
			}
		}
		return sb.String()
	case message.StateOutputError:
		return "Search Failed\n" + part.ErrorText
	}
	return ""
}

func clipLine(prefix string, clip twelvelabs.Clip) string {
	return prefix + formatSeconds(clip.Start) + "s - " + formatSeconds(clip.End) + "s (Score: " + strconv.Itoa(clip.Rank) + ")"
}

func formatSeconds(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func renderImage(part message.Part) string {
	switch part.State {
	case message.StateInputStreaming, message.StateInputAvailable:
		return "Generating image..."
	case message.StateOutputAvailable:
		var out builtin.GenerateImageOutput
		_ = json.Unmarshal(part.Output, &out)
		return fmt.Sprintf("Image: %s\nPrompt: %q", out.ImageURL, out.Prompt)
	case message.StateOutputError:
		return "Image Generation Failed\n" + part.ErrorText
	}
	return ""
}

func renderConfirmation(part message.Part) string {
	switch part.State {
	case message.StateInputStreaming:
		return "Loading confirmation request..."
	case message.StateInputAvailable:
		var in builtin.AskForConfirmationArgs
		_ = json.Unmarshal(part.Input, &in)
		return fmt.Sprintf("%s\n[y] Yes  [n] No", in.Message)
	case message.StateOutputAvailable:
		var s string
		if err := json.Unmarshal(part.Output, &s); err != nil {
			s = string(part.Output)
		}
		return "Confirmation: " + s
	case message.StateOutputError:
		return "Error: " + part.ErrorText
	}
	return ""
}

func indentJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	buf, _ := json.MarshalIndent(v, "", "  ")
	return string(buf)
}
