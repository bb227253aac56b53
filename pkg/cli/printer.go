// Package cli prints chat turns to a terminal.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/term"

	"github.com/vvoland/vidchat/pkg/chatclient"
	"github.com/vvoland/vidchat/pkg/message"
	"github.com/vvoland/vidchat/pkg/runtime"
)

// ConfirmationResult represents the answer to a confirmation prompt
type ConfirmationResult string

const (
	ConfirmationApprove ConfirmationResult = "approve"
	ConfirmationReject  ConfirmationResult = "reject"
	ConfirmationAbort   ConfirmationResult = "abort"
)

var (
	bold  = color.New(color.Bold).SprintfFunc()
	faint = color.New(color.Faint).SprintfFunc()
	red   = color.New(color.FgRed).SprintfFunc()
)

type Printer struct {
	out      io.Writer
	markdown *glamour.TermRenderer
}

type PrinterOpt func(*Printer)

// WithMarkdown renders assistant text as markdown wrapped at width. A
// width of zero wraps at the width of the terminal behind out.
func WithMarkdown(width int) PrinterOpt {
	return func(p *Printer) {
		if width <= 0 {
			width = terminalWidth(p.out)
		}
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			p.markdown = renderer
		}
	}
}

func NewPrinter(out io.Writer, opts ...PrinterOpt) *Printer {
	p := &Printer{out: out}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func terminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return 80
}

func (p *Printer) Println(a ...any) {
	fmt.Fprintln(p.out, a...)
}

func (p *Printer) Print(a ...any) {
	fmt.Fprint(p.out, a...)
}

func (p *Printer) Printf(format string, a ...any) {
	fmt.Fprintf(p.out, format, a...)
}

// Markdown reports whether assistant text is rendered once the turn is
// over instead of being streamed.
func (p *Printer) Markdown() bool {
	return p.markdown != nil
}

// PrintWelcomeMessage prints the welcome message
func (p *Printer) PrintWelcomeMessage(appName string) {
	p.Printf("\n------- Welcome to %s! -------\n(/help for commands, Ctrl+C to exit)\n\n", bold(appName))
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) {
	p.Printf("%s %s\n", red("error:"), err)
}

// PrintSelection prints which video and index the next turn is bound to.
func (p *Printer) PrintSelection(tc runtime.TurnContext) {
	p.Printf("%s %s  %s %s\n", faint("index:"), orNone(tc.IndexID), faint("video:"), orNone(tc.SelectedVideoID))
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return bold(s)
}

// PrintToolCall prints a tool call as soon as its input is complete
func (p *Printer) PrintToolCall(toolName string, input json.RawMessage) {
	p.Printf("\nCalling %s%s\n", bold(toolName), formatToolCallArguments(string(input)))
}

// PrintToolPart prints the state of a tool invocation
func (p *Printer) PrintToolPart(part message.Part) {
	p.Println(chatclient.Render(part))
}

// PrintAssistantText prints text written by the assistant, as markdown
// when enabled.
func (p *Printer) PrintAssistantText(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if p.markdown != nil {
		if rendered, err := p.markdown.Render(text); err == nil {
			p.Print(rendered)
			return
		}
	}
	p.Println(text)
}

// AskConfirmation shows the question of a confirmation request and waits
// for a yes or no answer.
func (p *Printer) AskConfirmation(ctx context.Context, question string, in *LineReader) ConfirmationResult {
	p.Printf("\n%s\n%s", bold(question), bold("([y]es/[n]o): "))

	text, err := in.ReadLine(ctx)
	if err != nil {
		return ConfirmationAbort
	}

	switch strings.ToLower(strings.TrimSpace(text)) {
	case "y", "yes":
		return ConfirmationApprove
	default:
		return ConfirmationReject
	}
}

func formatToolCallArguments(arguments string) string {
	if arguments == "" {
		return "()"
	}

	// Keep the keys in the order the model wrote them.
	kv := orderedmap.New[string, any]()
	if err := json.Unmarshal([]byte(arguments), &kv); err == nil {
		if kv.Len() == 0 {
			return "()"
		}

		var (
			parts     []string
			multiline bool
		)
		for key, value := range kv.FromOldest() {
			formatted := formatJSONValue(key, value)
			parts = append(parts, formatted)
			multiline = multiline || strings.Contains(formatted, "\n")
		}

		if len(parts) == 1 && !multiline {
			return fmt.Sprintf("(%s)", parts[0])
		}
		return fmt.Sprintf("(\n  %s\n)", strings.Join(parts, "\n  "))
	}

	var parsed any
	if err := json.Unmarshal([]byte(arguments), &parsed); err == nil {
		formatted, _ := json.MarshalIndent(parsed, "", "  ")
		return fmt.Sprintf("(%s)", string(formatted))
	}

	return fmt.Sprintf("(%s)", arguments)
}

func formatJSONValue(key string, value any) string {
	switch v := value.(type) {
	case string:
		return fmt.Sprintf("%s: %q", bold(key), v)
	case nil:
		return fmt.Sprintf("%s: null", bold(key))
	default:
		formatted, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%s: %v", bold(key), v)
		}
		return fmt.Sprintf("%s: %s", bold(key), string(formatted))
	}
}
