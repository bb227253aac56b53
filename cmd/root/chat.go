package root

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vvoland/vidchat/pkg/chatclient"
	"github.com/vvoland/vidchat/pkg/cli"
	"github.com/vvoland/vidchat/pkg/message"
	"github.com/vvoland/vidchat/pkg/runtime"
	"github.com/vvoland/vidchat/pkg/tools/builtin"
)

type chatFlags struct {
	root *rootFlags

	serverURL    string
	indexID      string
	videoID      string
	autoContinue bool
	plain        bool
}

func newChatCmd(root *rootFlags) *cobra.Command {
	flags := chatFlags{root: root}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a running vidchat server",
		Long: `Open an interactive chat with a vidchat server.

Inside the chat:
  /index <id>   search within this index
  /video <id>   analyze this video (/video none clears it)
  /videos       list the videos of the current index
  /continue     resume a turn after answering its confirmations
  /quit         leave the chat`,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE:    flags.runChatCommand,
	}

	cmd.Flags().StringVarP(&flags.serverURL, "server", "s", "", "URL of the vidchat server (default: http://<listen address>)")
	cmd.Flags().StringVarP(&flags.indexID, "index", "i", "", "Index to search in")
	cmd.Flags().StringVar(&flags.videoID, "video", "", "Video to analyze")
	cmd.Flags().BoolVar(&flags.autoContinue, "auto-continue", false, "Resume the turn as soon as every confirmation is answered")
	cmd.Flags().BoolVar(&flags.plain, "plain", false, "Print plain text instead of rendering markdown")

	return cmd
}

func (f *chatFlags) runChatCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := f.root.loadConfig()
	if err != nil {
		return err
	}

	autoContinue := cfg.AutoContinue
	if cmd.Flags().Changed("auto-continue") {
		autoContinue = f.autoContinue
	}

	client, err := chatclient.NewClient(cmp.Or(f.serverURL, "http://"+cfg.Listen))
	if err != nil {
		return err
	}

	var printerOpts []cli.PrinterOpt
	if !f.plain && cli.IsTerminal(cmd.OutOrStdout()) {
		printerOpts = append(printerOpts, cli.WithMarkdown(0))
	}

	c := newChatREPL(client, cli.NewPrinter(cmd.OutOrStdout(), printerOpts...), cli.NewLineReader(cmd.InOrStdin()), autoContinue)
	c.session.SetSelection(runtime.TurnContext{IndexID: f.indexID, SelectedVideoID: f.videoID})

	return c.run(ctx)
}

// chatREPL is an interactive chat session printing turns as they stream.
type chatREPL struct {
	client       *chatclient.Client
	session      *chatclient.Session
	out          *cli.Printer
	in           *cli.LineReader
	autoContinue bool

	messageID string
	text      strings.Builder
	streaming bool
}

func newChatREPL(client *chatclient.Client, out *cli.Printer, in *cli.LineReader, autoContinue bool) *chatREPL {
	c := &chatREPL{
		client:       client,
		out:          out,
		in:           in,
		autoContinue: autoContinue,
	}
	c.session = chatclient.NewSession(client, chatclient.WithAutoContinue(autoContinue))
	c.session.OnEvent = c.onEvent
	return c
}

func (c *chatREPL) run(ctx context.Context) error {
	c.out.PrintWelcomeMessage(AppName)
	c.out.PrintSelection(c.session.Selection())

	for {
		c.out.Print("\n> ")
		line, err := c.in.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				c.out.Println()
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := c.command(ctx, line)
			if err != nil {
				c.out.PrintError(err)
			}
			if quit {
				return nil
			}
			continue
		}

		c.turn(ctx, func() error { return c.session.Send(ctx, line) })
		c.answerPending(ctx)
	}
}

func (c *chatREPL) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	selection := c.session.Selection()

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		c.out.Println("/index <id>, /video <id|none>, /videos, /continue, /quit")
	case "/index":
		if arg == "" {
			return false, errors.New("usage: /index <id>")
		}
		selection.IndexID = arg
		c.session.SetSelection(selection)
		c.out.PrintSelection(selection)
	case "/video":
		switch arg {
		case "":
			return false, errors.New("usage: /video <id|none>")
		case "none":
			selection.SelectedVideoID = ""
		default:
			selection.SelectedVideoID = arg
		}
		c.session.SetSelection(selection)
		c.out.PrintSelection(selection)
	case "/videos":
		return false, c.listVideos(ctx, selection.IndexID)
	case "/continue":
		c.turn(ctx, func() error { return c.session.Continue(ctx) })
		c.answerPending(ctx)
	default:
		return false, fmt.Errorf("unknown command %s, try /help", name)
	}
	return false, nil
}

func (c *chatREPL) listVideos(ctx context.Context, indexID string) error {
	if indexID == "" {
		return errors.New("no index selected, use /index <id>")
	}
	videos, err := c.client.ListVideos(ctx, indexID)
	if err != nil {
		return err
	}
	if len(videos) == 0 {
		c.out.Println("No videos in this index")
		return nil
	}
	for _, v := range videos {
		c.out.Println(formatVideo(v))
	}
	return nil
}

// turn runs one exchange with the server and prints how it ended.
func (c *chatREPL) turn(ctx context.Context, run func() error) {
	c.messageID = ""
	err := run()
	c.flushText()

	switch {
	case err == nil:
	case errors.Is(err, chatclient.ErrBusy):
		c.out.PrintError(errors.New("the assistant is still busy, answer its question first"))
	case ctx.Err() != nil:
		c.stopServerTurn(ctx)
	case errors.Is(err, chatclient.ErrIncompleteStream):
		// The error event has already been printed
	default:
		c.out.PrintError(err)
	}
}

// stopServerTurn asks the server to stop the interrupted turn.
func (c *chatREPL) stopServerTurn(ctx context.Context) {
	if c.messageID == "" {
		return
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := c.client.Stop(stopCtx, c.messageID); err != nil {
		slog.Debug("Failed to stop turn", "message_id", c.messageID, "error", err)
	}
}

func (c *chatREPL) onEvent(e runtime.Event) {
	switch e := e.(type) {
	case *runtime.StartEvent:
		c.messageID = e.MessageID
	case *runtime.TextDeltaEvent:
		if c.out.Markdown() {
			c.text.WriteString(e.Delta)
			return
		}
		if !c.streaming {
			c.out.Println()
			c.streaming = true
		}
		c.out.Print(e.Delta)
	case *runtime.TextEndEvent:
		c.endText()
	case *runtime.ToolInputAvailableEvent:
		c.flushText()
		if e.ToolName != builtin.ToolNameAskForConfirmation {
			c.out.PrintToolCall(e.ToolName, e.Input)
		}
	case *runtime.ToolOutputAvailableEvent:
		c.printTool(e.ToolCallID)
	case *runtime.ToolOutputErrorEvent:
		c.printTool(e.ToolCallID)
	case *runtime.ErrorEvent:
		c.flushText()
		c.out.PrintError(errors.New(e.ErrorText))
	}
}

func (c *chatREPL) endText() {
	if c.streaming {
		c.out.Println()
		c.streaming = false
	}
}

func (c *chatREPL) flushText() {
	c.endText()
	if c.text.Len() > 0 {
		c.out.PrintAssistantText(c.text.String())
		c.text.Reset()
	}
}

func (c *chatREPL) printTool(toolCallID string) {
	c.flushText()
	if part, ok := findToolPart(c.session.Projection().Messages(), toolCallID); ok {
		c.out.PrintToolPart(part)
	}
}

// answerPending prompts for every confirmation the assistant waits on.
// With auto-continue the last answer resumes the turn, which may ask again.
func (c *chatREPL) answerPending(ctx context.Context) {
	for {
		pending := c.session.Projection().PendingToolCalls()
		if len(pending) == 0 {
			return
		}

		for _, part := range pending {
			var decision string
			switch c.out.AskConfirmation(ctx, confirmationQuestion(part), c.in) {
			case cli.ConfirmationApprove:
				decision = builtin.ConfirmationApproved
			case cli.ConfirmationReject:
				decision = builtin.ConfirmationDenied
			default:
				return
			}

			c.turn(ctx, func() error { return c.session.SubmitToolDecision(ctx, part.ToolCallID, decision) })
		}

		if !c.autoContinue {
			c.out.Println("Answers recorded, /continue to let the assistant go on")
			return
		}
	}
}

func confirmationQuestion(part message.Part) string {
	var args builtin.AskForConfirmationArgs
	if err := json.Unmarshal(part.Input, &args); err != nil || args.Message == "" {
		return "The assistant asks for confirmation."
	}
	return args.Message
}

func findToolPart(messages []message.Message, toolCallID string) (message.Part, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if j := messages[i].FindToolPart(toolCallID); j >= 0 {
			return messages[i].Parts[j], true
		}
	}
	return message.Part{}, false
}
