package root

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/vvoland/vidchat/pkg/cli"
	"github.com/vvoland/vidchat/pkg/config"
	"github.com/vvoland/vidchat/pkg/imagegen"
	"github.com/vvoland/vidchat/pkg/model/provider"
	"github.com/vvoland/vidchat/pkg/runtime"
	"github.com/vvoland/vidchat/pkg/server"
	"github.com/vvoland/vidchat/pkg/tools/builtin"
)

type serveFlags struct {
	root *rootFlags

	listenAddr  string
	turnTimeout time.Duration
	maxSteps    int
	noNarration bool
}

func newServeCmd(root *rootFlags) *cobra.Command {
	flags := serveFlags{root: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat server",
		Long: `Start the HTTP server streaming chat turns as Server-Sent Events.

The address can be a TCP host:port, unix:///path/to/socket or fd://N.`,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE:    flags.runServeCommand,
	}

	cmd.Flags().StringVarP(&flags.listenAddr, "listen", "l", config.DefaultListen, "Address to listen on")
	cmd.Flags().DurationVar(&flags.turnTimeout, "turn-timeout", config.DefaultTurnTimeout, "Maximum duration of a chat turn")
	cmd.Flags().IntVar(&flags.maxSteps, "max-steps", config.DefaultMaxSteps, "Maximum number of model steps per turn")
	cmd.Flags().BoolVar(&flags.noNarration, "no-narration", false, "Do not force a text reply after tool results")

	return cmd
}

// apply lets explicitly set flags win over the configuration file.
func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("listen") {
		cfg.Listen = f.listenAddr
	}
	if cmd.Flags().Changed("turn-timeout") {
		cfg.TurnTimeout = f.turnTimeout
	}
	if cmd.Flags().Changed("max-steps") {
		cfg.MaxSteps = f.maxSteps
	}
	if f.noNarration {
		enforce := false
		cfg.EnforceNarration = &enforce
	}
}

func (f *serveFlags) runServeCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cli.NewPrinter(cmd.OutOrStdout())

	cfg, err := f.root.loadConfig()
	if err != nil {
		return err
	}
	f.apply(cmd, cfg)

	s, err := newServer(ctx, f.root, cfg)
	if err != nil {
		return err
	}

	ln, err := server.Listen(ctx, cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
	}

	out.Println("Listening on " + ln.Addr().String())
	slog.Debug("Starting server", "addr", ln.Addr().String(), "model", cfg.Model.Model, "max_steps", cfg.MaxSteps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Serve(gctx, ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		_ = ln.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		return RuntimeError{Err: err}
	}
	return nil
}

func newServer(ctx context.Context, root *rootFlags, cfg *config.Config) (*server.Server, error) {
	env, err := root.environment()
	if err != nil {
		return nil, err
	}

	values, err := requireEnv(ctx, env, envTwelveLabsAPIKey, envXAIAPIKey, cfg.Model.TokenKey)
	if err != nil {
		return nil, err
	}

	videos, err := newTwelveLabsClient(cfg, values[envTwelveLabsAPIKey])
	if err != nil {
		return nil, err
	}

	images, err := imagegen.New(imagegen.Config{
		APIKey:  values[envXAIAPIKey],
		Model:   cfg.Image.Model,
		BaseURL: cfg.Image.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	model, err := provider.New(ctx, &cfg.Model, env)
	if err != nil {
		return nil, fmt.Errorf("creating model provider: %w", err)
	}

	registry, err := builtin.NewRegistry(videos, images)
	if err != nil {
		return nil, err
	}

	rt := runtime.New(model, registry,
		runtime.WithTracer(otel.Tracer(AppName)),
		runtime.WithMaxSteps(cfg.MaxSteps),
		runtime.WithNarrationEnforcement(cfg.NarrationEnforced()),
	)

	return server.New(rt, videos,
		server.WithTurnTimeout(cfg.TurnTimeout),
		server.WithVideoCacheTTL(cfg.TwelveLabs.VideoCacheTTL),
	), nil
}
