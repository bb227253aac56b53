package root

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vvoland/vidchat/pkg/cli"
	"github.com/vvoland/vidchat/pkg/twelvelabs"
)

// maxConcurrentURLLookups bounds the playback URL requests of videos list --urls.
const maxConcurrentURLLookups = 4

type videosFlags struct {
	root *rootFlags
	urls bool
}

func newVideosCmd(root *rootFlags) *cobra.Command {
	flags := videosFlags{root: root}

	cmd := &cobra.Command{
		Use:     "videos",
		Short:   "Inspect the videos of an index",
		GroupID: "videos",
	}

	list := &cobra.Command{
		Use:   "list <index-id>",
		Short: "List the videos of an index",
		Args:  cobra.ExactArgs(1),
		RunE:  flags.runList,
	}
	list.Flags().BoolVar(&flags.urls, "urls", false, "Also print the playback URL of every video")

	url := &cobra.Command{
		Use:   "url <video-id>",
		Short: "Print the playback URL of a video",
		Args:  cobra.ExactArgs(1),
		RunE:  flags.runURL,
	}

	cmd.AddCommand(list, url)
	return cmd
}

func (f *videosFlags) runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cli.NewPrinter(cmd.OutOrStdout())

	client, err := f.root.videoClient(ctx)
	if err != nil {
		return err
	}

	videos, err := client.ListVideos(ctx, args[0])
	if err != nil {
		return err
	}
	if len(videos) == 0 {
		out.Println("No videos in this index")
		return nil
	}

	urls := make([]string, len(videos))
	if f.urls {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxConcurrentURLLookups)
		for i, v := range videos {
			g.Go(func() error {
				u, err := client.GetVideoURL(gctx, v.ID)
				if err != nil {
					return fmt.Errorf("video %s: %w", v.ID, err)
				}
				urls[i] = u
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	for i, v := range videos {
		line := formatVideo(v)
		if urls[i] != "" {
			line += "  " + urls[i]
		}
		out.Println(line)
	}
	return nil
}

func (f *videosFlags) runURL(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, err := f.root.videoClient(ctx)
	if err != nil {
		return err
	}

	u, err := client.GetVideoURL(ctx, args[0])
	if err != nil {
		return err
	}
	cli.NewPrinter(cmd.OutOrStdout()).Println(u)
	return nil
}

// formatVideo prints a video as "<id>  <filename>  <duration>".
func formatVideo(v twelvelabs.Video) string {
	fields := []string{v.ID}
	if meta := v.SystemMetadata; meta != nil {
		if meta.Filename != "" {
			fields = append(fields, meta.Filename)
		}
		if meta.Duration > 0 {
			fields = append(fields, strconv.FormatFloat(meta.Duration, 'f', 1, 64)+"s")
		}
	}
	return strings.Join(fields, "  ")
}
