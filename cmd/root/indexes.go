package root

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vvoland/vidchat/pkg/cli"
	"github.com/vvoland/vidchat/pkg/twelvelabs"
)

type indexesFlags struct {
	root *rootFlags
	name string
}

func newIndexesCmd(root *rootFlags) *cobra.Command {
	flags := indexesFlags{root: root}

	cmd := &cobra.Command{
		Use:     "indexes",
		Short:   "Manage video indexes",
		GroupID: "videos",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List indexes",
		Args:  cobra.NoArgs,
		RunE:  flags.runList,
	}
	list.Flags().StringVar(&flags.name, "name", "", "Only list indexes with this name")

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an index able to search and analyze videos",
		Args:  cobra.ExactArgs(1),
		RunE:  flags.runCreate,
	}

	cmd.AddCommand(list, create)
	return cmd
}

func (f *indexesFlags) runList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cli.NewPrinter(cmd.OutOrStdout())

	client, err := f.root.videoClient(ctx)
	if err != nil {
		return err
	}

	indexes, err := client.ListIndexes(ctx, f.name)
	if err != nil {
		return err
	}
	if len(indexes) == 0 {
		out.Println("No indexes")
		return nil
	}
	for _, idx := range indexes {
		out.Println(formatIndex(idx))
	}
	return nil
}

func (f *indexesFlags) runCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, err := f.root.videoClient(ctx)
	if err != nil {
		return err
	}

	id, err := client.CreateIndex(ctx, args[0])
	if err != nil {
		return err
	}
	cli.NewPrinter(cmd.OutOrStdout()).Printf("Created index %s (%s)\n", args[0], id)
	return nil
}

func formatIndex(idx twelvelabs.Index) string {
	return fmt.Sprintf("%s  %s  %d video(s)", idx.ID, idx.Name, idx.VideoCount)
}
