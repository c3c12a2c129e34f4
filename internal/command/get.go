package command

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	outputPath string
	asDataURI  bool
)

func newGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <uri>",
		Short: "Print a resource, fetching and caching it on a miss",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().BoolVar(&asDataURI, "data-uri", false, "cache and print the resource as a data URI")

	return cmd
}

func runGet(cmd *cobra.Command, args []string) error {
	uri := args[0]

	a, err := openApp(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	populate := a.fetch.Populate(uri)
	if asDataURI {
		populate = a.fetch.PopulateDataURI(uri)
	}

	data, cached := a.client.GetOrPopulate(cmd.Context(), uri, populate, 0)
	if data == nil {
		return fmt.Errorf("failed to fetch %s; nothing cached", uri)
	}
	zap.S().Debugw("resolved", "uri", uri, "cached", cached, "size", humanize.IBytes(uint64(len(data))))

	var w io.Writer = cmd.OutOrStdout()
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return err
	}

	return nil
}
