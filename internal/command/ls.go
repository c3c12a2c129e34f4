package command

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/chunkcache"
)

var showExpired bool

func newLsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List cached entries",
		Args:  cobra.NoArgs,
		RunE:  runLs,
	}

	cmd.Flags().BoolVarP(&showExpired, "all", "a", false, "include expired entries")

	return cmd
}

func runLs(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	entries, err := a.cache.Entries(cmd.Context())
	if err != nil {
		return err
	}

	expired := lo.CountBy(entries, func(e chunkcache.EntryInfo) bool { return e.Expired })
	if !showExpired {
		entries = lo.Reject(entries, func(e chunkcache.EntryInfo, _ int) bool { return e.Expired })
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tCHUNKS\tEXPIRES")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", e.Key, e.Chunks, humanize.Time(e.ExpiresAt))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if expired > 0 && !showExpired {
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "(%d expired entries hidden; run purge --expired)\n", expired)
	}

	return err
}
