package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/chunkcache"
)

var (
	expiredOnly bool
	orphans     bool
)

func newPurgeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove all cached entries, or only the expired ones",
		Args:  cobra.NoArgs,
		RunE:  runPurge,
	}

	cmd.Flags().BoolVar(&expiredOnly, "expired", false, "only remove expired and corrupt entries")
	cmd.Flags().BoolVar(&orphans, "orphans", false,
		"with --expired, also remove chunk records no metadata accounts for")

	return cmd
}

func runPurge(cmd *cobra.Command, _ []string) error {
	if orphans && !expiredOnly {
		return fmt.Errorf("--orphans requires --expired")
	}

	a, err := openApp(cmd.Context(), func(o *chunkcache.Options) {
		o.PurgeOrphans = orphans
	})
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	if !expiredOnly {
		a.cache.PurgeAll(cmd.Context())
		return nil
	}

	report := a.cache.PurgeExpired(cmd.Context())
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, expired %d, corrupt %d, orphans %d\n",
		report.Scanned, report.Expired, report.Corrupt, report.Orphans)

	return err
}
