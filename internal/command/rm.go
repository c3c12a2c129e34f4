package command

import (
	"github.com/spf13/cobra"
)

func newRmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>...",
		Short: "Remove cached entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			for _, key := range args {
				a.cache.Delete(cmd.Context(), key)
			}

			return nil
		},
	}
}
