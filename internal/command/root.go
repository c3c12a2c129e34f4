package command

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the level of the logger installed by main; --debug lowers it.
var Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

var (
	debug      bool
	configPath string
)

func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chunkcache",
		Short:         "Inspect and populate a chunked persistent cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if debug {
				Level.SetLevel(zapcore.DebugLevel)
			}

			return nil
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "f", "",
		"configuration file path (e.g. /etc/chunkcache.yml); CHUNKCACHE_* variables override it")

	cmd.AddCommand(
		newGetCommand(),
		newRmCommand(),
		newPurgeCommand(),
		newLsCommand(),
	)

	return cmd
}
