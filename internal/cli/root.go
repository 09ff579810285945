package cli

import (
	"log/slog"

	"github.com/me/bioclick/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the bioclick CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bioclick",
		Short: "BLAST batch scheduler",
		Long: `bioclick dispatches batches of BLAST search jobs to interchangeable
execution engines and reports the outcome of every job.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagDebug {
				flagLogLevel = "debug"
			}
			format, err := logging.ParseFormat(flagLogFormat)
			if err != nil {
				return err
			}
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(flagLogLevel), format, cmd.ErrOrStderr())
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (or BIOCLICK_CONFIG env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newEnginesCmd(),
		newHistoryCmd(),
	)

	return root
}
