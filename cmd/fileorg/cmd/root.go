// Package cmd provides the CLI commands for fileorg.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fileorg/organizer/internal/logging"
	"github.com/fileorg/organizer/pkg/version"
)

var (
	configPath string
	debugMode  bool
)

// NewRootCmd creates the root command for the fileorg CLI. This surface is
// intentionally thin: it wires the engine's components together for
// manual smoke-testing, not a full operator-facing front-end.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fileorg",
		Short:   "Local file organizer: scan, classify, and search a directory tree",
		Version: version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "info"
			if debugMode {
				level = "debug"
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: logging.LevelFromString(level),
			}))
			slog.SetDefault(logger)
			return nil
		},
	}

	cmd.SetVersionTemplate("fileorg version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (defaults built in)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newApplyCmd())
	cmd.AddCommand(newUndoCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := contextWithSignals()
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}
