package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/fileorg/organizer/internal/output"
	"github.com/fileorg/organizer/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var immediateVectorDelete bool

	cmd := &cobra.Command{
		Use:   "watch [path...]",
		Short: "Watch directories and incrementally reprocess changed files",
		Long: `Runs the fsnotify-driven watch loop (falling back to polling where
fsnotify is unavailable): debounced batches of changed paths are driven
through the single-file pipeline short-circuit, and removed paths are
purged from the store, vector store, and keyword index.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine(slog.Default())
			if err != nil {
				return err
			}
			defer e.Close()

			delay, err := time.ParseDuration(e.cfg.Watcher.DebounceDelay)
			if err != nil {
				return fmt.Errorf("parse watcher.debounce_delay: %w", err)
			}

			r, err := watcher.NewRunner(watcher.RunnerDependencies{
				Pipeline: e.pipeline,
				Store:    e.store,
				Vectors:  e.vectors,
				Keyword:  e.keyword,
				Logger:   slog.Default(),
			}, watcher.RunnerConfig{
				Paths:                 args,
				ScanIncludePaths:      e.cfg.Roots.Paths,
				DebounceDelay:         delay,
				ImmediateVectorDelete: immediateVectorDelete,
			})
			if err != nil {
				return fmt.Errorf("build watcher: %w", err)
			}

			w := output.New(cmd.OutOrStdout())
			w.Status("", "watching, press Ctrl+C to stop")

			if err := r.Run(cmd.Context()); err != nil && cmd.Context().Err() == nil {
				return fmt.Errorf("watch: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&immediateVectorDelete, "immediate-vector-delete", false,
		"Purge a gone file's vectors as soon as its batch is processed")

	return cmd
}
