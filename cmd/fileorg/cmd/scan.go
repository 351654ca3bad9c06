package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fileorg/organizer/internal/output"
	"github.com/fileorg/organizer/internal/rules"
	"github.com/fileorg/organizer/internal/scanner"
)

func newScanCmd() *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Scan, extract, embed, classify, and suggest actions for a directory",
		Long: `Runs the full pipeline once over path: scan -> extract -> embed ->
classify -> suggest, optionally followed by apply.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}

			e, err := buildEngine(slog.Default())
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			if err := rules.SyncDir(ctx, e.store, e.cfg.Rules.Dir); err != nil {
				return fmt.Errorf("sync rules: %w", err)
			}

			opts := scanner.Options{
				RootDir:          root,
				ExcludePatterns:  e.cfg.Roots.ExcludePatterns,
				RespectGitignore: e.cfg.Roots.RespectGitignore,
				Workers:          e.cfg.Scanner.Workers,
				MaxFileSize:      int64(e.cfg.Scanner.MaxFileSizeMB) * 1024 * 1024,
				FollowSymlinks:   e.cfg.Scanner.FollowSymlinks,
				HashMode:         scanner.HashMode(e.cfg.Scanner.HashMode),
			}

			w := output.New(cmd.OutOrStdout())
			res, err := e.pipeline.Run(ctx, opts)
			if err != nil {
				return fmt.Errorf("run pipeline: %w", err)
			}

			w.Successf("scanned %d files (%d errors)", res.ScannedFiles, res.ScanErrors)
			w.Successf("extracted %d files", res.ExtractedFiles)
			w.Successf("embedded %d chunks", res.EmbeddedChunks)
			w.Successf("classified %d files", res.ClassifiedFiles)
			w.Successf("suggested %d actions", res.SuggestedCount)

			if apply {
				summary, err := e.applier.Run(ctx, nil)
				if err != nil {
					return fmt.Errorf("apply: %w", err)
				}
				w.Successf("applied: %d succeeded, %d failed", summary.Succeeded, summary.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "Execute planned actions after suggesting them")

	return cmd
}
