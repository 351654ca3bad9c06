package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fileorg/organizer/internal/output"
)

func newUndoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "undo [action-id...]",
		Short: "Reverse executed actions from their trash backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseActionIDs(args)
			if err != nil {
				return err
			}

			e, err := buildEngine(slog.Default())
			if err != nil {
				return err
			}
			defer e.Close()

			summary, err := e.undoer.Run(cmd.Context(), ids)
			if err != nil {
				return fmt.Errorf("undo: %w", err)
			}

			w := output.New(cmd.OutOrStdout())
			w.Successf("undone: %d succeeded, %d failed", summary.Succeeded, summary.Failed)
			return nil
		},
	}
	return cmd
}
