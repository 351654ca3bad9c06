package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fileorg/organizer/internal/output"
)

func newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply [action-id...]",
		Short: "Execute planned actions (all planned actions if none are named)",
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

			summary, err := e.applier.Run(cmd.Context(), ids)
			if err != nil {
				return fmt.Errorf("apply: %w", err)
			}

			w := output.New(cmd.OutOrStdout())
			w.Successf("applied: %d succeeded, %d failed", summary.Succeeded, summary.Failed)
			return nil
		},
	}
	return cmd
}

func parseActionIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(args))
	for i, a := range args {
		var id int64
		if _, err := fmt.Sscanf(a, "%d", &id); err != nil {
			return nil, fmt.Errorf("invalid action id %q: %w", a, err)
		}
		ids[i] = id
	}
	return ids, nil
}
