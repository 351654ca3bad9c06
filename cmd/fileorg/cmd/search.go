package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fileorg/organizer/internal/output"
	"github.com/fileorg/organizer/internal/search"
)

func newSearchCmd() *cobra.Command {
	var (
		limit   int
		hybrid  bool
		mime    string
		pathPfx string
		tag     string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Hybrid vector + keyword search over indexed files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			e, err := buildEngine(slog.Default())
			if err != nil {
				return err
			}
			defer e.Close()

			filter := search.Filter{
				Path:   pathPfx,
				MIME:   mime,
				Tag:    tag,
				Hybrid: hybrid,
			}
			results, err := e.search.Search(cmd.Context(), query, limit, filter)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			w := output.New(cmd.OutOrStdout())
			if len(results) == 0 {
				w.Status("", "no results")
				return nil
			}
			for _, r := range results {
				w.Statusf("", "[%s %.3f] %s  %s", r.Source, r.Score, r.Path, strings.Join(r.Tags, ","))
				if r.Snippet != "" {
					w.Statusf("", "    %s", r.Snippet)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum results to return")
	cmd.Flags().BoolVar(&hybrid, "hybrid", true, "Union in keyword-index hits alongside vector search")
	cmd.Flags().StringVar(&mime, "mime", "", "Restrict results to this MIME type")
	cmd.Flags().StringVar(&pathPfx, "path", "", "Restrict results to this path prefix")
	cmd.Flags().StringVar(&tag, "tag", "", "Restrict results to files carrying this tag")

	return cmd
}
