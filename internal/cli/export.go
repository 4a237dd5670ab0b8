package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"qindex/internal/export"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Rows   bool
	Limit  int
	Output string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump the index schema and optionally its rows",
		Long: `Export describes every system table and every qualified name table
of the index database. With --format text the report is markdown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, reg, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := export.Collect(cmd.Context(), s, reg, export.Options{IncludeRows: opts.Rows, RowLimit: opts.Limit})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.Output != "" {
				f, err := os.Create(opts.Output)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer f.Close()
				w = f
			}
			if opts.Format == "json" {
				return report.WriteJSON(w)
			}
			return report.WriteText(w)
		},
	}

	cmd.Flags().BoolVar(&opts.Rows, "rows", false, "include table rows")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "rows per table (default 100)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}
