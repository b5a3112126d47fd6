package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reframe-labs/reframe/pkg/frame"
)

// NewPreviewCommand creates the preview command.
func NewPreviewCommand() *cobra.Command {
	var limit int
	var result bool

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Preview the input extract or the pipeline result",
		Long: `Load the input extract and render the first rows. With --result the
whole pipeline runs in memory and the wide table is rendered instead;
nothing is written to the output table or the state database.`,
		Example: `  # First 20 rows of the input
  reframe preview

  # The wide table the pipeline would produce
  reframe preview --result

  # Markdown output for scripts
  reframe preview --result -o markdown`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			r := cmdCtx.Renderer

			var ds *frame.Dataset
			if result {
				var warnings []frame.DegenerateGroupWarning
				ds, warnings, err = cmdCtx.Engine.Preview(cmd.Context())
				if err != nil {
					return err
				}
				for _, w := range warnings {
					r.Warn(w.String())
				}
			} else {
				ds, err = cmdCtx.Engine.LoadInput(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to load input: %w", err)
				}
			}

			return renderDataset(r, truncate(ds, limit))
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows to render (0 for all)")
	cmd.Flags().BoolVar(&result, "result", false, "Run the pipeline and preview the wide table")

	return cmd
}

// truncate returns the first n records of a dataset.
func truncate(ds *frame.Dataset, n int) *frame.Dataset {
	if n <= 0 || ds.Len() <= n {
		return ds
	}
	out := frame.NewDataset(ds.Schema())
	for _, rec := range ds.Records()[:n] {
		// Records already passed schema checks on the way in.
		_ = out.AppendRecord(rec)
	}
	return out
}
