package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/reframe-labs/reframe/internal/state"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Export string
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the configured pipeline",
		Long: `Load the input extract, apply the rule chain, pivot to wide form,
append standardized columns, and write the output table.

Every run is recorded in the state database with per-stage status,
row counts, and any degenerate-group warnings.`,
		Example: `  # Run the pipeline declared in reframe.yaml
  reframe run

  # Run with a different config
  reframe run --config experiments/reframe.yaml

  # Run and export the wide table as CSV
  reframe run --export wide.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Export, "export", "", "Also export the output table to this CSV path")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	startTime := time.Now()

	result, runErr := cmdCtx.Engine.Run(cmd.Context())

	// A run record exists for data failures but not for config errors.
	if result != nil && result.Run != nil {
		stageRuns, err := cmdCtx.Engine.Store().ListStageRuns(result.Run.ID)
		if err == nil {
			r.Header(1, fmt.Sprintf("Run %s", result.Run.ID))
			for _, sr := range stageRuns {
				detail := ""
				if sr.Status == state.StageStatusSuccess {
					detail = fmt.Sprintf("%d -> %d rows, %dms", sr.RowsIn, sr.RowsOut, sr.DurationMS)
				} else if sr.Error != "" {
					detail = sr.Error
				}
				r.StatusLine(sr.StageID, string(sr.Status), detail)
			}
		}
	}

	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}

	for _, w := range result.Warnings {
		r.Warn(w.String())
	}

	exportPath := cmdCtx.Cfg.Output.CSVPath
	if opts.Export != "" {
		exportPath = opts.Export
	}
	if exportPath != "" {
		if err := exportCSV(exportPath, result.Output); err != nil {
			return err
		}
		r.Printf("Exported %s\n", exportPath)
	}

	r.Println("")
	r.Success(fmt.Sprintf("Wrote %d rows to %s in %s",
		result.Output.Len(), cmdCtx.Cfg.Output.Table, time.Since(startTime).Round(time.Millisecond)))

	return nil
}
