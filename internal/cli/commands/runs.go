package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/reframe-labs/reframe/internal/cli/output"
	"github.com/reframe-labs/reframe/internal/state"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recent pipeline runs",
		Long: `List recent runs from the state database, newest first. With a run ID,
show that run's per-stage results and recorded warnings.`,
		Example: `  # Last 10 runs
  reframe runs

  # Stage detail for one run
  reframe runs 2f1c9a3e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if len(args) == 1 {
				return showRun(cmdCtx, args[0])
			}
			return listRuns(cmdCtx, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum runs to list")

	return cmd
}

func listRuns(cmdCtx *CommandContext, limit int) error {
	runs, err := cmdCtx.Engine.Store().ListRuns(limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(runs)
	}

	if len(runs) == 0 {
		r.Println("No runs recorded")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		completed := ""
		if run.CompletedAt != nil {
			completed = run.CompletedAt.Format(time.RFC3339)
		}
		rows = append(rows, []string{
			run.ID,
			string(run.Status),
			run.StartedAt.Format(time.RFC3339),
			completed,
			run.Error,
		})
	}
	r.Table([]string{"ID", "Status", "Started", "Completed", "Error"}, rows)
	return nil
}

func showRun(cmdCtx *CommandContext, runID string) error {
	store := cmdCtx.Engine.Store()

	run, err := store.GetRun(runID)
	if err != nil {
		return fmt.Errorf("run %s not found: %w", runID, err)
	}
	stageRuns, err := store.ListStageRuns(runID)
	if err != nil {
		return fmt.Errorf("failed to load stage runs: %w", err)
	}
	warnings, err := store.ListWarnings(runID)
	if err != nil {
		return fmt.Errorf("failed to load warnings: %w", err)
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(struct {
			Run      *state.Run
			Stages   []*state.StageRun
			Warnings []state.Warning
		}{run, stageRuns, warnings})
	}

	r.Header(1, fmt.Sprintf("Run %s (%s)", run.ID, run.Status))
	if run.Error != "" {
		r.Println("Error: " + run.Error)
	}
	r.Println("")

	rows := make([][]string, 0, len(stageRuns))
	for _, sr := range stageRuns {
		rows = append(rows, []string{
			sr.StageID,
			sr.Kind,
			string(sr.Status),
			fmt.Sprintf("%d", sr.RowsIn),
			fmt.Sprintf("%d", sr.RowsOut),
			fmt.Sprintf("%d", sr.DurationMS),
			sr.Error,
		})
	}
	r.Table([]string{"Stage", "Kind", "Status", "Rows In", "Rows Out", "ms", "Error"}, rows)

	if len(warnings) > 0 {
		r.Println("")
		r.Header(2, "Warnings")
		for _, w := range warnings {
			r.StatusLine(w.StageID, "", w.Message)
		}
	}
	return nil
}
