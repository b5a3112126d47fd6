package engine

// run.go - execution orchestration for pipeline runs

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reframe-labs/reframe/internal/dag"
	"github.com/reframe-labs/reframe/internal/pivot"
	"github.com/reframe-labs/reframe/internal/selector"
	"github.com/reframe-labs/reframe/internal/standardize"
	"github.com/reframe-labs/reframe/internal/state"
	"github.com/reframe-labs/reframe/pkg/frame"
)

// Result is the outcome of a completed run.
type Result struct {
	Run      *state.Run
	Output   *frame.Dataset
	Warnings []frame.DegenerateGroupWarning
}

// Run validates the pipeline, loads the input, replays the stage plan, and
// persists the final wide table. Configuration and shape errors abort
// before a run is recorded; data errors fail the recorded run and mark the
// remaining stages skipped.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.logger.Info("starting run", "source", e.cfg.Source.Type, "output", e.cfg.Output.Table)

	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := e.cfg.ValidatePipeline(); err != nil {
		return nil, err
	}

	plan, err := buildPlan(e.cfg.Pipeline)
	if err != nil {
		return nil, err
	}
	levels, err := plan.ExecutionLevels()
	if err != nil {
		return nil, err
	}
	sorted, err := plan.TopologicalSort()
	if err != nil {
		return nil, err
	}

	input, err := e.LoadInput(ctx)
	if err != nil {
		return nil, err
	}

	run, err := e.store.CreateRun()
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	e.logger.Debug("created run", "run_id", run.ID, "stages", len(sorted))

	// Record all stages as pending up front, in execution order.
	stageRuns := make(map[string]*state.StageRun, len(sorted))
	for _, node := range sorted {
		st := node.Data.(stage)
		sr := &state.StageRun{
			RunID:   run.ID,
			StageID: st.id,
			Kind:    string(st.kind),
			Status:  state.StageStatusPending,
		}
		if err := e.store.RecordStageRun(sr); err != nil {
			return nil, fmt.Errorf("failed to record stage run: %w", err)
		}
		stageRuns[st.id] = sr
	}

	cur := input
	var warnings []frame.DegenerateGroupWarning

	for _, level := range levels {
		var out *frame.Dataset
		var warns []frame.DegenerateGroupWarning
		var stageErr error
		var failedID string

		if len(level) == 1 {
			st := mustStage(plan, level[0])
			out, warns, stageErr = e.executeStage(st, cur, stageRuns[st.id])
			failedID = st.id
		} else {
			// Only standardize stages share a level; they are independent
			// passes over the wide table.
			out, warns, failedID, stageErr = e.executeStandardizeLevel(plan, level, cur, stageRuns)
		}

		if stageErr != nil {
			e.logger.Info("run failed", "run_id", run.ID, "stage", failedID, "error", stageErr.Error())
			e.markRemainingSkipped(sorted, stageRuns, failedID)
			_ = e.store.CompleteRun(run.ID, state.RunStatusFailed, stageErr.Error())
			run, _ = e.store.GetRun(run.ID)
			return &Result{Run: run}, stageErr
		}

		cur = out
		warnings = append(warnings, warns...)
	}

	if err := e.src.Write(ctx, e.cfg.Output.Table, cur); err != nil {
		_ = e.store.CompleteRun(run.ID, state.RunStatusFailed, err.Error())
		run, _ = e.store.GetRun(run.ID)
		return &Result{Run: run}, err
	}
	e.logger.Debug("output written", "table", e.cfg.Output.Table, "rows", cur.Len())

	if len(warnings) > 0 {
		records := make([]state.Warning, len(warnings))
		for i, w := range warnings {
			records[i] = state.Warning{RunID: run.ID, StageID: "standardize." + w.Field, Message: w.String()}
		}
		if err := e.store.RecordWarnings(records); err != nil {
			e.logger.Error("failed to record warnings", "error", err)
		}
	}

	_ = e.store.CompleteRun(run.ID, state.RunStatusCompleted, "")
	e.logger.Info("run completed", "run_id", run.ID, "rows", cur.Len(), "warnings", len(warnings))

	run, _ = e.store.GetRun(run.ID)
	return &Result{Run: run, Output: cur, Warnings: warnings}, nil
}

// executeStage runs one stage and records its result.
// A nil stage run record executes without recording, for previews.
func (e *Engine) executeStage(st stage, cur *frame.Dataset, sr *state.StageRun) (*frame.Dataset, []frame.DegenerateGroupWarning, error) {
	if sr != nil {
		sr.Status = state.StageStatusRunning
		_ = e.store.UpdateStageRun(sr.ID, state.StageStatusRunning, cur.Len(), 0, 0, "")
	}
	start := time.Now()

	var out *frame.Dataset
	var warns []frame.DegenerateGroupWarning
	var err error

	switch st.kind {
	case stageSelect:
		out, err = selector.ApplyRule(cur, st.rule, e.cfg.Pipeline.Seed)
	case stageCheck:
		err = selector.AssertUnique(cur, st.key)
		out = cur
	case stagePivot:
		out, err = pivot.Pivot(cur, st.pivot)
	case stageStandardize:
		out, warns, err = standardize.Standardize(cur, st.std)
	default:
		err = fmt.Errorf("unknown stage kind: %s", st.kind)
	}

	durationMS := time.Since(start).Milliseconds()
	if err != nil {
		if sr != nil {
			sr.Status = state.StageStatusFailed
			_ = e.store.UpdateStageRun(sr.ID, state.StageStatusFailed, cur.Len(), 0, durationMS, err.Error())
		}
		return nil, nil, err
	}

	e.logger.Debug("stage executed", "stage", st.id, "rows_in", cur.Len(), "rows_out", out.Len(), "duration_ms", durationMS)
	if sr != nil {
		sr.Status = state.StageStatusSuccess
		_ = e.store.UpdateStageRun(sr.ID, state.StageStatusSuccess, cur.Len(), out.Len(), durationMS, "")
	}
	return out, warns, nil
}

// executeStandardizeLevel runs the standardize stages of one execution
// level concurrently against the wide table and merges their columns in
// declared config order.
func (e *Engine) executeStandardizeLevel(plan *dag.Graph, level []string, wide *frame.Dataset, stageRuns map[string]*state.StageRun) (*frame.Dataset, []frame.DegenerateGroupWarning, string, error) {
	inLevel := make(map[string]bool, len(level))
	for _, id := range level {
		inLevel[id] = true
	}

	// Declared order, not the level's sorted order.
	var stages []stage
	for _, spec := range e.cfg.Pipeline.Standardize {
		id := "standardize." + spec.As
		if inLevel[id] {
			stages = append(stages, mustStage(plan, id))
		}
	}

	results := make([]*frame.Dataset, len(stages))
	warnsPer := make([][]frame.DegenerateGroupWarning, len(stages))
	errPer := make([]error, len(stages))

	g := new(errgroup.Group)
	for i, st := range stages {
		g.Go(func() error {
			out, warns, err := e.executeStage(st, wide, stageRuns[st.id])
			results[i], warnsPer[i], errPer[i] = out, warns, err
			return err
		})
	}
	err := g.Wait()
	if err != nil {
		for i, st := range stages {
			if errPer[i] != nil {
				return nil, nil, st.id, errPer[i]
			}
		}
		return nil, nil, stages[0].id, err
	}

	out, err := mergeStandardized(wide, stages, results)
	if err != nil {
		return nil, nil, stages[0].id, err
	}
	var warnings []frame.DegenerateGroupWarning
	for _, w := range warnsPer {
		warnings = append(warnings, w...)
	}
	return out, warnings, "", nil
}

// mergeStandardized combines the appended z-score columns of each
// standardize result onto the wide table, in declared order.
func mergeStandardized(wide *frame.Dataset, stages []stage, results []*frame.Dataset) (*frame.Dataset, error) {
	fields := append([]frame.Field{}, wide.Schema().Fields()...)
	for _, st := range stages {
		fields = append(fields, frame.Field{Name: st.std.As, Type: frame.TypeFloat, Nullable: true})
	}
	schema, err := frame.NewSchema(fields)
	if err != nil {
		return nil, err
	}

	out := frame.NewDataset(schema)
	zIdx := wide.Schema().Len() // the appended column is always last
	for i, rec := range wide.Records() {
		values := make([]frame.Value, 0, schema.Len())
		values = append(values, rec.Values...)
		for _, res := range results {
			values = append(values, res.Record(i).Values[zIdx])
		}
		if err := out.AppendRecord(frame.Record{Values: values, Seq: rec.Seq}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// markRemainingSkipped marks every stage that never finished after a
// failure. Stages that already recorded a result keep it: a concurrent
// sibling of the failed stage may have succeeded.
func (e *Engine) markRemainingSkipped(sorted []*dag.Node, stageRuns map[string]*state.StageRun, failedID string) {
	for _, node := range sorted {
		st := node.Data.(stage)
		sr := stageRuns[st.id]
		if sr.Status != state.StageStatusPending && sr.Status != state.StageStatusRunning {
			continue
		}
		sr.Status = state.StageStatusSkipped
		_ = e.store.UpdateStageRun(sr.ID, state.StageStatusSkipped,
			0, 0, 0, fmt.Sprintf("skipped: stage %s failed", failedID))
	}
}
