package engine

import (
	"context"

	"github.com/reframe-labs/reframe/pkg/frame"
)

// Preview executes the pipeline in memory without recording a run or
// writing the output table. It returns the final wide dataset and any
// degenerate-group warnings.
func (e *Engine) Preview(ctx context.Context) (*frame.Dataset, []frame.DegenerateGroupWarning, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if _, err := e.cfg.ValidatePipeline(); err != nil {
		return nil, nil, err
	}

	plan, err := buildPlan(e.cfg.Pipeline)
	if err != nil {
		return nil, nil, err
	}
	sorted, err := plan.TopologicalSort()
	if err != nil {
		return nil, nil, err
	}

	cur, err := e.LoadInput(ctx)
	if err != nil {
		return nil, nil, err
	}

	var warnings []frame.DegenerateGroupWarning
	for _, node := range sorted {
		st := node.Data.(stage)
		if st.kind == stageStandardize {
			continue
		}
		out, _, err := e.executeStage(st, cur, nil)
		if err != nil {
			return nil, nil, err
		}
		cur = out
	}

	// Standardize columns land in declared config order, same as a run.
	for _, spec := range e.cfg.Pipeline.Standardize {
		st := mustStage(plan, "standardize."+spec.As)
		out, warns, err := e.executeStage(st, cur, nil)
		if err != nil {
			return nil, nil, err
		}
		cur = out
		warnings = append(warnings, warns...)
	}
	return cur, warnings, nil
}
