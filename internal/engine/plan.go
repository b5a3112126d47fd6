package engine

// plan.go - stage plan construction from the declarative pipeline config

import (
	"fmt"

	"github.com/reframe-labs/reframe/internal/config"
	"github.com/reframe-labs/reframe/internal/dag"
	"github.com/reframe-labs/reframe/pkg/frame"
)

// stageKind names the operation a stage performs.
type stageKind string

const (
	stageSelect      stageKind = "select"
	stageCheck       stageKind = "check"
	stagePivot       stageKind = "pivot"
	stageStandardize stageKind = "standardize"
)

// stage is one node of the plan.
type stage struct {
	id   string
	kind stageKind

	rule  frame.Rule            // stageSelect
	key   []string              // stageCheck
	pivot frame.PivotSpec       // stagePivot
	std   frame.StandardizeSpec // stageStandardize
}

// buildPlan translates the pipeline config into a stage DAG: the rule chain
// in declared order, the terminal-key uniqueness check, the pivot, then the
// standardize passes. Standardize stages all depend on the pivot and on
// nothing else, so they land on one execution level and can run
// concurrently.
func buildPlan(p config.PipelineConfig) (*dag.Graph, error) {
	g := dag.NewGraph()

	prev := ""
	add := func(s stage) error {
		g.AddNode(s.id, s)
		if prev != "" {
			if err := g.AddDependency(prev, s.id); err != nil {
				return err
			}
		}
		prev = s.id
		return nil
	}

	for i, rule := range p.Rules {
		s := stage{id: fmt.Sprintf("select.%02d", i+1), kind: stageSelect, rule: rule}
		if err := add(s); err != nil {
			return nil, err
		}
	}
	if err := add(stage{id: "check.terminal-key", kind: stageCheck, key: p.TerminalKey}); err != nil {
		return nil, err
	}
	if err := add(stage{id: "pivot", kind: stagePivot, pivot: p.Pivot}); err != nil {
		return nil, err
	}

	pivotID := prev
	for _, spec := range p.Standardize {
		id := "standardize." + spec.As
		g.AddNode(id, stage{id: id, kind: stageStandardize, std: spec})
		if err := g.AddDependency(pivotID, id); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// mustStage returns the stage payload of a plan node. The plan only holds
// stage values, so the assertion cannot fail for IDs the plan produced.
func mustStage(g *dag.Graph, id string) stage {
	n, _ := g.Node(id)
	return n.Data.(stage)
}
