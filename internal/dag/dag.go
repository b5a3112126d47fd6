// Package dag provides the directed acyclic graph that orders pipeline
// stages. It supports cycle detection, topological sorting, and grouping
// stages into execution levels for concurrent scheduling.
package dag

import (
	"fmt"
	"sort"
)

// Node is one stage in the plan.
type Node struct {
	// ID is the unique stage identifier.
	ID string
	// Data holds the stage payload.
	Data any
}

// Graph is a DAG of stages. Edges point from a stage to the stages that
// depend on it.
type Graph struct {
	nodes   map[string]*Node
	deps    map[string][]string // node -> its dependencies
	depends map[string][]string // node -> its dependents
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		deps:    make(map[string][]string),
		depends: make(map[string][]string),
	}
}

// AddNode registers a stage. Re-adding an existing ID updates its payload.
func (g *Graph) AddNode(id string, data any) {
	if n, ok := g.nodes[id]; ok {
		n.Data = data
		return
	}
	g.nodes[id] = &Node{ID: id, Data: data}
}

// AddDependency records that child runs after parent.
func (g *Graph) AddDependency(parent, child string) error {
	if _, ok := g.nodes[parent]; !ok {
		return fmt.Errorf("unknown stage %q", parent)
	}
	if _, ok := g.nodes[child]; !ok {
		return fmt.Errorf("unknown stage %q", child)
	}
	if parent == child {
		return fmt.Errorf("stage %q depends on itself", parent)
	}
	if !contains(g.deps[child], parent) {
		g.deps[child] = append(g.deps[child], parent)
	}
	if !contains(g.depends[parent], child) {
		g.depends[parent] = append(g.depends[parent], child)
	}
	return nil
}

// Len returns the number of stages.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns a stage by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// TopologicalSort returns the stages in execution order (dependencies
// first). Stage IDs are visited in sorted order so the result is
// deterministic. Returns an error if the graph has a cycle.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	if path := g.findCycle(); path != nil {
		return nil, fmt.Errorf("stage cycle detected: %v", path)
	}

	visited := make(map[string]bool, len(g.nodes))
	var out []*Node

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, dep := range sorted(g.deps[id]) {
			visit(dep)
		}
		out = append(out, g.nodes[id])
	}

	for _, id := range g.ids() {
		visit(id)
	}
	return out, nil
}

// ExecutionLevels groups stages by depth: stages at level N only depend on
// stages at levels below N, so each level can run concurrently once the
// previous one completes.
func (g *Graph) ExecutionLevels() ([][]string, error) {
	if path := g.findCycle(); path != nil {
		return nil, fmt.Errorf("stage cycle detected: %v", path)
	}

	level := make(map[string]int, len(g.nodes))
	var depth func(id string) int
	depth = func(id string) int {
		if d, ok := level[id]; ok {
			return d
		}
		d := 0
		for _, dep := range g.deps[id] {
			if pd := depth(dep) + 1; pd > d {
				d = pd
			}
		}
		level[id] = d
		return d
	}

	max := 0
	for id := range g.nodes {
		if d := depth(id); d > max {
			max = d
		}
	}

	levels := make([][]string, max+1)
	for id, d := range level {
		levels[d] = append(levels[d], id)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

// findCycle returns a cycle path if one exists, nil otherwise.
func (g *Graph) findCycle() []string {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	parent := make(map[string]string)

	var cycle []string
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		for _, child := range g.depends[id] {
			switch color[child] {
			case white:
				parent[child] = id
				if visit(child) {
					return true
				}
			case grey:
				cycle = []string{child}
				for cur := id; cur != child; cur = parent[cur] {
					cycle = append([]string{cur}, cycle...)
				}
				cycle = append([]string{child}, cycle...)
				return true
			}
		}
		color[id] = black
		return false
	}

	for _, id := range g.ids() {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}

func (g *Graph) ids() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sorted(s []string) []string {
	out := append([]string{}, s...)
	sort.Strings(out)
	return out
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
