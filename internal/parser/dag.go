package parser

import (
	"sort"
	"strings"

	"github.com/me/cwl2nf/pkg/ir"
	"github.com/me/cwl2nf/pkg/model"
)

// DAGResult holds the result of DAG analysis.
type DAGResult struct {
	// Edges maps each step ID to the step IDs it depends on (upstream).
	Edges map[string][]string
	// Order is the topological sort of steps (execution order).
	Order []string
}

// UpstreamStep returns the process a source references, or "" when the
// source names a workflow input. "align/bam" references align; a bare
// source references a process only if it equals a process id and is not
// also a workflow input.
func UpstreamStep(w *ir.WorkflowIR, source string) string {
	if source == "" {
		return ""
	}
	if i := strings.Index(source, "/"); i >= 0 {
		if _, ok := w.Processes[source[:i]]; ok {
			return source[:i]
		}
		return ""
	}
	if _, isInput := w.Inputs[source]; isInput {
		return ""
	}
	if _, ok := w.Processes[source]; ok {
		return source
	}
	return ""
}

// BuildDAG constructs the step dependency graph from step input sources.
// It uses Kahn's algorithm for topological sort and cycle detection.
//
// Source "assemble/contigs" in a step's inputs creates an edge: assemble -> this step.
// Sources naming workflow inputs create no edges.
//
// Returns the dependency map and topological order, or a *model.CycleError.
func BuildDAG(w *ir.WorkflowIR) (*DAGResult, error) {
	forward := make(map[string][]string, len(w.Processes))
	deps := make(map[string][]string, len(w.Processes))
	inDegree := make(map[string]int, len(w.Processes))

	for id := range w.Processes {
		inDegree[id] = 0
	}

	for stepID, step := range w.Processes {
		seen := make(map[string]bool)
		for _, si := range step.Inputs {
			for _, source := range si.Sources {
				depID := UpstreamStep(w, source)
				if depID == "" || seen[depID] {
					continue
				}
				if depID == stepID {
					return nil, &model.CycleError{Steps: []string{stepID}}
				}
				seen[depID] = true
				forward[depID] = append(forward[depID], stepID)
				deps[stepID] = append(deps[stepID], depID)
				inDegree[stepID]++
			}
		}
	}

	// Sort dependency lists for deterministic output.
	for id := range deps {
		sort.Strings(deps[id])
	}

	// Kahn's algorithm: BFS topological sort.
	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(w.Processes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		successors := forward[node]
		sort.Strings(successors)
		for _, succ := range successors {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
		sort.Strings(queue)
	}

	if len(order) != len(w.Processes) {
		var cycleNodes []string
		for id, deg := range inDegree {
			if deg > 0 {
				cycleNodes = append(cycleNodes, id)
			}
		}
		sort.Strings(cycleNodes)
		return nil, &model.CycleError{Steps: cycleNodes}
	}

	return &DAGResult{
		Edges: deps,
		Order: order,
	}, nil
}
