package planner

import (
	"fmt"

	"github.com/graphcompose/fedplan/federation/graph"
	"github.com/n9te9/graphql-parser/ast"
)

// PlanOptimized builds a plan exactly as Plan does, then runs a Dijkstra
// reachability check over the super graph's precomputed inter-subgraph
// dependency graph (graph.SuperGraphV2.Graph, built with @provides
// shortcuts honored at zero cost) as a sanity pass: every step's subgraph
// must be reachable from some root step's subgraph, or the plan crossed a
// service boundary fetch-group construction itself can't justify, which
// indicates a planner defect rather than a bad query.
func (p *PlannerV2) PlanOptimized(doc *ast.Document, variables map[string]any) (*PlanV2, error) {
	result, err := p.Plan(doc, variables)
	if err != nil {
		return nil, err
	}

	if p.SuperGraph.Graph == nil || len(result.Steps) == 0 {
		return result, nil
	}

	entryPoints := make([]string, 0, len(result.RootStepIndexes))
	for _, idx := range result.RootStepIndexes {
		step := result.Steps[idx]
		entryPoints = append(entryPoints, nodeKeyForStep(step))
	}

	dijkstra := p.SuperGraph.Graph.Dijkstra(entryPoints)

	for _, step := range result.Steps {
		key := nodeKeyForStep(step)
		if _, ok := p.SuperGraph.Graph.Nodes[key]; !ok {
			// The dependency graph only has nodes for entity types; a
			// step whose type has no registered node (e.g. a pure root
			// query type) is trivially reachable.
			continue
		}
		if _, reachable := dijkstra.Dist[key]; !reachable {
			return nil, fmt.Errorf("planner: step %d (%s on %s) is not reachable in the inter-subgraph dependency graph", step.ID, step.ParentType, step.SubGraph.Name)
		}
	}

	return result, nil
}

func nodeKeyForStep(step *StepV2) string {
	return graph.NodeKey(step.SubGraph.Name, step.ParentType, "")
}
