package planner

import (
	"fmt"

	"github.com/graphcompose/fedplan/federation/graph"
	"github.com/graphcompose/fedplan/federation/plan"
	"github.com/n9te9/graphql-parser/ast"
)

// ToStepPlan lowers a fetch-group forest into the flat StepV2/PlanV2 shape
// the executor consumes: one StepV2 per Group, numbered by its position in
// the emitted slice (the executor indexes Steps by ID directly), with
// DependsOn pointing at the parent group's step and Path/InsertionPath
// carrying the group's MergeAt as plain response-key segments.
func ToStepPlan(superGraph *graph.SuperGraphV2, doc *ast.Document, result *plan.Result) (*PlanV2, error) {
	p := &PlanV2{
		OriginalDocument: doc,
		OperationType:    operationTypeName(doc),
	}

	for _, g := range result.Groups {
		id, err := lowerGroup(superGraph, p, g, -1)
		if err != nil {
			return nil, err
		}
		p.RootStepIndexes = append(p.RootStepIndexes, id)
	}

	return p, nil
}

// lowerGroup appends g (and, recursively, every dependent of g) to p.Steps,
// returning the step ID assigned to g. parentStepID is -1 for a root group.
func lowerGroup(superGraph *graph.SuperGraphV2, p *PlanV2, g *plan.Group, parentStepID int) (int, error) {
	subGraph := findSubGraph(superGraph, g.ServiceName)
	if subGraph == nil {
		return 0, fmt.Errorf("planner: no subgraph registered for service %q", g.ServiceName)
	}

	stepType := StepTypeQuery
	var dependsOn []int
	if parentStepID >= 0 {
		stepType = StepTypeEntity
		dependsOn = []int{parentStepID}
	}

	path := pathSegments(g.MergeAt)

	step := &StepV2{
		ID:            len(p.Steps),
		SubGraph:      subGraph,
		StepType:      stepType,
		ParentType:    g.ParentType,
		SelectionSet:  selectionSetOf(g),
		Path:          path,
		DependsOn:     dependsOn,
		InsertionPath: path,
	}
	p.Steps = append(p.Steps, step)
	stepID := step.ID

	for _, dep := range g.AllDependents() {
		if _, err := lowerGroup(superGraph, p, dep, stepID); err != nil {
			return 0, err
		}
	}

	return stepID, nil
}

// pathSegments converts a ResponsePath into the plain response-key segments
// the executor walks; list markers carry no segment of their own since the
// executor detects arrays dynamically while navigating a result.
func pathSegments(path plan.ResponsePath) []string {
	segments := make([]string, 0, len(path))
	for _, step := range path {
		if step.IsList {
			continue
		}
		segments = append(segments, step.Key)
	}
	return segments
}

func selectionSetOf(g *plan.Group) []ast.Selection {
	out := make([]ast.Selection, 0, len(g.Fields))
	for _, sel := range g.Fields {
		out = append(out, sel.Field)
	}
	return out
}

func findSubGraph(superGraph *graph.SuperGraphV2, serviceName string) *graph.SubGraphV2 {
	for _, sg := range superGraph.SubGraphs {
		if sg.Name == serviceName {
			return sg
		}
	}
	return nil
}

func operationTypeName(doc *ast.Document) string {
	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}
		switch op.Operation {
		case ast.Mutation:
			return "mutation"
		case ast.Subscription:
			return "subscription"
		default:
			return "query"
		}
	}
	return ""
}
