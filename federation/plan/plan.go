// Package plan implements fetch-group construction: splitting a federated
// GraphQL operation into the minimal set of per-service fetches, with the
// dependent-fetch and entity round-trip structure ownership and
// @requires/@provides directives demand.
package plan

import (
	"github.com/graphcompose/fedplan/federation/graph"
	"github.com/n9te9/graphql-parser/ast"
)

// Result is the output of a single Build call: the top-level Fetch Groups
// in selector order, plus any non-fatal diagnostics gathered while
// traversing.
type Result struct {
	Groups      []*Group
	Diagnostics *Diagnostics
}

// Build constructs a fetch-group plan for doc against superGraph. It
// returns a CompositionError or InvariantViolation (per §7) as a Go error
// for fatal conditions; UnsupportedSelection reports accumulate in
// Result.Diagnostics without aborting the build.
func Build(superGraph *graph.SuperGraphV2, doc *ast.Document) (*Result, error) {
	ctx, err := NewContext(superGraph, doc)
	if err != nil {
		return nil, err
	}

	splitter := NewSplitter(ctx)
	groups, err := splitter.Split()
	if err != nil {
		return nil, err
	}

	for _, g := range groups {
		MergeGroupTree(g)
	}

	groups = pruneEmpty(groups)

	return &Result{
		Groups:      groups,
		Diagnostics: splitter.Diagnostics(),
	}, nil
}

// pruneEmpty drops groups whose final selection is empty (invariant 1): a
// dependent created purely to carry required fields into its own
// dependents, but which never gained a field of its own (e.g. an
// intermediate base-service round-trip hop whose only purpose was
// identifying the entity before descending further), is removed and its
// own dependents are re-parented onto its former parent.
func pruneEmpty(groups []*Group) []*Group {
	out := make([]*Group, 0, len(groups))
	for _, g := range groups {
		pruneDependents(g)
		if len(g.Fields) > 0 {
			out = append(out, g)
		} else {
			out = append(out, orphanedDependents(g)...)
		}
	}
	return out
}

func pruneDependents(g *Group) {
	kept := NewMap[*Group]()
	for _, name := range g.DependentGroupsByService.Keys() {
		dep, _ := g.DependentGroupsByService.Get(name)
		pruneDependents(dep)
		if len(dep.Fields) > 0 {
			kept.Set(name, dep)
		} else {
			for _, orphan := range orphanedDependents(dep) {
				kept.Set(orphan.ServiceName, orphan)
			}
		}
	}
	g.DependentGroupsByService = kept

	var others []*Group
	for _, dep := range g.OtherDependentGroups {
		pruneDependents(dep)
		if len(dep.Fields) > 0 {
			others = append(others, dep)
		} else {
			others = append(others, orphanedDependents(dep)...)
		}
	}
	g.OtherDependentGroups = others
}

func orphanedDependents(g *Group) []*Group {
	return g.AllDependents()
}
