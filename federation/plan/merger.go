package plan

import (
	"github.com/n9te9/graphql-parser/ast"
)

// MergeSelections lowers a group's recorded field selections into a
// normalised selection set ready to send to a subgraph, per §4.6:
// non-aliased fields with the same response key are combined (their
// sub-selections recursively merged) and aliased fields never merge.
// Fragment spreads never reach it: they are expanded away during splitting.
func MergeSelections(selections []Selection) []ast.Selection {
	fields := make([]*ast.Field, 0, len(selections))
	for _, sel := range selections {
		if sel.Field != nil {
			fields = append(fields, sel.Field)
		}
	}

	return mergeFieldSet(fields)
}

// mergeFieldSet applies rules 2-5 of §4.6 to a flat list of field nodes.
// Every Selection a Group carries is a *ast.Field (fragment spreads are
// expanded away during splitting), so there's no separate spread-merging
// path here.
func mergeFieldSet(fields []*ast.Field) []ast.Selection {
	var aliased []*ast.Field
	var nonAliasedOrder []string
	grouped := make(map[string][]*ast.Field)

	for _, f := range fields {
		if f.Alias != nil && f.Alias.String() != "" {
			aliased = append(aliased, f)
			continue
		}
		name := f.Name.String()
		if _, seen := grouped[name]; !seen {
			nonAliasedOrder = append(nonAliasedOrder, name)
		}
		grouped[name] = append(grouped[name], f)
	}

	out := make([]ast.Selection, 0, len(nonAliasedOrder)+len(aliased))

	for _, name := range nonAliasedOrder {
		group := grouped[name]
		out = append(out, mergeFieldGroup(group))
	}
	for _, f := range aliased {
		out = append(out, f)
	}

	return out
}

// mergeFieldGroup combines ≥1 field nodes sharing a response key into a
// single field, recursively merging sub-selections. A lone field still
// recurses into its own sub-selection: nesting means duplicate response
// keys can now appear several levels down from any point where the group
// dedups to a single node, not just at that node's own level.
func mergeFieldGroup(group []*ast.Field) *ast.Field {
	head := group[0]

	var combinedSelections []ast.Selection
	var combinedFields []*ast.Field
	var combinedSpreads []ast.Selection

	for _, f := range group {
		for _, sub := range f.SelectionSet {
			switch s := sub.(type) {
			case *ast.Field:
				combinedFields = append(combinedFields, s)
			default:
				combinedSpreads = append(combinedSpreads, sub)
			}
		}
	}

	if len(combinedFields) == 0 && len(combinedSpreads) == 0 {
		return head
	}

	combinedSelections = mergeFieldSet(combinedFields)
	combinedSelections = append(combinedSelections, combinedSpreads...)

	merged := &ast.Field{
		Alias:        head.Alias,
		Name:         head.Name,
		Arguments:    head.Arguments,
		Directives:   head.Directives,
		SelectionSet: combinedSelections,
	}
	return merged
}

// MergeGroupTree recursively merges a group's own Fields and every
// dependent group's Fields, in place, so the whole plan is normalised
// before emission.
func MergeGroupTree(g *Group) {
	merged := MergeSelections(g.Fields)
	g.Fields = selectionsFromAST(g.Fields, merged)

	for _, dep := range g.AllDependents() {
		MergeGroupTree(dep)
	}
}

// selectionsFromAST rewraps merged AST selections back into plan.Selection
// values, attributing every merged field to the parent type of the first
// original selection sharing its response key (aliasing across different
// parent types inside one group is not possible: a group only ever
// resolves fields of a single parentType per level).
func selectionsFromAST(original []Selection, merged []ast.Selection) []Selection {
	parentType := ""
	if len(original) > 0 {
		parentType = original[0].ParentType
	}

	out := make([]Selection, 0, len(merged))
	for _, sel := range merged {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		out = append(out, Selection{ParentType: parentType, Field: field})
	}
	return out
}
