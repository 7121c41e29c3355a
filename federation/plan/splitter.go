package plan

import (
	"github.com/n9te9/graphql-parser/ast"
)

// Splitter is the top-level traversal: it drives a root Selector over an
// operation's selection set, then recursively drives a SubFieldSelector
// over every field that itself selects further.
type Splitter struct {
	ctx  *Context
	diag *Diagnostics
}

// NewSplitter creates a Splitter for ctx, accumulating non-fatal
// diagnostics as it walks.
func NewSplitter(ctx *Context) *Splitter {
	return &Splitter{ctx: ctx, diag: &Diagnostics{}}
}

// Diagnostics returns the UnsupportedSelection reports gathered so far.
func (s *Splitter) Diagnostics() *Diagnostics {
	return s.diag
}

// Split walks the operation's root selection set and returns the top-level
// Fetch Groups in selector order (parallel for query/subscription, serial
// for mutation).
func (s *Splitter) Split() ([]*Group, error) {
	var root Selector
	if s.ctx.IsMutation() {
		root = NewSerialSelector(s.ctx)
	} else {
		root = NewParallelSelector(s.ctx)
	}

	triples, err := s.expand(s.ctx.Operation.SelectionSet, s.ctx.RootType)
	if err != nil {
		return nil, err
	}

	for _, t := range triples {
		if isIntrospectionField(t.Field) {
			continue
		}

		group, err := root.GroupForField(t.ParentType, t.FieldDef)
		if err != nil {
			return nil, err
		}

		field, err := s.buildField(group, t)
		if err != nil {
			return nil, err
		}
		group.AddField(t.ParentType, field)
	}

	return root.IntoGroups(), nil
}

// triple is the internal (scope, field-def, field-node) unit the splitter
// passes between expansion and routing.
type triple struct {
	ParentType string
	FieldDef   *ast.FieldDefinition
	Field      *ast.Field
}

// expand flattens selections (fields, inline fragments, fragment spreads)
// against every concrete object type parentType's possible-types mapping
// resolves to, producing an ordered list of field triples. Interfaces and
// unions fan out into one pass per concrete member; plain object types
// produce a single pass over themselves.
func (s *Splitter) expand(selections []ast.Selection, parentType string) ([]triple, error) {
	var out []triple
	for _, concreteType := range s.ctx.PossibleTypes(parentType) {
		expanded, err := s.expandForConcreteType(selections, concreteType)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

func (s *Splitter) expandForConcreteType(selections []ast.Selection, concreteType string) ([]triple, error) {
	var out []triple

	for _, selection := range selections {
		switch sel := selection.(type) {
		case *ast.Field:
			fieldName := sel.Name.String()
			fieldDef, err := s.ctx.SuperGraph.FieldDefOn(concreteType, fieldName)
			if err != nil {
				s.diag.report(concreteType+"."+fieldName, err.Error())
				continue
			}
			out = append(out, triple{ParentType: concreteType, FieldDef: fieldDef, Field: sel})

		case *ast.InlineFragment:
			typeCondition := ""
			if sel.TypeCondition != nil {
				typeCondition = sel.TypeCondition.Name.String()
			}
			if typeCondition != "" && !typeApplies(s.ctx, typeCondition, concreteType) {
				continue
			}
			inner, err := s.expandForConcreteType(sel.SelectionSet, concreteType)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)

		case *ast.FragmentSpread:
			fragDef, err := s.ctx.ResolveFragmentSpread(sel)
			if err != nil {
				return nil, err
			}
			typeCondition := fragDef.TypeCondition.Name.String()
			if !typeApplies(s.ctx, typeCondition, concreteType) {
				continue
			}
			inner, err := s.expandForConcreteType(fragDef.SelectionSet, concreteType)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
		}
	}

	return out, nil
}

// typeApplies reports whether concreteType satisfies typeCondition: either
// they're the same object type, or concreteType is among typeCondition's
// possible types (typeCondition names an interface or union concreteType
// implements/belongs to).
func typeApplies(ctx *Context, typeCondition, concreteType string) bool {
	if typeCondition == concreteType {
		return true
	}
	for _, t := range ctx.PossibleTypes(typeCondition) {
		if t == concreteType {
			return true
		}
	}
	return false
}

func isIntrospectionField(field *ast.Field) bool {
	name := field.Name.String()
	return name == "__schema" || name == "__type"
}

// buildField implements the sub pass: for a field that itself selects
// further, it computes the field's @provides closure, binds a SubField
// selector at the extended merge path, and routes each child triple to the
// group that should resolve it. It returns the ast.Field to place at the
// caller's own level — a leaf field is returned untouched; a field with
// children is rebuilt with a fresh SelectionSet holding only the children
// that stayed in group, since a child routed to a different (dependent)
// group becomes that group's own top-level entry instead, added directly
// there rather than nested here.
func (s *Splitter) buildField(group *Group, t triple) (*ast.Field, error) {
	if len(t.Field.SelectionSet) == 0 {
		return t.Field, nil
	}

	fieldName := t.FieldDef.Name.String()
	returnType, err := s.ctx.FieldTypeName(t.ParentType, fieldName)
	if err != nil {
		return nil, err
	}

	childMerge := group.MergeAt.Extend(PathStep{Key: responseKey(t.Field)})
	if isListType(t.FieldDef) {
		childMerge = childMerge.Extend(PathStep{IsList: true})
	}

	provided := s.ctx.SuperGraph.ProvidedFieldNames(t.ParentType, fieldName, group.ServiceName)
	prevProvided := group.ProvidedFields
	group.SetProvidedFields(provided)
	defer func() { group.ProvidedFields = prevProvided }()

	var nested []ast.Selection
	prevCurrent := group.current
	group.current = &nested
	defer func() { group.current = prevCurrent }()

	selector := NewSubFieldSelector(s.ctx, group, childMerge)

	childTriples, err := s.expand(t.Field.SelectionSet, returnType)
	if err != nil {
		return nil, err
	}

	for _, childTriple := range childTriples {
		childGroup, err := selector.GroupForField(childTriple.ParentType, childTriple.FieldDef)
		if err != nil {
			return nil, err
		}

		childField, err := s.buildField(childGroup, childTriple)
		if err != nil {
			return nil, err
		}
		childGroup.AddField(childTriple.ParentType, childField)
	}

	return &ast.Field{
		Alias:        t.Field.Alias,
		Name:         t.Field.Name,
		Arguments:    t.Field.Arguments,
		Directives:   t.Field.Directives,
		SelectionSet: nested,
	}, nil
}

func responseKey(field *ast.Field) string {
	if field.Alias != nil && field.Alias.String() != "" {
		return field.Alias.String()
	}
	return field.Name.String()
}

func isListType(fieldDef *ast.FieldDefinition) bool {
	return listDepthNonNull(fieldDef.Type)
}

func listDepthNonNull(t ast.Type) bool {
	switch typ := t.(type) {
	case *ast.ListType:
		return true
	case *ast.NonNullType:
		return listDepthNonNull(typ.Type)
	default:
		return false
	}
}
