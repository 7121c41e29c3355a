package plan

import (
	"github.com/n9te9/graphql-parser/ast"
)

// Selector routes a field selected on parentType to the Fetch Group that
// should resolve it, and exposes the resulting top-level groups once a
// traversal using it is complete.
type Selector interface {
	GroupForField(parentType string, fieldDef *ast.FieldDefinition) (*Group, error)
	IntoGroups() []*Group
}

// ParallelSelector is used for query/subscription root selections:
// independent top-level fields may be fetched from their owning services
// concurrently.
type ParallelSelector struct {
	ctx    *Context
	groups *Map[*Group]
}

// NewParallelSelector creates a root selector for query/subscription operations.
func NewParallelSelector(ctx *Context) *ParallelSelector {
	return &ParallelSelector{ctx: ctx, groups: NewMap[*Group]()}
}

func (s *ParallelSelector) GroupForField(parentType string, fieldDef *ast.FieldDefinition) (*Group, error) {
	service := s.ctx.SuperGraph.OwningServiceName(parentType, fieldDef.Name.String())
	if service == "" {
		return nil, &CompositionError{TypeName: parentType, FieldName: fieldDef.Name.String(), Reason: "no subgraph owns this field"}
	}

	if g, ok := s.groups.Get(service); ok {
		return g, nil
	}
	g := NewGroup(service, parentType, nil)
	s.groups.Set(service, g)
	return g, nil
}

func (s *ParallelSelector) IntoGroups() []*Group {
	return s.groups.Values()
}

// SerialSelector is used for mutation root selections: mutation field order
// must be preserved exactly, though adjacent fields routed to the same
// service may share one fetch.
type SerialSelector struct {
	ctx    *Context
	groups []*Group
}

// NewSerialSelector creates a root selector for mutation operations.
func NewSerialSelector(ctx *Context) *SerialSelector {
	return &SerialSelector{ctx: ctx}
}

func (s *SerialSelector) GroupForField(parentType string, fieldDef *ast.FieldDefinition) (*Group, error) {
	service := s.ctx.SuperGraph.OwningServiceName(parentType, fieldDef.Name.String())
	if service == "" {
		return nil, &CompositionError{TypeName: parentType, FieldName: fieldDef.Name.String(), Reason: "no subgraph owns this field"}
	}

	if n := len(s.groups); n > 0 && s.groups[n-1].ServiceName == service {
		return s.groups[n-1], nil
	}

	g := NewGroup(service, parentType, nil)
	s.groups = append(s.groups, g)
	return g, nil
}

func (s *SerialSelector) IntoGroups() []*Group {
	return s.groups
}

// SubFieldSelector routes non-root selections on behalf of a single parent
// group, introducing dependent groups (and, for cross-service extension
// fields, chained dependent groups) as ownership requires.
type SubFieldSelector struct {
	ctx        *Context
	parent     *Group
	childMerge ResponsePath
}

// NewSubFieldSelector creates a selector for the sub-selection of a field
// already placed in parent, whose results will splice at childMerge. The
// @provides closure of that field is read live off parent.ProvidedFields,
// which the splitter sets before constructing this selector: response
// keys there are ones this selector's shortcut paths may treat as already
// resolved in parent's payload.
func NewSubFieldSelector(ctx *Context, parent *Group, childMerge ResponsePath) *SubFieldSelector {
	return &SubFieldSelector{ctx: ctx, parent: parent, childMerge: childMerge}
}

func (s *SubFieldSelector) GroupForField(parentType string, fieldDef *ast.FieldDefinition) (*Group, error) {
	fieldName := fieldDef.Name.String()

	// 1. __typename never round-trips; it's answered by whichever service
	// already holds the parent group's payload.
	if fieldName == "__typename" {
		return s.parent, nil
	}

	superGraph := s.ctx.SuperGraph

	// 2. Value types are served wherever their parent is.
	if superGraph.IsValueType(parentType) {
		return s.parent, nil
	}

	base := superGraph.BaseServiceName(parentType)
	owning := superGraph.OwningServiceName(parentType, fieldName)
	if base == "" || owning == "" {
		return nil, &CompositionError{TypeName: parentType, FieldName: fieldName, Reason: "field has no resolvable owner"}
	}

	if owning == base {
		return s.nonExtensionPath(parentType, fieldName, owning)
	}
	return s.extensionPath(parentType, fieldName, base, owning)
}

// nonExtensionPath implements §4.4 step 4: the field is defined on its
// type's base service.
func (s *SubFieldSelector) nonExtensionPath(parentType, fieldName, owning string) (*Group, error) {
	if owning == s.parent.ServiceName || s.parent.ProvidesResponseKey(fieldName) {
		return s.parent, nil
	}

	dependent := s.parent.DependentGroupForService(owning, parentType, s.childMerge)
	keys := s.keyFieldsFor(parentType, s.parent.ServiceName, owning)
	s.requireFields(dependent, parentType, keys)
	return dependent, nil
}

// extensionPath implements §4.4 step 5: the field is an extension defined
// off the type's base service, with its own @requires. The entity
// representation's key fields travel alongside the @requires fields on
// every hop: a dependent group can never identify its entity without them.
func (s *SubFieldSelector) extensionPath(parentType, fieldName, base, owning string) (*Group, error) {
	requiresNames := s.ctx.SuperGraph.RequiredFieldNames(parentType, fieldName, owning)

	if s.allProvided(requiresNames) {
		if owning == s.parent.ServiceName {
			return s.parent, nil
		}
		dependent := s.parent.DependentGroupForService(owning, parentType, s.childMerge)
		keys := s.keyFieldsFor(parentType, s.parent.ServiceName, owning)
		s.requireFields(dependent, parentType, keys)
		// The @requires fields are already in the parent's payload via
		// @provides, so they are recorded on the dependent and fetched by
		// the parent itself.
		if required := namesToSelections(requiresNames); len(required) > 0 {
			existing, _ := dependent.RequiredFields.Get(parentType)
			dependent.RequiredFields.Set(parentType, append(existing, required...))
			for _, sel := range required {
				s.parent.AddField(parentType, sel.(*ast.Field))
			}
		}
		return dependent, nil
	}

	if base == s.parent.ServiceName {
		dependent := s.parent.DependentGroupForService(owning, parentType, s.childMerge)
		keys := s.keyFieldsFor(parentType, s.parent.ServiceName, owning)
		s.requireFields(dependent, parentType, keys)
		s.requireFields(dependent, parentType, namesToSelections(requiresNames))
		return dependent, nil
	}

	// Two-step chain: first round-trip to the base service to materialise
	// the entity, then a dependent fetch to the owning (extension)
	// service. Both hops share the same merge path as the field itself;
	// the base hop does not descend further into the response.
	baseHop := s.parent.DependentGroupForService(base, parentType, s.childMerge)
	s.requireFields(baseHop, parentType, s.keyFieldsFor(parentType, s.parent.ServiceName, base))

	owningHop := baseHop.DependentGroupForService(owning, parentType, s.childMerge)
	s.requireFields(owningHop, parentType, s.keyFieldsFor(parentType, base, owning))
	s.requireFields(owningHop, parentType, namesToSelections(requiresNames))
	return owningHop, nil
}

// keyFieldsFor resolves the key fields needed to cross from fromService
// into toService for parentType, falling back to toService's own keys
// when fromService applies none (the §9 open question on __typename-only
// key handling).
func (s *SubFieldSelector) keyFieldsFor(parentType, fromService, toService string) []ast.Selection {
	names := s.ctx.SuperGraph.KeyFieldNames(parentType, fromService)
	if len(names) == 0 {
		names = s.ctx.SuperGraph.KeyFieldNames(parentType, toService)
	}
	if len(names) == 0 {
		return []ast.Selection{typenameSelection()}
	}
	return namesToSelections(names)
}

// allProvided reports whether every name in names is already in the
// parent group's @provides closure for the field currently being expanded.
func (s *SubFieldSelector) allProvided(names []string) bool {
	for _, n := range names {
		if !s.parent.ProvidesResponseKey(n) {
			return false
		}
	}
	return true
}

// requireFields implements the dependent_group_for_service contract
// (§4.3): required selections are recorded on the dependent group, and
// each is placed into the chain of ancestor groups that must actually
// fetch it — which may itself cross a further service boundary when the
// immediate parent doesn't own the field.
func (s *SubFieldSelector) requireFields(dependent *Group, parentType string, required []ast.Selection) {
	if len(required) == 0 {
		return
	}

	existing, _ := dependent.RequiredFields.Get(parentType)
	dependent.RequiredFields.Set(parentType, append(existing, required...))

	owner := dependent.Parent
	if owner == nil {
		return
	}
	for _, sel := range required {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		s.placeRequiredField(owner, parentType, field)
	}
}

// placeRequiredField ensures name is fetched by owner or one of owner's own
// dependents, recursively pulling in that dependent's own key fields when
// the placement itself crosses yet another service boundary.
func (s *SubFieldSelector) placeRequiredField(owner *Group, parentType string, field *ast.Field) {
	name := field.Name.String()
	if name == "__typename" {
		owner.AddField(parentType, field)
		return
	}

	owningService := s.ctx.SuperGraph.OwningServiceName(parentType, name)
	if owningService == "" || owningService == owner.ServiceName {
		owner.AddField(parentType, field)
		return
	}

	dependent := owner.DependentGroupForService(owningService, parentType, s.childMerge)
	dependent.AddField(parentType, field)

	keys := s.keyFieldsFor(parentType, owner.ServiceName, owningService)
	existing, _ := dependent.RequiredFields.Get(parentType)
	dependent.RequiredFields.Set(parentType, append(existing, keys...))
	for _, keySel := range keys {
		if keyField, ok := keySel.(*ast.Field); ok && keyField.Name.String() != name {
			s.placeRequiredField(owner, parentType, keyField)
		}
	}
}

func (s *SubFieldSelector) IntoGroups() []*Group {
	return []*Group{s.parent}
}

func namesToSelections(names []string) []ast.Selection {
	out := make([]ast.Selection, 0, len(names))
	for _, n := range names {
		out = append(out, fieldSelection(n))
	}
	return out
}

func fieldSelection(name string) *ast.Field {
	return &ast.Field{Name: &ast.Name{Value: name}}
}

func typenameSelection() *ast.Field {
	return fieldSelection("__typename")
}
