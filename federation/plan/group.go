package plan

import (
	"github.com/n9te9/graphql-parser/ast"
)

// Selection pairs a field selection's AST node with the type it was
// selected against, since the same field node can be visited once per
// possible type when it sits under an interface or union selection.
type Selection struct {
	ParentType string
	Field      *ast.Field
}

// Group is a single request to one subgraph service: the set of fields it
// must resolve, where in the response those fields splice back in, and
// which other groups it depends on.
//
// A Group forms a node in a plan's dependency forest. Root groups (MergeAt
// empty) have no dependency; every other group depends on exactly one
// parent group reachable by following its own DependentGroupsByService /
// OtherDependentGroups back-references from the group that created it.
type Group struct {
	ServiceName string

	// ParentType is the composed type whose fields this group resolves.
	ParentType string

	// Parent is the group that created this one as a dependent, or nil for
	// a root group.
	Parent *Group

	// Fields are the selections this group resolves directly, in the order
	// they were added.
	Fields []Selection

	// RequiredFields are the fields that must already be present in the
	// response (resolved by an ancestor group) before this group's request
	// can be built, keyed by the type they're required on.
	RequiredFields *Map[[]ast.Selection]

	// ProvidedFields is the set of response keys this group's result is
	// guaranteed to already carry via @provides, keyed by response key.
	// Descendant selectors consult it to skip unnecessary dependent
	// fetches.
	ProvidedFields *Map[bool]

	// MergeAt is the response path this group's result splices into.
	MergeAt ResponsePath

	// DependentGroupsByService holds, for root and non-root groups alike,
	// the child group per dependent service reached via entity resolution at this group's
	// boundary. Keyed by service name, ordered by first creation.
	DependentGroupsByService *Map[*Group]

	// OtherDependentGroups holds child groups that don't key off a single
	// service (e.g. further fan-out beneath a dependent group's own
	// fields). Order matters for deterministic plan emission.
	OtherDependentGroups []*Group

	// InternalFragments is a reserved slot for auto-fragmentisation; it is
	// initialised empty and nothing in the planner populates or reads it.
	InternalFragments *Map[*ast.FragmentDefinition]

	// current, while non-nil, is the in-progress sub-selection accumulator
	// for whichever field the splitter is currently expanding against this
	// group. AddField appends there instead of to Fields while it's set, so
	// a same-service child field nests inside its parent field's own
	// selection set instead of flattening into a top-level sibling. The
	// splitter saves and restores it around each field it expands.
	current *[]ast.Selection
}

// NewGroup creates an empty Group for service at mergeAt, resolving fields
// of parentType.
func NewGroup(serviceName, parentType string, mergeAt ResponsePath) *Group {
	return &Group{
		ServiceName:              serviceName,
		ParentType:               parentType,
		RequiredFields:           NewMap[[]ast.Selection](),
		ProvidedFields:           NewMap[bool](),
		MergeAt:                  mergeAt,
		DependentGroupsByService: NewMap[*Group](),
		InternalFragments:        NewMap[*ast.FragmentDefinition](),
	}
}

// AddField appends a field selection against parentType to the group,
// skipping an exact duplicate of the same field node (the merger handles
// same-name-different-node merging; this only guards against a required
// field being recorded twice by different call sites).
//
// While the group has an open accumulator (set by the splitter as it
// expands one of the group's own fields), the selection nests there
// instead of landing as a new top-level entry in Fields.
func (g *Group) AddField(parentType string, field *ast.Field) {
	if g.current != nil {
		for _, existing := range *g.current {
			if f, ok := existing.(*ast.Field); ok && f == field {
				return
			}
		}
		*g.current = append(*g.current, field)
		return
	}

	for _, existing := range g.Fields {
		if existing.Field == field {
			return
		}
	}
	g.Fields = append(g.Fields, Selection{ParentType: parentType, Field: field})
}

// ProvidesResponseKey reports whether responseKey is in this group's
// provided_fields set. Selectors routing the children of whichever field
// is currently open against this group consult it directly, so @provides
// coverage is visible the moment it's recorded, not just at the field it
// was declared on.
func (g *Group) ProvidesResponseKey(responseKey string) bool {
	_, ok := g.ProvidedFields.Get(responseKey)
	return ok
}

// SetProvidedFields records responseKeys as provided by this group's
// eventual result, replacing any previous set. The splitter scopes this to
// the field currently being expanded, saving and restoring the prior set
// around the recursive call so a nested field's own (possibly empty)
// closure doesn't leak into its ancestor's remaining siblings.
func (g *Group) SetProvidedFields(responseKeys []string) {
	g.ProvidedFields = NewMap[bool]()
	for _, k := range responseKeys {
		g.ProvidedFields.Set(k, true)
	}
}

// DependentGroupForService returns the existing dependent group for
// service, creating and registering a new one at childMergeAt if none
// exists yet. This is the single join point that keeps a subgraph's
// fields for one response location in a single request instead of one
// request per field.
//
// Per the dependent_group_for_service contract: a dependent created with
// an empty childMergeAt inherits the parent's own merge path (the
// same-path entity round-trip case), rather than being left unset.
func (g *Group) DependentGroupForService(serviceName, parentType string, childMergeAt ResponsePath) *Group {
	if existing, ok := g.DependentGroupsByService.Get(serviceName); ok {
		return existing
	}
	mergeAt := childMergeAt
	if len(mergeAt) == 0 {
		mergeAt = g.MergeAt
	}
	child := NewGroup(serviceName, parentType, mergeAt)
	child.Parent = g
	g.DependentGroupsByService.Set(serviceName, child)
	return child
}

// AddOtherDependent registers child as a dependent group that isn't keyed
// by a single owning service (used when a group's own subfields fan out
// further without an intervening entity boundary).
func (g *Group) AddOtherDependent(child *Group) {
	g.OtherDependentGroups = append(g.OtherDependentGroups, child)
}

// AllDependents returns this group's direct children in deterministic
// order: service-keyed dependents first (insertion order), then other
// dependents.
func (g *Group) AllDependents() []*Group {
	deps := g.DependentGroupsByService.Values()
	out := make([]*Group, 0, len(deps)+len(g.OtherDependentGroups))
	out = append(out, deps...)
	out = append(out, g.OtherDependentGroups...)
	return out
}
