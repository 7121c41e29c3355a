package graph

import (
	"fmt"
	"strings"

	"github.com/n9te9/graphql-parser/ast"
)

// BaseServiceName returns the name of the subgraph that originally declared
// typeName (as opposed to extending it). Returns "" if typeName is not an
// entity known to any subgraph.
func (sg *SuperGraphV2) BaseServiceName(typeName string) string {
	owner := sg.GetEntityOwnerSubGraph(typeName)
	if owner == nil {
		return ""
	}
	return owner.Name
}

// OwningServiceName returns the subgraph that defines fieldName on typeName.
// Key fields (those named in an @key directive) and __typename always resolve
// to the base service, matching the federation convention that entity
// representations are always addressable at the type's base.
func (sg *SuperGraphV2) OwningServiceName(typeName, fieldName string) string {
	if fieldName == "__typename" {
		return sg.BaseServiceName(typeName)
	}

	if base := sg.GetEntityOwnerSubGraph(typeName); base != nil {
		if entity, ok := base.GetEntity(typeName); ok {
			for _, key := range entity.Keys {
				for _, name := range strings.Fields(key.FieldSet) {
					if name == fieldName {
						return base.Name
					}
				}
			}
		}
	}

	owner := sg.GetFieldOwnerSubGraph(typeName, fieldName)
	if owner == nil {
		return ""
	}
	return owner.Name
}

// IsValueType reports whether typeName has no resolvable @key directive in
// any subgraph (a type whose only keys are @key(resolvable: false) counts as
// a value type here). Value types are served wherever their parent is served: they do
// not own a base service distinct from whoever embeds them.
func (sg *SuperGraphV2) IsValueType(typeName string) bool {
	return !sg.IsEntityType(typeName)
}

// KeyFieldNames returns the field names from the most applicable @key
// directive for typeName as seen from service. When typeName has no
// resolvable @key in that service (or isn't an entity there at all), it
// falls back to the type's base-service key. When neither applies it
// returns nil; the __typename-only fallback is left to callers such as the
// plan package's keyFieldsFor.
func (sg *SuperGraphV2) KeyFieldNames(typeName, service string) []string {
	for _, s := range sg.SubGraphs {
		if s.Name != service {
			continue
		}
		if entity, ok := s.GetEntity(typeName); ok && entity.IsResolvable() {
			for _, key := range entity.Keys {
				if key.Resolvable {
					return strings.Fields(key.FieldSet)
				}
			}
		}
	}

	if base := sg.GetEntityOwnerSubGraph(typeName); base != nil && base.Name != service {
		if entity, ok := base.GetEntity(typeName); ok {
			for _, key := range entity.Keys {
				if key.Resolvable {
					return strings.Fields(key.FieldSet)
				}
			}
		}
	}

	return nil
}

// RequiredFieldNames returns the field names named in the @requires
// directive of fieldName on typeName as declared in service. Returns no
// names (nil, or an empty slice for a parsed entity field) when the field
// has no @requires there.
func (sg *SuperGraphV2) RequiredFieldNames(typeName, fieldName, service string) []string {
	for _, s := range sg.SubGraphs {
		if s.Name != service {
			continue
		}
		if entity, ok := s.GetEntity(typeName); ok {
			if field, ok := entity.Fields[fieldName]; ok {
				return field.Requires
			}
		}
	}
	return nil
}

// ProvidedFieldNames returns the field names named in the @provides
// directive of fieldName on parentType as declared in service.
func (sg *SuperGraphV2) ProvidedFieldNames(parentType, fieldName, service string) []string {
	for _, s := range sg.SubGraphs {
		if s.Name != service {
			continue
		}
		if entity, ok := s.GetEntity(parentType); ok {
			if field, ok := entity.Fields[fieldName]; ok {
				return field.Provides
			}
		}
		for _, def := range s.Schema.Definitions {
			if objDef, ok := def.(*ast.ObjectTypeDefinition); ok && objDef.Name.String() == parentType {
				for _, f := range objDef.Fields {
					if f.Name.String() == fieldName {
						return directiveFieldsArg(f.Directives, "provides")
					}
				}
			}
		}
	}
	return nil
}

func directiveFieldsArg(directives []*ast.Directive, name string) []string {
	for _, d := range directives {
		if d.Name != name {
			continue
		}
		for _, arg := range d.Arguments {
			if arg.Name.String() == "fields" {
				return strings.Fields(strings.Trim(arg.Value.String(), "\""))
			}
		}
	}
	return nil
}

// ObjectTypeByName returns the composed ObjectTypeDefinition for name, or nil.
func (sg *SuperGraphV2) ObjectTypeByName(name string) *ast.ObjectTypeDefinition {
	for _, def := range sg.Schema.Definitions {
		if objDef, ok := def.(*ast.ObjectTypeDefinition); ok && objDef.Name.String() == name {
			return objDef
		}
	}
	return nil
}

// InterfaceTypeByName returns the composed InterfaceTypeDefinition for name, or nil.
func (sg *SuperGraphV2) InterfaceTypeByName(name string) *ast.InterfaceTypeDefinition {
	for _, def := range sg.Schema.Definitions {
		if ifDef, ok := def.(*ast.InterfaceTypeDefinition); ok && ifDef.Name.String() == name {
			return ifDef
		}
	}
	return nil
}

// UnionTypeByName returns the composed UnionTypeDefinition for name, or nil.
func (sg *SuperGraphV2) UnionTypeByName(name string) *ast.UnionTypeDefinition {
	for _, def := range sg.Schema.Definitions {
		if unDef, ok := def.(*ast.UnionTypeDefinition); ok && unDef.Name.String() == name {
			return unDef
		}
	}
	return nil
}

// PossibleTypes returns the concrete object type names a selection against
// typeName may resolve to at runtime: itself for object types, every
// implementing object (BFS over interface implementation, ordered by schema
// definition order for determinism) for interfaces, and its member list for
// unions.
func (sg *SuperGraphV2) PossibleTypes(typeName string) []string {
	if sg.ObjectTypeByName(typeName) != nil {
		return []string{typeName}
	}

	if union := sg.UnionTypeByName(typeName); union != nil {
		names := make([]string, 0, len(union.Types))
		for _, t := range union.Types {
			names = append(names, namedTypeName(t))
		}
		return names
	}

	if sg.InterfaceTypeByName(typeName) == nil {
		return nil
	}

	// BFS: an interface's possible types are every object type (in schema
	// definition order) that implements it, plus objects implementing any
	// interface that itself implements this interface, transitively.
	frontier := []string{typeName}
	visitedInterfaces := map[string]bool{typeName: true}
	var objects []string
	seenObjects := map[string]bool{}

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		for _, def := range sg.Schema.Definitions {
			switch td := def.(type) {
			case *ast.ObjectTypeDefinition:
				if implementsInterface(td.Interfaces, current) && !seenObjects[td.Name.String()] {
					seenObjects[td.Name.String()] = true
					objects = append(objects, td.Name.String())
				}
			case *ast.InterfaceTypeDefinition:
				if implementsInterface(td.Interfaces, current) && !visitedInterfaces[td.Name.String()] {
					visitedInterfaces[td.Name.String()] = true
					frontier = append(frontier, td.Name.String())
				}
			}
		}
	}

	return objects
}

func implementsInterface(interfaces []*ast.NamedType, name string) bool {
	for _, i := range interfaces {
		if namedTypeName(i) == name {
			return true
		}
	}
	return false
}

func namedTypeName(t ast.Type) string {
	switch typ := t.(type) {
	case *ast.NamedType:
		return typ.Name.String()
	case *ast.ListType:
		return namedTypeName(typ.Type)
	case *ast.NonNullType:
		return namedTypeName(typ.Type)
	default:
		return ""
	}
}

// IsListField reports whether t denotes a list type, possibly wrapped in
// non-null.
func IsListField(t ast.Type) bool {
	switch typ := t.(type) {
	case *ast.ListType:
		return true
	case *ast.NonNullType:
		return IsListField(typ.Type)
	default:
		return false
	}
}

// FieldDefOn returns the FieldDefinition named fieldName on the object type
// typeName, searching across all subgraphs that contribute to it (so
// extension-only fields are found too).
func (sg *SuperGraphV2) FieldDefOn(typeName, fieldName string) (*ast.FieldDefinition, error) {
	if fieldName == "__typename" {
		return typenameFieldDef, nil
	}

	if objDef := sg.ObjectTypeByName(typeName); objDef != nil {
		for _, f := range objDef.Fields {
			if f.Name.String() == fieldName {
				return f, nil
			}
		}
	}
	if ifDef := sg.InterfaceTypeByName(typeName); ifDef != nil {
		for _, f := range ifDef.Fields {
			if f.Name.String() == fieldName {
				return f, nil
			}
		}
	}

	return nil, fmt.Errorf("field %s not found on type %s", fieldName, typeName)
}

var typenameFieldDef = &ast.FieldDefinition{
	Name: &ast.Name{Value: "__typename"},
	Type: &ast.NamedType{Name: &ast.Name{Value: "String"}},
}
