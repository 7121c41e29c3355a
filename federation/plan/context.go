package plan

import (
	"fmt"

	"github.com/graphcompose/fedplan/federation/graph"
	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/token"
)

// Context carries everything the splitter, group selectors, and merger need
// to consult while walking an operation's selection set: the composed
// schema, the operation being planned, and its fragment definitions.
type Context struct {
	SuperGraph  *graph.SuperGraphV2
	Operation   *ast.OperationDefinition
	Fragments   map[string]*ast.FragmentDefinition
	RootType    string
	possibleTyp map[string][]string
}

// NewContext builds a Context for doc's single operation. GraphQL requests
// with more than one operation are rejected by validation upstream; the
// planner always plans exactly one.
func NewContext(superGraph *graph.SuperGraphV2, doc *ast.Document) (*Context, error) {
	op := findOperation(doc)
	if op == nil {
		return nil, fmt.Errorf("plan: document contains no operation definition")
	}

	rootType, err := rootTypeName(superGraph, op)
	if err != nil {
		return nil, err
	}

	fragments := make(map[string]*ast.FragmentDefinition)
	for _, def := range doc.Definitions {
		if fd, ok := def.(*ast.FragmentDefinition); ok {
			fragments[fd.Name.String()] = fd
		}
	}

	return &Context{
		SuperGraph:  superGraph,
		Operation:   op,
		Fragments:   fragments,
		RootType:    rootType,
		possibleTyp: make(map[string][]string),
	}, nil
}

func findOperation(doc *ast.Document) *ast.OperationDefinition {
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok {
			return op
		}
	}
	return nil
}

func rootTypeName(superGraph *graph.SuperGraphV2, op *ast.OperationDefinition) (string, error) {
	rootTypeName := defaultRootTypeName(op.Operation)

	for _, def := range superGraph.Schema.Definitions {
		sd, ok := def.(*ast.SchemaDefinition)
		if !ok {
			continue
		}
		for _, ot := range sd.OperationTypes {
			if (ot.Operation == token.QUERY && op.Operation == ast.Query) ||
				(ot.Operation == token.MUTATION && op.Operation == ast.Mutation) ||
				(ot.Operation == token.SUBSCRIPTION && op.Operation == ast.Subscription) {
				rootTypeName = ot.Type.Name.String()
			}
		}
	}

	if rootTypeName == "" {
		return "", fmt.Errorf("plan: unknown operation type %v", op.Operation)
	}
	return rootTypeName, nil
}

func defaultRootTypeName(op ast.OperationType) string {
	switch op {
	case ast.Query:
		return "Query"
	case ast.Mutation:
		return "Mutation"
	case ast.Subscription:
		return "Subscription"
	default:
		return ""
	}
}

// IsMutation reports whether the operation being planned is a mutation,
// which drives the serial group-selection strategy.
func (c *Context) IsMutation() bool {
	return c.Operation.Operation == ast.Mutation
}

// PossibleTypes returns (and caches) the concrete object types a selection
// against typeName may resolve to, per graph.SuperGraphV2.PossibleTypes.
func (c *Context) PossibleTypes(typeName string) []string {
	if cached, ok := c.possibleTyp[typeName]; ok {
		return cached
	}
	types := c.SuperGraph.PossibleTypes(typeName)
	c.possibleTyp[typeName] = types
	return types
}

// FieldTypeName resolves the named (unwrapped) return type of fieldName on
// parentType.
func (c *Context) FieldTypeName(parentType, fieldName string) (string, error) {
	def, err := c.SuperGraph.FieldDefOn(parentType, fieldName)
	if err != nil {
		return "", err
	}
	return unwrapNamedType(def.Type), nil
}

func unwrapNamedType(t ast.Type) string {
	switch typ := t.(type) {
	case *ast.NamedType:
		return typ.Name.String()
	case *ast.ListType:
		return unwrapNamedType(typ.Type)
	case *ast.NonNullType:
		return unwrapNamedType(typ.Type)
	default:
		return ""
	}
}

// ResolveFragmentSpread returns the fragment definition a spread refers to,
// erroring if it's undefined: an undefined fragment is a composition error,
// not a recoverable planning decision.
func (c *Context) ResolveFragmentSpread(spread *ast.FragmentSpread) (*ast.FragmentDefinition, error) {
	name := spread.Name.String()
	fd, ok := c.Fragments[name]
	if !ok {
		return nil, fmt.Errorf("plan: fragment %q is not defined", name)
	}
	return fd, nil
}
