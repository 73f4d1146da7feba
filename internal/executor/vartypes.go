package executor

import (
	"github.com/n9te9/graphql-parser/ast"

	"github.com/graphql-hive/federation-router/internal/schema"
)

// InferArgumentTypes walks selections rooted at rootTypeName in sg's own
// schema document and returns, for every variable used as a field
// argument, the GraphQL type string to declare it with. A variable whose
// argument type can't be found in the subgraph schema falls back to a
// type inferred from its runtime value.
//
// Grounded on query_builder_v2.go's getVariableTypeFromSchema/
// getArgumentTypeFromSchema/getFieldType chain.
func InferArgumentTypes(sg *schema.Subgraph, rootTypeName string, selections []ast.Selection, variables map[string]any) map[string]string {
	defs := make(map[string]string)
	var walk func(sels []ast.Selection, typeName string)
	walk = func(sels []ast.Selection, typeName string) {
		objType := findObjectType(sg.Doc, typeName)
		for _, sel := range sels {
			field, ok := sel.(*ast.Field)
			if !ok {
				continue
			}
			for _, arg := range field.Arguments {
				v, ok := arg.Value.(*ast.Variable)
				if !ok {
					continue
				}
				if _, seen := defs[v.Name]; seen {
					continue
				}
				if t := argumentType(objType, field.Name.String(), arg.Name.String()); t != "" {
					defs[v.Name] = t
				} else {
					defs[v.Name] = valueTypeFallback(variables[v.Name])
				}
			}
			if len(field.SelectionSet) > 0 {
				walk(field.SelectionSet, fieldTypeName(objType, field.Name.String()))
			}
		}
	}
	walk(selections, rootTypeName)
	return defs
}

func findObjectType(doc *ast.Document, name string) *ast.ObjectTypeDefinition {
	if doc == nil {
		return nil
	}
	for _, def := range doc.Definitions {
		if o, ok := def.(*ast.ObjectTypeDefinition); ok && o.Name.String() == name {
			return o
		}
	}
	return nil
}

func argumentType(objType *ast.ObjectTypeDefinition, fieldName, argName string) string {
	if objType == nil {
		return ""
	}
	for _, f := range objType.Fields {
		if f.Name.String() != fieldName {
			continue
		}
		for _, arg := range f.Arguments {
			if arg.Name.String() == argName {
				return arg.Type.String()
			}
		}
	}
	return ""
}

func fieldTypeName(objType *ast.ObjectTypeDefinition, fieldName string) string {
	if objType == nil {
		return ""
	}
	for _, f := range objType.Fields {
		if f.Name.String() == fieldName {
			return unwrapNamedType(f.Type)
		}
	}
	return ""
}

func unwrapNamedType(t ast.Type) string {
	switch v := t.(type) {
	case *ast.NonNullType:
		return unwrapNamedType(v.Type)
	case *ast.ListType:
		return unwrapNamedType(v.Type)
	case *ast.NamedType:
		return v.Name.String()
	default:
		if t == nil {
			return ""
		}
		return t.String()
	}
}

func valueTypeFallback(v any) string {
	switch v.(type) {
	case string:
		return "String"
	case int, int32, int64, float64:
		return "Int"
	case bool:
		return "Boolean"
	default:
		return "String"
	}
}
