package policy

import (
	"context"

	"github.com/n9te9/graphql-parser/ast"

	"github.com/graphql-hive/federation-router/internal/schema"
)

// DeniedField records one selection the authorize-filter layer removed
// from the operation before planning, along with the response-key path
// (from the operation root) it would have occupied.
type DeniedField struct {
	Path     []any
	Message  string
	Decision Decision
}

// Code reports the extensions.code for this denial: a RequireAuth
// denial reports UNAUTHENTICATED, a Deny reports FORBIDDEN, matching the
// UnauthorizedField taxonomy entry. Whether a denial is fatal (HTTP 403)
// or collected alongside a 200 response with the field nulled is a
// pipeline-level mode decision (spec: "200 or 403 per mode"), so it is
// not encoded here.
func (d DeniedField) Code() string {
	if d.Decision == RequireAuth {
		return "UNAUTHENTICATED"
	}
	return "FORBIDDEN"
}

// Filter walks selections against meta, replacing each field whose
// requirement the evaluator resolves to Deny or RequireAuth with nothing
// (the field and its whole subtree are dropped so the planner never
// builds a fetch for it), and recursing into every retained field's
// return type to apply the same check to nested selections.
//
// Fields are looked up by (typeName, fieldName) against meta.FieldRules;
// typeName for a nested selection comes from resolving the field's
// return type against doc, the same object/field walk
// internal/executor/vartypes.go already does for argument-type
// inference. No teacher precedent (the teacher has no authorization
// pass at all); grounded on AuthorizationMetadata's own shape.
func Filter(ctx context.Context, doc *ast.Document, meta *schema.AuthorizationMetadata, evaluator AuthorizationEvaluator, claims AuthClaims, selections []ast.Selection, typeName string) ([]ast.Selection, []DeniedField) {
	if !meta.HasAnyAuth(typeName) {
		return selections, nil
	}

	var out []ast.Selection
	var denied []DeniedField
	filterInto(ctx, doc, meta, evaluator, claims, selections, typeName, nil, &out, &denied)
	return out, denied
}

func filterInto(ctx context.Context, doc *ast.Document, meta *schema.AuthorizationMetadata, evaluator AuthorizationEvaluator, claims AuthClaims, selections []ast.Selection, typeName string, path []any, out *[]ast.Selection, denied *[]DeniedField) {
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			fieldName := s.Name.String()
			key := fieldName
			if s.Alias != nil && s.Alias.String() != "" {
				key = s.Alias.String()
			}
			fieldPath := append(append([]any{}, path...), key)

			if fieldName != "__typename" {
				rule := meta.Lookup(typeName, fieldName)
				if decision := evaluator.Evaluate(ctx, claims, rule); decision != Allow {
					*denied = append(*denied, DeniedField{
						Path:     fieldPath,
						Message:  "not authorized to access " + typeName + "." + fieldName,
						Decision: decision,
					})
					continue
				}
			}

			if len(s.SelectionSet) > 0 {
				childType := fieldTypeName(doc, typeName, fieldName)
				if meta.HasAnyAuth(childType) {
					filtered, childDenied := Filter(ctx, doc, meta, evaluator, claims, s.SelectionSet, childType)
					for i := range childDenied {
						childDenied[i].Path = append(append([]any{}, fieldPath...), childDenied[i].Path...)
					}
					*denied = append(*denied, childDenied...)
					*out = append(*out, &ast.Field{
						Alias: s.Alias, Name: s.Name, Arguments: s.Arguments,
						Directives: s.Directives, SelectionSet: filtered,
					})
					continue
				}
			}

			*out = append(*out, s)

		case *ast.InlineFragment:
			condition := typeName
			if s.TypeCondition != nil {
				condition = s.TypeCondition.Name.String()
			}
			filtered, childDenied := Filter(ctx, doc, meta, evaluator, claims, s.SelectionSet, condition)
			for i := range childDenied {
				childDenied[i].Path = append(append([]any{}, path...), childDenied[i].Path...)
			}
			*denied = append(*denied, childDenied...)
			*out = append(*out, &ast.InlineFragment{TypeCondition: s.TypeCondition, Directives: s.Directives, SelectionSet: filtered})

		default:
			*out = append(*out, sel)
		}
	}
}

func fieldTypeName(doc *ast.Document, typeName, fieldName string) string {
	obj := findObjectType(doc, typeName)
	if obj == nil {
		return ""
	}
	for _, f := range obj.Fields {
		if f.Name.String() == fieldName {
			return unwrapNamedType(f.Type)
		}
	}
	return ""
}

func findObjectType(doc *ast.Document, name string) *ast.ObjectTypeDefinition {
	for _, def := range doc.Definitions {
		if o, ok := def.(*ast.ObjectTypeDefinition); ok && o.Name.String() == name {
			return o
		}
	}
	return nil
}

func unwrapNamedType(t ast.Type) string {
	switch v := t.(type) {
	case *ast.NamedType:
		return v.Name.String()
	case *ast.NonNullType:
		return unwrapNamedType(v.Type)
	case *ast.ListType:
		return unwrapNamedType(v.Type)
	default:
		return ""
	}
}
