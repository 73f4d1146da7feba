package projector_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/n9te9/graphql-parser/ast"

	"github.com/graphql-hive/federation-router/internal/projector"
)

func field(name string, sub ...ast.Selection) *ast.Field {
	return &ast.Field{Name: &ast.Name{Value: name}, SelectionSet: sub}
}

func TestProjectSimpleObject(t *testing.T) {
	plan := projector.Build([]ast.Selection{
		field("id"),
		field("name"),
	}, "Product")

	data := map[string]any{"id": "1", "name": "Widget", "price": 9}
	out, errs := projector.Project(plan, data, nil, nil, nil)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	want := map[string]any{"id": "1", "name": "Widget"}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectAbstractTypeDispatch(t *testing.T) {
	plan := projector.Build([]ast.Selection{
		field("__typename"),
		&ast.InlineFragment{
			TypeCondition: &ast.NamedType{Name: &ast.Name{Value: "Book"}},
			SelectionSet:  []ast.Selection{field("title")},
		},
		&ast.InlineFragment{
			TypeCondition: &ast.NamedType{Name: &ast.Name{Value: "Movie"}},
			SelectionSet:  []ast.Selection{field("director")},
		},
	}, "Media")

	possibleTypes := map[string]map[string]bool{
		"Media": {"Book": true, "Movie": true},
	}

	data := map[string]any{"__typename": "Book", "title": "Dune", "director": "n/a"}
	out, errs := projector.Project(plan, data, possibleTypes, nil, nil)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	want := map[string]any{"__typename": "Book", "title": "Dune"}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectUnresolvedTypeConditionErrors(t *testing.T) {
	plan := projector.Build([]ast.Selection{
		&ast.InlineFragment{
			TypeCondition: &ast.NamedType{Name: &ast.Name{Value: "Book"}},
			SelectionSet:  []ast.Selection{field("title")},
		},
	}, "Media")

	data := map[string]any{"__typename": "Podcast"}
	out, errs := projector.Project(plan, data, map[string]map[string]bool{}, nil, nil)
	if out != nil {
		t.Fatalf("expected nil object, got %v", out)
	}
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %d: %v", len(errs), errs)
	}
	if errs[0].Extensions["code"] != "INTERNAL" {
		t.Fatalf("expected INTERNAL code, got %v", errs[0].Extensions)
	}
}

func TestProjectSkipAndInclude(t *testing.T) {
	skipDirective := &ast.Directive{
		Name: "skip",
		Arguments: []*ast.Argument{
			{Name: &ast.Name{Value: "if"}, Value: &ast.Variable{Name: "omit"}},
		},
	}
	withSkip := field("secret")
	withSkip.Directives = []*ast.Directive{skipDirective}

	plan := projector.Build([]ast.Selection{field("id"), withSkip}, "Query")

	data := map[string]any{"id": "1", "secret": "hidden"}
	out, errs := projector.Project(plan, data, nil, map[string]any{"omit": true}, nil)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if _, present := out["secret"]; present {
		t.Fatalf("expected secret to be skipped, got %v", out)
	}
}

func TestProjectListElements(t *testing.T) {
	plan := projector.Build([]ast.Selection{
		field("items", field("id")),
	}, "Query")

	data := map[string]any{
		"items": []any{
			map[string]any{"id": "a", "extra": "x"},
			map[string]any{"id": "b", "extra": "y"},
		},
	}
	out, errs := projector.Project(plan, data, nil, nil, nil)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	items, ok := out["items"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("expected 2 items, got %v", out["items"])
	}
	for _, item := range items {
		m := item.(map[string]any)
		if _, present := m["extra"]; present {
			t.Fatalf("expected extra field to be pruned, got %v", m)
		}
	}
}

// schemaFieldTypes builds a FieldType lookup from a "Type.field" -> ast.Type
// table, the shape the tests below find easiest to declare inline.
func schemaFieldTypes(types map[string]ast.Type) projector.FieldType {
	return func(parentType, fieldName string) ast.Type {
		return types[parentType+"."+fieldName]
	}
}

func named(name string) ast.Type  { return &ast.NamedType{Name: &ast.Name{Value: name}} }
func nonNull(t ast.Type) ast.Type { return &ast.NonNullType{Type: t} }
func list(t ast.Type) ast.Type    { return &ast.ListType{Type: t} }

func TestProjectNullPropagationAbsorbsAtNullableField(t *testing.T) {
	plan := projector.Build([]ast.Selection{
		field("name"),
	}, "Query")

	types := schemaFieldTypes(map[string]ast.Type{
		"Query.name": list(nonNull(named("String"))),
	})

	data := map[string]any{"name": []any{nil}}
	out, errs := projector.Project(plan, data, nil, nil, types)
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %d: %v", len(errs), errs)
	}
	want := map[string]any{"name": nil}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectNullPropagationNullsContainingObject(t *testing.T) {
	plan := projector.Build([]ast.Selection{
		field("me", field("name")),
	}, "Query")

	types := schemaFieldTypes(map[string]ast.Type{
		"Query.me":   named("User"),
		"User.name": nonNull(named("String")),
	})

	data := map[string]any{"me": map[string]any{"name": nil}}
	out, errs := projector.Project(plan, data, nil, nil, types)
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %d: %v", len(errs), errs)
	}
	if v, present := out["me"]; !present || v != nil {
		t.Fatalf("expected me to be null, got %v", out)
	}
}

func TestProjectNullPropagationBubblesPastNonNullObjectToRoot(t *testing.T) {
	plan := projector.Build([]ast.Selection{
		field("me", field("name")),
	}, "Query")

	types := schemaFieldTypes(map[string]ast.Type{
		"Query.me":   nonNull(named("User")),
		"User.name": nonNull(named("String")),
	})

	data := map[string]any{"me": map[string]any{"name": nil}}
	out, errs := projector.Project(plan, data, nil, nil, types)
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error (no duplicate at each bubble level), got %d: %v", len(errs), errs)
	}
	if out != nil {
		t.Fatalf("expected the whole response to be nulled, got %v", out)
	}
}

func TestProjectNullPropagationNullsWholeListForNonNullElement(t *testing.T) {
	plan := projector.Build([]ast.Selection{
		field("items", field("id")),
	}, "Query")

	types := schemaFieldTypes(map[string]ast.Type{
		"Query.items": list(nonNull(named("Item"))),
		"Item.id":     nonNull(named("ID")),
	})

	data := map[string]any{
		"items": []any{
			map[string]any{"id": "a"},
			map[string]any{"id": nil},
		},
	}
	out, errs := projector.Project(plan, data, nil, nil, types)
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %d: %v", len(errs), errs)
	}
	if v, present := out["items"]; !present || v != nil {
		t.Fatalf("expected items to be nulled, got %v", out["items"])
	}
}

func TestProjectNullPropagationAllowsNullableListElement(t *testing.T) {
	plan := projector.Build([]ast.Selection{
		field("items", field("id")),
	}, "Query")

	types := schemaFieldTypes(map[string]ast.Type{
		"Query.items": nonNull(list(named("Item"))),
		"Item.id":     nonNull(named("ID")),
	})

	data := map[string]any{
		"items": []any{
			map[string]any{"id": "a"},
			nil,
		},
	}
	out, errs := projector.Project(plan, data, nil, nil, types)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	items, ok := out["items"].([]any)
	if !ok || len(items) != 2 || items[1] != nil {
		t.Fatalf("expected a nullable list element to stay null without propagating, got %v", out["items"])
	}
}
