package schema_test

import (
	"testing"

	"github.com/n9te9/graphql-parser/ast"

	"github.com/graphql-hive/federation-router/internal/schema"
)

func mustSubgraph(t *testing.T, name, sdl, host string) *schema.Subgraph {
	t.Helper()
	sg, err := schema.NewSubgraph(name, []byte(sdl), host)
	if err != nil {
		t.Fatalf("unexpected error building subgraph %q: %v", name, err)
	}
	return sg
}

const usersSDL = `
type Query {
  me: User
}

type User @key(fields: "id") {
  id: ID!
  name: String!
}
`

const reviewsSDL = `
extend type User @key(fields: "id") {
  id: ID! @external
  reviews: [Review!]!
}

type Review {
  id: ID!
  body: String!
}
`

// TestEntityJoinFieldOwnership covers the schema side of scenario S3:
// entities spanning two subgraphs compose into one type whose fields are
// owned by whichever subgraph defines them, joined on the shared @key.
func TestEntityJoinFieldOwnership(t *testing.T) {
	users := mustSubgraph(t, "users", usersSDL, "http://users")
	reviews := mustSubgraph(t, "reviews", reviewsSDL, "http://reviews")

	sg, err := schema.NewSupergraph([]*schema.Subgraph{users, reviews})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	idOwners := sg.GetSubgraphsForField("User", "id")
	if len(idOwners) != 1 || idOwners[0].Name != "users" {
		t.Fatalf("expected users to own User.id (reviews' copy is @external), got %v", idOwners)
	}

	nameOwners := sg.GetSubgraphsForField("User", "name")
	if len(nameOwners) != 1 || nameOwners[0].Name != "users" {
		t.Fatalf("expected users to own User.name, got %v", nameOwners)
	}

	reviewsOwners := sg.GetSubgraphsForField("User", "reviews")
	if len(reviewsOwners) != 1 || reviewsOwners[0].Name != "reviews" {
		t.Fatalf("expected reviews to own User.reviews, got %v", reviewsOwners)
	}

	owner := sg.GetEntityOwnerSubgraph("User")
	if owner == nil || owner.Name != "users" {
		t.Fatalf("expected the non-extension users subgraph to own the User entity, got %v", owner)
	}
	if !sg.IsEntityType("User") {
		t.Fatal("expected User to be recognized as an entity type")
	}
}

func TestFieldTypeResolvesDeclaredType(t *testing.T) {
	users := mustSubgraph(t, "users", usersSDL, "http://users")
	sg, err := schema.NewSupergraph([]*schema.Subgraph{users})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ft := sg.FieldType("User", "id")
	nn, ok := ft.(*ast.NonNullType)
	if !ok {
		t.Fatalf("expected User.id to be non-null, got %T", ft)
	}
	named, ok := nn.Type.(*ast.NamedType)
	if !ok || named.Name.String() != "ID" {
		t.Fatalf("expected the wrapped type to be named ID, got %+v", nn.Type)
	}
}

func TestFieldTypeUnknownFieldReturnsNil(t *testing.T) {
	users := mustSubgraph(t, "users", usersSDL, "http://users")
	sg, err := schema.NewSupergraph([]*schema.Subgraph{users})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ft := sg.FieldType("User", "doesNotExist"); ft != nil {
		t.Fatalf("expected nil for an unknown field, got %v", ft)
	}
	if ft := sg.FieldType("DoesNotExist", "id"); ft != nil {
		t.Fatalf("expected nil for an unknown type, got %v", ft)
	}
}

func TestOverrideRemovesFieldFromOriginSubgraph(t *testing.T) {
	legacy := mustSubgraph(t, "legacy-pricing", `
extend type Product @key(fields: "sku") {
  sku: String! @external
  price: Float!
}
`, "http://legacy")
	pricing := mustSubgraph(t, "pricing", `
extend type Product @key(fields: "sku") {
  sku: String! @external
  price: Float! @override(from: "legacy-pricing")
}
`, "http://pricing")

	sg, err := schema.NewSupergraph([]*schema.Subgraph{legacy, pricing})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	owners := sg.GetSubgraphsForField("Product", "price")
	if len(owners) != 1 || owners[0].Name != "pricing" {
		t.Fatalf("expected only pricing to own Product.price after override, got %v", owners)
	}
}

func TestConsumerSchemaStripsInaccessibleAndFederationDirectives(t *testing.T) {
	sdl := `
type User @key(fields: "id") {
  id: ID!
  name: String! @shareable
  ssn: String @inaccessible
}
`
	users := mustSubgraph(t, "users", sdl, "http://users")
	sg, err := schema.NewSupergraph([]*schema.Subgraph{users})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	consumer := sg.ConsumerSchema()
	var userType *ast.ObjectTypeDefinition
	for _, def := range consumer.Definitions {
		if o, ok := def.(*ast.ObjectTypeDefinition); ok && o.Name.String() == "User" {
			userType = o
		}
	}
	if userType == nil {
		t.Fatal("expected User to survive into the consumer schema")
	}
	for _, f := range userType.Fields {
		if f.Name.String() == "ssn" {
			t.Fatal("expected ssn to be stripped as inaccessible")
		}
		for _, d := range f.Directives {
			if d.Name == "shareable" {
				t.Fatalf("expected federation directives to be stripped, found %q on %q", d.Name, f.Name.String())
			}
		}
	}
}

func TestPossibleTypesMapCoversUnionsAndInterfaces(t *testing.T) {
	sdl := `
interface Node {
  id: ID!
}
type Dog implements Node {
  id: ID!
}
type Cat implements Node {
  id: ID!
}
union Pet = Dog | Cat
`
	animals := mustSubgraph(t, "animals", sdl, "http://animals")
	sg, err := schema.NewSupergraph([]*schema.Subgraph{animals})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	possible := sg.PossibleTypesMap()
	if !possible["Pet"]["Dog"] || !possible["Pet"]["Cat"] {
		t.Fatalf("expected Pet union to include Dog and Cat, got %v", possible["Pet"])
	}
	if !possible["Node"]["Dog"] || !possible["Node"]["Cat"] {
		t.Fatalf("expected Node interface to include Dog and Cat, got %v", possible["Node"])
	}
}

func TestNewSupergraphRejectsEmptySubgraphList(t *testing.T) {
	if _, err := schema.NewSupergraph(nil); err == nil {
		t.Fatal("expected an error composing zero subgraphs")
	}
}
