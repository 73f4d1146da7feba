package planner_test

import (
	"context"
	"testing"

	"github.com/graphql-hive/federation-router/internal/normalizer"
	"github.com/graphql-hive/federation-router/internal/parser"
	"github.com/graphql-hive/federation-router/internal/planner"
	"github.com/graphql-hive/federation-router/internal/schema"
)

const planUsersSDL = `
type Query {
  me: User
}

type User @key(fields: "id") {
  id: ID!
  name: String!
}
`

const planReviewsSDL = `
extend type User @key(fields: "id") {
  id: ID! @external
  reviews: [Review!]!
}

type Review {
  id: ID!
  body: String!
}
`

func buildTestState(t *testing.T) *schema.State {
	t.Helper()
	state, err := schema.Build(1, []schema.SubgraphSource{
		{Name: "users", Host: "http://users", SDL: []byte(planUsersSDL)},
		{Name: "reviews", Host: "http://reviews", SDL: []byte(planReviewsSDL)},
	})
	if err != nil {
		t.Fatalf("unexpected error building state: %v", err)
	}
	return state
}

func normalizedOp(t *testing.T, query string) *normalizer.NormalizedOperation {
	t.Helper()
	doc, err := parser.Parse(query, parser.Limits{})
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	op, err := normalizer.Normalize(doc, "", nil)
	if err != nil {
		t.Fatalf("unexpected normalize error: %v", err)
	}
	return op
}

func countFetches(t *testing.T, node planner.PlanNode) int {
	t.Helper()
	switch n := node.(type) {
	case *planner.FetchNode:
		return 1
	case *planner.FlattenNode:
		return countFetches(t, n.Child)
	case *planner.SequenceNode:
		total := 0
		for _, child := range n.Nodes {
			total += countFetches(t, child)
		}
		return total
	case *planner.ParallelNode:
		total := 0
		for _, child := range n.Nodes {
			total += countFetches(t, child)
		}
		return total
	case *planner.ConditionNode:
		total := 0
		if n.IfTrue != nil {
			total += countFetches(t, n.IfTrue)
		}
		if n.IfFalse != nil {
			total += countFetches(t, n.IfFalse)
		}
		return total
	default:
		t.Fatalf("unhandled node kind: %T", node)
		return 0
	}
}

// findFlatten locates the first FlattenNode anywhere in the tree, or nil.
func findFlatten(node planner.PlanNode) *planner.FlattenNode {
	switch n := node.(type) {
	case *planner.FlattenNode:
		return n
	case *planner.SequenceNode:
		for _, child := range n.Nodes {
			if f := findFlatten(child); f != nil {
				return f
			}
		}
	case *planner.ParallelNode:
		for _, child := range n.Nodes {
			if f := findFlatten(child); f != nil {
				return f
			}
		}
	}
	return nil
}

// TestPlanEntityJoinShape covers scenario S3: a query spanning an entity's
// home subgraph and a subgraph contributing extension fields must plan as
// a root fetch for the home fields plus a Flatten(_entities fetch) for the
// fields owned by the other subgraph.
func TestPlanEntityJoinShape(t *testing.T) {
	state := buildTestState(t)
	p := planner.New(state)

	op := normalizedOp(t, `{ me { id name reviews { body } } }`)
	plan, err := p.Plan(context.Background(), op)
	if err != nil {
		t.Fatalf("unexpected planning error: %v", err)
	}

	flatten := findFlatten(plan.Root)
	if flatten == nil {
		t.Fatal("expected a Flatten node for the cross-subgraph reviews field")
	}
	entityFetch, ok := flatten.Child.(*planner.FetchNode)
	if !ok {
		t.Fatalf("expected the Flatten's child to be a FetchNode, got %T", flatten.Child)
	}
	if entityFetch.OperationKind != "_entities" {
		t.Fatalf("expected an _entities fetch, got %q", entityFetch.OperationKind)
	}
	if entityFetch.Subgraph != "reviews" {
		t.Fatalf("expected the entity fetch to target reviews, got %q", entityFetch.Subgraph)
	}
	if len(entityFetch.Requires) == 0 || entityFetch.Requires[0] != "id" {
		t.Fatalf("expected the entity fetch to require the id key, got %v", entityFetch.Requires)
	}
}

// TestPlanIdempotence is testable property 4: planning the same normalized
// operation twice against the same schema generation yields structurally
// identical plans (same fetch count, same entity-jump shape).
func TestPlanIdempotence(t *testing.T) {
	state := buildTestState(t)
	p := planner.New(state)

	query := `{ me { id name reviews { body } } }`

	planA, err := p.Plan(context.Background(), normalizedOp(t, query))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	planB, err := p.Plan(context.Background(), normalizedOp(t, query))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !planner.Equal(planA.Root, planB.Root) {
		t.Fatalf("expected structurally equal plans from repeated planning of the same operation")
	}
}

func TestPlanSingleSubgraphProducesNoFlatten(t *testing.T) {
	state := buildTestState(t)
	p := planner.New(state)

	plan, err := p.Plan(context.Background(), normalizedOp(t, `{ me { id name } }`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if findFlatten(plan.Root) != nil {
		t.Fatal("expected no Flatten node when every field is owned by one subgraph")
	}
	if countFetches(t, plan.Root) != 1 {
		t.Fatalf("expected exactly one fetch, got %d", countFetches(t, plan.Root))
	}
}

func TestPlanUnsatisfiableFieldReturnsQueryPlanError(t *testing.T) {
	state := buildTestState(t)
	p := planner.New(state)

	op := normalizedOp(t, `{ doesNotExist }`)
	_, err := p.Plan(context.Background(), op)
	if err == nil {
		t.Fatal("expected an unsatisfiable-field error")
	}
	qpe, ok := err.(*planner.QueryPlanError)
	if !ok || qpe.Kind != "Unsatisfiable" {
		t.Fatalf("expected a QueryPlanError with kind Unsatisfiable, got %v", err)
	}
}

func TestPlanHonorsCanceledContext(t *testing.T) {
	state := buildTestState(t)
	p := planner.New(state)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Plan(ctx, normalizedOp(t, `{ me { id } }`))
	if err == nil {
		t.Fatal("expected a timeout error for a canceled context")
	}
	qpe, ok := err.(*planner.QueryPlanError)
	if !ok || qpe.Kind != "Timeout" {
		t.Fatalf("expected a QueryPlanError with kind Timeout, got %v", err)
	}
}
